package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/grounding"
	"github.com/lessonforge/lessonforge/internal/llm"
	"github.com/lessonforge/lessonforge/internal/prompt"
	"github.com/lessonforge/lessonforge/internal/repository"
)

// SafetyApology replaces a follow-up answer when the backend blocks
// generation; an in-progress conversation is never terminated with a hard
// error.
const SafetyApology = "Sorry, I can't help with that question here. Please try asking it a different way."

type chatKey struct {
	sessionID string
	section   int
	qa        int
}

// ChatService handles per-question follow-up conversations
type ChatService struct {
	client   llm.Client
	resolver *grounding.Resolver
	learn    *LearnService
	repo     *repository.SessionRepository
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[chatKey]bool
}

// NewChatService creates a new chat service
func NewChatService(
	client llm.Client,
	resolver *grounding.Resolver,
	learn *LearnService,
	repo *repository.SessionRepository,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		client:   client,
		resolver: resolver,
		learn:    learn,
		repo:     repo,
		logger:   logger,
		inFlight: make(map[chatKey]bool),
	}
}

// SendFollowUp sends one conversational turn for the QA pair at
// (sectionIdx, qaIdx). Sends on the same key never overlap; sends on
// different keys may proceed concurrently.
func (s *ChatService) SendFollowUp(ctx context.Context, sessionID string, sectionIdx, qaIdx int, req *domain.FollowUpRequest) (*domain.FollowUpResponse, error) {
	key := chatKey{sessionID: sessionID, section: sectionIdx, qa: qaIdx}
	if !s.acquire(key) {
		return nil, domain.ErrRequestInFlight
	}
	defer s.release(key)

	anchor, err := s.learn.Anchor(sessionID, sectionIdx, qaIdx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.GetChatTurns(sessionID, sectionIdx, qaIdx)
	if err != nil {
		return nil, err
	}

	genReq := prompt.CompileFollowUp(s.learn.ChatModel(), *anchor, history, req.Message, req.UseSearch)
	reply, err := s.client.Generate(ctx, genReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChatBackendError, err)
	}

	resp := &domain.FollowUpResponse{}
	if reply.SafetyBlocked {
		s.logger.Warn("follow-up blocked by safety filters",
			zap.String("session_id", sessionID),
			zap.Int("section", sectionIdx), zap.Int("qa", qaIdx))
		resp.Answer = SafetyApology
	} else {
		resp.Answer = reply.Text
		resp.Sources, resp.RelatedLinks = s.resolver.ResolveChat(reply)
	}

	if err := s.appendTurns(sessionID, sectionIdx, qaIdx, req.Message, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// History returns the stored conversation for one key
func (s *ChatService) History(sessionID string, sectionIdx, qaIdx int) ([]domain.ChatTurn, error) {
	return s.repo.GetChatTurns(sessionID, sectionIdx, qaIdx)
}

func (s *ChatService) appendTurns(sessionID string, sectionIdx, qaIdx int, message string, resp *domain.FollowUpResponse) error {
	userTurn := &domain.ChatTurn{
		SessionID:    sessionID,
		SectionIndex: sectionIdx,
		QAIndex:      qaIdx,
		Role:         domain.RoleUser,
		Text:         message,
	}
	if err := s.repo.CreateChatTurn(userTurn); err != nil {
		return err
	}
	modelTurn := &domain.ChatTurn{
		SessionID:    sessionID,
		SectionIndex: sectionIdx,
		QAIndex:      qaIdx,
		Role:         domain.RoleModel,
		Text:         resp.Answer,
		Sources:      resp.Sources,
		RelatedLinks: resp.RelatedLinks,
	}
	return s.repo.CreateChatTurn(modelTurn)
}

func (s *ChatService) acquire(key chatKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[key] {
		return false
	}
	s.inFlight[key] = true
	return true
}

func (s *ChatService) release(key chatKey) {
	s.mu.Lock()
	delete(s.inFlight, key)
	s.mu.Unlock()
}
