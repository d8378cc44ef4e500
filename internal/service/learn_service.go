package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lessonforge/lessonforge/internal/config"
	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/grounding"
	"github.com/lessonforge/lessonforge/internal/llm"
	"github.com/lessonforge/lessonforge/internal/parse"
	"github.com/lessonforge/lessonforge/internal/prompt"
	"github.com/lessonforge/lessonforge/internal/repository"
)

// attachment is the supplemental content supplied for one missing URI.
// File and text are mutually exclusive; the last one attached wins.
type attachment struct {
	file *domain.DocumentUpload
	text string
}

// studySession is the explicit session object owning one generation
// lifecycle. The retained GenerationContext exists only while the session
// is awaiting documents.
type studySession struct {
	mu sync.Mutex

	id        string
	state     string
	createdAt time.Time

	genCtx *domain.GenerationContext

	sections []domain.LessonSection
	sources  []domain.GroundingSource

	missingURIs []string
	perURI      map[string]attachment
	inFlight    bool
}

// LearnService orchestrates lesson synthesis: request compilation, the
// backend call, response classification, provenance resolution, and the
// resumable missing-documents workflow.
type LearnService struct {
	cfg      *config.Config
	client   llm.Client
	resolver *grounding.Resolver
	repo     *repository.SessionRepository
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*studySession
}

// NewLearnService creates a new learn service
func NewLearnService(
	cfg *config.Config,
	client llm.Client,
	resolver *grounding.Resolver,
	repo *repository.SessionRepository,
	logger *zap.Logger,
) *LearnService {
	return &LearnService{
		cfg:      cfg,
		client:   client,
		resolver: resolver,
		repo:     repo,
		logger:   logger,
		sessions: make(map[string]*studySession),
	}
}

// StartLearning builds a fresh GenerationContext from the request and runs
// one generation pass. The returned view is either a complete lesson or an
// awaiting-documents snapshot.
func (s *LearnService) StartLearning(ctx context.Context, req *domain.StartLearningRequest) (*domain.SessionView, error) {
	sources, err := s.buildSources(ctx, req)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = s.cfg.LLM.LessonModel
	}
	genCtx := &domain.GenerationContext{
		Sources:    sources,
		FocusTopic: req.FocusTopic,
		Model:      model,
	}

	reply, result, err := s.generatePass(ctx, genCtx)
	if err != nil {
		return nil, err
	}

	id, err := s.repo.CreateSession(domain.SessionIdle, req.FocusTopic, model)
	if err != nil {
		return nil, err
	}
	sess := &studySession{
		id:        id,
		state:     domain.SessionIdle,
		createdAt: time.Now(),
		perURI:    make(map[string]attachment),
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := s.applyResult(sess, genCtx, reply, result); err != nil {
		return nil, err
	}
	return s.viewLocked(sess), nil
}

// SubmitSupplemental resubmits an awaiting session with the supplied
// content. The retained context's source list is extended with all bulk
// files, then all per-URI files, then all per-URI pasted texts; that order
// determines source presentation order on the next pass.
func (s *LearnService) SubmitSupplemental(ctx context.Context, sessionID string, req *domain.SupplementRequest) (*domain.SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()

	if sess.state != domain.SessionAwaitingDocuments || sess.genCtx == nil {
		sess.mu.Unlock()
		return nil, fmt.Errorf("%w: session is not awaiting documents", domain.ErrNothingToSubmit)
	}
	if sess.inFlight {
		sess.mu.Unlock()
		return nil, domain.ErrRequestInFlight
	}

	pending := make(map[string]bool, len(sess.missingURIs))
	for _, uri := range sess.missingURIs {
		pending[uri] = true
	}
	// Reject the whole request before applying anything, so a bad URI
	// leaves the retained attachments untouched
	for _, att := range req.Attachments {
		if !pending[att.URI] {
			sess.mu.Unlock()
			return nil, fmt.Errorf("%w: uri %q is not pending", domain.ErrNotFound, att.URI)
		}
	}
	for _, att := range req.Attachments {
		if att.Text != "" {
			sess.perURI[att.URI] = attachment{text: att.Text}
		} else if att.File != nil {
			sess.perURI[att.URI] = attachment{file: att.File}
		}
	}

	if len(req.BulkFiles) == 0 && len(sess.perURI) == 0 {
		sess.mu.Unlock()
		return nil, domain.ErrNothingToSubmit
	}

	var uploads []domain.DocumentUpload
	uploads = append(uploads, req.BulkFiles...)
	for _, uri := range sess.missingURIs {
		if att, ok := sess.perURI[uri]; ok && att.file != nil {
			uploads = append(uploads, *att.file)
		}
	}
	converted, err := convertUploads(ctx, uploads)
	if err != nil {
		sess.mu.Unlock()
		return nil, err
	}

	combined := &domain.GenerationContext{
		Sources:    append(append([]domain.SourceDescriptor{}, sess.genCtx.Sources...), converted...),
		FocusTopic: sess.genCtx.FocusTopic,
		Model:      sess.genCtx.Model,
	}
	for _, uri := range sess.missingURIs {
		if att, ok := sess.perURI[uri]; ok && att.file == nil && att.text != "" {
			combined.Sources = append(combined.Sources, domain.PastedTextSource(att.text))
		}
	}

	// The backend call runs without the session lock; overlapping
	// resubmissions are rejected via the in-flight flag, never interleaved.
	sess.inFlight = true
	sess.mu.Unlock()

	reply, result, genErr := s.generatePass(ctx, combined)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.inFlight = false

	if genErr != nil {
		// Terminal failure: drop the retained context, no automatic retry
		sess.state = domain.SessionIdle
		sess.genCtx = nil
		sess.missingURIs = nil
		sess.perURI = make(map[string]attachment)
		if err := s.repo.UpdateSessionState(sess.id, sess.state, nil); err != nil {
			s.logger.Warn("failed to persist session state",
				zap.String("session_id", sess.id), zap.Error(err))
		}
		return nil, genErr
	}
	if err := s.applyResult(sess, combined, reply, result); err != nil {
		return nil, err
	}
	return s.viewLocked(sess), nil
}

// Abandon discards a session together with its retained context, lesson,
// and chat history
func (s *LearnService) Abandon(sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	return s.repo.DeleteSession(sessionID)
}

// GetSession returns the current snapshot of a session
func (s *LearnService) GetSession(sessionID string) (*domain.SessionView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess), nil
}

// Anchor returns the follow-up conversation anchor for one QA pair
func (s *LearnService) Anchor(sessionID string, sectionIdx, qaIdx int) (*prompt.ChatAnchor, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sectionIdx < 0 || sectionIdx >= len(sess.sections) {
		return nil, fmt.Errorf("%w: section %d", domain.ErrNotFound, sectionIdx)
	}
	section := sess.sections[sectionIdx]
	if qaIdx < 0 || qaIdx >= len(section.QAPairs) {
		return nil, fmt.Errorf("%w: qa pair %d", domain.ErrNotFound, qaIdx)
	}
	qa := section.QAPairs[qaIdx]
	return &prompt.ChatAnchor{
		Question: qa.Question,
		Answer:   qa.Answer,
		Section:  section,
	}, nil
}

// ChatModel returns the model used for follow-up turns
func (s *LearnService) ChatModel() string {
	return s.cfg.LLM.ChatModel
}

// generatePass runs one compile → backend call → classification pass
func (s *LearnService) generatePass(ctx context.Context, genCtx *domain.GenerationContext) (*llm.Reply, *parse.Result, error) {
	req, err := prompt.CompileLessonRequest(genCtx)
	if err != nil {
		return nil, nil, err
	}

	reply, err := s.client.Generate(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	result, err := parse.Lesson(reply, req.OutputFormat)
	if err != nil {
		s.logger.Warn("lesson response rejected", zap.Error(err))
		return nil, nil, err
	}
	return reply, result, nil
}

// applyResult commits one pass outcome to the session. Caller holds sess.mu.
func (s *LearnService) applyResult(sess *studySession, genCtx *domain.GenerationContext, reply *llm.Reply, result *parse.Result) error {
	if result.Kind == parse.KindMissingDocuments {
		// A new escalation replaces the pending set; earlier attachments
		// are already embedded in the retained context's source list.
		sess.state = domain.SessionAwaitingDocuments
		sess.genCtx = genCtx
		sess.missingURIs = result.MissingURIs
		sess.perURI = make(map[string]attachment)
		s.logger.Info("backend requested additional documents",
			zap.String("session_id", sess.id),
			zap.Int("count", len(result.MissingURIs)))
		return s.repo.UpdateSessionState(sess.id, sess.state, sess.missingURIs)
	}

	sess.state = domain.SessionIdle
	sess.genCtx = nil
	sess.missingURIs = nil
	sess.perURI = make(map[string]attachment)
	sess.sections = result.Sections
	sess.sources = s.resolver.Sources(reply)

	if err := s.repo.SaveLesson(&domain.Lesson{
		SessionID: sess.id,
		Sections:  sess.sections,
		Sources:   sess.sources,
	}); err != nil {
		return err
	}
	return s.repo.UpdateSessionState(sess.id, sess.state, nil)
}

func (s *LearnService) buildSources(ctx context.Context, req *domain.StartLearningRequest) ([]domain.SourceDescriptor, error) {
	var sources []domain.SourceDescriptor
	for _, u := range req.URLs {
		sources = append(sources, domain.URLSource(u))
	}
	docs, err := convertUploads(ctx, req.Documents)
	if err != nil {
		return nil, err
	}
	sources = append(sources, docs...)
	for _, text := range req.PastedTexts {
		sources = append(sources, domain.PastedTextSource(text))
	}
	if req.SearchQuery != "" {
		sources = append(sources, domain.SearchQuerySource(req.SearchQuery))
	}
	return sources, nil
}

func (s *LearnService) session(id string) (*studySession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, nil
	}
	return s.rehydrate(id)
}

// rehydrate rebuilds a session from the store after a restart. The retained
// generation context is memory-only, so a rehydrated session serves its
// lesson and chat anchors but cannot accept a pending resubmission.
func (s *LearnService) rehydrate(id string) (*studySession, error) {
	rec, err := s.repo.GetSession(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNotFound
	}

	sess := &studySession{
		id:          id,
		state:       rec.State,
		createdAt:   rec.CreatedAt,
		missingURIs: rec.PendingURIs,
		perURI:      make(map[string]attachment),
	}
	lesson, err := s.repo.GetLesson(id)
	if err != nil {
		return nil, err
	}
	if lesson != nil {
		sess.sections = lesson.Sections
		sess.sources = lesson.Sources
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing, nil
	}
	s.sessions[id] = sess
	return sess, nil
}

// viewLocked snapshots a session; the caller holds sess.mu
func (s *LearnService) viewLocked(sess *studySession) *domain.SessionView {
	view := &domain.SessionView{
		SessionID: sess.id,
		State:     sess.state,
		CreatedAt: sess.createdAt,
	}
	if sess.state == domain.SessionAwaitingDocuments {
		// A non-empty pending set blocks lesson availability
		view.MissingURIs = append([]string{}, sess.missingURIs...)
		return view
	}
	view.Sections = sess.sections
	view.Sources = sess.sources
	return view
}
