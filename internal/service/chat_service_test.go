package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonforge/lessonforge/internal/domain"
	"github.com/lessonforge/lessonforge/internal/llm"
	"github.com/lessonforge/lessonforge/internal/prompt"
)

func startLesson(t *testing.T, learn *LearnService, client *fakeClient) string {
	t.Helper()
	client.mu.Lock()
	client.replies = append(client.replies, &llm.Reply{Text: oneSectionJSON})
	client.mu.Unlock()

	view, err := learn.StartLearning(context.Background(), &domain.StartLearningRequest{
		URLs: []string{"https://x.org/a"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.SessionIdle, view.State)
	return view.SessionID
}

func TestSendFollowUp_Success(t *testing.T) {
	client := &fakeClient{}
	learn, chat := newTestServices(t, client)
	sessionID := startLesson(t, learn, client)

	client.mu.Lock()
	client.replies = append(client.replies, &llm.Reply{
		Text:            "Scheduling happens in the runtime [1]. See also https://go.dev/blog/sched#intro.",
		GroundingChunks: []llm.GroundingChunk{{URI: "https://go.dev/doc", Title: "Go docs"}},
	})
	client.mu.Unlock()

	resp, err := chat.SendFollowUp(context.Background(), sessionID, 0, 0, &domain.FollowUpRequest{
		Message:   "How are goroutines scheduled?",
		UseSearch: true,
	})
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "[1]", "markers stay embedded in the answer")
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "https://go.dev/doc", resp.Sources[0].URI)
	require.Len(t, resp.RelatedLinks, 1)
	assert.Equal(t, "https://go.dev/blog/sched", resp.RelatedLinks[0].URI)

	turns, err := chat.History(sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleUser, turns[0].Role)
	assert.Equal(t, domain.RoleModel, turns[1].Role)
	assert.Equal(t, resp.Sources, turns[1].Sources)
}

func TestSendFollowUp_HistoryFlowsIntoNextTurn(t *testing.T) {
	client := &fakeClient{}
	learn, chat := newTestServices(t, client)
	sessionID := startLesson(t, learn, client)

	client.mu.Lock()
	client.replies = append(client.replies,
		&llm.Reply{Text: "First answer."},
		&llm.Reply{Text: "Second answer."},
	)
	client.mu.Unlock()

	_, err := chat.SendFollowUp(context.Background(), sessionID, 0, 0,
		&domain.FollowUpRequest{Message: "first question"})
	require.NoError(t, err)
	_, err = chat.SendFollowUp(context.Background(), sessionID, 0, 0,
		&domain.FollowUpRequest{Message: "second question"})
	require.NoError(t, err)

	// calls: lesson generation, then two chat turns
	req := client.request(2)
	require.Len(t, req.Parts, 1)
	assert.Contains(t, req.Parts[0].Text, "first question")
	assert.Contains(t, req.Parts[0].Text, "First answer.")
	assert.Contains(t, req.Parts[0].Text, "second question")
}

func TestSendFollowUp_SafetyBlockDegradesToApology(t *testing.T) {
	client := &fakeClient{}
	learn, chat := newTestServices(t, client)
	sessionID := startLesson(t, learn, client)

	client.mu.Lock()
	client.replies = append(client.replies, &llm.Reply{SafetyBlocked: true})
	client.mu.Unlock()

	resp, err := chat.SendFollowUp(context.Background(), sessionID, 0, 0,
		&domain.FollowUpRequest{Message: "blocked question"})
	require.NoError(t, err, "a safety block never surfaces as a hard chat failure")

	assert.Equal(t, SafetyApology, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, resp.RelatedLinks)

	turns, err := chat.History(sessionID, 0, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2, "history stays coherent across a safety block")
	assert.Equal(t, SafetyApology, turns[1].Text)
}

func TestSendFollowUp_BackendFailure(t *testing.T) {
	client := &fakeClient{errs: []error{nil, errors.New("connection reset")}}
	learn, chat := newTestServices(t, client)
	sessionID := startLesson(t, learn, client)

	_, err := chat.SendFollowUp(context.Background(), sessionID, 0, 0,
		&domain.FollowUpRequest{Message: "question"})
	assert.ErrorIs(t, err, domain.ErrChatBackendError)

	turns, repoErr := chat.History(sessionID, 0, 0)
	require.NoError(t, repoErr)
	assert.Empty(t, turns, "failed sends leave no partial history")
}

func TestSendFollowUp_UnknownAnchorRejected(t *testing.T) {
	client := &fakeClient{}
	learn, chat := newTestServices(t, client)
	sessionID := startLesson(t, learn, client)

	_, err := chat.SendFollowUp(context.Background(), sessionID, 5, 0,
		&domain.FollowUpRequest{Message: "question"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = chat.SendFollowUp(context.Background(), sessionID, 0, 9,
		&domain.FollowUpRequest{Message: "question"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSendFollowUp_SameKeySendsNeverOverlap(t *testing.T) {
	client := &fakeClient{}
	learn, chat := newTestServices(t, client)
	sessionID := startLesson(t, learn, client)

	client.mu.Lock()
	client.block = make(chan struct{})
	client.started = make(chan struct{}, 1)
	client.replies = append(client.replies, &llm.Reply{Text: "slow answer"})
	client.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := chat.SendFollowUp(context.Background(), sessionID, 0, 0,
			&domain.FollowUpRequest{Message: "slow question"})
		done <- err
	}()

	<-client.started
	_, err := chat.SendFollowUp(context.Background(), sessionID, 0, 0,
		&domain.FollowUpRequest{Message: "overlapping question"})
	assert.ErrorIs(t, err, domain.ErrRequestInFlight)

	close(client.block)
	require.NoError(t, <-done)
}

func TestSendFollowUp_ContextOnlyModeUsesSentinelInstruction(t *testing.T) {
	client := &fakeClient{}
	learn, chat := newTestServices(t, client)
	sessionID := startLesson(t, learn, client)

	client.mu.Lock()
	client.replies = append(client.replies, &llm.Reply{Text: prompt.NoAnswerSentinel})
	client.mu.Unlock()

	resp, err := chat.SendFollowUp(context.Background(), sessionID, 0, 0,
		&domain.FollowUpRequest{Message: "something off-topic"})
	require.NoError(t, err)

	assert.Equal(t, prompt.NoAnswerSentinel, resp.Answer,
		"consumers can pattern-match the sentinel verbatim")
	req := client.request(1)
	assert.Empty(t, req.Capabilities)
	assert.Contains(t, req.SystemInstruction, prompt.NoAnswerSentinel)
}
