package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopline/mentor/internal/config"
	"github.com/loopline/mentor/internal/contextwindow"
	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/extraction"
	"github.com/loopline/mentor/internal/llm"
	"github.com/loopline/mentor/internal/service"
	"github.com/loopline/mentor/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		LLMModel:           "mock",
		LLMTimeout:         5 * time.Second,
		ContextTokenBudget: 6000,
		RecentTurnCount:    8,
		ExtractionInterval: 10,
	}
}

func newTestService(t *testing.T, client llm.LLMClient, queue service.ExtractionQueue) (*service.Service, *store.SQLiteStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	assembler := contextwindow.NewAssembler(db, nil, nil, nil, contextwindow.Options{}, nil)
	return service.New(db, client, assembler, queue, testConfig(), nil), db
}

func startConversation(t *testing.T, svc *service.Service) *domain.Conversation {
	t.Helper()
	conv, err := svc.GetOrCreateConversation(context.Background(), "alice", domain.PersonaMentor)
	require.NoError(t, err)
	return conv
}

func collect(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not finish in time")
		}
	}
}

func TestStreamReplyHappyPath(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = "a helpful answer that arrives in chunks"
	svc, db := newTestService(t, mock, nil)
	conv := startConversation(t, svc)

	events, err := svc.StreamReply(context.Background(), conv.ConversationID, "how do I start?")
	require.NoError(t, err)
	got := collect(t, events)

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, domain.StreamEventDone, last.Type)
	assert.NotEmpty(t, last.MessageID)

	var streamed strings.Builder
	for _, ev := range got[:len(got)-1] {
		require.Equal(t, domain.StreamEventToken, ev.Type)
		streamed.WriteString(ev.Content)
	}
	assert.Equal(t, mock.Response, streamed.String())

	// The pair is durable and in order.
	msgs, err := db.ListMessages(context.Background(), conv.ConversationID, 0, "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "how do I start?", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)
	assert.Equal(t, mock.Response, msgs[1].Content)
	assert.Equal(t, last.MessageID, msgs[1].MessageID)
}

func TestStreamReplyValidation(t *testing.T) {
	svc, _ := newTestService(t, llm.NewMockClient(), nil)
	conv := startConversation(t, svc)
	ctx := context.Background()

	_, err := svc.StreamReply(ctx, conv.ConversationID, "   ")
	assert.True(t, errors.Is(err, domain.ErrEmptyContent))

	_, err = svc.StreamReply(ctx, "missing", "hi")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	disabled, _ := newTestService(t, nil, nil)
	conv2 := startConversation(t, disabled)
	_, err = disabled.StreamReply(ctx, conv2.ConversationID, "hi")
	assert.True(t, errors.Is(err, domain.ErrChatDisabled))
}

// gateClient blocks mid-generation until released, so tests can observe the
// state of the service while a stream is in flight.
type gateClient struct {
	startOnce sync.Once
	started   chan struct{}
	release   chan struct{}
}

func newGateClient() *gateClient {
	return &gateClient{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateClient) CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return nil, errors.New("not implemented")
}

func (g *gateClient) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, callback llm.StreamCallback) error {
	g.startOnce.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return callback(&llm.StreamChunk{Choices: []llm.Choice{{
		Delta:        &llm.ChatMessage{Role: "assistant", Content: "done"},
		FinishReason: "stop",
	}}})
}

func TestStreamReplyRejectsConcurrentStream(t *testing.T) {
	gate := newGateClient()
	svc, _ := newTestService(t, gate, nil)
	conv := startConversation(t, svc)
	ctx := context.Background()

	events, err := svc.StreamReply(ctx, conv.ConversationID, "first")
	require.NoError(t, err)
	<-gate.started

	// Second request while the first is generating: rejected, not queued.
	_, err = svc.StreamReply(ctx, conv.ConversationID, "second")
	assert.True(t, errors.Is(err, domain.ErrStreamActive))

	close(gate.release)
	got := collect(t, events)
	require.NotEmpty(t, got)
	assert.Equal(t, domain.StreamEventDone, got[len(got)-1].Type)

	// The session is free again.
	events, err = svc.StreamReply(ctx, conv.ConversationID, "third")
	require.NoError(t, err)
	collect(t, events)
}

func TestStreamReplyUpstreamFailureFreesSession(t *testing.T) {
	failing := llm.NewMockClient()
	failing.Err = errors.New("upstream exploded")
	svc, db := newTestService(t, failing, nil)
	conv := startConversation(t, svc)
	ctx := context.Background()

	events, err := svc.StreamReply(ctx, conv.ConversationID, "hello")
	require.NoError(t, err)
	got := collect(t, events)

	require.Len(t, got, 1)
	assert.Equal(t, domain.StreamEventError, got[0].Type)
	assert.Contains(t, got[0].Detail, "upstream")

	// No partial turn was persisted.
	msgs, err := db.ListMessages(ctx, conv.ConversationID, 0, "")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// A retry on the same conversation is accepted.
	failing.Err = nil
	events, err = svc.StreamReply(ctx, conv.ConversationID, "hello again")
	require.NoError(t, err)
	got = collect(t, events)
	assert.Equal(t, domain.StreamEventDone, got[len(got)-1].Type)
}

func TestStreamReplyUpstreamTimeout(t *testing.T) {
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig()
	cfg.LLMTimeout = 50 * time.Millisecond
	gate := newGateClient() // never released: the model hangs
	assembler := contextwindow.NewAssembler(db, nil, nil, nil, contextwindow.Options{}, nil)
	svc := service.New(db, gate, assembler, nil, cfg, nil)
	conv := startConversation(t, svc)
	ctx := context.Background()

	events, err := svc.StreamReply(ctx, conv.ConversationID, "hello")
	require.NoError(t, err)
	got := collect(t, events)

	require.Len(t, got, 1)
	assert.Equal(t, domain.StreamEventError, got[0].Type)
	assert.Contains(t, got[0].Detail, "timed out")

	msgs, err := db.ListMessages(ctx, conv.ConversationID, 0, "")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	// Timeout released the session.
	close(gate.release)
	events, err = svc.StreamReply(ctx, conv.ConversationID, "again")
	require.NoError(t, err)
	collect(t, events)
}

func TestStreamReplyClientCancellation(t *testing.T) {
	gate := newGateClient()
	svc, db := newTestService(t, gate, nil)
	conv := startConversation(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := svc.StreamReply(ctx, conv.ConversationID, "hello")
	require.NoError(t, err)
	<-gate.started
	cancel()

	// The channel closes without a terminal event: nobody is listening.
	got := collect(t, events)
	for _, ev := range got {
		assert.False(t, ev.Terminal())
	}

	// Nothing persisted, and the conversation accepts a new stream.
	msgs, err := db.ListMessages(context.Background(), conv.ConversationID, 0, "")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	close(gate.release)
	require.Eventually(t, func() bool {
		events, err := svc.StreamReply(context.Background(), conv.ConversationID, "retry")
		if err != nil {
			return false
		}
		for range events {
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

// failingStore makes exchange persistence fail while everything else works.
type failingStore struct {
	*store.SQLiteStore
}

func (f *failingStore) AppendExchange(ctx context.Context, conversationID, userContent, assistantContent string) (*domain.Message, *domain.Message, int, error) {
	return nil, nil, 0, errors.New("disk full")
}

func TestStreamReplyPersistFailureCarriesGeneratedText(t *testing.T) {
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock := llm.NewMockClient()
	mock.Response = "the reply that must not vanish"
	assembler := contextwindow.NewAssembler(db, nil, nil, nil, contextwindow.Options{}, nil)
	svc := service.New(&failingStore{db}, mock, assembler, nil, testConfig(), nil)
	conv := startConversation(t, svc)

	events, err := svc.StreamReply(context.Background(), conv.ConversationID, "hello")
	require.NoError(t, err)
	got := collect(t, events)

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, domain.StreamEventError, last.Type)
	assert.Contains(t, last.Detail, "disk full")
	assert.Contains(t, last.Detail, mock.Response)
}

// countingQueue records enqueued extraction jobs.
type countingQueue struct {
	jobs []extraction.Job
}

func (c *countingQueue) Enqueue(job extraction.Job) bool {
	c.jobs = append(c.jobs, job)
	return true
}

func TestExtractionTriggersOnIntervalBoundaries(t *testing.T) {
	queue := &countingQueue{}
	svc, _ := newTestService(t, llm.NewMockClient(), queue)
	conv := startConversation(t, svc)
	ctx := context.Background()

	// 15 exchanges = 30 messages; with the default interval of 10 the
	// trigger fires at counts 10, 20 and 30.
	for i := 0; i < 15; i++ {
		events, err := svc.StreamReply(ctx, conv.ConversationID, "turn")
		require.NoError(t, err)
		collect(t, events)
	}

	require.Len(t, queue.jobs, 3)
	for _, job := range queue.jobs {
		assert.Equal(t, conv.ConversationID, job.ConversationID)
		assert.Equal(t, "alice", job.SubjectID)
		assert.Len(t, job.Messages, 10)
	}
}

func TestEnqueueReplyPersistsInBackground(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = "queued answer"
	svc, db := newTestService(t, mock, nil)
	conv := startConversation(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.EnqueueReply(ctx, conv.ConversationID, "hello"))

	require.Eventually(t, func() bool {
		msgs, err := db.ListMessages(ctx, conv.ConversationID, 0, "")
		return err == nil && len(msgs) == 2
	}, 3*time.Second, 20*time.Millisecond)

	msgs, err := db.ListMessages(ctx, conv.ConversationID, 0, "")
	require.NoError(t, err)
	assert.Equal(t, "queued answer", msgs[1].Content)
}

func TestClearConversationRejectedWhileStreaming(t *testing.T) {
	gate := newGateClient()
	svc, _ := newTestService(t, gate, nil)
	conv := startConversation(t, svc)
	ctx := context.Background()

	events, err := svc.StreamReply(ctx, conv.ConversationID, "hello")
	require.NoError(t, err)
	<-gate.started

	err = svc.ClearConversation(ctx, conv.ConversationID)
	assert.True(t, errors.Is(err, domain.ErrStreamActive))

	close(gate.release)
	collect(t, events)

	require.NoError(t, svc.ClearConversation(ctx, conv.ConversationID))
}
