package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopline/mentor/internal/config"
	"github.com/loopline/mentor/internal/contextwindow"
	"github.com/loopline/mentor/internal/domain"
	"github.com/loopline/mentor/internal/llm"
	"github.com/loopline/mentor/internal/service"
	"github.com/loopline/mentor/internal/store"
)

func newTestServer(t *testing.T, client llm.LLMClient) (*echo.Echo, *store.SQLiteStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		LLMModel:           "mock",
		LLMTimeout:         5 * time.Second,
		ContextTokenBudget: 6000,
		RecentTurnCount:    8,
		ExtractionInterval: 10,
	}
	assembler := contextwindow.NewAssembler(db, nil, nil, nil, contextwindow.Options{}, nil)
	svc := service.New(db, client, assembler, nil, cfg, nil)

	e := echo.New()
	NewHandler(svc).RegisterRoutes(e)
	return e, db
}

func doJSON(t *testing.T, e *echo.Echo, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func createConversation(t *testing.T, e *echo.Echo) domain.Conversation {
	t.Helper()
	rec := doJSON(t, e, http.MethodPost, "/v1/conversations", map[string]string{
		"subject_id": "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var conv domain.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	return conv
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec := doJSON(t, e, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateConversationDefaultsPersona(t *testing.T) {
	e, _ := newTestServer(t, nil)
	conv := createConversation(t, e)
	assert.Equal(t, domain.PersonaMentor, conv.Persona)
	assert.Equal(t, "alice", conv.SubjectID)
	assert.NotEmpty(t, conv.ConversationID)

	// Same pair resolves to the same conversation.
	again := createConversation(t, e)
	assert.Equal(t, conv.ConversationID, again.ConversationID)
}

func TestCreateConversationRejectsUnknownPersona(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec := doJSON(t, e, http.MethodPost, "/v1/conversations", map[string]string{
		"subject_id": "alice",
		"persona":    "pirate",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetConversationNotFound(t *testing.T) {
	e, _ := newTestServer(t, nil)
	rec := doJSON(t, e, http.MethodGet, "/v1/conversations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func parseSSE(t *testing.T, body string) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestStreamMessage(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = "streamed reply body"
	e, db := newTestServer(t, mock)
	conv := createConversation(t, e)

	rec := doJSON(t, e, http.MethodPost,
		fmt.Sprintf("/v1/conversations/%s/messages/stream", conv.ConversationID),
		map[string]string{"content": "hello"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/event-stream")
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	events := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, domain.StreamEventDone, last.Type)
	assert.NotEmpty(t, last.MessageID)

	var streamed strings.Builder
	for _, ev := range events[:len(events)-1] {
		streamed.WriteString(ev.Content)
	}
	assert.Equal(t, mock.Response, streamed.String())

	msgs, err := db.ListMessages(context.Background(), conv.ConversationID, 0, "")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestStreamMessageErrorsBeforeStream(t *testing.T) {
	e, _ := newTestServer(t, llm.NewMockClient())

	rec := doJSON(t, e, http.MethodPost, "/v1/conversations/missing/messages/stream",
		map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	conv := createConversation(t, e)
	rec = doJSON(t, e, http.MethodPost,
		fmt.Sprintf("/v1/conversations/%s/messages/stream", conv.ConversationID),
		map[string]string{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamMessageWithoutCredential(t *testing.T) {
	e, _ := newTestServer(t, nil)
	conv := createConversation(t, e)

	rec := doJSON(t, e, http.MethodPost,
		fmt.Sprintf("/v1/conversations/%s/messages/stream", conv.ConversationID),
		map[string]string{"content": "hello"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Reads still work while chat is disabled.
	rec = doJSON(t, e, http.MethodGet,
		fmt.Sprintf("/v1/conversations/%s/messages", conv.ConversationID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEnqueueMessage(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Response = "async reply"
	e, db := newTestServer(t, mock)
	conv := createConversation(t, e)

	rec := doJSON(t, e, http.MethodPost,
		fmt.Sprintf("/v1/conversations/%s/messages", conv.ConversationID),
		map[string]string{"content": "hello"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		msgs, err := db.ListMessages(context.Background(), conv.ConversationID, 0, "")
		return err == nil && len(msgs) == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestEditMessage(t *testing.T) {
	mock := llm.NewMockClient()
	e, db := newTestServer(t, mock)
	conv := createConversation(t, e)

	userMsg, assistantMsg, _, err := db.AppendExchange(context.Background(), conv.ConversationID, "original", "reply")
	require.NoError(t, err)

	rec := doJSON(t, e, http.MethodPatch, "/v1/messages/"+userMsg.MessageID,
		map[string]string{"content": "revised"})
	require.Equal(t, http.StatusOK, rec.Code)
	var edited domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &edited))
	assert.Equal(t, "revised", edited.Content)
	assert.Equal(t, userMsg.Seq, edited.Seq)

	rec = doJSON(t, e, http.MethodPatch, "/v1/messages/"+assistantMsg.MessageID,
		map[string]string{"content": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, e, http.MethodPatch, "/v1/messages/missing",
		map[string]string{"content": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMessagesPaging(t *testing.T) {
	e, db := newTestServer(t, nil)
	conv := createConversation(t, e)

	for i := 0; i < 3; i++ {
		_, _, _, err := db.AppendExchange(context.Background(), conv.ConversationID, "q", "a")
		require.NoError(t, err)
	}

	rec := doJSON(t, e, http.MethodGet,
		fmt.Sprintf("/v1/conversations/%s/messages?limit=4", conv.ConversationID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []domain.Message `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 4)
	assert.True(t, resp.HasMore)
}

func TestClearConversationEndpoint(t *testing.T) {
	e, db := newTestServer(t, nil)
	conv := createConversation(t, e)

	_, _, _, err := db.AppendExchange(context.Background(), conv.ConversationID, "q", "a")
	require.NoError(t, err)

	rec := doJSON(t, e, http.MethodDelete,
		fmt.Sprintf("/v1/conversations/%s/messages", conv.ConversationID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	msgs, err := db.ListMessages(context.Background(), conv.ConversationID, 0, "")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
