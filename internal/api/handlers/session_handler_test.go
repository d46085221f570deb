package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/internal/services"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConnManager struct{}

func (s *stubConnManager) Connect(ctx context.Context, userID string) error { return nil }
func (s *stubConnManager) Disconnect() error                                { return nil }
func (s *stubConnManager) Status() domain.ConnState                         { return domain.ConnDisconnected }
func (s *stubConnManager) OnStatus(fn func(domain.ConnState)) func()        { return func() {} }
func (s *stubConnManager) On(event string, fn domain.EventHandler) func()   { return func() {} }
func (s *stubConnManager) Emit(event string, payload interface{}) error     { return nil }

type stubChatAPI struct {
	conversations []*domain.Conversation
	postFn        func(ctx context.Context, conversationID, senderID, text string) (*domain.Message, error)
}

func (s *stubChatAPI) ListConversations(ctx context.Context) ([]*domain.Conversation, error) {
	return s.conversations, nil
}

func (s *stubChatAPI) GetMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	return nil, nil
}

func (s *stubChatAPI) PostMessage(ctx context.Context, conversationID, senderID, text string) (*domain.Message, error) {
	if s.postFn != nil {
		return s.postFn(ctx, conversationID, senderID, text)
	}
	return nil, io.ErrUnexpectedEOF
}

type stubSnapshots struct {
	messages map[string][]*domain.Message
}

func (s *stubSnapshots) Snapshot(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	return s.messages[conversationID], nil
}

func (s *stubSnapshots) Invalidate(ctx context.Context, conversationID string) error { return nil }

type noopNotifier struct{}

func (noopNotifier) ShowToast(t *domain.Toast) error  { return nil }
func (noopNotifier) ClearToast() error                { return nil }
func (noopNotifier) PlayCue() error                   { return nil }
func (noopNotifier) PushNative(t *domain.Toast) error { return nil }

type apiFixture struct {
	echo *echo.Echo
	api  *stubChatAPI
}

func newAPIFixture(t *testing.T, snapshots *stubSnapshots) *apiFixture {
	t.Helper()

	log := testLog()
	conn := &stubConnManager{}
	api := &stubChatAPI{}
	if snapshots == nil {
		snapshots = &stubSnapshots{messages: make(map[string][]*domain.Message)}
	}

	sender := domain.Sender{ID: "user-1", Name: "Alice"}
	buffer := services.NewMessageBuffer(api, sender, 20*time.Millisecond, log)
	typing := services.NewTypingTracker(conn, "user-1", time.Minute, log)
	t.Cleanup(typing.Close)
	rooms := services.NewRoomRegistry(conn, "user-1", log)
	t.Cleanup(rooms.Close)
	dispatcher := services.NewNotificationDispatcher(noopNotifier{}, time.Minute, nil, log)

	engine := services.NewSyncEngine(
		services.SyncEngineConfig{UserID: "user-1", UserName: "Alice"},
		conn, rooms, buffer, services.NewUnreadCounts(), dispatcher, typing, snapshots, api,
		log,
	)

	e := echo.New()
	NewSessionHandler(engine, log).Register(e.Group("/api/v1"))

	return &apiFixture{echo: e, api: api}
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func TestOpenConversation_ReturnsTimeline(t *testing.T) {
	snapshots := &stubSnapshots{messages: map[string][]*domain.Message{
		"conv-1": {
			{ID: "m1", Text: "hi", Sender: domain.Sender{ID: "user-2"}, CreatedAt: time.Now(), ConversationID: "conv-1"},
		},
	}}
	f := newAPIFixture(t, snapshots)

	rec := f.do(http.MethodPost, "/api/v1/conversations/conv-1/open", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ConversationID string            `json:"conversation_id"`
		Messages       []*domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conv-1", body.ConversationID)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "m1", body.Messages[0].ID)
}

func TestListConversations(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.api.conversations = []*domain.Conversation{{ID: "conv-1", Title: "Vintage camera"}}

	rec := f.do(http.MethodGet, "/api/v1/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var conversations []*domain.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conversations))
	require.Len(t, conversations, 1)
	assert.Equal(t, "Vintage camera", conversations[0].Title)
}

func TestSendMessage_Created(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.api.postFn = func(ctx context.Context, conversationID, senderID, text string) (*domain.Message, error) {
		return &domain.Message{ID: "srv-1", Text: text, Sender: domain.Sender{ID: senderID}, ConversationID: conversationID}, nil
	}

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/conversations/conv-1/open", "").Code)

	rec := f.do(http.MethodPost, "/api/v1/messages", `{"text":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "srv-1", msg.ID)
}

func TestSendMessage_FailureReturnsTextForRetry(t *testing.T) {
	f := newAPIFixture(t, nil)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/conversations/conv-1/open", "").Code)

	// The stub API fails every post unless scripted otherwise.
	rec := f.do(http.MethodPost, "/api/v1/messages", `{"text":"lost draft"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "lost draft", body["text"], "rolled-back input must travel back for retry")
}

func TestSendMessage_WithoutOpenConversation(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/v1/messages", `{"text":"orphan"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSendMessage_EmptyTextRejected(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/v1/messages", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnreadEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/v1/unread", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["total"])
}

func TestStatusEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "disconnected", body["connection"])
	assert.Equal(t, "idle", body["reconciliation"])
}

func TestVisibilityEndpoint(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/v1/visibility", `{"visible":false}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
