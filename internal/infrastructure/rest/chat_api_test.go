package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newTestClient(t *testing.T, handler http.Handler) *ChatAPIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewChatAPIClient(srv.URL, 2*time.Second, logger.NewWithLevel(zapcore.ErrorLevel))
}

func TestListConversations(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/conversations", r.URL.Path)

		json.NewEncoder(w).Encode([]*domain.Conversation{
			{ID: "conv-1", Title: "Vintage camera", Seller: domain.Sender{ID: "user-2", Name: "Bob"}},
		})
	}))

	conversations, err := client.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, conversations, 1)
	assert.Equal(t, "conv-1", conversations[0].ID)
	assert.Equal(t, "Vintage camera", conversations[0].Title)
}

func TestGetMessages(t *testing.T) {
	at := time.Now().UTC().Truncate(time.Second)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/conversations/conv-1/messages", r.URL.Path)

		json.NewEncoder(w).Encode([]*domain.Message{
			{ID: "m1", Text: "hi", Sender: domain.Sender{ID: "user-2"}, CreatedAt: at, ConversationID: "conv-1"},
		})
	}))

	messages, err := client.GetMessages(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)
	assert.True(t, messages[0].CreatedAt.Equal(at))
}

func TestPostMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conversations/conv-1/messages", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body["senderId"])
		assert.Equal(t, "hello", body["text"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&domain.Message{
			ID:             "srv-1",
			Text:           body["text"],
			Sender:         domain.Sender{ID: body["senderId"]},
			CreatedAt:      time.Now(),
			ConversationID: "conv-1",
		})
	}))

	msg, err := client.PostMessage(context.Background(), "conv-1", "user-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", msg.ID)
	assert.Equal(t, "hello", msg.Text)
}

func TestErrorStatusIncludesBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conversation not found", http.StatusNotFound)
	}))

	_, err := client.GetMessages(context.Background(), "conv-404")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Contains(t, err.Error(), "conversation not found")
}

func TestContextCancellation(t *testing.T) {
	started := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := client.ListConversations(ctx)
	assert.Error(t, err)
}
