package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"
)

// ChatAPIClient talks to the marketplace chat REST collaborator.
type ChatAPIClient struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

func NewChatAPIClient(baseURL string, timeout time.Duration, log logger.Logger) *ChatAPIClient {
	return &ChatAPIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func (c *ChatAPIClient) ListConversations(ctx context.Context) ([]*domain.Conversation, error) {
	var conversations []*domain.Conversation
	if err := c.doGet(ctx, "/conversations", &conversations); err != nil {
		return nil, err
	}
	return conversations, nil
}

func (c *ChatAPIClient) GetMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	var messages []*domain.Message
	path := fmt.Sprintf("/conversations/%s/messages", conversationID)
	if err := c.doGet(ctx, path, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *ChatAPIClient) PostMessage(ctx context.Context, conversationID, senderID, text string) (*domain.Message, error) {
	body := map[string]string{
		"senderId": senderID,
		"text":     text,
	}

	var created domain.Message
	path := fmt.Sprintf("/conversations/%s/messages", conversationID)
	if err := c.doPost(ctx, path, body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *ChatAPIClient) doGet(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, out)
}

func (c *ChatAPIClient) doPost(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *ChatAPIClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("chat api %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
