package handlers

import (
	"errors"
	"net/http"

	"auction-chat/internal/domain"
	"auction-chat/internal/services"
	"auction-chat/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SessionHandler exposes the sync engine to the local UI over JSON.
type SessionHandler struct {
	engine *services.SyncEngine
	log    logger.Logger
}

func NewSessionHandler(engine *services.SyncEngine, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		engine: engine,
		log:    log,
	}
}

func (h *SessionHandler) Register(g *echo.Group) {
	g.GET("/conversations", h.ListConversations)
	g.POST("/conversations/:id/open", h.OpenConversation)
	g.POST("/conversations/close", h.CloseConversation)
	g.GET("/timeline", h.Timeline)
	g.POST("/messages", h.SendMessage)
	g.POST("/typing", h.Typing)
	g.GET("/unread", h.Unread)
	g.GET("/status", h.SessionStatus)
	g.POST("/visibility", h.SetVisibility)
	g.POST("/toast/dismiss", h.DismissToast)
}

func (h *SessionHandler) ListConversations(c echo.Context) error {
	conversations, err := h.engine.Conversations(c.Request().Context())
	if err != nil {
		h.log.Error("Failed to list conversations", "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to list conversations"})
	}

	return c.JSON(http.StatusOK, conversations)
}

func (h *SessionHandler) OpenConversation(c echo.Context) error {
	conversationID := c.Param("id")
	if conversationID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "conversation id required"})
	}

	if err := h.engine.OpenConversation(c.Request().Context(), conversationID); err != nil {
		h.log.Error("Failed to open conversation", "conversation_id", conversationID, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "failed to open conversation"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"messages":        h.engine.Timeline(),
	})
}

func (h *SessionHandler) CloseConversation(c echo.Context) error {
	h.engine.CloseConversation()
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) Timeline(c echo.Context) error {
	return c.JSON(http.StatusOK, h.engine.Timeline())
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

func (h *SessionHandler) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text required"})
	}

	msg, err := h.engine.SendMessage(c.Request().Context(), req.Text)
	if err != nil {
		var sendErr *domain.SendFailedError
		if errors.As(err, &sendErr) {
			// The optimistic entry has been rolled back; hand the original
			// text back so the UI can restore the input.
			return c.JSON(http.StatusBadGateway, map[string]string{
				"error": "send failed",
				"text":  sendErr.Text,
			})
		}
		if errors.Is(err, domain.ErrNoOpenConversation) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "no open conversation"})
		}

		h.log.Error("Failed to send message", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to send message"})
	}

	return c.JSON(http.StatusCreated, msg)
}

func (h *SessionHandler) Typing(c echo.Context) error {
	h.engine.NotifyTyping()
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) Unread(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"counts": h.engine.UnreadCounts(),
		"total":  h.engine.TotalUnread(),
	})
}

func (h *SessionHandler) SessionStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"connection":     h.engine.Status().String(),
		"reconciliation": h.engine.BufferState().String(),
		"typing_users":   h.engine.TypingUsers(),
		"toast":          h.engine.CurrentToast(),
		"total_unread":   h.engine.TotalUnread(),
	})
}

type VisibilityRequest struct {
	Visible bool `json:"visible"`
}

func (h *SessionHandler) SetVisibility(c echo.Context) error {
	var req VisibilityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	h.engine.SetVisible(req.Visible)
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) DismissToast(c echo.Context) error {
	h.engine.DismissToast()
	return c.NoContent(http.StatusNoContent)
}
