package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"

	"github.com/robfig/cron/v3"
)

type SyncEngineConfig struct {
	UserID          string
	UserName        string
	RefetchInterval time.Duration
}

// SyncEngine is the session facade. It wires the bus connection, room
// registry, reconciliation buffer, unread counters, typing state and the
// notification dispatcher, and publishes EngineEvents to UI subscribers.
type SyncEngine struct {
	cfg        SyncEngineConfig
	conn       domain.ConnectionManager
	rooms      domain.RoomRegistry
	buffer     *MessageBuffer
	unread     domain.UnreadTracker
	dispatcher *NotificationDispatcher
	typing     *TypingTracker
	snapshots  domain.SnapshotSource
	api        domain.ChatAPI
	log        logger.Logger
	cron       *cron.Cron

	// runCtx bounds background refetches; cancelled by Stop.
	runCtx    context.Context
	runCancel context.CancelFunc

	mu         sync.RWMutex
	openConv   string
	visible    bool
	convTitles map[string]string
	subs       map[int]chan *domain.EngineEvent
	nextSub    int

	unsubs []func()
}

func NewSyncEngine(
	cfg SyncEngineConfig,
	conn domain.ConnectionManager,
	rooms domain.RoomRegistry,
	buffer *MessageBuffer,
	unread domain.UnreadTracker,
	dispatcher *NotificationDispatcher,
	typing *TypingTracker,
	snapshots domain.SnapshotSource,
	api domain.ChatAPI,
	log logger.Logger,
) *SyncEngine {
	if cfg.RefetchInterval <= 0 {
		cfg.RefetchInterval = 10 * time.Second
	}

	e := &SyncEngine{
		cfg:        cfg,
		conn:       conn,
		rooms:      rooms,
		buffer:     buffer,
		unread:     unread,
		dispatcher: dispatcher,
		typing:     typing,
		snapshots:  snapshots,
		api:        api,
		log:        log,
		cron:       cron.New(),
		convTitles: make(map[string]string),
		subs:       make(map[int]chan *domain.EngineEvent),
	}
	e.runCtx, e.runCancel = context.WithCancel(context.Background())

	buffer.SetOnChange(e.publishTimeline)
	typing.SetOnChange(e.publishTyping)

	return e
}

// Start registers bus handlers, starts the periodic authoritative refetch
// and establishes the connection.
func (e *SyncEngine) Start(ctx context.Context) error {
	e.unsubs = append(e.unsubs,
		e.conn.On(domain.EventNewChatMessage, e.handleNewChatMessage),
		e.conn.On(domain.EventChatNotification, e.handleChatNotification),
		e.conn.On(domain.EventUserTyping, e.handleUserTyping),
		e.conn.On(domain.EventError, e.handleBusError),
		e.conn.OnStatus(e.handleStatus),
	)

	spec := fmt.Sprintf("@every %s", e.cfg.RefetchInterval)
	if _, err := e.cron.AddFunc(spec, e.refetchOpenConversation); err != nil {
		return err
	}
	e.cron.Start()

	return e.conn.Connect(ctx, e.cfg.UserID)
}

func (e *SyncEngine) Stop() {
	e.runCancel()
	e.cron.Stop()

	for _, unsub := range e.unsubs {
		unsub()
	}
	e.unsubs = nil

	e.typing.Close()
	e.dispatcher.Dismiss()
	e.buffer.Close()

	if err := e.conn.Disconnect(); err != nil {
		e.log.Error("Failed to disconnect", "error", err)
	}

	e.mu.Lock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.mu.Unlock()
}

// Subscribe returns a channel of engine events and an unsubscribe func.
// Slow subscribers lose events rather than blocking the engine.
func (e *SyncEngine) Subscribe() (<-chan *domain.EngineEvent, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextSub++
	id := e.nextSub
	ch := make(chan *domain.EngineEvent, 64)
	e.subs[id] = ch

	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if existing, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(existing)
		}
	}
}

// OpenConversation switches the active conversation: leaves the previous
// room, joins the new one, resets its unread counter and loads the
// authoritative snapshot through the query cache.
func (e *SyncEngine) OpenConversation(ctx context.Context, conversationID string) error {
	e.mu.Lock()
	prev := e.openConv
	e.openConv = conversationID
	e.visible = true
	e.mu.Unlock()

	if prev != "" && prev != conversationID {
		if err := e.rooms.LeaveRoom(domain.RoomKey(prev)); err != nil {
			e.log.Warn("Failed to leave previous room", "conversation_id", prev, "error", err)
		}
	}

	e.typing.Clear()
	e.buffer.Open(conversationID)

	if err := e.rooms.JoinRoom(domain.RoomKey(conversationID)); err != nil {
		return err
	}

	e.unread.Reset(conversationID)
	e.publishUnread()

	snapshot, err := e.snapshots.Snapshot(ctx, conversationID)
	if err != nil {
		e.log.Error("Failed to load conversation snapshot",
			"conversation_id", conversationID, "error", err)
		return err
	}

	e.buffer.ApplySnapshot(conversationID, snapshot)
	return nil
}

// CloseConversation returns the session to the conversation list view.
func (e *SyncEngine) CloseConversation() {
	e.mu.Lock()
	open := e.openConv
	e.openConv = ""
	e.visible = false
	e.mu.Unlock()

	if open == "" {
		return
	}

	if err := e.rooms.LeaveRoom(domain.RoomKey(open)); err != nil {
		e.log.Warn("Failed to leave room", "conversation_id", open, "error", err)
	}

	e.typing.Clear()
	e.buffer.Close()
}

// SetVisible records whether the open conversation is on screen. Unread
// accounting and toast suppression both depend on it.
func (e *SyncEngine) SetVisible(visible bool) {
	e.mu.Lock()
	e.visible = visible
	wasOpen := e.openConv
	e.mu.Unlock()

	if visible && wasOpen != "" {
		e.unread.Reset(wasOpen)
		e.publishUnread()
	}
}

// SendMessage persists a message for the open conversation and fans it out
// on the bus once confirmed. On failure the rolled-back text is published
// to subscribers so the input can be restored.
func (e *SyncEngine) SendMessage(ctx context.Context, text string) (*domain.Message, error) {
	e.typing.StopTyping()

	msg, err := e.buffer.Send(ctx, text)
	if err != nil {
		if sendErr, ok := err.(*domain.SendFailedError); ok {
			e.publish(domain.EngineSendFailed, map[string]string{"text": sendErr.Text})
		}
		return nil, err
	}

	payload := &domain.SendMessagePayload{
		RoomID:   domain.RoomKey(msg.ConversationID),
		SenderID: e.cfg.UserID,
		Text:     msg.Text,
	}
	if err := e.conn.Emit(domain.EventSendMessage, payload); err != nil {
		// Fan-out is best-effort: the message is persisted and will reach
		// the peer on their next refetch.
		e.log.Warn("Realtime fan-out failed", "conversation_id", msg.ConversationID, "error", err)
	}

	return msg, nil
}

func (e *SyncEngine) NotifyTyping() {
	e.typing.NotifyTyping()
}

func (e *SyncEngine) TypingUsers() []string {
	return e.typing.TypingUsers()
}

func (e *SyncEngine) Timeline() []*domain.Message {
	return e.buffer.Messages()
}

func (e *SyncEngine) UnreadCounts() map[string]int {
	return e.unread.Snapshot()
}

func (e *SyncEngine) TotalUnread() int {
	return e.unread.TotalUnread()
}

func (e *SyncEngine) Status() domain.ConnState {
	return e.conn.Status()
}

func (e *SyncEngine) BufferState() domain.BufferState {
	return e.buffer.State()
}

func (e *SyncEngine) CurrentToast() *domain.Toast {
	return e.dispatcher.Current()
}

func (e *SyncEngine) DismissToast() {
	e.dispatcher.Dismiss()
}

// Conversations lists the session user's conversations and refreshes the
// title cache used for notification toasts.
func (e *SyncEngine) Conversations(ctx context.Context) ([]*domain.Conversation, error) {
	conversations, err := e.api.ListConversations(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	for _, c := range conversations {
		e.convTitles[c.ID] = c.Title
	}
	e.mu.Unlock()

	return conversations, nil
}

// IsOpenAndVisible reports whether conversationID is the open, on-screen
// conversation. Used as the dispatcher's suppression guard.
func (e *SyncEngine) IsOpenAndVisible(conversationID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.openConv != "" && e.openConv == conversationID && e.visible
}

func (e *SyncEngine) handleNewChatMessage(data json.RawMessage) {
	var p domain.NewChatMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		e.log.Warn("Dropping malformed newChatMessage", "error", err)
		return
	}
	if p.ProductID == "" {
		e.log.Warn("Dropping newChatMessage without productId")
		return
	}

	e.mu.RLock()
	open := e.openConv
	visible := e.visible
	title := e.convTitles[p.ProductID]
	e.mu.RUnlock()

	if open != "" && p.ProductID == open {
		msg := &domain.Message{
			Text:           p.Body(),
			Sender:         p.Sender,
			CreatedAt:      p.CreatedAt,
			ConversationID: p.ProductID,
		}
		e.buffer.HandlePush(msg)

		// Force a refetch so the authoritative copy with its server id
		// lands on the next snapshot; the buffer dedups the overlap.
		go e.forceRefetch(p.ProductID)
	}

	if p.Sender.ID == e.cfg.UserID {
		return
	}

	if p.ProductID != open || !visible {
		e.unread.Increment(p.ProductID)
		e.publishUnread()

		e.dispatcher.Dispatch(&domain.NotificationEvent{
			SenderName:        p.Sender.Name,
			Text:              p.Body(),
			ConversationTitle: title,
			ConversationID:    p.ProductID,
			CreatedAt:         p.CreatedAt,
		})
	}
}

func (e *SyncEngine) handleChatNotification(data json.RawMessage) {
	var p domain.ChatNotificationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		e.log.Warn("Dropping malformed chatNotification", "error", err)
		return
	}

	if p.UserID != "" && p.UserID != e.cfg.UserID {
		return
	}
	if p.SenderID == e.cfg.UserID || p.ProductID == "" {
		return
	}

	if !e.IsOpenAndVisible(p.ProductID) {
		e.unread.Increment(p.ProductID)
		e.publishUnread()
	}

	e.dispatcher.Dispatch(&domain.NotificationEvent{
		SenderName:        p.SenderName,
		Text:              p.MessagePreview,
		ConversationTitle: p.ProductTitle,
		ConversationID:    p.ProductID,
		CreatedAt:         p.CreatedAt,
	})
}

func (e *SyncEngine) handleUserTyping(data json.RawMessage) {
	var p domain.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		e.log.Warn("Dropping malformed userTyping", "error", err)
		return
	}

	e.typing.HandleRemote(&p)
}

func (e *SyncEngine) handleBusError(data json.RawMessage) {
	e.log.Warn("Gateway reported channel error", "data", string(data))
}

func (e *SyncEngine) handleStatus(s domain.ConnState) {
	e.publish(domain.EngineConnectivity, map[string]string{"status": s.String()})
}

func (e *SyncEngine) refetchOpenConversation() {
	e.mu.RLock()
	open := e.openConv
	e.mu.RUnlock()

	if open == "" {
		return
	}

	ctx, cancel := context.WithTimeout(e.runCtx, 5*time.Second)
	defer cancel()

	snapshot, err := e.snapshots.Snapshot(ctx, open)
	if err != nil {
		e.log.Warn("Periodic refetch failed", "conversation_id", open, "error", err)
		return
	}

	e.buffer.ApplySnapshot(open, snapshot)
}

func (e *SyncEngine) forceRefetch(conversationID string) {
	ctx, cancel := context.WithTimeout(e.runCtx, 5*time.Second)
	defer cancel()

	if err := e.snapshots.Invalidate(ctx, conversationID); err != nil {
		e.log.Debug("Snapshot invalidation failed", "conversation_id", conversationID, "error", err)
	}

	snapshot, err := e.snapshots.Snapshot(ctx, conversationID)
	if err != nil {
		e.log.Warn("Forced refetch failed", "conversation_id", conversationID, "error", err)
		return
	}

	e.buffer.ApplySnapshot(conversationID, snapshot)
}

func (e *SyncEngine) publishTimeline() {
	e.publish(domain.EngineTimeline, e.buffer.Messages())
}

func (e *SyncEngine) publishTyping() {
	e.publish(domain.EngineTyping, e.typing.TypingUsers())
}

func (e *SyncEngine) publishUnread() {
	e.publish(domain.EngineUnread, map[string]interface{}{
		"counts": e.unread.Snapshot(),
		"total":  e.unread.TotalUnread(),
	})
}

func (e *SyncEngine) publish(eventType domain.EngineEventType, payload interface{}) {
	event := &domain.EngineEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for id, ch := range e.subs {
		select {
		case ch <- event:
		default:
			e.log.Debug("Dropping engine event for slow subscriber", "subscriber", id, "type", eventType)
		}
	}
}
