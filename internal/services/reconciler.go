package services

import (
	"context"
	"sync"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"
	"auction-chat/pkg/utils"
)

// MessageBuffer reconciles the timeline of the single open conversation
// across three sources: authoritative snapshots, push-delivered messages
// and locally-optimistic sends.
//
// The buffer runs a small state machine instead of a raw boolean gate:
//
//	Idle -> OptimisticPending -> Reconciling -> Idle
//
// Snapshots only replace the timeline in Idle (or while the timeline is
// empty); in any other state a pending edit has not settled yet and the
// snapshot is discarded. Reconciling decays back to Idle after a grace
// delay so the next periodic refetch is accepted again.
type MessageBuffer struct {
	api        domain.ChatAPI
	sender     domain.Sender
	graceDelay time.Duration
	log        logger.Logger
	onChange   func()

	mu             sync.Mutex
	conversationID string
	messages       []*domain.Message
	state          domain.BufferState
	pendingSends   int
	graceTimer     *time.Timer
	epoch          int // bumped on Open/Close; stale timers and confirms are ignored
}

func NewMessageBuffer(api domain.ChatAPI, sender domain.Sender, graceDelay time.Duration, log logger.Logger) *MessageBuffer {
	if graceDelay <= 0 {
		graceDelay = time.Second
	}

	return &MessageBuffer{
		api:        api,
		sender:     sender,
		graceDelay: graceDelay,
		log:        log,
		state:      domain.BufferIdle,
	}
}

// SetOnChange registers a callback invoked after every timeline mutation.
// Must be called before the buffer is used.
func (b *MessageBuffer) SetOnChange(fn func()) {
	b.onChange = fn
}

// Open resets the buffer for a newly opened conversation. Pending grace
// timers and in-flight send confirmations for the previous conversation
// are invalidated.
func (b *MessageBuffer) Open(conversationID string) {
	b.mu.Lock()
	b.stopGraceTimerLocked()
	b.conversationID = conversationID
	b.messages = nil
	b.state = domain.BufferIdle
	b.pendingSends = 0
	b.epoch++
	b.mu.Unlock()

	b.notify()
}

func (b *MessageBuffer) Close() {
	b.Open("")
}

func (b *MessageBuffer) ConversationID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversationID
}

func (b *MessageBuffer) State() domain.BufferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *MessageBuffer) Messages() []*domain.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*domain.Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// ApplySnapshot replaces the timeline with an authoritative snapshot when
// the gate allows it. Snapshots for a conversation other than the open one
// are dropped.
func (b *MessageBuffer) ApplySnapshot(conversationID string, snapshot []*domain.Message) {
	b.mu.Lock()
	if conversationID == "" || conversationID != b.conversationID {
		b.mu.Unlock()
		return
	}

	if b.state != domain.BufferIdle && len(b.messages) > 0 {
		b.log.Debug("Snapshot discarded, reconciliation pending",
			"conversation_id", conversationID, "state", b.state.String())
		b.mu.Unlock()
		return
	}

	b.messages = make([]*domain.Message, len(snapshot))
	copy(b.messages, snapshot)
	b.mu.Unlock()

	b.notify()
}

// Send appends an optimistic message immediately, then persists it through
// the chat API. On success the optimistic entry is replaced one-to-one by
// the authoritative message; on failure it is removed and the original text
// travels back in a SendFailedError.
func (b *MessageBuffer) Send(ctx context.Context, text string) (*domain.Message, error) {
	b.mu.Lock()
	if b.conversationID == "" {
		b.mu.Unlock()
		return nil, domain.ErrNoOpenConversation
	}

	conversationID := b.conversationID
	epoch := b.epoch

	optimistic := &domain.Message{
		ID:             utils.TempMessageID(),
		Text:           text,
		Sender:         b.sender,
		CreatedAt:      time.Now(),
		ConversationID: conversationID,
		Pending:        true,
	}

	b.messages = append(b.messages, optimistic)
	b.pendingSends++
	b.state = domain.BufferOptimisticPending
	b.stopGraceTimerLocked()
	b.mu.Unlock()

	b.notify()

	confirmed, err := b.api.PostMessage(ctx, conversationID, b.sender.ID, text)
	if err != nil {
		b.rollback(epoch, optimistic.ID)
		b.log.Error("Send failed, optimistic entry rolled back",
			"conversation_id", conversationID, "error", err)
		return nil, &domain.SendFailedError{Text: text, Err: err}
	}

	b.confirm(epoch, optimistic.ID, confirmed)
	return confirmed, nil
}

// HandlePush merges a push-delivered message into the timeline. Returns
// false when the message was a duplicate of an existing entry.
func (b *MessageBuffer) HandlePush(msg *domain.Message) bool {
	b.mu.Lock()
	if msg.ConversationID == "" || msg.ConversationID != b.conversationID {
		b.mu.Unlock()
		return false
	}

	for _, existing := range b.messages {
		if sameMessage(existing, msg) {
			b.mu.Unlock()
			return false
		}
	}

	b.messages = append(b.messages, msg)

	// Close the gate briefly: the same message may arrive again via the
	// forced refetch triggered by this event.
	if b.state == domain.BufferIdle || b.state == domain.BufferReconciling {
		b.state = domain.BufferReconciling
		b.scheduleGraceRestoreLocked(b.epoch)
	}
	b.mu.Unlock()

	b.notify()
	return true
}

func (b *MessageBuffer) confirm(epoch int, tempID string, confirmed *domain.Message) {
	b.mu.Lock()
	if epoch != b.epoch {
		// Conversation switched mid-flight; the optimistic entry is gone.
		b.mu.Unlock()
		return
	}

	for i, msg := range b.messages {
		if msg.ID == tempID {
			b.messages[i] = confirmed
			break
		}
	}

	b.pendingSends--
	if b.pendingSends <= 0 {
		b.pendingSends = 0
		b.state = domain.BufferReconciling
		b.scheduleGraceRestoreLocked(epoch)
	}
	b.mu.Unlock()

	b.notify()
}

func (b *MessageBuffer) rollback(epoch int, tempID string) {
	b.mu.Lock()
	if epoch != b.epoch {
		b.mu.Unlock()
		return
	}

	for i, msg := range b.messages {
		if msg.ID == tempID {
			b.messages = append(b.messages[:i], b.messages[i+1:]...)
			break
		}
	}

	b.pendingSends--
	if b.pendingSends <= 0 {
		b.pendingSends = 0
		b.state = domain.BufferIdle
	}
	b.mu.Unlock()

	b.notify()
}

func (b *MessageBuffer) scheduleGraceRestoreLocked(epoch int) {
	b.stopGraceTimerLocked()
	b.graceTimer = time.AfterFunc(b.graceDelay, func() {
		b.mu.Lock()
		if b.epoch == epoch && b.state == domain.BufferReconciling {
			b.state = domain.BufferIdle
		}
		b.mu.Unlock()
	})
}

func (b *MessageBuffer) stopGraceTimerLocked() {
	if b.graceTimer != nil {
		b.graceTimer.Stop()
		b.graceTimer = nil
	}
}

func (b *MessageBuffer) notify() {
	if b.onChange != nil {
		b.onChange()
	}
}

// sameMessage is the duplicate comparator: server id equality when both
// sides carry one, otherwise the (createdAt, text, senderId) triple. Push
// deliveries carry no server id, so the triple is the only match for them.
func sameMessage(a, b *domain.Message) bool {
	if a.ID != "" && b.ID != "" && a.ID == b.ID {
		return true
	}
	return a.CreatedAt.Equal(b.CreatedAt) && a.Text == b.Text && a.Sender.ID == b.Sender.ID
}
