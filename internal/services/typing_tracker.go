package services

import (
	"sort"
	"sync"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"
)

// TypingTracker debounces outbound typing signals and tracks which other
// participants are typing in the active room. Every entry decays after the
// configured TTL unless renewed.
type TypingTracker struct {
	conn   domain.ConnectionManager
	userID string
	ttl    time.Duration
	log    logger.Logger

	onChange func()

	mu        sync.Mutex
	stopTimer *time.Timer            // local typing=false emission
	remote    map[string]*time.Timer // sender id -> expiry timer
}

func NewTypingTracker(conn domain.ConnectionManager, userID string, ttl time.Duration, log logger.Logger) *TypingTracker {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}

	return &TypingTracker{
		conn:   conn,
		userID: userID,
		ttl:    ttl,
		log:    log,
		remote: make(map[string]*time.Timer),
	}
}

// SetOnChange registers a callback invoked when the set of typing users
// changes. Must be called before inbound signals are routed here.
func (t *TypingTracker) SetOnChange(fn func()) {
	t.onChange = fn
}

// NotifyTyping emits typing=true immediately and schedules typing=false
// after the TTL; each call resets the decay timer.
func (t *TypingTracker) NotifyTyping() {
	t.mu.Lock()
	if t.stopTimer != nil {
		t.stopTimer.Stop()
	}
	t.stopTimer = time.AfterFunc(t.ttl, t.emitStopped)
	t.mu.Unlock()

	t.emit(true)
}

// StopTyping cancels the decay timer and emits typing=false immediately,
// used when the input is cleared by a send.
func (t *TypingTracker) StopTyping() {
	t.mu.Lock()
	if t.stopTimer == nil {
		t.mu.Unlock()
		return
	}
	t.stopTimer.Stop()
	t.stopTimer = nil
	t.mu.Unlock()

	t.emit(false)
}

// HandleRemote applies an inbound typing signal from another participant.
func (t *TypingTracker) HandleRemote(p *domain.TypingPayload) {
	if p.UserID == "" || p.UserID == t.userID {
		return
	}

	t.mu.Lock()
	if p.IsTyping {
		if timer, ok := t.remote[p.UserID]; ok {
			timer.Stop()
		}
		userID := p.UserID
		t.remote[userID] = time.AfterFunc(t.ttl, func() {
			t.expire(userID)
		})
	} else {
		if timer, ok := t.remote[p.UserID]; ok {
			timer.Stop()
			delete(t.remote, p.UserID)
		}
	}
	t.mu.Unlock()

	t.notify()
}

func (t *TypingTracker) TypingUsers() []string {
	t.mu.Lock()
	users := make([]string, 0, len(t.remote))
	for id := range t.remote {
		users = append(users, id)
	}
	t.mu.Unlock()

	sort.Strings(users)
	return users
}

// Clear drops all remote typing state, used on conversation switch.
func (t *TypingTracker) Clear() {
	t.mu.Lock()
	for id, timer := range t.remote {
		timer.Stop()
		delete(t.remote, id)
	}
	t.mu.Unlock()

	t.notify()
}

func (t *TypingTracker) Close() {
	t.mu.Lock()
	if t.stopTimer != nil {
		t.stopTimer.Stop()
		t.stopTimer = nil
	}
	for id, timer := range t.remote {
		timer.Stop()
		delete(t.remote, id)
	}
	t.mu.Unlock()
}

func (t *TypingTracker) expire(userID string) {
	t.mu.Lock()
	delete(t.remote, userID)
	t.mu.Unlock()

	t.notify()
}

func (t *TypingTracker) emitStopped() {
	t.mu.Lock()
	t.stopTimer = nil
	t.mu.Unlock()

	t.emit(false)
}

func (t *TypingTracker) emit(isTyping bool) {
	err := t.conn.Emit(domain.EventUserTyping, &domain.TypingPayload{
		UserID:   t.userID,
		IsTyping: isTyping,
	})
	if err != nil {
		t.log.Debug("Failed to emit typing signal", "is_typing", isTyping, "error", err)
	}
}

func (t *TypingTracker) notify() {
	if t.onChange != nil {
		t.onChange()
	}
}
