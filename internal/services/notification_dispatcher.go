package services

import (
	"sync"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"
)

// NotificationDispatcher turns qualifying events into user-visible toasts,
// sound cues and native notifications. Only one toast is shown at a time; a
// new arrival replaces the current one. All side effects are best-effort.
type NotificationDispatcher struct {
	notifier      domain.Notifier
	toastTTL      time.Duration
	isOpenVisible func(conversationID string) bool
	log           logger.Logger

	mu      sync.Mutex
	current *domain.Toast
	expiry  *time.Timer
}

func NewNotificationDispatcher(
	notifier domain.Notifier,
	toastTTL time.Duration,
	isOpenVisible func(conversationID string) bool,
	log logger.Logger,
) *NotificationDispatcher {
	if toastTTL <= 0 {
		toastTTL = 4 * time.Second
	}

	return &NotificationDispatcher{
		notifier:      notifier,
		toastTTL:      toastTTL,
		isOpenVisible: isOpenVisible,
		log:           log,
	}
}

func (d *NotificationDispatcher) Dispatch(event *domain.NotificationEvent) {
	if d.isOpenVisible != nil && d.isOpenVisible(event.ConversationID) {
		d.log.Debug("Notification suppressed, conversation open and visible",
			"conversation_id", event.ConversationID)
		return
	}

	toast := &domain.Toast{
		NotificationEvent: *event,
		ShownAt:           time.Now(),
	}

	d.mu.Lock()
	if d.expiry != nil {
		d.expiry.Stop()
	}
	d.current = toast
	d.expiry = time.AfterFunc(d.toastTTL, d.expire)
	d.mu.Unlock()

	if err := d.notifier.ShowToast(toast); err != nil {
		d.log.Warn("Failed to show toast", "error", err)
	}
	if err := d.notifier.PlayCue(); err != nil {
		d.log.Debug("Failed to play sound cue", "error", err)
	}
	if err := d.notifier.PushNative(toast); err != nil {
		d.log.Debug("Failed to push native notification", "error", err)
	}
}

func (d *NotificationDispatcher) Dismiss() {
	d.mu.Lock()
	if d.expiry != nil {
		d.expiry.Stop()
		d.expiry = nil
	}
	d.current = nil
	d.mu.Unlock()

	if err := d.notifier.ClearToast(); err != nil {
		d.log.Debug("Failed to clear toast", "error", err)
	}
}

func (d *NotificationDispatcher) Current() *domain.Toast {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *NotificationDispatcher) expire() {
	d.mu.Lock()
	d.current = nil
	d.expiry = nil
	d.mu.Unlock()

	if err := d.notifier.ClearToast(); err != nil {
		d.log.Debug("Failed to clear expired toast", "error", err)
	}
}
