package domain

import (
	"context"
	"encoding/json"
)

// Transport interfaces
type BusConn interface {
	ReadEvent() (*Envelope, error)
	WriteEvent(event string, payload interface{}) error
	Close() error
}

type BusDialer interface {
	Dial(ctx context.Context) (BusConn, error)
}

type EventHandler func(data json.RawMessage)

// ConnectionManager owns the single persistent bus connection for a session.
// Handler registration returns an unsubscribe func.
type ConnectionManager interface {
	Connect(ctx context.Context, userID string) error
	Disconnect() error
	Status() ConnState
	OnStatus(fn func(ConnState)) func()
	On(event string, fn EventHandler) func()
	Emit(event string, payload interface{}) error
}

// RoomRegistry tracks the single active conversation room.
type RoomRegistry interface {
	JoinRoom(roomKey string) error
	LeaveRoom(roomKey string) error
	ActiveRoom() string
}

// ChatAPI is the collaborator REST surface.
type ChatAPI interface {
	ListConversations(ctx context.Context) ([]*Conversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]*Message, error)
	PostMessage(ctx context.Context, conversationID, senderID, text string) (*Message, error)
}

// SnapshotSource serves authoritative conversation snapshots, usually
// through a query cache in front of the chat API.
type SnapshotSource interface {
	Snapshot(ctx context.Context, conversationID string) ([]*Message, error)
	Invalidate(ctx context.Context, conversationID string) error
}

// UnreadTracker keeps per-conversation unread counters.
type UnreadTracker interface {
	Increment(conversationID string)
	Reset(conversationID string)
	Count(conversationID string) int
	TotalUnread() int
	Snapshot() map[string]int
}

// Notifier renders user-visible notification side effects. All methods are
// best-effort and must never block the caller on failure.
type Notifier interface {
	ShowToast(t *Toast) error
	ClearToast() error
	PlayCue() error
	PushNative(t *Toast) error
}
