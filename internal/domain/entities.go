package domain

import (
	"time"
)

type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Message struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	Sender         Sender    `json:"sender"`
	CreatedAt      time.Time `json:"createdAt"`
	ConversationID string    `json:"conversationId"`
	Pending        bool      `json:"pending,omitempty"` // optimistic, not yet confirmed
}

type Conversation struct {
	ID     string `json:"id"` // auction/product id
	Title  string `json:"title"`
	Seller Sender `json:"seller"`
	Winner Sender `json:"winner"`
}

type NotificationEvent struct {
	SenderName        string    `json:"senderName"`
	Text              string    `json:"text"`
	ConversationTitle string    `json:"conversationTitle"`
	ConversationID    string    `json:"conversationId"`
	CreatedAt         time.Time `json:"createdAt"`
}

type Toast struct {
	NotificationEvent
	ShownAt time.Time `json:"shownAt"`
}

type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnConnected
)

func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// BufferState is the reconciliation gate for one open conversation.
// Snapshots only overwrite the timeline while the buffer is idle.
type BufferState int

const (
	BufferIdle BufferState = iota
	BufferOptimisticPending
	BufferReconciling
)

func (s BufferState) String() string {
	switch s {
	case BufferIdle:
		return "idle"
	case BufferOptimisticPending:
		return "optimistic_pending"
	case BufferReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

type EngineEventType string

const (
	EngineTimeline     EngineEventType = "timeline"
	EngineUnread       EngineEventType = "unread"
	EngineTyping       EngineEventType = "typing"
	EngineToast        EngineEventType = "toast"
	EngineToastCleared EngineEventType = "toast_cleared"
	EngineConnectivity EngineEventType = "connectivity"
	EngineSendFailed   EngineEventType = "send_failed"
	EngineSoundCue     EngineEventType = "sound_cue"
	EngineNative       EngineEventType = "native_notification"
)

// EngineEvent is pushed to UI stream subscribers on every state change.
type EngineEvent struct {
	Type      EngineEventType `json:"type"`
	Payload   interface{}     `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
