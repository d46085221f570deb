package domain

import (
	"encoding/json"
	"time"
)

// Bus event names, shared with the realtime gateway.
const (
	EventJoinUserRoom     = "joinUserRoom"
	EventJoinRoom         = "joinRoom"
	EventLeaveRoom        = "leaveRoom"
	EventSendMessage      = "sendMessage"
	EventNewChatMessage   = "newChatMessage"
	EventChatNotification = "chatNotification"
	EventUserTyping       = "userTyping"
	EventError            = "error"
)

// Envelope is the wire frame for every bus event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinUserRoomPayload struct {
	UserID string `json:"userId"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type SendMessagePayload struct {
	RoomID   string `json:"roomId"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

type NewChatMessagePayload struct {
	ProductID string    `json:"productId"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text,omitempty"`
	Message   string    `json:"message,omitempty"` // legacy gateway field, same content as Text
	CreatedAt time.Time `json:"createdAt"`
}

// Body returns the message content regardless of which wire field carried it.
func (p *NewChatMessagePayload) Body() string {
	if p.Text != "" {
		return p.Text
	}
	return p.Message
}

type ChatNotificationPayload struct {
	UserID         string    `json:"userId"`
	SenderID       string    `json:"senderId"`
	ProductID      string    `json:"productId"`
	SenderName     string    `json:"senderName"`
	MessagePreview string    `json:"messagePreview"`
	ProductTitle   string    `json:"productTitle"`
	CreatedAt      time.Time `json:"createdAt"`
}

type TypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

const roomKeyPrefix = "auction-chat-"

// RoomKey derives the bus room name for a conversation.
func RoomKey(conversationID string) string {
	return roomKeyPrefix + conversationID
}
