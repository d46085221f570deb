package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an emit is attempted without an
	// established bus connection.
	ErrNotConnected = errors.New("bus connection not established")

	// ErrMalformedEvent marks an inbound frame that could not be decoded.
	ErrMalformedEvent = errors.New("malformed bus event")

	// ErrRoomActive is returned when a join is attempted while a different
	// room is still active. Callers must leave the old room first.
	ErrRoomActive = errors.New("another room is already active")

	// ErrNoOpenConversation is returned by operations that require an open
	// conversation.
	ErrNoOpenConversation = errors.New("no open conversation")
)

// SendFailedError reports a rolled-back optimistic send. Text carries the
// original input so the caller can restore it for retry.
type SendFailedError struct {
	Text string
	Err  error
}

func (e *SendFailedError) Error() string {
	return fmt.Sprintf("send failed, input rolled back: %v", e.Err)
}

func (e *SendFailedError) Unwrap() error {
	return e.Err
}
