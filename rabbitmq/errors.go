package rabbitmq

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Connection errors
	ErrConnectionClosed = errors.New("rabbitmq: connection is closed")
	ErrNotRegistered    = errors.New("rabbitmq: signature not registered")
	ErrRegistryClosed   = errors.New("rabbitmq: registry is closed")

	// Handle errors
	ErrHandleReleased = errors.New("rabbitmq: connection handle already released")

	// Channel errors
	ErrChannelClosed = errors.New("rabbitmq: channel is closed")

	// Handoff errors
	ErrHandoffClosed = errors.New("rabbitmq: message handoff is closed")
	ErrSlotOccupied  = errors.New("rabbitmq: handoff slot already holds an unconsumed message")
)

// ConnectionError represents a failure to construct or close a physical connection
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rabbitmq connection error: %s failed for %s: %v", e.Op, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChannelError represents a channel-related error
type ChannelError struct {
	Op        string    // Operation that failed
	Queue     string    // Queue involved, if any
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ChannelError) Error() string {
	if e.Queue != "" {
		return fmt.Sprintf("rabbitmq channel error: %s failed on queue %s: %v", e.Op, e.Queue, e.Err)
	}
	return fmt.Sprintf("rabbitmq channel error: %s failed: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}
