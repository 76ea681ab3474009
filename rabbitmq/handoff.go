package rabbitmq

import (
	"context"
	"sync"
)

// MessageHandoff moves deliveries one at a time from the transport's delivery
// callback (producer side) to a blocking pull (consumer side). The slot holds
// at most one unconsumed message; a producer can never overwrite a message
// the consumer has not taken, and no delivery is silently dropped between
// arrival and consumption.
//
// Readiness and availability are one-token channels: Deliver must consume the
// ready token before it may store, and only Finish re-issues it once the
// taken message has been fully handed onward. The protocol holds regardless
// of which goroutines run the two sides.
type MessageHandoff struct {
	mu       sync.Mutex
	slot     Delivery
	occupied bool

	ready     chan struct{} // token present while the consumer can accept a delivery
	avail     chan struct{} // token present while the slot holds a message
	done      chan struct{}
	closeOnce sync.Once
}

// NewMessageHandoff creates a handoff with an empty slot and the consumer
// marked ready.
func NewMessageHandoff() *MessageHandoff {
	h := &MessageHandoff{
		ready: make(chan struct{}, 1),
		avail: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	h.ready <- struct{}{}
	return h
}

// Deliver blocks until the consumer is ready, stores d into the slot, and
// signals availability. It returns ErrHandoffClosed once the handoff is
// closed and ctx.Err() if the context is cancelled while waiting.
func (h *MessageHandoff) Deliver(ctx context.Context, d Delivery) error {
	select {
	case <-h.ready:
	case <-h.done:
		return ErrHandoffClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Re-check after winning the token: a close may have raced the wait.
	select {
	case <-h.done:
		return ErrHandoffClosed
	default:
	}

	h.mu.Lock()
	if h.occupied {
		// Unreachable while the token protocol is respected.
		h.mu.Unlock()
		return ErrSlotOccupied
	}
	h.slot = d
	h.occupied = true
	h.mu.Unlock()

	h.avail <- struct{}{}
	return nil
}

// Take blocks until a message is available, removes it from the slot, and
// returns it. The consumer stays not-ready until Finish is called, so no
// further delivery can land while the message is being handled.
func (h *MessageHandoff) Take(ctx context.Context) (Delivery, error) {
	// An accepted delivery is never dropped: drain the slot even when a
	// close raced the wait.
	select {
	case <-h.avail:
	default:
		select {
		case <-h.avail:
		case <-h.done:
			return Delivery{}, ErrHandoffClosed
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		}
	}

	h.mu.Lock()
	d := h.slot
	h.slot = Delivery{}
	h.occupied = false
	h.mu.Unlock()

	return d, nil
}

// Finish marks the consumer ready for the next delivery. Call it after the
// message returned by Take has been fully yielded onward. Finish is
// idempotent; extra calls never issue a second token.
func (h *MessageHandoff) Finish() {
	select {
	case h.ready <- struct{}{}:
	default:
	}
}

// Pending reports whether the slot currently holds an unconsumed message.
func (h *MessageHandoff) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.occupied
}

// Close terminates the handoff, unblocking both sides with ErrHandoffClosed.
// Close is idempotent. Callers should close only at a point where the slot is
// empty so no message is in flight at termination; a delivery racing the
// close is refused, never dropped after acceptance.
func (h *MessageHandoff) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
	})
	return nil
}
