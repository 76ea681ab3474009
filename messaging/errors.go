package messaging

import "errors"

var (
	// ErrEmptyQueue is returned by Consumer.Get when no message is waiting.
	// It marks a normal, expected outcome, not a failure.
	ErrEmptyQueue = errors.New("messaging: no message waiting in queue")

	// ErrExchangeRequired is returned when a queue must be declared but no
	// exchange was given to bind it to.
	ErrExchangeRequired = errors.New("messaging: exchange is required to declare the queue")

	// ErrIterationDone is returned by MessageIterator.Next once the
	// iteration limit is reached or the iterator has been closed.
	ErrIterationDone = errors.New("messaging: message iteration finished")
)
