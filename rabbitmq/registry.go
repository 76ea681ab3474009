package rabbitmq

import (
	"log/slog"
	"sync"
	"time"
)

// registryEntry is a refcounted physical connection owned by the registry.
type registryEntry struct {
	sig  Signature
	conn Connection
	refs int
}

// ConnectionRegistry is the process-wide table of physical connections keyed
// by normalized signature. Requests with equal signatures share one physical
// connection; the connection stays open while at least one share is
// outstanding.
type ConnectionRegistry struct {
	mu      sync.Mutex
	entries map[Signature]*registryEntry
	dial    Dialer
	logger  *slog.Logger
	closed  bool
}

// RegistryOption configures the ConnectionRegistry
type RegistryOption func(*ConnectionRegistry)

// WithDialer sets the dialer used to open physical connections
func WithDialer(dial Dialer) RegistryOption {
	return func(r *ConnectionRegistry) {
		r.dial = dial
	}
}

// WithRegistryLogger sets the logger
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *ConnectionRegistry) {
		r.logger = logger
	}
}

// NewConnectionRegistry creates a new connection registry
func NewConnectionRegistry(options ...RegistryOption) *ConnectionRegistry {
	r := &ConnectionRegistry{
		entries: make(map[Signature]*registryEntry),
		dial:    Dial,
		logger:  slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Acquire returns the shared physical connection for params, dialing a new
// one if the signature has no entry yet. Each successful Acquire adds one
// share that must be returned with exactly one Release.
//
// The entire lookup-or-insert sequence, including the dial, runs under the
// registry mutex so concurrent acquisitions of the same signature can never
// construct two physical connections.
func (r *ConnectionRegistry) Acquire(params ConnectionParams) (Signature, Connection, error) {
	sig := NewSignature(params)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return sig, nil, ErrRegistryClosed
	}

	if entry, ok := r.entries[sig]; ok {
		entry.refs++
		r.logger.Debug("reusing amqp connection",
			"signature", sig.String(),
			"refs", entry.refs)
		return sig, entry.conn, nil
	}

	r.logger.Debug("creating new amqp connection", "signature", sig.String())
	conn, err := r.dial(params)
	if err != nil {
		return sig, nil, &ConnectionError{
			Op:        "dial",
			URL:       sig.String(),
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	r.entries[sig] = &registryEntry{sig: sig, conn: conn, refs: 1}
	return sig, conn, nil
}

// Release returns one share of the signature's connection. When the last
// share is released the entry is removed and the physical connection closed.
// Releasing a signature with no entry returns ErrNotRegistered: at this
// level a missing entry means the caller's accounting is broken.
// SharedConnection.Close guards against double release; see its docs.
func (r *ConnectionRegistry) Release(sig Signature) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[sig]
	if !ok {
		return ErrNotRegistered
	}

	entry.refs--
	if entry.refs > 0 {
		r.logger.Debug("released amqp connection share",
			"signature", sig.String(),
			"refs", entry.refs)
		return nil
	}

	delete(r.entries, sig)
	r.logger.Debug("closing amqp connection", "signature", sig.String())
	if err := entry.conn.Close(); err != nil {
		return &ConnectionError{
			Op:        "close",
			URL:       sig.String(),
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	return nil
}

// Refs returns the current share count for a signature, or 0 when the
// signature has no entry.
func (r *ConnectionRegistry) Refs(sig Signature) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[sig]; ok {
		return entry.refs
	}
	return 0
}

// Len returns the number of open physical connections.
func (r *ConnectionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CloseAll force-closes every entry regardless of outstanding shares and
// marks the registry closed. Intended for process shutdown; subsequent
// Acquire calls fail with ErrRegistryClosed.
func (r *ConnectionRegistry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var firstErr error
	for sig, entry := range r.entries {
		if err := entry.conn.Close(); err != nil && firstErr == nil {
			firstErr = &ConnectionError{
				Op:        "close",
				URL:       sig.String(),
				Err:       err,
				Timestamp: time.Now(),
			}
		}
		delete(r.entries, sig)
	}

	r.logger.Info("connection registry shut down")
	return firstErr
}
