package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
)

// SharedConnection is a caller-owned share of a registry-managed physical
// connection. Each handle contributes exactly one share for its lifetime and
// tracks the channels opened through it so Close can tear them down before
// the share is returned.
//
// A disabled handle (global messaging switch off) never touches the registry:
// channel operations succeed as no-ops so the rest of the process runs
// without a broker present.
type SharedConnection struct {
	registry *ConnectionRegistry
	sig      Signature
	conn     Connection
	enabled  bool
	logger   *slog.Logger

	mu        sync.Mutex
	channels  []Channel
	defaultCh Channel
	released  bool
}

// SharedConnectionOption configures a SharedConnection
type SharedConnectionOption func(*sharedConnectionConfig)

type sharedConnectionConfig struct {
	disabled bool
	logger   *slog.Logger
}

// Disabled constructs the handle in disabled mode
func Disabled() SharedConnectionOption {
	return func(cfg *sharedConnectionConfig) {
		cfg.disabled = true
	}
}

// WithConnectionLogger sets the logger
func WithConnectionLogger(logger *slog.Logger) SharedConnectionOption {
	return func(cfg *sharedConnectionConfig) {
		cfg.logger = logger
	}
}

// NewSharedConnection acquires one share of the physical connection for
// params from the registry. With the Disabled option, the registry is never
// consulted and the returned handle is a broker-less no-op.
func NewSharedConnection(registry *ConnectionRegistry, params ConnectionParams, options ...SharedConnectionOption) (*SharedConnection, error) {
	cfg := &sharedConnectionConfig{
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(cfg)
	}

	if cfg.disabled {
		return &SharedConnection{
			sig:     NewSignature(params),
			enabled: false,
			logger:  cfg.logger,
		}, nil
	}

	sig, conn, err := registry.Acquire(params)
	if err != nil {
		return nil, err
	}

	return &SharedConnection{
		registry: registry,
		sig:      sig,
		conn:     conn,
		enabled:  true,
		logger:   cfg.logger,
	}, nil
}

// Enabled reports whether the handle is backed by a physical connection.
func (s *SharedConnection) Enabled() bool {
	return s.enabled
}

// Signature returns the handle's normalized connection signature.
func (s *SharedConnection) Signature() Signature {
	return s.sig
}

// NewChannel opens a channel on the underlying connection and tracks it for
// teardown. On a disabled handle it returns a channel whose operations are
// all no-ops.
func (s *SharedConnection) NewChannel() (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newChannelLocked()
}

func (s *SharedConnection) newChannelLocked() (Channel, error) {
	if s.released {
		return nil, ErrHandleReleased
	}

	if !s.enabled {
		return noopChannel{}, nil
	}

	s.logger.Debug("creating channel", "signature", s.sig.String())
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, err
	}
	s.channels = append(s.channels, ch)
	return ch, nil
}

// DefaultChannel lazily creates and caches exactly one channel per handle;
// the channel is opened under the handle mutex so concurrent first calls
// never open more than one. Channels are cheap, so consumers and publishers
// that share a handle but want isolation should use NewChannel instead.
func (s *SharedConnection) DefaultChannel() (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.defaultCh != nil {
		return s.defaultCh, nil
	}

	ch, err := s.newChannelLocked()
	if err != nil {
		return nil, err
	}
	s.defaultCh = ch
	return ch, nil
}

// Close closes every channel opened through the handle (best-effort, logging
// and continuing past per-channel failures) and then returns the handle's
// share to the registry. Close is idempotent: the second and later calls are
// no-ops and never double-decrement the registry entry.
func (s *SharedConnection) Close() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	channels := s.channels
	s.channels = nil
	s.defaultCh = nil
	s.mu.Unlock()

	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			s.logger.Warn("failed to close channel",
				"signature", s.sig.String(),
				"error", err)
		}
	}

	if !s.enabled {
		return nil
	}
	return s.registry.Release(s.sig)
}

// noopChannel satisfies Channel for disabled handles. Every operation
// succeeds with an empty result.
type noopChannel struct{}

func (noopChannel) DeclareQueue(name string, opts QueueOptions) error          { return nil }
func (noopChannel) DeleteQueue(name string) error                              { return nil }
func (noopChannel) DeclareExchange(name string, opts ExchangeOptions) error    { return nil }
func (noopChannel) DeleteExchange(name string) error                           { return nil }
func (noopChannel) BindQueue(queue, exchange, routingKey string) error         { return nil }
func (noopChannel) Get(queue string) (Delivery, bool, error)                   { return Delivery{}, false, nil }
func (noopChannel) Cancel(consumerTag string) error                            { return nil }
func (noopChannel) Ack(deliveryTag uint64) error                               { return nil }
func (noopChannel) Close() error                                               { return nil }

func (noopChannel) Consume(queue, consumerTag string, autoAck bool, onDelivery func(Delivery)) (string, error) {
	return "", nil
}

func (noopChannel) Publish(ctx context.Context, exchange, routingKey string, body []byte, opts PublishOptions) error {
	return nil
}
