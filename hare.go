// Copyright 2026 Hare Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package hare is the entry point for the hare messaging library. A Client
// owns one connection registry and hands out shared connection handles,
// consumers, and publishers configured from a single Config.
package hare

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/harelabs/hare-go/messaging"
	"github.com/harelabs/hare-go/rabbitmq"
)

// ErrClientClosed is returned by operations on a closed Client.
var ErrClientClosed = errors.New("hare: client is closed")

// Client is the main entry point. All connections opened through one client
// share its registry, so handles with identical connection parameters share
// one physical connection.
type Client struct {
	config   Config
	registry *rabbitmq.ConnectionRegistry
	logger   *slog.Logger

	mu          sync.Mutex
	defaultConn *rabbitmq.SharedConnection
	closed      bool
}

type clientConfig struct {
	logger *slog.Logger
	dialer rabbitmq.Dialer
}

// ClientOption configures the Client
type ClientOption func(*clientConfig)

// WithLogger sets the logger used by the client and everything it creates
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithDialer replaces how physical connections are opened. Tests use this to
// run against an in-memory broker.
func WithDialer(dialer rabbitmq.Dialer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.dialer = dialer
	}
}

// NewClient creates a client for the given broker configuration.
func NewClient(config Config, options ...ClientOption) *Client {
	cfg := &clientConfig{
		logger: slog.Default(),
		dialer: rabbitmq.Dial,
	}
	for _, opt := range options {
		opt(cfg)
	}

	registry := rabbitmq.NewConnectionRegistry(
		rabbitmq.WithDialer(cfg.dialer),
		rabbitmq.WithRegistryLogger(cfg.logger),
	)

	return &Client{
		config:   config,
		registry: registry,
		logger:   cfg.logger,
	}
}

// Enabled reports whether messaging is switched on.
func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// Registry exposes the client's connection registry.
func (c *Client) Registry() *rabbitmq.ConnectionRegistry {
	return c.registry
}

// ConnectionOption overrides one connection parameter for a single
// Connection call.
type ConnectionOption func(*rabbitmq.ConnectionParams)

// WithHost overrides the broker address
func WithHost(host string) ConnectionOption {
	return func(p *rabbitmq.ConnectionParams) {
		p.Host = host
	}
}

// WithUser overrides the broker user
func WithUser(user string) ConnectionOption {
	return func(p *rabbitmq.ConnectionParams) {
		p.User = user
	}
}

// WithPassword overrides the broker password
func WithPassword(password string) ConnectionOption {
	return func(p *rabbitmq.ConnectionParams) {
		p.Password = password
	}
}

// WithVHost overrides the broker virtual host
func WithVHost(vhost string) ConnectionOption {
	return func(p *rabbitmq.ConnectionParams) {
		p.VHost = vhost
	}
}

// WithParam sets one extra connection parameter. Extra parameters take part
// in connection identity, so two handles differing in any parameter use
// separate physical connections.
func WithParam(key, value string) ConnectionOption {
	return func(p *rabbitmq.ConnectionParams) {
		if p.Extra == nil {
			p.Extra = make(map[string]string)
		}
		p.Extra[key] = value
	}
}

// Connection returns a shared handle on the connection described by the
// client config plus any overrides. Handles with equal parameters share one
// physical connection; each handle must be closed by its owner.
func (c *Client) Connection(options ...ConnectionOption) (*rabbitmq.SharedConnection, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClientClosed
	}

	params := c.params()
	for _, opt := range options {
		opt(&params)
	}

	connOpts := []rabbitmq.SharedConnectionOption{
		rabbitmq.WithConnectionLogger(c.logger),
	}
	if !c.config.Enabled {
		connOpts = append(connOpts, rabbitmq.Disabled())
	}

	return rabbitmq.NewSharedConnection(c.registry, params, connOpts...)
}

// Consumer creates a consumer for queue on the client's default connection.
func (c *Client) Consumer(queue string, options ...messaging.ConsumerOption) (*messaging.Consumer, error) {
	conn, err := c.defaultConnection()
	if err != nil {
		return nil, err
	}
	options = append([]messaging.ConsumerOption{
		messaging.WithConsumerLogger(c.logger),
	}, options...)
	return messaging.NewConsumer(conn, queue, options...)
}

// Publisher creates a publisher for exchange on the client's default
// connection.
func (c *Client) Publisher(exchange string, options ...messaging.PublisherOption) (*messaging.Publisher, error) {
	conn, err := c.defaultConnection()
	if err != nil {
		return nil, err
	}
	options = append([]messaging.PublisherOption{
		messaging.WithPublisherLogger(c.logger),
	}, options...)
	return messaging.NewPublisher(conn, exchange, options...)
}

// defaultConnection lazily opens the handle shared by Consumer and Publisher
// conveniences. It is closed by Close.
func (c *Client) defaultConnection() (*rabbitmq.SharedConnection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	if c.defaultConn != nil {
		return c.defaultConn, nil
	}

	connOpts := []rabbitmq.SharedConnectionOption{
		rabbitmq.WithConnectionLogger(c.logger),
	}
	if !c.config.Enabled {
		connOpts = append(connOpts, rabbitmq.Disabled())
	}

	conn, err := rabbitmq.NewSharedConnection(c.registry, c.params(), connOpts...)
	if err != nil {
		return nil, err
	}
	c.defaultConn = conn
	return conn, nil
}

// Close releases the default connection and force-closes every connection
// left in the registry. It is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.defaultConn
	c.defaultConn = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Warn("failed to close default connection", "error", err)
		}
	}
	return c.registry.CloseAll()
}

func (c *Client) params() rabbitmq.ConnectionParams {
	var extra map[string]string
	if len(c.config.Extra) > 0 {
		extra = make(map[string]string, len(c.config.Extra))
		for k, v := range c.config.Extra {
			extra[k] = v
		}
	}
	return rabbitmq.ConnectionParams{
		Host:     c.config.Host,
		User:     c.config.User,
		Password: c.config.Password,
		VHost:    c.config.VHost,
		Extra:    extra,
	}
}
