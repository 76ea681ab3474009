package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/harelabs/hare-go/rabbitmq"
)

// Persistent and transient delivery modes for published messages.
const (
	Transient  uint8 = 1
	Persistent uint8 = 2
)

// Publisher delivers messages to one exchange. At minimum there should be a
// publisher per exchange, possibly one per event type with the default
// routing key set accordingly. Construction declares the exchange (direct,
// durable, not auto-deleted by default) the first time the name is seen in
// the process.
type Publisher struct {
	conn       *rabbitmq.SharedConnection
	channel    rabbitmq.Channel
	exchange   string
	routingKey string
	encode     EncodeFunc
	logger     *slog.Logger
}

type publisherConfig struct {
	routingKey   string
	channel      rabbitmq.Channel
	encode       EncodeFunc
	logger       *slog.Logger
	noDeclare    bool
	exchangeOpts rabbitmq.ExchangeOptions
}

// PublisherOption configures the Publisher
type PublisherOption func(*publisherConfig)

// WithDefaultRoutingKey sets the routing key used when a publish does not
// override it
func WithDefaultRoutingKey(routingKey string) PublisherOption {
	return func(cfg *publisherConfig) {
		cfg.routingKey = routingKey
	}
}

// WithEncoder sets the encode hook applied to every published body
func WithEncoder(encode EncodeFunc) PublisherOption {
	return func(cfg *publisherConfig) {
		cfg.encode = encode
	}
}

// WithPublisherChannel uses the given channel instead of the connection's
// default channel
func WithPublisherChannel(channel rabbitmq.Channel) PublisherOption {
	return func(cfg *publisherConfig) {
		cfg.channel = channel
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(cfg *publisherConfig) {
		cfg.logger = logger
	}
}

// WithoutExchangeDeclare skips exchange declaration. The exchange must
// already exist on the broker.
func WithoutExchangeDeclare() PublisherOption {
	return func(cfg *publisherConfig) {
		cfg.noDeclare = true
	}
}

// WithExchangeOptions overrides the declaration options for the exchange
func WithExchangeOptions(opts rabbitmq.ExchangeOptions) PublisherOption {
	return func(cfg *publisherConfig) {
		cfg.exchangeOpts = opts
	}
}

// NewPublisher creates a publisher for exchange on the given connection
// handle.
func NewPublisher(conn *rabbitmq.SharedConnection, exchange string, options ...PublisherOption) (*Publisher, error) {
	if exchange == "" {
		return nil, errors.New("messaging: exchange name cannot be empty")
	}

	cfg := &publisherConfig{
		encode: RawEncode,
		logger: slog.Default(),
		exchangeOpts: rabbitmq.ExchangeOptions{
			Type:       "direct",
			Durable:    true,
			AutoDelete: false,
		},
	}
	for _, opt := range options {
		opt(cfg)
	}

	channel := cfg.channel
	if channel == nil {
		if conn == nil {
			return nil, errors.New("messaging: connection handle cannot be nil")
		}
		var err error
		channel, err = conn.DefaultChannel()
		if err != nil {
			return nil, err
		}
	}

	p := &Publisher{
		conn:       conn,
		channel:    channel,
		exchange:   exchange,
		routingKey: cfg.routingKey,
		encode:     cfg.encode,
		logger:     cfg.logger,
	}

	enabled := conn == nil || conn.Enabled()
	if !cfg.noDeclare && enabled && declaredExchanges.add(exchange) {
		p.logger.Debug("declaring exchange",
			"exchange", exchange,
			"type", cfg.exchangeOpts.Type,
			"durable", cfg.exchangeOpts.Durable)
		if err := channel.DeclareExchange(exchange, cfg.exchangeOpts); err != nil {
			declaredExchanges.remove(exchange)
			return nil, &rabbitmq.ChannelError{Op: "declare exchange", Err: err, Timestamp: time.Now()}
		}
	}

	return p, nil
}

// Exchange returns the exchange the publisher delivers to.
func (p *Publisher) Exchange() string {
	return p.exchange
}

// publishOptions configures one publish
type publishOptions struct {
	exchange    string
	routingKey  string
	mandatory   bool
	immediate   bool
	contentType string
	mode        uint8
	headers     map[string]interface{}
}

// PublishOption configures publish behavior for a single message
type PublishOption func(*publishOptions)

// WithExchange overrides the target exchange
func WithExchange(exchange string) PublishOption {
	return func(opts *publishOptions) {
		opts.exchange = exchange
	}
}

// WithRoutingKey overrides the routing key
func WithRoutingKey(routingKey string) PublishOption {
	return func(opts *publishOptions) {
		opts.routingKey = routingKey
	}
}

// WithMandatory requires the broker to route the message to a queue
func WithMandatory() PublishOption {
	return func(opts *publishOptions) {
		opts.mandatory = true
	}
}

// WithTransient publishes the message without persistence
func WithTransient() PublishOption {
	return func(opts *publishOptions) {
		opts.mode = Transient
	}
}

// WithContentType sets the message content type
func WithContentType(contentType string) PublishOption {
	return func(opts *publishOptions) {
		opts.contentType = contentType
	}
}

// WithHeaders sets message headers
func WithHeaders(headers map[string]interface{}) PublishOption {
	return func(opts *publishOptions) {
		opts.headers = headers
	}
}

// Publish encodes body and delivers it to the exchange. Messages are
// persistent unless WithTransient is given. On a disabled connection this is
// a no-op.
func (p *Publisher) Publish(ctx context.Context, body interface{}, options ...PublishOption) error {
	opts := publishOptions{
		exchange:   p.exchange,
		routingKey: p.routingKey,
		mode:       Persistent,
	}
	for _, opt := range options {
		opt(&opts)
	}

	encoded, err := p.encode(body)
	if err != nil {
		return err
	}

	p.logger.Debug("publishing message",
		"exchange", opts.exchange,
		"routingKey", opts.routingKey,
		"bytes", len(encoded))

	return p.channel.Publish(ctx, opts.exchange, opts.routingKey, encoded, rabbitmq.PublishOptions{
		ContentType:  opts.contentType,
		DeliveryMode: opts.mode,
		Mandatory:    opts.mandatory,
		Immediate:    opts.immediate,
		Headers:      opts.headers,
	})
}

// DestroyExchange deletes the exchange the publisher delivers to.
func (p *Publisher) DestroyExchange() error {
	if err := p.channel.DeleteExchange(p.exchange); err != nil {
		return &rabbitmq.ChannelError{Op: "delete exchange", Err: err, Timestamp: time.Now()}
	}
	declaredExchanges.remove(p.exchange)
	return nil
}
