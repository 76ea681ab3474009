package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/harelabs/hare-go/rabbitmq"
)

// Consumer consumes messages from a single queue. Construction declares the
// queue and binds it to an exchange unless the queue was declared before or
// declaration is suppressed.
type Consumer struct {
	conn       *rabbitmq.SharedConnection
	channel    rabbitmq.Channel
	queue      string
	exchange   string
	routingKey string
	decode     DecodeFunc
	logger     *slog.Logger
}

type consumerConfig struct {
	exchange   string
	routingKey string
	channel    rabbitmq.Channel
	decode     DecodeFunc
	logger     *slog.Logger
	noDeclare  bool
	queueOpts  rabbitmq.QueueOptions
}

// ConsumerOption configures the Consumer
type ConsumerOption func(*consumerConfig)

// WithBinding binds the queue to exchange with routingKey at declaration time
func WithBinding(exchange, routingKey string) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.exchange = exchange
		cfg.routingKey = routingKey
	}
}

// WithDecoder sets the decode hook applied to every received message
func WithDecoder(decode DecodeFunc) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.decode = decode
	}
}

// WithConsumerChannel uses the given channel instead of the connection's
// default channel
func WithConsumerChannel(channel rabbitmq.Channel) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.channel = channel
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.logger = logger
	}
}

// WithoutDeclare skips queue declaration and binding. The queue must already
// exist on the broker.
func WithoutDeclare() ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.noDeclare = true
	}
}

// WithQueueOptions overrides the declaration options for the queue
func WithQueueOptions(opts rabbitmq.QueueOptions) ConsumerOption {
	return func(cfg *consumerConfig) {
		cfg.queueOpts = opts
	}
}

// NewConsumer creates a consumer for queue on the given connection handle.
// The first consumer for a queue in the process declares it (durable by
// default) and binds it to the configured exchange; an exchange is required
// for that unless WithoutDeclare is set.
func NewConsumer(conn *rabbitmq.SharedConnection, queue string, options ...ConsumerOption) (*Consumer, error) {
	if queue == "" {
		return nil, errors.New("messaging: queue name cannot be empty")
	}

	cfg := &consumerConfig{
		logger:    slog.Default(),
		queueOpts: rabbitmq.QueueOptions{Durable: true},
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

	enabled := conn == nil || conn.Enabled()

	c := &Consumer{
		conn:       conn,
		channel:    channel,
		queue:      queue,
		exchange:   cfg.exchange,
		routingKey: cfg.routingKey,
		decode:     cfg.decode,
		logger:     cfg.logger,
	}

	if !cfg.noDeclare && enabled && declaredQueues.add(queue) {
		if cfg.exchange == "" {
			declaredQueues.remove(queue)
			return nil, ErrExchangeRequired
		}
		c.logger.Debug("declaring queue", "queue", queue, "durable", cfg.queueOpts.Durable)
		if err := channel.DeclareQueue(queue, cfg.queueOpts); err != nil {
			declaredQueues.remove(queue)
			return nil, &rabbitmq.ChannelError{Op: "declare queue", Queue: queue, Err: err, Timestamp: time.Now()}
		}
		c.logger.Debug("binding queue", "queue", queue, "exchange", cfg.exchange, "routingKey", cfg.routingKey)
		if err := channel.BindQueue(queue, cfg.exchange, cfg.routingKey); err != nil {
			declaredQueues.remove(queue)
			return nil, &rabbitmq.ChannelError{Op: "bind queue", Queue: queue, Err: err, Timestamp: time.Now()}
		}
	}

	return c, nil
}

// Queue returns the queue name the consumer reads from.
func (c *Consumer) Queue() string {
	return c.queue
}

// Get pops the next waiting message without blocking. ErrEmptyQueue is
// returned when the queue has nothing waiting; that is a normal outcome.
func (c *Consumer) Get() (Message, error) {
	d, ok, err := c.channel.Get(c.queue)
	if err != nil {
		return Message{}, &rabbitmq.ChannelError{Op: "get", Queue: c.queue, Err: err, Timestamp: time.Now()}
	}
	if !ok {
		return Message{}, ErrEmptyQueue
	}
	return c.decodeMessage(fromDelivery(d))
}

// Ack acknowledges delivery of msg.
func (c *Consumer) Ack(msg Message) error {
	c.logger.Debug("acknowledging message", "queue", c.queue, "deliveryTag", msg.DeliveryTag)
	return c.channel.Ack(msg.DeliveryTag)
}

// Subscribe invokes handler for every message pushed on the queue and
// acknowledges each message the handler returns nil for. It blocks until ctx
// is done, then cancels the registration gracefully. Failed messages are
// logged and left unacknowledged.
func (c *Consumer) Subscribe(ctx context.Context, handler func(ctx context.Context, msg Message) error) error {
	tag, err := c.channel.Consume(c.queue, "", false, func(d rabbitmq.Delivery) {
		msg, err := c.decodeMessage(fromDelivery(d))
		if err != nil {
			c.logger.Error("failed to decode message",
				"queue", c.queue,
				"deliveryTag", d.DeliveryTag,
				"error", err)
			return
		}
		if err := handler(ctx, msg); err != nil {
			c.logger.Error("message handler failed",
				"queue", c.queue,
				"deliveryTag", d.DeliveryTag,
				"error", err)
			return
		}
		if err := c.Ack(msg); err != nil {
			c.logger.Error("failed to ack message",
				"queue", c.queue,
				"deliveryTag", d.DeliveryTag,
				"error", err)
		}
	})
	if err != nil {
		return &rabbitmq.ChannelError{Op: "consume", Queue: c.queue, Err: err, Timestamp: time.Now()}
	}

	c.logger.Info("subscribed to queue", "queue", c.queue, "consumerTag", tag)
	<-ctx.Done()

	c.logger.Debug("cancelling subscription", "queue", c.queue, "consumerTag", tag)
	return c.channel.Cancel(tag)
}

// DestroyQueue deletes the queue the consumer reads from.
func (c *Consumer) DestroyQueue() error {
	if err := c.channel.DeleteQueue(c.queue); err != nil {
		return &rabbitmq.ChannelError{Op: "delete queue", Queue: c.queue, Err: err, Timestamp: time.Now()}
	}
	declaredQueues.remove(c.queue)
	return nil
}

func (c *Consumer) decodeMessage(msg Message) (Message, error) {
	if c.decode == nil {
		return msg, nil
	}
	return c.decode(msg)
}

// iterationOptions configures a Messages iteration
type iterationOptions struct {
	limit int
	noAck bool
}

// IterationOption configures Messages
type IterationOption func(*iterationOptions)

// WithLimit yields at most n messages before unsubscribing gracefully
func WithLimit(n int) IterationOption {
	return func(opts *iterationOptions) {
		opts.limit = n
	}
}

// WithNoAck lets the broker consider messages acknowledged on delivery
func WithNoAck() IterationOption {
	return func(opts *iterationOptions) {
		opts.noAck = true
	}
}

// Messages registers a subscription whose deliveries are pulled one at a
// time through a single-slot handoff: the broker-side callback blocks until
// the iterator has fully yielded the previous message, so at most one message
// is in flight and none is dropped or reordered. Messages must be
// acknowledged through Ack unless WithNoAck is set.
func (c *Consumer) Messages(ctx context.Context, options ...IterationOption) (*MessageIterator, error) {
	opts := iterationOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	handoff := rabbitmq.NewMessageHandoff()
	pumpCtx, cancel := context.WithCancel(ctx)

	tag, err := c.channel.Consume(c.queue, "", opts.noAck, func(d rabbitmq.Delivery) {
		if err := handoff.Deliver(pumpCtx, d); err != nil {
			c.logger.Debug("delivery refused by closed handoff",
				"queue", c.queue,
				"deliveryTag", d.DeliveryTag,
				"error", err)
		}
	})
	if err != nil {
		cancel()
		return nil, &rabbitmq.ChannelError{Op: "consume", Queue: c.queue, Err: err, Timestamp: time.Now()}
	}

	c.logger.Debug("message iteration started", "queue", c.queue, "consumerTag", tag, "limit", opts.limit)

	return &MessageIterator{
		consumer: c,
		handoff:  handoff,
		tag:      tag,
		cancel:   cancel,
		limit:    opts.limit,
	}, nil
}

// MessageIterator pulls messages one at a time from an active subscription.
// It is intended for use from a single goroutine.
type MessageIterator struct {
	consumer   *Consumer
	handoff    *rabbitmq.MessageHandoff
	tag        string
	cancel     context.CancelFunc
	limit      int
	yielded    int
	needFinish bool
	closed     bool
}

// Next blocks until the next message arrives and returns it. It returns
// ErrIterationDone once the limit is reached or the iterator is closed, after
// unsubscribing gracefully. The limit is evaluated before the producer is
// re-armed, so once it is reached no further delivery can land in the slot
// and the iteration terminates with the slot empty.
func (it *MessageIterator) Next(ctx context.Context) (Message, error) {
	if it.closed {
		return Message{}, ErrIterationDone
	}

	if it.limit > 0 && it.yielded >= it.limit {
		if err := it.Close(); err != nil {
			return Message{}, err
		}
		return Message{}, ErrIterationDone
	}

	if it.needFinish {
		it.needFinish = false
		it.handoff.Finish()
	}

	d, err := it.handoff.Take(ctx)
	if err != nil {
		if errors.Is(err, rabbitmq.ErrHandoffClosed) {
			return Message{}, ErrIterationDone
		}
		return Message{}, err
	}

	it.yielded++
	it.needFinish = true
	return it.consumer.decodeMessage(fromDelivery(d))
}

// Close cancels the subscription and closes the handoff. It is idempotent.
func (it *MessageIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true

	// Cancel the broker registration first so no new delivery is accepted,
	// then release the pump and the handoff.
	err := it.consumer.channel.Cancel(it.tag)
	it.cancel()
	_ = it.handoff.Close()

	it.consumer.logger.Debug("message iteration finished",
		"queue", it.consumer.queue,
		"consumerTag", it.tag,
		"yielded", it.yielded)
	return err
}
