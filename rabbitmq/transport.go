package rabbitmq

import "context"

// Delivery is a single message received from the broker.
type Delivery struct {
	Body        []byte
	DeliveryTag uint64
	RoutingKey  string
	Exchange    string
	ContentType string
	Headers     map[string]interface{}
	Redelivered bool
}

// QueueOptions defines options for queue declaration
type QueueOptions struct {
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Args       map[string]interface{}
}

// ExchangeOptions defines options for exchange declaration
type ExchangeOptions struct {
	Type       string
	Durable    bool
	AutoDelete bool
	Args       map[string]interface{}
}

// PublishOptions defines options for publishing a message
type PublishOptions struct {
	ContentType  string
	DeliveryMode uint8 // 1 = transient, 2 = persistent
	Mandatory    bool
	Immediate    bool
	Headers      map[string]interface{}
}

// Connection is the physical broker connection boundary. Implementations wrap
// a wire-level client; tests substitute in-memory fakes.
type Connection interface {
	// Channel opens a new channel on the connection
	Channel() (Channel, error)

	// Close closes the physical connection
	Close() error

	// IsClosed reports whether the connection has been closed
	IsClosed() bool
}

// Channel exposes the broker operations used by this library. Declaration
// operations are idempotent by name on the broker side.
type Channel interface {
	// DeclareQueue declares a queue
	DeclareQueue(name string, opts QueueOptions) error

	// DeleteQueue deletes a queue
	DeleteQueue(name string) error

	// DeclareExchange declares an exchange
	DeclareExchange(name string, opts ExchangeOptions) error

	// DeleteExchange deletes an exchange
	DeleteExchange(name string) error

	// BindQueue binds a queue to an exchange with a routing key
	BindQueue(queue, exchange, routingKey string) error

	// Get performs a non-blocking pull from a queue. ok is false when the
	// queue has no message waiting.
	Get(queue string) (d Delivery, ok bool, err error)

	// Consume registers onDelivery to be invoked for every message the
	// broker pushes for the queue, and returns the consumer tag. The
	// callback is invoked from the transport's delivery context; it may
	// block, which exerts backpressure on the subscription.
	Consume(queue, consumerTag string, autoAck bool, onDelivery func(Delivery)) (string, error)

	// Cancel gracefully cancels a consumer registration
	Cancel(consumerTag string) error

	// Ack acknowledges a delivery by tag
	Ack(deliveryTag uint64) error

	// Publish publishes a message body to an exchange
	Publish(ctx context.Context, exchange, routingKey string, body []byte, opts PublishOptions) error

	// Close closes the channel
	Close() error
}

// Dialer opens a physical connection for a set of connection parameters.
// It is pluggable so the registry can be exercised without a broker.
type Dialer func(params ConnectionParams) (Connection, error)
