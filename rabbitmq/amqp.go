package rabbitmq

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Dial is the default Dialer. It opens a physical AMQP 0-9-1 connection for
// the given parameters.
func Dial(params ConnectionParams) (Connection, error) {
	conn, err := amqp.Dial(params.URL())
	if err != nil {
		return nil, err
	}
	return &amqpConnection{conn: conn}, nil
}

// amqpConnection adapts *amqp.Connection to the Connection boundary.
type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return &amqpChannel{ch: ch}, nil
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

func (c *amqpConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

// amqpChannel adapts *amqp.Channel to the Channel boundary. Consume bridges
// the client's delivery stream into the callback contract: one pump goroutine
// per registration invokes the callback for every delivery, in order, and
// exits when the registration is cancelled or the channel closes.
type amqpChannel struct {
	ch *amqp.Channel
}

func (c *amqpChannel) DeclareQueue(name string, opts QueueOptions) error {
	_, err := c.ch.QueueDeclare(
		name,
		opts.Durable,
		opts.AutoDelete,
		opts.Exclusive,
		false, // no-wait
		amqp.Table(opts.Args),
	)
	return err
}

func (c *amqpChannel) DeleteQueue(name string) error {
	_, err := c.ch.QueueDelete(name, false, false, false)
	return err
}

func (c *amqpChannel) DeclareExchange(name string, opts ExchangeOptions) error {
	kind := opts.Type
	if kind == "" {
		kind = "direct"
	}
	return c.ch.ExchangeDeclare(
		name,
		kind,
		opts.Durable,
		opts.AutoDelete,
		false, // internal
		false, // no-wait
		amqp.Table(opts.Args),
	)
}

func (c *amqpChannel) DeleteExchange(name string) error {
	return c.ch.ExchangeDelete(name, false, false)
}

func (c *amqpChannel) BindQueue(queue, exchange, routingKey string) error {
	return c.ch.QueueBind(queue, routingKey, exchange, false, nil)
}

func (c *amqpChannel) Get(queue string) (Delivery, bool, error) {
	msg, ok, err := c.ch.Get(queue, false)
	if err != nil || !ok {
		return Delivery{}, false, err
	}
	return fromAMQPDelivery(msg), true, nil
}

func (c *amqpChannel) Consume(queue, consumerTag string, autoAck bool, onDelivery func(Delivery)) (string, error) {
	if consumerTag == "" {
		consumerTag = "hare-" + uuid.New().String()
	}

	deliveries, err := c.ch.Consume(
		queue,
		consumerTag,
		autoAck,
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return "", err
	}

	go func() {
		for msg := range deliveries {
			onDelivery(fromAMQPDelivery(msg))
		}
	}()

	return consumerTag, nil
}

func (c *amqpChannel) Cancel(consumerTag string) error {
	return c.ch.Cancel(consumerTag, false)
}

func (c *amqpChannel) Ack(deliveryTag uint64) error {
	return c.ch.Ack(deliveryTag, false)
}

func (c *amqpChannel) Publish(ctx context.Context, exchange, routingKey string, body []byte, opts PublishOptions) error {
	return c.ch.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		opts.Mandatory,
		opts.Immediate,
		amqp.Publishing{
			ContentType:  opts.ContentType,
			DeliveryMode: opts.DeliveryMode,
			Headers:      amqp.Table(opts.Headers),
			Body:         body,
		},
	)
}

func (c *amqpChannel) Close() error {
	return c.ch.Close()
}

func fromAMQPDelivery(msg amqp.Delivery) Delivery {
	return Delivery{
		Body:        msg.Body,
		DeliveryTag: msg.DeliveryTag,
		RoutingKey:  msg.RoutingKey,
		Exchange:    msg.Exchange,
		ContentType: msg.ContentType,
		Headers:     map[string]interface{}(msg.Headers),
		Redelivered: msg.Redelivered,
	}
}
