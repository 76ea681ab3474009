package messaging

import (
	"context"
	"sync"

	"github.com/harelabs/hare-go/rabbitmq"
)

type publishedMessage struct {
	exchange   string
	routingKey string
	body       []byte
	opts       rabbitmq.PublishOptions
}

type binding struct {
	queue      string
	exchange   string
	routingKey string
}

// stubChannel records every operation so tests can assert on broker traffic
// without a broker.
type stubChannel struct {
	mu sync.Mutex

	declaredQueues    []string
	declaredExchanges []string
	bindings          []binding
	deletedQueues     []string
	deletedExchanges  []string
	acked             []uint64
	cancelled         []string
	published         []publishedMessage

	pending    []rabbitmq.Delivery
	onDelivery func(rabbitmq.Delivery)
	consumeTag string

	declareQueueErr    error
	declareExchangeErr error
	bindErr            error
	consumeErr         error
	publishErr         error
	closed             bool
}

func newStubChannel() *stubChannel {
	return &stubChannel{consumeTag: "stub-tag"}
}

func (c *stubChannel) DeclareQueue(name string, opts rabbitmq.QueueOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareQueueErr != nil {
		return c.declareQueueErr
	}
	c.declaredQueues = append(c.declaredQueues, name)
	return nil
}

func (c *stubChannel) DeleteQueue(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletedQueues = append(c.deletedQueues, name)
	return nil
}

func (c *stubChannel) DeclareExchange(name string, opts rabbitmq.ExchangeOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareExchangeErr != nil {
		return c.declareExchangeErr
	}
	c.declaredExchanges = append(c.declaredExchanges, name)
	return nil
}

func (c *stubChannel) DeleteExchange(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletedExchanges = append(c.deletedExchanges, name)
	return nil
}

func (c *stubChannel) BindQueue(queue, exchange, routingKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bindErr != nil {
		return c.bindErr
	}
	c.bindings = append(c.bindings, binding{queue: queue, exchange: exchange, routingKey: routingKey})
	return nil
}

func (c *stubChannel) Get(queue string) (rabbitmq.Delivery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return rabbitmq.Delivery{}, false, nil
	}
	d := c.pending[0]
	c.pending = c.pending[1:]
	return d, true, nil
}

func (c *stubChannel) Consume(queue, consumerTag string, autoAck bool, onDelivery func(rabbitmq.Delivery)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumeErr != nil {
		return "", c.consumeErr
	}
	c.onDelivery = onDelivery
	if consumerTag != "" {
		return consumerTag, nil
	}
	return c.consumeTag, nil
}

func (c *stubChannel) Cancel(consumerTag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, consumerTag)
	return nil
}

func (c *stubChannel) Ack(deliveryTag uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acked = append(c.acked, deliveryTag)
	return nil
}

func (c *stubChannel) Publish(ctx context.Context, exchange, routingKey string, body []byte, opts rabbitmq.PublishOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, publishedMessage{
		exchange:   exchange,
		routingKey: routingKey,
		body:       body,
		opts:       opts,
	})
	return nil
}

func (c *stubChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// deliver feeds one delivery through the registered consume callback, the way
// the broker pump does.
func (c *stubChannel) deliver(d rabbitmq.Delivery) {
	c.mu.Lock()
	fn := c.onDelivery
	c.mu.Unlock()
	if fn != nil {
		fn(d)
	}
}

func (c *stubChannel) ackedTags() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.acked))
	copy(out, c.acked)
	return out
}

func (c *stubChannel) publishedMessages() []publishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]publishedMessage, len(c.published))
	copy(out, c.published)
	return out
}
