// Package messaging provides queue consumers, exchange publishers, and
// processing workers on top of the rabbitmq connection layer.
//
// The package implements the application-facing messaging surface:
//   - Consumer: Reads one queue via polling (Get), push subscription
//     (Subscribe), or pull iteration (Messages), declaring the queue once
//     per process
//   - Publisher: Delivers messages to one exchange with per-message
//     overrides, declaring the exchange once per process
//   - Worker: Drains a consumer through a ProcessFunc with optional fault
//     tolerance, failure notification, and transactional processing
//   - Codecs: EncodeFunc and DecodeFunc hooks, with raw and JSON
//     implementations
//
// Example usage:
//
//	conn, err := rabbitmq.NewSharedConnection(registry, params)
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	pub, err := messaging.NewPublisher(conn, "orders")
//	err = pub.Publish(ctx, []byte("order created"), messaging.WithRoutingKey("order.created"))
//
//	cons, err := messaging.NewConsumer(conn, "order-mailer",
//		messaging.WithBinding("orders", "order.created"))
//	it, err := cons.Messages(ctx, messaging.WithLimit(10))
//	defer it.Close()
//	for {
//		msg, err := it.Next(ctx)
//		if errors.Is(err, messaging.ErrIterationDone) {
//			break
//		}
//		// process msg, then cons.Ack(msg)
//	}
//
// Consumers and publishers built on a disabled connection handle perform no
// broker operations, so application code runs unchanged with messaging
// switched off.
package messaging
