package messaging

import "github.com/harelabs/hare-go/rabbitmq"

// Message is one message as seen by application code. Body carries the raw
// bytes off the wire; Value holds the decoded form when a DecodeFunc ran.
// The delivery tag identifies the message for acknowledgment.
type Message struct {
	Body        []byte
	Value       interface{}
	DeliveryTag uint64
	RoutingKey  string
	Exchange    string
	ContentType string
	Headers     map[string]interface{}
	Redelivered bool
}

func fromDelivery(d rabbitmq.Delivery) Message {
	return Message{
		Body:        d.Body,
		DeliveryTag: d.DeliveryTag,
		RoutingKey:  d.RoutingKey,
		Exchange:    d.Exchange,
		ContentType: d.ContentType,
		Headers:     d.Headers,
		Redelivered: d.Redelivered,
	}
}
