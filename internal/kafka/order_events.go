package kafka

import (
	"context"
	"strconv"

	"github.com/ariefcatur/go-marketplace-checkout/internal/orders"
	"github.com/segmentio/kafka-go"
)

// Publisher is the part of Producer the order event sink needs.
type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// OrderEvents publishes order lifecycle envelopes keyed by order id.
type OrderEvents struct {
	P Publisher
}

func (e OrderEvents) Emit(_ context.Context, env orders.Envelope) error {
	b, err := Marshal(env)
	if err != nil {
		return err
	}
	return e.P.Publish(orders.PartitionKey(env.CorrelationID), b,
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}
