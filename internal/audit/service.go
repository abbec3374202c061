package audit

import (
	"context"

	kafkax "github.com/ariefcatur/go-marketplace-checkout/internal/kafka"
	"github.com/ariefcatur/go-marketplace-checkout/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Recorder interface {
	Record(ctx context.Context, env orders.Envelope) (bool, error)
}

type Dedup interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Service persists order lifecycle events consumed from Kafka.
type Service struct {
	Repo  Recorder
	Dedup Dedup
	Log   *zap.Logger
}

// HandleOrderEvent is installed as the consumer handler. The insert is
// idempotent on event id; the dedup cache only saves the round trip.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		// Poison message: log and let the offset move on.
		s.Log.Warn("skip undecodable event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	switch env.EventType {
	case orders.EventOrderPlaced, orders.EventOrderStatusChanged:
	default:
		return nil
	}
	if env.EventID == "" || env.CorrelationID == "" {
		s.Log.Warn("skip event without ids", zap.String("event_type", env.EventType))
		return nil
	}

	if seen, err := s.Dedup.Seen(ctx, env.EventID); err == nil && seen {
		return nil
	}

	inserted, err := s.Repo.Record(ctx, env)
	if err != nil {
		return err
	}
	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		s.Log.Warn("dedup mark failed", zap.String("event_id", env.EventID), zap.Error(err))
	}
	if inserted {
		s.Log.Info("order event recorded",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.String("order_id", env.CorrelationID),
		)
	}
	return nil
}
