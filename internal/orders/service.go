package orders

import (
	"context"

	"github.com/ariefcatur/go-marketplace-checkout/internal/logx"
	"go.uber.org/zap"
)

// Service is the checkout and order-lifecycle core. It keeps no state of its
// own: every call is one unit of work against the TxRunner.
type Service struct {
	store    TxRunner
	events   EventSink
	log      *zap.Logger
	producer string
}

type Option func(*Service)

func WithEvents(sink EventSink) Option { return func(s *Service) { s.events = sink } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithProducer names the service in emitted event envelopes.
func WithProducer(name string) Option { return func(s *Service) { s.producer = name } }

func NewService(store TxRunner, opts ...Option) *Service {
	s := &Service{store: store, log: zap.NewNop(), producer: "checkout-api"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) ListOrders(ctx context.Context, buyerID string, page Page) (OrderPage, error) {
	if buyerID == "" {
		return OrderPage{}, InvalidInput("buyer id is required")
	}
	return s.list(ctx, page, func(ctx context.Context, tx Tx, p Page) ([]Order, int, error) {
		return tx.ListByBuyer(ctx, buyerID, p)
	})
}

// ListSellerOrders returns every order with at least one item from a store
// owned by sellerID. Orders are returned whole.
func (s *Service) ListSellerOrders(ctx context.Context, sellerID string, page Page) (OrderPage, error) {
	if sellerID == "" {
		return OrderPage{}, InvalidInput("seller id is required")
	}
	return s.list(ctx, page, func(ctx context.Context, tx Tx, p Page) ([]Order, int, error) {
		return tx.ListBySeller(ctx, sellerID, p)
	})
}

// list clamps page once and hands the clamped value to the store query.
func (s *Service) list(ctx context.Context, page Page, q func(context.Context, Tx, Page) ([]Order, int, error)) (OrderPage, error) {
	page = NewPage(page.Number, page.Limit)
	out := OrderPage{Page: page.Number, Limit: page.Limit, Orders: []Order{}}
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		list, total, err := q(ctx, tx, page)
		if err != nil {
			return err
		}
		if list != nil {
			out.Orders = list
		}
		out.Total = total
		return nil
	})
	if err != nil {
		logx.Error(ctx, s.log, "list orders failed", zap.Error(err))
		return OrderPage{}, asResult(err)
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, eventType, orderID string, payload any) {
	if s.events == nil {
		return
	}
	env, err := newEnvelope(s.producer, eventType, orderID, payload)
	if err == nil {
		err = s.events.Emit(ctx, env)
	}
	if err != nil {
		logx.Warn(ctx, s.log, "emit event failed",
			zap.String("event_type", eventType),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}
