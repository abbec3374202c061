package orders

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-marketplace-checkout/internal/logx"
	"go.uber.org/zap"
)

// GetOrder returns the order if actor may see it. Existence is checked
// before authorization.
func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	if actor == nil {
		return Order{}, ErrForbidden
	}
	var out Order
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		access, err := loadAccess(ctx, tx, orderID, false)
		if err != nil {
			return err
		}
		if !actor.CanView(access) {
			return ErrForbidden
		}
		out = access.Order
		return nil
	})
	if err != nil {
		return Order{}, asResult(err)
	}
	return out, nil
}

func (s *Service) CancelOrder(ctx context.Context, actor Actor, orderID string) (Order, error) {
	return s.UpdateStatus(ctx, actor, orderID, StatusCancelled)
}

// UpdateStatus moves the order to status to. The checks run in this order:
// existence, visibility, the transition table, then the actor's own rights.
// Entering CANCELLED restores stock in the same unit of work.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, orderID string, to Status) (Order, error) {
	if actor == nil {
		return Order{}, ErrForbidden
	}
	if !to.Valid() {
		return Order{}, InvalidInput("unknown order status " + string(to))
	}

	var (
		updated  Order
		from     Status
		restored []ItemQty
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		access, err := loadAccess(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if !actor.CanView(access) {
			return ErrForbidden
		}
		o := access.Order
		from = o.Status
		if !CanTransition(from, to) {
			return InvalidTransition(from, to)
		}
		if !actor.CanRequest(access, to) {
			return ErrForbidden
		}
		restored, err = applyTransition(ctx, tx, &o, to)
		if err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		err = asResult(err)
		fields := []zap.Field{
			zap.String("order_id", orderID),
			zap.String("actor_id", actor.ID()),
			zap.String("to", string(to)),
			zap.Error(err),
		}
		if errors.Is(err, ErrStorageFailure) {
			logx.Error(ctx, s.log, "status update failed", fields...)
		} else {
			logx.Warn(ctx, s.log, "status update rejected", fields...)
		}
		return Order{}, err
	}

	logx.Info(ctx, s.log, "order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_kind", string(actor.Kind())),
		zap.Int("items_restored", len(restored)),
	)
	payload := OrderStatusChangedPayload{
		OrderID:       orderID,
		From:          from,
		To:            to,
		ActorID:       actor.ID(),
		ActorKind:     actor.Kind(),
		StockRestored: restored,
	}
	s.emit(ctx, EventOrderStatusChanged, orderID, payload)
	return updated, nil
}

func loadAccess(ctx context.Context, tx Tx, orderID string, forUpdate bool) (Access, error) {
	if orderID == "" {
		return Access{}, ErrOrderNotFound
	}
	o, err := tx.FindByID(ctx, orderID, forUpdate)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return Access{}, ErrOrderNotFound
		}
		return Access{}, err
	}
	return resolveAccess(ctx, tx, o)
}
