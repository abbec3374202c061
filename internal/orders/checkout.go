package orders

import (
	"context"
	"errors"
	"sort"

	"github.com/ariefcatur/go-marketplace-checkout/internal/logx"
	"go.uber.org/zap"
)

// Checkout turns the buyer's cart into a PENDING order. Within one unit of
// work it snapshots prices, inserts the order and its items, decrements stock
// with a guarded write and clears the cart. Any failure leaves no trace.
//
// Checkout is not idempotent: after a StorageFailure the caller must confirm
// that no order was created before calling again.
func (s *Service) Checkout(ctx context.Context, buyerID string) (Order, error) {
	if buyerID == "" {
		return Order{}, InvalidInput("buyer id is required")
	}

	var created Order
	err := s.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		lines, err := tx.CartLines(ctx, buyerID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		items, names, err := snapshotLines(ctx, tx, lines)
		if err != nil {
			return err
		}

		created, err = tx.CreateOrderWithItems(ctx, buyerID, SumItems(items), items)
		if err != nil {
			return err
		}

		if err := decrementAll(ctx, tx, items, names); err != nil {
			return err
		}
		return tx.ClearCart(ctx, buyerID, lines)
	})
	if err != nil {
		err = asResult(err)
		if errors.Is(err, ErrStorageFailure) {
			logx.Error(ctx, s.log, "checkout failed", zap.String("buyer_id", buyerID), zap.Error(err))
		} else {
			logx.Warn(ctx, s.log, "checkout rejected", zap.String("buyer_id", buyerID), zap.Error(err))
		}
		return Order{}, err
	}

	logx.Info(ctx, s.log, "order placed",
		zap.String("order_id", created.ID),
		zap.String("buyer_id", buyerID),
		zap.String("total", created.TotalAmount.String()),
		zap.Int("items", len(created.Items)),
	)
	s.emit(ctx, EventOrderPlaced, created.ID, placedPayload(created))
	return created, nil
}

// snapshotLines joins each cart line with its product and checks the
// requested quantity against current stock. The first failing line is
// reported; nothing has been written at that point.
func snapshotLines(ctx context.Context, tx Tx, lines []CartLine) ([]OrderItem, map[string]string, error) {
	items := make([]OrderItem, 0, len(lines))
	names := make(map[string]string, len(lines))
	requested := make(map[string]int, len(lines))

	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, nil, InvalidInput("cart line quantity must be positive")
		}
		p, err := tx.ProductForCheckout(ctx, l.ProductID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return nil, nil, ProductNotFound(l.ProductID)
			}
			return nil, nil, err
		}
		requested[p.ID] += l.Quantity
		if requested[p.ID] > p.StockQuantity {
			return nil, nil, InsufficientStock(p.Name, p.StockQuantity)
		}
		names[p.ID] = p.Name
		items = append(items, OrderItem{
			ProductID:           p.ID,
			ProductName:         p.Name,
			StoreID:             p.StoreID,
			UnitPriceAtPurchase: p.UnitPrice,
			Quantity:            l.Quantity,
		})
	}
	return items, names, nil
}

// decrementAll issues one guarded decrement per product, in ascending product
// id order so concurrent checkouts lock rows in the same order.
func decrementAll(ctx context.Context, tx Tx, items []OrderItem, names map[string]string) error {
	qty := Quantities(items)
	ids := make([]string, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		ok, err := tx.DecrementStock(ctx, id, qty[id])
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		// Lost the race to a concurrent checkout since the snapshot.
		available := 0
		if p, err := tx.ProductForCheckout(ctx, id); err == nil {
			available = p.StockQuantity
		}
		return InsufficientStock(names[id], available)
	}
	return nil
}
