package orders

import (
	"context"
	"errors"
	"strings"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusShipped   Status = "SHIPPED"
	StatusDone      Status = "DONE"
	StatusCancelled Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDone: true},
	StatusDone:      {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// ParseStatus accepts any letter case ("paid", "PAID").
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", InvalidInput("unknown order status " + v)
	}
	return s, nil
}

// Effect is a write attached to entering a status. It runs inside the same
// unit of work as the status write and reports the stock it gave back.
type Effect func(ctx context.Context, tx Tx, o Order) ([]ItemQty, error)

var onEnter = map[Status]Effect{
	StatusCancelled: restoreStock,
}

// restoreStock gives back every purchased quantity of the order. Products that
// no longer exist are skipped.
func restoreStock(ctx context.Context, tx Tx, o Order) ([]ItemQty, error) {
	restored := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		if err := tx.IncrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		restored = append(restored, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return restored, nil
}

// applyTransition moves o to the requested status: it checks the table, runs
// the on-enter effect and writes the new status. restored is nil when no
// effect ran. Callers own the transaction.
func applyTransition(ctx context.Context, tx Tx, o *Order, to Status) (restored []ItemQty, err error) {
	if !CanTransition(o.Status, to) {
		return nil, InvalidTransition(o.Status, to)
	}
	if fx, ok := onEnter[to]; ok {
		if restored, err = fx(ctx, tx, *o); err != nil {
			return nil, err
		}
	}
	if err := tx.UpdateStatus(ctx, o.ID, to); err != nil {
		return nil, err
	}
	o.Status = to
	return restored, nil
}
