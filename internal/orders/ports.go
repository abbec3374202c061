package orders

import (
	"context"

	"github.com/shopspring/decimal"
)

// CartSource holds a buyer's pending lines. CartLines locks the lines it
// returns until the unit of work ends; ClearCart removes exactly those lines,
// leaving anything added concurrently for a later checkout.
type CartSource interface {
	CartLines(ctx context.Context, buyerID string) ([]CartLine, error)
	ClearCart(ctx context.Context, buyerID string, lines []CartLine) error
}

// Inventory exposes the only two ways stock may change: a decrement guarded
// by the store (stock_quantity >= qty) and an unconditional increment.
type Inventory interface {
	ProductForCheckout(ctx context.Context, productID string) (Product, error)
	DecrementStock(ctx context.Context, productID string, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID string, qty int) error
}

type OrderRepository interface {
	CreateOrderWithItems(ctx context.Context, buyerID string, total decimal.Decimal, items []OrderItem) (Order, error)
	// FindByID loads the order with its items. forUpdate locks the order row
	// until the unit of work ends.
	FindByID(ctx context.Context, orderID string, forUpdate bool) (Order, error)
	UpdateStatus(ctx context.Context, orderID string, status Status) error
	ListByBuyer(ctx context.Context, buyerID string, page Page) ([]Order, int, error)
	ListBySeller(ctx context.Context, sellerID string, page Page) ([]Order, int, error)
}

type StoreDirectory interface {
	OwnerOf(ctx context.Context, storeID string) (string, error)
}

// Tx is one unit of work against the durable store.
type Tx interface {
	CartSource
	Inventory
	OrderRepository
	StoreDirectory
}

// TxRunner runs fn atomically: everything fn wrote is committed when it
// returns nil and rolled back otherwise. The error from fn is returned as is.
type TxRunner interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
