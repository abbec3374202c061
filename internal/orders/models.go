package orders

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type CartLine struct {
	ProductID string
	Quantity  int
}

type Product struct {
	ID            string
	StoreID       string
	Name          string
	UnitPrice     decimal.Decimal
	StockQuantity int
}

type Store struct {
	ID      string
	OwnerID string
}

type Order struct {
	ID          string          `json:"id"`
	BuyerID     string          `json:"buyer_id"`
	Status      Status          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Items       []OrderItem     `json:"items"`
}

// OrderItem is the price/quantity snapshot taken at checkout. StoreID is
// captured too so seller standing survives later catalog edits.
type OrderItem struct {
	OrderID             string          `json:"order_id"`
	ProductID           string          `json:"product_id"`
	ProductName         string          `json:"product_name"`
	StoreID             string          `json:"store_id"`
	UnitPriceAtPurchase decimal.Decimal `json:"unit_price"`
	Quantity            int             `json:"quantity"`
}

func (it OrderItem) Subtotal() decimal.Decimal {
	return it.UnitPriceAtPurchase.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

func SumItems(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// TotalConsistent reports whether TotalAmount equals the sum of its items.
func (o Order) TotalConsistent() bool {
	return o.TotalAmount.Equal(SumItems(o.Items))
}

// Quantities returns purchased units per product.
func Quantities(items []OrderItem) map[string]int {
	out := make(map[string]int, len(items))
	for _, it := range items {
		out[it.ProductID] += it.Quantity
	}
	return out
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type Page struct {
	Number int
	Limit  int
}

// NewPage clamps to page >= 1 and limit in [1, MaxPageLimit].
func NewPage(number, limit int) Page {
	if number < 1 {
		number = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Number: number, Limit: limit}
}

// MaxOffset bounds Offset for absurdly large page numbers.
const MaxOffset = math.MaxInt32

// Offset is the number of rows to skip. Pages below 1 start at 0.
func (p Page) Offset() int {
	if p.Number <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Number-1 > MaxOffset/p.Limit {
		return MaxOffset
	}
	return (p.Number - 1) * p.Limit
}

type OrderPage struct {
	Orders []Order `json:"orders"`
	Total  int     `json:"total"`
	Page   int     `json:"page"`
	Limit  int     `json:"limit"`
}
