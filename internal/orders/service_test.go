package orders_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/ariefcatur/go-marketplace-checkout/internal/orders"
	"github.com/ariefcatur/go-marketplace-checkout/internal/orders/memstore"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []orders.Envelope
	err    error
}

func (r *recordingSink) Emit(_ context.Context, env orders.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, env)
	return r.err
}

func (r *recordingSink) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// fixture: store-a owned by seller-a sells A and C, store-b owned by seller-b sells B.
func newFixture(t *testing.T) (*orders.Service, *memstore.Store, *recordingSink) {
	t.Helper()
	st := memstore.New()
	st.AddStore("store-a", "seller-a")
	st.AddStore("store-b", "seller-b")
	st.AddProduct(orders.Product{ID: "A", StoreID: "store-a", Name: "Product A", UnitPrice: price(100), StockQuantity: 10})
	st.AddProduct(orders.Product{ID: "B", StoreID: "store-b", Name: "Product B", UnitPrice: price(50), StockQuantity: 3})
	st.AddProduct(orders.Product{ID: "C", StoreID: "store-a", Name: "Product C", UnitPrice: decimal.RequireFromString("19.99"), StockQuantity: 5})

	sink := &recordingSink{}
	svc := orders.NewService(st, orders.WithEvents(sink), orders.WithProducer("test"))
	return svc, st, sink
}

func placeOrder(t *testing.T, svc *orders.Service, st *memstore.Store, buyer string, lines ...orders.CartLine) orders.Order {
	t.Helper()
	st.SetCart(buyer, lines...)
	o, err := svc.Checkout(context.Background(), buyer)
	require.NoError(t, err)
	return o
}

// ============================================
// Checkout
// ============================================

func TestCheckout_Success(t *testing.T) {
	svc, st, sink := newFixture(t)
	st.SetCart("buyer-1", orders.CartLine{ProductID: "A", Quantity: 2})

	o, err := svc.Checkout(context.Background(), "buyer-1")

	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.True(t, o.TotalAmount.Equal(price(200)), o.TotalAmount.String())
	require.Len(t, o.Items, 1)
	assert.Equal(t, "store-a", o.Items[0].StoreID)
	assert.Equal(t, o.ID, o.Items[0].OrderID)
	assert.Equal(t, 8, st.Stock("A"))
	assert.Empty(t, st.Cart("buyer-1"))
	assert.Equal(t, []string{orders.EventOrderPlaced}, sink.types())
	assert.Equal(t, o.ID, sink.events[0].CorrelationID)
}

func TestCheckout_MultipleLines_TotalMatchesItems(t *testing.T) {
	svc, st, _ := newFixture(t)
	st.SetCart("buyer-1",
		orders.CartLine{ProductID: "C", Quantity: 3},
		orders.CartLine{ProductID: "A", Quantity: 1},
		orders.CartLine{ProductID: "B", Quantity: 2},
	)

	o, err := svc.Checkout(context.Background(), "buyer-1")

	require.NoError(t, err)
	assert.True(t, o.TotalConsistent())
	assert.Equal(t, "259.97", o.TotalAmount.StringFixed(2))
	assert.Equal(t, 2, st.Stock("C"))
	assert.Equal(t, 9, st.Stock("A"))
	assert.Equal(t, 1, st.Stock("B"))

	stored, ok := st.Order(o.ID)
	require.True(t, ok)
	assert.True(t, stored.TotalConsistent())
}

func TestCheckout_SnapshotIgnoresLaterPriceChanges(t *testing.T) {
	svc, st, _ := newFixture(t)
	o := placeOrder(t, svc, st, "buyer-1", orders.CartLine{ProductID: "A", Quantity: 1})

	st.AddProduct(orders.Product{ID: "A", StoreID: "store-a", Name: "Product A", UnitPrice: price(999), StockQuantity: 9})

	got, err := svc.GetOrder(context.Background(), orders.Buyer{UserID: "buyer-1"}, o.ID)
	require.NoError(t, err)
	assert.True(t, got.Items[0].UnitPriceAtPurchase.Equal(price(100)))
	assert.True(t, got.TotalAmount.Equal(price(100)))
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc, st, sink := newFixture(t)

	_, err := svc.Checkout(context.Background(), "buyer-1")

	assert.ErrorIs(t, err, orders.ErrEmptyCart)
	assert.Zero(t, st.OrderCount())
	assert.Empty(t, sink.types())
}

func TestCheckout_InsufficientStock_NoMutation(t *testing.T) {
	svc, st, _ := newFixture(t)
	cart := []orders.CartLine{{ProductID: "A", Quantity: 1}, {ProductID: "B", Quantity: 5}}
	st.SetCart("buyer-1", cart...)

	_, err := svc.Checkout(context.Background(), "buyer-1")

	require.ErrorIs(t, err, orders.ErrInsufficientStock)
	var e *orders.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "Product B", e.Product)
	assert.Equal(t, 3, e.Available)

	assert.Equal(t, 3, st.Stock("B"))
	assert.Equal(t, 10, st.Stock("A"))
	assert.Equal(t, cart, st.Cart("buyer-1"))
	assert.Zero(t, st.OrderCount())
}

func TestCheckout_LostDecrementRaceRollsBackOrder(t *testing.T) {
	svc, st, sink := newFixture(t)
	cart := []orders.CartLine{{ProductID: "A", Quantity: 2}, {ProductID: "B", Quantity: 1}}
	st.SetCart("buyer-1", cart...)
	st.LoseRace("B")

	_, err := svc.Checkout(context.Background(), "buyer-1")

	require.ErrorIs(t, err, orders.ErrInsufficientStock)
	var e *orders.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "Product B", e.Product)
	assert.Equal(t, 3, e.Available)

	assert.Zero(t, st.OrderCount())
	assert.Equal(t, 10, st.Stock("A"), "decrement of A was issued before B and must be undone")
	assert.Equal(t, 3, st.Stock("B"))
	assert.Equal(t, cart, st.Cart("buyer-1"))
	assert.Empty(t, sink.types())
}

func TestCheckout_DuplicateLinesCountedTogether(t *testing.T) {
	svc, st, _ := newFixture(t)
	st.SetCart("buyer-1",
		orders.CartLine{ProductID: "B", Quantity: 2},
		orders.CartLine{ProductID: "B", Quantity: 2},
	)

	_, err := svc.Checkout(context.Background(), "buyer-1")

	assert.ErrorIs(t, err, orders.ErrInsufficientStock)
	assert.Equal(t, 3, st.Stock("B"))
}

func TestCheckout_ProductNotFound(t *testing.T) {
	svc, st, _ := newFixture(t)
	st.SetCart("buyer-1", orders.CartLine{ProductID: "A", Quantity: 1}, orders.CartLine{ProductID: "gone", Quantity: 1})

	_, err := svc.Checkout(context.Background(), "buyer-1")

	assert.ErrorIs(t, err, orders.ErrProductNotFound)
	assert.Equal(t, 10, st.Stock("A"))
	assert.Len(t, st.Cart("buyer-1"), 2)
	assert.Zero(t, st.OrderCount())
}

func TestCheckout_InvalidInput(t *testing.T) {
	svc, st, _ := newFixture(t)

	_, err := svc.Checkout(context.Background(), "")
	assert.ErrorIs(t, err, orders.ErrInvalidInput)

	st.SetCart("buyer-1", orders.CartLine{ProductID: "A", Quantity: 0})
	_, err = svc.Checkout(context.Background(), "buyer-1")
	assert.ErrorIs(t, err, orders.ErrInvalidInput)
	assert.Equal(t, 10, st.Stock("A"))
}

func TestCheckout_StorageFailureRollsBackEverything(t *testing.T) {
	for _, op := range []string{memstore.OpCreateOrder, memstore.OpDecrement, memstore.OpClearCart, memstore.OpCommit} {
		t.Run(op, func(t *testing.T) {
			svc, st, sink := newFixture(t)
			cart := []orders.CartLine{{ProductID: "A", Quantity: 2}, {ProductID: "C", Quantity: 1}}
			st.SetCart("buyer-1", cart...)
			st.FailOn(op, errors.New("connection reset"))

			_, err := svc.Checkout(context.Background(), "buyer-1")

			require.ErrorIs(t, err, orders.ErrStorageFailure)
			var e *orders.Error
			require.True(t, errors.As(err, &e))
			assert.True(t, e.Retryable())
			assert.Equal(t, 10, st.Stock("A"))
			assert.Equal(t, 5, st.Stock("C"))
			assert.Equal(t, cart, st.Cart("buyer-1"))
			assert.Zero(t, st.OrderCount())
			assert.Empty(t, sink.types())
		})
	}
}

func TestCheckout_EmitFailureDoesNotUndoOrder(t *testing.T) {
	svc, st, sink := newFixture(t)
	sink.err = errors.New("broker down")
	st.SetCart("buyer-1", orders.CartLine{ProductID: "A", Quantity: 1})

	o, err := svc.Checkout(context.Background(), "buyer-1")

	require.NoError(t, err)
	_, ok := st.Order(o.ID)
	assert.True(t, ok)
	assert.Equal(t, 9, st.Stock("A"))
}

func TestCheckout_OversellPreventedUnderContention(t *testing.T) {
	const stock, buyers = 5, 40
	st := memstore.New()
	st.AddStore("store-a", "seller-a")
	st.AddProduct(orders.Product{ID: "hot", StoreID: "store-a", Name: "Hot Item", UnitPrice: price(10), StockQuantity: stock})
	svc := orders.NewService(st)

	for i := 0; i < buyers; i++ {
		st.SetCart(fmt.Sprintf("buyer-%d", i), orders.CartLine{ProductID: "hot", Quantity: 1})
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), fmt.Sprintf("buyer-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, orders.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, stock, ok)
	assert.Equal(t, buyers-stock, rejected)
	assert.Equal(t, 0, st.Stock("hot"))
	assert.Equal(t, stock, st.OrderCount())
}

// ============================================
// Listing
// ============================================

func TestListOrders_PaginatesNewestFirst(t *testing.T) {
	svc, st, _ := newFixture(t)
	first := placeOrder(t, svc, st, "buyer-1", orders.CartLine{ProductID: "A", Quantity: 1})
	second := placeOrder(t, svc, st, "buyer-1", orders.CartLine{ProductID: "A", Quantity: 1})
	third := placeOrder(t, svc, st, "buyer-1", orders.CartLine{ProductID: "A", Quantity: 1})
	placeOrder(t, svc, st, "buyer-2", orders.CartLine{ProductID: "A", Quantity: 1})

	p1, err := svc.ListOrders(context.Background(), "buyer-1", orders.NewPage(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, p1.Total)
	require.Len(t, p1.Orders, 2)
	assert.Equal(t, third.ID, p1.Orders[0].ID)
	assert.Equal(t, second.ID, p1.Orders[1].ID)

	p2, err := svc.ListOrders(context.Background(), "buyer-1", orders.NewPage(2, 2))
	require.NoError(t, err)
	require.Len(t, p2.Orders, 1)
	assert.Equal(t, first.ID, p2.Orders[0].ID)

	empty, err := svc.ListOrders(context.Background(), "nobody", orders.NewPage(1, 10))
	require.NoError(t, err)
	assert.NotNil(t, empty.Orders)
	assert.Zero(t, empty.Total)
}

func TestListSellerOrders_WholeOrderForAnyMatchingItem(t *testing.T) {
	svc, st, _ := newFixture(t)
	mixed := placeOrder(t, svc, st, "buyer-1", orders.CartLine{ProductID: "A", Quantity: 1}, orders.CartLine{ProductID: "B", Quantity: 1})
	placeOrder(t, svc, st, "buyer-2", orders.CartLine{ProductID: "A", Quantity: 1})

	pb, err := svc.ListSellerOrders(context.Background(), "seller-b", orders.NewPage(1, 10))
	require.NoError(t, err)
	require.Equal(t, 1, pb.Total)
	assert.Equal(t, mixed.ID, pb.Orders[0].ID)
	assert.Len(t, pb.Orders[0].Items, 2)

	pa, err := svc.ListSellerOrders(context.Background(), "seller-a", orders.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 2, pa.Total)
}

func TestList_NormalizesPage(t *testing.T) {
	svc, st, _ := newFixture(t)
	placeOrder(t, svc, st, "buyer-1", orders.CartLine{ProductID: "A", Quantity: 1})

	p, err := svc.ListOrders(context.Background(), "buyer-1", orders.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, orders.DefaultPageLimit, p.Limit)
	assert.Equal(t, 1, p.Total)
	assert.Len(t, p.Orders, 1)

	p, err = svc.ListSellerOrders(context.Background(), "seller-a", orders.Page{Number: -3, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Len(t, p.Orders, 1)

	p, err = svc.ListOrders(context.Background(), "buyer-1", orders.Page{Number: math.MaxInt, Limit: orders.MaxPageLimit})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Total)
	assert.Empty(t, p.Orders)
}

func TestPage_Offset(t *testing.T) {
	tests := []struct {
		name string
		page orders.Page
		want int
	}{
		{"first page", orders.Page{Number: 1, Limit: 20}, 0},
		{"third page", orders.Page{Number: 3, Limit: 10}, 20},
		{"negative page", orders.Page{Number: -3, Limit: 10}, 0},
		{"zero limit", orders.Page{Number: 4}, 0},
		{"huge page", orders.Page{Number: math.MaxInt, Limit: 100}, orders.MaxOffset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.page.Offset())
		})
	}
}

func TestList_StorageFailure(t *testing.T) {
	svc, st, _ := newFixture(t)
	st.FailOn(memstore.OpListBySeller, errors.New("timeout"))

	_, err := svc.ListSellerOrders(context.Background(), "seller-a", orders.NewPage(1, 10))
	assert.ErrorIs(t, err, orders.ErrStorageFailure)

	_, err = svc.ListOrders(context.Background(), "", orders.NewPage(1, 10))
	assert.ErrorIs(t, err, orders.ErrInvalidInput)
}
