// Package memstore is an in-memory orders.TxRunner. Units of work are
// serialized and rolled back from a snapshot when they fail, which gives the
// same atomicity guarantees as the Postgres store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-marketplace-checkout/internal/orders"
	"github.com/shopspring/decimal"
)

// Operation names accepted by FailOn.
const (
	OpCartLines    = "CartLines"
	OpClearCart    = "ClearCart"
	OpProduct      = "ProductForCheckout"
	OpDecrement    = "DecrementStock"
	OpIncrement    = "IncrementStock"
	OpCreateOrder  = "CreateOrderWithItems"
	OpFindByID     = "FindByID"
	OpUpdateStatus = "UpdateStatus"
	OpListByBuyer  = "ListByBuyer"
	OpListBySeller = "ListBySeller"
	OpOwnerOf      = "OwnerOf"
	OpCommit       = "Commit"
)

type state struct {
	stores   map[string]orders.Store
	products map[string]orders.Product
	carts    map[string][]orders.CartLine
	orders   map[string]orders.Order
	seq      int
}

func (s state) clone() state {
	c := state{
		stores:   make(map[string]orders.Store, len(s.stores)),
		products: make(map[string]orders.Product, len(s.products)),
		carts:    make(map[string][]orders.CartLine, len(s.carts)),
		orders:   make(map[string]orders.Order, len(s.orders)),
		seq:      s.seq,
	}
	for k, v := range s.stores {
		c.stores[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = append([]orders.CartLine(nil), v...)
	}
	for k, v := range s.orders {
		c.orders[k] = copyOrder(v)
	}
	return c
}

type Store struct {
	mu       sync.Mutex
	st       state
	faults   map[string]error
	lostRace map[string]bool
	now      func() time.Time
}

func New() *Store {
	return &Store{
		st: state{
			stores:   map[string]orders.Store{},
			products: map[string]orders.Product{},
			carts:    map[string][]orders.CartLine{},
			orders:   map[string]orders.Order{},
		},
		faults:   map[string]error{},
		lostRace: map[string]bool{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes the next call of op fail with err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

// LoseRace makes the next guarded decrement of productID report that the
// guard did not hold, as if a concurrent checkout had taken the stock between
// the read and the write. Stock itself is left alone.
func (s *Store) LoseRace(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lostRace[productID] = true
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.st.clone()
	if err := fn(ctx, &tx{s: s}); err != nil {
		s.st = snap
		return err
	}
	if err := s.fault(OpCommit); err != nil {
		s.st = snap
		return err
	}
	return nil
}

func (s *Store) fault(op string) error {
	err, ok := s.faults[op]
	if !ok {
		return nil
	}
	delete(s.faults, op)
	return err
}

// Seeding and inspection helpers. They take the lock themselves and must not
// be called from inside Atomic.

func (s *Store) AddStore(id, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.stores[id] = orders.Store{ID: id, OwnerID: ownerID}
}

func (s *Store) AddProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.products, id)
}

func (s *Store) SetCart(buyerID string, lines ...orders.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.carts[buyerID] = append([]orders.CartLine(nil), lines...)
}

func (s *Store) Cart(buyerID string) []orders.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orders.CartLine(nil), s.st.carts[buyerID]...)
}

func (s *Store) Stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.products[productID].StockQuantity
}

func (s *Store) Order(id string) (orders.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	return copyOrder(o), ok
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

// SetStatus forces a status, bypassing the state machine. Test setup only.
func (s *Store) SetStatus(orderID string, status orders.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.st.orders[orderID]
	o.Status = status
	s.st.orders[orderID] = o
}

type tx struct{ s *Store }

func (t *tx) CartLines(_ context.Context, buyerID string) ([]orders.CartLine, error) {
	if err := t.s.fault(OpCartLines); err != nil {
		return nil, err
	}
	return append([]orders.CartLine(nil), t.s.st.carts[buyerID]...), nil
}

func (t *tx) ClearCart(_ context.Context, buyerID string, lines []orders.CartLine) error {
	if err := t.s.fault(OpClearCart); err != nil {
		return err
	}
	bought := make(map[string]bool, len(lines))
	for _, l := range lines {
		bought[l.ProductID] = true
	}
	var left []orders.CartLine
	for _, l := range t.s.st.carts[buyerID] {
		if !bought[l.ProductID] {
			left = append(left, l)
		}
	}
	if len(left) == 0 {
		delete(t.s.st.carts, buyerID)
		return nil
	}
	t.s.st.carts[buyerID] = left
	return nil
}

func (t *tx) ProductForCheckout(_ context.Context, productID string) (orders.Product, error) {
	if err := t.s.fault(OpProduct); err != nil {
		return orders.Product{}, err
	}
	p, ok := t.s.st.products[productID]
	if !ok {
		return orders.Product{}, orders.ErrRecordNotFound
	}
	return p, nil
}

func (t *tx) DecrementStock(_ context.Context, productID string, qty int) (bool, error) {
	if err := t.s.fault(OpDecrement); err != nil {
		return false, err
	}
	if t.s.lostRace[productID] {
		delete(t.s.lostRace, productID)
		return false, nil
	}
	p, ok := t.s.st.products[productID]
	if !ok || p.StockQuantity < qty {
		return false, nil
	}
	p.StockQuantity -= qty
	t.s.st.products[productID] = p
	return true, nil
}

func (t *tx) IncrementStock(_ context.Context, productID string, qty int) error {
	if err := t.s.fault(OpIncrement); err != nil {
		return err
	}
	p, ok := t.s.st.products[productID]
	if !ok {
		return orders.ErrRecordNotFound
	}
	p.StockQuantity += qty
	t.s.st.products[productID] = p
	return nil
}

func (t *tx) CreateOrderWithItems(_ context.Context, buyerID string, total decimal.Decimal, items []orders.OrderItem) (orders.Order, error) {
	if err := t.s.fault(OpCreateOrder); err != nil {
		return orders.Order{}, err
	}
	t.s.st.seq++
	now := t.s.now().Add(time.Duration(t.s.st.seq) * time.Microsecond)
	o := orders.Order{
		ID:          fmt.Sprintf("ord-%04d", t.s.st.seq),
		BuyerID:     buyerID,
		Status:      orders.StatusPending,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items:       make([]orders.OrderItem, len(items)),
	}
	for i, it := range items {
		it.OrderID = o.ID
		o.Items[i] = it
	}
	t.s.st.orders[o.ID] = o
	return copyOrder(o), nil
}

func (t *tx) FindByID(_ context.Context, orderID string, _ bool) (orders.Order, error) {
	if err := t.s.fault(OpFindByID); err != nil {
		return orders.Order{}, err
	}
	o, ok := t.s.st.orders[orderID]
	if !ok {
		return orders.Order{}, orders.ErrRecordNotFound
	}
	return copyOrder(o), nil
}

func (t *tx) UpdateStatus(_ context.Context, orderID string, status orders.Status) error {
	if err := t.s.fault(OpUpdateStatus); err != nil {
		return err
	}
	o, ok := t.s.st.orders[orderID]
	if !ok {
		return orders.ErrRecordNotFound
	}
	o.Status = status
	o.UpdatedAt = t.s.now()
	t.s.st.orders[orderID] = o
	return nil
}

func (t *tx) ListByBuyer(_ context.Context, buyerID string, page orders.Page) ([]orders.Order, int, error) {
	if err := t.s.fault(OpListByBuyer); err != nil {
		return nil, 0, err
	}
	return t.page(page, func(o orders.Order) bool { return o.BuyerID == buyerID })
}

func (t *tx) ListBySeller(_ context.Context, sellerID string, page orders.Page) ([]orders.Order, int, error) {
	if err := t.s.fault(OpListBySeller); err != nil {
		return nil, 0, err
	}
	return t.page(page, func(o orders.Order) bool {
		for _, it := range o.Items {
			if st, ok := t.s.st.stores[it.StoreID]; ok && st.OwnerID == sellerID {
				return true
			}
		}
		return false
	})
}

func (t *tx) OwnerOf(_ context.Context, storeID string) (string, error) {
	if err := t.s.fault(OpOwnerOf); err != nil {
		return "", err
	}
	st, ok := t.s.st.stores[storeID]
	if !ok {
		return "", orders.ErrRecordNotFound
	}
	return st.OwnerID, nil
}

// page returns matches newest first, like the SQL store.
func (t *tx) page(p orders.Page, match func(orders.Order) bool) ([]orders.Order, int, error) {
	var all []orders.Order
	for _, o := range t.s.st.orders {
		if match(o) {
			all = append(all, copyOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	start := p.Offset()
	if start >= total {
		return []orders.Order{}, total, nil
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func copyOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.OrderItem(nil), o.Items...)
	return o
}
