package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-marketplace-checkout/internal/logx"
	"github.com/ariefcatur/go-marketplace-checkout/internal/orders"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store runs units of work as READ COMMITTED transactions. Stock guards are
// conditional UPDATEs, which Postgres re-evaluates against the latest row
// version once the row lock is acquired.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewStore(pool *pgxpool.Pool, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		rbCtx := context.WithoutCancel(ctx)
		if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logx.Warn(rbCtx, s.log, "rollback failed", zap.Error(err))
		}
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct{ tx pgx.Tx }

func (t *pgTx) CartLines(ctx context.Context, buyerID string) ([]orders.CartLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT product_id, quantity FROM cart_items
		WHERE buyer_id = $1
		ORDER BY created_at, product_id
		FOR UPDATE`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.CartLine
	for rows.Next() {
		var l orders.CartLine
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ClearCart deletes only the lines checkout read. Lines committed by another
// request after CartLines stay in the cart.
func (t *pgTx) ClearCart(ctx context.Context, buyerID string, lines []orders.CartLine) error {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	_, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id = $1 AND product_id = ANY($2)`, buyerID, ids)
	return err
}

func (t *pgTx) ProductForCheckout(ctx context.Context, productID string) (orders.Product, error) {
	var p orders.Product
	err := t.tx.QueryRow(ctx, `
		SELECT id, store_id, name, unit_price, stock_quantity
		FROM products WHERE id = $1`, productID,
	).Scan(&p.ID, &p.StoreID, &p.Name, &p.UnitPrice, &p.StockQuantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, orders.ErrRecordNotFound
	}
	return p, err
}

// DecrementStock subtracts qty only when enough stock is left. false means
// the guard did not hold (or the product is gone).
func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND stock_quantity >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *pgTx) IncrementStock(ctx context.Context, productID string, qty int) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrRecordNotFound
	}
	return nil
}

func (t *pgTx) CreateOrderWithItems(ctx context.Context, buyerID string, total decimal.Decimal, items []orders.OrderItem) (orders.Order, error) {
	o := orders.Order{
		ID:          uuid.NewString(),
		BuyerID:     buyerID,
		Status:      orders.StatusPending,
		TotalAmount: total,
		Items:       make([]orders.OrderItem, 0, len(items)),
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (id, buyer_id, status, total_amount)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`,
		o.ID, o.BuyerID, string(o.Status), total,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return orders.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		it.OrderID = o.ID
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, store_id, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, it.ProductID, it.ProductName, it.StoreID, it.UnitPriceAtPurchase, it.Quantity,
		); err != nil {
			return orders.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, nil
}

func (t *pgTx) FindByID(ctx context.Context, orderID string, forUpdate bool) (orders.Order, error) {
	q := `SELECT id, buyer_id, status, total_amount, created_at, updated_at FROM orders WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var (
		o      orders.Order
		status string
	)
	err := t.tx.QueryRow(ctx, q, orderID).Scan(&o.ID, &o.BuyerID, &status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrRecordNotFound
	}
	if err != nil {
		return orders.Order{}, err
	}
	o.Status = orders.Status(status)

	byOrder, err := t.itemsOf(ctx, []string{o.ID})
	if err != nil {
		return orders.Order{}, err
	}
	o.Items = byOrder[o.ID]
	return o, nil
}

func (t *pgTx) UpdateStatus(ctx context.Context, orderID string, status orders.Status) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, string(status))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return orders.ErrRecordNotFound
	}
	return nil
}

func (t *pgTx) ListByBuyer(ctx context.Context, buyerID string, page orders.Page) ([]orders.Order, int, error) {
	return t.listOrders(ctx, `o.buyer_id = $1`, buyerID, page)
}

func (t *pgTx) ListBySeller(ctx context.Context, sellerID string, page orders.Page) ([]orders.Order, int, error) {
	return t.listOrders(ctx, `EXISTS (
		SELECT 1 FROM order_items oi
		JOIN stores s ON s.id = oi.store_id
		WHERE oi.order_id = o.id AND s.owner_id = $1)`, sellerID, page)
}

func (t *pgTx) OwnerOf(ctx context.Context, storeID string) (string, error) {
	var owner string
	err := t.tx.QueryRow(ctx, `SELECT owner_id FROM stores WHERE id = $1`, storeID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", orders.ErrRecordNotFound
	}
	return owner, err
}

// listOrders pages over orders matching where (which binds $1 to arg),
// newest first, and loads their items in one extra query.
func (t *pgTx) listOrders(ctx context.Context, where string, arg string, page orders.Page) ([]orders.Order, int, error) {
	var total int
	if err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM orders o WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []orders.Order{}, 0, nil
	}

	rows, err := t.tx.Query(ctx, `
		SELECT o.id, o.buyer_id, o.status, o.total_amount, o.created_at, o.updated_at
		FROM orders o
		WHERE `+where+`
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $2 OFFSET $3`, arg, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out []orders.Order
		ids []string
	)
	for rows.Next() {
		var (
			o      orders.Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.BuyerID, &status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		o.Status = orders.Status(status)
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	byOrder, err := t.itemsOf(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Items = byOrder[out[i].ID]
	}
	return out, total, nil
}

func (t *pgTx) itemsOf(ctx context.Context, orderIDs []string) (map[string][]orders.OrderItem, error) {
	out := make(map[string][]orders.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT order_id, product_id, product_name, store_id, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.OrderID, &it.ProductID, &it.ProductName, &it.StoreID, &it.UnitPriceAtPurchase, &it.Quantity); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}
