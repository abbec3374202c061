package postgres

import (
	"context"

	"github.com/ariefcatur/go-marketplace-checkout/internal/orders"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepo appends lifecycle events to order_events. Re-recording an event
// id is a no-op.
type AuditRepo struct{ DB *pgxpool.Pool }

func (r *AuditRepo) Record(ctx context.Context, env orders.Envelope) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO order_events (event_id, order_id, event_type, producer, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`,
		env.EventID, env.CorrelationID, env.EventType, env.Producer, []byte(env.Payload), env.OccurredAt,
	)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// History returns the recorded events of one order, oldest first.
func (r *AuditRepo) History(ctx context.Context, orderID string) ([]orders.Envelope, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT event_id, event_type, producer, payload, occurred_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY occurred_at, event_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Envelope
	for rows.Next() {
		env := orders.Envelope{EventVersion: 1, CorrelationID: orderID}
		var payload []byte
		if err := rows.Scan(&env.EventID, &env.EventType, &env.Producer, &payload, &env.OccurredAt); err != nil {
			return nil, err
		}
		env.Payload = payload
		out = append(out, env)
	}
	return out, rows.Err()
}
