package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{buyer_id}:{key} -> "pending" | order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

const pendingMarker = "pending"

var (
	TTLIdempotency = 24 * time.Hour
	TTLPending     = 30 * time.Second
	TTLDedup       = 48 * time.Hour
)
