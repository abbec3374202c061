package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type ReservationState int

const (
	// Reserved: the caller owns the key and must Complete or Release it.
	Reserved ReservationState = iota
	// InFlight: another request holds the key and has not finished.
	InFlight
	// Completed: the key already produced an order.
	Completed
)

// Idempotency maps client-supplied keys to the order a checkout produced.
// It lives in front of checkout and does not make checkout itself idempotent.
type Idempotency struct {
	rdb        *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

func NewIdempotency(rdb *redis.Client) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: TTLIdempotency, pendingTTL: TTLPending}
}

func (i *Idempotency) Reserve(ctx context.Context, buyerID, key string) (ReservationState, string, error) {
	k := fmt.Sprintf(KeyIdemCheckout, buyerID, key)
	ok, err := i.rdb.SetNX(ctx, k, pendingMarker, i.pendingTTL).Result()
	if err != nil {
		return 0, "", err
	}
	if ok {
		return Reserved, "", nil
	}

	v, err := i.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; let the caller retry the request.
		return InFlight, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	if v == pendingMarker {
		return InFlight, "", nil
	}
	return Completed, v, nil
}

func (i *Idempotency) Complete(ctx context.Context, buyerID, key, orderID string) error {
	return i.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key), orderID, i.ttl).Err()
}

// Release drops a reservation whose checkout failed without creating an order.
func (i *Idempotency) Release(ctx context.Context, buyerID, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key)).Err()
}
