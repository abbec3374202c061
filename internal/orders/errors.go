package orders

import (
	"errors"
	"fmt"
)

// ErrRecordNotFound is returned by store adapters when a lookup matches no row.
var ErrRecordNotFound = errors.New("record not found")

type Kind int

const (
	KindStorageFailure Kind = iota
	KindEmptyCart
	KindInsufficientStock
	KindProductNotFound
	KindInvalidTransition
	KindForbidden
	KindOrderNotFound
	KindInvalidInput
)

var kindNames = map[Kind]string{
	KindStorageFailure:    "storage_failure",
	KindEmptyCart:         "empty_cart",
	KindInsufficientStock: "insufficient_stock",
	KindProductNotFound:   "product_not_found",
	KindInvalidTransition: "invalid_transition",
	KindForbidden:         "forbidden",
	KindOrderNotFound:     "order_not_found",
	KindInvalidInput:      "invalid_input",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the failure result of every core operation. Only the fields
// relevant to Kind are set.
type Error struct {
	Kind      Kind
	Product   string
	Available int
	From      Status
	To        Status
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInsufficientStock:
		return fmt.Sprintf("insufficient stock for %q: %d available", e.Product, e.Available)
	case KindProductNotFound:
		return fmt.Sprintf("product not found: %s", e.Product)
	case KindInvalidTransition:
		return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
	case KindStorageFailure:
		if e.Err != nil {
			return "storage failure: " + e.Err.Error()
		}
	}
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can use the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable is true only for transient storage failures.
func (e *Error) Retryable() bool { return e.Kind == KindStorageFailure }

var (
	ErrEmptyCart         = &Error{Kind: KindEmptyCart, Msg: "cart is empty"}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrProductNotFound   = &Error{Kind: KindProductNotFound}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrForbidden         = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrOrderNotFound     = &Error{Kind: KindOrderNotFound, Msg: "order not found"}
	ErrStorageFailure    = &Error{Kind: KindStorageFailure, Msg: "storage failure"}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput, Msg: "invalid input"}
)

func InsufficientStock(product string, available int) error {
	if available < 0 {
		available = 0
	}
	return &Error{Kind: KindInsufficientStock, Product: product, Available: available}
}

func ProductNotFound(productID string) error {
	return &Error{Kind: KindProductNotFound, Product: productID}
}

func InvalidTransition(from, to Status) error {
	return &Error{Kind: KindInvalidTransition, From: from, To: to}
}

func InvalidInput(msg string) error {
	return &Error{Kind: KindInvalidInput, Msg: msg}
}

func StorageFailure(err error) error {
	return &Error{Kind: KindStorageFailure, Err: err}
}

// KindOf returns the kind carried by err. Errors that are not *Error are
// reported as storage failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorageFailure
}

// asResult passes *Error values through and wraps anything else as a storage
// failure.
func asResult(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return StorageFailure(err)
}
