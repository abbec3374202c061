package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-marketplace-checkout/internal/orders"
)

type jsonError struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Product   string `json:"product,omitempty"`
	Available *int   `json:"available,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, details string) {
	writeJSON(w, code, jsonError{Error: kind, Details: details})
}

var statusByKind = map[orders.Kind]int{
	orders.KindEmptyCart:         http.StatusBadRequest,
	orders.KindInvalidInput:      http.StatusBadRequest,
	orders.KindInsufficientStock: http.StatusConflict,
	orders.KindInvalidTransition: http.StatusConflict,
	orders.KindForbidden:         http.StatusForbidden,
	orders.KindOrderNotFound:     http.StatusNotFound,
	orders.KindProductNotFound:   http.StatusNotFound,
	orders.KindStorageFailure:    http.StatusServiceUnavailable,
}

func writeOrderError(w http.ResponseWriter, err error) {
	var e *orders.Error
	if !errors.As(err, &e) {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	body := jsonError{Error: e.Kind.String(), Details: e.Error(), Retryable: e.Retryable()}
	switch e.Kind {
	case orders.KindInsufficientStock:
		available := e.Available
		body.Product, body.Available = e.Product, &available
	case orders.KindProductNotFound:
		body.Product = e.Product
	case orders.KindInvalidTransition:
		body.From, body.To = string(e.From), string(e.To)
	case orders.KindStorageFailure:
		body.Details = "temporarily unavailable"
	}
	code, ok := statusByKind[e.Kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, body)
}
