package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-marketplace-checkout/internal/auth"
	"github.com/ariefcatur/go-marketplace-checkout/internal/logx"
	"github.com/ariefcatur/go-marketplace-checkout/internal/orders"
	"github.com/ariefcatur/go-marketplace-checkout/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderService interface {
	Checkout(ctx context.Context, buyerID string) (orders.Order, error)
	ListOrders(ctx context.Context, buyerID string, page orders.Page) (orders.OrderPage, error)
	GetOrder(ctx context.Context, actor orders.Actor, orderID string) (orders.Order, error)
	CancelOrder(ctx context.Context, actor orders.Actor, orderID string) (orders.Order, error)
	UpdateStatus(ctx context.Context, actor orders.Actor, orderID string, to orders.Status) (orders.Order, error)
	ListSellerOrders(ctx context.Context, sellerID string, page orders.Page) (orders.OrderPage, error)
}

type IdempotencyStore interface {
	Reserve(ctx context.Context, buyerID, key string) (redisx.ReservationState, string, error)
	Complete(ctx context.Context, buyerID, key, orderID string) error
	Release(ctx context.Context, buyerID, key string) error
}

type OrdersHandler struct {
	Service  OrderService
	Idem     IdempotencyStore // optional
	Verifier *auth.Verifier
	Log      *zap.Logger
	Timeout  time.Duration
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(h.Verifier))

		r.With(RequireKind(orders.KindBuyer)).Post("/checkout", h.checkout)
		r.With(RequireKind(orders.KindBuyer)).Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.With(RequireKind(orders.KindSeller)).Get("/seller/orders", h.listSellerOrders)
	})
}

func (h *OrdersHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	key := r.Header.Get("Idempotency-Key")
	if key == "" || h.Idem == nil {
		o, err := h.Service.Checkout(ctx, actor.ID())
		if err != nil {
			writeOrderError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, o)
		return
	}

	state, orderID, err := h.Idem.Reserve(ctx, actor.ID(), key)
	if err != nil {
		logx.Error(ctx, h.Log, "idempotency reserve failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "idempotency_unavailable", "retry later")
		return
	}
	switch state {
	case redisx.InFlight:
		writeError(w, http.StatusConflict, "request_in_flight", "a checkout with this Idempotency-Key is still running")
		return
	case redisx.Completed:
		o, err := h.Service.GetOrder(ctx, actor, orderID)
		if err != nil {
			writeOrderError(w, err)
			return
		}
		w.Header().Set("Idempotent-Replay", "true")
		writeJSON(w, http.StatusOK, o)
		return
	}

	o, err := h.Service.Checkout(ctx, actor.ID())
	if err != nil {
		// After a storage failure the order may still have committed, so the
		// pending reservation is left to expire instead of being released.
		if !errors.Is(err, orders.ErrStorageFailure) {
			if rerr := h.Idem.Release(ctx, actor.ID(), key); rerr != nil {
				logx.Warn(ctx, h.Log, "idempotency release failed", zap.Error(rerr))
			}
		}
		writeOrderError(w, err)
		return
	}
	if err := h.Idem.Complete(ctx, actor.ID(), key, o.ID); err != nil {
		logx.Warn(ctx, h.Log, "idempotency complete failed", zap.String("order_id", o.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusCreated, o)
}

func pageFrom(r *http.Request) orders.Page {
	n, _ := strconv.Atoi(r.URL.Query().Get("page"))
	l, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return orders.NewPage(n, l)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	page, err := h.Service.ListOrders(ctx, actor.ID(), pageFrom(r))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) listSellerOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	page, err := h.Service.ListSellerOrders(ctx, actor.ID(), pageFrom(r))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Service.CancelOrder(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid json")
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeOrderError(w, err)
		return
	}

	actor, _ := ActorFrom(r.Context())
	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Service.UpdateStatus(ctx, actor, chi.URLParam(r, "id"), to)
	if err != nil {
		writeOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
