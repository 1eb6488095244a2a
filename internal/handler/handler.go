// Package handler exposes the order service over HTTP. Routing uses chi;
// request and response bodies are plain JSON documents matching the persisted
// order layout.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blindbox-shop/order-service/internal/domain/auth"
	"github.com/blindbox-shop/order-service/internal/domain/order"
)

// IdempotencyStore remembers which order an Idempotency-Key produced, so a
// retried POST returns the original order. The production implementation is
// pkg/idempotency (Redis-backed).
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (string, error)
	Remember(ctx context.Context, key, resourceID string) error
}

// Handler holds the dependencies for the order HTTP endpoints.
type Handler struct {
	orders     *order.Service
	idempotent IdempotencyStore
}

// NewHandler constructs a Handler. idempotent may be nil to disable
// Idempotency-Key handling on order creation.
func NewHandler(orders *order.Service, idempotent IdempotencyStore) *Handler {
	return &Handler{
		orders:     orders,
		idempotent: idempotent,
	}
}

// NewRouter mounts the order API under /api. Every order route requires a
// verified bearer token.
func NewRouter(h *Handler, verifier auth.TokenVerifier) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(Authenticate(verifier))
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/statistics", h.OrderStatistics)
		r.Get("/{id}", h.GetOrder)
		r.Put("/{id}/status", h.UpdateOrderStatus)
	})
	return r
}
