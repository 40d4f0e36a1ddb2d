// Package httpapi exposes the ordering and inventory operations over HTTP.
// Callers are identified by the X-User-ID header, set by the gateway in
// front of this service after authentication.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(h *Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(RequireUser)

		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)

		r.Get("/products/{id}", h.GetProduct)
		r.Post("/products/{id}/stock", h.AdjustStock)
		r.Get("/products/{id}/movements", h.ListMovements)
		r.Get("/products/{id}/reconcile", h.Reconcile)
	})

	return r
}
