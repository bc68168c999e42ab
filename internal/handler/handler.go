// Package handler exposes the checkout and subscription API over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pilldrop/commerce-api/internal/checkout"
	"github.com/pilldrop/commerce-api/internal/domain/cart"
	"github.com/pilldrop/commerce-api/internal/domain/product"
	"github.com/pilldrop/commerce-api/internal/domain/subscription"
)

// Handler holds the HTTP handlers for the API surface. Business logic lives
// in the injected services; handlers only decode, validate, delegate, and
// encode.
type Handler struct {
	checkout *checkout.Orchestrator
	subs     *subscription.Service
	products product.Repository
	carts    cart.Repository
	auth     *Authenticator
	validate *validator.Validate
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	orchestrator *checkout.Orchestrator,
	subs *subscription.Service,
	products product.Repository,
	carts cart.Repository,
	auth *Authenticator,
) *Handler {
	return &Handler{
		checkout: orchestrator,
		subs:     subs,
		products: products,
		carts:    carts,
		auth:     auth,
		validate: validator.New(),
	}
}

// Routes returns the API router. All routes except the product list require
// an authenticated member.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireMember)

		r.Get("/cart", h.GetCart)
		r.Post("/checkout/payment", h.ProcessPayment)

		r.Route("/subscription", func(r chi.Router) {
			r.Get("/", h.GetSubscription)
			r.Put("/billing-date", h.UpdateBillingDate)
			r.Put("/payment-method", h.UpdatePaymentMethod)
			r.Delete("/", h.CancelSubscription)
		})
	})

	return r
}
