package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CheckoutRequest carries the contact number the order is placed under
type CheckoutRequest struct {
	Contact string `json:"contact" validate:"required,contact"`
}

// CheckoutResponse is returned when the attempt succeeds
type CheckoutResponse struct {
	Receipt *domain.OrderReceipt `json:"receipt"`
	Attempt *service.Attempt     `json:"attempt"`
}

// CheckoutHandler turns the caller's cart into an order
type CheckoutHandler struct {
	checkout service.CheckoutService
	logger   *zap.Logger
}

func NewCheckoutHandler(checkout service.CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, logger: logger}
}

func (h *CheckoutHandler) RegisterRoutes(r chi.Router, mw Middlewares) {
	r.Route("/api/checkout", func(r chi.Router) {
		r.Use(mw.CartSession)
		r.Use(mw.OptionalAuth)
		r.Use(orPassThrough(mw.CheckoutLimit))
		r.Post("/", h.Checkout)
	})
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ref, ok := cartRefFor(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "cart session required")
		return
	}

	var req CheckoutRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	receipt, attempt, err := h.checkout.Checkout(r.Context(), ref, req.Contact)
	if err != nil {
		h.logger.Info("Checkout not completed",
			zap.Stringer("cart", ref),
			zap.String("state", string(attempt.State)),
			zap.Error(err),
		)
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, CheckoutResponse{Receipt: receipt, Attempt: attempt})
}
