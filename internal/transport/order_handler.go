package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderReader is the read side of order storage
type OrderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.Order, error)
}

// OrderHandler serves an account's order history
type OrderHandler struct {
	orders OrderReader
	logger *zap.Logger
}

func NewOrderHandler(orders OrderReader, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router, mw Middlewares) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(mw.Auth)
		r.Use(middleware.RequireAccount(h.logger))
		r.Get("/", h.List)
		r.Get("/{orderID}", h.Get)
	})
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	limit := defaultOrderPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.RespondWithValidationErrors(w, []middleware.ValidationError{
				{Field: "limit", Message: "Value must be a positive integer"},
			})
			return
		}
		limit = min(n, maxOrderPageSize)
	}

	orders, err := h.orders.ListByAccount(r.Context(), accountID, limit)
	if err != nil {
		h.logger.Error("Failed to list orders", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

// Get returns one order. Orders of other accounts are reported as missing;
// admins may read any order.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	orderID, ok := uuidParam(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.FindByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("Failed to get order", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	role, _ := middleware.GetUserRole(r.Context())
	owned := order.AccountID != nil && *order.AccountID == accountID
	if !owned && role != domain.RoleAdmin {
		middleware.RespondWithError(w, http.StatusNotFound, "order not found")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, order)
}
