package transport

import (
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddItemRequest adds quantity units of a product. Quantity defaults to 1.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  *int   `json:"quantity" validate:"omitempty,gte=1,lte=99"`
}

// SetQuantityRequest overwrites a line. Zero removes it.
type SetQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0,lte=99"`
}

// MergeResponse reports a reconciliation and the resulting account cart
type MergeResponse struct {
	Merge *service.MergeResult `json:"merge"`
	Cart  *domain.CartSnapshot `json:"cart"`
}

// CartHandler exposes the cart ledger for guests and accounts
type CartHandler struct {
	carts      service.CartService
	reconciler service.Reconciler
	logger     *zap.Logger
}

func NewCartHandler(carts service.CartService, reconciler service.Reconciler, logger *zap.Logger) *CartHandler {
	return &CartHandler{carts: carts, reconciler: reconciler, logger: logger}
}

// RegisterRoutes mounts the cart endpoints. Every route resolves the guest
// session; a bearer token switches the request to the account cart.
func (h *CartHandler) RegisterRoutes(r chi.Router, mw Middlewares) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(mw.CartSession)

		r.Group(func(r chi.Router) {
			r.Use(mw.OptionalAuth)
			r.Get("/", h.GetCart)
			r.Get("/count", h.Count)
			r.Post("/items", h.AddItem)
			r.Put("/items/{productID}", h.SetQuantity)
			r.Delete("/items/{productID}", h.RemoveItem)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.Auth)
			r.Post("/merge", h.Merge)
		})
	})
}

func (h *CartHandler) ref(w http.ResponseWriter, r *http.Request) (domain.CartRef, bool) {
	ref, ok := cartRefFor(r)
	if !ok {
		middleware.RespondWithError(w, http.StatusBadRequest, "cart session required")
	}
	return ref, ok
}

// GetCart returns the cart snapshot with live prices and total
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}

	snapshot, err := h.carts.Snapshot(r.Context(), ref)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, snapshot)
}

// Count returns the number of units in the cart for the header badge
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}

	count, err := h.carts.Count(r.Context(), ref)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	snapshot, err := h.carts.AddItem(r.Context(), ref, uuid.MustParse(req.ProductID), quantity)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, snapshot)
}

func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}

	var req SetQuantityRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	snapshot, err := h.carts.SetQuantity(r.Context(), ref, productID, *req.Quantity)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, snapshot)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.ref(w, r)
	if !ok {
		return
	}
	productID, ok := uuidParam(w, r, "productID")
	if !ok {
		return
	}

	snapshot, err := h.carts.RemoveItem(r.Context(), ref, productID)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, snapshot)
}

// Merge folds the request's guest cart into the caller's account cart.
// Clients call it again after a 409 merge conflict.
func (h *CartHandler) Merge(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	sessionID, _ := middleware.GetCartSession(r.Context())

	result, err := h.reconciler.Reconcile(r.Context(), sessionID, accountID)
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	snapshot, err := h.carts.Snapshot(r.Context(), domain.AccountCart(accountID))
	if err != nil {
		middleware.RespondWithDomainError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, MergeResponse{Merge: result, Cart: snapshot})
}
