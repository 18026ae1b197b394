package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// decodeRequest decodes and validates a JSON body, writing the 400 response
// itself. It reports whether the handler may continue.
func decodeRequest(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v interface{}) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))

		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}

		// A fractional or quoted quantity is a field error, not a broken body.
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			middleware.RespondWithValidationErrors(w, []middleware.ValidationError{
				{Field: typeErr.Field, Message: "Invalid value"},
			})
			return false
		}

		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// cartRefFor picks the account cart for authenticated callers and the guest
// cart of the request's session otherwise.
func cartRefFor(r *http.Request) (domain.CartRef, bool) {
	if userID, ok := middleware.GetUserID(r.Context()); ok {
		id, err := uuid.Parse(userID)
		if err != nil {
			return domain.CartRef{}, false
		}
		return domain.AccountCart(id), true
	}
	if sessionID, ok := middleware.GetCartSession(r.Context()); ok {
		return domain.GuestCart(sessionID), true
	}
	return domain.CartRef{}, false
}

// requireAccount returns the authenticated account, writing 401 when there is none.
func requireAccount(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusUnauthorized, "invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

// uuidParam parses a chi URL parameter, writing 400 when it is not a uuid.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithValidationErrors(w, []middleware.ValidationError{
			{Field: name, Message: "Invalid identifier"},
		})
		return uuid.Nil, false
	}
	return id, true
}
