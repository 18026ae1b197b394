package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"storefront/internal/domain"

	"go.uber.org/zap"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// RespondWithError sends a structured error response
func RespondWithError(w http.ResponseWriter, statusCode int, message string) {
	RespondWithErrorDetails(w, statusCode, message, nil)
}

// RespondWithErrorDetails sends a structured error response with additional details
func RespondWithErrorDetails(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: ErrorDetail{
			Code:      http.StatusText(statusCode),
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}

	json.NewEncoder(w).Encode(response)
}

// RespondWithValidationErrors sends validation error response
func RespondWithValidationErrors(w http.ResponseWriter, errors []ValidationError) {
	details := make(map[string]interface{})
	details["validation_errors"] = errors

	RespondWithErrorDetails(w, http.StatusBadRequest, "validation failed", details)
}

// MapDomainError picks the status code, message and details for a cart or
// checkout error. Unknown errors map to 500 with a generic message.
func MapDomainError(err error) (int, string, map[string]interface{}) {
	var (
		validationErr  *domain.ValidationError
		stockErr       *domain.StockConflictError
		mergeErr       *domain.MergeConflictError
		declinedErr    *domain.PaymentDeclinedError
		persistenceErr *domain.PersistenceError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Message, map[string]interface{}{
			"validation_errors": []ValidationError{{Field: validationErr.Field, Message: validationErr.Message}},
		}
	case errors.As(err, &stockErr):
		return http.StatusConflict, "insufficient stock", map[string]interface{}{
			"conflicts": stockErr.Conflicts,
		}
	case errors.As(err, &mergeErr):
		return http.StatusConflict, "cart is being updated, retry", nil
	case errors.Is(err, domain.ErrCheckoutInProgress):
		return http.StatusConflict, err.Error(), nil
	case errors.Is(err, domain.ErrCartChanged):
		return http.StatusConflict, err.Error(), nil
	case errors.As(err, &declinedErr):
		var details map[string]interface{}
		if declinedErr.OrderID != nil {
			details = map[string]interface{}{"order_id": declinedErr.OrderID.String()}
		}
		return http.StatusPaymentRequired, declinedErr.Error(), details
	case errors.As(err, &persistenceErr):
		return http.StatusInternalServerError, "storage unavailable", nil
	default:
		return http.StatusInternalServerError, "internal server error", nil
	}
}

// RespondWithDomainError writes err through MapDomainError. Server-side
// failures are logged with the underlying cause.
func RespondWithDomainError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, message, details := MapDomainError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
	}
	RespondWithErrorDetails(w, status, message, details)
}

// ErrorHandlingMiddleware catches panics and converts them to 500 errors
func ErrorHandlingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("method", r.Method),
					)

					RespondWithError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RespondWithJSON sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
