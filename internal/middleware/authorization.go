package middleware

import (
	"net/http"

	"storefront/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequireAccount admits tokens that name a storefront account: a parseable
// account id with the user or admin role. It runs after AuthMiddleware.
func RequireAccount(logger *zap.Logger) func(http.Handler) http.Handler {
	return authorize(logger, "account", func(role string) bool {
		return role == domain.RoleUser || role == domain.RoleAdmin
	})
}

// RequireAdmin admits admin accounts only, for catalog management.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return authorize(logger, "admin", func(role string) bool {
		return role == domain.RoleAdmin
	})
}

func authorize(logger *zap.Logger, scope string, allowed func(role string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := GetUserID(r.Context())
			role, ok := GetUserRole(r.Context())
			if !ok {
				logger.Warn("Role not found in context", zap.String("scope", scope))
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			if _, err := uuid.Parse(userID); err != nil || !allowed(role) {
				logger.Warn("Account not authorized",
					zap.String("scope", scope),
					zap.String("user_id", userID),
					zap.String("role", role),
					zap.String("path", r.URL.Path),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
