package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const CartSessionKey contextKey = "cart_session"

// maxSessionIDLength bounds client supplied session ids before they reach Redis keys.
const maxSessionIDLength = 128

// CartSessionConfig names where the guest cart session travels.
type CartSessionConfig struct {
	Header string
	Cookie string
	TTL    time.Duration
	Secure bool
}

// CartSession resolves the guest cart session from the header, then the
// cookie. A missing or unusable id is replaced by a new one, which is echoed
// in both the header and the cookie.
func CartSession(cfg CartSessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(cfg.Header))
			if sessionID == "" && cfg.Cookie != "" {
				if cookie, err := r.Cookie(cfg.Cookie); err == nil {
					sessionID = strings.TrimSpace(cookie.Value)
				}
			}
			if !usableSessionID(sessionID) {
				sessionID = uuid.NewString()
			}

			w.Header().Set(cfg.Header, sessionID)
			if cfg.Cookie != "" {
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.Cookie,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(cfg.TTL.Seconds()),
					HttpOnly: true,
					Secure:   cfg.Secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			recordCartSession(r.Context(), sessionID)
			ctx := context.WithValue(r.Context(), CartSessionKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func usableSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLength {
		return false
	}
	for _, r := range id {
		if r <= ' ' || r == ':' || r > '~' {
			return false
		}
	}
	return true
}

// GetCartSession extracts the guest cart session id from request context
func GetCartSession(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(CartSessionKey).(string)
	return sessionID, ok && sessionID != ""
}
