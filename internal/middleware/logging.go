package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const requestCartKey contextKey = "request_cart"

// requestCart collects which cart a request touched. Session and auth
// middlewares run inside route groups, after the request was logged as
// started, so they write here instead of handing a new context back.
type requestCart struct {
	mu        sync.Mutex
	sessionID string
	accountID string
}

func recordCartSession(ctx context.Context, sessionID string) {
	if rc, ok := ctx.Value(requestCartKey).(*requestCart); ok {
		rc.mu.Lock()
		rc.sessionID = sessionID
		rc.mu.Unlock()
	}
}

func recordAccount(ctx context.Context, accountID string) {
	if rc, ok := ctx.Value(requestCartKey).(*requestCart); ok {
		rc.mu.Lock()
		rc.accountID = accountID
		rc.mu.Unlock()
	}
}

// fields names the cart the request resolved to. An account wins over the
// guest session because account routes ignore the session cart.
func (rc *requestCart) fields() []zap.Field {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	switch {
	case rc.accountID != "":
		return []zap.Field{zap.String("cart_kind", "account"), zap.String("account_id", rc.accountID)}
	case rc.sessionID != "":
		return []zap.Field{zap.String("cart_kind", "guest"), zap.String("cart_session", rc.sessionID)}
	}
	return nil
}

// LoggingMiddleware logs HTTP requests together with the cart they resolved to.
// Server errors log at error level and rejected requests at warn level.
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := middleware.GetReqID(r.Context())

			logger.Debug("Request started",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
			)

			rc := &requestCart{}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestCartKey, rc)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			fields := append([]zap.Field{
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}, rc.fields()...)

			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("Request completed", fields...)
			case status >= http.StatusBadRequest:
				logger.Warn("Request completed", fields...)
			default:
				logger.Info("Request completed", fields...)
			}
		})
	}
}
