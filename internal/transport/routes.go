package transport

import "net/http"

// Middlewares bundles the per-route middleware the handlers mount.
// CheckoutLimit may be nil when rate limiting is disabled.
type Middlewares struct {
	Auth          func(http.Handler) http.Handler
	OptionalAuth  func(http.Handler) http.Handler
	CartSession   func(http.Handler) http.Handler
	CheckoutLimit func(http.Handler) http.Handler
}

func passThrough(next http.Handler) http.Handler {
	return next
}

func orPassThrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return passThrough
	}
	return mw
}
