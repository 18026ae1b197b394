package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret     = "test-secret"
	testSessionHeader = "X-Cart-Session"
	adminEmail        = "owner@example.com"
)

type apiFixture struct {
	t        *testing.T
	router   chi.Router
	users    service.UserService
	catalog  *memCatalog
	guest    *repository.MemoryCartRepository
	accounts *memAccountCarts
	orders   *memOrders
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()

	f := &apiFixture{
		t:        t,
		catalog:  newMemCatalog(),
		guest:    repository.NewMemoryCartRepository(),
		accounts: newMemAccountCarts(),
	}
	f.orders = newMemOrders(f.accounts)

	f.users = service.NewUserService(newMemUsers(), service.UserServiceConfig{
		JWTSecret:   testJWTSecret,
		TokenExpiry: time.Hour,
		IsAdmin:     func(email string) bool { return email == adminEmail },
	})
	carts := service.NewCartService(f.guest, f.accounts, f.catalog, nil, logger)
	reconciler := service.NewReconciler(f.guest, f.accounts, nil, logger)
	checkout, err := service.NewCheckoutService(service.CheckoutDeps{
		GuestCarts:   f.guest,
		AccountCarts: f.accounts,
		Catalog:      f.catalog,
		Orders:       f.orders,
		Payments:     service.NewSimulatedGateway(),
		Locker:       service.NewMemoryLocker(),
		Logger:       logger,
	})
	require.NoError(t, err)

	mw := Middlewares{
		Auth:         middleware.AuthMiddleware(testJWTSecret, logger),
		OptionalAuth: middleware.OptionalAuth(testJWTSecret, logger),
		CartSession: middleware.CartSession(middleware.CartSessionConfig{
			Header: testSessionHeader,
			Cookie: "cart_session",
			TTL:    time.Hour,
		}),
	}

	router := chi.NewRouter()
	NewProductHandler(f.catalog, logger).RegisterRoutes(router, mw.Auth)
	NewCartHandler(carts, reconciler, logger).RegisterRoutes(router, mw)
	NewCheckoutHandler(checkout, logger).RegisterRoutes(router, mw)
	NewOrderHandler(f.orders, logger).RegisterRoutes(router, mw)
	NewUserHandler(f.users, reconciler, logger).RegisterRoutes(router, mw)
	f.router = router

	return f
}

type call struct {
	method  string
	path    string
	body    interface{}
	token   string
	session string
}

func (f *apiFixture) do(c call) *httptest.ResponseRecorder {
	f.t.Helper()
	var body bytes.Buffer
	if c.body != nil {
		switch b := c.body.(type) {
		case string:
			body.WriteString(b)
		default:
			require.NoError(f.t, json.NewEncoder(&body).Encode(b))
		}
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.session != "" {
		req.Header.Set(testSessionHeader, c.session)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// signUp registers and signs in an account, returning its token and user.
func (f *apiFixture) signUp(email string) (string, *domain.User) {
	f.t.Helper()
	_, err := f.users.Register(context.Background(), email, "password123", "Test", "User")
	require.NoError(f.t, err)
	token, user, err := f.users.Login(context.Background(), email, "password123")
	require.NoError(f.t, err)
	return token, user
}

// errorBody is the decoded shape of middleware.ErrorResponse.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Details struct {
			ValidationErrors []middleware.ValidationError `json:"validation_errors"`
			Conflicts        []domain.StockConflict        `json:"conflicts"`
			OrderID          string                        `json:"order_id"`
		} `json:"details"`
	} `json:"error"`
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
