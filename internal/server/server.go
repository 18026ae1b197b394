package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
}

// cartBackends holds the guest cart store and checkout locker, which live in
// Redis when it is enabled and in process otherwise.
type cartBackends struct {
	guest         service.GuestCartStore
	locker        service.CartLocker
	checkoutLimit func(http.Handler) http.Handler
}

func NewServer(cfg *config.Config, log *zap.Logger, db *sql.DB) *Server {
	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack()...)
	router.Use(custommiddleware.LoggingMiddleware(log))
	router.Use(custommiddleware.ErrorHandlingMiddleware(log))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.Cart.SessionHeader, !cfg.IsProduction()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	storeMetrics := metrics.NewStoreMetrics(registry)

	s := &Server{
		config: cfg,
		logger: log,
		db:     db,
	}
	backends := s.cartBackends(log)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{"database": database.Health(r.Context(), db)}
		status := http.StatusOK
		if s.redis != nil {
			if err := s.redis.Ping(r.Context()).Err(); err != nil {
				health["redis"] = map[string]string{"status": "down", "error": err.Error()}
				status = http.StatusServiceUnavailable
			} else {
				health["redis"] = map[string]string{"status": "up"}
			}
		}
		custommiddleware.RespondWithJSON(w, status, health)
	})
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	accountCarts := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)

	// Initialize services
	userService := service.NewUserService(userRepo, service.UserServiceConfig{
		JWTSecret:   cfg.JWT.Secret,
		TokenExpiry: time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		IsAdmin:     cfg.Admin.IsAdminEmail,
	})
	carts := service.NewCartService(backends.guest, accountCarts, productRepo, storeMetrics, log)
	reconciler := service.NewReconciler(backends.guest, accountCarts, storeMetrics, log)
	checkout, err := service.NewCheckoutService(service.CheckoutDeps{
		GuestCarts:   backends.guest,
		AccountCarts: accountCarts,
		Catalog:      productRepo,
		Orders:       orderRepo,
		Payments:     service.NewSimulatedGateway(),
		Locker:       backends.locker,
		Metrics:      storeMetrics,
		Logger:       log,
	})
	if err != nil {
		log.Fatal("Failed to wire checkout", zap.Error(err))
	}

	mw := transport.Middlewares{
		Auth:         custommiddleware.AuthMiddleware(cfg.JWT.Secret, log),
		OptionalAuth: custommiddleware.OptionalAuth(cfg.JWT.Secret, log),
		CartSession: custommiddleware.CartSession(custommiddleware.CartSessionConfig{
			Header: cfg.Cart.SessionHeader,
			Cookie: cfg.Cart.SessionCookie,
			TTL:    cfg.Cart.GuestTTL,
			Secure: cfg.IsProduction(),
		}),
		CheckoutLimit: backends.checkoutLimit,
	}

	// Register routes
	transport.NewProductHandler(productRepo, log).RegisterRoutes(router, mw.Auth)
	transport.NewCartHandler(carts, reconciler, log).RegisterRoutes(router, mw)
	transport.NewCheckoutHandler(checkout, log).RegisterRoutes(router, mw)
	transport.NewOrderHandler(orderRepo, log).RegisterRoutes(router, mw)
	transport.NewUserHandler(userService, reconciler, log).RegisterRoutes(router, mw)

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) cartBackends(log *zap.Logger) cartBackends {
	if !s.config.Redis.Enabled {
		log.Warn("Redis disabled, guest carts and checkout locks are held in process")
		return cartBackends{
			guest:  repository.NewMemoryCartRepository(),
			locker: service.NewMemoryLocker(),
		}
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.config.Redis.Addr(),
		Password: s.config.Redis.Password,
		DB:       s.config.Redis.DB,
	})

	backends := cartBackends{
		guest:  repository.NewSessionCartRepository(s.redis, s.config.Cart.GuestTTL),
		locker: service.NewRedisLocker(s.redis, s.config.Checkout.LockTTL),
	}
	if s.config.RateLimit.CheckoutPerMinute > 0 {
		backends.checkoutLimit = custommiddleware.RateLimitMiddleware(s.redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: s.config.RateLimit.CheckoutPerMinute,
			Window:            time.Minute,
			KeyPrefix:         "ratelimit:checkout",
		}, logger.Component(log, "ratelimit"))
	}
	return backends
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	var err error
	if s.db != nil {
		err = multierr.Append(err, s.db.Close())
	}
	if s.redis != nil {
		err = multierr.Append(err, s.redis.Close())
	}

	_ = s.logger.Sync()
	return err
}
