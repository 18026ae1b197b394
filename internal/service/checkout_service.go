package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stockLookupConcurrency bounds parallel catalog reads during validation.
const stockLookupConcurrency = 8

// OrderStore is the durable side of an account checkout
type OrderStore interface {
	WithinTx(ctx context.Context, fn func(tx repository.OrderTx) error) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

// CheckoutService turns a validated cart into a paid order
type CheckoutService interface {
	Checkout(ctx context.Context, ref domain.CartRef, contact string) (*domain.OrderReceipt, *Attempt, error)
}

type checkoutService struct {
	guest    CartStore
	account  CartStore
	catalog  Catalog
	orders   OrderStore
	payments PaymentGateway
	locker   CartLocker
	metrics  *metrics.StoreMetrics
	logger   *zap.Logger
}

// CheckoutDeps groups the collaborators of NewCheckoutService
type CheckoutDeps struct {
	GuestCarts   CartStore
	AccountCarts CartStore
	Catalog      Catalog
	Orders       OrderStore
	Payments     PaymentGateway
	Locker       CartLocker
	Metrics      *metrics.StoreMetrics
	Logger       *zap.Logger
}

// NewCheckoutService creates a new instance of CheckoutService
func NewCheckoutService(deps CheckoutDeps) (CheckoutService, error) {
	if deps.GuestCarts == nil || deps.AccountCarts == nil {
		return nil, errors.New("cart stores are required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order store is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("payment gateway is required")
	}
	if deps.Locker == nil {
		return nil, errors.New("cart locker is required")
	}

	return &checkoutService{
		guest:    deps.GuestCarts,
		account:  deps.AccountCarts,
		catalog:  deps.Catalog,
		orders:   deps.Orders,
		payments: deps.Payments,
		locker:   deps.Locker,
		metrics:  deps.Metrics,
		logger:   logger.Component(deps.Logger, "checkout"),
	}, nil
}

// Checkout validates the cart against live stock, asks the payment gateway
// and commits. The returned Attempt is set even when err is non-nil.
func (s *checkoutService) Checkout(ctx context.Context, ref domain.CartRef, contact string) (*domain.OrderReceipt, *Attempt, error) {
	attempt := newAttempt(ref)
	started := time.Now()
	log := s.logger.With(zap.Stringer("attempt_id", attempt.ID), zap.Stringer("cart", ref))

	if err := ref.Validate(); err != nil {
		attempt.Reason = err.Error()
		return nil, attempt, err
	}

	release, err := s.locker.Acquire(ctx, ref)
	if err != nil {
		attempt.Reason = err.Error()
		if errors.Is(err, domain.ErrCheckoutInProgress) {
			log.Info("Checkout rejected, another attempt holds the cart")
			s.metrics.ObserveCheckout(string(ref.Kind), "in_progress", time.Since(started))
			return nil, attempt, err
		}
		log.Error("Failed to lock cart for checkout", zap.Error(err))
		return nil, attempt, domain.NewPersistenceError("lock cart", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to release checkout lock", zap.Error(err))
		}
	}()

	attempt.mustTransition(CheckoutValidating, "")

	normalized, items, err := s.validate(ctx, ref, contact)
	if err != nil {
		attempt.mustTransition(CheckoutIdle, err.Error())
		log.Info("Checkout rejected during validation", zap.Error(err))
		s.metrics.ObserveCheckout(string(ref.Kind), "rejected", time.Since(started))
		return nil, attempt, err
	}

	attempt.mustTransition(CheckoutCommitting, "")

	// Once committing starts the caller can no longer cancel it.
	commitCtx := context.WithoutCancel(ctx)

	var receipt *domain.OrderReceipt
	if ref.IsGuest() {
		receipt, err = s.commitGuest(commitCtx, attempt, normalized, items)
	} else {
		receipt, err = s.commitAccount(commitCtx, attempt, normalized, items)
	}
	if err != nil {
		attempt.mustTransition(CheckoutFailed, err.Error())
		log.Warn("Checkout failed", zap.Error(err))
		s.metrics.ObserveCheckout(string(ref.Kind), "failed", time.Since(started))
		return nil, attempt, err
	}

	attempt.mustTransition(CheckoutSucceeded, "")
	receipt.CompletedAt = attempt.FinishedAt
	log.Info("Checkout succeeded",
		zap.String("total", receipt.Total.StringFixed(2)),
		zap.Int("lines", len(receipt.Lines)),
	)
	s.metrics.ObserveCheckout(string(ref.Kind), "succeeded", time.Since(started))

	return receipt, attempt, nil
}

func (s *checkoutService) store(ref domain.CartRef) CartStore {
	if ref.IsGuest() {
		return s.guest
	}
	return s.account
}

// validate returns the normalized contact and the cart joined with live
// products. Every line that is stale or short on stock is reported at once.
func (s *checkoutService) validate(ctx context.Context, ref domain.CartRef, contact string) (string, []domain.CartItem, error) {
	normalized, err := domain.ValidateContact(contact)
	if err != nil {
		return "", nil, err
	}

	lines, err := s.store(ref).Lines(ctx, ref.ID)
	if err != nil {
		return "", nil, domain.NewPersistenceError("read cart", err)
	}
	if len(lines) == 0 {
		return "", nil, domain.NewValidationError("cart", "cart is empty")
	}

	products := make([]*domain.Product, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stockLookupConcurrency)
	for i, line := range lines {
		g.Go(func() error {
			product, err := s.catalog.FindByID(gctx, line.ProductID)
			if err != nil {
				if errors.Is(err, repository.ErrProductNotFound) {
					return nil
				}
				return fmt.Errorf("product %s: %w", line.ProductID, err)
			}
			products[i] = product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, domain.NewPersistenceError("catalog lookup", err)
	}

	var conflicts []domain.StockConflict
	items := make([]domain.CartItem, 0, len(lines))
	for i, line := range lines {
		product := products[i]
		switch {
		case product == nil:
			conflicts = append(conflicts, domain.StockConflict{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Missing:   true,
			})
		case product.Stock < line.Quantity:
			conflicts = append(conflicts, domain.StockConflict{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: product.Stock,
			})
		}
		items = append(items, domain.NewCartItem(line, product))
	}
	if len(conflicts) > 0 {
		return "", nil, &domain.StockConflictError{Conflicts: conflicts}
	}

	return normalized, items, nil
}

// commitAccount writes the order, its lines, the payment outcome and the cart
// clear in one transaction. A decline keeps the order as failed and the cart intact.
func (s *checkoutService) commitAccount(ctx context.Context, attempt *Attempt, contact string, items []domain.CartItem) (*domain.OrderReceipt, error) {
	accountID, _ := attempt.Cart.AccountID()
	orderID := uuid.New()
	lines := domain.FreezeLines(orderID, items)
	total := domain.OrderTotal(lines)

	validated := make([]domain.CartLine, 0, len(items))
	for _, item := range items {
		validated = append(validated, domain.CartLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	var decision PaymentDecision
	err := s.orders.WithinTx(ctx, func(tx repository.OrderTx) error {
		if err := tx.CreateOrder(ctx, &domain.Order{
			ID:          orderID,
			AccountID:   &accountID,
			Status:      domain.OrderStatusPending,
			Contact:     contact,
			TotalAmount: total,
		}); err != nil {
			return err
		}
		if err := tx.CreateOrderLines(ctx, lines); err != nil {
			return err
		}

		var err error
		decision, err = s.payments.Authorize(ctx, PaymentRequest{
			AttemptID: attempt.ID,
			OrderID:   &orderID,
			Cart:      attempt.Cart,
			Contact:   contact,
			Amount:    total,
		})
		if err != nil {
			return fmt.Errorf("payment gateway: %w", err)
		}

		if !decision.Approved {
			return tx.MarkStatus(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusFailed)
		}
		if err := tx.MarkStatus(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusPaid); err != nil {
			return err
		}
		return tx.ClearCart(ctx, accountID, validated)
	})
	if err != nil {
		if errors.Is(err, domain.ErrCartChanged) {
			return nil, err
		}
		if !s.commitLanded(ctx, orderID, err) {
			return nil, domain.NewPersistenceError("commit order", err)
		}
	}

	if !decision.Approved {
		return nil, &domain.PaymentDeclinedError{OrderID: &orderID, Reason: decision.Reason}
	}

	return &domain.OrderReceipt{
		Kind:      domain.ReceiptKindAccount,
		AttemptID: attempt.ID,
		OrderID:   &orderID,
		Status:    domain.OrderStatusPaid,
		Contact:   contact,
		Lines:     lines,
		Total:     total,
	}, nil
}

// commitLanded reports whether a transaction that returned an error committed
// anyway, as when the commit reached the database but its acknowledgement was
// lost. The order, its final status and the cart clear share the transaction,
// so a stored order with a final status means all of them landed.
func (s *checkoutService) commitLanded(ctx context.Context, orderID uuid.UUID, commitErr error) bool {
	order, err := s.orders.FindByID(ctx, orderID)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return false
	case err != nil:
		s.logger.Error("Commit outcome unknown, order lookup failed",
			zap.Stringer("order_id", orderID),
			zap.NamedError("commit_error", commitErr),
			zap.Error(err),
		)
		return false
	case order.Status == domain.OrderStatusPending:
		return false
	}

	s.logger.Warn("Order committed although the transaction reported an error",
		zap.Stringer("order_id", orderID),
		zap.String("status", string(order.Status)),
		zap.NamedError("commit_error", commitErr),
	)
	return true
}

// commitGuest asks for payment and empties the session cart. Guest checkouts
// persist no order.
func (s *checkoutService) commitGuest(ctx context.Context, attempt *Attempt, contact string, items []domain.CartItem) (*domain.OrderReceipt, error) {
	lines := domain.FreezeLines(uuid.Nil, items)
	total := domain.OrderTotal(lines)

	decision, err := s.payments.Authorize(ctx, PaymentRequest{
		AttemptID: attempt.ID,
		Cart:      attempt.Cart,
		Contact:   contact,
		Amount:    total,
	})
	if err != nil {
		return nil, domain.NewPersistenceError("authorize payment", err)
	}
	if !decision.Approved {
		return nil, &domain.PaymentDeclinedError{Reason: decision.Reason}
	}

	if err := s.guest.Clear(ctx, attempt.Cart.ID); err != nil {
		return nil, domain.NewPersistenceError("clear guest cart", err)
	}

	return &domain.OrderReceipt{
		Kind:      domain.ReceiptKindGuest,
		AttemptID: attempt.ID,
		Status:    domain.OrderStatusPaid,
		Contact:   contact,
		Lines:     lines,
		Total:     total,
	}, nil
}
