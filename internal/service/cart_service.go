package service

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartStore is one backing store of the cart ledger. Implementations keep at
// most one line per product and make Increment a single atomic write.
type CartStore interface {
	Lines(ctx context.Context, ownerID string) ([]domain.CartLine, error)
	Increment(ctx context.Context, ownerID string, productID uuid.UUID, delta int) (int, error)
	SetQuantity(ctx context.Context, ownerID string, productID uuid.UUID, quantity int) error
	Remove(ctx context.Context, ownerID string, productID uuid.UUID) error
	Clear(ctx context.Context, ownerID string) error
}

// GuestCartStore is the session side of the ledger. Its carts carry a
// generation so a merge can drain exactly the lines it read.
type GuestCartStore interface {
	CartStore
	Snapshot(ctx context.Context, sessionID string) (repository.GuestSnapshot, error)
	Drain(ctx context.Context, sessionID string, snapshot repository.GuestSnapshot) (bool, error)
}

// AccountCartStore is the durable store. It can absorb a guest snapshot in one transaction.
type AccountCartStore interface {
	CartStore
	MergeLines(ctx context.Context, accountID uuid.UUID, mergeKey string, lines []domain.CartLine) (bool, error)
}

// Catalog is the read side of the product store. FindByID returns
// repository.ErrProductNotFound for deleted products.
type Catalog interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error)
}

// CartService is the cart ledger shared by guest and account carts
type CartService interface {
	AddItem(ctx context.Context, ref domain.CartRef, productID uuid.UUID, delta int) (*domain.CartSnapshot, error)
	SetQuantity(ctx context.Context, ref domain.CartRef, productID uuid.UUID, quantity int) (*domain.CartSnapshot, error)
	RemoveItem(ctx context.Context, ref domain.CartRef, productID uuid.UUID) (*domain.CartSnapshot, error)
	ListItems(ctx context.Context, ref domain.CartRef) iter.Seq2[domain.CartItem, error]
	Total(ctx context.Context, ref domain.CartRef) (decimal.Decimal, error)
	Count(ctx context.Context, ref domain.CartRef) (int, error)
	Snapshot(ctx context.Context, ref domain.CartRef) (*domain.CartSnapshot, error)
	Clear(ctx context.Context, ref domain.CartRef) error
}

type cartService struct {
	guest   CartStore
	account CartStore
	catalog Catalog
	metrics *metrics.StoreMetrics
	logger  *zap.Logger
}

// NewCartService creates a new instance of CartService
func NewCartService(
	guest CartStore,
	account CartStore,
	catalog Catalog,
	storeMetrics *metrics.StoreMetrics,
	log *zap.Logger,
) CartService {
	return &cartService{
		guest:   guest,
		account: account,
		catalog: catalog,
		metrics: storeMetrics,
		logger:  logger.Component(log, "cart"),
	}
}

func (s *cartService) store(ref domain.CartRef) (CartStore, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if ref.IsGuest() {
		return s.guest, nil
	}
	return s.account, nil
}

// AddItem adds delta units of a product. The product must exist and be in stock.
func (s *cartService) AddItem(ctx context.Context, ref domain.CartRef, productID uuid.UUID, delta int) (*domain.CartSnapshot, error) {
	if delta < 1 {
		return nil, domain.NewValidationError("quantity", "quantity must be at least 1")
	}
	store, err := s.store(ref)
	if err != nil {
		return nil, err
	}

	product, err := s.lookup(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.NewValidationError("product_id", "product does not exist")
	}
	if !product.InStock() {
		return nil, domain.NewValidationError("product_id", "product is out of stock")
	}

	quantity, err := store.Increment(ctx, ref.ID, productID, delta)
	if err != nil {
		return nil, s.storeError("add item", err)
	}
	s.metrics.IncCartWrite(string(ref.Kind), "add")
	s.logger.Debug("Cart line incremented",
		zap.Stringer("cart", ref),
		zap.Stringer("product_id", productID),
		zap.Int("quantity", quantity),
	)

	return s.Snapshot(ctx, ref)
}

// SetQuantity overwrites a line. A quantity below 1 removes the line.
func (s *cartService) SetQuantity(ctx context.Context, ref domain.CartRef, productID uuid.UUID, quantity int) (*domain.CartSnapshot, error) {
	if quantity < 1 {
		return s.RemoveItem(ctx, ref, productID)
	}
	store, err := s.store(ref)
	if err != nil {
		return nil, err
	}

	product, err := s.lookup(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.NewValidationError("product_id", "product does not exist")
	}

	if err := store.SetQuantity(ctx, ref.ID, productID, quantity); err != nil {
		return nil, s.storeError("set quantity", err)
	}
	s.metrics.IncCartWrite(string(ref.Kind), "set")

	return s.Snapshot(ctx, ref)
}

// RemoveItem deletes a line. Removing an absent line is a no-op.
func (s *cartService) RemoveItem(ctx context.Context, ref domain.CartRef, productID uuid.UUID) (*domain.CartSnapshot, error) {
	store, err := s.store(ref)
	if err != nil {
		return nil, err
	}

	if err := store.Remove(ctx, ref.ID, productID); err != nil {
		return nil, s.storeError("remove item", err)
	}
	s.metrics.IncCartWrite(string(ref.Kind), "remove")

	return s.Snapshot(ctx, ref)
}

// ListItems yields the cart joined with the live catalog. Every range re-reads
// the ledger. Lines whose product was deleted are yielded with Stale set.
func (s *cartService) ListItems(ctx context.Context, ref domain.CartRef) iter.Seq2[domain.CartItem, error] {
	return func(yield func(domain.CartItem, error) bool) {
		store, err := s.store(ref)
		if err != nil {
			yield(domain.CartItem{}, err)
			return
		}

		lines, err := store.Lines(ctx, ref.ID)
		if err != nil {
			yield(domain.CartItem{}, s.storeError("list items", err))
			return
		}

		for _, line := range lines {
			product, err := s.lookup(ctx, line.ProductID)
			if err != nil {
				yield(domain.CartItem{}, err)
				return
			}

			item := domain.NewCartItem(line, product)
			if item.Stale {
				s.logger.Warn("Cart references deleted product",
					zap.Stringer("cart", ref),
					zap.Stringer("product_id", line.ProductID),
				)
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Snapshot collects the cart into lines plus total
func (s *cartService) Snapshot(ctx context.Context, ref domain.CartRef) (*domain.CartSnapshot, error) {
	var items []domain.CartItem
	for item, err := range s.ListItems(ctx, ref) {
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return domain.NewCartSnapshot(ref, items), nil
}

// Total is the live price of all non-stale lines rounded to cents
func (s *cartService) Total(ctx context.Context, ref domain.CartRef) (decimal.Decimal, error) {
	snapshot, err := s.Snapshot(ctx, ref)
	if err != nil {
		return decimal.Zero, err
	}
	return snapshot.Total, nil
}

// Count is the number of units in the cart, stale lines excluded
func (s *cartService) Count(ctx context.Context, ref domain.CartRef) (int, error) {
	snapshot, err := s.Snapshot(ctx, ref)
	if err != nil {
		return 0, err
	}
	return snapshot.ItemCount, nil
}

func (s *cartService) Clear(ctx context.Context, ref domain.CartRef) error {
	store, err := s.store(ref)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx, ref.ID); err != nil {
		return s.storeError("clear cart", err)
	}
	s.metrics.IncCartWrite(string(ref.Kind), "clear")
	return nil
}

// lookup returns nil without error for deleted products
func (s *cartService) lookup(ctx context.Context, productID uuid.UUID) (*domain.Product, error) {
	product, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, nil
		}
		return nil, domain.NewPersistenceError("catalog lookup", err)
	}
	return product, nil
}

func (s *cartService) storeError(op string, err error) error {
	if errors.Is(err, repository.ErrAccountNotFound) {
		return domain.NewValidationError("account", "account does not exist")
	}
	s.logger.Error("Cart store failure", zap.String("op", op), zap.Error(err))
	return domain.NewPersistenceError(op, fmt.Errorf("cart store: %w", err))
}
