package transport

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*domain.User)}
}

func (m *memUsers) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *memUsers) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type memCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
}

func newMemCatalog() *memCatalog {
	return &memCatalog{products: make(map[uuid.UUID]*domain.Product)}
}

func (c *memCatalog) add(name, category, price string, stock int) *domain.Product {
	product := &domain.Product{
		ID:        uuid.New(),
		Name:      name,
		Category:  category,
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_ = c.Create(context.Background(), product)
	return product
}

func (c *memCatalog) Create(_ context.Context, product *domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *product
	c.products[product.ID] = &copied
	return nil
}

func (c *memCatalog) Update(_ context.Context, product *domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[product.ID]; !ok {
		return repository.ErrProductNotFound
	}
	copied := *product
	c.products[product.ID] = &copied
	return nil
}

func (c *memCatalog) Delete(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(c.products, id)
	return nil
}

func (c *memCatalog) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	product, ok := c.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *product
	return &copied, nil
}

func (c *memCatalog) List(_ context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	products := []*domain.Product{}
	for _, product := range c.products {
		if filter.Category == "" || product.Category == filter.Category {
			copied := *product
			products = append(products, &copied)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

type memAccountCarts struct {
	*repository.MemoryCartRepository
	mu       sync.Mutex
	receipts map[string]bool
}

func newMemAccountCarts() *memAccountCarts {
	return &memAccountCarts{
		MemoryCartRepository: repository.NewMemoryCartRepository(),
		receipts:             make(map[string]bool),
	}
}

func (c *memAccountCarts) MergeLines(ctx context.Context, accountID uuid.UUID, mergeKey string, lines []domain.CartLine) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := accountID.String() + "|" + mergeKey
	if c.receipts[key] {
		return false, nil
	}
	for _, line := range lines {
		if _, err := c.Increment(ctx, accountID.String(), line.ProductID, line.Quantity); err != nil {
			return false, err
		}
	}
	c.receipts[key] = true
	return true, nil
}

// memOrders applies a checkout transaction only when every step succeeds.
type memOrders struct {
	mu     sync.Mutex
	carts  *memAccountCarts
	orders map[uuid.UUID]*domain.Order
}

func newMemOrders(carts *memAccountCarts) *memOrders {
	return &memOrders{carts: carts, orders: make(map[uuid.UUID]*domain.Order)}
}

func (s *memOrders) WithinTx(ctx context.Context, fn func(tx repository.OrderTx) error) error {
	tx := &memOrderTx{carts: s.carts}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.order != nil {
		tx.order.Lines = tx.lines
		tx.order.CreatedAt = time.Now()
		s.orders[tx.order.ID] = tx.order
	}
	if tx.clear != nil {
		return s.carts.Clear(ctx, tx.clear.String())
	}
	return nil
}

func (s *memOrders) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (s *memOrders) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := []*domain.Order{}
	for _, order := range s.orders {
		if order.AccountID != nil && *order.AccountID == accountID {
			orders = append(orders, order)
		}
	}
	if len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

type memOrderTx struct {
	carts *memAccountCarts
	order *domain.Order
	lines []domain.OrderLine
	clear *uuid.UUID
}

func (t *memOrderTx) CreateOrder(_ context.Context, order *domain.Order) error {
	copied := *order
	t.order = &copied
	return nil
}

func (t *memOrderTx) CreateOrderLines(_ context.Context, lines []domain.OrderLine) error {
	t.lines = append(t.lines, lines...)
	return nil
}

func (t *memOrderTx) MarkStatus(_ context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	if t.order == nil || t.order.ID != orderID || t.order.Status != from || !from.CanTransitionTo(to) {
		return domain.ErrIllegalTransition
	}
	t.order.Status = to
	return nil
}

func (t *memOrderTx) ClearCart(ctx context.Context, accountID uuid.UUID, expected []domain.CartLine) error {
	current, err := t.carts.Lines(ctx, accountID.String())
	if err != nil {
		return err
	}
	if len(current) != len(expected) {
		return domain.ErrCartChanged
	}
	want := make(map[uuid.UUID]int, len(expected))
	for _, line := range expected {
		want[line.ProductID] = line.Quantity
	}
	for _, line := range current {
		if want[line.ProductID] != line.Quantity {
			return domain.ErrCartChanged
		}
	}
	t.clear = &accountID
	return nil
}
