package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	errInjected  = errors.New("injected failure")
	errCommitAck = errors.New("connection reset while committing")
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]*domain.Product
	err      error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: make(map[uuid.UUID]*domain.Product)}
}

func (c *fakeCatalog) add(name, price string, stock int) *domain.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	product := &domain.Product{
		ID:        uuid.New(),
		Name:      name,
		Category:  "pizza",
		Price:     decimal.RequireFromString(price),
		Stock:     stock,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	c.products[product.ID] = product
	return product
}

func (c *fakeCatalog) remove(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

func (c *fakeCatalog) setStock(id uuid.UUID, stock int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[id].Stock = stock
}

func (c *fakeCatalog) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	product, ok := c.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	copied := *product
	return &copied, nil
}

func (c *fakeCatalog) List(_ context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	products := []*domain.Product{}
	for _, product := range c.products {
		if filter.Category == "" || product.Category == filter.Category {
			copied := *product
			products = append(products, &copied)
		}
	}
	return products, nil
}

// fakeAccountCarts is the account cart store with merge receipts.
type fakeAccountCarts struct {
	*repository.MemoryCartRepository
	mu       sync.Mutex
	receipts map[string]bool
	mergeErr error
}

func newFakeAccountCarts() *fakeAccountCarts {
	return &fakeAccountCarts{
		MemoryCartRepository: repository.NewMemoryCartRepository(),
		receipts:             make(map[string]bool),
	}
}

func (c *fakeAccountCarts) MergeLines(ctx context.Context, accountID uuid.UUID, mergeKey string, lines []domain.CartLine) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mergeErr != nil {
		return false, c.mergeErr
	}
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

// failingDrainStore fails Drain so the caller's handling of a lost clear can be checked.
type failingDrainStore struct {
	GuestCartStore
}

func (failingDrainStore) Drain(context.Context, string, repository.GuestSnapshot) (bool, error) {
	return false, errInjected
}

// interleavingStore runs afterRead once the snapshot is taken, like a second
// tab writing to the cart while a merge is in flight.
type interleavingStore struct {
	GuestCartStore
	afterRead func()
}

func (s *interleavingStore) Snapshot(ctx context.Context, sessionID string) (repository.GuestSnapshot, error) {
	snapshot, err := s.GuestCartStore.Snapshot(ctx, sessionID)
	if s.afterRead != nil {
		hook := s.afterRead
		s.afterRead = nil
		hook()
	}
	return snapshot, err
}

// fakeOrderStore stages transactional writes and applies them only when fn succeeds.
type fakeOrderStore struct {
	mu       sync.Mutex
	carts    *fakeAccountCarts
	orders   map[uuid.UUID]*domain.Order
	failOn   string
	commits  int
	// ackLost applies the next successful transaction and then reports an
	// error, as a commit whose acknowledgement never arrived.
	ackLost bool
}

func newFakeOrderStore(carts *fakeAccountCarts) *fakeOrderStore {
	return &fakeOrderStore{carts: carts, orders: make(map[uuid.UUID]*domain.Order)}
}

func (s *fakeOrderStore) WithinTx(ctx context.Context, fn func(tx repository.OrderTx) error) error {
	tx := &fakeOrderTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.order != nil {
		tx.order.Lines = tx.lines
		s.orders[tx.order.ID] = tx.order
	}
	if tx.clearAccount != nil {
		_ = s.carts.Clear(ctx, tx.clearAccount.String())
	}
	s.commits++
	if s.ackLost {
		s.ackLost = false
		return errCommitAck
	}
	return nil
}

func (s *fakeOrderStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (s *fakeOrderStore) all() []*domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := make([]*domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		orders = append(orders, order)
	}
	return orders
}

type fakeOrderTx struct {
	store        *fakeOrderStore
	order        *domain.Order
	lines        []domain.OrderLine
	clearAccount *uuid.UUID
}

func (t *fakeOrderTx) fail(op string) error {
	if t.store.failOn == op {
		return errInjected
	}
	return nil
}

func (t *fakeOrderTx) CreateOrder(_ context.Context, order *domain.Order) error {
	if err := t.fail("create_order"); err != nil {
		return err
	}
	copied := *order
	t.order = &copied
	return nil
}

func (t *fakeOrderTx) CreateOrderLines(_ context.Context, lines []domain.OrderLine) error {
	if err := t.fail("create_lines"); err != nil {
		return err
	}
	t.lines = append(t.lines, lines...)
	return nil
}

func (t *fakeOrderTx) MarkStatus(_ context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	if err := t.fail("mark_status"); err != nil {
		return err
	}
	if t.order == nil || t.order.ID != orderID || t.order.Status != from || !from.CanTransitionTo(to) {
		return domain.ErrIllegalTransition
	}
	t.order.Status = to
	return nil
}

func (t *fakeOrderTx) ClearCart(ctx context.Context, accountID uuid.UUID, expected []domain.CartLine) error {
	if err := t.fail("clear_cart"); err != nil {
		return err
	}
	current, err := t.store.carts.Lines(ctx, accountID.String())
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
	t.clearAccount = &accountID
	return nil
}

// scriptedGateway returns a fixed decision and records requests.
type scriptedGateway struct {
	mu       sync.Mutex
	decision PaymentDecision
	err      error
	delay    time.Duration
	requests []PaymentRequest
	// onAuthorize runs inside Authorize, e.g. to mutate the cart mid-commit.
	onAuthorize func()
}

func approvingGateway() *scriptedGateway {
	return &scriptedGateway{decision: PaymentDecision{Approved: true, Reference: "test"}}
}

func (g *scriptedGateway) Authorize(ctx context.Context, req PaymentRequest) (PaymentDecision, error) {
	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return PaymentDecision{}, ctx.Err()
		case <-time.After(g.delay):
		}
	}
	g.mu.Lock()
	g.requests = append(g.requests, req)
	hook := g.onAuthorize
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	return g.decision, g.err
}
