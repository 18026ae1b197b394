package repository

import (
	"context"
	"sync"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// MemoryCartRepository is an in-process guest cart store, used when Redis is
// disabled and in tests. Carts die with the process.
type MemoryCartRepository struct {
	mu          sync.Mutex
	carts       map[string]map[uuid.UUID]int
	generations map[string]string
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{
		carts:       make(map[string]map[uuid.UUID]int),
		generations: make(map[string]string),
	}
}

func (r *MemoryCartRepository) Lines(ctx context.Context, ownerID string) ([]domain.CartLine, error) {
	snapshot, err := r.Snapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return snapshot.Lines, nil
}

func (r *MemoryCartRepository) Snapshot(_ context.Context, ownerID string) (GuestSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart := r.carts[ownerID]
	lines := make([]domain.CartLine, 0, len(cart))
	for productID, quantity := range cart {
		lines = append(lines, domain.CartLine{ProductID: productID, Quantity: quantity})
	}
	domain.SortLines(lines)
	return GuestSnapshot{Generation: r.generations[ownerID], Lines: lines}, nil
}

// Drain has the same contract as SessionCartRepository.Drain.
func (r *MemoryCartRepository) Drain(_ context.Context, ownerID string, snapshot GuestSnapshot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.generations[ownerID] != snapshot.Generation {
		return false, nil
	}

	cart, ok := r.carts[ownerID]
	if !ok {
		return true, nil
	}
	for _, line := range snapshot.Lines {
		if cart[line.ProductID] -= line.Quantity; cart[line.ProductID] <= 0 {
			delete(cart, line.ProductID)
		}
	}
	if len(cart) == 0 {
		r.drop(ownerID)
	} else {
		r.generations[ownerID] = uuid.NewString()
	}
	return true, nil
}

func (r *MemoryCartRepository) Increment(_ context.Context, ownerID string, productID uuid.UUID, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart := r.cart(ownerID)
	cart[productID] += delta
	return cart[productID], nil
}

func (r *MemoryCartRepository) SetQuantity(_ context.Context, ownerID string, productID uuid.UUID, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cart(ownerID)[productID] = quantity
	return nil
}

func (r *MemoryCartRepository) Remove(_ context.Context, ownerID string, productID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cart, ok := r.carts[ownerID]; ok {
		delete(cart, productID)
		if len(cart) == 0 {
			r.drop(ownerID)
		}
	}
	return nil
}

func (r *MemoryCartRepository) Clear(_ context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drop(ownerID)
	return nil
}

// cart must be called with mu held. A new cart starts a new generation.
func (r *MemoryCartRepository) cart(ownerID string) map[uuid.UUID]int {
	cart, ok := r.carts[ownerID]
	if !ok {
		cart = make(map[uuid.UUID]int)
		r.carts[ownerID] = cart
		r.generations[ownerID] = uuid.NewString()
	}
	return cart
}

func (r *MemoryCartRepository) drop(ownerID string) {
	delete(r.carts, ownerID)
	delete(r.generations, ownerID)
}
