package account

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.Mutex
	storage map[string]Account
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Account)}
}

func (r *memoryRepository) Ensure(_ context.Context, id, email string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.storage[id]; ok {
		return existing, nil
	}
	a := Account{ID: id, Email: email, CreatedAt: time.Now().UTC()}
	r.storage[id] = a
	return a, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.storage[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *memoryRepository) SetPendingDiscount(_ context.Context, id string, d Discount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.storage[id]
	if !ok {
		return ErrNotFound
	}
	copied := d
	a.PendingDiscount = &copied
	r.storage[id] = a
	return nil
}

func (r *memoryRepository) ConsumePendingDiscount(_ context.Context, id string) (*Discount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.storage[id]
	if !ok {
		return nil, ErrNotFound
	}
	d := a.PendingDiscount
	a.PendingDiscount = nil
	r.storage[id] = a
	return d, nil
}
