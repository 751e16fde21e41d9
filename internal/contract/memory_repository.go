package contract

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu      sync.Mutex
	storage map[string]Contract
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Contract)}
}

func (r *memoryRepository) Create(_ context.Context, c Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[c.ID]; exists {
		return errors.New("contract exists")
	}
	r.storage[c.ID] = c
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.storage[id]
	if !ok {
		return Contract{}, ErrNotFound
	}
	return c, nil
}

func (r *memoryRepository) MarkPaid(_ context.Context, id, method string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.storage[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.Status != StatusUploaded {
		return false, nil
	}
	c.Status = StatusPaid
	c.PaymentMethod = method
	r.storage[id] = c
	return true, nil
}

func (r *memoryRepository) MarkUploaded(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.storage[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = StatusUploaded
	c.PaymentMethod = ""
	r.storage[id] = c
	return nil
}
