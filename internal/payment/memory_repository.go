package payment

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.Mutex
	byOrder map[string]Payment
	byID    map[string]string // payment id -> order id
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byOrder: make(map[string]Payment),
		byID:    make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOrder[p.OrderID]; exists {
		return errors.New("order id exists")
	}
	p.UpdatedAt = p.CreatedAt
	r.byOrder[p.OrderID] = p
	r.byID[p.ID] = p.OrderID
	return nil
}

func (r *memoryRepository) FindByOrderID(_ context.Context, orderID string) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byOrder[orderID]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) MarkProcessing(_ context.Context, id, gatewayPaymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orderID, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	p := r.byOrder[orderID]
	p.Status = StatusProcessing
	p.GatewayPaymentID = gatewayPaymentID
	p.UpdatedAt = time.Now().UTC()
	r.byOrder[orderID] = p
	return nil
}

func (r *memoryRepository) MarkSuccess(_ context.Context, orderID, gatewayPaymentID, gatewayStatus string) (Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byOrder[orderID]
	if !ok {
		return Payment{}, false, ErrNotFound
	}
	if p.Status == StatusSuccess {
		return p, false, nil
	}
	p.Status = StatusSuccess
	p.GatewayPaymentID = gatewayPaymentID
	p.GatewayStatus = gatewayStatus
	p.UpdatedAt = time.Now().UTC()
	r.byOrder[orderID] = p
	return p, true, nil
}

func (r *memoryRepository) MarkFailed(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	orderID, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	p := r.byOrder[orderID]
	if p.Status == StatusSuccess {
		return nil
	}
	p.Status = StatusFailed
	p.UpdatedAt = time.Now().UTC()
	r.byOrder[orderID] = p
	return nil
}
