package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]int64
	entries  map[string][]Entry
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests.
func NewInMemory() Ledger {
	return &inMemoryLedger{
		balances: make(map[string]int64),
		entries:  make(map[string][]Entry),
	}
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, accountID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.balances[accountID]; !exists {
		l.balances[accountID] = 0
	}
	return nil
}

func (l *inMemoryLedger) Balance(_ context.Context, accountID string) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance, exists := l.balances[accountID]
	if !exists {
		return 0, ErrAccountNotFound
	}
	return balance, nil
}

func (l *inMemoryLedger) Credit(_ context.Context, accountID string, amount int64, kind Kind, description string, links Links) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(accountID, amount, kind, description, links)
}

func (l *inMemoryLedger) Debit(_ context.Context, accountID string, amount int64, kind Kind, description string, links Links) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[accountID]
	if !ok {
		return Entry{}, ErrAccountNotFound
	}
	if balance < amount {
		return Entry{}, ErrInsufficientFunds
	}

	return l.appendLocked(accountID, -amount, kind, description, links)
}

func (l *inMemoryLedger) Deposit(_ context.Context, accountID string, amount, bonus int64, paymentID string) ([]Entry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if bonus < 0 {
		return nil, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	deposit, err := l.appendLocked(accountID, amount, KindDeposit, "Balance topup", Links{PaymentID: paymentID})
	if err != nil {
		return nil, err
	}
	entries := []Entry{deposit}

	if bonus > 0 {
		pct := bonus * 100 / amount
		bonusEntry, err := l.appendLocked(accountID, bonus, KindBonus,
			fmt.Sprintf("Topup bonus %d%%", pct), Links{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		entries = append(entries, bonusEntry)
	}

	return entries, nil
}

func (l *inMemoryLedger) Entries(_ context.Context, accountID string, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.entries[accountID]
	out := make([]Entry, 0, len(history))
	// newest first
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// appendLocked mutates the balance and records the entry snapshot. Callers
// must hold the write lock and have validated preconditions.
func (l *inMemoryLedger) appendLocked(accountID string, signedAmount int64, kind Kind, description string, links Links) (Entry, error) {
	balance, ok := l.balances[accountID]
	if !ok {
		return Entry{}, ErrAccountNotFound
	}

	balance += signedAmount
	l.balances[accountID] = balance

	entry := Entry{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        kind,
		Amount:      signedAmount,
		Balance:     balance,
		Description: description,
		PaymentID:   links.PaymentID,
		ContractID:  links.ContractID,
		CreatedAt:   time.Now().UTC(),
	}
	l.entries[accountID] = append(l.entries[accountID], entry)
	return entry, nil
}
