package promo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/imyrist/billing/internal/account"
	"github.com/imyrist/billing/internal/ledger"
)

type memoryRepository struct {
	mu       sync.Mutex
	codes    map[string]PromoCode // keyed by upper-cased code
	usages   []Usage
	accounts account.Repository
	ledger   ledger.Ledger
}

// NewMemoryRepository constructs an in-memory repository for tests. Redeem
// applies effects through the supplied account repository and ledger.
func NewMemoryRepository(accounts account.Repository, ledgerBackend ledger.Ledger) Repository {
	return &memoryRepository{
		codes:    make(map[string]PromoCode),
		accounts: accounts,
		ledger:   ledgerBackend,
	}
}

func (r *memoryRepository) Create(_ context.Context, p PromoCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codes[p.Code]; exists {
		return errors.New("promo code exists")
	}
	r.codes[p.Code] = p
	return nil
}

func (r *memoryRepository) FindByCode(_ context.Context, code string) (PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.codes[code]
	if !ok {
		return PromoCode{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) List(_ context.Context) ([]PromoCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	codes := make([]PromoCode, 0, len(r.codes))
	for _, p := range r.codes {
		codes = append(codes, p)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].CreatedAt.After(codes[j].CreatedAt) })
	return codes, nil
}

func (r *memoryRepository) HasUsage(_ context.Context, promoID, accountID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasUsageLocked(promoID, accountID), nil
}

func (r *memoryRepository) Redeem(ctx context.Context, code, accountID string, now time.Time) (PromoCode, *ledger.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.codes[code]
	if !ok {
		return PromoCode{}, nil, ErrNotFound
	}

	used := p.SingleUse && r.hasUsageLocked(p.ID, accountID)
	if err := validate(p, used, now); err != nil {
		return PromoCode{}, nil, err
	}

	// effect first: a failed effect must leave the code redeemable
	var entry *ledger.Entry
	switch p.Kind {
	case KindCredit:
		e, err := r.ledger.Credit(ctx, accountID, p.Value, ledger.KindBonus, creditDescription(p), ledger.Links{})
		if err != nil {
			return PromoCode{}, nil, err
		}
		entry = &e
	case KindFixedDiscount:
		if err := r.accounts.SetPendingDiscount(ctx, accountID, account.Discount{
			Kind: account.DiscountFixed, Value: p.Value, PromoID: p.ID,
		}); err != nil {
			return PromoCode{}, nil, err
		}
	case KindPercentageDiscount:
		if err := r.accounts.SetPendingDiscount(ctx, accountID, account.Discount{
			Kind: account.DiscountPercentage, Value: p.Value, PromoID: p.ID,
		}); err != nil {
			return PromoCode{}, nil, err
		}
	default:
		return PromoCode{}, nil, fmt.Errorf("unknown promo kind %q", p.Kind)
	}

	r.usages = append(r.usages, Usage{
		ID:           uuid.NewString(),
		PromoID:      p.ID,
		AccountID:    accountID,
		AppliedValue: p.Value,
		CreatedAt:    now.UTC(),
	})
	p.UsageCount++
	r.codes[code] = p
	return p, entry, nil
}

func (r *memoryRepository) hasUsageLocked(promoID, accountID string) bool {
	for _, u := range r.usages {
		if u.PromoID == promoID && u.AccountID == accountID {
			return true
		}
	}
	return false
}
