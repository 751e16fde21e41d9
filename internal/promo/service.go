package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imyrist/billing/internal/account"
	"github.com/imyrist/billing/internal/ledger"
)

// Service validates and applies promo codes against the ledger and account
// pending discounts.
type Service struct {
	repo     Repository
	accounts account.Repository
	ledger   ledger.Ledger
	now      func() time.Time
}

// NewService builds a promo service instance.
func NewService(repo Repository, accounts account.Repository, ledgerBackend ledger.Ledger) *Service {
	return &Service{repo: repo, accounts: accounts, ledger: ledgerBackend, now: time.Now}
}

// Effect describes the outcome of checking or applying a code.
type Effect struct {
	Kind        Kind
	Value       int64
	Description string
	// NewBalance is set only when a credit effect posted a ledger entry.
	NewBalance int64
}

// Check re-validates all constraints without mutating any state. It backs the
// pre-flight confirmation in the UI.
func (s *Service) Check(ctx context.Context, accountID, code string) (Effect, error) {
	p, err := s.repo.FindByCode(ctx, Normalize(code))
	if err != nil {
		return Effect{}, err
	}

	used := false
	if p.SingleUse {
		used, err = s.repo.HasUsage(ctx, p.ID, accountID)
		if err != nil {
			return Effect{}, err
		}
	}

	if err := validate(p, used, s.now()); err != nil {
		return Effect{}, err
	}

	return Effect{Kind: p.Kind, Value: p.Value, Description: describe(p)}, nil
}

// Apply redeems the code and applies its effect. The account and balance
// rows are ensured up front, so a promo application may be a brand-new
// account's very first action. Redeem then commits the effect atomically
// with the usage row and counter increment: the loser of a concurrent pair
// observes the winner's usage and fails with the already-used reason, and a
// failed effect never burns the usage. Credit effects post a bonus ledger
// entry immediately; discount effects set the account's pending discount for
// the next purchase.
func (s *Service) Apply(ctx context.Context, accountID, email, code string) (Effect, error) {
	if _, err := s.accounts.Ensure(ctx, accountID, email); err != nil {
		return Effect{}, err
	}
	if err := s.ledger.EnsureAccount(ctx, accountID); err != nil {
		return Effect{}, err
	}

	p, entry, err := s.repo.Redeem(ctx, Normalize(code), accountID, s.now())
	if err != nil {
		return Effect{}, err
	}

	effect := Effect{Kind: p.Kind, Value: p.Value, Description: describe(p)}
	if entry != nil {
		effect.NewBalance = entry.Balance
	}
	return effect, nil
}

// CreateInput captures admin-provided data for a new promo code.
type CreateInput struct {
	Code       string
	Kind       Kind
	Value      int64
	ValidFrom  time.Time
	ValidUntil *time.Time
	MaxUses    int
	SingleUse  bool
	Active     bool
}

// Create registers a new code; the code string is stored upper-cased.
func (s *Service) Create(ctx context.Context, input CreateInput) (PromoCode, error) {
	code := Normalize(input.Code)
	if code == "" {
		return PromoCode{}, fmt.Errorf("code is required")
	}
	switch input.Kind {
	case KindCredit, KindFixedDiscount, KindPercentageDiscount:
	default:
		return PromoCode{}, fmt.Errorf("unknown promo kind %q", input.Kind)
	}
	if input.Value <= 0 {
		return PromoCode{}, fmt.Errorf("value must be positive")
	}
	if input.Kind == KindPercentageDiscount && input.Value > 100 {
		return PromoCode{}, fmt.Errorf("percentage value must not exceed 100")
	}

	validFrom := input.ValidFrom
	if validFrom.IsZero() {
		validFrom = s.now().UTC()
	}

	p := PromoCode{
		ID:         uuid.NewString(),
		Code:       code,
		Kind:       input.Kind,
		Value:      input.Value,
		ValidFrom:  validFrom,
		ValidUntil: input.ValidUntil,
		MaxUses:    input.MaxUses,
		SingleUse:  input.SingleUse,
		Active:     input.Active,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return PromoCode{}, err
	}
	return p, nil
}

// List returns all codes with their usage counters.
func (s *Service) List(ctx context.Context) ([]PromoCode, error) {
	return s.repo.List(ctx)
}

// Normalize upper-cases and trims a user-supplied code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func creditDescription(p PromoCode) string {
	return fmt.Sprintf("Promo code %s: +%d", p.Code, p.Value)
}

func describe(p PromoCode) string {
	switch p.Kind {
	case KindCredit:
		return fmt.Sprintf("Credits %d to your balance", p.Value)
	case KindFixedDiscount:
		return fmt.Sprintf("%d off the next analysis", p.Value)
	case KindPercentageDiscount:
		return fmt.Sprintf("%d%% off the next analysis", p.Value)
	default:
		return ""
	}
}
