package promo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/imyrist/billing/internal/account"
	"github.com/imyrist/billing/internal/ledger"
)

func setupService(t *testing.T) (*Service, account.Repository, ledger.Ledger, string) {
	t.Helper()
	accounts := account.NewMemoryRepository()
	led := ledger.NewInMemory()
	repo := NewMemoryRepository(accounts, led)
	svc := NewService(repo, accounts, led)
	return svc, accounts, led, uuid.NewString()
}

func TestApplyCreditPostsBonusEntry(t *testing.T) {
	svc, _, led, accountID := setupService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{
		Code: "welcome500", Kind: KindCredit, Value: 500, SingleUse: true, Active: true,
	}); err != nil {
		t.Fatalf("create code: %v", err)
	}

	effect, err := svc.Apply(ctx, accountID, "user@example.com", "WELCOME500")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if effect.NewBalance != 500 {
		t.Fatalf("expected new balance 500, got %d", effect.NewBalance)
	}

	entries, _ := led.Entries(ctx, accountID, 0)
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Kind != ledger.KindBonus || e.Amount != 500 || e.Balance != 500 {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

// TestApplyOnFreshAccount covers an account whose very first action is a
// promo application: no prior topup has created the account or balance rows.
func TestApplyOnFreshAccount(t *testing.T) {
	svc, accounts, led, _ := setupService(t)
	ctx := context.Background()
	accountID := uuid.NewString()

	if _, err := svc.Create(ctx, CreateInput{
		Code: "WELCOME500", Kind: KindCredit, Value: 500, SingleUse: true, Active: true,
	}); err != nil {
		t.Fatalf("create code: %v", err)
	}

	effect, err := svc.Apply(ctx, accountID, "new@example.com", "WELCOME500")
	if err != nil {
		t.Fatalf("apply on fresh account: %v", err)
	}
	if effect.NewBalance != 500 {
		t.Fatalf("expected new balance 500, got %d", effect.NewBalance)
	}

	if _, err := accounts.Get(ctx, accountID); err != nil {
		t.Fatalf("account row must exist after apply: %v", err)
	}
	balance, err := led.Balance(ctx, accountID)
	if err != nil || balance != 500 {
		t.Fatalf("expected balance 500, got %d (%v)", balance, err)
	}

	codes, _ := svc.List(ctx)
	if codes[0].UsageCount != 1 {
		t.Fatalf("expected usage count 1, got %d", codes[0].UsageCount)
	}
}

type failingLedger struct {
	ledger.Ledger
	creditErr error
}

func (l *failingLedger) Credit(ctx context.Context, accountID string, amount int64, kind ledger.Kind, description string, links ledger.Links) (ledger.Entry, error) {
	if l.creditErr != nil {
		return ledger.Entry{}, l.creditErr
	}
	return l.Ledger.Credit(ctx, accountID, amount, kind, description, links)
}

// TestApplyCreditFailureDoesNotBurnUsage pins the all-or-nothing contract of
// Redeem: when the credit cannot be posted, the usage row and counter must
// roll back so the account can retry the same code.
func TestApplyCreditFailureDoesNotBurnUsage(t *testing.T) {
	accounts := account.NewMemoryRepository()
	led := &failingLedger{Ledger: ledger.NewInMemory()}
	repo := NewMemoryRepository(accounts, led)
	svc := NewService(repo, accounts, led)
	ctx := context.Background()
	accountID := uuid.NewString()

	if _, err := svc.Create(ctx, CreateInput{
		Code: "ONCE", Kind: KindCredit, Value: 100, SingleUse: true, Active: true,
	}); err != nil {
		t.Fatalf("create code: %v", err)
	}

	led.creditErr = errors.New("balances unavailable")
	if _, err := svc.Apply(ctx, accountID, "user@example.com", "ONCE"); err == nil {
		t.Fatal("expected error when the credit fails")
	}

	codes, _ := svc.List(ctx)
	if codes[0].UsageCount != 0 {
		t.Fatalf("failed effect must not burn the usage, count %d", codes[0].UsageCount)
	}

	// the retry succeeds instead of being refused as already used
	led.creditErr = nil
	effect, err := svc.Apply(ctx, accountID, "user@example.com", "ONCE")
	if err != nil {
		t.Fatalf("retry after failed effect: %v", err)
	}
	if effect.NewBalance != 100 {
		t.Fatalf("expected balance 100 after retry, got %d", effect.NewBalance)
	}
}

func TestApplyIsCaseInsensitive(t *testing.T) {
	svc, _, _, accountID := setupService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{Code: "  Summer10 ", Kind: KindCredit, Value: 10, Active: true}); err != nil {
		t.Fatalf("create code: %v", err)
	}

	if _, err := svc.Check(ctx, accountID, "summer10"); err != nil {
		t.Fatalf("check lower-cased code: %v", err)
	}
}

func TestApplySingleUseTwice(t *testing.T) {
	svc, _, _, accountID := setupService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{
		Code: "ONCE", Kind: KindCredit, Value: 100, SingleUse: true, Active: true,
	}); err != nil {
		t.Fatalf("create code: %v", err)
	}

	if _, err := svc.Apply(ctx, accountID, "user@example.com", "ONCE"); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if _, err := svc.Apply(ctx, accountID, "user@example.com", "ONCE"); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("expected already used, got %v", err)
	}

	codes, _ := svc.List(ctx)
	if len(codes) != 1 || codes[0].UsageCount != 1 {
		t.Fatalf("usage counter must increment exactly once, got %+v", codes)
	}
}

func TestApplyDiscountSetsPendingDiscount(t *testing.T) {
	svc, accounts, led, accountID := setupService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{
		Code: "MINUS50", Kind: KindFixedDiscount, Value: 50, Active: true,
	}); err != nil {
		t.Fatalf("create code: %v", err)
	}

	if _, err := svc.Apply(ctx, accountID, "user@example.com", "MINUS50"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	a, err := accounts.Get(ctx, accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if a.PendingDiscount == nil || a.PendingDiscount.Kind != account.DiscountFixed || a.PendingDiscount.Value != 50 {
		t.Fatalf("unexpected pending discount: %+v", a.PendingDiscount)
	}

	// discount effects never touch the ledger
	entries, _ := led.Entries(ctx, accountID, 0)
	if len(entries) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(entries))
	}
}

func TestCheckDistinctReasons(t *testing.T) {
	svc, _, _, accountID := setupService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name  string
		input CreateInput
		want  error
	}{
		{"inactive", CreateInput{Code: "A1", Kind: KindCredit, Value: 10, Active: false}, ErrInactive},
		{"not started", CreateInput{Code: "A2", Kind: KindCredit, Value: 10, Active: true, ValidFrom: future}, ErrNotStarted},
		{"expired", CreateInput{Code: "A3", Kind: KindCredit, Value: 10, Active: true, ValidFrom: past.Add(-time.Hour), ValidUntil: &past}, ErrExpired},
	}

	for _, tc := range cases {
		if _, err := svc.Create(ctx, tc.input); err != nil {
			t.Fatalf("%s: create: %v", tc.name, err)
		}
		if _, err := svc.Check(ctx, accountID, tc.input.Code); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if _, err := svc.Check(ctx, accountID, "NOPE"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplyUsageCapExhausted(t *testing.T) {
	svc, _, _, accountID := setupService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{
		Code: "CAP1", Kind: KindCredit, Value: 10, MaxUses: 1, Active: true,
	}); err != nil {
		t.Fatalf("create code: %v", err)
	}

	if _, err := svc.Apply(ctx, accountID, "user@example.com", "CAP1"); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	other := uuid.NewString()
	if _, err := svc.Apply(ctx, other, "other@example.com", "CAP1"); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

func TestCheckDoesNotMutate(t *testing.T) {
	svc, _, led, accountID := setupService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{Code: "RO", Kind: KindCredit, Value: 10, Active: true}); err != nil {
		t.Fatalf("create code: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Check(ctx, accountID, "RO"); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}

	codes, _ := svc.List(ctx)
	if codes[0].UsageCount != 0 {
		t.Fatalf("check must not increment usage, got %d", codes[0].UsageCount)
	}
	balance, _ := led.Balance(ctx, accountID)
	if balance != 0 {
		t.Fatalf("check must not touch the ledger, balance %d", balance)
	}
}
