package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
)

func TestInMemoryLedger_SnapshotsMatchRunningSum(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if err := l.EnsureAccount(ctx, "acct-1"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}

	steps := []struct {
		credit bool
		amount int64
	}{
		{true, 2_000},
		{true, 500},
		{false, 199},
		{true, 100},
		{false, 1_000},
	}

	var running int64
	for i, step := range steps {
		var entry Entry
		var err error
		if step.credit {
			entry, err = l.Credit(ctx, "acct-1", step.amount, KindDeposit, "credit", Links{})
			running += step.amount
		} else {
			entry, err = l.Debit(ctx, "acct-1", step.amount, KindAnalysis, "debit", Links{})
			running -= step.amount
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if entry.Balance != running {
			t.Fatalf("step %d: snapshot %d, want running sum %d", i, entry.Balance, running)
		}
	}

	balance, err := l.Balance(ctx, "acct-1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != running {
		t.Fatalf("final balance %d, want %d", balance, running)
	}

	entries, err := l.Entries(ctx, "acct-1", 0)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != len(steps) {
		t.Fatalf("expected %d entries, got %d", len(steps), len(entries))
	}
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	if sum != balance {
		t.Fatalf("entry sum %d does not equal balance %d", sum, balance)
	}
}

func TestInMemoryLedger_DebitInsufficientFunds(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct-1")
	SeedBalance(l, "acct-1", 199)

	entry, err := l.Debit(ctx, "acct-1", 199, KindAnalysis, "analysis", Links{})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if entry.Balance != 0 {
		t.Fatalf("expected balance snapshot 0, got %d", entry.Balance)
	}

	if _, err := l.Debit(ctx, "acct-1", 1, KindAnalysis, "analysis", Links{}); err != ErrInsufficientFunds {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	balance, _ := l.Balance(ctx, "acct-1")
	if balance != 0 {
		t.Fatalf("failed debit must not change balance, got %d", balance)
	}
	entries, _ := l.Entries(ctx, "acct-1", 0)
	if len(entries) != 1 {
		t.Fatalf("failed debit must not append an entry, got %d entries", len(entries))
	}
}

func TestInMemoryLedger_DepositAppendsBonusAfterDeposit(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct-1")

	entries, err := l.Deposit(ctx, "acct-1", 2_000, 100, "pay-1")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected deposit and bonus entries, got %d", len(entries))
	}

	if entries[0].Kind != KindDeposit || entries[0].Amount != 2_000 || entries[0].Balance != 2_000 {
		t.Fatalf("unexpected deposit entry: %+v", entries[0])
	}
	if entries[1].Kind != KindBonus || entries[1].Amount != 100 || entries[1].Balance != 2_100 {
		t.Fatalf("unexpected bonus entry: %+v", entries[1])
	}

	balance, _ := l.Balance(ctx, "acct-1")
	if balance != 2_100 {
		t.Fatalf("expected balance 2100, got %d", balance)
	}
}

func TestInMemoryLedger_DepositWithoutBonus(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct-1")

	entries, err := l.Deposit(ctx, "acct-1", 500, 0, "pay-1")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected single deposit entry, got %d", len(entries))
	}
}

func TestInMemoryLedger_ConcurrentMutations(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.EnsureAccount(ctx, "acct-1")
	SeedBalance(l, "acct-1", 100_000)

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := l.Debit(ctx, "acct-1", 500, KindAnalysis, fmt.Sprintf("debit-%d", i), Links{}); err != nil {
				t.Errorf("debit %d failed: %v", i, err)
			}
			if _, err := l.Credit(ctx, "acct-1", 200, KindAdmin, fmt.Sprintf("credit-%d", i), Links{}); err != nil {
				t.Errorf("credit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	balance, _ := l.Balance(ctx, "acct-1")
	if balance != 100_000-workers*500+workers*200 {
		t.Fatalf("unexpected final balance %d", balance)
	}

	entries, _ := l.Entries(ctx, "acct-1", 0)
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	if 100_000+sum != balance {
		t.Fatalf("entries sum %d inconsistent with balance %d", sum, balance)
	}
}

func TestInMemoryLedger_UnknownAccount(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if _, err := l.Credit(ctx, "missing", 100, KindDeposit, "credit", Links{}); err != ErrAccountNotFound {
		t.Fatalf("expected account not found, got %v", err)
	}
	if _, err := l.Balance(ctx, "missing"); err != ErrAccountNotFound {
		t.Fatalf("expected account not found, got %v", err)
	}
}
