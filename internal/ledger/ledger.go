package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInsufficientFunds occurs when an account lacks available balance to
	// cover a requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound indicates no balance row exists for the account.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidAmount indicates a non-positive mutation amount.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// Kind labels a ledger entry.
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindAnalysis Kind = "analysis"
	KindBonus    Kind = "bonus"
	KindAdmin    Kind = "admin"
	KindRefund   Kind = "refund"
)

// Entry is an immutable ledger record. Amount is signed; Balance is the
// account balance immediately after this entry was applied. Entries are never
// edited or deleted.
type Entry struct {
	ID          string
	AccountID   string
	Kind        Kind
	Amount      int64
	Balance     int64
	Description string
	PaymentID   string
	ContractID  string
	CreatedAt   time.Time
}

// Links carries optional references from an entry to the payment or contract
// that caused it.
type Links struct {
	PaymentID  string
	ContractID string
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
// It is the sole writer of account balances: every mutation reads the current
// balance, checks preconditions, writes the new balance and appends exactly
// one entry carrying the post-mutation snapshot, all atomically.
type Ledger interface {
	EnsureAccount(ctx context.Context, accountID string) error
	Balance(ctx context.Context, accountID string) (int64, error)
	Credit(ctx context.Context, accountID string, amount int64, kind Kind, description string, links Links) (Entry, error)
	Debit(ctx context.Context, accountID string, amount int64, kind Kind, description string, links Links) (Entry, error)
	// Deposit appends a deposit entry and, when bonus > 0, a bonus entry in
	// that order within one transaction, so the bonus snapshot always reads
	// the post-deposit balance.
	Deposit(ctx context.Context, accountID string, amount, bonus int64, paymentID string) ([]Entry, error)
	Entries(ctx context.Context, accountID string, limit int) ([]Entry, error)
}
