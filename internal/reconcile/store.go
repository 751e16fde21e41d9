package reconcile

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imyrist/billing/internal/contract"
	"github.com/imyrist/billing/internal/ledger"
	"github.com/imyrist/billing/internal/payment"
)

// Result reports the outcome of a confirmed callback. Entries is populated
// for deposits; for a lost race Won is false and the rest is the stored
// record untouched.
type Result struct {
	Payment payment.Payment
	Won     bool
	Entries []ledger.Entry
}

// Store applies the financial effect of a confirmed callback. The success
// transition and the ledger credit (or contract flip) commit together:
// either the payment is success and the money moved, or neither happened and
// the gateway's retry starts over.
type Store interface {
	Confirm(ctx context.Context, orderID, gatewayPaymentID, gatewayStatus string) (Result, error)
}

// PostgresStore confirms callbacks in a single serializable transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Confirm runs the conditional success transition and, when it wins, the
// deposit credit or contract flip inside one transaction.
func (s *PostgresStore) Confirm(ctx context.Context, orderID, gatewayPaymentID, gatewayStatus string) (Result, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	p, won, err := payment.MarkSuccessTx(ctx, tx, orderID, gatewayPaymentID, gatewayStatus)
	if err != nil {
		return Result{}, err
	}
	res := Result{Payment: p, Won: won}
	if !won {
		return res, tx.Commit(ctx)
	}

	switch p.Type {
	case payment.TypeDeposit:
		if err := ledger.EnsureAccountTx(ctx, tx, p.AccountID); err != nil {
			return Result{}, err
		}
		entries, err := ledger.DepositTx(ctx, tx, p.AccountID, p.Amount, p.Bonus, p.ID)
		if err != nil {
			return Result{}, err
		}
		res.Entries = entries
	case payment.TypeAnalysis:
		if _, err := contract.MarkPaidTx(ctx, tx, p.ContractID, contract.MethodCard); err != nil {
			return Result{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	return res, nil
}

// MemoryStore composes the in-memory repositories under one lock. An effect
// failure reverts the success transition, standing in for the rollback the
// Postgres store gets from its transaction.
type MemoryStore struct {
	mu        sync.Mutex
	payments  payment.Repository
	ledger    ledger.Ledger
	contracts contract.Repository
}

// NewMemoryStore builds a store over in-memory repositories.
func NewMemoryStore(payments payment.Repository, ledgerBackend ledger.Ledger, contracts contract.Repository) *MemoryStore {
	return &MemoryStore{payments: payments, ledger: ledgerBackend, contracts: contracts}
}

func (s *MemoryStore) Confirm(ctx context.Context, orderID, gatewayPaymentID, gatewayStatus string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, won, err := s.payments.MarkSuccess(ctx, orderID, gatewayPaymentID, gatewayStatus)
	if err != nil {
		return Result{}, err
	}
	res := Result{Payment: p, Won: won}
	if !won {
		return res, nil
	}

	switch p.Type {
	case payment.TypeDeposit:
		if err := s.ledger.EnsureAccount(ctx, p.AccountID); err != nil {
			s.revert(ctx, p)
			return Result{}, err
		}
		entries, err := s.ledger.Deposit(ctx, p.AccountID, p.Amount, p.Bonus, p.ID)
		if err != nil {
			s.revert(ctx, p)
			return Result{}, err
		}
		res.Entries = entries
	case payment.TypeAnalysis:
		if _, err := s.contracts.MarkPaid(ctx, p.ContractID, contract.MethodCard); err != nil {
			s.revert(ctx, p)
			return Result{}, err
		}
	}
	return res, nil
}

func (s *MemoryStore) revert(ctx context.Context, p payment.Payment) {
	_ = s.payments.MarkProcessing(ctx, p.ID, p.GatewayPaymentID)
}
