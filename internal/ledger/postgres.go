package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists balances and append-only entries in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// EnsureAccount guarantees a balance row exists for the provided account.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, accountID string) error {
	_, err := l.db.Exec(ctx, `INSERT INTO balances (account_id, balance) VALUES ($1, 0)
        ON CONFLICT (account_id) DO NOTHING`, accountID)
	return err
}

// EnsureAccountTx is EnsureAccount inside the caller's transaction.
func EnsureAccountTx(ctx context.Context, tx pgx.Tx, accountID string) error {
	_, err := tx.Exec(ctx, `INSERT INTO balances (account_id, balance) VALUES ($1, 0)
        ON CONFLICT (account_id) DO NOTHING`, accountID)
	return err
}

// Balance returns the stored balance for the specified account.
func (l *PostgresLedger) Balance(ctx context.Context, accountID string) (int64, error) {
	var balance int64
	err := l.db.QueryRow(ctx, `SELECT balance FROM balances WHERE account_id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Credit increases the account balance and appends one entry.
func (l *PostgresLedger) Credit(ctx context.Context, accountID string, amount int64, kind Kind, description string, links Links) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	entry, err := Append(ctx, tx, accountID, amount, kind, description, links)
	if err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Debit decreases the account balance after checking the precondition
// balance >= amount, and appends one entry. On precondition failure nothing
// is written.
func (l *PostgresLedger) Debit(ctx context.Context, accountID string, amount int64, kind Kind, description string, links Links) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	entry, err := Append(ctx, tx, accountID, -amount, kind, description, links)
	if err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Deposit appends the deposit entry and, for bonus > 0, a separate bonus
// entry strictly after it, within one transaction.
func (l *PostgresLedger) Deposit(ctx context.Context, accountID string, amount, bonus int64, paymentID string) ([]Entry, error) {
	if amount <= 0 || bonus < 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	entries, err := DepositTx(ctx, tx, accountID, amount, bonus, paymentID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entries, nil
}

// DepositTx appends the deposit entry and, for bonus > 0, a separate bonus
// entry strictly after it, inside the caller's transaction. Callers that need
// the deposit to commit together with writes in other tables compose this
// with their own statements and commit once.
func DepositTx(ctx context.Context, tx pgx.Tx, accountID string, amount, bonus int64, paymentID string) ([]Entry, error) {
	if amount <= 0 || bonus < 0 {
		return nil, ErrInvalidAmount
	}

	deposit, err := Append(ctx, tx, accountID, amount, KindDeposit, "Balance topup", Links{PaymentID: paymentID})
	if err != nil {
		return nil, err
	}
	entries := []Entry{deposit}

	if bonus > 0 {
		pct := bonus * 100 / amount
		bonusEntry, err := Append(ctx, tx, accountID, bonus, KindBonus,
			fmt.Sprintf("Topup bonus %d%%", pct), Links{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		entries = append(entries, bonusEntry)
	}
	return entries, nil
}

// Entries lists the account history, newest first.
func (l *PostgresLedger) Entries(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	const query = `
        SELECT id, account_id, kind, amount, balance, description,
               COALESCE(payment_id, ''), COALESCE(contract_id, ''), created_at
        FROM entries
        WHERE account_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`

	if limit <= 0 {
		limit = 100
	}

	rows, err := l.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var id uuid.UUID
		var createdAt time.Time
		if err := rows.Scan(&id, &e.AccountID, &e.Kind, &e.Amount, &e.Balance,
			&e.Description, &e.PaymentID, &e.ContractID, &createdAt); err != nil {
			return nil, err
		}
		e.ID = id.String()
		e.CreatedAt = createdAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Append locks the balance row, applies the signed amount and inserts the
// entry carrying the post-mutation snapshot, all inside the caller's
// transaction. The row lock serializes concurrent mutations against the same
// account.
func Append(ctx context.Context, tx pgx.Tx, accountID string, signedAmount int64, kind Kind, description string, links Links) (Entry, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM balances WHERE account_id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrAccountNotFound
		}
		return Entry{}, err
	}

	if signedAmount < 0 && balance < -signedAmount {
		return Entry{}, ErrInsufficientFunds
	}

	balance += signedAmount
	if _, err := tx.Exec(ctx, `UPDATE balances SET balance = $1 WHERE account_id = $2`, balance, accountID); err != nil {
		return Entry{}, err
	}

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

	_, err = tx.Exec(ctx, `INSERT INTO entries (id, account_id, kind, amount, balance, description, payment_id, contract_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`,
		entry.ID, entry.AccountID, entry.Kind, entry.Amount, entry.Balance,
		entry.Description, entry.PaymentID, entry.ContractID, entry.CreatedAt)
	if err != nil {
		return Entry{}, err
	}

	return entry, nil
}
