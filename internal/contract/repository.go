package contract

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no contract exists for the identifier.
var ErrNotFound = errors.New("contract not found")

// Repository persists contract purchase state.
type Repository interface {
	Create(ctx context.Context, c Contract) error
	Get(ctx context.Context, id string) (Contract, error)
	// MarkPaid flips an uploaded contract to paid with the given method.
	// Returns false when the contract was not in the uploaded state, which
	// makes the transition idempotent under concurrent confirmations.
	MarkPaid(ctx context.Context, id, method string) (bool, error)
	// MarkUploaded reverts a paid-but-uncharged contract, releasing the
	// reservation taken before a failed debit.
	MarkUploaded(ctx context.Context, id string) error
}

// PostgresRepository stores contracts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a contract record.
func (r *PostgresRepository) Create(ctx context.Context, c Contract) error {
	_, err := r.db.Exec(ctx, `INSERT INTO contracts (id, account_id, filename, status, payment_method, created_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
		c.ID, c.AccountID, c.Filename, c.Status, c.PaymentMethod, c.CreatedAt.UTC())
	return err
}

// Get fetches a contract by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Contract, error) {
	row := r.db.QueryRow(ctx, `SELECT id, account_id, filename, status, COALESCE(payment_method, ''), created_at
        FROM contracts WHERE id = $1`, id)

	var c Contract
	var createdAt time.Time
	if err := row.Scan(&c.ID, &c.AccountID, &c.Filename, &c.Status, &c.PaymentMethod, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, err
	}
	c.CreatedAt = createdAt.UTC()
	return c, nil
}

// MarkPaid performs the conditional uploaded -> paid transition.
func (r *PostgresRepository) MarkPaid(ctx context.Context, id, method string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE contracts SET status = $1, payment_method = $2
        WHERE id = $3 AND status = $4`, StatusPaid, method, id, StatusUploaded)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPaidTx is MarkPaid inside the caller's transaction, for flows that flip
// the contract together with writes in other tables.
func MarkPaidTx(ctx context.Context, tx pgx.Tx, id, method string) (bool, error) {
	tag, err := tx.Exec(ctx, `UPDATE contracts SET status = $1, payment_method = $2
        WHERE id = $3 AND status = $4`, StatusPaid, method, id, StatusUploaded)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkUploaded reverts the contract to the uploaded state.
func (r *PostgresRepository) MarkUploaded(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE contracts SET status = $1, payment_method = NULL WHERE id = $2`,
		StatusUploaded, id)
	return err
}
