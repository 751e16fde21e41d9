package account

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates no account row exists for the identifier.
var ErrNotFound = errors.New("account not found")

// Repository persists account metadata and the pending discount.
type Repository interface {
	Ensure(ctx context.Context, id, email string) (Account, error)
	Get(ctx context.Context, id string) (Account, error)
	SetPendingDiscount(ctx context.Context, id string, d Discount) error
	// ConsumePendingDiscount atomically clears and returns the pending
	// discount, or nil when none is set.
	ConsumePendingDiscount(ctx context.Context, id string) (*Discount, error)
}

// PostgresRepository stores accounts in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Ensure creates the account row if absent and returns the stored record.
func (r *PostgresRepository) Ensure(ctx context.Context, id, email string) (Account, error) {
	_, err := r.db.Exec(ctx, `INSERT INTO accounts (id, email, created_at) VALUES ($1, $2, $3)
        ON CONFLICT (id) DO NOTHING`, id, email, time.Now().UTC())
	if err != nil {
		return Account{}, err
	}
	return r.Get(ctx, id)
}

// Get fetches an account by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	const query = `SELECT id, email, discount_kind, discount_value, discount_promo_id, created_at
        FROM accounts WHERE id = $1`

	var a Account
	var kind, promoID *string
	var value *int64
	var createdAt time.Time
	err := r.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.Email, &kind, &value, &promoID, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	a.CreatedAt = createdAt.UTC()
	if kind != nil && value != nil {
		a.PendingDiscount = &Discount{Kind: DiscountKind(*kind), Value: *value}
		if promoID != nil {
			a.PendingDiscount.PromoID = *promoID
		}
	}
	return a, nil
}

// SetPendingDiscount overwrites the pending discount on the account.
func (r *PostgresRepository) SetPendingDiscount(ctx context.Context, id string, d Discount) error {
	return setPendingDiscount(ctx, r.db, id, d)
}

// SetPendingDiscountTx is SetPendingDiscount inside the caller's transaction,
// for flows that grant the discount together with writes in other tables.
func SetPendingDiscountTx(ctx context.Context, tx pgx.Tx, id string, d Discount) error {
	return setPendingDiscount(ctx, tx, id, d)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func setPendingDiscount(ctx context.Context, db execer, id string, d Discount) error {
	tag, err := db.Exec(ctx, `UPDATE accounts
        SET discount_kind = $1, discount_value = $2, discount_promo_id = NULLIF($3, '')
        WHERE id = $4`, string(d.Kind), d.Value, d.PromoID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ConsumePendingDiscount reads the discount under a row lock and clears it
// in the same transaction, so two concurrent purchases cannot both consume
// it.
func (r *PostgresRepository) ConsumePendingDiscount(ctx context.Context, id string) (*Discount, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var kind, promoID *string
	var value *int64
	err = tx.QueryRow(ctx, `SELECT discount_kind, discount_value, discount_promo_id
        FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&kind, &value, &promoID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if kind == nil || value == nil {
		return nil, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts
        SET discount_kind = NULL, discount_value = NULL, discount_promo_id = NULL
        WHERE id = $1`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	d := &Discount{Kind: DiscountKind(*kind), Value: *value}
	if promoID != nil {
		d.PromoID = *promoID
	}
	return d, nil
}
