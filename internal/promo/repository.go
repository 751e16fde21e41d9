package promo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imyrist/billing/internal/account"
	"github.com/imyrist/billing/internal/ledger"
)

// Repository persists promo codes and their usages.
type Repository interface {
	Create(ctx context.Context, p PromoCode) error
	FindByCode(ctx context.Context, code string) (PromoCode, error)
	List(ctx context.Context) ([]PromoCode, error)
	HasUsage(ctx context.Context, promoID, accountID string) (bool, error)
	// Redeem re-runs validation under a row lock, applies the code's effect
	// (ledger credit or pending discount), inserts the usage row and
	// increments the usage counter in one transaction. Either the effect
	// landed and the usage is recorded, or nothing happened and the account
	// can retry. The ledger entry is non-nil for credit codes.
	Redeem(ctx context.Context, code, accountID string, now time.Time) (PromoCode, *ledger.Entry, error)
}

// PostgresRepository stores promo codes in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const promoColumns = `id, code, kind, value, valid_from, valid_until, max_uses, single_use, active, usage_count, created_at`

// Create inserts a promo code record.
func (r *PostgresRepository) Create(ctx context.Context, p PromoCode) error {
	_, err := r.db.Exec(ctx, `INSERT INTO promo_codes (`+promoColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Code, string(p.Kind), p.Value, p.ValidFrom.UTC(), validUntilParam(p.ValidUntil),
		p.MaxUses, p.SingleUse, p.Active, p.UsageCount, p.CreatedAt.UTC())
	return err
}

// FindByCode fetches a promo code by its upper-cased code.
func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (PromoCode, error) {
	row := r.db.QueryRow(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, code)
	p, err := scanPromo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PromoCode{}, ErrNotFound
		}
		return PromoCode{}, err
	}
	return p, nil
}

// List returns all promo codes, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]PromoCode, error) {
	rows, err := r.db.Query(ctx, `SELECT `+promoColumns+` FROM promo_codes ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []PromoCode
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, p)
	}
	return codes, rows.Err()
}

// HasUsage reports whether the account already applied the code.
func (r *PostgresRepository) HasUsage(ctx context.Context, promoID, accountID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
        SELECT 1 FROM promo_usages WHERE promo_id = $1 AND account_id = $2)`, promoID, accountID).Scan(&exists)
	return exists, err
}

// Redeem locks the promo row, re-validates every constraint, applies the
// effect and writes the usage row and counter increment, all in one
// transaction. The row lock converts two concurrent applications into a
// sequential pair, so the loser observes the winner's usage; an effect
// failure rolls back the usage so the code stays redeemable.
func (r *PostgresRepository) Redeem(ctx context.Context, code, accountID string, now time.Time) (PromoCode, *ledger.Entry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return PromoCode{}, nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+promoColumns+` FROM promo_codes WHERE code = $1 FOR UPDATE`, code)
	p, err := scanPromo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PromoCode{}, nil, ErrNotFound
		}
		return PromoCode{}, nil, err
	}

	var used bool
	if p.SingleUse {
		if err := tx.QueryRow(ctx, `SELECT EXISTS (
            SELECT 1 FROM promo_usages WHERE promo_id = $1 AND account_id = $2)`, p.ID, accountID).Scan(&used); err != nil {
			return PromoCode{}, nil, err
		}
	}

	if err := validate(p, used, now); err != nil {
		return PromoCode{}, nil, err
	}

	var entry *ledger.Entry
	switch p.Kind {
	case KindCredit:
		e, err := ledger.Append(ctx, tx, accountID, p.Value, ledger.KindBonus, creditDescription(p), ledger.Links{})
		if err != nil {
			return PromoCode{}, nil, err
		}
		entry = &e
	case KindFixedDiscount:
		if err := account.SetPendingDiscountTx(ctx, tx, accountID, account.Discount{
			Kind: account.DiscountFixed, Value: p.Value, PromoID: p.ID,
		}); err != nil {
			return PromoCode{}, nil, err
		}
	case KindPercentageDiscount:
		if err := account.SetPendingDiscountTx(ctx, tx, accountID, account.Discount{
			Kind: account.DiscountPercentage, Value: p.Value, PromoID: p.ID,
		}); err != nil {
			return PromoCode{}, nil, err
		}
	default:
		return PromoCode{}, nil, fmt.Errorf("unknown promo kind %q", p.Kind)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO promo_usages (id, promo_id, account_id, applied_value, created_at)
        VALUES ($1, $2, $3, $4, $5)`, uuid.NewString(), p.ID, accountID, p.Value, now.UTC()); err != nil {
		return PromoCode{}, nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE promo_codes SET usage_count = usage_count + 1 WHERE id = $1`, p.ID); err != nil {
		return PromoCode{}, nil, err
	}
	p.UsageCount++

	if err := tx.Commit(ctx); err != nil {
		return PromoCode{}, nil, err
	}
	return p, entry, nil
}

func validUntilParam(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func scanPromo(row pgx.Row) (PromoCode, error) {
	var p PromoCode
	var kind string
	var validFrom time.Time
	var validUntil *time.Time
	var createdAt time.Time
	if err := row.Scan(&p.ID, &p.Code, &kind, &p.Value, &validFrom, &validUntil,
		&p.MaxUses, &p.SingleUse, &p.Active, &p.UsageCount, &createdAt); err != nil {
		return PromoCode{}, err
	}
	p.Kind = Kind(kind)
	p.ValidFrom = validFrom.UTC()
	if validUntil != nil {
		u := validUntil.UTC()
		p.ValidUntil = &u
	}
	p.CreatedAt = createdAt.UTC()
	return p, nil
}
