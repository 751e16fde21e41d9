package payment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists payment records. The reconciliation handler is the sole
// writer of the success transition, expressed as a conditional update rather
// than an isolation-level assumption.
type Repository interface {
	Create(ctx context.Context, p Payment) error
	FindByOrderID(ctx context.Context, orderID string) (Payment, error)
	MarkProcessing(ctx context.Context, id, gatewayPaymentID string) error
	// MarkSuccess transitions the payment to success exactly once. The
	// second return is false when another delivery already won, in which
	// case the stored record is returned unchanged.
	MarkSuccess(ctx context.Context, orderID, gatewayPaymentID, gatewayStatus string) (Payment, bool, error)
	MarkFailed(ctx context.Context, id string) error
}

// PostgresRepository stores payments in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const paymentColumns = `id, account_id, order_id, amount, bonus, type, status,
    COALESCE(gateway_payment_id, ''), COALESCE(gateway_status, ''),
    COALESCE(contract_id, ''), COALESCE(description, ''), created_at, updated_at`

// Create inserts a payment record. The unique constraint on order_id is the
// foundation of webhook idempotency.
func (r *PostgresRepository) Create(ctx context.Context, p Payment) error {
	_, err := r.db.Exec(ctx, `INSERT INTO payments
        (id, account_id, order_id, amount, bonus, type, status, gateway_payment_id, gateway_status, contract_id, description, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12, $12)`,
		p.ID, p.AccountID, p.OrderID, p.Amount, p.Bonus, string(p.Type), string(p.Status),
		p.GatewayPaymentID, p.GatewayStatus, p.ContractID, p.Description, p.CreatedAt.UTC())
	return err
}

// FindByOrderID fetches a payment by its order identifier.
func (r *PostgresRepository) FindByOrderID(ctx context.Context, orderID string) (Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

// MarkProcessing records the gateway payment id after a successful Init.
func (r *PostgresRepository) MarkProcessing(ctx context.Context, id, gatewayPaymentID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE payments SET status = $1, gateway_payment_id = $2, updated_at = $3
        WHERE id = $4`, string(StatusProcessing), gatewayPaymentID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSuccess performs the conditional success transition and returns the
// resulting record. Two concurrent deliveries race on the conditional
// update; exactly one observes won=true.
func (r *PostgresRepository) MarkSuccess(ctx context.Context, orderID, gatewayPaymentID, gatewayStatus string) (Payment, bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Payment{}, false, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	p, won, err := MarkSuccessTx(ctx, tx, orderID, gatewayPaymentID, gatewayStatus)
	if err != nil {
		return Payment{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Payment{}, false, err
	}
	return p, won, nil
}

// MarkSuccessTx is the conditional success transition inside the caller's
// transaction. Crediting flows compose it with the ledger writes so the
// transition and its financial effect commit or roll back together.
func MarkSuccessTx(ctx context.Context, tx pgx.Tx, orderID, gatewayPaymentID, gatewayStatus string) (Payment, bool, error) {
	tag, err := tx.Exec(ctx, `UPDATE payments
        SET status = $1, gateway_payment_id = $2, gateway_status = $3, updated_at = $4
        WHERE order_id = $5 AND status <> $1`,
		string(StatusSuccess), gatewayPaymentID, gatewayStatus, time.Now().UTC(), orderID)
	if err != nil {
		return Payment{}, false, err
	}

	row := tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, false, ErrNotFound
		}
		return Payment{}, false, err
	}
	return p, tag.RowsAffected() > 0, nil
}

// MarkFailed records a terminal failure (e.g. gateway rejected the Init call).
func (r *PostgresRepository) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE payments SET status = $1, updated_at = $2
        WHERE id = $3 AND status <> $4`, string(StatusFailed), time.Now().UTC(), id, string(StatusSuccess))
	return err
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var typ, status string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&p.ID, &p.AccountID, &p.OrderID, &p.Amount, &p.Bonus, &typ, &status,
		&p.GatewayPaymentID, &p.GatewayStatus, &p.ContractID, &p.Description, &createdAt, &updatedAt); err != nil {
		return Payment{}, err
	}
	p.Type = Type(typ)
	p.Status = Status(status)
	p.CreatedAt = createdAt.UTC()
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}
