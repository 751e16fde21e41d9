package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/imyrist/billing/internal/contract"
	"github.com/imyrist/billing/internal/gateway"
	"github.com/imyrist/billing/internal/notification"
	"github.com/imyrist/billing/internal/payment"
)

// ErrUnknownOrder indicates the callback references an order this system
// never created.
var ErrUnknownOrder = errors.New("unknown order")

// Service applies verified gateway callbacks to the wallet and contract
// state. It is the sole writer of the payment success transition, delegated
// to the store so the transition commits together with its financial effect.
type Service struct {
	payments payment.Repository
	store    Store
	trigger  contract.AnalysisTrigger
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs the reconciliation service.
func NewService(payments payment.Repository, store Store,
	trigger contract.AnalysisTrigger, notifier notification.Notifier, logger *slog.Logger) *Service {
	if trigger == nil {
		trigger = contract.StaticTrigger{}
	}
	return &Service{
		payments: payments,
		store:    store,
		trigger:  trigger,
		notifier: notifier,
		logger:   logger,
	}
}

// Process applies one verified notification. It returns nil whenever the
// callback should be acknowledged: non-final statuses, duplicates and lost
// races all ack so the gateway stops redelivering. A failed confirm returns
// an error, the handler answers 500 and the gateway redelivers into a clean
// retry because nothing committed.
func (s *Service) Process(ctx context.Context, n gateway.Notification) error {
	if n.Status != gateway.StatusConfirmed {
		s.logger.Info("ignoring non-final gateway status", "order_id", n.OrderID, "status", n.Status)
		return nil
	}

	p, err := s.payments.FindByOrderID(ctx, n.OrderID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return ErrUnknownOrder
		}
		return err
	}
	// Cheap pre-check; the conditional update below is the real gate.
	if p.Status == payment.StatusSuccess {
		s.logger.Info("duplicate gateway callback", "order_id", n.OrderID)
		return nil
	}

	res, err := s.store.Confirm(ctx, n.OrderID, n.PaymentID.String(), n.Status)
	if err != nil {
		if isSerializationFailure(err) {
			s.logger.Info("concurrent callback won the success transition", "order_id", n.OrderID)
			return nil
		}
		return fmt.Errorf("confirm %s: %w", n.OrderID, err)
	}
	if !res.Won {
		s.logger.Info("duplicate gateway callback", "order_id", n.OrderID)
		return nil
	}
	p = res.Payment

	switch p.Type {
	case payment.TypeDeposit:
		s.logger.Info("deposit confirmed",
			"order_id", p.OrderID, "account_id", p.AccountID,
			"amount", p.Amount, "bonus", p.Bonus,
			"balance", res.Entries[len(res.Entries)-1].Balance)
		s.notify(ctx, notification.KindDepositConfirmed, p)

	case payment.TypeAnalysis:
		// Money already moved; a failed trigger must not fail the ack or
		// the gateway would redeliver into a no-op.
		if err := s.trigger.Start(ctx, p.ContractID); err != nil {
			s.logger.Error("start analysis", "contract_id", p.ContractID, "error", err)
		}
		s.logger.Info("analysis payment confirmed", "order_id", p.OrderID, "contract_id", p.ContractID)
		s.notify(ctx, notification.KindAnalysisPaid, p)

	default:
		s.logger.Warn("confirmed payment of unknown type", "order_id", p.OrderID, "type", string(p.Type))
	}

	return nil
}

func (s *Service) notify(ctx context.Context, kind string, p payment.Payment) {
	if s.notifier == nil {
		return
	}
	msg := notification.Message{
		Kind:        kind,
		Destination: p.AccountID,
		Body:        fmt.Sprintf("order %s confirmed for %d", p.OrderID, p.Amount),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("send notification", "kind", kind, "order_id", p.OrderID, "error", err)
	}
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}
