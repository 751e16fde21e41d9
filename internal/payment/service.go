package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/imyrist/billing/internal/account"
	"github.com/imyrist/billing/internal/contract"
	"github.com/imyrist/billing/internal/gateway"
	"github.com/imyrist/billing/internal/ledger"
)

// The gateway refuses zero-amount charges, so a fully covering discount is
// clamped to this floor.
const minCharge = 1

// Pricing captures the amounts and URLs the service needs from configuration.
type Pricing struct {
	AnalysisPrice int64
	TopupMin      int64
	TopupMax      int64
	BaseURL       string
	// TestMode credits deposits immediately instead of redirecting to the
	// gateway. Active when no gateway credentials are configured.
	TestMode bool
}

// Service creates payments and wallet charges on top of the ledger, the
// gateway connector and the contract store.
type Service struct {
	payments  Repository
	accounts  account.Repository
	contracts contract.Repository
	ledger    ledger.Ledger
	gateway   gateway.Client
	pricing   Pricing
	logger    *slog.Logger
}

// NewService constructs a payment service.
func NewService(payments Repository, accounts account.Repository, contracts contract.Repository,
	ledgerBackend ledger.Ledger, gw gateway.Client, pricing Pricing, logger *slog.Logger) *Service {
	if gw == nil {
		gw = gateway.StaticClient{}
	}
	return &Service{
		payments:  payments,
		accounts:  accounts,
		contracts: contracts,
		ledger:    ledgerBackend,
		gateway:   gw,
		pricing:   pricing,
		logger:    logger,
	}
}

// BonusFor returns the deposit bonus for the requested topup amount.
func BonusFor(amount int64) int64 {
	switch {
	case amount >= 10_000:
		return amount * 15 / 100
	case amount >= 5_000:
		return amount * 10 / 100
	case amount >= 2_000:
		return amount * 5 / 100
	default:
		return 0
	}
}

// TopupInput captures a wallet deposit request.
type TopupInput struct {
	AccountID string
	Email     string
	Amount    int64
}

// TopupResult describes the outcome of creating a deposit payment.
type TopupResult struct {
	OrderID          string
	PaymentURL       string
	GatewayPaymentID string
	Bonus            int64
	TestMode         bool
	NewBalance       int64 // set only in test mode
}

// Topup creates a deposit payment. The bonus is computed and stored on the
// record at creation time; the reconciler applies it when the gateway
// confirms.
func (s *Service) Topup(ctx context.Context, input TopupInput) (TopupResult, error) {
	if input.Amount < s.pricing.TopupMin {
		return TopupResult{}, fmt.Errorf("minimum topup is %d", s.pricing.TopupMin)
	}
	if input.Amount > s.pricing.TopupMax {
		return TopupResult{}, fmt.Errorf("maximum topup is %d", s.pricing.TopupMax)
	}

	if _, err := s.accounts.Ensure(ctx, input.AccountID, input.Email); err != nil {
		return TopupResult{}, err
	}
	if err := s.ledger.EnsureAccount(ctx, input.AccountID); err != nil {
		return TopupResult{}, err
	}

	bonus := BonusFor(input.Amount)
	p := Payment{
		ID:          uuid.NewString(),
		AccountID:   input.AccountID,
		OrderID:     "topup-" + uuid.NewString(),
		Amount:      input.Amount,
		Bonus:       bonus,
		Type:        TypeDeposit,
		Status:      StatusPending,
		Description: fmt.Sprintf("Balance topup %d", input.Amount),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return TopupResult{}, err
	}

	if s.pricing.TestMode {
		entries, err := s.ledger.Deposit(ctx, input.AccountID, p.Amount, p.Bonus, p.ID)
		if err != nil {
			return TopupResult{}, err
		}
		if _, _, err := s.payments.MarkSuccess(ctx, p.OrderID, "", "TEST"); err != nil {
			return TopupResult{}, err
		}
		return TopupResult{
			OrderID:    p.OrderID,
			Bonus:      bonus,
			TestMode:   true,
			NewBalance: entries[len(entries)-1].Balance,
		}, nil
	}

	res, err := s.gateway.Init(ctx, gateway.InitRequest{
		OrderID:     p.OrderID,
		Amount:      p.Amount * 100,
		Description: p.Description,
		CustomerKey: input.AccountID,
		Email:       input.Email,
		SuccessURL:  s.pricing.BaseURL + "/payment/success?type=topup",
		FailURL:     s.pricing.BaseURL + "/payment/fail?type=topup",
	})
	if err != nil {
		if failErr := s.payments.MarkFailed(ctx, p.ID); failErr != nil {
			s.logger.Warn("mark payment failed", "payment_id", p.ID, "error", failErr)
		}
		return TopupResult{}, err
	}

	if err := s.payments.MarkProcessing(ctx, p.ID, res.PaymentID); err != nil {
		return TopupResult{}, err
	}

	return TopupResult{
		OrderID:          p.OrderID,
		PaymentURL:       res.PaymentURL,
		GatewayPaymentID: res.PaymentID,
		Bonus:            bonus,
	}, nil
}

// AnalysisInput captures a card payment request for one contract analysis.
type AnalysisInput struct {
	AccountID  string
	Email      string
	ContractID string
}

// AnalysisResult describes the created analysis payment.
type AnalysisResult struct {
	OrderID          string
	PaymentURL       string
	GatewayPaymentID string
	Price            int64
}

// CreateAnalysisPayment prices the analysis, consumes any pending discount
// and opens a card payment for the result.
func (s *Service) CreateAnalysisPayment(ctx context.Context, input AnalysisInput) (AnalysisResult, error) {
	c, err := s.contracts.Get(ctx, input.ContractID)
	if err != nil {
		return AnalysisResult{}, err
	}
	if c.AccountID != input.AccountID {
		return AnalysisResult{}, ErrNotOwner
	}
	if c.Status != contract.StatusUploaded {
		return AnalysisResult{}, ErrContractProcessed
	}

	if _, err := s.accounts.Ensure(ctx, input.AccountID, input.Email); err != nil {
		return AnalysisResult{}, err
	}

	price, restore, err := s.discountedPrice(ctx, input.AccountID)
	if err != nil {
		return AnalysisResult{}, err
	}

	p := Payment{
		ID:          uuid.NewString(),
		AccountID:   input.AccountID,
		OrderID:     "analysis-" + uuid.NewString(),
		Amount:      price,
		Type:        TypeAnalysis,
		Status:      StatusPending,
		ContractID:  c.ID,
		Description: fmt.Sprintf("Contract analysis: %s", c.Filename),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		restore(ctx)
		return AnalysisResult{}, err
	}

	res, err := s.gateway.Init(ctx, gateway.InitRequest{
		OrderID:     p.OrderID,
		Amount:      price * 100,
		Description: p.Description,
		CustomerKey: input.AccountID,
		Email:       input.Email,
		SuccessURL:  s.pricing.BaseURL + "/payment/success",
		FailURL:     s.pricing.BaseURL + "/payment/fail",
	})
	if err != nil {
		restore(ctx)
		if failErr := s.payments.MarkFailed(ctx, p.ID); failErr != nil {
			s.logger.Warn("mark payment failed", "payment_id", p.ID, "error", failErr)
		}
		return AnalysisResult{}, err
	}

	if err := s.payments.MarkProcessing(ctx, p.ID, res.PaymentID); err != nil {
		return AnalysisResult{}, err
	}

	return AnalysisResult{
		OrderID:          p.OrderID,
		PaymentURL:       res.PaymentURL,
		GatewayPaymentID: res.PaymentID,
		Price:            price,
	}, nil
}

// BalanceResult describes a wallet charge outcome.
type BalanceResult struct {
	Price      int64
	NewBalance int64
}

// PayFromBalance charges the analysis price from the wallet: the contract is
// reserved with a conditional uploaded -> paid transition, then the ledger
// debit runs with its balance precondition. A failed debit releases the
// reservation and restores the consumed discount, leaving no partial effect.
func (s *Service) PayFromBalance(ctx context.Context, accountID, contractID string) (BalanceResult, error) {
	c, err := s.contracts.Get(ctx, contractID)
	if err != nil {
		return BalanceResult{}, err
	}
	if c.AccountID != accountID {
		return BalanceResult{}, ErrNotOwner
	}
	if c.Status != contract.StatusUploaded {
		return BalanceResult{}, ErrContractProcessed
	}

	price, restore, err := s.discountedPrice(ctx, accountID)
	if err != nil {
		return BalanceResult{}, err
	}

	won, err := s.contracts.MarkPaid(ctx, contractID, contract.MethodBalance)
	if err != nil {
		restore(ctx)
		return BalanceResult{}, err
	}
	if !won {
		restore(ctx)
		return BalanceResult{}, ErrContractProcessed
	}

	entry, err := s.ledger.Debit(ctx, accountID, price, ledger.KindAnalysis,
		fmt.Sprintf("Document analysis: %s", c.Filename), ledger.Links{ContractID: contractID})
	if err != nil {
		if revertErr := s.contracts.MarkUploaded(ctx, contractID); revertErr != nil {
			s.logger.Error("release contract after failed debit", "contract_id", contractID, "error", revertErr)
		}
		restore(ctx)
		// an account that never topped up has no balance row; that is a
		// zero balance, not an internal failure
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return BalanceResult{}, ledger.ErrInsufficientFunds
		}
		return BalanceResult{}, err
	}

	return BalanceResult{Price: price, NewBalance: entry.Balance}, nil
}

// StatusResult pairs the stored record with the gateway's current view of it.
type StatusResult struct {
	Payment       Payment
	GatewayStatus string
}

// Status returns the stored payment for its owner, refreshing the gateway
// status for in-flight card payments. Money moves only through the webhook;
// this read backs the frontend poll after the gateway redirect.
func (s *Service) Status(ctx context.Context, accountID, orderID string) (StatusResult, error) {
	p, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return StatusResult{}, err
	}
	if p.AccountID != accountID {
		return StatusResult{}, ErrNotOwner
	}

	res := StatusResult{Payment: p, GatewayStatus: p.GatewayStatus}
	if p.Status == StatusProcessing && p.GatewayPaymentID != "" {
		state, err := s.gateway.GetState(ctx, p.GatewayPaymentID)
		if err != nil {
			// the stored view still answers the poll
			s.logger.Warn("gateway state", "order_id", orderID, "error", err)
			return res, nil
		}
		res.GatewayStatus = state.Status
	}
	return res, nil
}

// discountedPrice consumes the pending discount and returns the final price
// plus a restore hook used when the purchase fails before money moved.
func (s *Service) discountedPrice(ctx context.Context, accountID string) (int64, func(context.Context), error) {
	price := s.pricing.AnalysisPrice
	restore := func(context.Context) {}

	d, err := s.accounts.ConsumePendingDiscount(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return price, restore, nil
		}
		return 0, nil, err
	}
	if d == nil {
		return price, restore, nil
	}

	price = d.Apply(price, minCharge)
	restore = func(ctx context.Context) {
		if err := s.accounts.SetPendingDiscount(ctx, accountID, *d); err != nil {
			s.logger.Error("restore pending discount", "account_id", accountID, "error", err)
		}
	}
	return price, restore, nil
}
