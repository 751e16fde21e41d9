package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/imyrist/billing/internal/contract"
	"github.com/imyrist/billing/internal/gateway"
	"github.com/imyrist/billing/internal/ledger"
	"github.com/imyrist/billing/internal/logging"
	"github.com/imyrist/billing/internal/notification"
	"github.com/imyrist/billing/internal/payment"
)

const webhookSecret = "terminal-secret"

type recordingTrigger struct {
	started []string
	err     error
}

func (t *recordingTrigger) Start(_ context.Context, contractID string) error {
	t.started = append(t.started, contractID)
	return t.err
}

// flakyLedger forwards to the wrapped ledger until depositErr is set,
// simulating a balances outage in the middle of a confirm.
type flakyLedger struct {
	ledger.Ledger
	depositErr error
}

func (l *flakyLedger) Deposit(ctx context.Context, accountID string, amount, bonus int64, paymentID string) ([]ledger.Entry, error) {
	if l.depositErr != nil {
		return nil, l.depositErr
	}
	return l.Ledger.Deposit(ctx, accountID, amount, bonus, paymentID)
}

type fixture struct {
	svc       *Service
	payments  payment.Repository
	contracts contract.Repository
	ledger    *flakyLedger
	trigger   *recordingTrigger
	accountID string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := logging.Discard()
	f := &fixture{
		payments:  payment.NewMemoryRepository(),
		contracts: contract.NewMemoryRepository(),
		ledger:    &flakyLedger{Ledger: ledger.NewInMemory()},
		trigger:   &recordingTrigger{},
		accountID: uuid.NewString(),
	}
	f.svc = NewService(f.payments, NewMemoryStore(f.payments, f.ledger, f.contracts),
		f.trigger, notification.NewLoggerNotifier(logger), logger)

	if err := f.ledger.EnsureAccount(context.Background(), f.accountID); err != nil {
		t.Fatalf("ensure ledger account: %v", err)
	}
	return f
}

func (f *fixture) createDeposit(t *testing.T, amount, bonus int64) payment.Payment {
	t.Helper()
	p := payment.Payment{
		ID:        uuid.NewString(),
		AccountID: f.accountID,
		OrderID:   "topup-" + uuid.NewString(),
		Amount:    amount,
		Bonus:     bonus,
		Type:      payment.TypeDeposit,
		Status:    payment.StatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.payments.Create(context.Background(), p); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}

func confirmed(orderID string, amount int64) gateway.Notification {
	return gateway.Notification{
		TerminalKey: "term-1",
		OrderID:     orderID,
		Success:     true,
		Status:      gateway.StatusConfirmed,
		PaymentID:   json.Number("700001"),
		Amount:      amount * 100,
	}
}

func TestProcessDepositCreditsBaseThenBonus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.createDeposit(t, 2_000, 100)

	if err := f.svc.Process(ctx, confirmed(p.OrderID, p.Amount)); err != nil {
		t.Fatalf("process: %v", err)
	}

	balance, _ := f.ledger.Balance(ctx, f.accountID)
	if balance != 2_100 {
		t.Fatalf("expected balance 2100, got %d", balance)
	}

	entries, _ := f.ledger.Entries(ctx, f.accountID, 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// newest first: bonus entry follows the deposit entry
	if entries[0].Kind != ledger.KindBonus || entries[0].Amount != 100 || entries[0].Balance != 2_100 {
		t.Fatalf("unexpected bonus entry: %+v", entries[0])
	}
	if entries[1].Kind != ledger.KindDeposit || entries[1].Amount != 2_000 || entries[1].Balance != 2_000 {
		t.Fatalf("unexpected deposit entry: %+v", entries[1])
	}

	stored, _ := f.payments.FindByOrderID(ctx, p.OrderID)
	if stored.Status != payment.StatusSuccess || stored.GatewayPaymentID != "700001" {
		t.Fatalf("unexpected payment: %+v", stored)
	}
}

func TestProcessDuplicateCallbackCreditsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.createDeposit(t, 2_000, 100)

	n := confirmed(p.OrderID, p.Amount)
	if err := f.svc.Process(ctx, n); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.svc.Process(ctx, n); err != nil {
		t.Fatalf("second delivery must ack, got %v", err)
	}

	balance, _ := f.ledger.Balance(ctx, f.accountID)
	if balance != 2_100 {
		t.Fatalf("expected single credit of 2100, got balance %d", balance)
	}
	entries, _ := f.ledger.Entries(ctx, f.accountID, 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after duplicate delivery, got %d", len(entries))
	}
}

func TestProcessDepositCreditFailureLeavesPaymentRetryable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.createDeposit(t, 2_000, 100)

	f.ledger.depositErr = errors.New("balances unavailable")
	n := confirmed(p.OrderID, p.Amount)
	if err := f.svc.Process(ctx, n); err == nil {
		t.Fatal("expected error when the credit fails")
	}

	// a failed credit must not strand a success-marked payment: the next
	// delivery would hit the duplicate guard and the deposit would be lost
	stored, _ := f.payments.FindByOrderID(ctx, p.OrderID)
	if stored.Status == payment.StatusSuccess {
		t.Fatalf("payment marked success without a credit: %+v", stored)
	}
	entries, _ := f.ledger.Entries(ctx, f.accountID, 0)
	if len(entries) != 0 {
		t.Fatalf("expected no entries after failed credit, got %d", len(entries))
	}

	// the gateway redelivers and the retry credits exactly once
	f.ledger.depositErr = nil
	if err := f.svc.Process(ctx, n); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	balance, _ := f.ledger.Balance(ctx, f.accountID)
	if balance != 2_100 {
		t.Fatalf("expected balance 2100 after redelivery, got %d", balance)
	}
	entries, _ = f.ledger.Entries(ctx, f.accountID, 0)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after redelivery, got %d", len(entries))
	}
}

func TestProcessIgnoresIntermediateStatuses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.createDeposit(t, 500, 0)

	for _, status := range []string{gateway.StatusNew, gateway.StatusAuthorized, gateway.StatusRejected} {
		n := confirmed(p.OrderID, p.Amount)
		n.Status = status
		if err := f.svc.Process(ctx, n); err != nil {
			t.Fatalf("status %s must ack, got %v", status, err)
		}
	}

	balance, _ := f.ledger.Balance(ctx, f.accountID)
	if balance != 0 {
		t.Fatalf("intermediate statuses must not move money, balance %d", balance)
	}
	stored, _ := f.payments.FindByOrderID(ctx, p.OrderID)
	if stored.Status != payment.StatusProcessing {
		t.Fatalf("payment status changed to %s", stored.Status)
	}
}

func TestProcessUnknownOrder(t *testing.T) {
	f := setup(t)
	err := f.svc.Process(context.Background(), confirmed("topup-missing", 100))
	if !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestProcessAnalysisMarksContractPaidAndTriggers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	contractID := uuid.NewString()
	f.contracts.Create(ctx, contract.Contract{
		ID: contractID, AccountID: f.accountID, Filename: "lease.docx",
		Status: contract.StatusUploaded, CreatedAt: time.Now().UTC(),
	})
	p := payment.Payment{
		ID:         uuid.NewString(),
		AccountID:  f.accountID,
		OrderID:    "analysis-" + uuid.NewString(),
		Amount:     199,
		Type:       payment.TypeAnalysis,
		Status:     payment.StatusProcessing,
		ContractID: contractID,
		CreatedAt:  time.Now().UTC(),
	}
	f.payments.Create(ctx, p)

	if err := f.svc.Process(ctx, confirmed(p.OrderID, p.Amount)); err != nil {
		t.Fatalf("process: %v", err)
	}

	c, _ := f.contracts.Get(ctx, contractID)
	if c.Status != contract.StatusPaid || c.PaymentMethod != contract.MethodCard {
		t.Fatalf("unexpected contract: %+v", c)
	}
	if len(f.trigger.started) != 1 || f.trigger.started[0] != contractID {
		t.Fatalf("expected one trigger start, got %v", f.trigger.started)
	}
	// an analysis payment never touches the wallet
	entries, _ := f.ledger.Entries(ctx, f.accountID, 0)
	if len(entries) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(entries))
	}
}

func TestProcessAcksWhenTriggerFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.trigger.err = errors.New("analysis pipeline down")

	contractID := uuid.NewString()
	f.contracts.Create(ctx, contract.Contract{
		ID: contractID, AccountID: f.accountID, Filename: "nda.pdf",
		Status: contract.StatusUploaded, CreatedAt: time.Now().UTC(),
	})
	p := payment.Payment{
		ID: uuid.NewString(), AccountID: f.accountID,
		OrderID: "analysis-" + uuid.NewString(), Amount: 199,
		Type: payment.TypeAnalysis, Status: payment.StatusProcessing,
		ContractID: contractID, CreatedAt: time.Now().UTC(),
	}
	f.payments.Create(ctx, p)

	if err := f.svc.Process(ctx, confirmed(p.OrderID, p.Amount)); err != nil {
		t.Fatalf("trigger failure must not fail the ack, got %v", err)
	}
	c, _ := f.contracts.Get(ctx, contractID)
	if c.Status != contract.StatusPaid {
		t.Fatalf("contract must stay paid, got %s", c.Status)
	}
}

func signedBody(t *testing.T, fields map[string]any) string {
	t.Helper()
	fields["Token"] = gateway.Token(fields, webhookSecret)
	body, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return string(body)
}

func newWebhookApp(f *fixture) *fiber.App {
	app := fiber.New()
	handler := NewHandler(f.svc, webhookSecret)
	app.Post("/api/v1/payments/webhook", handler.Webhook)
	return app
}

func postWebhook(t *testing.T, app *fiber.App, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("perform request: %v", err)
	}
	return resp
}

func TestWebhookConfirmedDeposit(t *testing.T) {
	f := setup(t)
	app := newWebhookApp(f)
	p := f.createDeposit(t, 2_000, 100)

	body := signedBody(t, map[string]any{
		"TerminalKey": "term-1",
		"OrderId":     p.OrderID,
		"Success":     true,
		"Status":      gateway.StatusConfirmed,
		"PaymentId":   700001,
		"Amount":      p.Amount * 100,
	})

	resp := postWebhook(t, app, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var ack map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["status"] != "OK" {
		t.Fatalf("expected OK ack, got %v", ack)
	}

	balance, _ := f.ledger.Balance(context.Background(), f.accountID)
	if balance != 2_100 {
		t.Fatalf("expected balance 2100, got %d", balance)
	}
}

func TestWebhookRejectsTamperedSignature(t *testing.T) {
	f := setup(t)
	app := newWebhookApp(f)
	p := f.createDeposit(t, 2_000, 100)

	body := signedBody(t, map[string]any{
		"TerminalKey": "term-1",
		"OrderId":     p.OrderID,
		"Success":     true,
		"Status":      gateway.StatusConfirmed,
		"PaymentId":   700001,
		"Amount":      p.Amount * 100,
	})
	tampered := strings.Replace(body, `"Amount":200000`, `"Amount":999900`, 1)
	if tampered == body {
		t.Fatal("tampering failed, fixture body changed shape")
	}

	resp := postWebhook(t, app, tampered)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	// nothing moved
	balance, _ := f.ledger.Balance(context.Background(), f.accountID)
	if balance != 0 {
		t.Fatalf("tampered callback moved money, balance %d", balance)
	}
	stored, _ := f.payments.FindByOrderID(context.Background(), p.OrderID)
	if stored.Status != payment.StatusProcessing {
		t.Fatalf("tampered callback changed status to %s", stored.Status)
	}
}

func TestWebhookUnknownOrder(t *testing.T) {
	f := setup(t)
	app := newWebhookApp(f)

	body := signedBody(t, map[string]any{
		"TerminalKey": "term-1",
		"OrderId":     "topup-missing",
		"Success":     true,
		"Status":      gateway.StatusConfirmed,
		"PaymentId":   700001,
		"Amount":      10_000,
	})

	resp := postWebhook(t, app, body)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
