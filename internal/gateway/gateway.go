package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Gateway-reported payment statuses. Only StatusConfirmed is final for the
// reconciliation path; everything else is acknowledged and ignored.
const (
	StatusNew        = "NEW"
	StatusAuthorized = "AUTHORIZED"
	StatusConfirmed  = "CONFIRMED"
	StatusRejected   = "REJECTED"
	StatusCanceled   = "CANCELED"
)

// ErrInvalidSignature indicates a notification whose token did not match the
// recomputed signature. Such callbacks are rejected outright.
var ErrInvalidSignature = errors.New("invalid notification signature")

// Error is a rejection reported by the gateway itself.
type Error struct {
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("gateway error %s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// InitRequest captures the data needed to open an outbound payment.
type InitRequest struct {
	OrderID     string
	Amount      int64 // minor units
	Description string
	CustomerKey string
	Email       string
	SuccessURL  string
	FailURL     string
}

// InitResult is the gateway's answer to a successful Init call.
type InitResult struct {
	PaymentID  string
	PaymentURL string
	Status     string
}

// StateResult reports the current gateway-side state of a payment.
type StateResult struct {
	PaymentID string
	Status    string
	Amount    int64 // minor units
}

// Client represents a connector to the external payment gateway.
type Client interface {
	Init(ctx context.Context, req InitRequest) (InitResult, error)
	GetState(ctx context.Context, paymentID string) (StateResult, error)
	Cancel(ctx context.Context, paymentID string, amount int64) (StateResult, error)
}

// StaticClient simulates a successful gateway integration. Used for wiring
// without credentials and in tests.
type StaticClient struct{}

// Init approves the payment with a synthetic identifier and redirect URL.
func (StaticClient) Init(_ context.Context, req InitRequest) (InitResult, error) {
	return InitResult{
		PaymentID:  uuid.NewString(),
		PaymentURL: "https://gateway.invalid/pay/" + req.OrderID,
		Status:     StatusNew,
	}, nil
}

// GetState reports the payment as confirmed.
func (StaticClient) GetState(_ context.Context, paymentID string) (StateResult, error) {
	return StateResult{PaymentID: paymentID, Status: StatusConfirmed}, nil
}

// Cancel reports the payment as canceled.
func (StaticClient) Cancel(_ context.Context, paymentID string, amount int64) (StateResult, error) {
	return StateResult{PaymentID: paymentID, Status: StatusCanceled, Amount: amount}, nil
}
