package payment

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no payment exists for the order identifier.
	ErrNotFound = errors.New("payment not found")

	// ErrNotOwner indicates the caller does not own the contract being paid.
	ErrNotOwner = errors.New("not owner of contract")

	// ErrContractProcessed indicates the contract already left the uploaded state.
	ErrContractProcessed = errors.New("contract already processed")
)

// Type distinguishes what a payment buys.
type Type string

const (
	// TypeDeposit tops up the wallet balance.
	TypeDeposit Type = "deposit"
	// TypeAnalysis pays for one contract analysis.
	TypeAnalysis Type = "analysis"
)

// Status is the payment lifecycle: pending -> processing -> success | failed.
// A payment never transitions away from success.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Payment represents one outbound gateway transaction. OrderID is the
// caller-chosen idempotency key; GatewayPaymentID is the gateway's opaque
// identifier once known.
type Payment struct {
	ID               string
	AccountID        string
	OrderID          string
	Amount           int64
	Bonus            int64 // computed at creation time for deposits
	Type             Type
	Status           Status
	GatewayPaymentID string
	GatewayStatus    string
	ContractID       string
	Description      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
