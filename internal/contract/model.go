package contract

import "time"

// Contract statuses relevant to billing. Parsing and analysis own the later
// lifecycle; billing only moves uploaded contracts to paid.
const (
	StatusUploaded   = "uploaded"
	StatusPaid       = "paid"
	StatusProcessing = "processing"
)

// Payment methods recorded on a paid contract.
const (
	MethodBalance = "balance"
	MethodCard    = "card"
)

// Contract is the purchased artifact an analysis payment unlocks.
type Contract struct {
	ID            string
	AccountID     string
	Filename      string
	Status        string
	PaymentMethod string
	CreatedAt     time.Time
}
