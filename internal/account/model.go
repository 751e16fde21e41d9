package account

import "time"

// DiscountKind distinguishes how a pending discount reduces the next
// analysis price.
type DiscountKind string

const (
	DiscountFixed      DiscountKind = "fixed"
	DiscountPercentage DiscountKind = "percentage"
)

// Discount is the pending discount attached to an account by a promo code.
// It is consumed by the next analysis purchase and cleared atomically.
type Discount struct {
	Kind    DiscountKind
	Value   int64
	PromoID string
}

// Apply returns the price after the discount, never below the floor.
func (d Discount) Apply(price, floor int64) int64 {
	var reduced int64
	switch d.Kind {
	case DiscountPercentage:
		reduced = price - price*d.Value/100
	default:
		reduced = price - d.Value
	}
	if reduced < floor {
		return floor
	}
	return reduced
}

// Account identifies a billing account. The identifier is the opaque subject
// supplied by the identity provider; balances live in the ledger.
type Account struct {
	ID              string
	Email           string
	PendingDiscount *Discount
	CreatedAt       time.Time
}
