package promo

import (
	"errors"
	"time"
)

// Distinct validation failures; each surfaces its own user-facing reason and
// is never collapsed into a generic error.
var (
	ErrNotFound    = errors.New("promo code not found")
	ErrInactive    = errors.New("promo code is inactive")
	ErrNotStarted  = errors.New("promo code is not active yet")
	ErrExpired     = errors.New("promo code has expired")
	ErrExhausted   = errors.New("promo code usage limit reached")
	ErrAlreadyUsed = errors.New("promo code already used by this account")
)

// Kind is the tagged effect variant of a promo code.
type Kind string

const (
	// KindCredit credits a flat amount to the balance immediately.
	KindCredit Kind = "credit"
	// KindFixedDiscount stores a flat discount consumed by the next purchase.
	KindFixedDiscount Kind = "discount"
	// KindPercentageDiscount stores a percentage discount consumed by the
	// next purchase.
	KindPercentageDiscount Kind = "percentage"
)

// PromoCode is a globally scoped code. Codes are stored upper-cased and
// matched case-insensitively.
type PromoCode struct {
	ID         string
	Code       string
	Kind       Kind
	Value      int64
	ValidFrom  time.Time
	ValidUntil *time.Time // nil means no expiry
	MaxUses    int        // 0 means unlimited
	SingleUse  bool
	Active     bool
	UsageCount int
	CreatedAt  time.Time
}

// Usage records one application of a code by one account.
type Usage struct {
	ID           string
	PromoID      string
	AccountID    string
	AppliedValue int64
	CreatedAt    time.Time
}

// validate re-checks every constraint against the current time. used reports
// whether this account already has a usage row for the code.
func validate(p PromoCode, used bool, now time.Time) error {
	if !p.Active {
		return ErrInactive
	}
	if p.ValidFrom.After(now) {
		return ErrNotStarted
	}
	if p.ValidUntil != nil && p.ValidUntil.Before(now) {
		return ErrExpired
	}
	if p.MaxUses > 0 && p.UsageCount >= p.MaxUses {
		return ErrExhausted
	}
	if p.SingleUse && used {
		return ErrAlreadyUsed
	}
	return nil
}
