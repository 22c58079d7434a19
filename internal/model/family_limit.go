package model

import (
	"fmt"
)

// FamilyLimitKind selects how the per-registration party cap is computed.
type FamilyLimitKind string

const (
	FamilyLimitFixed        FamilyLimitKind = "fixed"
	FamilyLimitProportional FamilyLimitKind = "proportional"
	FamilyLimitUnlimited    FamilyLimitKind = "unlimited"
)

// FamilyLimit caps how many people one registration may bring.
// Value is a head count for fixed limits and a percentage of capacity for
// proportional ones; it is ignored when unlimited.
type FamilyLimit struct {
	Kind  FamilyLimitKind `json:"kind"`
	Value int             `json:"value,omitempty"`
}

// Fixed allows at most n people per registration.
func Fixed(n int) FamilyLimit {
	return FamilyLimit{Kind: FamilyLimitFixed, Value: n}
}

// Proportional allows at most percent% of capacity per registration, never less than one.
func Proportional(percent int) FamilyLimit {
	return FamilyLimit{Kind: FamilyLimitProportional, Value: percent}
}

// Unlimited leaves the remaining spots as the only ceiling.
func Unlimited() FamilyLimit {
	return FamilyLimit{Kind: FamilyLimitUnlimited}
}

// MaxPartySize returns the largest party a registration may include.
// Inputs are assumed validated.
func (l FamilyLimit) MaxPartySize(capacity int) int {
	switch l.Kind {
	case FamilyLimitFixed:
		return l.Value
	case FamilyLimitProportional:
		// Integer arithmetic keeps floor(p/100 * capacity) exact.
		return max(1, l.Value*capacity/100)
	default:
		return capacity
	}
}

// Validate checks the limit's parameters.
func (l FamilyLimit) Validate() error {
	switch l.Kind {
	case FamilyLimitFixed:
		if l.Value < 1 {
			return fmt.Errorf("%w: fixed family limit must be at least 1", ErrValidation)
		}
	case FamilyLimitProportional:
		if l.Value < 0 || l.Value > 100 {
			return fmt.Errorf("%w: proportional family limit must be between 0 and 100", ErrValidation)
		}
	case FamilyLimitUnlimited:
	default:
		return fmt.Errorf("%w: unknown family limit kind %q", ErrValidation, l.Kind)
	}
	return nil
}
