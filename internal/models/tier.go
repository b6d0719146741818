package models

// Tier is the risk bucket a borrower or lender position falls into.
// It governs interest rate, maximum loan size and lender APY.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
	TierDenied Tier = "DENIED"
)

// IsValid checks if the tier is a known value.
func (t Tier) IsValid() bool {
	switch t {
	case TierLow, TierMedium, TierHigh, TierDenied:
		return true
	}
	return false
}

// Fundable returns true if loans in this tier may be funded from the pool.
func (t Tier) Fundable() bool {
	return t == TierLow || t == TierMedium || t == TierHigh
}

// String returns the string representation of the tier.
func (t Tier) String() string {
	return string(t)
}
