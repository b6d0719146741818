package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credit score bounds. Scores are always clamped into this range.
const (
	MinCreditScore = 300
	MaxCreditScore = 850
)

// CreditProfile is the per-borrower history the risk engine scores against.
// Profiles are mutated only through the engine's recording operations and are
// never deleted.
type CreditProfile struct {
	Borrower           Address
	Score              int
	TotalBorrowed      decimal.Decimal
	TotalRepaid        decimal.Decimal
	SuccessfulPayments int
	MissedPayments     int
	CurrentDebt        decimal.Decimal
	WalletAge          time.Time // first-seen timestamp, set on first loan
	HasDefaulted       bool
	LastAssessment     time.Time
}

// AssessmentResult is the transient outcome of a risk assessment. It is
// produced fresh per request and never persisted.
type AssessmentResult struct {
	Score              int
	Tier               Tier
	MaxLoanAmount      decimal.Decimal
	RequiredCollateral decimal.Decimal
	Approved           bool
	Reason             string
}
