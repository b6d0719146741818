package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus represents the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusPending    LoanStatus = "PENDING"    // Created, risk assessment not yet passed
	LoanStatusApproved   LoanStatus = "APPROVED"   // Assessment passed, collateral locked
	LoanStatusActive     LoanStatus = "ACTIVE"     // Funded, schedule generated, merchant settled
	LoanStatusCompleted  LoanStatus = "COMPLETED"  // Fully repaid, collateral released
	LoanStatusDefaulted  LoanStatus = "DEFAULTED"  // Missed-payment threshold or grace breach
	LoanStatusLiquidated LoanStatus = "LIQUIDATED" // Collateral seized
)

// IsValid checks if the status is a valid LoanStatus.
func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanStatusPending, LoanStatusApproved, LoanStatusActive,
		LoanStatusCompleted, LoanStatusDefaulted, LoanStatusLiquidated:
		return true
	}
	return false
}

// IsTerminal returns true if no further transitions are possible.
func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusCompleted || s == LoanStatusLiquidated
}

// String returns the string representation of LoanStatus.
func (s LoanStatus) String() string {
	return string(s)
}

// LoanTerms are the repayment terms a loan is created under.
type LoanTerms struct {
	Installments    int
	IntervalDays    int
	InterestRateBps int64
	LateFeeRateBps  int64
}

// Loan is the ledger's record of a single installment loan.
type Loan struct {
	ID               LoanID
	Borrower         Address
	Merchant         Address
	Principal        decimal.Decimal
	TotalAmountDue   decimal.Decimal // principal + interest
	CollateralAmount decimal.Decimal
	CollateralToken  TokenID
	Terms            LoanTerms
	Status           LoanStatus
	RiskTier         Tier
	CreatedAt        time.Time
	NextPaymentDue   time.Time // zero when no pending installment remains
	PaidAmount       decimal.Decimal
	RemainingAmount  decimal.Decimal
}
