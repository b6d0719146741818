package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics for loan lifecycle events.
const (
	TopicLoanCreated        = "loan_created"
	TopicLoanFunded         = "loan_funded"
	TopicPaymentMade        = "payment_made"
	TopicPaymentMissed      = "payment_missed"
	TopicLoanCompleted      = "loan_completed"
	TopicLoanDefaulted      = "loan_defaulted"
	TopicLoanLiquidated     = "loan_liquidated"
	TopicMerchantRegistered = "merchant_registered"
)

type LoanCreated struct {
	LoanID           string          `json:"loan_id"`
	Borrower         string          `json:"borrower"`
	Merchant         string          `json:"merchant"`
	Principal        decimal.Decimal `json:"principal"`
	TotalAmountDue   decimal.Decimal `json:"total_amount_due"`
	CollateralToken  string          `json:"collateral_token"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	RiskTier         string          `json:"risk_tier"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

type LoanFunded struct {
	LoanID       string          `json:"loan_id"`
	Merchant     string          `json:"merchant"`
	Principal    decimal.Decimal `json:"principal"`
	Installments int             `json:"installments"`
	FirstDueDate time.Time       `json:"first_due_date"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

type PaymentMade struct {
	PaymentID  string          `json:"payment_id"`
	LoanID     string          `json:"loan_id"`
	Amount     decimal.Decimal `json:"amount"`
	LateFee    decimal.Decimal `json:"late_fee"`
	Status     string          `json:"status"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type PaymentMissed struct {
	PaymentID  string    `json:"payment_id"`
	LoanID     string    `json:"loan_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

type LoanCompleted struct {
	LoanID     string          `json:"loan_id"`
	Borrower   string          `json:"borrower"`
	TotalPaid  decimal.Decimal `json:"total_paid"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type LoanDefaulted struct {
	LoanID     string          `json:"loan_id"`
	Borrower   string          `json:"borrower"`
	Remaining  decimal.Decimal `json:"remaining"`
	Reason     string          `json:"reason"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type LoanLiquidated struct {
	LoanID     string          `json:"loan_id"`
	Recovered  decimal.Decimal `json:"recovered"`
	Loss       decimal.Decimal `json:"loss"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type MerchantRegistered struct {
	Wallet     string    `json:"wallet"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
}
