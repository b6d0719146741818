package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics for liquidity pool events.
const (
	TopicDeposited        = "deposited"
	TopicWithdrawn        = "withdrawn"
	TopicYieldClaimed     = "yield_claimed"
	TopicYieldDistributed = "yield_distributed"
	TopicLossSocialized   = "loss_socialized"
	TopicDefaultAbsorbed  = "default_absorbed"
)

type Deposited struct {
	Lender     string          `json:"lender"`
	Amount     decimal.Decimal `json:"amount"`
	Tier       string          `json:"tier"`
	Reinvested bool            `json:"reinvested"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type Withdrawn struct {
	Lender     string          `json:"lender"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type YieldClaimed struct {
	Lender     string          `json:"lender"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type YieldDistributed struct {
	LoanID     string          `json:"loan_id"`
	Tier       string          `json:"tier"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type LossSocialized struct {
	LoanID     string          `json:"loan_id"`
	Shortfall  decimal.Decimal `json:"shortfall"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type DefaultAbsorbed struct {
	LoanID      string          `json:"loan_id"`
	Loss        decimal.Decimal `json:"loss"`
	FromReserve decimal.Decimal `json:"from_reserve"`
	Recovered   decimal.Decimal `json:"recovered"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
