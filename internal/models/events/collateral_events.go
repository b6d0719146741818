package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics for collateral vault events.
const (
	TopicCollateralLocked     = "collateral_locked"
	TopicCollateralReleased   = "collateral_released"
	TopicCollateralLiquidated = "collateral_liquidated"
)

type CollateralLocked struct {
	LoanID     string          `json:"loan_id"`
	Owner      string          `json:"owner"`
	Token      string          `json:"token"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type CollateralReleased struct {
	LoanID     string          `json:"loan_id"`
	Owner      string          `json:"owner"`
	Token      string          `json:"token"`
	Amount     decimal.Decimal `json:"amount"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type CollateralLiquidated struct {
	LoanID     string          `json:"loan_id"`
	Token      string          `json:"token"`
	Amount     decimal.Decimal `json:"amount"`
	Recovered  decimal.Decimal `json:"recovered"`
	OccurredAt time.Time       `json:"occurred_at"`
}
