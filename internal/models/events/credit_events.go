package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topics for risk engine events.
const (
	TopicCreditAssessed  = "credit_assessed"
	TopicPaymentRecorded = "payment_recorded"
	TopicDefaultRecorded = "default_recorded"
)

type CreditAssessed struct {
	Borrower   string          `json:"borrower"`
	Score      int             `json:"score"`
	Tier       string          `json:"tier"`
	Requested  decimal.Decimal `json:"requested"`
	Approved   bool            `json:"approved"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type PaymentRecorded struct {
	Borrower   string          `json:"borrower"`
	Amount     decimal.Decimal `json:"amount"`
	OnTime     bool            `json:"on_time"`
	NewScore   int             `json:"new_score"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type DefaultRecorded struct {
	Borrower   string          `json:"borrower"`
	Amount     decimal.Decimal `json:"amount"`
	NewScore   int             `json:"new_score"`
	OccurredAt time.Time       `json:"occurred_at"`
}
