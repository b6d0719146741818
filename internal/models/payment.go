package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the state of a scheduled installment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING" // Scheduled, not yet settled
	PaymentStatusPaid    PaymentStatus = "PAID"    // Settled within the grace period
	PaymentStatusLate    PaymentStatus = "LATE"    // Settled after the grace period, late fee charged
	PaymentStatusMissed  PaymentStatus = "MISSED"  // Auto-payment or sweep marked it unrecoverable
)

// IsValid checks if the status is a valid PaymentStatus.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusLate, PaymentStatusMissed:
		return true
	}
	return false
}

// Settled returns true if the installment has been paid, on time or late.
func (s PaymentStatus) Settled() bool {
	return s == PaymentStatusPaid || s == PaymentStatusLate
}

// String returns the string representation of PaymentStatus.
func (s PaymentStatus) String() string {
	return string(s)
}

// Payment is one scheduled installment of a loan. Payments are created in a
// batch when the loan is funded and are immutable once settled.
type Payment struct {
	ID       PaymentID
	LoanID   LoanID
	Amount   decimal.Decimal
	DueDate  time.Time
	PaidDate *time.Time
	Status   PaymentStatus
	LateFee  decimal.Decimal
}
