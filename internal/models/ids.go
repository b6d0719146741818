package models

import "github.com/google/uuid"

// Address identifies an external account (borrower, lender, merchant wallet).
type Address string

// TokenID identifies a collateral token configured in the vault.
type TokenID string

// LoanID uniquely identifies a loan.
type LoanID string

// PaymentID uniquely identifies a scheduled installment.
type PaymentID string

// NewLoanID returns a fresh loan identifier.
func NewLoanID() LoanID {
	return LoanID(uuid.New().String())
}

// NewPaymentID returns a fresh payment identifier.
func NewPaymentID() PaymentID {
	return PaymentID(uuid.New().String())
}
