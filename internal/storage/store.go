// Package storage defines the persistence contract for the entities the
// loan ledger owns. Key-value by entity id; any implementation must apply
// the multi-entity writes atomically.
package storage

import (
	"context"
	"errors"

	"github.com/credlink/lending-core/internal/models"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("entity not found")

// LoanStore persists loans, their payment schedules and merchants.
type LoanStore interface {
	SaveLoan(ctx context.Context, loan models.Loan) error
	UpdateLoan(ctx context.Context, loan models.Loan) error
	GetLoan(ctx context.Context, id models.LoanID) (models.Loan, error)
	ListLoansByBorrower(ctx context.Context, borrower models.Address) ([]models.Loan, error)
	ListLoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error)

	// ActivateLoanWithSchedule writes the funded loan together with its
	// full payment batch in one atomic step.
	ActivateLoanWithSchedule(ctx context.Context, loan models.Loan, schedule []models.Payment) error

	GetPayment(ctx context.Context, id models.PaymentID) (models.Payment, error)
	UpdatePayment(ctx context.Context, payment models.Payment) error
	ListPaymentsByLoan(ctx context.Context, loanID models.LoanID) ([]models.Payment, error)

	// UpdateLoanWithPayment writes a settled payment and its loan's new
	// balances in one atomic step.
	UpdateLoanWithPayment(ctx context.Context, loan models.Loan, payment models.Payment) error

	SaveMerchant(ctx context.Context, merchant models.Merchant) error
	UpdateMerchant(ctx context.Context, merchant models.Merchant) error
	GetMerchant(ctx context.Context, wallet models.Address) (models.Merchant, error)
}
