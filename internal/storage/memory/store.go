// Package memory is the in-memory implementation of storage.LoanStore, used
// by the demo server and tests. All methods return copies so callers can
// never alias the store's internal state.
package memory

import (
	"context"
	"sync"

	"github.com/credlink/lending-core/internal/models"
	"github.com/credlink/lending-core/internal/storage"
)

// LoanStore keeps every entity in maps keyed by id, guarded by one mutex.
type LoanStore struct {
	mu        sync.Mutex
	loans     map[models.LoanID]models.Loan
	payments  map[models.PaymentID]models.Payment
	byLoan    map[models.LoanID][]models.PaymentID
	merchants map[models.Address]models.Merchant
}

// NewLoanStore creates an empty store.
func NewLoanStore() *LoanStore {
	return &LoanStore{
		loans:     make(map[models.LoanID]models.Loan),
		payments:  make(map[models.PaymentID]models.Payment),
		byLoan:    make(map[models.LoanID][]models.PaymentID),
		merchants: make(map[models.Address]models.Merchant),
	}
}

func (s *LoanStore) SaveLoan(_ context.Context, loan models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[loan.ID] = loan
	return nil
}

func (s *LoanStore) UpdateLoan(_ context.Context, loan models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[loan.ID]; !ok {
		return storage.ErrNotFound
	}
	s.loans[loan.ID] = loan
	return nil
}

func (s *LoanStore) GetLoan(_ context.Context, id models.LoanID) (models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return models.Loan{}, storage.ErrNotFound
	}
	return loan, nil
}

func (s *LoanStore) ListLoansByBorrower(_ context.Context, borrower models.Address) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Loan
	for _, loan := range s.loans {
		if loan.Borrower == borrower {
			out = append(out, loan)
		}
	}
	return out, nil
}

func (s *LoanStore) ListLoansByStatus(_ context.Context, status models.LoanStatus) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Loan
	for _, loan := range s.loans {
		if loan.Status == status {
			out = append(out, loan)
		}
	}
	return out, nil
}

func (s *LoanStore) ActivateLoanWithSchedule(_ context.Context, loan models.Loan, schedule []models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[loan.ID]; !ok {
		return storage.ErrNotFound
	}
	s.loans[loan.ID] = loan
	ids := make([]models.PaymentID, 0, len(schedule))
	for _, payment := range schedule {
		s.payments[payment.ID] = payment
		ids = append(ids, payment.ID)
	}
	s.byLoan[loan.ID] = ids
	return nil
}

func (s *LoanStore) GetPayment(_ context.Context, id models.PaymentID) (models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[id]
	if !ok {
		return models.Payment{}, storage.ErrNotFound
	}
	return payment, nil
}

func (s *LoanStore) UpdatePayment(_ context.Context, payment models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[payment.ID]; !ok {
		return storage.ErrNotFound
	}
	s.payments[payment.ID] = payment
	return nil
}

func (s *LoanStore) ListPaymentsByLoan(_ context.Context, loanID models.LoanID) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byLoan[loanID]
	out := make([]models.Payment, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.payments[id])
	}
	return out, nil
}

func (s *LoanStore) UpdateLoanWithPayment(_ context.Context, loan models.Loan, payment models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.loans[loan.ID]; !ok {
		return storage.ErrNotFound
	}
	if _, ok := s.payments[payment.ID]; !ok {
		return storage.ErrNotFound
	}
	s.loans[loan.ID] = loan
	s.payments[payment.ID] = payment
	return nil
}

func (s *LoanStore) SaveMerchant(_ context.Context, merchant models.Merchant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merchants[merchant.Wallet] = merchant
	return nil
}

func (s *LoanStore) UpdateMerchant(_ context.Context, merchant models.Merchant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.merchants[merchant.Wallet]; !ok {
		return storage.ErrNotFound
	}
	s.merchants[merchant.Wallet] = merchant
	return nil
}

func (s *LoanStore) GetMerchant(_ context.Context, wallet models.Address) (models.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	merchant, ok := s.merchants[wallet]
	if !ok {
		return models.Merchant{}, storage.ErrNotFound
	}
	return merchant, nil
}

// Compile-time check: LoanStore implements storage.LoanStore.
var _ storage.LoanStore = (*LoanStore)(nil)
