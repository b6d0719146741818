// Package postgres is the PostgreSQL implementation of storage.LoanStore.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/credlink/lending-core/internal/models"
	"github.com/credlink/lending-core/internal/storage"
)

// LoanStore persists loans, payments and merchants in PostgreSQL. Multi-
// entity writes run inside a database transaction so either every row is
// written or none is.
type LoanStore struct {
	db *sql.DB
}

// NewLoanStore wraps an open database handle.
func NewLoanStore(db *sql.DB) *LoanStore {
	return &LoanStore{db: db}
}

const loanColumns = `id, borrower, merchant, principal, total_amount_due,
	collateral_amount, collateral_token, installments, interval_days,
	interest_rate_bps, late_fee_rate_bps, status, risk_tier, created_at,
	next_payment_due, paid_amount, remaining_amount`

func (s *LoanStore) SaveLoan(ctx context.Context, loan models.Loan) error {
	const query = `INSERT INTO loans (` + loanColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err := s.db.ExecContext(ctx, query, loanArgs(loan)...)
	return err
}

func (s *LoanStore) UpdateLoan(ctx context.Context, loan models.Loan) error {
	return s.updateLoanTx(ctx, s.db, loan)
}

// execer lets the update helpers run against either the pool or an open tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *LoanStore) updateLoanTx(ctx context.Context, ex execer, loan models.Loan) error {
	const query = `UPDATE loans SET status = $2, next_payment_due = $3,
	paid_amount = $4, remaining_amount = $5 WHERE id = $1`
	res, err := ex.ExecContext(ctx, query,
		string(loan.ID), loan.Status.String(), nullableTime(loan.NextPaymentDue),
		loan.PaidAmount, loan.RemainingAmount)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *LoanStore) GetLoan(ctx context.Context, id models.LoanID) (models.Loan, error) {
	const query = `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	return scanLoan(s.db.QueryRowContext(ctx, query, string(id)))
}

func (s *LoanStore) ListLoansByBorrower(ctx context.Context, borrower models.Address) ([]models.Loan, error) {
	const query = `SELECT ` + loanColumns + ` FROM loans WHERE borrower = $1 ORDER BY created_at`
	return s.queryLoans(ctx, query, string(borrower))
}

func (s *LoanStore) ListLoansByStatus(ctx context.Context, status models.LoanStatus) ([]models.Loan, error) {
	const query = `SELECT ` + loanColumns + ` FROM loans WHERE status = $1 ORDER BY created_at`
	return s.queryLoans(ctx, query, status.String())
}

func (s *LoanStore) queryLoans(ctx context.Context, query string, arg any) ([]models.Loan, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}

func (s *LoanStore) ActivateLoanWithSchedule(ctx context.Context, loan models.Loan, schedule []models.Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = s.updateLoanTx(ctx, tx, loan); err != nil {
		return err
	}
	const query = `INSERT INTO payments (id, loan_id, amount, due_date, paid_date, status, late_fee)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`
	for _, payment := range schedule {
		if _, err = tx.ExecContext(ctx, query, paymentArgs(payment)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const paymentColumns = `id, loan_id, amount, due_date, paid_date, status, late_fee`

func (s *LoanStore) GetPayment(ctx context.Context, id models.PaymentID) (models.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(s.db.QueryRowContext(ctx, query, string(id)))
}

func (s *LoanStore) UpdatePayment(ctx context.Context, payment models.Payment) error {
	return s.updatePaymentTx(ctx, s.db, payment)
}

func (s *LoanStore) updatePaymentTx(ctx context.Context, ex execer, payment models.Payment) error {
	const query = `UPDATE payments SET paid_date = $2, status = $3, late_fee = $4 WHERE id = $1`
	var paid sql.NullTime
	if payment.PaidDate != nil {
		paid = sql.NullTime{Time: *payment.PaidDate, Valid: true}
	}
	res, err := ex.ExecContext(ctx, query, string(payment.ID), paid, payment.Status.String(), payment.LateFee)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *LoanStore) ListPaymentsByLoan(ctx context.Context, loanID models.LoanID) ([]models.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE loan_id = $1 ORDER BY due_date`
	rows, err := s.db.QueryContext(ctx, query, string(loanID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (s *LoanStore) UpdateLoanWithPayment(ctx context.Context, loan models.Loan, payment models.Payment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = s.updateLoanTx(ctx, tx, loan); err != nil {
		return err
	}
	if err = s.updatePaymentTx(ctx, tx, payment); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *LoanStore) SaveMerchant(ctx context.Context, merchant models.Merchant) error {
	const query = `INSERT INTO merchants (wallet, name, total_volume, total_orders, is_active, settlement_delay_seconds)
	VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := s.db.ExecContext(ctx, query,
		string(merchant.Wallet), merchant.Name, merchant.TotalVolume,
		merchant.TotalOrders, merchant.IsActive, int64(merchant.SettlementDelay/time.Second))
	return err
}

func (s *LoanStore) UpdateMerchant(ctx context.Context, merchant models.Merchant) error {
	const query = `UPDATE merchants SET name = $2, total_volume = $3, total_orders = $4,
	is_active = $5, settlement_delay_seconds = $6 WHERE wallet = $1`
	res, err := s.db.ExecContext(ctx, query,
		string(merchant.Wallet), merchant.Name, merchant.TotalVolume,
		merchant.TotalOrders, merchant.IsActive, int64(merchant.SettlementDelay/time.Second))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *LoanStore) GetMerchant(ctx context.Context, wallet models.Address) (models.Merchant, error) {
	const query = `SELECT wallet, name, total_volume, total_orders, is_active, settlement_delay_seconds
	FROM merchants WHERE wallet = $1`

	var m models.Merchant
	var walletStr string
	var delaySeconds int64
	err := s.db.QueryRowContext(ctx, query, string(wallet)).Scan(
		&walletStr, &m.Name, &m.TotalVolume, &m.TotalOrders, &m.IsActive, &delaySeconds)
	if err == sql.ErrNoRows {
		return models.Merchant{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Merchant{}, err
	}
	m.Wallet = models.Address(walletStr)
	m.SettlementDelay = time.Duration(delaySeconds) * time.Second
	return m, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLoan(row scanner) (models.Loan, error) {
	var loan models.Loan
	var id, borrower, merchant, token, status, tier string
	var nextDue sql.NullTime
	err := row.Scan(
		&id, &borrower, &merchant, &loan.Principal, &loan.TotalAmountDue,
		&loan.CollateralAmount, &token, &loan.Terms.Installments,
		&loan.Terms.IntervalDays, &loan.Terms.InterestRateBps,
		&loan.Terms.LateFeeRateBps, &status, &tier, &loan.CreatedAt,
		&nextDue, &loan.PaidAmount, &loan.RemainingAmount,
	)
	if err == sql.ErrNoRows {
		return models.Loan{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Loan{}, err
	}
	loan.ID = models.LoanID(id)
	loan.Borrower = models.Address(borrower)
	loan.Merchant = models.Address(merchant)
	loan.CollateralToken = models.TokenID(token)
	loan.Status = models.LoanStatus(status)
	loan.RiskTier = models.Tier(tier)
	if nextDue.Valid {
		loan.NextPaymentDue = nextDue.Time
	}
	return loan, nil
}

func scanPayment(row scanner) (models.Payment, error) {
	var payment models.Payment
	var id, loanID, status string
	var paid sql.NullTime
	err := row.Scan(&id, &loanID, &payment.Amount, &payment.DueDate, &paid, &status, &payment.LateFee)
	if err == sql.ErrNoRows {
		return models.Payment{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Payment{}, err
	}
	payment.ID = models.PaymentID(id)
	payment.LoanID = models.LoanID(loanID)
	payment.Status = models.PaymentStatus(status)
	if paid.Valid {
		t := paid.Time
		payment.PaidDate = &t
	}
	return payment, nil
}

func loanArgs(loan models.Loan) []any {
	return []any{
		string(loan.ID), string(loan.Borrower), string(loan.Merchant),
		loan.Principal, loan.TotalAmountDue, loan.CollateralAmount,
		string(loan.CollateralToken), loan.Terms.Installments,
		loan.Terms.IntervalDays, loan.Terms.InterestRateBps,
		loan.Terms.LateFeeRateBps, loan.Status.String(), loan.RiskTier.String(),
		loan.CreatedAt, nullableTime(loan.NextPaymentDue), loan.PaidAmount,
		loan.RemainingAmount,
	}
}

func paymentArgs(payment models.Payment) []any {
	var paid sql.NullTime
	if payment.PaidDate != nil {
		paid = sql.NullTime{Time: *payment.PaidDate, Valid: true}
	}
	return []any{
		string(payment.ID), string(payment.LoanID), payment.Amount,
		payment.DueDate, paid, payment.Status.String(), payment.LateFee,
	}
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Compile-time check: LoanStore implements storage.LoanStore.
var _ storage.LoanStore = (*LoanStore)(nil)
