// Package ledger owns the loan and payment lifecycle and orchestrates the
// risk engine, collateral vault and liquidity pool.
//
// Every public operation is serialized under one mutex and validates and
// prices everything it can before the first side effect. Operations with one
// fallible collaborator place it ahead of all state mutation; the paths that
// must touch both the store and the settlement asset compensate explicitly
// when the second step fails, so a collaborator failure never leaves a
// partial state change behind.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/credlink/lending-core/internal/auth"
	"github.com/credlink/lending-core/internal/clock"
	"github.com/credlink/lending-core/internal/errs"
	"github.com/credlink/lending-core/internal/events"
	"github.com/credlink/lending-core/internal/models"
	domevents "github.com/credlink/lending-core/internal/models/events"
	"github.com/credlink/lending-core/internal/pool"
	"github.com/credlink/lending-core/internal/risk"
	"github.com/credlink/lending-core/internal/storage"
	"github.com/credlink/lending-core/internal/vault"
)

// Policy defaults.
const (
	DefaultGracePeriod      = 48 * time.Hour      // window after due date before a payment is late
	DefaultDefaultThreshold = 30 * 24 * time.Hour // past-due time that forces a default
	missedPaymentsToDefault = 2
)

// Config carries the ledger's repayment policy and the known terms
// templates.
type Config struct {
	GracePeriod      time.Duration
	DefaultThreshold time.Duration
	Templates        map[string]models.LoanTerms
}

// DefaultConfig returns the stock policy and templates.
func DefaultConfig() Config {
	return Config{
		GracePeriod:      DefaultGracePeriod,
		DefaultThreshold: DefaultDefaultThreshold,
		Templates: map[string]models.LoanTerms{
			"pay-in-4":   {Installments: 4, IntervalDays: 14, InterestRateBps: 0, LateFeeRateBps: 250},
			"monthly-3":  {Installments: 3, IntervalDays: 30, InterestRateBps: 500, LateFeeRateBps: 250},
			"monthly-6":  {Installments: 6, IntervalDays: 30, InterestRateBps: 800, LateFeeRateBps: 250},
			"monthly-12": {Installments: 12, IntervalDays: 30, InterestRateBps: 1200, LateFeeRateBps: 250},
		},
	}
}

// Ledger is the loan ledger. It holds the capability its collaborators
// trust, so only it can move pool funds or mutate credit history.
type Ledger struct {
	mu       sync.Mutex
	cfg      Config
	store    storage.LoanStore
	risk     *risk.Engine
	vault    *vault.Vault
	pool     *pool.Pool
	clk      clock.Clock
	pub      events.Publisher
	log      *zap.Logger
	cap      auth.Capability
	adminCap auth.Capability
}

// NewLedger wires the ledger to its collaborators. ledgerCap must be the
// capability the collaborators were constructed with; adminCap guards
// merchant administration.
func NewLedger(cfg Config, store storage.LoanStore, riskEngine *risk.Engine, clVault *vault.Vault, liqPool *pool.Pool, ledgerCap, adminCap auth.Capability, clk clock.Clock, pub events.Publisher, log *zap.Logger) *Ledger {
	if cfg.Templates == nil {
		cfg = DefaultConfig()
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = DefaultDefaultThreshold
	}
	return &Ledger{
		cfg:      cfg,
		store:    store,
		risk:     riskEngine,
		vault:    clVault,
		pool:     liqPool,
		clk:      clk,
		pub:      pub,
		log:      log,
		cap:      ledgerCap,
		adminCap: adminCap,
	}
}

// RegisterMerchant adds a merchant. Admin only.
func (l *Ledger) RegisterMerchant(ctx context.Context, cap auth.Capability, name string, wallet models.Address, settlementDelay time.Duration) (models.Merchant, error) {
	if !l.adminCap.Matches(cap) {
		return models.Merchant{}, errs.Authorization(errs.CodeNotAdmin, "merchant registration requires the admin capability")
	}
	if name == "" || wallet == "" {
		return models.Merchant{}, errs.Validation(errs.CodeInvalidAmount, "merchant name and wallet are required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.store.GetMerchant(ctx, wallet); err == nil {
		return models.Merchant{}, errs.Policy(errs.CodeWrongStatus, "merchant %s is already registered", wallet)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return models.Merchant{}, errs.External(errs.CodeStorageUnavailable, err)
	}
	merchant := models.Merchant{
		Name:            name,
		Wallet:          wallet,
		TotalVolume:     decimal.Zero,
		IsActive:        true,
		SettlementDelay: settlementDelay,
	}
	if err := l.store.SaveMerchant(ctx, merchant); err != nil {
		return models.Merchant{}, errs.External(errs.CodeStorageUnavailable, err)
	}
	l.emit(ctx, domevents.TopicMerchantRegistered, domevents.MerchantRegistered{
		Wallet:     string(wallet),
		Name:       name,
		OccurredAt: l.clk.Now(),
	})
	return merchant, nil
}

// SetMerchantActive flips a merchant's active flag. Admin only.
func (l *Ledger) SetMerchantActive(ctx context.Context, cap auth.Capability, wallet models.Address, active bool) error {
	if !l.adminCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotAdmin, "merchant administration requires the admin capability")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	merchant, err := l.store.GetMerchant(ctx, wallet)
	if err != nil {
		return l.storeErr(err, "merchant %s", wallet)
	}
	merchant.IsActive = active
	if err := l.store.UpdateMerchant(ctx, merchant); err != nil {
		return errs.External(errs.CodeStorageUnavailable, err)
	}
	return nil
}

// CreateLoan assesses, collateralizes and persists a new loan in APPROVED
// state. The caller is the borrower.
func (l *Ledger) CreateLoan(ctx context.Context, borrower, merchantWallet models.Address, principal, collateralAmount decimal.Decimal, collateralToken models.TokenID, template string) (models.Loan, error) {
	if !principal.IsPositive() {
		return models.Loan{}, errs.Validation(errs.CodeInvalidAmount, "principal must be positive")
	}
	terms, ok := l.cfg.Templates[template]
	if !ok {
		return models.Loan{}, errs.Validation(errs.CodeUnknownTemplate, "unknown terms template %q", template)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	merchant, err := l.store.GetMerchant(ctx, merchantWallet)
	if err != nil {
		return models.Loan{}, l.storeErr(err, "merchant %s", merchantWallet)
	}
	if !merchant.IsActive {
		return models.Loan{}, errs.Policy(errs.CodeMerchantInactive, "merchant %s is inactive", merchantWallet)
	}

	collateralValue, err := l.vault.CollateralValue(collateralToken, collateralAmount)
	if err != nil {
		return models.Loan{}, err
	}
	assessment, err := l.risk.AssessRisk(ctx, borrower, principal, collateralAmount, collateralValue)
	if err != nil {
		return models.Loan{}, err
	}
	if !assessment.Approved {
		return models.Loan{}, errs.Policy(assessment.Reason, "loan request denied")
	}

	loanID := models.NewLoanID()
	if err := l.vault.Lock(ctx, l.cap, borrower, collateralToken, collateralAmount, loanID); err != nil {
		return models.Loan{}, err
	}

	now := l.clk.Now()
	loan := models.Loan{
		ID:               loanID,
		Borrower:         borrower,
		Merchant:         merchantWallet,
		Principal:        principal,
		TotalAmountDue:   principal.Add(models.MulBps(principal, terms.InterestRateBps)),
		CollateralAmount: collateralAmount,
		CollateralToken:  collateralToken,
		Terms:            terms,
		Status:           models.LoanStatusApproved,
		RiskTier:         assessment.Tier,
		CreatedAt:        now,
		PaidAmount:       decimal.Zero,
	}
	loan.RemainingAmount = loan.TotalAmountDue

	if err := l.store.SaveLoan(ctx, loan); err != nil {
		// Undo the collateral lock so the failure leaves no trace.
		if rerr := l.vault.Release(ctx, l.cap, loanID, borrower, collateralToken, collateralAmount); rerr != nil {
			l.log.Error("collateral release compensation failed",
				zap.String("loan_id", string(loanID)), zap.Error(rerr))
		}
		return models.Loan{}, errs.External(errs.CodeStorageUnavailable, err)
	}
	if err := l.risk.RecordLoan(ctx, l.cap, borrower, principal); err != nil {
		return models.Loan{}, err
	}

	l.emit(ctx, domevents.TopicLoanCreated, domevents.LoanCreated{
		LoanID:           string(loanID),
		Borrower:         string(borrower),
		Merchant:         string(merchantWallet),
		Principal:        principal,
		TotalAmountDue:   loan.TotalAmountDue,
		CollateralToken:  string(collateralToken),
		CollateralAmount: collateralAmount,
		RiskTier:         assessment.Tier.String(),
		OccurredAt:       now,
	})
	return loan, nil
}

// FundLoan pulls principal from the pool, settles the merchant and generates
// the full payment schedule.
func (l *Ledger) FundLoan(ctx context.Context, loanID models.LoanID) (models.Loan, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loan, err := l.store.GetLoan(ctx, loanID)
	if err != nil {
		return models.Loan{}, l.storeErr(err, "loan %s", loanID)
	}
	if loan.Status != models.LoanStatusApproved {
		return models.Loan{}, errs.Policy(errs.CodeWrongStatus, "loan %s is %s, not APPROVED", loanID, loan.Status)
	}
	merchant, err := l.store.GetMerchant(ctx, loan.Merchant)
	if err != nil {
		return models.Loan{}, l.storeErr(err, "merchant %s", loan.Merchant)
	}

	if err := l.pool.FundLoan(ctx, l.cap, loanID, loan.Borrower, merchant.Wallet, loan.Principal, loan.RiskTier); err != nil {
		return models.Loan{}, err
	}

	schedule := buildSchedule(loan)
	loan.Status = models.LoanStatusActive
	loan.NextPaymentDue = schedule[0].DueDate

	if err := l.store.ActivateLoanWithSchedule(ctx, loan, schedule); err != nil {
		if rerr := l.pool.ReverseFunding(ctx, l.cap, loanID, merchant.Wallet); rerr != nil {
			l.log.Error("funding reversal compensation failed",
				zap.String("loan_id", string(loanID)), zap.Error(rerr))
		}
		return models.Loan{}, errs.External(errs.CodeStorageUnavailable, err)
	}

	merchant.TotalVolume = merchant.TotalVolume.Add(loan.Principal)
	merchant.TotalOrders++
	if err := l.store.UpdateMerchant(ctx, merchant); err != nil {
		l.log.Error("merchant stats update failed",
			zap.String("merchant", string(merchant.Wallet)), zap.Error(err))
	}

	l.emit(ctx, domevents.TopicLoanFunded, domevents.LoanFunded{
		LoanID:       string(loanID),
		Merchant:     string(merchant.Wallet),
		Principal:    loan.Principal,
		Installments: loan.Terms.Installments,
		FirstDueDate: loan.NextPaymentDue,
		OccurredAt:   l.clk.Now(),
	})
	return loan, nil
}

// buildSchedule splits totalAmountDue into equal installments, with the last
// one absorbing the rounding remainder so the sum matches exactly. Due dates
// run from the loan's creation time, one interval apart.
func buildSchedule(loan models.Loan) []models.Payment {
	n := loan.Terms.Installments
	per := loan.TotalAmountDue.Div(decimal.NewFromInt(int64(n))).Floor()
	interval := time.Duration(loan.Terms.IntervalDays) * 24 * time.Hour

	schedule := make([]models.Payment, 0, n)
	for i := 0; i < n; i++ {
		amount := per
		if i == n-1 {
			amount = loan.TotalAmountDue.Sub(per.Mul(decimal.NewFromInt(int64(n - 1))))
		}
		schedule = append(schedule, models.Payment{
			ID:      models.NewPaymentID(),
			LoanID:  loan.ID,
			Amount:  amount,
			DueDate: loan.CreatedAt.Add(time.Duration(i+1) * interval),
			Status:  models.PaymentStatusPending,
			LateFee: decimal.Zero,
		})
	}
	return schedule
}

// MakePayment settles one installment. The caller must be the loan's
// borrower; payments past the grace period are charged a late fee.
func (l *Ledger) MakePayment(ctx context.Context, caller models.Address, paymentID models.PaymentID) (models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.makePaymentLocked(ctx, caller, paymentID)
}

func (l *Ledger) makePaymentLocked(ctx context.Context, caller models.Address, paymentID models.PaymentID) (models.Payment, error) {
	payment, err := l.store.GetPayment(ctx, paymentID)
	if err != nil {
		return models.Payment{}, l.storeErr(err, "payment %s", paymentID)
	}
	if payment.Status != models.PaymentStatusPending {
		return models.Payment{}, errs.Policy(errs.CodeWrongStatus, "payment %s is %s, not PENDING", paymentID, payment.Status)
	}
	loan, err := l.store.GetLoan(ctx, payment.LoanID)
	if err != nil {
		return models.Payment{}, l.storeErr(err, "loan %s", payment.LoanID)
	}
	if loan.Status != models.LoanStatusActive {
		return models.Payment{}, errs.Policy(errs.CodeWrongStatus, "loan %s is %s, not ACTIVE", loan.ID, loan.Status)
	}
	if caller != loan.Borrower {
		return models.Payment{}, errs.Authorization(errs.CodeNotBorrower, "only the borrower may pay")
	}
	prevLoan, prevPayment := loan, payment

	now := l.clk.Now()
	onTime := !now.After(payment.DueDate.Add(l.cfg.GracePeriod))
	if onTime {
		payment.Status = models.PaymentStatusPaid
	} else {
		payment.Status = models.PaymentStatusLate
		payment.LateFee = models.MulBps(payment.Amount, loan.Terms.LateFeeRateBps)
	}
	charged := payment.Amount.Add(payment.LateFee)

	payment.PaidDate = &now
	loan.PaidAmount = loan.PaidAmount.Add(payment.Amount)
	loan.RemainingAmount = loan.RemainingAmount.Sub(payment.Amount)
	loan.NextPaymentDue, err = l.nextPendingDue(ctx, loan.ID, paymentID)
	if err != nil {
		return models.Payment{}, err
	}
	completed := loan.RemainingAmount.IsZero()
	if completed {
		loan.Status = models.LoanStatusCompleted
	}

	// Persist first: a storage failure aborts before any money has moved.
	if err := l.store.UpdateLoanWithPayment(ctx, loan, payment); err != nil {
		return models.Payment{}, errs.External(errs.CodeStorageUnavailable, err)
	}

	// The pool pulls the funds from the borrower. A settlement failure
	// writes the installment back to its previous state so a retry never
	// double-charges.
	if err := l.pool.RepayLoan(ctx, l.cap, loan.ID, loan.Borrower, charged, loan.RiskTier); err != nil {
		if rerr := l.store.UpdateLoanWithPayment(ctx, prevLoan, prevPayment); rerr != nil {
			l.log.Error("payment rollback failed",
				zap.String("payment_id", string(paymentID)), zap.Error(rerr))
		}
		return models.Payment{}, err
	}

	if err := l.risk.RecordPayment(ctx, l.cap, loan.Borrower, payment.Amount, onTime); err != nil {
		return models.Payment{}, err
	}
	if completed {
		if err := l.completeLocked(ctx, &loan); err != nil {
			return models.Payment{}, err
		}
	}

	l.emit(ctx, domevents.TopicPaymentMade, domevents.PaymentMade{
		PaymentID:  string(payment.ID),
		LoanID:     string(loan.ID),
		Amount:     payment.Amount,
		LateFee:    payment.LateFee,
		Status:     payment.Status.String(),
		OccurredAt: now,
	})
	if completed {
		l.emit(ctx, domevents.TopicLoanCompleted, domevents.LoanCompleted{
			LoanID:     string(loan.ID),
			Borrower:   string(loan.Borrower),
			TotalPaid:  loan.PaidAmount,
			OccurredAt: now,
		})
	}
	return payment, nil
}

// nextPendingDue finds the earliest still-pending installment, excluding the
// one being settled. Zero time means the schedule is exhausted.
func (l *Ledger) nextPendingDue(ctx context.Context, loanID models.LoanID, settling models.PaymentID) (time.Time, error) {
	schedule, err := l.store.ListPaymentsByLoan(ctx, loanID)
	if err != nil {
		return time.Time{}, errs.External(errs.CodeStorageUnavailable, err)
	}
	var next time.Time
	for _, p := range schedule {
		if p.ID == settling || p.Status != models.PaymentStatusPending {
			continue
		}
		if next.IsZero() || p.DueDate.Before(next) {
			next = p.DueDate
		}
	}
	return next, nil
}

// completeLocked releases collateral and rewards the borrower's profile once
// the final installment has settled. Caller holds l.mu.
func (l *Ledger) completeLocked(ctx context.Context, loan *models.Loan) error {
	if err := l.vault.Release(ctx, l.cap, loan.ID, loan.Borrower, loan.CollateralToken, loan.CollateralAmount); err != nil {
		return err
	}
	return l.risk.RecordLoanCompletion(ctx, l.cap, loan.Borrower, loan.Principal)
}

// ProcessAutoPayment attempts an installment on the borrower's behalf. Any
// failure, including insufficient balance, marks the payment MISSED rather
// than propagating; that conversion is the operation's contract.
func (l *Ledger) ProcessAutoPayment(ctx context.Context, paymentID models.PaymentID) (models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payment, err := l.store.GetPayment(ctx, paymentID)
	if err != nil {
		return models.Payment{}, l.storeErr(err, "payment %s", paymentID)
	}
	if payment.Status != models.PaymentStatusPending {
		return models.Payment{}, errs.Policy(errs.CodeWrongStatus, "payment %s is %s, not PENDING", paymentID, payment.Status)
	}
	loan, err := l.store.GetLoan(ctx, payment.LoanID)
	if err != nil {
		return models.Payment{}, l.storeErr(err, "loan %s", payment.LoanID)
	}

	paid, err := l.makePaymentLocked(ctx, loan.Borrower, paymentID)
	if err == nil {
		return paid, nil
	}
	return l.markMissedLocked(ctx, loan, payment, err.Error())
}

// markMissedLocked records a missed installment and defaults the loan once
// the missed-payment threshold is reached.
func (l *Ledger) markMissedLocked(ctx context.Context, loan models.Loan, payment models.Payment, reason string) (models.Payment, error) {
	payment.Status = models.PaymentStatusMissed
	if err := l.store.UpdatePayment(ctx, payment); err != nil {
		return models.Payment{}, errs.External(errs.CodeStorageUnavailable, err)
	}
	l.emit(ctx, domevents.TopicPaymentMissed, domevents.PaymentMissed{
		PaymentID:  string(payment.ID),
		LoanID:     string(loan.ID),
		Reason:     reason,
		OccurredAt: l.clk.Now(),
	})

	schedule, err := l.store.ListPaymentsByLoan(ctx, loan.ID)
	if err != nil {
		return payment, errs.External(errs.CodeStorageUnavailable, err)
	}
	missed := 0
	for _, p := range schedule {
		if p.Status == models.PaymentStatusMissed {
			missed++
		}
	}
	if missed >= missedPaymentsToDefault && loan.Status == models.LoanStatusActive {
		if err := l.defaultLocked(ctx, loan, fmt.Sprintf("%d payments missed", missed)); err != nil {
			return payment, err
		}
	}
	return payment, nil
}

// earliestUnsettledDue finds the oldest installment that has not been paid,
// counting MISSED ones. Zero time means every installment is settled.
func (l *Ledger) earliestUnsettledDue(ctx context.Context, loanID models.LoanID) (time.Time, error) {
	schedule, err := l.store.ListPaymentsByLoan(ctx, loanID)
	if err != nil {
		return time.Time{}, errs.External(errs.CodeStorageUnavailable, err)
	}
	var earliest time.Time
	for _, p := range schedule {
		if p.Status.Settled() {
			continue
		}
		if earliest.IsZero() || p.DueDate.Before(earliest) {
			earliest = p.DueDate
		}
	}
	return earliest, nil
}

// defaultLocked transitions an active loan to DEFAULTED.
func (l *Ledger) defaultLocked(ctx context.Context, loan models.Loan, reason string) error {
	loan.Status = models.LoanStatusDefaulted
	if err := l.store.UpdateLoan(ctx, loan); err != nil {
		return errs.External(errs.CodeStorageUnavailable, err)
	}
	l.emit(ctx, domevents.TopicLoanDefaulted, domevents.LoanDefaulted{
		LoanID:     string(loan.ID),
		Borrower:   string(loan.Borrower),
		Remaining:  loan.RemainingAmount,
		Reason:     reason,
		OccurredAt: l.clk.Now(),
	})
	return nil
}

// CheckForDefaults sweeps the given loans (or, with an empty list, every
// active loan) and defaults the ones whose oldest unpaid installment is past
// the default threshold. A MISSED installment counts as unpaid, so a loan
// cannot dodge the sweep by settling every other installment. One loan's
// failure never aborts the sweep for the rest.
func (l *Ledger) CheckForDefaults(ctx context.Context, loanIDs []models.LoanID) ([]models.LoanID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var loans []models.Loan
	if len(loanIDs) == 0 {
		var err error
		loans, err = l.store.ListLoansByStatus(ctx, models.LoanStatusActive)
		if err != nil {
			return nil, errs.External(errs.CodeStorageUnavailable, err)
		}
	} else {
		for _, id := range loanIDs {
			loan, err := l.store.GetLoan(ctx, id)
			if err != nil {
				l.log.Warn("default sweep skipped loan", zap.String("loan_id", string(id)), zap.Error(err))
				continue
			}
			loans = append(loans, loan)
		}
	}

	now := l.clk.Now()
	var defaulted []models.LoanID
	for _, loan := range loans {
		if loan.Status != models.LoanStatusActive {
			continue
		}
		due, err := l.earliestUnsettledDue(ctx, loan.ID)
		if err != nil {
			l.log.Warn("default sweep skipped loan", zap.String("loan_id", string(loan.ID)), zap.Error(err))
			continue
		}
		if due.IsZero() {
			continue
		}
		if now.After(due.Add(l.cfg.DefaultThreshold)) {
			if err := l.defaultLocked(ctx, loan, "payment overdue past default threshold"); err != nil {
				l.log.Warn("default sweep failed for loan", zap.String("loan_id", string(loan.ID)), zap.Error(err))
				continue
			}
			defaulted = append(defaulted, loan.ID)
		}
	}
	return defaulted, nil
}

// LiquidateLoan seizes a defaulted loan's collateral, reports the outcome to
// the pool and the risk engine, and closes the loan.
func (l *Ledger) LiquidateLoan(ctx context.Context, loanID models.LoanID) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	loan, err := l.store.GetLoan(ctx, loanID)
	if err != nil {
		return decimal.Zero, l.storeErr(err, "loan %s", loanID)
	}
	if loan.Status != models.LoanStatusDefaulted {
		return decimal.Zero, errs.Policy(errs.CodeWrongStatus, "loan %s is %s, not DEFAULTED", loanID, loan.Status)
	}

	recovered, err := l.vault.Liquidate(ctx, l.cap, loanID, loan.CollateralToken, loan.CollateralAmount)
	if err != nil {
		return decimal.Zero, err
	}

	outstanding := l.pool.Outstanding(loanID)
	loss := outstanding.Sub(recovered)
	if loss.IsNegative() {
		loss = decimal.Zero
	}
	if err := l.pool.HandleDefault(ctx, l.cap, loanID, loss, recovered); err != nil {
		return decimal.Zero, err
	}
	if err := l.risk.RecordDefault(ctx, l.cap, loan.Borrower, loan.RemainingAmount); err != nil {
		return decimal.Zero, err
	}

	loan.Status = models.LoanStatusLiquidated
	if err := l.store.UpdateLoan(ctx, loan); err != nil {
		return decimal.Zero, errs.External(errs.CodeStorageUnavailable, err)
	}

	l.emit(ctx, domevents.TopicLoanLiquidated, domevents.LoanLiquidated{
		LoanID:     string(loanID),
		Recovered:  recovered,
		Loss:       loss,
		OccurredAt: l.clk.Now(),
	})
	return recovered, nil
}

// GetLoan returns one loan.
func (l *Ledger) GetLoan(ctx context.Context, loanID models.LoanID) (models.Loan, error) {
	loan, err := l.store.GetLoan(ctx, loanID)
	if err != nil {
		return models.Loan{}, l.storeErr(err, "loan %s", loanID)
	}
	return loan, nil
}

// GetSchedule returns a loan's payment schedule ordered by due date.
func (l *Ledger) GetSchedule(ctx context.Context, loanID models.LoanID) ([]models.Payment, error) {
	schedule, err := l.store.ListPaymentsByLoan(ctx, loanID)
	if err != nil {
		return nil, errs.External(errs.CodeStorageUnavailable, err)
	}
	return schedule, nil
}

// ListLoansByBorrower returns every loan the borrower has taken.
func (l *Ledger) ListLoansByBorrower(ctx context.Context, borrower models.Address) ([]models.Loan, error) {
	loans, err := l.store.ListLoansByBorrower(ctx, borrower)
	if err != nil {
		return nil, errs.External(errs.CodeStorageUnavailable, err)
	}
	return loans, nil
}

// GetMerchant returns one merchant.
func (l *Ledger) GetMerchant(ctx context.Context, wallet models.Address) (models.Merchant, error) {
	merchant, err := l.store.GetMerchant(ctx, wallet)
	if err != nil {
		return models.Merchant{}, l.storeErr(err, "merchant %s", wallet)
	}
	return merchant, nil
}

func (l *Ledger) storeErr(err error, format string, args ...any) error {
	if errors.Is(err, storage.ErrNotFound) {
		return errs.Validation(errs.CodeUnknownEntity, format+" not found", args...)
	}
	return errs.External(errs.CodeStorageUnavailable, err)
}

func (l *Ledger) emit(ctx context.Context, topic string, event any) {
	if err := l.pub.Publish(ctx, topic, event); err != nil {
		l.log.Warn("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
