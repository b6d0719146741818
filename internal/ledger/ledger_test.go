package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/credlink/lending-core/internal/auth"
	"github.com/credlink/lending-core/internal/clock"
	"github.com/credlink/lending-core/internal/errs"
	"github.com/credlink/lending-core/internal/events"
	"github.com/credlink/lending-core/internal/models"
	domevents "github.com/credlink/lending-core/internal/models/events"
	"github.com/credlink/lending-core/internal/oracle"
	"github.com/credlink/lending-core/internal/pool"
	"github.com/credlink/lending-core/internal/risk"
	"github.com/credlink/lending-core/internal/settlement"
	"github.com/credlink/lending-core/internal/storage"
	"github.com/credlink/lending-core/internal/storage/memory"
	"github.com/credlink/lending-core/internal/vault"
)

const (
	testToken      = models.TokenID("WETH")
	testBorrower   = models.Address("borrower-1")
	testMerchant   = models.Address("merchant-1")
	testLender     = models.Address("lender-1")
	treasuryWallet = models.Address("pool-treasury")
)

var testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	ledger   *Ledger
	pool     *pool.Pool
	vault    *vault.Vault
	risk     *risk.Engine
	store    *memory.LoanStore
	asset    *settlement.MemoryAsset
	prices   *oracle.Static
	clk       *clock.Fake
	capture   *events.Capture
	ledgerCap auth.Capability
	adminCap  auth.Capability
}

// createTestLedger wires a full stack on in-memory collaborators: one funded
// lender, one active merchant and a single supported collateral token priced
// at par.
func createTestLedger(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewLoanStore(),
		asset:     settlement.NewMemoryAsset(),
		prices:    oracle.NewStatic(),
		clk:       clock.NewFake(testStart),
		capture:   &events.Capture{},
		ledgerCap: auth.NewCapability(),
		adminCap:  auth.NewCapability(),
	}
	ledgerCap := f.ledgerCap
	log := zap.NewNop()

	f.asset.Mint(testLender, dec(100000))
	f.asset.Mint(testBorrower, dec(20000))
	f.prices.SetPrice(testToken, dec(1))

	f.vault = vault.NewVault(ledgerCap, f.adminCap, 0, f.prices, f.clk, f.capture, log)
	require.NoError(t, f.vault.ConfigureToken(f.adminCap, testToken, vault.TokenConfig{
		Supported:               true,
		Decimals:                0,
		LiquidationThresholdBps: 12000,
		LiquidationBonusBps:     1000,
		MaxLoanToValueBps:       9000,
	}))

	treasury := settlement.NewTreasury(f.asset, treasuryWallet)
	f.pool = pool.NewPool(pool.DefaultConfig(), ledgerCap, treasury, f.clk, f.capture, log)
	require.NoError(t, f.pool.Deposit(context.Background(), testLender, dec(10000), models.TierMedium))

	f.risk = risk.NewEngine(risk.DefaultConfig(), ledgerCap, f.clk, f.capture, log)
	f.ledger = NewLedger(DefaultConfig(), f.store, f.risk, f.vault, f.pool, ledgerCap, f.adminCap, f.clk, f.capture, log)

	_, err := f.ledger.RegisterMerchant(context.Background(), f.adminCap, "Acme Store", testMerchant, 0)
	require.NoError(t, err)
	return f
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// createApprovedLoan opens the standard test loan: 1000 principal, 1500
// collateral, pay-in-4 terms.
func createApprovedLoan(t *testing.T, f *fixture) models.Loan {
	t.Helper()
	loan, err := f.ledger.CreateLoan(context.Background(), testBorrower, testMerchant, dec(1000), dec(1500), testToken, "pay-in-4")
	require.NoError(t, err)
	return loan
}

func fundedLoan(t *testing.T, f *fixture) (models.Loan, []models.Payment) {
	t.Helper()
	loan := createApprovedLoan(t, f)
	loan, err := f.ledger.FundLoan(context.Background(), loan.ID)
	require.NoError(t, err)
	schedule, err := f.ledger.GetSchedule(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, schedule, loan.Terms.Installments)
	return loan, schedule
}

// assertLoanInvariant checks paid + remaining always reconstructs the total.
func assertLoanInvariant(t *testing.T, f *fixture, loanID models.LoanID) {
	t.Helper()
	loan, err := f.ledger.GetLoan(context.Background(), loanID)
	require.NoError(t, err)
	assert.True(t, loan.PaidAmount.Add(loan.RemainingAmount).Equal(loan.TotalAmountDue))
}

func TestCreateLoan(t *testing.T) {
	f := createTestLedger(t)

	loan := createApprovedLoan(t, f)
	assert.Equal(t, models.LoanStatusApproved, loan.Status)
	assert.Equal(t, models.TierMedium, loan.RiskTier)
	assert.True(t, loan.TotalAmountDue.Equal(dec(1000)), "pay-in-4 carries no interest")
	assert.True(t, loan.RemainingAmount.Equal(dec(1000)))

	pos, err := f.vault.Position(loan.ID)
	require.NoError(t, err)
	assert.True(t, pos.IsLocked)
	assert.True(t, pos.Amount.Equal(dec(1500)))

	profile := f.risk.Profile(testBorrower)
	assert.True(t, profile.CurrentDebt.Equal(dec(1000)))
	assert.Len(t, f.capture.ByTopic(domevents.TopicLoanCreated), 1)
}

func TestCreateLoan_InterestBearingTemplate(t *testing.T) {
	f := createTestLedger(t)

	loan, err := f.ledger.CreateLoan(context.Background(), testBorrower, testMerchant, dec(1000), dec(1500), testToken, "monthly-3")
	require.NoError(t, err)
	assert.True(t, loan.TotalAmountDue.Equal(dec(1050)), "5%% interest, got %s", loan.TotalAmountDue)
}

func TestCreateLoan_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown merchant", func(t *testing.T) {
		f := createTestLedger(t)
		_, err := f.ledger.CreateLoan(ctx, testBorrower, "nobody", dec(1000), dec(1500), testToken, "pay-in-4")
		assert.ErrorIs(t, err, errs.ErrValidation)
		assert.Equal(t, errs.CodeUnknownEntity, errs.CodeOf(err))
	})

	t.Run("inactive merchant", func(t *testing.T) {
		f := createTestLedger(t)
		require.NoError(t, f.ledger.SetMerchantActive(ctx, f.adminCap, testMerchant, false))
		_, err := f.ledger.CreateLoan(ctx, testBorrower, testMerchant, dec(1000), dec(1500), testToken, "pay-in-4")
		assert.ErrorIs(t, err, errs.ErrPolicy)
		assert.Equal(t, errs.CodeMerchantInactive, errs.CodeOf(err))
	})

	t.Run("unknown template", func(t *testing.T) {
		f := createTestLedger(t)
		_, err := f.ledger.CreateLoan(ctx, testBorrower, testMerchant, dec(1000), dec(1500), testToken, "weekly-99")
		assert.ErrorIs(t, err, errs.ErrValidation)
		assert.Equal(t, errs.CodeUnknownTemplate, errs.CodeOf(err))
	})

	t.Run("insufficient collateral", func(t *testing.T) {
		f := createTestLedger(t)
		_, err := f.ledger.CreateLoan(ctx, testBorrower, testMerchant, dec(1000), dec(1000), testToken, "pay-in-4")
		assert.ErrorIs(t, err, errs.ErrPolicy)
		assert.Equal(t, errs.CodeInsufficientColl, errs.CodeOf(err))

		// A denied request locks nothing.
		_, perr := f.vault.Position(models.NewLoanID())
		assert.Error(t, perr)
	})

	t.Run("one active loan per borrower", func(t *testing.T) {
		f := createTestLedger(t)
		createApprovedLoan(t, f)
		_, err := f.ledger.CreateLoan(ctx, testBorrower, testMerchant, dec(1000), dec(1500), testToken, "pay-in-4")
		assert.ErrorIs(t, err, errs.ErrPolicy)
		assert.Equal(t, errs.CodeExistingDebt, errs.CodeOf(err))
	})
}

func TestFundLoan(t *testing.T) {
	f := createTestLedger(t)
	loan, schedule := fundedLoan(t, f)

	assert.Equal(t, models.LoanStatusActive, loan.Status)
	assert.Equal(t, testStart.Add(14*24*time.Hour), loan.NextPaymentDue)
	assert.True(t, f.asset.BalanceOf(testMerchant).Equal(dec(1000)))
	assert.True(t, f.pool.Outstanding(loan.ID).Equal(dec(1000)))

	// Four equal installments, due one interval apart.
	for i, p := range schedule {
		assert.True(t, p.Amount.Equal(dec(250)), "installment %d got %s", i, p.Amount)
		assert.Equal(t, testStart.Add(time.Duration(i+1)*14*24*time.Hour), p.DueDate)
		assert.Equal(t, models.PaymentStatusPending, p.Status)
	}

	merchant, err := f.ledger.GetMerchant(context.Background(), testMerchant)
	require.NoError(t, err)
	assert.EqualValues(t, 1, merchant.TotalOrders)
	assert.True(t, merchant.TotalVolume.Equal(dec(1000)))

	_, err = f.ledger.FundLoan(context.Background(), loan.ID)
	assert.ErrorIs(t, err, errs.ErrPolicy, "double funding is refused")
	assert.Equal(t, errs.CodeWrongStatus, errs.CodeOf(err))
}

func TestFundLoan_ScheduleRemainder(t *testing.T) {
	f := createTestLedger(t)
	loan, err := f.ledger.CreateLoan(context.Background(), testBorrower, testMerchant, dec(1000), dec(1500), testToken, "monthly-3")
	require.NoError(t, err)
	_, err = f.ledger.FundLoan(context.Background(), loan.ID)
	require.NoError(t, err)

	schedule, err := f.ledger.GetSchedule(context.Background(), loan.ID)
	require.NoError(t, err)
	require.Len(t, schedule, 3)

	// 1050 over 3: two of 350... floor keeps them equal here, so force the
	// check through the sum instead of per-installment amounts.
	sum := decimal.Zero
	for _, p := range schedule {
		sum = sum.Add(p.Amount)
	}
	assert.True(t, sum.Equal(dec(1050)), "schedule must sum to the total due, got %s", sum)
	assert.True(t, schedule[2].Amount.GreaterThanOrEqual(schedule[0].Amount), "last installment absorbs the remainder")
}

func TestFundLoan_InsufficientLiquidity(t *testing.T) {
	f := createTestLedger(t)
	ctx := context.Background()

	// Two whales drain the 9000 of loanable liquidity down to 500.
	for _, w := range []struct {
		borrower   models.Address
		principal  int64
		collateral int64
	}{
		{"whale-1", 5000, 7500},
		{"whale-2", 3500, 5250},
	} {
		big, err := f.ledger.CreateLoan(ctx, w.borrower, testMerchant, dec(w.principal), dec(w.collateral), testToken, "pay-in-4")
		require.NoError(t, err)
		_, err = f.ledger.FundLoan(ctx, big.ID)
		require.NoError(t, err)
	}

	loan := createApprovedLoan(t, f)
	_, err := f.ledger.FundLoan(ctx, loan.ID)
	assert.ErrorIs(t, err, errs.ErrPolicy)
	assert.Equal(t, errs.CodeInsufficientFunds, errs.CodeOf(err))

	got, gerr := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.LoanStatusApproved, got.Status, "failed funding leaves the loan APPROVED")
}

func TestMakePayment_OnTime(t *testing.T) {
	f := createTestLedger(t)
	loan, schedule := fundedLoan(t, f)
	ctx := context.Background()

	f.clk.Advance(13 * 24 * time.Hour)
	paid, err := f.ledger.MakePayment(ctx, testBorrower, schedule[0].ID)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPaid, paid.Status)
	assert.True(t, paid.LateFee.IsZero())
	require.NotNil(t, paid.PaidDate)
	assert.True(t, f.asset.BalanceOf(testBorrower).Equal(dec(19750)))

	got, err := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(dec(250)))
	assert.True(t, got.RemainingAmount.Equal(dec(750)))
	assert.Equal(t, testStart.Add(28*24*time.Hour), got.NextPaymentDue)
	assertLoanInvariant(t, f, loan.ID)

	assert.Equal(t, 1, f.risk.Profile(testBorrower).SuccessfulPayments)
}

func TestMakePayment_GraceBoundary(t *testing.T) {
	f := createTestLedger(t)
	_, schedule := fundedLoan(t, f)
	ctx := context.Background()

	// Exactly at due date + grace period is still on time.
	f.clk.Advance(16 * 24 * time.Hour)
	paid, err := f.ledger.MakePayment(ctx, testBorrower, schedule[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.Status)

	// One second past the second installment's grace period is late.
	f.clk.Advance(14*24*time.Hour + time.Second)
	paid, err = f.ledger.MakePayment(ctx, testBorrower, schedule[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusLate, paid.Status)
}

func TestMakePayment_LateFee(t *testing.T) {
	f := createTestLedger(t)
	loan, schedule := fundedLoan(t, f)
	ctx := context.Background()

	// Three days past due, one past the grace window.
	f.clk.Advance(17 * 24 * time.Hour)
	paid, err := f.ledger.MakePayment(ctx, testBorrower, schedule[0].ID)
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusLate, paid.Status)
	assert.True(t, paid.LateFee.Equal(dec(6)), "2.5%% of 250 floored, got %s", paid.LateFee)
	assert.True(t, f.asset.BalanceOf(testBorrower).Equal(dec(19744)), "amount plus fee debited")

	// The fee does not count toward the scheduled total.
	got, err := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(dec(250)))
	assert.True(t, got.RemainingAmount.Equal(dec(750)))
	assertLoanInvariant(t, f, loan.ID)

	assert.Equal(t, 1, f.risk.Profile(testBorrower).MissedPayments, "late counts against the score")
}

func TestMakePayment_Guards(t *testing.T) {
	f := createTestLedger(t)
	_, schedule := fundedLoan(t, f)
	ctx := context.Background()

	_, err := f.ledger.MakePayment(ctx, "intruder", schedule[0].ID)
	assert.ErrorIs(t, err, errs.ErrAuthorization)
	assert.Equal(t, errs.CodeNotBorrower, errs.CodeOf(err))

	_, err = f.ledger.MakePayment(ctx, testBorrower, schedule[0].ID)
	require.NoError(t, err)
	_, err = f.ledger.MakePayment(ctx, testBorrower, schedule[0].ID)
	assert.ErrorIs(t, err, errs.ErrPolicy, "settling the same installment twice")
	assert.Equal(t, errs.CodeWrongStatus, errs.CodeOf(err))

	_, err = f.ledger.MakePayment(ctx, testBorrower, models.NewPaymentID())
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, errs.CodeUnknownEntity, errs.CodeOf(err))
}

func TestMakePayment_SettlementFailureLeavesNoTrace(t *testing.T) {
	f := createTestLedger(t)
	loan, schedule := fundedLoan(t, f)
	ctx := context.Background()

	f.asset.FailWith(assert.AnError)
	_, err := f.ledger.MakePayment(ctx, testBorrower, schedule[0].ID)
	assert.ErrorIs(t, err, errs.ErrExternal)
	f.asset.FailWith(nil)

	got, err := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())
	payment, err := f.store.GetPayment(ctx, schedule[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
}

// flakyStore fails a configured number of UpdateLoanWithPayment calls before
// delegating to the wrapped store.
type flakyStore struct {
	storage.LoanStore
	failUpdates int
}

func (s *flakyStore) UpdateLoanWithPayment(ctx context.Context, loan models.Loan, payment models.Payment) error {
	if s.failUpdates > 0 {
		s.failUpdates--
		return assert.AnError
	}
	return s.LoanStore.UpdateLoanWithPayment(ctx, loan, payment)
}

func TestMakePayment_StoreFailureDoesNotCharge(t *testing.T) {
	f := createTestLedger(t)
	loan, schedule := fundedLoan(t, f)
	ctx := context.Background()

	flaky := &flakyStore{LoanStore: f.store, failUpdates: 1}
	flakyLedger := NewLedger(DefaultConfig(), flaky, f.risk, f.vault, f.pool, f.ledgerCap, f.adminCap, f.clk, f.capture, zap.NewNop())

	_, err := flakyLedger.MakePayment(ctx, testBorrower, schedule[0].ID)
	assert.ErrorIs(t, err, errs.ErrExternal)

	// Nothing moved: no charge, no status change, no loan progress.
	assert.True(t, f.asset.BalanceOf(testBorrower).Equal(dec(20000)))
	payment, err := f.store.GetPayment(ctx, schedule[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	got, err := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.IsZero())

	// The retry charges exactly once.
	paid, err := flakyLedger.MakePayment(ctx, testBorrower, schedule[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.Status)
	assert.True(t, f.asset.BalanceOf(testBorrower).Equal(dec(19750)))
	assertLoanInvariant(t, f, loan.ID)
}

func TestLoanCompletion(t *testing.T) {
	f := createTestLedger(t)
	loan, schedule := fundedLoan(t, f)
	ctx := context.Background()

	for _, p := range schedule {
		f.clk.Set(p.DueDate.Add(-time.Hour))
		_, err := f.ledger.MakePayment(ctx, testBorrower, p.ID)
		require.NoError(t, err)
		assertLoanInvariant(t, f, loan.ID)
	}

	got, err := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusCompleted, got.Status)
	assert.True(t, got.RemainingAmount.IsZero())
	assert.True(t, got.NextPaymentDue.IsZero())

	pos, err := f.vault.Position(loan.ID)
	require.NoError(t, err)
	assert.False(t, pos.IsLocked, "completion returns the collateral")

	profile := f.risk.Profile(testBorrower)
	assert.True(t, profile.CurrentDebt.IsZero())
	assert.Equal(t, 4, profile.SuccessfulPayments)
	assert.Equal(t, 670, profile.Score)

	assert.True(t, f.pool.Outstanding(loan.ID).IsZero())
	assert.True(t, f.pool.State().TotalLoaned.IsZero())
	assert.Len(t, f.capture.ByTopic(domevents.TopicLoanCompleted), 1)
}

func TestProcessAutoPayment(t *testing.T) {
	f := createTestLedger(t)
	_, schedule := fundedLoan(t, f)
	ctx := context.Background()

	f.clk.Advance(14 * 24 * time.Hour)
	paid, err := f.ledger.ProcessAutoPayment(ctx, schedule[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.Status)
}

func TestProcessAutoPayment_TwoMissedDefaultsTheLoan(t *testing.T) {
	f := createTestLedger(t)
	loan, schedule := fundedLoan(t, f)
	ctx := context.Background()

	// Settlement is down: the first missed installment does not default.
	f.asset.FailWith(assert.AnError)
	missed, err := f.ledger.ProcessAutoPayment(ctx, schedule[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusMissed, missed.Status)

	got, err := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusActive, got.Status)

	// The second one crosses the threshold.
	missed, err = f.ledger.ProcessAutoPayment(ctx, schedule[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusMissed, missed.Status)

	got, err = f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusDefaulted, got.Status)
	assert.Len(t, f.capture.ByTopic(domevents.TopicPaymentMissed), 2)
	assert.Len(t, f.capture.ByTopic(domevents.TopicLoanDefaulted), 1)
}

func TestCheckForDefaults(t *testing.T) {
	f := createTestLedger(t)
	loan, _ := fundedLoan(t, f)
	ctx := context.Background()

	// Inside the threshold nothing happens.
	f.clk.Advance(30 * 24 * time.Hour)
	defaulted, err := f.ledger.CheckForDefaults(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, defaulted)

	// First installment due at day 14, threshold 30 days: day 45 is past it.
	f.clk.Advance(15 * 24 * time.Hour)
	defaulted, err = f.ledger.CheckForDefaults(ctx, nil)
	require.NoError(t, err)
	require.Len(t, defaulted, 1)
	assert.Equal(t, loan.ID, defaulted[0])

	got, err := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusDefaulted, got.Status)

	// A second sweep finds nothing new.
	defaulted, err = f.ledger.CheckForDefaults(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, defaulted)
}

func TestCheckForDefaults_MissedInstallmentCountsAsUnpaid(t *testing.T) {
	f := createTestLedger(t)
	loan, schedule := fundedLoan(t, f)
	ctx := context.Background()

	// The first installment is missed while settlement is down; the rest
	// are paid on time, leaving no pending installments behind.
	f.clk.Advance(14 * 24 * time.Hour)
	f.asset.FailWith(assert.AnError)
	missed, err := f.ledger.ProcessAutoPayment(ctx, schedule[0].ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusMissed, missed.Status)
	f.asset.FailWith(nil)

	for _, p := range schedule[1:] {
		f.clk.Set(p.DueDate.Add(-time.Hour))
		_, perr := f.ledger.MakePayment(ctx, testBorrower, p.ID)
		require.NoError(t, perr)
	}

	got, err := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.Equal(t, models.LoanStatusActive, got.Status)
	assert.True(t, got.RemainingAmount.Equal(dec(250)))
	assert.True(t, got.NextPaymentDue.IsZero())

	// Day 56: the missed installment is well past due date + threshold.
	f.clk.Advance(2 * time.Hour)
	defaulted, err := f.ledger.CheckForDefaults(ctx, nil)
	require.NoError(t, err)
	require.Len(t, defaulted, 1)
	assert.Equal(t, loan.ID, defaulted[0])

	got, err = f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusDefaulted, got.Status)
}

func TestLiquidateLoan(t *testing.T) {
	f := createTestLedger(t)
	loan, _ := fundedLoan(t, f)
	ctx := context.Background()

	_, err := f.ledger.LiquidateLoan(ctx, loan.ID)
	assert.ErrorIs(t, err, errs.ErrPolicy, "only DEFAULTED loans liquidate")

	f.clk.Advance(45 * 24 * time.Hour)
	_, err = f.ledger.CheckForDefaults(ctx, nil)
	require.NoError(t, err)

	// 1500 collateral at par plus the 10% bonus covers the 1000 outstanding.
	recovered, err := f.ledger.LiquidateLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, recovered.Equal(dec(1650)), "got %s", recovered)

	got, err := f.ledger.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusLiquidated, got.Status)

	pos, err := f.vault.Position(loan.ID)
	require.NoError(t, err)
	assert.False(t, pos.IsLocked)

	profile := f.risk.Profile(testBorrower)
	assert.True(t, profile.HasDefaulted)
	assert.True(t, profile.CurrentDebt.IsZero())

	state := f.pool.State()
	assert.True(t, state.TotalLoaned.IsZero())
	assert.True(t, state.TotalLiquidity.Equal(dec(10000)), "full recovery, no haircut")
	assert.True(t, state.ReserveFund.Equal(dec(1850)), "recovery lands in the reserve")
}

func TestLiquidateLoan_WithShortfall(t *testing.T) {
	f := createTestLedger(t)
	loan, _ := fundedLoan(t, f)
	ctx := context.Background()

	f.clk.Advance(45 * 24 * time.Hour)
	_, err := f.ledger.CheckForDefaults(ctx, nil)
	require.NoError(t, err)

	// Collateral halves before the liquidation lands: 1500 × 0.5 × 1.1 = 825
	// recovered against 1000 outstanding.
	f.prices.SetPrice(testToken, decimal.RequireFromString("0.5"))
	recovered, err := f.ledger.LiquidateLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, recovered.Equal(dec(825)), "got %s", recovered)

	// Loss 175: reserve absorbs its 200 first, nothing is socialized.
	state := f.pool.State()
	assert.True(t, state.TotalLiquidity.Equal(dec(10000)))
	assert.True(t, state.ReserveFund.Equal(dec(850)), "200 - 175 + 825")
	assert.True(t, state.TotalDefaulted.Equal(dec(175)))
	assert.Empty(t, f.capture.ByTopic(domevents.TopicLossSocialized))
}

func TestLiquidateLoan_ShortfallSocialized(t *testing.T) {
	f := createTestLedger(t)
	loan, _ := fundedLoan(t, f)
	ctx := context.Background()

	f.clk.Advance(45 * 24 * time.Hour)
	_, err := f.ledger.CheckForDefaults(ctx, nil)
	require.NoError(t, err)

	// Collateral collapses to a fifth: 1500 × 0.2 × 1.1 = 330 recovered,
	// loss 670 of which 470 outlives the reserve and hits the lenders.
	f.prices.SetPrice(testToken, decimal.RequireFromString("0.2"))
	recovered, err := f.ledger.LiquidateLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, recovered.Equal(dec(330)), "got %s", recovered)

	state := f.pool.State()
	assert.True(t, state.TotalLiquidity.Equal(dec(9530)))
	assert.True(t, state.ReserveFund.Equal(dec(330)))

	pos, err := f.pool.Position(testLender)
	require.NoError(t, err)
	assert.True(t, pos.DepositedAmount.Equal(dec(9530)), "haircut reached the lender")
	assert.Len(t, f.capture.ByTopic(domevents.TopicLossSocialized), 1)
}

func TestRegisterMerchant(t *testing.T) {
	f := createTestLedger(t)
	ctx := context.Background()

	_, err := f.ledger.RegisterMerchant(ctx, f.adminCap, "Acme Store", testMerchant, 0)
	assert.ErrorIs(t, err, errs.ErrPolicy, "duplicate wallet")

	_, err = f.ledger.RegisterMerchant(ctx, auth.NewCapability(), "Shady", "shady-wallet", 0)
	assert.ErrorIs(t, err, errs.ErrAuthorization)

	_, err = f.ledger.RegisterMerchant(ctx, f.adminCap, "", "empty-name", 0)
	assert.ErrorIs(t, err, errs.ErrValidation)

	err = f.ledger.SetMerchantActive(ctx, f.adminCap, "nobody", false)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, errs.CodeUnknownEntity, errs.CodeOf(err))
}

func TestListLoansByBorrower(t *testing.T) {
	f := createTestLedger(t)
	loan, _ := fundedLoan(t, f)

	loans, err := f.ledger.ListLoansByBorrower(context.Background(), testBorrower)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, loan.ID, loans[0].ID)

	loans, err = f.ledger.ListLoansByBorrower(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, loans)
}
