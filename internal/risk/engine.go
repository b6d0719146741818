// Package risk scores borrowers and gates loan approval. Scoring is
// deterministic from the borrower's recorded history plus the request's
// collateral ratio; all score inputs are stepped brackets so two identical
// requests from identical histories always produce the same result.
package risk

import (
	"context"
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
)

// Scoring constants.
const (
	baseScore            = 500
	onTimeScoreBonus     = 5
	completionScoreBonus = 25
	missedPenaltyStep    = 50
	defaultPenalty       = 200
	paymentBonusCap      = 50
)

// Tier thresholds.
const (
	lowTierMinScore    = 750
	mediumTierMinScore = 600
	highTierMinScore   = models.MinCreditScore
)

// Config carries the approval policy parameters.
type Config struct {
	TierMaxAmount         map[models.Tier]decimal.Decimal
	MinCollateralRatioBps int64
}

// DefaultConfig returns the protocol's stock approval policy.
func DefaultConfig() Config {
	return Config{
		TierMaxAmount: map[models.Tier]decimal.Decimal{
			models.TierLow:    decimal.NewFromInt(10000),
			models.TierMedium: decimal.NewFromInt(5000),
			models.TierHigh:   decimal.NewFromInt(1000),
		},
		MinCollateralRatioBps: 11000,
	}
}

// Engine owns the credit profile arena. Assessment is a read of the current
// profile; the record operations are invoked only by the loan ledger and are
// guarded by its capability.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	clk       clock.Clock
	pub       events.Publisher
	log       *zap.Logger
	ledgerCap auth.Capability
	profiles  map[models.Address]*models.CreditProfile
}

// NewEngine builds an engine trusting ledgerCap for recording operations.
func NewEngine(cfg Config, ledgerCap auth.Capability, clk clock.Clock, pub events.Publisher, log *zap.Logger) *Engine {
	if cfg.TierMaxAmount == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:       cfg,
		clk:       clk,
		pub:       pub,
		log:       log,
		ledgerCap: ledgerCap,
		profiles:  make(map[models.Address]*models.CreditProfile),
	}
}

func (e *Engine) profile(borrower models.Address) *models.CreditProfile {
	p, ok := e.profiles[borrower]
	if !ok {
		p = &models.CreditProfile{
			Borrower:      borrower,
			Score:         baseScore,
			TotalBorrowed: decimal.Zero,
			TotalRepaid:   decimal.Zero,
			CurrentDebt:   decimal.Zero,
		}
		e.profiles[borrower] = p
	}
	return p
}

// AssessRisk scores the request against the borrower's current profile and
// decides approval. Denial is expressed in the result, not as an error.
func (e *Engine) AssessRisk(ctx context.Context, borrower models.Address, requestedAmount, collateralAmount, collateralValue decimal.Decimal) (models.AssessmentResult, error) {
	if !requestedAmount.IsPositive() {
		return models.AssessmentResult{}, errs.Validation(errs.CodeInvalidAmount, "requested amount must be positive")
	}
	if collateralAmount.IsNegative() || collateralValue.IsNegative() {
		return models.AssessmentResult{}, errs.Validation(errs.CodeInvalidAmount, "collateral must not be negative")
	}

	e.mu.Lock()
	now := e.clk.Now()
	p := e.profile(borrower)
	score := e.computeScore(p, requestedAmount, collateralValue, now)
	tier := tierForScore(score)

	res := models.AssessmentResult{
		Score:              score,
		Tier:               tier,
		MaxLoanAmount:      e.cfg.TierMaxAmount[tier],
		RequiredCollateral: models.MulBps(requestedAmount, e.cfg.MinCollateralRatioBps),
		Approved:           true,
	}

	switch {
	case !tier.Fundable():
		res.Approved = false
		res.Reason = errs.CodeScoreTooLow
	case requestedAmount.GreaterThan(e.cfg.TierMaxAmount[tier]):
		res.Approved = false
		res.Reason = errs.CodeAmountExceedsTier
	case models.RatioBps(collateralValue, requestedAmount) < e.cfg.MinCollateralRatioBps:
		res.Approved = false
		res.Reason = errs.CodeInsufficientColl
	case p.CurrentDebt.IsPositive():
		// One active loan per borrower.
		res.Approved = false
		res.Reason = errs.CodeExistingDebt
	}

	p.Score = score
	p.LastAssessment = now
	e.mu.Unlock()

	e.emit(ctx, domevents.TopicCreditAssessed, domevents.CreditAssessed{
		Borrower:   string(borrower),
		Score:      score,
		Tier:       tier.String(),
		Requested:  requestedAmount,
		Approved:   res.Approved,
		Reason:     res.Reason,
		OccurredAt: now,
	})
	return res, nil
}

// computeScore applies the bracketed scoring model. Caller holds e.mu.
func (e *Engine) computeScore(p *models.CreditProfile, requested, collateralValue decimal.Decimal, now time.Time) int {
	score := baseScore
	score += activityBonus(p.SuccessfulPayments + p.MissedPayments)
	score += collateralRatioBonus(models.RatioBps(collateralValue, requested))
	score += walletAgeBonus(p.WalletAge, now)

	bonus := p.SuccessfulPayments * 2
	if bonus > paymentBonusCap {
		bonus = paymentBonusCap
	}
	score += bonus

	score -= p.MissedPayments * missedPenaltyStep
	if score < models.MinCreditScore {
		score = models.MinCreditScore
	}
	if p.HasDefaulted {
		score -= defaultPenalty
	}
	return clampScore(score)
}

// activityBonus rewards on-chain payment activity, 0-200.
func activityBonus(count int) int {
	switch {
	case count >= 100:
		return 200
	case count >= 50:
		return 150
	case count >= 20:
		return 100
	case count >= 5:
		return 50
	}
	return 0
}

// collateralRatioBonus rewards overcollateralization, 0-175.
func collateralRatioBonus(ratioBps int64) int {
	switch {
	case ratioBps >= 20000:
		return 175
	case ratioBps >= 17500:
		return 150
	case ratioBps >= 15000:
		return 125
	case ratioBps >= 12500:
		return 100
	case ratioBps >= 11000:
		return 50
	}
	return 0
}

// walletAgeBonus rewards account age, 0-125. A zero WalletAge means the
// borrower has never taken a loan and earns nothing here.
func walletAgeBonus(firstSeen, now time.Time) int {
	if firstSeen.IsZero() {
		return 0
	}
	age := now.Sub(firstSeen)
	day := 24 * time.Hour
	switch {
	case age >= 730*day:
		return 125
	case age >= 365*day:
		return 100
	case age >= 180*day:
		return 75
	case age >= 90*day:
		return 50
	case age >= 30*day:
		return 25
	}
	return 0
}

func tierForScore(score int) models.Tier {
	switch {
	case score >= lowTierMinScore:
		return models.TierLow
	case score >= mediumTierMinScore:
		return models.TierMedium
	case score >= highTierMinScore:
		return models.TierHigh
	}
	return models.TierDenied
}

func clampScore(score int) int {
	if score < models.MinCreditScore {
		return models.MinCreditScore
	}
	if score > models.MaxCreditScore {
		return models.MaxCreditScore
	}
	return score
}

// RecordLoan registers a newly created loan against the profile. Ledger only.
func (e *Engine) RecordLoan(ctx context.Context, cap auth.Capability, borrower models.Address, amount decimal.Decimal) error {
	if !e.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "recordLoan requires the ledger capability")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.profile(borrower)
	p.TotalBorrowed = p.TotalBorrowed.Add(amount)
	p.CurrentDebt = p.CurrentDebt.Add(amount)
	if p.WalletAge.IsZero() {
		p.WalletAge = e.clk.Now()
	}
	return nil
}

// RecordPayment registers an installment outcome. Ledger only.
func (e *Engine) RecordPayment(ctx context.Context, cap auth.Capability, borrower models.Address, amount decimal.Decimal, onTime bool) error {
	if !e.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "recordPayment requires the ledger capability")
	}
	e.mu.Lock()
	p := e.profile(borrower)
	p.TotalRepaid = p.TotalRepaid.Add(amount)
	if onTime {
		p.SuccessfulPayments++
		p.Score = clampScore(p.Score + onTimeScoreBonus)
	} else {
		p.MissedPayments++
		p.Score = clampScore(p.Score - p.MissedPayments*missedPenaltyStep)
	}
	newScore := p.Score
	e.mu.Unlock()

	e.emit(ctx, domevents.TopicPaymentRecorded, domevents.PaymentRecorded{
		Borrower:   string(borrower),
		Amount:     amount,
		OnTime:     onTime,
		NewScore:   newScore,
		OccurredAt: e.clk.Now(),
	})
	return nil
}

// RecordLoanCompletion clears the completed loan's debt and rewards the
// borrower. Ledger only.
func (e *Engine) RecordLoanCompletion(ctx context.Context, cap auth.Capability, borrower models.Address, amount decimal.Decimal) error {
	if !e.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "recordLoanCompletion requires the ledger capability")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.profile(borrower)
	p.CurrentDebt = p.CurrentDebt.Sub(amount)
	if p.CurrentDebt.IsNegative() {
		p.CurrentDebt = decimal.Zero
	}
	p.Score = clampScore(p.Score + completionScoreBonus)
	return nil
}

// RecordDefault writes off the borrower's debt and applies the default
// penalty. Ledger only.
func (e *Engine) RecordDefault(ctx context.Context, cap auth.Capability, borrower models.Address, amount decimal.Decimal) error {
	if !e.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "recordDefault requires the ledger capability")
	}
	e.mu.Lock()
	p := e.profile(borrower)
	p.HasDefaulted = true
	p.CurrentDebt = decimal.Zero
	p.Score = clampScore(p.Score - defaultPenalty)
	newScore := p.Score
	e.mu.Unlock()

	e.emit(ctx, domevents.TopicDefaultRecorded, domevents.DefaultRecorded{
		Borrower:   string(borrower),
		Amount:     amount,
		NewScore:   newScore,
		OccurredAt: e.clk.Now(),
	})
	return nil
}

// Profile returns a copy of the borrower's credit profile.
func (e *Engine) Profile(borrower models.Address) models.CreditProfile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.profile(borrower)
}

func (e *Engine) emit(ctx context.Context, topic string, event any) {
	if err := e.pub.Publish(ctx, topic, event); err != nil {
		e.log.Warn("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
