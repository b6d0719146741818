// Package pool holds lender capital, allocates it to risk tiers, accrues
// yield, funds loans and absorbs defaults.
//
// Yield has two sources. The tier APY accrues lazily per lender from elapsed
// time at every touch point. Interest actually collected on repayments is
// passed through with a per-tier reward index: the index is bumped by
// interest/tierLiquidity in O(1) on each repayment and a lender's share is
// materialized the next time their position is touched. Losses that the
// reserve fund cannot absorb are socialized the same way, through a
// pool-wide multiplicative loss factor applied to deposits at touch time,
// so no operation ever scans the full lender set.
package pool

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
	"github.com/credlink/lending-core/internal/settlement"
)

// Protocol defaults.
const (
	DefaultReserveRatioBps   = 200  // 2% of each deposit earmarked for the reserve fund
	DefaultMaxUtilizationBps = 9000 // at most 90% of liquidity may be loaned out

	secondsPerYear = 365 * 24 * 60 * 60
)

// Config carries the pool's protocol parameters.
type Config struct {
	ReserveRatioBps   int64
	MaxUtilizationBps int64
	TierAPYBps        map[models.Tier]int64
}

// DefaultConfig returns the stock pool parameters.
func DefaultConfig() Config {
	return Config{
		ReserveRatioBps:   DefaultReserveRatioBps,
		MaxUtilizationBps: DefaultMaxUtilizationBps,
		TierAPYBps: map[models.Tier]int64{
			models.TierLow:    500,
			models.TierMedium: 800,
			models.TierHigh:   1200,
		},
	}
}

// lenderState wraps a lender position with the index snapshots that make
// lazy settlement possible.
type lenderState struct {
	pos        models.LenderPosition
	yieldIndex decimal.Decimal // tier reward index at last settlement
	lossFactor decimal.Decimal // pool loss factor at last settlement
	counted    bool            // included in lenderCount
}

type tierState struct {
	apyBps     int64
	liquidity  decimal.Decimal
	yieldIndex decimal.Decimal // cumulative distributed yield per unit of liquidity
}

// Pool is the liquidity pool ledger. Fund movement goes through the pool's
// settlement treasury; the fund/repay/default entry points are ledger only.
type Pool struct {
	mu        sync.Mutex
	cfg       Config
	clk       clock.Clock
	pub       events.Publisher
	log       *zap.Logger
	ledgerCap auth.Capability
	treasury  *settlement.Treasury

	lenders     map[models.Address]*lenderState
	tiers       map[models.Tier]*tierState
	outstanding map[models.LoanID]decimal.Decimal
	borrowers   map[models.Address]bool

	lossFactor     decimal.Decimal
	totalLiquidity decimal.Decimal
	totalLoaned    decimal.Decimal
	totalYieldPaid decimal.Decimal
	totalDefaulted decimal.Decimal
	reserveFund    decimal.Decimal
	lenderCount    int
	borrowerCount  int
}

// NewPool builds a pool trusting ledgerCap for loan funding and settlement.
func NewPool(cfg Config, ledgerCap auth.Capability, treasury *settlement.Treasury, clk clock.Clock, pub events.Publisher, log *zap.Logger) *Pool {
	if cfg.TierAPYBps == nil {
		cfg = DefaultConfig()
	}
	tiers := make(map[models.Tier]*tierState, len(cfg.TierAPYBps))
	for tier, apy := range cfg.TierAPYBps {
		tiers[tier] = &tierState{
			apyBps:     apy,
			liquidity:  decimal.Zero,
			yieldIndex: decimal.Zero,
		}
	}
	return &Pool{
		cfg:            cfg,
		clk:            clk,
		pub:            pub,
		log:            log,
		ledgerCap:      ledgerCap,
		treasury:       treasury,
		lenders:        make(map[models.Address]*lenderState),
		tiers:          tiers,
		outstanding:    make(map[models.LoanID]decimal.Decimal),
		borrowers:      make(map[models.Address]bool),
		lossFactor:     decimal.NewFromInt(1),
		totalLiquidity: decimal.Zero,
		totalLoaned:    decimal.Zero,
		totalYieldPaid: decimal.Zero,
		totalDefaulted: decimal.Zero,
		reserveFund:    decimal.Zero,
	}
}

// Deposit adds lender capital to a tier. Pending yield is settled first; 2%
// of the deposit is earmarked for the reserve fund.
func (p *Pool) Deposit(ctx context.Context, lender models.Address, amount decimal.Decimal, tier models.Tier) error {
	if !amount.IsPositive() {
		return errs.Validation(errs.CodeInvalidAmount, "deposit amount must be positive")
	}
	if _, ok := p.cfg.TierAPYBps[tier]; !ok {
		return errs.Validation(errs.CodeUnknownEntity, "unknown risk tier %s", tier)
	}

	p.mu.Lock()
	ls := p.lenderLocked(lender, tier)
	if ls.pos.DepositedAmount.IsPositive() && ls.pos.RiskTier != tier {
		p.mu.Unlock()
		return errs.Policy(errs.CodeWrongStatus, "lender already holds a %s position", ls.pos.RiskTier)
	}
	// The transfer is the only fallible effect; it runs before any state
	// mutation so a failure aborts the deposit whole.
	if err := p.treasury.Pull(lender, amount); err != nil {
		p.mu.Unlock()
		return err
	}
	now := p.clk.Now()
	p.settleLocked(ls, now)
	p.applyDepositLocked(ls, amount, tier)
	p.mu.Unlock()

	p.emit(ctx, domevents.TopicDeposited, domevents.Deposited{
		Lender:     string(lender),
		Amount:     amount,
		Tier:       tier.String(),
		OccurredAt: now,
	})
	return nil
}

// applyDepositLocked credits a settled position. Caller holds p.mu.
func (p *Pool) applyDepositLocked(ls *lenderState, amount decimal.Decimal, tier models.Tier) {
	if ls.pos.RiskTier != tier {
		// Entering a different tier: start from its current index so
		// interest distributed before this deposit is never credited.
		ls.yieldIndex = p.tiers[tier].yieldIndex
	}
	ls.pos.DepositedAmount = ls.pos.DepositedAmount.Add(amount)
	ls.pos.RiskTier = tier
	p.tiers[tier].liquidity = p.tiers[tier].liquidity.Add(amount)
	p.totalLiquidity = p.totalLiquidity.Add(amount)
	p.reserveFund = p.reserveFund.Add(models.MulBps(amount, p.cfg.ReserveRatioBps))
	if !ls.counted {
		ls.counted = true
		p.lenderCount++
	}
}

// Withdraw returns principal to the lender, bounded by the unloaned share of
// pool liquidity.
func (p *Pool) Withdraw(ctx context.Context, lender models.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errs.Validation(errs.CodeInvalidAmount, "withdrawal amount must be positive")
	}

	p.mu.Lock()
	ls, ok := p.lenders[lender]
	if !ok {
		p.mu.Unlock()
		return errs.Validation(errs.CodeUnknownEntity, "no position for lender %s", lender)
	}
	now := p.clk.Now()
	p.settleLocked(ls, now)
	if amount.GreaterThan(ls.pos.DepositedAmount) {
		p.mu.Unlock()
		return errs.Policy(errs.CodeInsufficientFunds, "withdrawal exceeds deposited amount")
	}
	if amount.GreaterThan(p.totalLiquidity.Sub(p.totalLoaned)) {
		p.mu.Unlock()
		return errs.Policy(errs.CodeInsufficientFunds, "withdrawal exceeds unloaned liquidity")
	}
	if err := p.treasury.Transfer(lender, amount); err != nil {
		p.mu.Unlock()
		return err
	}
	ls.pos.DepositedAmount = ls.pos.DepositedAmount.Sub(amount)
	tier := p.tiers[ls.pos.RiskTier]
	tier.liquidity = tier.liquidity.Sub(amount)
	p.totalLiquidity = p.totalLiquidity.Sub(amount)
	if ls.pos.DepositedAmount.IsZero() && ls.counted {
		ls.counted = false
		p.lenderCount--
	}
	p.mu.Unlock()

	p.emit(ctx, domevents.TopicWithdrawn, domevents.Withdrawn{
		Lender:     string(lender),
		Amount:     amount,
		OccurredAt: now,
	})
	return nil
}

// ClaimYield pays out (or, with auto-reinvest, redeposits) everything the
// lender has accrued.
func (p *Pool) ClaimYield(ctx context.Context, lender models.Address) (decimal.Decimal, error) {
	p.mu.Lock()
	ls, ok := p.lenders[lender]
	if !ok {
		p.mu.Unlock()
		return decimal.Zero, errs.Validation(errs.CodeUnknownEntity, "no position for lender %s", lender)
	}
	now := p.clk.Now()
	p.settleLocked(ls, now)
	claimed := ls.pos.AccruedYield
	if !claimed.IsPositive() {
		p.mu.Unlock()
		return decimal.Zero, errs.Policy(errs.CodeNothingAccrued, "no yield accrued")
	}
	reinvested := ls.pos.AutoReinvest
	tier := ls.pos.RiskTier
	if reinvested {
		p.applyDepositLocked(ls, claimed, tier)
	} else if err := p.treasury.Transfer(lender, claimed); err != nil {
		p.mu.Unlock()
		return decimal.Zero, err
	}
	ls.pos.AccruedYield = decimal.Zero
	p.totalYieldPaid = p.totalYieldPaid.Add(claimed)
	p.mu.Unlock()

	p.emit(ctx, domevents.TopicYieldClaimed, domevents.YieldClaimed{
		Lender:     string(lender),
		Amount:     claimed,
		OccurredAt: now,
	})
	if reinvested {
		p.emit(ctx, domevents.TopicDeposited, domevents.Deposited{
			Lender:     string(lender),
			Amount:     claimed,
			Tier:       tier.String(),
			Reinvested: true,
			OccurredAt: now,
		})
	}
	return claimed, nil
}

// SetAutoReinvest flips the lender's reinvestment preference.
func (p *Pool) SetAutoReinvest(lender models.Address, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ls, ok := p.lenders[lender]
	if !ok {
		return errs.Validation(errs.CodeUnknownEntity, "no position for lender %s", lender)
	}
	ls.pos.AutoReinvest = enabled
	return nil
}

// FundLoan moves principal to the recipient, bounded by the utilization cap.
// Ledger only.
func (p *Pool) FundLoan(ctx context.Context, cap auth.Capability, loanID models.LoanID, borrower, recipient models.Address, amount decimal.Decimal, tier models.Tier) error {
	if !p.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "fundLoan requires the ledger capability")
	}
	if !amount.IsPositive() {
		return errs.Validation(errs.CodeInvalidAmount, "funding amount must be positive")
	}

	p.mu.Lock()
	if amount.GreaterThan(p.availableLocked()) {
		p.mu.Unlock()
		return errs.Policy(errs.CodeInsufficientFunds, "funding %s exceeds available liquidity", amount)
	}
	if err := p.treasury.Transfer(recipient, amount); err != nil {
		p.mu.Unlock()
		return err
	}
	p.totalLoaned = p.totalLoaned.Add(amount)
	p.outstanding[loanID] = amount
	if !p.borrowers[borrower] {
		p.borrowers[borrower] = true
		p.borrowerCount++
	}
	p.mu.Unlock()
	return nil
}

// ReverseFunding undoes a funding whose enclosing operation failed after the
// pool transfer. The recipient is debited back. Ledger only.
func (p *Pool) ReverseFunding(ctx context.Context, cap auth.Capability, loanID models.LoanID, recipient models.Address) error {
	if !p.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "reverseFunding requires the ledger capability")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	amount, ok := p.outstanding[loanID]
	if !ok {
		return errs.Policy(errs.CodeUnknownEntity, "loan %s has no outstanding funding", loanID)
	}
	if err := p.treasury.Pull(recipient, amount); err != nil {
		return err
	}
	p.totalLoaned = p.totalLoaned.Sub(amount)
	delete(p.outstanding, loanID)
	return nil
}

// RepayLoan receives a repayment from the payer. The principal portion
// returns to loanable liquidity; any excess is interest and is distributed
// to the tier's lenders through the reward index. Ledger only.
func (p *Pool) RepayLoan(ctx context.Context, cap auth.Capability, loanID models.LoanID, from models.Address, amount decimal.Decimal, tier models.Tier) error {
	if !p.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "repayLoan requires the ledger capability")
	}
	if !amount.IsPositive() {
		return errs.Validation(errs.CodeInvalidAmount, "repayment amount must be positive")
	}

	p.mu.Lock()
	out, ok := p.outstanding[loanID]
	if !ok {
		p.mu.Unlock()
		return errs.Policy(errs.CodeUnknownEntity, "loan %s is not funded by this pool", loanID)
	}
	if err := p.treasury.Pull(from, amount); err != nil {
		p.mu.Unlock()
		return err
	}
	principal := decimal.Min(amount, out)
	interest := amount.Sub(principal)
	out = out.Sub(principal)
	if out.IsZero() {
		delete(p.outstanding, loanID)
	} else {
		p.outstanding[loanID] = out
	}
	p.totalLoaned = p.totalLoaned.Sub(principal)

	distributed := decimal.Zero
	if interest.IsPositive() {
		ts := p.tiers[tier]
		if ts != nil && ts.liquidity.IsPositive() {
			ts.yieldIndex = ts.yieldIndex.Add(interest.Div(ts.liquidity))
			distributed = interest
		} else {
			// No lenders in the tier to pay; the interest strengthens
			// the reserve instead of vanishing.
			p.reserveFund = p.reserveFund.Add(interest)
		}
	}
	p.mu.Unlock()

	if distributed.IsPositive() {
		p.emit(ctx, domevents.TopicYieldDistributed, domevents.YieldDistributed{
			LoanID:     string(loanID),
			Tier:       tier.String(),
			Amount:     distributed,
			OccurredAt: p.clk.Now(),
		})
	}
	return nil
}

// Outstanding returns the funded principal still owed on a loan.
func (p *Pool) Outstanding(loanID models.LoanID) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding[loanID]
}

// HandleDefault absorbs a defaulted loan. The loss is applied to the reserve
// fund first; any shortfall is socialized across lenders through the loss
// factor. The recovered liquidation value replenishes the reserve.
// Ledger only.
func (p *Pool) HandleDefault(ctx context.Context, cap auth.Capability, loanID models.LoanID, lossAmount, recoveredAmount decimal.Decimal) error {
	if !p.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "handleDefault requires the ledger capability")
	}
	if lossAmount.IsNegative() || recoveredAmount.IsNegative() {
		return errs.Validation(errs.CodeInvalidAmount, "loss and recovery must not be negative")
	}

	p.mu.Lock()
	out, ok := p.outstanding[loanID]
	if !ok {
		p.mu.Unlock()
		return errs.Policy(errs.CodeUnknownEntity, "loan %s is not funded by this pool", loanID)
	}
	delete(p.outstanding, loanID)
	p.totalLoaned = p.totalLoaned.Sub(out)
	p.totalDefaulted = p.totalDefaulted.Add(lossAmount)

	fromReserve := decimal.Min(lossAmount, p.reserveFund)
	p.reserveFund = p.reserveFund.Sub(fromReserve)
	shortfall := lossAmount.Sub(fromReserve)
	if shortfall.IsPositive() && p.totalLiquidity.IsPositive() {
		shortfall = decimal.Min(shortfall, p.totalLiquidity)
		p.socializeLocked(shortfall)
	}
	p.reserveFund = p.reserveFund.Add(recoveredAmount)
	p.mu.Unlock()

	p.emit(ctx, domevents.TopicDefaultAbsorbed, domevents.DefaultAbsorbed{
		LoanID:      string(loanID),
		Loss:        lossAmount,
		FromReserve: fromReserve,
		Recovered:   recoveredAmount,
		OccurredAt:  p.clk.Now(),
	})
	if shortfall.IsPositive() {
		p.emit(ctx, domevents.TopicLossSocialized, domevents.LossSocialized{
			LoanID:     string(loanID),
			Shortfall:  shortfall,
			OccurredAt: p.clk.Now(),
		})
	}
	return nil
}

// socializeLocked spreads a shortfall across all deposits in O(tiers): pool
// and tier aggregates shrink now, individual positions catch up on their
// next touch through the loss factor. Caller holds p.mu and guarantees
// 0 < shortfall ≤ totalLiquidity.
func (p *Pool) socializeLocked(shortfall decimal.Decimal) {
	factor := p.totalLiquidity.Sub(shortfall).Div(p.totalLiquidity)
	p.lossFactor = p.lossFactor.Mul(factor)

	remaining := shortfall
	for _, tier := range []models.Tier{models.TierLow, models.TierMedium, models.TierHigh} {
		ts, ok := p.tiers[tier]
		if !ok || !ts.liquidity.IsPositive() {
			continue
		}
		share := decimal.Min(ts.liquidity.Mul(shortfall).Div(p.totalLiquidity).Floor(), remaining)
		share = decimal.Min(share, ts.liquidity)
		ts.liquidity = ts.liquidity.Sub(share)
		remaining = remaining.Sub(share)
	}
	// Rounding remainder lands on the largest tier that can bear it.
	if remaining.IsPositive() {
		for _, ts := range p.tiers {
			take := decimal.Min(remaining, ts.liquidity)
			ts.liquidity = ts.liquidity.Sub(take)
			remaining = remaining.Sub(take)
			if !remaining.IsPositive() {
				break
			}
		}
	}
	p.totalLiquidity = p.totalLiquidity.Sub(shortfall)
}

// lenderLocked returns (creating if absent) the lender's state. Caller holds
// p.mu.
func (p *Pool) lenderLocked(lender models.Address, tier models.Tier) *lenderState {
	ls, ok := p.lenders[lender]
	if !ok {
		ls = &lenderState{
			pos: models.LenderPosition{
				Lender:          lender,
				DepositedAmount: decimal.Zero,
				AccruedYield:    decimal.Zero,
				RiskTier:        tier,
			},
			yieldIndex: p.tiers[tier].yieldIndex,
			lossFactor: p.lossFactor,
		}
		p.lenders[lender] = ls
	}
	return ls
}

// settleLocked brings one position current: applies any pending socialized
// loss, then materializes reward-index yield and time-based APY yield.
// Caller holds p.mu.
func (p *Pool) settleLocked(ls *lenderState, now time.Time) {
	if !ls.lossFactor.Equal(p.lossFactor) {
		ls.pos.DepositedAmount = ls.pos.DepositedAmount.Mul(p.lossFactor).Div(ls.lossFactor).Floor()
		ls.lossFactor = p.lossFactor
	}

	ts := p.tiers[ls.pos.RiskTier]
	if ts != nil {
		delta := ts.yieldIndex.Sub(ls.yieldIndex)
		if delta.IsPositive() && ls.pos.DepositedAmount.IsPositive() {
			ls.pos.AccruedYield = ls.pos.AccruedYield.Add(ls.pos.DepositedAmount.Mul(delta).Floor())
		}
		ls.yieldIndex = ts.yieldIndex

		if !ls.pos.LastUpdateTime.IsZero() && ls.pos.DepositedAmount.IsPositive() {
			elapsed := int64(now.Sub(ls.pos.LastUpdateTime) / time.Second)
			if elapsed > 0 {
				accrued := ls.pos.DepositedAmount.
					Mul(decimal.NewFromInt(ts.apyBps)).
					Mul(decimal.NewFromInt(elapsed)).
					Div(decimal.NewFromInt(models.BasisPointsScale * secondsPerYear)).
					Floor()
				ls.pos.AccruedYield = ls.pos.AccruedYield.Add(accrued)
			}
		}
	}
	ls.pos.LastUpdateTime = now
}

// availableLocked is min(totalLiquidity × maxUtilization, totalLiquidity)
// − totalLoaned, floored at zero. Caller holds p.mu.
func (p *Pool) availableLocked() decimal.Decimal {
	capLiq := decimal.Min(models.MulBps(p.totalLiquidity, p.cfg.MaxUtilizationBps), p.totalLiquidity)
	avail := capLiq.Sub(p.totalLoaned)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// Available reports how much principal the pool can currently lend.
func (p *Pool) Available() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableLocked()
}

// Position returns the lender's position as it would look if settled now:
// pending socialized losses and yield are reflected without being written.
func (p *Pool) Position(lender models.Address) (models.LenderPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ls, ok := p.lenders[lender]
	if !ok {
		return models.LenderPosition{}, errs.Validation(errs.CodeUnknownEntity, "no position for lender %s", lender)
	}
	preview := *ls
	p.settleLocked(&preview, p.clk.Now())
	return preview.pos, nil
}

// State returns a snapshot of the pool's aggregate accounting.
func (p *Pool) State() models.PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	tierLiq := make(map[models.Tier]decimal.Decimal, len(p.tiers))
	tierAPY := make(map[models.Tier]int64, len(p.tiers))
	for tier, ts := range p.tiers {
		tierLiq[tier] = ts.liquidity
		tierAPY[tier] = ts.apyBps
	}
	return models.PoolState{
		TotalLiquidity: p.totalLiquidity,
		TotalLoaned:    p.totalLoaned,
		TotalYieldPaid: p.totalYieldPaid,
		TotalDefaulted: p.totalDefaulted,
		TierLiquidity:  tierLiq,
		TierAPYBps:     tierAPY,
		ReserveFund:    p.reserveFund,
		LenderCount:    p.lenderCount,
		BorrowerCount:  p.borrowerCount,
	}
}

// WeightedAverageAPYBps reports the liquidity-weighted mean APY across tiers
// with nonzero liquidity. Reporting only.
func (p *Pool) WeightedAverageAPYBps() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	weighted := decimal.Zero
	total := decimal.Zero
	for _, ts := range p.tiers {
		if ts.liquidity.IsPositive() {
			weighted = weighted.Add(ts.liquidity.Mul(decimal.NewFromInt(ts.apyBps)))
			total = total.Add(ts.liquidity)
		}
	}
	if !total.IsPositive() {
		return 0
	}
	return weighted.Div(total).Floor().IntPart()
}

func (p *Pool) emit(ctx context.Context, topic string, event any) {
	if err := p.pub.Publish(ctx, topic, event); err != nil {
		p.log.Warn("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
