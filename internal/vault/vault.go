// Package vault custodies per-loan collateral positions, values them through
// the injected price oracle, and liquidates them once the cure window has
// elapsed.
package vault

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
	"github.com/credlink/lending-core/internal/oracle"
)

// DefaultLiquidationDelay is the grace window after lock before a position
// may be liquidated, giving the borrower time to cure.
const DefaultLiquidationDelay = 48 * time.Hour

// Bounds on token configuration.
const (
	maxLiquidationBonusBps = 2000 // at most 20% liquidator incentive
	minLiquidationThresBps = models.BasisPointsScale
)

// TokenConfig is the admin-set risk profile of one collateral token.
type TokenConfig struct {
	Supported               bool
	Decimals                int32
	LiquidationThresholdBps int64
	LiquidationBonusBps     int64
	MaxLoanToValueBps       int64
	PriceSource             string
}

// Vault owns the collateral position arena, keyed by loan id.
type Vault struct {
	mu               sync.Mutex
	clk              clock.Clock
	prices           oracle.PriceOracle
	pub              events.Publisher
	log              *zap.Logger
	ledgerCap        auth.Capability
	adminCap         auth.Capability
	liquidationDelay time.Duration
	tokens           map[models.TokenID]TokenConfig
	positions        map[models.LoanID]*models.CollateralPosition
}

// NewVault builds a vault trusting ledgerCap for custody operations and
// adminCap for token configuration. A non-positive liquidationDelay falls
// back to the default 48h.
func NewVault(ledgerCap, adminCap auth.Capability, liquidationDelay time.Duration, prices oracle.PriceOracle, clk clock.Clock, pub events.Publisher, log *zap.Logger) *Vault {
	if liquidationDelay <= 0 {
		liquidationDelay = DefaultLiquidationDelay
	}
	return &Vault{
		clk:              clk,
		prices:           prices,
		pub:              pub,
		log:              log,
		ledgerCap:        ledgerCap,
		adminCap:         adminCap,
		liquidationDelay: liquidationDelay,
		tokens:           make(map[models.TokenID]TokenConfig),
		positions:        make(map[models.LoanID]*models.CollateralPosition),
	}
}

// ConfigureToken sets or replaces a token's risk profile. Admin only, never
// in the hot path.
func (v *Vault) ConfigureToken(cap auth.Capability, token models.TokenID, cfg TokenConfig) error {
	if !v.adminCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotAdmin, "token configuration requires the admin capability")
	}
	if cfg.LiquidationThresholdBps < minLiquidationThresBps {
		return errs.Validation(errs.CodeInvalidAmount, "liquidation threshold must be at least %d bps", minLiquidationThresBps)
	}
	if cfg.LiquidationBonusBps < 0 || cfg.LiquidationBonusBps > maxLiquidationBonusBps {
		return errs.Validation(errs.CodeInvalidAmount, "liquidation bonus must be within [0, %d] bps", maxLiquidationBonusBps)
	}
	if cfg.MaxLoanToValueBps <= 0 || cfg.MaxLoanToValueBps > models.BasisPointsScale {
		return errs.Validation(errs.CodeInvalidAmount, "max loan-to-value must be within (0, %d] bps", models.BasisPointsScale)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens[token] = cfg
	return nil
}

// Lock takes custody of collateral for a loan. Ledger only.
func (v *Vault) Lock(ctx context.Context, cap auth.Capability, owner models.Address, token models.TokenID, amount decimal.Decimal, loanID models.LoanID) error {
	if !v.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "lock requires the ledger capability")
	}
	if !amount.IsPositive() {
		return errs.Validation(errs.CodeInvalidAmount, "collateral amount must be positive")
	}

	v.mu.Lock()
	cfg, ok := v.tokens[token]
	if !ok || !cfg.Supported {
		v.mu.Unlock()
		return errs.Validation(errs.CodeUnsupportedToken, "token %s is not supported", token)
	}
	if pos, exists := v.positions[loanID]; exists && pos.IsLocked {
		v.mu.Unlock()
		return errs.Policy(errs.CodePositionExists, "loan %s already has locked collateral", loanID)
	}
	now := v.clk.Now()
	v.positions[loanID] = &models.CollateralPosition{
		Owner:    owner,
		Token:    token,
		Amount:   amount,
		LockedAt: now,
		LoanID:   loanID,
		IsLocked: true,
	}
	v.mu.Unlock()

	v.emit(ctx, domevents.TopicCollateralLocked, domevents.CollateralLocked{
		LoanID:     string(loanID),
		Owner:      string(owner),
		Token:      string(token),
		Amount:     amount,
		OccurredAt: now,
	})
	return nil
}

// Release returns collateral to its owner. Ledger only.
func (v *Vault) Release(ctx context.Context, cap auth.Capability, loanID models.LoanID, owner models.Address, token models.TokenID, amount decimal.Decimal) error {
	if !v.ledgerCap.Matches(cap) {
		return errs.Authorization(errs.CodeNotLedger, "release requires the ledger capability")
	}
	if !amount.IsPositive() {
		return errs.Validation(errs.CodeInvalidAmount, "release amount must be positive")
	}

	v.mu.Lock()
	pos, ok := v.positions[loanID]
	if !ok || !pos.IsLocked {
		v.mu.Unlock()
		return errs.Policy(errs.CodePositionMismatch, "loan %s has no locked collateral", loanID)
	}
	if pos.Owner != owner || pos.Token != token {
		v.mu.Unlock()
		return errs.Policy(errs.CodePositionMismatch, "owner or token does not match the position for loan %s", loanID)
	}
	if amount.GreaterThan(pos.Amount) {
		v.mu.Unlock()
		return errs.Policy(errs.CodePositionMismatch, "release amount exceeds locked collateral for loan %s", loanID)
	}
	pos.Amount = pos.Amount.Sub(amount)
	if pos.Amount.IsZero() {
		pos.IsLocked = false
	}
	v.mu.Unlock()

	v.emit(ctx, domevents.TopicCollateralReleased, domevents.CollateralReleased{
		LoanID:     string(loanID),
		Owner:      string(owner),
		Token:      string(token),
		Amount:     amount,
		OccurredAt: v.clk.Now(),
	})
	return nil
}

// Liquidate seizes collateral after the cure window and returns the
// recovered value including the liquidation bonus. Ledger only.
func (v *Vault) Liquidate(ctx context.Context, cap auth.Capability, loanID models.LoanID, token models.TokenID, amount decimal.Decimal) (decimal.Decimal, error) {
	if !v.ledgerCap.Matches(cap) {
		return decimal.Zero, errs.Authorization(errs.CodeNotLedger, "liquidate requires the ledger capability")
	}
	if !amount.IsPositive() {
		return decimal.Zero, errs.Validation(errs.CodeInvalidAmount, "liquidation amount must be positive")
	}

	v.mu.Lock()
	pos, ok := v.positions[loanID]
	if !ok || !pos.IsLocked {
		v.mu.Unlock()
		return decimal.Zero, errs.Policy(errs.CodePositionMismatch, "loan %s has no locked collateral", loanID)
	}
	if pos.Token != token {
		v.mu.Unlock()
		return decimal.Zero, errs.Policy(errs.CodePositionMismatch, "token does not match the position for loan %s", loanID)
	}
	if amount.GreaterThan(pos.Amount) {
		v.mu.Unlock()
		return decimal.Zero, errs.Policy(errs.CodePositionMismatch, "liquidation amount exceeds locked collateral for loan %s", loanID)
	}
	now := v.clk.Now()
	if now.Sub(pos.LockedAt) < v.liquidationDelay {
		v.mu.Unlock()
		return decimal.Zero, errs.Policy(errs.CodeLiquidationDelay, "cure window has not elapsed for loan %s", loanID)
	}
	cfg := v.tokens[token]
	value, err := v.valueLocked(token, amount)
	if err != nil {
		v.mu.Unlock()
		return decimal.Zero, err
	}
	recovered := models.MulBps(value, models.BasisPointsScale+cfg.LiquidationBonusBps)

	pos.Amount = pos.Amount.Sub(amount)
	if pos.Amount.IsZero() {
		pos.IsLocked = false
	}
	v.mu.Unlock()

	v.emit(ctx, domevents.TopicCollateralLiquidated, domevents.CollateralLiquidated{
		LoanID:     string(loanID),
		Token:      string(token),
		Amount:     amount,
		Recovered:  recovered,
		OccurredAt: now,
	})
	return recovered, nil
}

// CollateralValue prices amount of token in settlement units. A missing or
// zero price is an external failure, not a zero valuation.
func (v *Vault) CollateralValue(token models.TokenID, amount decimal.Decimal) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.valueLocked(token, amount)
}

// valueLocked prices amount of token. Caller holds v.mu.
func (v *Vault) valueLocked(token models.TokenID, amount decimal.Decimal) (decimal.Decimal, error) {
	cfg, ok := v.tokens[token]
	if !ok || !cfg.Supported {
		return decimal.Zero, errs.Validation(errs.CodeUnsupportedToken, "token %s is not supported", token)
	}
	price, err := v.prices.Price(token)
	if err != nil {
		return decimal.Zero, err
	}
	scale := decimal.New(1, cfg.Decimals)
	return amount.Mul(price).Div(scale).Floor(), nil
}

// CheckLiquidation reports whether the loan's collateral value has fallen
// below the liquidation threshold for its outstanding amount.
func (v *Vault) CheckLiquidation(loanID models.LoanID, outstanding decimal.Decimal) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[loanID]
	if !ok || !pos.IsLocked {
		return false, errs.Policy(errs.CodePositionMismatch, "loan %s has no locked collateral", loanID)
	}
	value, err := v.valueLocked(pos.Token, pos.Amount)
	if err != nil {
		return false, err
	}
	cfg := v.tokens[pos.Token]
	return value.LessThan(models.MulBps(outstanding, cfg.LiquidationThresholdBps)), nil
}

// Position returns a copy of the loan's collateral position.
func (v *Vault) Position(loanID models.LoanID) (models.CollateralPosition, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[loanID]
	if !ok {
		return models.CollateralPosition{}, errs.Validation(errs.CodeUnknownEntity, "no collateral position for loan %s", loanID)
	}
	return *pos, nil
}

// Token returns the configuration of a collateral token.
func (v *Vault) Token(token models.TokenID) (TokenConfig, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	cfg, ok := v.tokens[token]
	if !ok {
		return TokenConfig{}, errs.Validation(errs.CodeUnsupportedToken, "token %s is not configured", token)
	}
	return cfg, nil
}

func (v *Vault) emit(ctx context.Context, topic string, event any) {
	if err := v.pub.Publish(ctx, topic, event); err != nil {
		v.log.Warn("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}
