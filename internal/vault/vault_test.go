package vault

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
	"github.com/credlink/lending-core/internal/oracle"
)

const testToken = models.TokenID("WETH")

var testStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type vaultFixture struct {
	vault     *Vault
	prices    *oracle.Static
	clk       *clock.Fake
	ledgerCap auth.Capability
	adminCap  auth.Capability
}

func createTestVault(t *testing.T) *vaultFixture {
	t.Helper()
	f := &vaultFixture{
		prices:    oracle.NewStatic(),
		clk:       clock.NewFake(testStart),
		ledgerCap: auth.NewCapability(),
		adminCap:  auth.NewCapability(),
	}
	f.vault = NewVault(f.ledgerCap, f.adminCap, 0, f.prices, f.clk, events.Nop{}, zap.NewNop())
	f.prices.SetPrice(testToken, decimal.NewFromInt(2000))
	require.NoError(t, f.vault.ConfigureToken(f.adminCap, testToken, TokenConfig{
		Supported:               true,
		Decimals:                2,
		LiquidationThresholdBps: 12000,
		LiquidationBonusBps:     1000,
		MaxLoanToValueBps:       9000,
	}))
	return f
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestConfigureToken_Validation(t *testing.T) {
	f := createTestVault(t)

	tests := []struct {
		name string
		cfg  TokenConfig
	}{
		{"threshold below 100%", TokenConfig{Supported: true, LiquidationThresholdBps: 9000, MaxLoanToValueBps: 8000}},
		{"bonus above 20%", TokenConfig{Supported: true, LiquidationThresholdBps: 12000, LiquidationBonusBps: 2500, MaxLoanToValueBps: 8000}},
		{"negative bonus", TokenConfig{Supported: true, LiquidationThresholdBps: 12000, LiquidationBonusBps: -1, MaxLoanToValueBps: 8000}},
		{"zero max LTV", TokenConfig{Supported: true, LiquidationThresholdBps: 12000, MaxLoanToValueBps: 0}},
		{"max LTV above 100%", TokenConfig{Supported: true, LiquidationThresholdBps: 12000, MaxLoanToValueBps: 10500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.vault.ConfigureToken(f.adminCap, "BAD", tt.cfg)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}

	err := f.vault.ConfigureToken(f.ledgerCap, "BAD", TokenConfig{Supported: true, LiquidationThresholdBps: 12000, MaxLoanToValueBps: 8000})
	assert.ErrorIs(t, err, errs.ErrAuthorization, "ledger capability must not configure tokens")
}

func TestCollateralValue(t *testing.T) {
	f := createTestVault(t)

	// 150 token base units at price 2000 with 2 decimals: 150*2000/100 = 3000.
	value, err := f.vault.CollateralValue(testToken, dec(150))
	require.NoError(t, err)
	assert.True(t, value.Equal(dec(3000)), "got %s", value)

	_, err = f.vault.CollateralValue("UNKNOWN", dec(100))
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, errs.CodeUnsupportedToken, errs.CodeOf(err))
}

func TestCollateralValue_PriceUnavailable(t *testing.T) {
	f := createTestVault(t)
	f.prices.SetPrice(testToken, decimal.Zero)

	_, err := f.vault.CollateralValue(testToken, dec(100))
	assert.ErrorIs(t, err, errs.ErrExternal)
	assert.Equal(t, errs.CodePriceUnavailable, errs.CodeOf(err))
}

func TestLockAndRelease(t *testing.T) {
	f := createTestVault(t)
	ctx := context.Background()
	loanID := models.NewLoanID()

	require.NoError(t, f.vault.Lock(ctx, f.ledgerCap, "borrower-1", testToken, dec(150), loanID))

	pos, err := f.vault.Position(loanID)
	require.NoError(t, err)
	assert.True(t, pos.IsLocked)
	assert.True(t, pos.Amount.Equal(dec(150)))
	assert.Equal(t, testStart, pos.LockedAt)

	// Double lock on the same loan is refused while the position is live.
	err = f.vault.Lock(ctx, f.ledgerCap, "borrower-1", testToken, dec(10), loanID)
	assert.ErrorIs(t, err, errs.ErrPolicy)
	assert.Equal(t, errs.CodePositionExists, errs.CodeOf(err))

	require.NoError(t, f.vault.Release(ctx, f.ledgerCap, loanID, "borrower-1", testToken, dec(150)))
	pos, err = f.vault.Position(loanID)
	require.NoError(t, err)
	assert.False(t, pos.IsLocked)
	assert.True(t, pos.Amount.IsZero())

	// A fully released position may be locked again for a reused loan id.
	assert.NoError(t, f.vault.Lock(ctx, f.ledgerCap, "borrower-1", testToken, dec(20), loanID))
}

func TestRelease_Mismatches(t *testing.T) {
	f := createTestVault(t)
	ctx := context.Background()
	loanID := models.NewLoanID()
	require.NoError(t, f.vault.Lock(ctx, f.ledgerCap, "borrower-1", testToken, dec(150), loanID))

	tests := []struct {
		name   string
		owner  models.Address
		token  models.TokenID
		amount decimal.Decimal
	}{
		{"wrong owner", "intruder", testToken, dec(150)},
		{"wrong token", "borrower-1", "UNKNOWN", dec(150)},
		{"over release", "borrower-1", testToken, dec(151)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.vault.Release(ctx, f.ledgerCap, loanID, tt.owner, tt.token, tt.amount)
			assert.ErrorIs(t, err, errs.ErrPolicy)
			assert.Equal(t, errs.CodePositionMismatch, errs.CodeOf(err))
		})
	}

	err := f.vault.Release(ctx, f.ledgerCap, models.NewLoanID(), "borrower-1", testToken, dec(1))
	assert.Equal(t, errs.CodePositionMismatch, errs.CodeOf(err), "unknown loan has no position")
}

func TestLiquidate_CureWindow(t *testing.T) {
	f := createTestVault(t)
	ctx := context.Background()
	loanID := models.NewLoanID()
	require.NoError(t, f.vault.Lock(ctx, f.ledgerCap, "borrower-1", testToken, dec(150), loanID))

	// Inside the 48h cure window liquidation is refused.
	f.clk.Advance(47 * time.Hour)
	_, err := f.vault.Liquidate(ctx, f.ledgerCap, loanID, testToken, dec(150))
	assert.ErrorIs(t, err, errs.ErrPolicy)
	assert.Equal(t, errs.CodeLiquidationDelay, errs.CodeOf(err))

	// At exactly 48h it is allowed. Value 3000, plus the 10% bonus.
	f.clk.Advance(time.Hour)
	recovered, err := f.vault.Liquidate(ctx, f.ledgerCap, loanID, testToken, dec(150))
	require.NoError(t, err)
	assert.True(t, recovered.Equal(dec(3300)), "got %s", recovered)

	pos, err := f.vault.Position(loanID)
	require.NoError(t, err)
	assert.False(t, pos.IsLocked)
	assert.True(t, pos.Amount.IsZero())
}

func TestLiquidate_PartialSeizure(t *testing.T) {
	f := createTestVault(t)
	ctx := context.Background()
	loanID := models.NewLoanID()
	require.NoError(t, f.vault.Lock(ctx, f.ledgerCap, "borrower-1", testToken, dec(150), loanID))
	f.clk.Advance(3 * 24 * time.Hour)

	recovered, err := f.vault.Liquidate(ctx, f.ledgerCap, loanID, testToken, dec(50))
	require.NoError(t, err)
	assert.True(t, recovered.Equal(dec(1100)), "got %s", recovered)

	pos, err := f.vault.Position(loanID)
	require.NoError(t, err)
	assert.True(t, pos.IsLocked, "remainder stays in custody")
	assert.True(t, pos.Amount.Equal(dec(100)))
}

func TestLiquidate_PriceUnavailableAborts(t *testing.T) {
	f := createTestVault(t)
	ctx := context.Background()
	loanID := models.NewLoanID()
	require.NoError(t, f.vault.Lock(ctx, f.ledgerCap, "borrower-1", testToken, dec(150), loanID))
	f.clk.Advance(3 * 24 * time.Hour)
	f.prices.SetPrice(testToken, decimal.Zero)

	_, err := f.vault.Liquidate(ctx, f.ledgerCap, loanID, testToken, dec(150))
	assert.ErrorIs(t, err, errs.ErrExternal)

	pos, perr := f.vault.Position(loanID)
	require.NoError(t, perr)
	assert.True(t, pos.IsLocked, "failed liquidation leaves the position untouched")
	assert.True(t, pos.Amount.Equal(dec(150)))
}

func TestCheckLiquidation(t *testing.T) {
	f := createTestVault(t)
	ctx := context.Background()
	loanID := models.NewLoanID()
	require.NoError(t, f.vault.Lock(ctx, f.ledgerCap, "borrower-1", testToken, dec(150), loanID))

	// Value 3000 against outstanding 2000: threshold is 2400, healthy.
	under, err := f.vault.CheckLiquidation(loanID, dec(2000))
	require.NoError(t, err)
	assert.False(t, under)

	// Price halves: value 1500 < 2400, undercollateralized.
	f.prices.SetPrice(testToken, dec(1000))
	under, err = f.vault.CheckLiquidation(loanID, dec(2000))
	require.NoError(t, err)
	assert.True(t, under)
}

func TestCustodyOps_RequireLedgerCapability(t *testing.T) {
	f := createTestVault(t)
	ctx := context.Background()
	stranger := auth.NewCapability()
	loanID := models.NewLoanID()

	assert.ErrorIs(t, f.vault.Lock(ctx, stranger, "b", testToken, dec(1), loanID), errs.ErrAuthorization)
	assert.ErrorIs(t, f.vault.Release(ctx, stranger, loanID, "b", testToken, dec(1)), errs.ErrAuthorization)
	_, err := f.vault.Liquidate(ctx, stranger, loanID, testToken, dec(1))
	assert.ErrorIs(t, err, errs.ErrAuthorization)
}

func TestLock_UnsupportedToken(t *testing.T) {
	f := createTestVault(t)
	err := f.vault.Lock(context.Background(), f.ledgerCap, "b", "UNKNOWN", dec(1), models.NewLoanID())
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, errs.CodeUnsupportedToken, errs.CodeOf(err))
}
