package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credlink/lending-core/internal/errs"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestTreasuryTransferAndPull(t *testing.T) {
	asset := NewMemoryAsset()
	asset.Mint("alice", dec(1000))
	treasury := NewTreasury(asset, "treasury")

	assert.Equal(t, "treasury", string(treasury.Address()))

	require.NoError(t, treasury.Pull("alice", dec(400)))
	assert.True(t, asset.BalanceOf("alice").Equal(dec(600)))
	assert.True(t, asset.BalanceOf("treasury").Equal(dec(400)))

	require.NoError(t, treasury.Transfer("bob", dec(150)))
	assert.True(t, asset.BalanceOf("treasury").Equal(dec(250)))
	assert.True(t, asset.BalanceOf("bob").Equal(dec(150)))
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	asset := NewMemoryAsset()
	asset.Mint("alice", dec(100))

	err := asset.Transfer("alice", "bob", dec(101))
	assert.ErrorIs(t, err, errs.ErrExternal)
	assert.Equal(t, errs.CodeTransferFailed, errs.CodeOf(err))

	// A failed transfer moves nothing.
	assert.True(t, asset.BalanceOf("alice").Equal(dec(100)))
	assert.True(t, asset.BalanceOf("bob").IsZero())
}

func TestTransfer_Validation(t *testing.T) {
	asset := NewMemoryAsset()
	asset.Mint("alice", dec(100))

	assert.ErrorIs(t, asset.Transfer("alice", "bob", decimal.Zero), errs.ErrValidation)
	assert.ErrorIs(t, asset.TransferFrom("alice", "bob", dec(-5)), errs.ErrValidation)
}

func TestFailureInjection(t *testing.T) {
	asset := NewMemoryAsset()
	asset.Mint("alice", dec(100))

	asset.FailWith(assert.AnError)
	err := asset.Transfer("alice", "bob", dec(10))
	assert.ErrorIs(t, err, errs.ErrExternal)
	assert.ErrorIs(t, err, assert.AnError)

	asset.FailWith(nil)
	assert.NoError(t, asset.Transfer("alice", "bob", dec(10)))
}
