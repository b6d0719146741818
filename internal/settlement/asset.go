// Package settlement defines the external asset the ledger settles in, plus
// an in-memory implementation for the demo server and tests. The real asset
// lives outside the core; any transfer failure aborts the calling operation.
package settlement

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/credlink/lending-core/internal/errs"
	"github.com/credlink/lending-core/internal/models"
)

// Asset moves settlement funds between accounts. Transfer spends the
// caller's own account; TransferFrom pulls from an external account the
// caller holds an allowance on. Failure is reported distinctly from success;
// the core treats any failure as abort-whole-operation.
type Asset interface {
	Transfer(from, to models.Address, amount decimal.Decimal) error
	TransferFrom(from, to models.Address, amount decimal.Decimal) error
	BalanceOf(account models.Address) decimal.Decimal
}

// Treasury binds an Asset to the account a component transfers out of.
type Treasury struct {
	asset Asset
	addr  models.Address
}

// NewTreasury binds asset to addr.
func NewTreasury(asset Asset, addr models.Address) *Treasury {
	return &Treasury{asset: asset, addr: addr}
}

// Address returns the treasury account.
func (t *Treasury) Address() models.Address { return t.addr }

// Transfer pays amount out of the treasury account.
func (t *Treasury) Transfer(to models.Address, amount decimal.Decimal) error {
	return t.asset.Transfer(t.addr, to, amount)
}

// Pull collects amount from an external account into the treasury.
func (t *Treasury) Pull(from models.Address, amount decimal.Decimal) error {
	return t.asset.TransferFrom(from, t.addr, amount)
}

// MemoryAsset is a thread-safe in-memory balance book. Transfers fail when
// the source balance is insufficient or when a failure has been injected.
type MemoryAsset struct {
	mu       sync.Mutex
	balances map[models.Address]decimal.Decimal
	failWith error
}

// NewMemoryAsset returns an empty balance book.
func NewMemoryAsset() *MemoryAsset {
	return &MemoryAsset{balances: make(map[models.Address]decimal.Decimal)}
}

// Mint credits account with amount out of thin air. Test/demo setup only.
func (m *MemoryAsset) Mint(account models.Address, amount decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = m.balances[account].Add(amount)
}

// FailWith makes every subsequent transfer fail with err until cleared with
// a nil argument.
func (m *MemoryAsset) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Transfer and TransferFrom are the same balance move here: the in-memory
// double keeps no allowance book.
func (m *MemoryAsset) Transfer(from, to models.Address, amount decimal.Decimal) error {
	return m.move(from, to, amount)
}

func (m *MemoryAsset) TransferFrom(from, to models.Address, amount decimal.Decimal) error {
	return m.move(from, to, amount)
}

func (m *MemoryAsset) move(from, to models.Address, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return errs.External(errs.CodeTransferFailed, m.failWith)
	}
	if !amount.IsPositive() {
		return errs.Validation(errs.CodeInvalidAmount, "transfer amount must be positive")
	}
	if m.balances[from].LessThan(amount) {
		return errs.External(errs.CodeTransferFailed, errInsufficientBalance(from))
	}
	m.balances[from] = m.balances[from].Sub(amount)
	m.balances[to] = m.balances[to].Add(amount)
	return nil
}

func (m *MemoryAsset) BalanceOf(account models.Address) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[account]
}

type errInsufficientBalance models.Address

func (e errInsufficientBalance) Error() string {
	return "insufficient balance in account " + string(e)
}

var _ Asset = (*MemoryAsset)(nil)
