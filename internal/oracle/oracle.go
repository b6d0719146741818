// Package oracle defines the injected price feed capability. The core only
// consumes prices; producing them is out of scope.
package oracle

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/credlink/lending-core/internal/errs"
	"github.com/credlink/lending-core/internal/models"
)

// PriceOracle reports the current price of a collateral token in settlement
// base units per whole token. An unset or zero price means "unavailable",
// never "worthless".
type PriceOracle interface {
	Price(token models.TokenID) (decimal.Decimal, error)
}

// Static is a manually fed oracle, used by the demo server and tests.
type Static struct {
	mu     sync.RWMutex
	prices map[models.TokenID]decimal.Decimal
}

// NewStatic returns an empty static oracle.
func NewStatic() *Static {
	return &Static{prices: make(map[models.TokenID]decimal.Decimal)}
}

// SetPrice sets the current price for token. A non-positive price clears it.
func (s *Static) SetPrice(token models.TokenID, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if price.IsPositive() {
		s.prices[token] = price
		return
	}
	delete(s.prices, token)
}

func (s *Static) Price(token models.TokenID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[token]
	if !ok || !p.IsPositive() {
		return decimal.Zero, errs.External(errs.CodePriceUnavailable, nil)
	}
	return p, nil
}

var _ PriceOracle = (*Static)(nil)
