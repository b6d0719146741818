package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LenderPosition is a lender's stake in the liquidity pool. Yield is accrued
// lazily at every touch point (deposit, withdraw, claim).
// Invariant: DepositedAmount is never negative.
type LenderPosition struct {
	Lender          Address
	DepositedAmount decimal.Decimal
	AccruedYield    decimal.Decimal
	LastUpdateTime  time.Time
	RiskTier        Tier
	AutoReinvest    bool
}

// PoolState is a snapshot of the pool's aggregate accounting.
type PoolState struct {
	TotalLiquidity decimal.Decimal
	TotalLoaned    decimal.Decimal
	TotalYieldPaid decimal.Decimal
	TotalDefaulted decimal.Decimal
	TierLiquidity  map[Tier]decimal.Decimal
	TierAPYBps     map[Tier]int64
	ReserveFund    decimal.Decimal
	LenderCount    int
	BorrowerCount  int
}
