package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Merchant is a registered seller that loans settle against.
type Merchant struct {
	Name            string
	Wallet          Address
	TotalVolume     decimal.Decimal
	TotalOrders     int64
	IsActive        bool
	SettlementDelay time.Duration
}
