package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CollateralPosition is the vault's custody record for one loan's collateral.
// Invariant: Amount is never negative; IsLocked is false iff Amount is zero.
type CollateralPosition struct {
	Owner    Address
	Token    TokenID
	Amount   decimal.Decimal
	LockedAt time.Time
	LoanID   LoanID
	IsLocked bool
}
