package models

import "github.com/shopspring/decimal"

// BasisPointsScale is the divisor for basis-point arithmetic (10000 = 100%).
const BasisPointsScale = 10000

var bpsScale = decimal.NewFromInt(BasisPointsScale)

// MulBps returns amount × bps / 10000, floored to whole base units. Flooring
// reproduces the integer truncation of the on-chain arithmetic this ledger
// accounts for.
func MulBps(amount decimal.Decimal, bps int64) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(bps)).Div(bpsScale).Floor()
}

// RatioBps returns value × 10000 / base in basis points, floored. Returns
// zero when base is not positive.
func RatioBps(value, base decimal.Decimal) int64 {
	if !base.IsPositive() {
		return 0
	}
	return value.Mul(bpsScale).Div(base).Floor().IntPart()
}
