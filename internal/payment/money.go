package payment

import (
	"github.com/shopspring/decimal"
)

// Paystack expects NGN amounts in kobo.
const koboPerNaira = 100

var koboFactor = decimal.NewFromInt(koboPerNaira)

// HasMinorUnitPrecision reports whether amount converts to kobo exactly.
func HasMinorUnitPrecision(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(2))
}

func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(koboFactor).Round(0).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(koboFactor)
}
