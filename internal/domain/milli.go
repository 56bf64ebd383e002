package domain

import "github.com/shopspring/decimal"

// Milli is a price in thousandths of a currency unit. The trading backend
// stores pricePerShare scaled by 1000; Milli makes that scale the one
// canonical unit end-to-end, so no component multiplies or divides by 1000 on
// its own. Conversion to display currency happens only through Decimal.
type Milli int64

// MilliFromDecimal converts a currency amount (e.g. 5.25) to milli-units.
func MilliFromDecimal(d decimal.Decimal) Milli {
	return Milli(d.Shift(3).Round(0).IntPart())
}

// MilliFromFloat converts a currency amount given as float64.
func MilliFromFloat(f float64) Milli {
	return MilliFromDecimal(decimal.NewFromFloat(f))
}

// Decimal returns the amount in currency units.
func (m Milli) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -3)
}

// String renders the price in currency units with two decimals.
func (m Milli) String() string {
	return m.Decimal().StringFixed(2)
}
