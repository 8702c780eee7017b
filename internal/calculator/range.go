package calculator

import (
	"errors"

	"PriceSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// CalculateRange returns the highest and lowest sample prices.
func CalculateRange(samples []model.PriceSample) (high, low decimal.Decimal, err error) {
	if len(samples) == 0 {
		return decimal.Decimal{}, decimal.Decimal{}, errors.New("no samples provided")
	}
	high, low = samples[0].Price, samples[0].Price
	for _, s := range samples[1:] {
		high = decimal.Max(high, s.Price)
		low = decimal.Min(low, s.Price)
	}
	return high, low, nil
}

// CalculateRangePosition returns where current sits within [low, high], clamped to 0..1.
func CalculateRangePosition(current, high, low decimal.Decimal) (decimal.Decimal, error) {
	if high.Equal(low) {
		return decimal.RequireFromString("0.5"), nil
	}
	if high.LessThan(low) {
		return decimal.Decimal{}, errors.New("high must be >= low")
	}
	pos := current.Sub(low).Div(high.Sub(low))
	if pos.IsNegative() {
		pos = decimal.Zero
	}
	if pos.GreaterThan(decimal.NewFromInt(1)) {
		pos = decimal.NewFromInt(1)
	}
	return pos, nil
}
