package calculator

import (
	"errors"

	"PriceSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// CalculateSMA computes the simple moving average of the given prices over the specified period.
func CalculateSMA(prices []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Decimal{}, errors.New("period must be positive")
	}
	if len(prices) < period {
		return decimal.Decimal{}, errors.New("not enough data for SMA calculation")
	}
	sum := decimal.Zero
	for i := len(prices) - period; i < len(prices); i++ {
		sum = sum.Add(prices[i])
	}
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}

// CalculateMean returns the unweighted average of every sample price.
func CalculateMean(samples []model.PriceSample) (decimal.Decimal, error) {
	return CalculateSMA(extractPrices(samples), len(samples))
}

func extractPrices(samples []model.PriceSample) []decimal.Decimal {
	prices := make([]decimal.Decimal, len(samples))
	for i, s := range samples {
		prices[i] = s.Price
	}
	return prices
}
