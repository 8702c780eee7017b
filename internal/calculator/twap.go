package calculator

import (
	"math"

	"PriceSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// AccumulateTWAP integrates a step function of prices over [startTime, endTime].
// events must be in chronological order; each price holds until the next event, and the
// last one holds until endTime. It returns the price*seconds sum and the covered seconds.
// Sums over adjacent windows add up exactly to the sum over their union.
func AccumulateTWAP(events []model.PriceSample, startTime, endTime int64) (decimal.Decimal, int64) {
	sum := decimal.Zero
	var duration int64

	var (
		last    model.PriceSample
		hasLast bool
	)
	// The sentinel far in the future closes the interval of the last real event.
	sentinel := model.PriceSample{Timestamp: math.MaxInt64}
	for i := 0; i <= len(events); i++ {
		event := sentinel
		if i < len(events) {
			event = events[i]
		}

		if hasLast {
			from := max(last.Timestamp, startTime)
			to := min(event.Timestamp, endTime)
			if window := to - from; window > 0 {
				sum = sum.Add(last.Price.Mul(decimal.NewFromInt(window)))
				duration += window
			}
		}

		if event.Timestamp > endTime {
			break
		}
		last, hasLast = event, true
	}
	return sum, duration
}

// ComputeTWAP returns the time-weighted average price over [startTime, endTime], seeded
// with startingSum (the accumulated price*seconds of earlier pages). ok is false when no
// event covers any part of the window. The average is truncated to the finest scale among
// the event prices and startingSum, so a constant price averages to itself.
func ComputeTWAP(events []model.PriceSample, startTime, endTime int64, startingSum decimal.Decimal) (price decimal.Decimal, ok bool) {
	sum, duration := AccumulateTWAP(events, startTime, endTime)
	if duration == 0 {
		return decimal.Decimal{}, false
	}
	q, _ := startingSum.Add(sum).QuoRem(decimal.NewFromInt(duration), priceScale(events, startingSum))
	return q, true
}

// priceScale returns the number of fractional digits of the most precise value.
func priceScale(events []model.PriceSample, startingSum decimal.Decimal) int32 {
	scale := max(-startingSum.Exponent(), 0)
	for _, e := range events {
		scale = max(scale, -e.Price.Exponent())
	}
	return scale
}
