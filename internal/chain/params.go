package chain

import "math"

// DefaultAverageBlockTime is used for chains without a known block time.
const DefaultAverageBlockTime = 13.0

// averageBlockTimes holds rough block production intervals in seconds, keyed by chain ID.
var averageBlockTimes = map[uint64]float64{
	1:     12,
	10:    2,
	137:   2.2,
	8453:  2,
	42161: 0.25,
}

// Params exposes the chain parameters the caches use to turn durations into block counts.
type Params interface {
	AverageBlockTime() float64
	EstimateBlocksElapsed(seconds int64, cushion float64) uint64
}

// StaticParams is a Params with a fixed average block time in seconds.
type StaticParams struct {
	BlockTime float64
}

// ParamsForChain returns the parameters for chainID. A positive override wins over the
// built-in table.
func ParamsForChain(chainID uint64, override float64) StaticParams {
	if override > 0 {
		return StaticParams{BlockTime: override}
	}
	if bt, ok := averageBlockTimes[chainID]; ok {
		return StaticParams{BlockTime: bt}
	}
	return StaticParams{BlockTime: DefaultAverageBlockTime}
}

func (p StaticParams) AverageBlockTime() float64 {
	if p.BlockTime <= 0 {
		return DefaultAverageBlockTime
	}
	return p.BlockTime
}

// EstimateBlocksElapsed converts seconds into a block count, inflated by cushion
// (0.5 means 50% more blocks). Negative durations estimate zero blocks.
func (p StaticParams) EstimateBlocksElapsed(seconds int64, cushion float64) uint64 {
	if seconds <= 0 {
		return 0
	}
	return uint64(math.Floor(float64(seconds) * (1 + cushion) / p.AverageBlockTime()))
}
