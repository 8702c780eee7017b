package chain

import (
	"context"

	"PriceSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// BlockSource retrieves block headers from a chain.
type BlockSource interface {
	BlockByNumber(ctx context.Context, number uint64) (model.Block, error)
	LatestBlock(ctx context.Context) (model.Block, error)
}

// PriceSource reads a price as of a given block. A result with Valid == false means
// no price is available at that block; it is not an error.
type PriceSource interface {
	PriceAt(ctx context.Context, blockNumber uint64) (decimal.NullDecimal, error)
}

// PriceFunc adapts a plain function to PriceSource.
type PriceFunc func(ctx context.Context, blockNumber uint64) (decimal.NullDecimal, error)

func (f PriceFunc) PriceAt(ctx context.Context, blockNumber uint64) (decimal.NullDecimal, error) {
	return f(ctx, blockNumber)
}
