package chain

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"PriceSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// MockChain is a deterministic in-memory chain for development and testing.
// Blocks 0..Head exist; their timestamps come from TimestampOf.
type MockChain struct {
	Head        uint64
	TimestampOf func(number uint64) int64
	// PriceOf defaults to "price equals block number".
	PriceOf func(number uint64) decimal.NullDecimal
	// Err, when set, is returned by every fetch.
	Err error
	// Delay holds each fetch until it elapses or the context is done.
	Delay time.Duration

	blockFetches atomic.Int64
	priceFetches atomic.Int64
}

// LinearTimestamps returns a timestamp function for a chain producing one block every
// interval seconds starting at genesis.
func LinearTimestamps(genesis, interval int64) func(uint64) int64 {
	return func(n uint64) int64 { return genesis + int64(n)*interval }
}

// NewLinearMockChain creates a MockChain with evenly spaced blocks.
func NewLinearMockChain(head uint64, genesis, interval int64) *MockChain {
	return &MockChain{Head: head, TimestampOf: LinearTimestamps(genesis, interval)}
}

func (m *MockChain) BlockByNumber(ctx context.Context, number uint64) (model.Block, error) {
	m.blockFetches.Add(1)
	if err := m.wait(ctx); err != nil {
		return model.Block{}, err
	}
	if number > m.Head {
		return model.Block{}, fmt.Errorf("block %d not found (head %d)", number, m.Head)
	}
	return model.Block{Number: number, Timestamp: m.TimestampOf(number)}, nil
}

func (m *MockChain) LatestBlock(ctx context.Context) (model.Block, error) {
	m.blockFetches.Add(1)
	if err := m.wait(ctx); err != nil {
		return model.Block{}, err
	}
	return model.Block{Number: m.Head, Timestamp: m.TimestampOf(m.Head)}, nil
}

func (m *MockChain) PriceAt(ctx context.Context, blockNumber uint64) (decimal.NullDecimal, error) {
	m.priceFetches.Add(1)
	if err := m.wait(ctx); err != nil {
		return decimal.NullDecimal{}, err
	}
	if m.PriceOf != nil {
		return m.PriceOf(blockNumber), nil
	}
	return decimal.NewNullDecimal(decimal.NewFromInt(int64(blockNumber))), nil
}

// BlockFetches returns the number of block lookups served so far.
func (m *MockChain) BlockFetches() int64 { return m.blockFetches.Load() }

// PriceFetches returns the number of price lookups served so far.
func (m *MockChain) PriceFetches() int64 { return m.priceFetches.Load() }

// ResetCounters zeroes the fetch counters.
func (m *MockChain) ResetCounters() {
	m.blockFetches.Store(0)
	m.priceFetches.Store(0)
}

func (m *MockChain) wait(ctx context.Context) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Err
}
