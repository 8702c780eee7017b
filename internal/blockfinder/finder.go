// Package blockfinder resolves a timestamp to the latest block at or before it using
// interpolation search over a by-number block cache.
package blockfinder

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"PriceSentinel/internal/chain"
	"PriceSentinel/internal/model"
)

// BackwardCushion inflates the first backward step when the target predates the cache,
// so that a single probe usually lands before the target.
const BackwardCushion = 1.0

var (
	// ErrAfterLatest is returned for a timestamp later than the chain head.
	ErrAfterLatest = fmt.Errorf("%w: timestamp after latest block", model.ErrPrecondition)
	// ErrBeforeGenesis is returned for a timestamp earlier than block 0.
	ErrBeforeGenesis = fmt.Errorf("%w: timestamp before genesis block", model.ErrPrecondition)
)

// Finder caches every block it has fetched, sorted by number.
type Finder struct {
	source chain.BlockSource
	params chain.Params

	mu     sync.RWMutex
	blocks []model.Block
}

// New creates a Finder backed by source.
func New(source chain.BlockSource, params chain.Params) *Finder {
	return &Finder{source: source, params: params}
}

// GetBlock returns block number from the cache, fetching it on a miss.
func (f *Finder) GetBlock(ctx context.Context, number uint64) (model.Block, error) {
	if b, ok := f.cached(number); ok {
		return b, nil
	}
	b, err := f.source.BlockByNumber(ctx, number)
	if err != nil {
		return model.Block{}, err
	}
	f.insert(b)
	return b, nil
}

// GetLatestBlock fetches the chain head and caches it.
func (f *Finder) GetLatestBlock(ctx context.Context) (model.Block, error) {
	b, err := f.source.LatestBlock(ctx)
	if err != nil {
		return model.Block{}, err
	}
	f.insert(b)
	return b, nil
}

// GetBlockForTimestamp returns the latest block whose timestamp is <= ts.
func (f *Finder) GetBlockForTimestamp(ctx context.Context, ts int64) (model.Block, error) {
	if ts < 0 {
		return model.Block{}, fmt.Errorf("%w: timestamp must be non-negative, got %d", model.ErrPrecondition, ts)
	}

	// Later blocks may share the newest cached timestamp, so the head is refetched on ties.
	if newest, ok := f.newest(); !ok || newest.Timestamp <= ts {
		head, err := f.GetLatestBlock(ctx)
		if err != nil {
			return model.Block{}, err
		}
		if head.Timestamp < ts {
			return model.Block{}, fmt.Errorf("%w: %d > %d (block %d)", ErrAfterLatest, ts, head.Timestamp, head.Number)
		}
		if head.Timestamp == ts {
			return head, nil
		}
	}

	if oldest, _ := f.oldest(); oldest.Timestamp > ts {
		if err := f.walkBack(ctx, oldest, ts); err != nil {
			return model.Block{}, err
		}
	}

	start, end := f.bracket(ts)
	return f.FindBlock(ctx, start, end, ts)
}

// walkBack probes ever further below from until it caches a block at or before ts.
func (f *Finder) walkBack(ctx context.Context, from model.Block, ts int64) error {
	step := f.params.EstimateBlocksElapsed(from.Timestamp-ts, BackwardCushion)
	if step < 1 {
		step = 1
	}
	for multiplier := uint64(1); ; multiplier++ {
		var number uint64
		if distance := multiplier * step; distance < from.Number && distance/multiplier == step {
			number = from.Number - distance
		}
		b, err := f.GetBlock(ctx, number)
		if err != nil {
			return err
		}
		if b.Timestamp <= ts {
			return nil
		}
		if number == 0 {
			return fmt.Errorf("%w: %d < %d", ErrBeforeGenesis, ts, b.Timestamp)
		}
	}
}

// bracket returns the last cached block with Timestamp <= ts and its successor in the cache.
// The caller guarantees both exist.
func (f *Finder) bracket(ts int64) (model.Block, model.Block) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i := sort.Search(len(f.blocks), func(i int) bool { return f.blocks[i].Timestamp > ts })
	return f.blocks[i-1], f.blocks[i]
}

// FindBlock narrows [start, end] down to the latest block with Timestamp <= ts by
// interpolating the block position from the timestamps at both ends. Every iteration
// shrinks the range by at least one block; with evenly spaced blocks it converges in a
// handful of fetches regardless of the range size.
func (f *Finder) FindBlock(ctx context.Context, start, end model.Block, ts int64) (model.Block, error) {
	if start.Number >= end.Number {
		return model.Block{}, fmt.Errorf("%w: start block %d must precede end block %d", model.ErrPrecondition, start.Number, end.Number)
	}
	if ts < start.Timestamp || ts > end.Timestamp {
		return model.Block{}, fmt.Errorf("%w: timestamp %d outside [%d, %d]", model.ErrPrecondition, ts, start.Timestamp, end.Timestamp)
	}

	for {
		if end.Timestamp == ts {
			return end, nil
		}
		if end.Number == start.Number+1 {
			return start, nil
		}

		probe, err := f.GetBlock(ctx, interpolate(start, end, ts))
		if err != nil {
			return model.Block{}, err
		}
		if probe.Timestamp <= ts {
			start = probe
		} else {
			end = probe
		}
	}
}

// interpolate estimates the block number at ts, clamped strictly inside (start, end).
func interpolate(start, end model.Block, ts int64) uint64 {
	span := end.Number - start.Number
	var offset uint64
	if d := end.Timestamp - start.Timestamp; d > 0 {
		pct := float64(ts-start.Timestamp) / float64(d)
		offset = uint64(math.Round(pct * float64(span)))
	}
	offset = max(offset, 1)
	offset = min(offset, span-1)
	return start.Number + offset
}

// Blocks returns a copy of every cached block, ordered by number.
func (f *Finder) Blocks() []model.Block {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]model.Block(nil), f.blocks...)
}

func (f *Finder) cached(number uint64) (model.Block, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	i := sort.Search(len(f.blocks), func(i int) bool { return f.blocks[i].Number >= number })
	if i < len(f.blocks) && f.blocks[i].Number == number {
		return f.blocks[i], true
	}
	return model.Block{}, false
}

func (f *Finder) insert(b model.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := sort.Search(len(f.blocks), func(i int) bool { return f.blocks[i].Number >= b.Number })
	if i < len(f.blocks) && f.blocks[i].Number == b.Number {
		f.blocks[i] = b
		return
	}
	f.blocks = append(f.blocks, model.Block{})
	copy(f.blocks[i+1:], f.blocks[i:])
	f.blocks[i] = b
}

func (f *Finder) newest() (model.Block, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.blocks) == 0 {
		return model.Block{}, false
	}
	return f.blocks[len(f.blocks)-1], true
}

func (f *Finder) oldest() (model.Block, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.blocks) == 0 {
		return model.Block{}, false
	}
	return f.blocks[0], true
}
