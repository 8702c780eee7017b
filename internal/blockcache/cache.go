// Package blockcache keeps a timestamp-ordered window of recent blocks so that
// time-to-block lookups inside the window need no remote calls.
package blockcache

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"PriceSentinel/internal/chain"
	"PriceSentinel/internal/model"

	"golang.org/x/sync/errgroup"
)

// DefaultBufferFactor over-estimates the update window to absorb block time variance.
const DefaultBufferFactor = 1.1

// Cache is a set of blocks sorted ascending by timestamp (ties by number).
type Cache struct {
	// MaxConcurrency bounds the number of in-flight fetches during Update; 0 means no bound.
	MaxConcurrency int

	source chain.BlockSource
	params chain.Params

	mu      sync.RWMutex
	blocks  []model.Block
	numbers map[uint64]struct{}
}

// New creates an empty Cache backed by source.
func New(source chain.BlockSource, params chain.Params) *Cache {
	return &Cache{
		source:  source,
		params:  params,
		numbers: make(map[uint64]struct{}),
	}
}

// Has reports whether a block with that number is cached.
func (c *Cache) Has(number uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.numbers[number]
	return ok
}

// Insert adds block at its sorted position. Already cached numbers are ignored.
func (c *Cache) Insert(block model.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(block)
}

func (c *Cache) insertLocked(block model.Block) {
	if _, ok := c.numbers[block.Number]; ok {
		return
	}
	i := sort.Search(len(c.blocks), func(i int) bool {
		b := c.blocks[i]
		return b.Timestamp > block.Timestamp || (b.Timestamp == block.Timestamp && b.Number > block.Number)
	})
	c.blocks = append(c.blocks, model.Block{})
	copy(c.blocks[i+1:], c.blocks[i:])
	c.blocks[i] = block
	c.numbers[block.Number] = struct{}{}
}

// ClosestBefore returns the latest cached block with Timestamp <= ts.
func (c *Cache) ClosestBefore(ts int64) (model.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := sort.Search(len(c.blocks), func(i int) bool { return c.blocks[i].Timestamp > ts })
	if i == 0 {
		return model.Block{}, false
	}
	return c.blocks[i-1], true
}

// ClosestAfter returns the earliest cached block with Timestamp >= ts.
func (c *Cache) ClosestAfter(ts int64) (model.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := sort.Search(len(c.blocks), func(i int) bool { return c.blocks[i].Timestamp >= ts })
	if i == len(c.blocks) {
		return model.Block{}, false
	}
	return c.blocks[i], true
}

// Update fetches every block that is likely to fall within [now-lookback, now] and caches
// those that do. The window start is estimated from the average block time inflated by
// bufferFactor, so with irregular block production the earliest few seconds of the window
// may stay uncovered. All heights are fetched concurrently and the cache is only touched
// once every fetch has succeeded. It returns all fetched blocks in height order.
func (c *Cache) Update(ctx context.Context, lookback, now int64, bufferFactor float64) ([]model.Block, error) {
	if lookback < 0 {
		return nil, fmt.Errorf("%w: lookback must be non-negative, got %d", model.ErrPrecondition, lookback)
	}
	if now < 0 {
		return nil, fmt.Errorf("%w: now must be non-negative, got %d", model.ErrPrecondition, now)
	}
	if bufferFactor <= 0 {
		bufferFactor = DefaultBufferFactor
	}

	latest, err := c.source.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}
	span := uint64(math.Ceil(bufferFactor * float64(lookback) / c.params.AverageBlockTime()))
	var earliest uint64
	if latest.Number > span {
		earliest = latest.Number - span
	}

	results := make([]model.Block, latest.Number-earliest+1)
	results[len(results)-1] = latest

	g, gctx := errgroup.WithContext(ctx)
	if c.MaxConcurrency > 0 {
		g.SetLimit(c.MaxConcurrency)
	}
	for h := earliest; h < latest.Number; h++ {
		h := h
		i := h - earliest
		g.Go(func() error {
			b, err := c.source.BlockByNumber(gctx, h)
			if err != nil {
				return err
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cutoff := now - lookback
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range results {
		if b.Timestamp >= cutoff {
			c.insertLocked(b)
		}
	}
	return results, nil
}

// Prune evicts every block with Timestamp <= now-age.
func (c *Cache) Prune(age, now int64) error {
	if age < 0 {
		return fmt.Errorf("%w: age must be non-negative, got %d", model.ErrPrecondition, age)
	}
	if now < 0 {
		return fmt.Errorf("%w: now must be non-negative, got %d", model.ErrPrecondition, now)
	}
	cutoff := now - age

	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.Search(len(c.blocks), func(i int) bool { return c.blocks[i].Timestamp > cutoff })
	if i == 0 {
		return nil
	}
	for _, b := range c.blocks[:i] {
		delete(c.numbers, b.Number)
	}
	c.blocks = append([]model.Block(nil), c.blocks[i:]...)
	return nil
}

// Blocks returns a copy of the cached blocks, oldest first.
func (c *Cache) Blocks() []model.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]model.Block(nil), c.blocks...)
}

// Latest returns the cached block with the greatest timestamp.
func (c *Cache) Latest() (model.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.blocks) == 0 {
		return model.Block{}, false
	}
	return c.blocks[len(c.blocks)-1], true
}

// Len returns the number of cached blocks.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}
