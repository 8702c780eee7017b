// Package priceseries caches block prices keyed by block timestamp.
package priceseries

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"PriceSentinel/internal/chain"
	"PriceSentinel/internal/model"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Series is an ordered timestamp -> price map filled lazily from a PriceSource.
// The first price stored for a timestamp is never replaced by Update.
type Series struct {
	source chain.PriceSource
	group  singleflight.Group

	mu     sync.RWMutex
	prices map[int64]decimal.Decimal
	keys   []int64 // ascending
}

// New creates an empty Series backed by source.
func New(source chain.PriceSource) *Series {
	return &Series{
		source: source,
		prices: make(map[int64]decimal.Decimal),
	}
}

// Update makes sure the price at block is cached, querying the source only on a miss.
// It returns the cached price, or an invalid NullDecimal when the source has none.
func (s *Series) Update(ctx context.Context, block model.Block) (decimal.NullDecimal, error) {
	if block.Timestamp < 0 {
		return decimal.NullDecimal{}, fmt.Errorf("%w: block %d has negative timestamp", model.ErrPrecondition, block.Number)
	}
	if p, ok := s.lookup(block.Timestamp); ok {
		return decimal.NewNullDecimal(p), nil
	}

	// The shared fetch outlives any single caller; each caller only waits on its own ctx.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strconv.FormatInt(block.Timestamp, 10), func() (interface{}, error) {
		if p, ok := s.lookup(block.Timestamp); ok {
			return decimal.NewNullDecimal(p), nil
		}
		p, err := s.source.PriceAt(fetchCtx, block.Number)
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		if !p.Valid {
			return p, nil
		}
		return decimal.NewNullDecimal(s.store(block.Timestamp, p.Decimal)), nil
	})

	select {
	case <-ctx.Done():
		return decimal.NullDecimal{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.NullDecimal{}, res.Err
		}
		return res.Val.(decimal.NullDecimal), nil
	}
}

// Set stores price at ts unless a price is already cached there, and returns the cached price.
func (s *Series) Set(ts int64, price decimal.Decimal) (decimal.Decimal, error) {
	if ts < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: timestamp must be non-negative, got %d", model.ErrPrecondition, ts)
	}
	return s.store(ts, price), nil
}

func (s *Series) store(ts int64, price decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prices[ts]; ok {
		return p
	}
	s.prices[ts] = price
	i := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= ts })
	s.keys = append(s.keys, 0)
	copy(s.keys[i+1:], s.keys[i:])
	s.keys[i] = ts
	return price
}

func (s *Series) lookup(ts int64) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[ts]
	return p, ok
}

// Get returns the price cached at exactly ts. Resolve a time to a block timestamp first.
func (s *Series) Get(ts int64) (decimal.Decimal, error) {
	p, ok := s.lookup(ts)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: no price at timestamp %d, use a block timestamp", model.ErrPrecondition, ts)
	}
	return p, nil
}

// Has reports whether a price is cached at exactly ts.
func (s *Series) Has(ts int64) bool {
	_, ok := s.lookup(ts)
	return ok
}

// CurrentPrice returns the price with the greatest timestamp.
func (s *Series) CurrentPrice() (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.keys) == 0 {
		return decimal.Decimal{}, false
	}
	return s.prices[s.keys[len(s.keys)-1]], true
}

// GetBetween returns the prices with start <= timestamp <= end, oldest first.
func (s *Series) GetBetween(start, end int64) ([]decimal.Decimal, error) {
	if start > end {
		return nil, fmt.Errorf("%w: start %d after end %d", model.ErrPrecondition, start, end)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= start })
	hi := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] > end })
	out := make([]decimal.Decimal, 0, hi-lo)
	for _, ts := range s.keys[lo:hi] {
		out = append(out, s.prices[ts])
	}
	return out, nil
}

// List returns every cached sample, oldest first.
func (s *Series) List() []model.PriceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.PriceSample, len(s.keys))
	for i, ts := range s.keys {
		out[i] = model.PriceSample{Timestamp: ts, Price: s.prices[ts]}
	}
	return out
}

// Len returns the number of cached samples.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// PruneBefore drops every sample older than ts.
func (s *Series) PruneBefore(ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= ts })
	if i == 0 {
		return
	}
	for _, k := range s.keys[:i] {
		delete(s.prices, k)
	}
	s.keys = append([]int64(nil), s.keys[i:]...)
}
