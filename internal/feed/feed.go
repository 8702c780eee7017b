// Package feed combines the block cache, the price series and the block finder into a
// TWAP price feed over a single on-chain price source.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PriceSentinel/internal/blockcache"
	"PriceSentinel/internal/blockfinder"
	"PriceSentinel/internal/calculator"
	"PriceSentinel/internal/chain"
	"PriceSentinel/internal/model"
	"PriceSentinel/internal/priceseries"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrOutsideLookback = errors.New("time is earlier than the lookback window")

// Config describes one feed.
type Config struct {
	Name string
	// Lookback is how far back, in seconds, historical prices can be requested.
	Lookback int64
	// TWAPLength is the averaging window in seconds; 0 reports spot prices.
	TWAPLength int64
	// BufferFactor inflates the block window estimate; 0 selects blockcache.DefaultBufferFactor.
	BufferFactor   float64
	MaxConcurrency int
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.New("feed name is required")
	}
	if c.Lookback < 0 {
		return fmt.Errorf("feed %s: lookback must be >= 0", c.Name)
	}
	if c.TWAPLength < 0 {
		return fmt.Errorf("feed %s: twap length must be >= 0", c.Name)
	}
	if c.BufferFactor < 0 {
		return fmt.Errorf("feed %s: buffer factor must be >= 0", c.Name)
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("feed %s: max concurrency must be >= 0", c.Name)
	}
	return nil
}

// Option customises a Feed.
type Option func(*Feed)

// WithClock replaces time.Now as the source of the update time.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// WithMetrics reports the feed's gauges to m.
func WithMetrics(m *Metrics) Option {
	return func(f *Feed) { f.metrics = m }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(f *Feed) { f.logger = l }
}

// Feed serves current and historical TWAP prices for one price source.
type Feed struct {
	cfg     Config
	source  chain.BlockSource
	blocks  *blockcache.Cache
	prices  *priceseries.Series
	finder  *blockfinder.Finder
	now     func() time.Time
	logger  *zap.Logger
	metrics *Metrics

	mu         sync.RWMutex
	lastUpdate int64
	updated    bool
}

// New builds a Feed. blocks and prices are usually the same chain connection.
func New(cfg Config, blocks chain.BlockSource, prices chain.PriceSource, params chain.Params, opts ...Option) (*Feed, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	f := &Feed{
		cfg:    cfg,
		source: blocks,
		blocks: blockcache.New(blocks, params),
		prices: priceseries.New(prices),
		finder: blockfinder.New(blocks, params),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	f.blocks.MaxConcurrency = cfg.MaxConcurrency
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("feed", cfg.Name))
	return f, nil
}

// Name returns the configured feed name.
func (f *Feed) Name() string { return f.cfg.Name }

// Lookback returns the configured lookback in seconds.
func (f *Feed) Lookback() int64 { return f.cfg.Lookback }

// LastUpdateTime returns the time of the last successful Update.
func (f *Feed) LastUpdateTime() (int64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastUpdate, f.updated
}

// Update refreshes the blocks covering lookback+twapLength seconds before now and the
// prices at those blocks. With a zero lookback only the head block is tracked.
func (f *Feed) Update(ctx context.Context) error {
	started := time.Now()
	now := f.now().Unix()
	horizon := f.cfg.Lookback + f.cfg.TWAPLength
	f.logger.Debug("updating feed", zap.Int64("time", now))

	if err := f.blocks.Prune(horizon, now); err != nil {
		return fmt.Errorf("prune blocks: %w", err)
	}
	if f.cfg.Lookback == 0 {
		head, err := f.source.LatestBlock(ctx)
		if err != nil {
			return fmt.Errorf("fetch latest block: %w", err)
		}
		f.blocks.Insert(head)
	} else {
		if _, err := f.blocks.Update(ctx, horizon, now, f.cfg.BufferFactor); err != nil {
			return fmt.Errorf("update blocks: %w", err)
		}
	}

	blocks := f.blocks.Blocks()
	g, gctx := errgroup.WithContext(ctx)
	if f.cfg.MaxConcurrency > 0 {
		g.SetLimit(f.cfg.MaxConcurrency)
	}
	for _, b := range blocks {
		b := b
		g.Go(func() error {
			p, err := f.prices.Update(gctx, b)
			if err != nil {
				return fmt.Errorf("price at block %d: %w", b.Number, err)
			}
			if !p.Valid {
				f.logger.Debug("no price at block", zap.Uint64("block", b.Number))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	cutoff := now - horizon
	if len(blocks) > 0 {
		cutoff = min(cutoff, blocks[0].Timestamp)
	}
	f.prices.PruneBefore(cutoff)

	f.mu.Lock()
	f.lastUpdate, f.updated = now, true
	f.mu.Unlock()

	f.logger.Debug("feed updated",
		zap.Int("blocks", len(blocks)),
		zap.Int("prices", f.prices.Len()),
		zap.Duration("took", time.Since(started)))
	if f.metrics != nil {
		f.metrics.CachedBlocks.WithLabelValues(f.cfg.Name).Set(float64(len(blocks)))
		f.metrics.CachedPrices.WithLabelValues(f.cfg.Name).Set(float64(f.prices.Len()))
		f.metrics.LastUpdate.WithLabelValues(f.cfg.Name).Set(float64(now))
		f.metrics.UpdateDuration.WithLabelValues(f.cfg.Name).Observe(time.Since(started).Seconds())
		if price, ok := f.CurrentPrice(); ok {
			f.metrics.LastTWAP.WithLabelValues(f.cfg.Name).Set(price.InexactFloat64())
		}
	}
	return nil
}

// CurrentPrice returns the TWAP ending at the last update, or the latest price when the
// TWAP length is zero.
func (f *Feed) CurrentPrice() (decimal.Decimal, bool) {
	if f.cfg.TWAPLength == 0 {
		return f.prices.CurrentPrice()
	}
	last, updated := f.LastUpdateTime()
	if !updated {
		return decimal.Decimal{}, false
	}
	return f.twap(last-f.cfg.TWAPLength, last)
}

// HistoricalPrice returns the TWAP ending at ts, or the spot price at ts when the TWAP
// length is zero. ok is false when no cached price covers the window.
func (f *Feed) HistoricalPrice(ts int64) (decimal.Decimal, bool, error) {
	if last, updated := f.LastUpdateTime(); updated && ts < last-f.cfg.Lookback {
		return decimal.Decimal{}, false, fmt.Errorf("%w: feed %s, time %d", ErrOutsideLookback, f.cfg.Name, ts)
	}
	if f.cfg.TWAPLength == 0 {
		p, ok := f.SpotPrice(ts)
		return p, ok, nil
	}
	p, ok := f.twap(ts-f.cfg.TWAPLength, ts)
	return p, ok, nil
}

// SpotPrice returns the price at the latest cached block at or before ts.
func (f *Feed) SpotPrice(ts int64) (decimal.Decimal, bool) {
	b, ok := f.blocks.ClosestBefore(ts)
	if !ok {
		return decimal.Decimal{}, false
	}
	p, err := f.prices.Get(b.Timestamp)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return p, true
}

// PriceAt resolves ts to a block anywhere in the chain's history and returns the price
// there. Unlike HistoricalPrice it is not limited to the lookback window.
func (f *Feed) PriceAt(ctx context.Context, ts int64) (decimal.Decimal, bool, error) {
	b, err := f.finder.GetBlockForTimestamp(ctx, ts)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	p, err := f.prices.Update(ctx, b)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return p.Decimal, p.Valid, nil
}

// HistoricalPricePeriods returns every cached price sample, oldest first.
func (f *Feed) HistoricalPricePeriods() []model.PriceSample {
	return f.prices.List()
}

// Summary describes the cached samples of a feed.
type Summary struct {
	Feed     string
	Samples  int
	High     decimal.Decimal
	Low      decimal.Decimal
	Mean     decimal.Decimal
	Current  decimal.Decimal
	Position decimal.Decimal // of Current within [Low, High]
}

// Summary reports the range and mean of the cached samples.
func (f *Feed) Summary() (Summary, error) {
	samples := f.prices.List()
	high, low, err := calculator.CalculateRange(samples)
	if err != nil {
		return Summary{}, fmt.Errorf("range: %w", err)
	}
	mean, err := calculator.CalculateMean(samples)
	if err != nil {
		return Summary{}, fmt.Errorf("mean: %w", err)
	}
	current, ok := f.CurrentPrice()
	if !ok {
		current = samples[len(samples)-1].Price
	}
	pos, err := calculator.CalculateRangePosition(current, high, low)
	if err != nil {
		return Summary{}, fmt.Errorf("range position: %w", err)
	}
	return Summary{
		Feed:     f.cfg.Name,
		Samples:  len(samples),
		High:     high,
		Low:      low,
		Mean:     mean,
		Current:  current,
		Position: pos,
	}, nil
}

func (f *Feed) twap(start, end int64) (decimal.Decimal, bool) {
	return calculator.ComputeTWAP(f.prices.List(), start, end, decimal.Zero)
}
