package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceSentinel/internal/blockfinder"
	"PriceSentinel/internal/chain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Blocks 0..100 at 1000 + 10n, so the head is at 2000; prices equal block numbers.
func newTestFeed(t *testing.T, cfg Config, opts ...Option) (*Feed, *chain.MockChain, *int64) {
	t.Helper()
	mock := chain.NewLinearMockChain(100, 1000, 10)
	now := int64(2000)
	clock := func() time.Time { return time.Unix(now, 0) }
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	if cfg.BufferFactor == 0 {
		cfg.BufferFactor = 1
	}
	opts = append([]Option{WithClock(clock), WithLogger(zaptest.NewLogger(t))}, opts...)
	f, err := New(cfg, mock, mock, chain.StaticParams{BlockTime: 10}, opts...)
	require.NoError(t, err)
	return f, mock, &now
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestFeed_Update(t *testing.T) {
	f, mock, _ := newTestFeed(t, Config{Lookback: 100, TWAPLength: 50})
	ctx := context.Background()

	_, updated := f.LastUpdateTime()
	require.False(t, updated)
	_, ok := f.CurrentPrice()
	require.False(t, ok)

	require.NoError(t, f.Update(ctx))

	last, updated := f.LastUpdateTime()
	require.True(t, updated)
	require.Equal(t, int64(2000), last)

	// lookback+twap = 150s = 15 blocks below the head.
	periods := f.HistoricalPricePeriods()
	require.Len(t, periods, 16)
	require.Equal(t, int64(1850), periods[0].Timestamp)
	require.True(t, periods[0].Price.Equal(dec("85")))
	require.Equal(t, int64(2000), periods[15].Timestamp)
	require.Equal(t, int64(16), mock.PriceFetches())
}

func TestFeed_CurrentAndHistoricalPrice(t *testing.T) {
	f, _, _ := newTestFeed(t, Config{Lookback: 100, TWAPLength: 50})
	require.NoError(t, f.Update(context.Background()))

	// [1950, 2000) covers blocks 95..99 for 10s each.
	cur, ok := f.CurrentPrice()
	require.True(t, ok)
	require.True(t, cur.Equal(dec("97")), "got %s", cur)

	p, ok, err := f.HistoricalPrice(1900)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Equal(dec("87")), "got %s", p)

	p, ok, err = f.HistoricalPrice(1955)
	require.NoError(t, err)
	require.True(t, ok)
	// 5s of 90, 10s each of 91..94, 5s of 95: 92.5, truncated to the integer prices.
	require.True(t, p.Equal(dec("92")), "got %s", p)

	_, _, err = f.HistoricalPrice(1899)
	require.ErrorIs(t, err, ErrOutsideLookback)
}

func TestFeed_SpotPrices(t *testing.T) {
	f, _, _ := newTestFeed(t, Config{Lookback: 100})
	require.NoError(t, f.Update(context.Background()))

	cur, ok := f.CurrentPrice()
	require.True(t, ok)
	require.True(t, cur.Equal(dec("100")))

	p, ok, err := f.HistoricalPrice(1955)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Equal(dec("95")))

	p, ok = f.SpotPrice(1960)
	require.True(t, ok)
	require.True(t, p.Equal(dec("96")))

	_, ok = f.SpotPrice(1000)
	require.False(t, ok, "before the cached window")
}

func TestFeed_ZeroLookbackTracksHead(t *testing.T) {
	f, mock, now := newTestFeed(t, Config{})
	ctx := context.Background()

	require.NoError(t, f.Update(ctx))
	require.Equal(t, int64(1), mock.BlockFetches())
	require.Equal(t, int64(1), mock.PriceFetches())

	cur, ok := f.CurrentPrice()
	require.True(t, ok)
	require.True(t, cur.Equal(dec("100")))

	mock.Head = 101
	*now = 2010
	require.NoError(t, f.Update(ctx))
	cur, ok = f.CurrentPrice()
	require.True(t, ok)
	require.True(t, cur.Equal(dec("101")))
	require.Len(t, f.HistoricalPricePeriods(), 1)
}

func TestFeed_RollingUpdate(t *testing.T) {
	f, mock, now := newTestFeed(t, Config{Lookback: 100, TWAPLength: 50})
	ctx := context.Background()
	require.NoError(t, f.Update(ctx))

	mock.Head = 110
	*now = 2100
	mock.ResetCounters()
	require.NoError(t, f.Update(ctx))

	// Only blocks 101..110 need a price; 95..100 are still cached.
	require.Equal(t, int64(10), mock.PriceFetches())
	periods := f.HistoricalPricePeriods()
	require.Len(t, periods, 16)
	require.Equal(t, int64(1950), periods[0].Timestamp)
	require.Equal(t, int64(2100), periods[len(periods)-1].Timestamp)

	cur, ok := f.CurrentPrice()
	require.True(t, ok)
	require.True(t, cur.Equal(dec("107")), "got %s", cur)
}

func TestFeed_MissingPricesAreSkipped(t *testing.T) {
	f, mock, _ := newTestFeed(t, Config{Lookback: 100, TWAPLength: 50})
	mock.PriceOf = func(n uint64) decimal.NullDecimal {
		if n%2 == 1 {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(n)))
	}
	require.NoError(t, f.Update(context.Background()))

	periods := f.HistoricalPricePeriods()
	require.Len(t, periods, 8)
	for _, s := range periods {
		require.True(t, s.Price.Mod(decimal.NewFromInt(2)).IsZero())
	}

	// Each even price holds over the following odd block: 20s of 96 and 98, 10s of 94,
	// giving 96.4 truncated to 96.
	cur, ok := f.CurrentPrice()
	require.True(t, ok)
	require.True(t, cur.Equal(dec("96")), "got %s", cur)
}

func TestFeed_UpdateFailure(t *testing.T) {
	f, mock, _ := newTestFeed(t, Config{Lookback: 100})
	mock.Err = errors.New("connection refused")

	err := f.Update(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, mock.Err)
	_, updated := f.LastUpdateTime()
	require.False(t, updated)
}

func TestFeed_PriceAt(t *testing.T) {
	f, _, _ := newTestFeed(t, Config{Lookback: 100})
	ctx := context.Background()

	p, ok, err := f.PriceAt(ctx, 1234)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Equal(dec("23")))

	_, _, err = f.PriceAt(ctx, 2001)
	require.ErrorIs(t, err, blockfinder.ErrAfterLatest)
}

func TestFeed_Summary(t *testing.T) {
	f, _, _ := newTestFeed(t, Config{Lookback: 100, TWAPLength: 50})

	_, err := f.Summary()
	require.Error(t, err, "no samples yet")

	require.NoError(t, f.Update(context.Background()))
	s, err := f.Summary()
	require.NoError(t, err)
	require.Equal(t, "test", s.Feed)
	require.Equal(t, 16, s.Samples)
	require.True(t, s.High.Equal(dec("100")))
	require.True(t, s.Low.Equal(dec("85")))
	require.True(t, s.Mean.Equal(dec("92.5")))
	require.True(t, s.Current.Equal(dec("97")))
	require.True(t, s.Position.Equal(dec("0.8")), "got %s", s.Position)
}

func TestFeed_Metrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	f, _, _ := newTestFeed(t, Config{Name: "eth-usd", Lookback: 100, TWAPLength: 50}, WithMetrics(m))

	require.NoError(t, f.Update(context.Background()))

	require.Equal(t, float64(16), testutil.ToFloat64(m.CachedBlocks.WithLabelValues("eth-usd")))
	require.Equal(t, float64(16), testutil.ToFloat64(m.CachedPrices.WithLabelValues("eth-usd")))
	require.Equal(t, float64(2000), testutil.ToFloat64(m.LastUpdate.WithLabelValues("eth-usd")))
	require.Equal(t, float64(97), testutil.ToFloat64(m.LastTWAP.WithLabelValues("eth-usd")))

	// Queries leave the gauge at the price of the last update.
	_, ok, err := f.HistoricalPrice(1900)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.Summary()
	require.NoError(t, err)
	require.Equal(t, float64(97), testutil.ToFloat64(m.LastTWAP.WithLabelValues("eth-usd")))
}

func TestFeed_FixedPointPrices(t *testing.T) {
	f, mock, _ := newTestFeed(t, Config{Lookback: 100, TWAPLength: 50})
	price := dec("2500.123456789012345678")
	mock.PriceOf = func(uint64) decimal.NullDecimal { return decimal.NewNullDecimal(price) }
	require.NoError(t, f.Update(context.Background()))

	cur, ok := f.CurrentPrice()
	require.True(t, ok)
	require.True(t, cur.Equal(price), "got %s", cur)

	p, ok, err := f.HistoricalPrice(1955)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, p.Equal(price), "got %s", p)
}

func TestNew_Validation(t *testing.T) {
	mock := chain.NewLinearMockChain(10, 0, 10)
	params := chain.StaticParams{BlockTime: 10}

	tests := []Config{
		{},
		{Name: "a", Lookback: -1},
		{Name: "a", TWAPLength: -1},
		{Name: "a", BufferFactor: -0.5},
		{Name: "a", MaxConcurrency: -2},
	}
	for _, cfg := range tests {
		_, err := New(cfg, mock, mock, params)
		require.Error(t, err, "%+v", cfg)
	}
}
