package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedBlockSource(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	mock := NewLinearMockChain(10, 0, 15)
	src := &InstrumentedBlockSource{Source: mock, Name: "eth", Metrics: m}
	ctx := context.Background()

	_, err := src.LatestBlock(ctx)
	require.NoError(t, err)
	_, err = src.BlockByNumber(ctx, 3)
	require.NoError(t, err)
	_, err = src.BlockByNumber(ctx, 4)
	require.NoError(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(m.BlockFetches.WithLabelValues("eth", "latest")))
	require.Equal(t, float64(2), testutil.ToFloat64(m.BlockFetches.WithLabelValues("eth", "number")))

	mock.Err = errors.New("rpc down")
	_, err = src.BlockByNumber(ctx, 5)
	require.Error(t, err)
	require.Equal(t, float64(1), testutil.ToFloat64(m.FetchErrors.WithLabelValues("eth", "block")))
}

func TestInstrumentedPriceSource(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	src := &InstrumentedPriceSource{Source: NewLinearMockChain(10, 0, 15), Name: "eth", Metrics: m}

	p, err := src.PriceAt(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, p.Valid)
	require.Equal(t, float64(1), testutil.ToFloat64(m.PriceFetches.WithLabelValues("eth")))
}
