package chain

import (
	"context"

	"PriceSentinel/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics holds the remote lookup counters shared by all instrumented sources.
type Metrics struct {
	BlockFetches *prometheus.CounterVec
	PriceFetches *prometheus.CounterVec
	FetchErrors  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	blockFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_sentinel_block_fetches_total",
		Help: "Total block lookups issued to the chain",
	}, []string{"source", "kind"})

	priceFetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_sentinel_price_fetches_total",
		Help: "Total price lookups issued to the chain",
	}, []string{"source"})

	fetchErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_sentinel_fetch_errors_total",
		Help: "Total failed block or price lookups",
	}, []string{"source", "kind"})

	reg.MustRegister(blockFetches, priceFetches, fetchErrors)

	return &Metrics{
		BlockFetches: blockFetches,
		PriceFetches: priceFetches,
		FetchErrors:  fetchErrors,
	}
}

// InstrumentedBlockSource counts lookups made through Source.
type InstrumentedBlockSource struct {
	Source  BlockSource
	Name    string
	Metrics *Metrics
}

func (s *InstrumentedBlockSource) BlockByNumber(ctx context.Context, number uint64) (model.Block, error) {
	s.Metrics.BlockFetches.WithLabelValues(s.Name, "number").Inc()
	b, err := s.Source.BlockByNumber(ctx, number)
	if err != nil {
		s.Metrics.FetchErrors.WithLabelValues(s.Name, "block").Inc()
	}
	return b, err
}

func (s *InstrumentedBlockSource) LatestBlock(ctx context.Context) (model.Block, error) {
	s.Metrics.BlockFetches.WithLabelValues(s.Name, "latest").Inc()
	b, err := s.Source.LatestBlock(ctx)
	if err != nil {
		s.Metrics.FetchErrors.WithLabelValues(s.Name, "block").Inc()
	}
	return b, err
}

// InstrumentedPriceSource counts lookups made through Source.
type InstrumentedPriceSource struct {
	Source  PriceSource
	Name    string
	Metrics *Metrics
}

func (s *InstrumentedPriceSource) PriceAt(ctx context.Context, blockNumber uint64) (decimal.NullDecimal, error) {
	s.Metrics.PriceFetches.WithLabelValues(s.Name).Inc()
	p, err := s.Source.PriceAt(ctx, blockNumber)
	if err != nil {
		s.Metrics.FetchErrors.WithLabelValues(s.Name, "price").Inc()
	}
	return p, err
}
