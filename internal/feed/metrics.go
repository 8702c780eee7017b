package feed

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the per-feed gauges, labelled by feed name.
type Metrics struct {
	CachedBlocks   *prometheus.GaugeVec
	CachedPrices   *prometheus.GaugeVec
	LastTWAP       *prometheus.GaugeVec
	LastUpdate     *prometheus.GaugeVec
	UpdateDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	cachedBlocks := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "price_sentinel_cached_blocks",
		Help: "Number of blocks in the feed's lookback window",
	}, []string{"feed"})

	cachedPrices := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "price_sentinel_cached_prices",
		Help: "Number of price samples held by the feed",
	}, []string{"feed"})

	lastTWAP := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "price_sentinel_last_twap",
		Help: "Current price as of the last update",
	}, []string{"feed"})

	lastUpdate := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "price_sentinel_last_update_timestamp_seconds",
		Help: "Unix time of the last successful update",
	}, []string{"feed"})

	updateDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "price_sentinel_update_duration_seconds",
		Help:    "Duration of feed updates",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"feed"})

	reg.MustRegister(cachedBlocks, cachedPrices, lastTWAP, lastUpdate, updateDuration)

	return &Metrics{
		CachedBlocks:   cachedBlocks,
		CachedPrices:   cachedPrices,
		LastTWAP:       lastTWAP,
		LastUpdate:     lastUpdate,
		UpdateDuration: updateDuration,
	}
}
