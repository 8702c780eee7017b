package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PriceSentinel/internal/chain"
	"PriceSentinel/internal/config"
	"PriceSentinel/internal/feed"
	"PriceSentinel/internal/logging"
	"PriceSentinel/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Production, cfg.Log.Level)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config validation", zap.Error(err))
	}
	logger.Info("PriceSentinel starting",
		zap.Uint64("chain_id", cfg.Chain.ChainID),
		zap.Int("feeds", len(cfg.Feeds)))

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	chainMetrics := chain.NewMetrics(reg)
	feedMetrics := feed.NewMetrics(reg)

	dialCtx, dialCancel := context.WithTimeout(ctx, 30*time.Second)
	eth, err := chain.DialEth(dialCtx, cfg.Chain.RPCURL, cfg.Proxy)
	dialCancel()
	if err != nil {
		logger.Fatal("connect to chain", zap.Error(err))
	}
	defer eth.Close()

	params := chain.ParamsForChain(cfg.Chain.ChainID, cfg.Chain.AverageBlockTime)
	logger.Info("chain parameters", zap.Float64("average_block_time", params.AverageBlockTime()))

	blocks := &chain.InstrumentedBlockSource{Source: eth, Name: "eth", Metrics: chainMetrics}
	var feeds []scheduler.Feed
	for _, fc := range cfg.Feeds {
		src, err := chain.NewContractPriceSource(eth.Client, fc.Contract, fc.CallData, fc.Decimals)
		if err != nil {
			logger.Fatal("init price source", zap.String("feed", fc.Name), zap.Error(err))
		}
		f, err := feed.New(feed.Config{
			Name:           fc.Name,
			Lookback:       fc.Lookback,
			TWAPLength:     fc.TWAPLength,
			BufferFactor:   fc.BufferFactor,
			MaxConcurrency: fc.FanOut(),
		},
			blocks,
			&chain.InstrumentedPriceSource{Source: src, Name: fc.Name, Metrics: chainMetrics},
			params,
			feed.WithLogger(logger),
			feed.WithMetrics(feedMetrics),
		)
		if err != nil {
			logger.Fatal("init feed", zap.String("feed", fc.Name), zap.Error(err))
		}
		feeds = append(feeds, f)
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, feeds, logger)
	if err := sched.RegisterAll(cfg.Schedule.UpdateCron, cfg.Schedule.ReportCron); err != nil {
		logger.Fatal("register cron tasks", zap.Error(err))
	}
	sched.Start()
	defer sched.Stop()

	if os.Getenv("RUN_ON_START") == "true" {
		logger.Info("RUN_ON_START enabled, updating feeds now")
		go sched.RunUpdateNow()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
			cancel()
		}
	}()
	logger.Info("PriceSentinel is running", zap.String("metrics_addr", cfg.Metrics.ListenAddr))

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}
	logger.Info("PriceSentinel stopped")
}
