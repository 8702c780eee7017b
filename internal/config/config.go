package config

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// FeedConfig describes one on-chain price to track.
type FeedConfig struct {
	Name string `yaml:"name"`
	// Contract is called with CallData at every cached block; the first 32 bytes of the
	// result are the price scaled by 10^Decimals.
	Contract     string  `yaml:"contract"`
	CallData     string  `yaml:"calldata"`
	Decimals     int32   `yaml:"decimals"`
	Lookback     int64   `yaml:"lookback"`    // seconds
	TWAPLength   int64   `yaml:"twap_length"` // seconds
	BufferFactor float64 `yaml:"buffer_factor"`
	// MaxConcurrency bounds parallel RPC calls per update. Unset means 16; -1 means unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// FanOut returns the concurrency limit in the form the feed expects, where 0 is unbounded.
func (f FeedConfig) FanOut() int {
	if f.MaxConcurrency < 0 {
		return 0
	}
	return f.MaxConcurrency
}

// Config holds all application configuration.
type Config struct {
	Chain struct {
		RPCURL           string  `yaml:"rpc_url"`
		ChainID          uint64  `yaml:"chain_id"`
		AverageBlockTime float64 `yaml:"average_block_time"`
	} `yaml:"chain"`
	Feeds    []FeedConfig `yaml:"feeds"`
	Schedule struct {
		UpdateCron string `yaml:"update_cron"`
		ReportCron string `yaml:"report_cron"`
	} `yaml:"schedule"`
	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
	Log struct {
		Production bool   `yaml:"production"`
		Level      string `yaml:"level"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("CHAIN_ID"); v != "" {
		var id uint64
		if _, err := fmt.Sscanf(v, "%d", &id); err == nil {
			cfg.Chain.ChainID = id
		}
	}
	if v := os.Getenv("AVERAGE_BLOCK_TIME"); v != "" {
		var bt float64
		if _, err := fmt.Sscanf(v, "%f", &bt); err == nil {
			cfg.Chain.AverageBlockTime = bt
		}
	}
	if v := os.Getenv("UPDATE_CRON"); v != "" {
		cfg.Schedule.UpdateCron = v
	}
	if v := os.Getenv("REPORT_CRON"); v != "" {
		cfg.Schedule.ReportCron = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_PRODUCTION"); v != "" {
		cfg.Log.Production = v == "true" || v == "1"
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// Defaults
	if cfg.Chain.ChainID == 0 {
		cfg.Chain.ChainID = 1
	}
	if cfg.Schedule.UpdateCron == "" {
		cfg.Schedule.UpdateCron = "0 * * * * *"
	}
	if cfg.Schedule.ReportCron == "" {
		cfg.Schedule.ReportCron = "0 0 * * * *"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	for i := range cfg.Feeds {
		f := &cfg.Feeds[i]
		if f.Decimals == 0 {
			f.Decimals = 18
		}
		if f.MaxConcurrency == 0 {
			f.MaxConcurrency = 16
		}
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.AverageBlockTime < 0 {
		return fmt.Errorf("chain.average_block_time must not be negative")
	}
	if len(c.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}
	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		if f.Name == "" {
			return fmt.Errorf("feeds[%d].name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("feeds[%d]: duplicate name %q", i, f.Name)
		}
		seen[f.Name] = true
		if !common.IsHexAddress(f.Contract) {
			return fmt.Errorf("feeds[%d].contract %q is not an address", i, f.Contract)
		}
		if f.CallData == "" {
			return fmt.Errorf("feeds[%d].calldata is required", i)
		}
		if f.Lookback < 0 || f.TWAPLength < 0 {
			return fmt.Errorf("feeds[%d]: lookback and twap_length must not be negative", i)
		}
		if f.BufferFactor < 0 {
			return fmt.Errorf("feeds[%d].buffer_factor must not be negative", i)
		}
		if f.MaxConcurrency < -1 {
			return fmt.Errorf("feeds[%d].max_concurrency must be positive, or -1 for unbounded", i)
		}
	}
	return nil
}
