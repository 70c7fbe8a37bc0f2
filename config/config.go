// Package config loads the engine's deployment-time settings (network
// selection, unlock timeout, worker-pool size, log level) via viper,
// grounded on the pack's own viper-based CLI config loader
// (Jasonyou1995-simple-eth-hd-wallet/internal/cli/root.go): a config
// file plus environment-variable overrides, rather than a bespoke flag
// parser.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// EngineConfig holds everything needed to construct a wallet.Context.
type EngineConfig struct {
	// Network is one of "main", "testnet3", "regtest", "simnet".
	Network string `mapstructure:"network"`

	// UnlockTimeout is the default auto-wipe delay after an unlock with
	// no explicit timeout (§4.3); zero means use the engine default.
	UnlockTimeout time.Duration `mapstructure:"unlock_timeout"`

	// SignerConcurrency bounds the worker pool's concurrent per-input
	// signing slots; <=1 disables the pool (sign() runs synchronously).
	SignerConcurrency int64 `mapstructure:"signer_concurrency"`

	// FeeRatePerKB is the static fallback fee rate in satoshis/KB, used
	// when no live fee estimator is wired in.
	FeeRatePerKB int64 `mapstructure:"fee_rate_per_kb"`

	// LogLevel is one of btclog's level names ("trace", "debug", "info",
	// "warn", "error", "critical", "off").
	LogLevel string `mapstructure:"log_level"`
}

func defaults() EngineConfig {
	return EngineConfig{
		Network:           "main",
		UnlockTimeout:     60 * time.Second,
		SignerConcurrency: 4,
		FeeRatePerKB:      1000,
		LogLevel:          "info",
	}
}

// Load reads configuration from path (if non-empty), environment
// variables prefixed HDWALLET_, and falls back to defaults() for
// anything unset.
func Load(path string) (*EngineConfig, error) {
	v := viper.New()
	cfg := defaults()

	v.SetDefault("network", cfg.Network)
	v.SetDefault("unlock_timeout", cfg.UnlockTimeout)
	v.SetDefault("signer_concurrency", cfg.SignerConcurrency)
	v.SetDefault("fee_rate_per_kb", cfg.FeeRatePerKB)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetEnvPrefix("HDWALLET")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
