// Package config loads the recognized runtime options: read env vars,
// apply defaults, validate, return a plain struct, layered under
// spf13/viper so the same options can also come from a config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config holds the recognized runtime options.
type Config struct {
	SignalingURL string `mapstructure:"signaling_url"`

	ProposalTimeout     time.Duration `mapstructure:"-"`
	DKGRoundTimeout     time.Duration `mapstructure:"-"`
	SigningRoundTimeout time.Duration `mapstructure:"-"`

	ProposalTimeoutMs     int64 `mapstructure:"proposal_timeout_ms"`
	DKGRoundTimeoutMs     int64 `mapstructure:"dkg_round_timeout_ms"`
	SigningRoundTimeoutMs int64 `mapstructure:"signing_round_timeout_ms"`

	ReconnectBackoffInitialMs int64 `mapstructure:"reconnect_backoff_initial_ms"`
	ReconnectBackoffMaxMs     int64 `mapstructure:"reconnect_backoff_max_ms"`

	BufferedMsgLimit int `mapstructure:"buffered_msg_limit"`

	DefaultThreshold uint16 `mapstructure:"default_threshold"`
	DefaultTotal     uint16 `mapstructure:"default_total"`
}

// defaults mirror the default phase deadlines and default buffering
// window; the remaining defaults are reasonable starting points for a
// devnet harness.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"signaling_url":                "ws://127.0.0.1:8787/ws",
		"proposal_timeout_ms":          60_000,
		"dkg_round_timeout_ms":         120_000,
		"signing_round_timeout_ms":     60_000,
		"reconnect_backoff_initial_ms": 500,
		"reconnect_backoff_max_ms":     30_000,
		"buffered_msg_limit":           256,
		"default_threshold":            2,
		"default_total":                3,
	}
}

// Load builds a Config from, in increasing priority: built-in
// defaults, an optional config file at path (ignored if empty or
// missing), and environment variables prefixed WALLETCORE_ (e.g.
// WALLETCORE_SIGNALING_URL).
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("WALLETCORE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			_, notFound := err.(viper.ConfigFileNotFoundError)
			if !notFound && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	c.ProposalTimeout = time.Duration(c.ProposalTimeoutMs) * time.Millisecond
	c.DKGRoundTimeout = time.Duration(c.DKGRoundTimeoutMs) * time.Millisecond
	c.SigningRoundTimeout = time.Duration(c.SigningRoundTimeoutMs) * time.Millisecond

	return &c, nil
}

func (c *Config) validate() error {
	if c.SignalingURL == "" {
		return fmt.Errorf("config: signaling_url is required")
	}
	if c.DefaultThreshold < 1 || c.DefaultThreshold > c.DefaultTotal {
		return fmt.Errorf("config: default_threshold must satisfy 1 <= threshold <= total")
	}
	if c.BufferedMsgLimit <= 0 {
		return fmt.Errorf("config: buffered_msg_limit must be positive")
	}
	return nil
}
