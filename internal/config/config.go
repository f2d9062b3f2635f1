// Package config holds PlayerConfig, the set of keys spec.md §6
// enumerates, and the viper wiring used to populate it from flags and env
// vars over installed defaults — following the layered-defaults pattern
// used elsewhere in this codebase's CLI tooling. No config file is read.
package config

import (
	"github.com/NetMedia-Sys-Lab/istream-player/internal/apperr"
	"github.com/spf13/viper"
)

// ABR policy identifiers, see internal/abr.
const (
	ABRBandwidth = "bandwidth"
	ABRBuffer    = "buffer"
	ABRDash      = "dash"
	ABRHybrid    = "hybrid"
	ABRFixed     = "fixed"
)

// PlayerConfig is the full set of configuration keys recognized by the
// player core, per spec.md §6.
type PlayerConfig struct {
	Input string `mapstructure:"input"`

	BufferDuration      float64 `mapstructure:"buffer_duration"`
	SafeBufferLevel     float64 `mapstructure:"safe_buffer_level"`
	PanicBufferLevel    float64 `mapstructure:"panic_buffer_level"`
	MinStartDuration    float64 `mapstructure:"min_start_duration"`
	MinRebufferDuration float64 `mapstructure:"min_rebuffer_duration"`

	TimeFactor float64 `mapstructure:"time_factor"`
	SelectAS   string  `mapstructure:"select_as"`

	MaxInitialBitrate int     `mapstructure:"max_initial_bitrate"`
	SmoothingFactor   float64 `mapstructure:"smoothing_factor"`
	UpdateInterval    float64 `mapstructure:"update_interval"`
	MaxPacketDelay    float64 `mapstructure:"max_packet_delay"`
	ContBWWindow      float64 `mapstructure:"cont_bw_window"`

	ABRPolicy    string `mapstructure:"abr_policy"`
	FixedQuality int    `mapstructure:"fixed_quality"`

	Transport      string `mapstructure:"transport"` // "http", "quic", "local"
	LocalBandwidth int64  `mapstructure:"local_bandwidth"`
	MaxPacketSize  int    `mapstructure:"max_packet_size"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// SetDefaults installs every key's default value into v, the way
// jmylchreest-tvarr's config.SetDefaults seeds a *viper.Viper before any
// flag/file/env layer is applied.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("buffer_duration", 8.0)
	v.SetDefault("safe_buffer_level", 6.0)
	v.SetDefault("panic_buffer_level", 2.5)
	v.SetDefault("min_start_duration", 2.0)
	v.SetDefault("min_rebuffer_duration", 2.0)
	v.SetDefault("time_factor", 1.0)
	v.SetDefault("select_as", "-")
	v.SetDefault("max_initial_bitrate", 1_000_000)
	v.SetDefault("smoothing_factor", 0.5)
	v.SetDefault("update_interval", 0.05)
	v.SetDefault("max_packet_delay", 2.0)
	v.SetDefault("cont_bw_window", 1.0)
	v.SetDefault("abr_policy", ABRDash)
	v.SetDefault("fixed_quality", 0)
	v.SetDefault("transport", "http")
	v.SetDefault("local_bandwidth", int64(100_000_000_000))
	v.SetDefault("max_packet_size", 20_000)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load unmarshals v into a PlayerConfig and validates it.
func Load(v *viper.Viper) (*PlayerConfig, error) {
	var cfg PlayerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperr.NewConfigError(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the ConfigError rule from spec.md §7: input is
// required.
func (c *PlayerConfig) Validate() error {
	if c.Input == "" {
		return apperr.NewConfigError(errRequiredInput{})
	}
	return nil
}

type errRequiredInput struct{}

func (errRequiredInput) Error() string {
	return "a non-empty 'input' (MPD URL or filesystem path) is required"
}
