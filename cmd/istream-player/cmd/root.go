// Package cmd implements the istream-player CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/app"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/config"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:   "istream-player",
	Short: "Headless adaptive-bitrate MPEG-DASH streaming client",
	Long: `istream-player downloads and plays back an MPEG-DASH presentation
with a pluggable ABR controller, emitting per-segment analytics instead of
rendering video.`,
	RunE: runPlayer,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.String("input", "", "MPD URL or filesystem path (required)")
	flags.Float64("buffer-duration", 0, "scheduler max buffer duration (s)")
	flags.Float64("safe-buffer-level", 0, "DASH ABR upper band (s)")
	flags.Float64("panic-buffer-level", 0, "DASH ABR lower band (s)")
	flags.Float64("min-start-duration", 0, "initial buffer threshold (s)")
	flags.Float64("min-rebuffer-duration", 0, "re-buffer threshold (s)")
	flags.Float64("time-factor", 0, "wall-time multiplier (1 = real time, 0 = as fast as possible)")
	flags.String("select-as", "", "adaptation-set id range, e.g. \"0-1\"")
	flags.Int("max-initial-bitrate", 0, "seed bitrate estimate (bps)")
	flags.Float64("smoothing-factor", 0, "bandwidth EWMA alpha")
	flags.Float64("update-interval", 0, "scheduler poll interval (s)")
	flags.Float64("cont-bw-window", 0, "continuous bandwidth window (s)")
	flags.String("abr-policy", "", "bandwidth|buffer|dash|hybrid|fixed")
	flags.Int("fixed-quality", 0, "quality step for the fixed ABR policy")
	flags.String("transport", "", "http|quic|local")
	flags.Int64("local-bandwidth", 0, "local transport pacing bitrate (bps)")
	flags.Int("max-packet-size", 0, "local transport packet size (bytes)")
	flags.String("log-level", "", "debug|info|warn|error")
	flags.String("log-format", "", "text|json")

	for _, name := range []string{
		"input", "buffer-duration", "safe-buffer-level", "panic-buffer-level",
		"min-start-duration", "min-rebuffer-duration", "time-factor", "select-as",
		"max-initial-bitrate", "smoothing-factor", "update-interval", "cont-bw-window",
		"abr-policy", "fixed-quality", "transport", "local-bandwidth", "max-packet-size",
		"log-level", "log-format",
	} {
		key := flagToConfigKey(name)
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func flagToConfigKey(flag string) string {
	out := make([]byte, 0, len(flag))
	for _, r := range flag {
		if r == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, byte(r))
	}
	return string(out)
}

func initConfig() {
	v.SetEnvPrefix("ISTREAM")
	v.AutomaticEnv()
	config.SetDefaults(v)
}

func runPlayer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log := telemetry.New(cfg.LogLevel, cfg.LogFormat == "json", os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build player: %w", err)
	}

	return a.Run(ctx, os.Stdout)
}
