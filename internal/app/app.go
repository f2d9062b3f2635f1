// Package app wires every component into a runnable player instance from
// a resolved config.PlayerConfig, the single composition point spec.md §9
// calls for: Scheduler, ABR, Transport, Bandwidth Meter, Buffer Manager,
// Player, and Analyzer are built once here and thereafter referenced only
// through their listener interfaces.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/abr"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/analyzer"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/apperr"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/buffer"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/bwmeter"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/config"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/player"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/scheduler"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport/httptransport"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport/localtransport"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport/quictransport"
	"github.com/google/uuid"
)

// App bundles the fully wired component graph.
type App struct {
	cfg       *config.PlayerConfig
	log       *telemetry.Logger
	transport transport.Manager
	mpdProv   *mpd.Provider
	bwMeter   *bwmeter.Meter
	bufMgr    *buffer.Manager
	sched     *scheduler.Scheduler
	plyr      *player.Player
	analyzer  *analyzer.Analyzer
}

// Build loads the initial MPD, constructs every component per cfg, and
// wires listeners together.
func Build(ctx context.Context, cfg *config.PlayerConfig, log *telemetry.Logger) (*App, error) {
	if log == nil {
		log = telemetry.Noop()
	}
	log = log.With("run_id", uuid.NewString())

	tm, err := buildTransport(cfg, log)
	if err != nil {
		return nil, err
	}

	initial, err := loadInitialMPD(ctx, cfg.Input, log)
	if err != nil {
		return nil, err
	}
	mpdProv := mpd.NewProvider(mpd.NewClient(log), initial)

	bwMeter := bwmeter.New(cfg.MaxInitialBitrate, cfg.SmoothingFactor, log)
	tm.AddListener(bwMeter)

	contMeter := bwmeter.NewContinuousMeter(time.Duration(cfg.ContBWWindow*float64(time.Second)), log)
	tm.AddListener(contMeter)

	bufMgr := buffer.New(log)

	abrCtl := abr.Build(abr.Kind(cfg.ABRPolicy), abr.Deps{
		BandwidthMeter:   bwMeter,
		BufferManager:    bufMgr,
		BufferDuration:   cfg.BufferDuration,
		PanicBufferLevel: cfg.PanicBufferLevel,
		SafeBufferLevel:  cfg.SafeBufferLevel,
		MaxSegmentDuration: func() float64 {
			if m := mpdProv.Current(); m != nil {
				return m.MaxSegmentDuration
			}
			return 0
		},
		FixedQuality: cfg.FixedQuality,
	})

	sched := scheduler.New(scheduler.Config{
		MaxBufferDuration: cfg.BufferDuration,
		UpdateInterval:    cfg.UpdateInterval,
		TimeFactor:        cfg.TimeFactor,
		SelectAS:          cfg.SelectAS,
	}, mpdProv, abrCtl, tm, bufMgr, bwMeter, log)

	plyr := player.New(player.Config{
		MinStartDuration:    cfg.MinStartDuration,
		MinRebufferDuration: cfg.MinRebufferDuration,
		TimeFactor:          cfg.TimeFactor,
	}, bufMgr, sched, log)

	az := analyzer.New(mpdProv.Current, log)
	bwMeter.AddListener(az)
	bufMgr.AddListener(az)
	sched.AddListener(az)
	plyr.AddListener(az)

	return &App{
		cfg:       cfg,
		log:       log,
		transport: tm,
		mpdProv:   mpdProv,
		bwMeter:   bwMeter,
		bufMgr:    bufMgr,
		sched:     sched,
		plyr:      plyr,
		analyzer:  az,
	}, nil
}

// Run drives the scheduler and player loops concurrently, waits until both
// have returned (end of stream, an error, or ctx cancellation), then closes
// the transport and writes the final report.
func (a *App) Run(ctx context.Context, report io.Writer) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- a.sched.Run(ctx)
	}()
	go func() {
		errCh <- a.plyr.Run(ctx)
	}()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil && err != context.Canceled {
			firstErr = err
		}
	}

	_ = a.transport.Close()

	if report != nil {
		if err := a.analyzer.WriteTable(report); err != nil {
			a.log.WithError(err).Warn("failed to write analysis report")
		}
	}

	return firstErr
}

func buildTransport(cfg *config.PlayerConfig, log *telemetry.Logger) (transport.Manager, error) {
	switch strings.ToLower(cfg.Transport) {
	case "quic", "http3", "h3":
		return quictransport.New(log, false), nil
	case "local", "file":
		return localtransport.New(log, cfg.LocalBandwidth, cfg.MaxPacketSize), nil
	case "http", "https", "":
		return httptransport.New(log, 10*time.Second), nil
	default:
		return nil, apperr.NewConfigError(fmt.Errorf("unknown transport %q", cfg.Transport))
	}
}

func loadInitialMPD(ctx context.Context, input string, log *telemetry.Logger) (*mpd.MPD, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return mpd.NewClient(log).FetchAndParseMPD(ctx, input)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return nil, apperr.NewMPDParseError(fmt.Errorf("read local MPD %s: %w", input, err))
	}
	return mpd.Parse(data, input)
}
