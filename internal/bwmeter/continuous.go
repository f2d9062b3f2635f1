package bwmeter

import (
	"sync"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport"
)

// ContinuousUpdateListener is notified of the rolling continuous estimate.
// This estimate is diagnostic-only and never feeds ABR, preserving the
// invariant that ABR reads only the per-segment-group estimate computed by
// Meter.SegmentGroupComplete. app.Build registers the ContinuousMeter with
// the transport but attaches no ContinuousUpdateListener to it, so the
// Analyzer's report does not include this estimate.
type ContinuousUpdateListener interface {
	OnContinuousBandwidthUpdate(bw float64)
}

type bwSample struct {
	start, end time.Time
	bytes      int64
}

// ContinuousMeter computes a rolling mean throughput over a sliding time
// window (cont_bw_window seconds), sampling gaps between successive
// on_bytes_transferred callbacks, grounded on the original source's
// bandwidth_cont module. Nothing is published until at least
// minContinuousSamples samples exist; when fewer than that fall inside the
// window, older samples outside it are included to reach the minimum.
type ContinuousMeter struct {
	mu      sync.Mutex
	window  time.Duration
	samples []bwSample
	lastAt  time.Time
	hasLast bool

	log       *telemetry.Logger
	listeners []ContinuousUpdateListener
}

const minContinuousSamples = 2

func NewContinuousMeter(window time.Duration, log *telemetry.Logger) *ContinuousMeter {
	if log == nil {
		log = telemetry.Noop()
	}
	if window <= 0 {
		window = time.Second
	}
	return &ContinuousMeter{window: window, log: log.WithComponent("bwmeter.continuous")}
}

func (c *ContinuousMeter) AddListener(l ContinuousUpdateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *ContinuousMeter) OnTransferStart(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasLast = false
}

func (c *ContinuousMeter) OnBytesTransferred(length int, url string, position, totalSize int64, chunk transport.Chunk) {
	now := time.Now()

	c.mu.Lock()
	if !c.hasLast {
		c.lastAt = now
		c.hasLast = true
		c.mu.Unlock()
		return
	}
	c.samples = append(c.samples, bwSample{start: c.lastAt, end: now, bytes: int64(length)})
	c.lastAt = now

	windowStart := now.Add(-c.window)
	var totalBytes int64
	var totalTime time.Duration
	var windowed []bwSample
	for i := len(c.samples) - 1; i >= 0; i-- {
		s := c.samples[i]
		if s.end.Before(windowStart) && len(windowed) >= minContinuousSamples {
			break
		}
		windowed = append(windowed, s)
	}
	if len(c.samples) > 4096 {
		c.samples = c.samples[len(c.samples)-2048:]
	}

	if len(windowed) < minContinuousSamples {
		c.mu.Unlock()
		return
	}
	for _, s := range windowed {
		totalBytes += s.bytes
		totalTime += s.end.Sub(s.start)
	}
	if totalTime <= 0 {
		c.mu.Unlock()
		return
	}
	bw := 8 * float64(totalBytes) / totalTime.Seconds()
	listeners := append([]ContinuousUpdateListener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnContinuousBandwidthUpdate(bw)
	}
}

func (c *ContinuousMeter) OnTransferEnd(size int64, url string) {
	c.mu.Lock()
	c.hasLast = false
	c.mu.Unlock()
}

func (c *ContinuousMeter) OnTransferCanceled(url string, position, size int64) {
	c.mu.Lock()
	c.hasLast = false
	c.mu.Unlock()
}
