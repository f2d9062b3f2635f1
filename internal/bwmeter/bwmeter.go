// Package bwmeter implements the Bandwidth Meter from spec.md §4.3: a
// per-URL DownloadStats store fed by transport.Listener events, and a
// smoothed per-segment-group bandwidth estimate consumed by internal/abr.
// The map+mutex store mirrors the teacher's segment cache pattern, minus
// its background eviction worker — stats here are cleared explicitly by
// the scheduler at each segment group's completion, not on a timer.
package bwmeter

import (
	"sync"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/model"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport"
)

// UpdateListener is notified whenever the smoothed estimate changes.
type UpdateListener interface {
	OnBandwidthUpdate(bw float64)
}

// Meter tracks per-URL DownloadStats and the smoothed segment-group
// bandwidth estimate. It implements transport.Listener so it can be
// registered directly with any transport.Manager.
type Meter struct {
	mu    sync.Mutex
	stats map[string]*model.DownloadStats

	bw    float64
	alpha float64

	totalBytes int64
	groupStart time.Time

	log       *telemetry.Logger
	listeners []UpdateListener
}

// New seeds the estimate with maxInitialBitrate (bps), per spec.md §4.3.
func New(maxInitialBitrate int, alpha float64, log *telemetry.Logger) *Meter {
	if log == nil {
		log = telemetry.Noop()
	}
	if alpha <= 0 {
		alpha = 0.5
	}
	return &Meter{
		stats: make(map[string]*model.DownloadStats),
		bw:    float64(maxInitialBitrate),
		alpha: alpha,
		log:   log.WithComponent("bwmeter"),
	}
}

func (m *Meter) AddListener(l UpdateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// BandwidthEstimate returns the current smoothed estimate in bps.
func (m *Meter) BandwidthEstimate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bw
}

// Stats returns a copy of the DownloadStats recorded for url, if any.
func (m *Meter) Stats(url string) (model.DownloadStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[url]
	if !ok {
		return model.DownloadStats{}, false
	}
	return *s, true
}

// --- transport.Listener ---

func (m *Meter) OnTransferStart(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.stats[url] = &model.DownloadStats{StartTime: now}
	if m.groupStart.IsZero() {
		m.groupStart = now
	}
}

func (m *Meter) OnBytesTransferred(length int, url string, position, totalSize int64, chunk transport.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	s, ok := m.stats[url]
	if !ok {
		s = &model.DownloadStats{StartTime: now}
		m.stats[url] = s
	}
	if s.FirstByteAt.IsZero() {
		s.FirstByteAt = now
	}
	s.LastByteAt = now
	s.ReceivedBytes = position
	s.TotalBytes = totalSize

	m.totalBytes += int64(length)
}

// OnTransferEnd records stop_time unconditionally and does not mutate
// stopped_bytes — the original estimator's inverted assignment on normal
// completion is not reproduced here, per spec.md's redesign note.
func (m *Meter) OnTransferEnd(size int64, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[url]
	if !ok {
		s = &model.DownloadStats{}
		m.stats[url] = s
	}
	s.StopTime = time.Now()
	s.TotalBytes = size
	s.ReceivedBytes = size
}

func (m *Meter) OnTransferCanceled(url string, position, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[url]
	if !ok {
		s = &model.DownloadStats{}
		m.stats[url] = s
	}
	s.StopTime = time.Now()
	s.StoppedBytes = position
	s.ReceivedBytes = position
	s.TotalBytes = size
}

// SegmentGroupComplete recomputes the smoothed estimate from bytes
// accumulated since the last call, per spec.md §4.3, then clears the
// per-URL stats and byte counters for the next group.
func (m *Meter) SegmentGroupComplete() {
	m.mu.Lock()

	now := time.Now()
	elapsed := now.Sub(m.groupStart).Seconds()
	if elapsed <= 0 {
		elapsed = 1e-3
	}
	currBW := 8 * float64(m.totalBytes) / elapsed
	m.bw = m.alpha*m.bw + (1-m.alpha)*currBW

	m.totalBytes = 0
	m.groupStart = time.Time{}
	m.stats = make(map[string]*model.DownloadStats)

	bw := m.bw
	listeners := append([]UpdateListener(nil), m.listeners...)
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnBandwidthUpdate(bw)
	}
}
