// Package scheduler implements the Segment Scheduler from spec.md §4.6:
// the producer loop that decides which segment to fetch next, drives
// downloads through the Transport, and pushes completed segment groups
// into the Buffer Manager. Its goroutine-plus-ticker shape and
// context-driven shutdown follow the teacher's session download loop.
package scheduler

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/abr"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/apperr"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/buffer"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/model"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport"
)

// EventListener observes scheduler lifecycle events, indexed by segment
// index, the way the Analyzer subscribes per spec.md §4.8.
type EventListener interface {
	OnSegmentDownloadStart(index int, adapBW map[int]float64, segments map[int]*mpd.Segment)
	OnSegmentDownloadComplete(index int, segments map[int]*mpd.Segment, stats map[int]model.DownloadStats)
}

// MPDProvider supplies the current (possibly dynamically refreshed) MPD.
type MPDProvider interface {
	Current() *mpd.MPD
	Refresh(ctx context.Context) (*mpd.MPD, error)
}

// BandwidthRecorder is the subset of bwmeter.Meter the scheduler drives
// directly: per-segment-group completion and per-URL stats retrieval.
type BandwidthRecorder interface {
	SegmentGroupComplete()
	Stats(url string) (model.DownloadStats, bool)
	BandwidthEstimate() float64
}

// Config carries the scheduler's tunables, taken from config.PlayerConfig.
type Config struct {
	MaxBufferDuration float64
	UpdateInterval    float64
	TimeFactor        float64
	SelectAS          string
}

// Scheduler is the producer loop.
type Scheduler struct {
	cfg       Config
	mpdP      MPDProvider
	abrCtl    abr.Controller
	transport transport.Manager
	bufMgr    *buffer.Manager
	bwMeter   BandwidthRecorder
	log       *telemetry.Logger

	mu        sync.RWMutex
	listeners []EventListener

	index             int
	droppedIndex      int
	hasDroppedIndex   bool
	initializedReprs  map[[2]int]struct{}
	currentSelections abr.Selection

	endMu sync.RWMutex
	end   bool
}

func New(cfg Config, mpdP MPDProvider, abrCtl abr.Controller, tm transport.Manager, bufMgr *buffer.Manager, bwMeter BandwidthRecorder, log *telemetry.Logger) *Scheduler {
	if log == nil {
		log = telemetry.Noop()
	}
	return &Scheduler{
		cfg:              cfg,
		mpdP:             mpdP,
		abrCtl:           abrCtl,
		transport:        tm,
		bufMgr:           bufMgr,
		bwMeter:          bwMeter,
		log:              log.WithComponent("scheduler"),
		initializedReprs: make(map[[2]int]struct{}),
	}
}

func (s *Scheduler) AddListener(l EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Scheduler) IsEnd() bool {
	s.endMu.RLock()
	defer s.endMu.RUnlock()
	return s.end
}

func (s *Scheduler) setEnd() {
	s.endMu.Lock()
	s.end = true
	s.endMu.Unlock()
}

// CancelTask stops in-flight downloads for index if and only if it matches
// the currently in-flight index and is non-zero, per spec.md §4.6.
func (s *Scheduler) CancelTask(index int) {
	s.mu.RLock()
	cur := s.index
	sel := s.currentSelections
	s.mu.RUnlock()

	if index != cur || index == 0 {
		return
	}

	mpdSnap := s.mpdP.Current()
	if mpdSnap == nil {
		return
	}
	for asID, reprID := range sel {
		as, ok := mpdSnap.AdaptationSets[asID]
		if !ok {
			continue
		}
		repr, ok := as.Representations[reprID]
		if !ok {
			continue
		}
		if seg, ok := repr.Segments[index]; ok {
			_ = s.transport.Stop(seg.URL)
		}
	}
}

// DropIndex records dropped_index for the next iteration's lowest-quality
// retry, per spec.md §4.6.
func (s *Scheduler) DropIndex(index int) {
	s.mu.Lock()
	s.droppedIndex = index
	s.hasDroppedIndex = true
	s.mu.Unlock()
}

// Run drives the producer loop until ctx is canceled or end-of-stream.
func (s *Scheduler) Run(ctx context.Context) error {
	sets := s.selectedAdaptationSets(s.mpdP.Current())
	s.mu.Lock()
	s.index = firstSegmentAcross(sets)
	s.mu.Unlock()

	sleep := func() bool {
		d := time.Duration(s.cfg.TimeFactor * s.cfg.UpdateInterval * float64(time.Second))
		if d <= 0 {
			d = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if s.bufMgr.Level() > s.cfg.MaxBufferDuration {
			if !sleep() {
				return ctx.Err()
			}
			continue
		}

		current := s.mpdP.Current()
		if current != nil && current.IsDynamic() {
			refreshed, err := s.mpdP.Refresh(ctx)
			if err != nil {
				s.log.WithError(err).Warn("dynamic MPD refresh failed, continuing with stale MPD")
			} else {
				current = refreshed
			}
		}
		sets = s.selectedAdaptationSets(current)

		first, last, ok := segmentRangeAcross(sets)
		if !ok {
			s.setEnd()
			return nil
		}

		s.mu.RLock()
		index := s.index
		s.mu.RUnlock()

		if index < first {
			s.mu.Lock()
			s.index = first
			s.mu.Unlock()
			continue
		}

		if index > last {
			if current != nil && current.IsDynamic() {
				if !sleep() {
					return ctx.Err()
				}
				continue
			}
			s.setEnd()
			return nil
		}

		s.mu.Lock()
		isDropped := s.hasDroppedIndex && s.droppedIndex == index
		s.mu.Unlock()

		var selection abr.Selection
		if isDropped {
			selection = s.abrCtl.UpdateSelectionLowest(sets, index)
		} else {
			selection = s.abrCtl.UpdateSelection(sets, index)
		}

		adapBW := make(map[int]float64, len(sets))
		bw := s.bwMeter.BandwidthEstimate()
		for id := range sets {
			adapBW[id] = bw
		}

		s.mu.Lock()
		s.currentSelections = selection
		s.index = index
		s.mu.Unlock()

		segments := make(map[int]*mpd.Segment, len(sets))
		missing := false
		for asID, as := range sets {
			reprID, ok := selection[asID]
			if !ok {
				missing = true
				break
			}
			repr, ok := as.Representations[reprID]
			if !ok {
				missing = true
				break
			}
			seg, ok := repr.Segments[index]
			if !ok {
				missing = true
				break
			}
			segments[asID] = seg
		}
		if missing {
			s.log.With("index", index).Info("no segment at index for a selected representation, ending stream")
			s.setEnd()
			return apperr.NewMissingSegmentError(-1, index)
		}

		s.notifyStart(index, adapBW, segments)

		if err := s.ensureInitialized(ctx, sets, selection); err != nil {
			s.log.WithError(err).Warn("initialization segment download failed")
		}

		dropped, err := s.downloadGroup(ctx, segments)
		if err != nil {
			return err
		}
		if dropped {
			s.DropIndex(index)
			continue
		}

		stats := make(map[int]model.DownloadStats, len(segments))
		for asID, seg := range segments {
			if st, ok := s.bwMeter.Stats(seg.URL); ok {
				stats[asID] = st
			}
		}

		s.bwMeter.SegmentGroupComplete()

		s.notifyComplete(index, segments, stats)
		s.bufMgr.Enqueue(index, segments)

		s.mu.Lock()
		s.index++
		s.hasDroppedIndex = false
		s.mu.Unlock()
	}
}

func (s *Scheduler) ensureInitialized(ctx context.Context, sets map[int]*mpd.AdaptationSet, selection abr.Selection) error {
	for asID, reprID := range selection {
		key := [2]int{asID, reprID}
		s.mu.RLock()
		_, done := s.initializedReprs[key]
		s.mu.RUnlock()
		if done {
			continue
		}

		repr, ok := sets[asID].Representations[reprID]
		if !ok {
			continue
		}

		if err := s.transport.Download(ctx, transport.Request{URL: repr.Initialization}); err != nil {
			return err
		}
		if _, err := s.transport.WaitComplete(ctx, repr.Initialization); err != nil {
			return err
		}

		s.mu.Lock()
		s.initializedReprs[key] = struct{}{}
		s.mu.Unlock()
	}
	return nil
}

func (s *Scheduler) downloadGroup(ctx context.Context, segments map[int]*mpd.Segment) (dropped bool, err error) {
	for _, seg := range segments {
		if dlErr := s.transport.Download(ctx, transport.Request{URL: seg.URL}); dlErr != nil {
			return false, dlErr
		}
	}
	for _, seg := range segments {
		result, waitErr := s.transport.WaitComplete(ctx, seg.URL)
		if waitErr != nil && result.Outcome != transport.OutcomeDropped {
			return false, waitErr
		}
		if result.Outcome == transport.OutcomeDropped {
			dropped = true
		}
	}
	return dropped, nil
}

func (s *Scheduler) notifyStart(index int, adapBW map[int]float64, segments map[int]*mpd.Segment) {
	s.mu.RLock()
	listeners := append([]EventListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l.OnSegmentDownloadStart(index, adapBW, segments)
	}
}

func (s *Scheduler) notifyComplete(index int, segments map[int]*mpd.Segment, stats map[int]model.DownloadStats) {
	s.mu.RLock()
	listeners := append([]EventListener(nil), s.listeners...)
	s.mu.RUnlock()
	for _, l := range listeners {
		l.OnSegmentDownloadComplete(index, segments, stats)
	}
}

func (s *Scheduler) selectedAdaptationSets(m *mpd.MPD) map[int]*mpd.AdaptationSet {
	if m == nil {
		return nil
	}
	lo, hi, all := parseSelectRange(s.cfg.SelectAS)
	if all {
		return m.AdaptationSets
	}
	out := make(map[int]*mpd.AdaptationSet)
	for id, as := range m.AdaptationSets {
		if id >= lo && id <= hi {
			out[id] = as
		}
	}
	return out
}

// parseSelectRange parses the "a-b", "a-", "-b", "-", "a" range syntax
// from spec.md §4.6. all is true for "-" or an empty string (every set).
func parseSelectRange(spec string) (lo, hi int, all bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "-" {
		return 0, 0, true
	}
	if !strings.Contains(spec, "-") {
		v, err := strconv.Atoi(spec)
		if err != nil {
			return 0, 0, true
		}
		return v, v, false
	}
	parts := strings.SplitN(spec, "-", 2)
	lo, loErr := strconv.Atoi(parts[0])
	if loErr != nil {
		lo = 0
	}
	hi, hiErr := strconv.Atoi(parts[1])
	if hiErr != nil {
		hi = int(^uint(0) >> 1)
	}
	return lo, hi, false
}

func firstSegmentAcross(sets map[int]*mpd.AdaptationSet) int {
	first, _, ok := segmentRangeAcross(sets)
	if !ok {
		return 0
	}
	return first
}

func segmentRangeAcross(sets map[int]*mpd.AdaptationSet) (first, last int, ok bool) {
	first, last = -1, -1
	for _, as := range sets {
		for _, repr := range as.Representations {
			f, l, has := repr.SegmentIDRange()
			if !has {
				continue
			}
			if first == -1 || f < first {
				first = f
			}
			if last == -1 || l > last {
				last = l
			}
		}
	}
	if first == -1 {
		return 0, 0, false
	}
	return first, last, true
}
