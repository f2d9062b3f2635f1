// Package analyzer implements the observer from spec.md §4.8: it
// subscribes to Bandwidth, Scheduler, Player, and Buffer events and
// renders per-segment logs, a stall table, a summary, and a JSON dump.
// Plotting (matplotlib, in the original source) is out of scope per
// spec.md's Non-goals; the table and JSON outputs are grounded on the
// same original source's analyzer module.
package analyzer

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/buffer"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/model"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
)

// segmentRecord is the per-segment bookkeeping entry, indexed by URL the
// way the original analyzer keys its dict.
type segmentRecord struct {
	Index       int     `json:"index"`
	URL         string  `json:"url"`
	ReprID      int     `json:"repr_id"`
	AdapSetID   int     `json:"adap_set_id"`
	Bitrate     int     `json:"bitrate"`
	Quality     int     `json:"quality"`

	StartTime   time.Time `json:"-"`
	StopTime    time.Time `json:"-"`
	FirstByteAt time.Time `json:"-"`
	LastByteAt  time.Time `json:"-"`

	AdaptationThroughput float64 `json:"adaptation_throughput"`
	SegmentThroughput    float64 `json:"segment_throughput"`

	TotalBytes    int64 `json:"total_bytes"`
	ReceivedBytes int64 `json:"received_bytes"`
	StoppedBytes  int64 `json:"stopped_bytes"`
}

func (s *segmentRecord) ratio() float64 {
	if s.TotalBytes == 0 {
		return 0
	}
	return float64(s.ReceivedBytes) / float64(s.TotalBytes)
}

type bufferLevelSample struct {
	Time  float64 `json:"time"`
	Level float64 `json:"level"`
}

type stateSample struct {
	Time     float64 `json:"time"`
	State    string  `json:"state"`
	Position float64 `json:"position"`
}

type stall struct {
	Start float64 `json:"time_start"`
	End   float64 `json:"time_end"`
}

type bandwidthSample struct {
	Time      float64 `json:"time"`
	Bandwidth float64 `json:"bandwidth"`
}

// Analyzer is the observer described in spec.md §4.8.
type Analyzer struct {
	mu         sync.Mutex
	startTime  time.Time
	mpdCurrent func() *mpd.MPD

	segmentsByURL map[string]*segmentRecord
	bufferLevels  []bufferLevelSample
	states        []stateSample
	bandwidths    []bandwidthSample
	position      float64

	log *telemetry.Logger
}

func New(mpdCurrent func() *mpd.MPD, log *telemetry.Logger) *Analyzer {
	if log == nil {
		log = telemetry.Noop()
	}
	return &Analyzer{
		startTime:     time.Now(),
		mpdCurrent:    mpdCurrent,
		segmentsByURL: make(map[string]*segmentRecord),
		log:           log.WithComponent("analyzer"),
	}
}

func (a *Analyzer) since(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return t.Sub(a.startTime).Seconds()
}

func (a *Analyzer) nowSince() float64 {
	return time.Since(a.startTime).Seconds()
}

// --- player.EventListener ---

func (a *Analyzer) OnStateChange(from, to model.PlaybackState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states = append(a.states, stateSample{Time: a.nowSince(), State: to.String(), Position: a.position})
}

func (a *Analyzer) OnPositionChange(position float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.position = position
}

func (a *Analyzer) OnSegmentPlaybackStart(item *buffer.Item) {}

// --- buffer.LevelListener ---

func (a *Analyzer) OnBufferLevelUpdate(level float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bufferLevels = append(a.bufferLevels, bufferLevelSample{Time: a.nowSince(), Level: level})
}

// --- bwmeter.UpdateListener ---

func (a *Analyzer) OnBandwidthUpdate(bw float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bandwidths = append(a.bandwidths, bandwidthSample{Time: a.nowSince(), Bandwidth: bw})
}

// --- scheduler.EventListener ---

func (a *Analyzer) OnSegmentDownloadStart(index int, adapBW map[int]float64, segments map[int]*mpd.Segment) {
	current := a.mpdCurrent()
	if current == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for asID, seg := range segments {
		as, ok := current.AdaptationSets[asID]
		if !ok {
			continue
		}
		repr, ok := as.Representations[seg.ReprID]
		if !ok {
			continue
		}
		minReprID := minReprID(as)

		a.segmentsByURL[seg.URL] = &segmentRecord{
			Index:                index,
			URL:                  seg.URL,
			ReprID:               seg.ReprID,
			AdapSetID:            asID,
			Bitrate:              repr.Bandwidth,
			Quality:              seg.ReprID - minReprID,
			AdaptationThroughput: adapBW[asID],
		}
	}
}

func minReprID(as *mpd.AdaptationSet) int {
	min := -1
	for id := range as.Representations {
		if min == -1 || id < min {
			min = id
		}
	}
	return min
}

func (a *Analyzer) OnSegmentDownloadComplete(index int, segments map[int]*mpd.Segment, stats map[int]model.DownloadStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for asID, seg := range segments {
		st, ok := stats[asID]
		if !ok {
			continue
		}
		rec, ok := a.segmentsByURL[seg.URL]
		if !ok {
			continue
		}
		rec.StartTime = st.StartTime
		rec.StopTime = st.StopTime
		rec.FirstByteAt = st.FirstByteAt
		rec.LastByteAt = st.LastByteAt
		rec.TotalBytes = st.TotalBytes
		rec.ReceivedBytes = st.ReceivedBytes
		rec.StoppedBytes = st.StoppedBytes
		if d := st.Duration().Seconds(); d > 0 {
			rec.SegmentThroughput = 8 * float64(st.ReceivedBytes) / d
		}
	}
}

// Report is the structure rendered by WriteTable and DumpJSON.
type Report struct {
	NumStall           int               `json:"num_stall"`
	DurStall           float64           `json:"dur_stall"`
	AvgBitrate         float64           `json:"avg_bitrate"`
	NumQualitySwitches int               `json:"num_quality_switches"`
	Segments           []segmentRecord   `json:"segments"`
	Stalls             []stall           `json:"stalls"`
	States             []stateSample     `json:"states"`
	BandwidthEstimate  []bandwidthSample `json:"bandwidth_estimate"`
	BufferLevel        []bufferLevelSample `json:"buffer_level"`
}

// Build computes the final report: quality switches, stall intervals
// (consecutive BUFFERING->READY state pairs), and average bitrate.
func (a *Analyzer) Build() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	segments := make([]segmentRecord, 0, len(a.segmentsByURL))
	for _, rec := range a.segmentsByURL {
		segments = append(segments, *rec)
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })

	var lastQuality *int
	qualitySwitches := 0
	var totalBitrate int64
	for i := range segments {
		if lastQuality == nil {
			q := segments[i].Quality
			lastQuality = &q
		} else if *lastQuality != segments[i].Quality {
			q := segments[i].Quality
			lastQuality = &q
			qualitySwitches++
		}
		totalBitrate += int64(segments[i].Bitrate)
	}
	avgBitrate := 0.0
	if len(segments) > 0 {
		avgBitrate = float64(totalBitrate) / float64(len(segments))
	}

	var stalls []stall
	var bufferingStart *float64
	for _, s := range a.states {
		switch s.State {
		case model.StateBuffering.String():
			if bufferingStart == nil {
				t := s.Time
				bufferingStart = &t
			}
		case model.StateReady.String():
			if bufferingStart != nil {
				stalls = append(stalls, stall{Start: *bufferingStart, End: s.Time})
				bufferingStart = nil
			}
		}
	}

	var durStall float64
	for _, st := range stalls {
		durStall += st.End - st.Start
	}

	return Report{
		NumStall:           len(stalls),
		DurStall:           durStall,
		AvgBitrate:         avgBitrate,
		NumQualitySwitches: qualitySwitches,
		Segments:           segments,
		Stalls:             stalls,
		States:             append([]stateSample(nil), a.states...),
		BandwidthEstimate:  append([]bandwidthSample(nil), a.bandwidths...),
		BufferLevel:        append([]bufferLevelSample(nil), a.bufferLevels...),
	}
}

// WriteTable renders the per-segment log, stall table, and summary in the
// fixed-width columnar format from spec.md §6.
func (a *Analyzer) WriteTable(w io.Writer) error {
	report := a.Build()

	if _, err := fmt.Fprintf(w, "%-10s%-10s%-10s%-10s%-10s%-10s%-10s%-10s%-20s\n",
		"Index", "Start", "End", "Quality", "Bitrate", "Adap-Th", "Seg-Th", "Ratio", "URL"); err != nil {
		return err
	}
	for _, seg := range report.Segments {
		if _, err := fmt.Fprintf(w, "%-10d%-10.2f%-10.2f%-10d%-10d%-10.0f%-10.0f%-10.2f%-20s\n",
			seg.Index, a.since(seg.StartTime), a.since(seg.StopTime), seg.Quality, seg.Bitrate,
			seg.AdaptationThroughput, seg.SegmentThroughput, seg.ratio(), seg.URL); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(w, "\nStalls:\n%-10s%-10s%-10s\n", "Start", "End", "Duration"); err != nil {
		return err
	}
	for _, s := range report.Stalls {
		if _, err := fmt.Fprintf(w, "%-10.2f%-10.2f%-10.2f\n", s.Start, s.End, s.End-s.Start); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "\nNumber of Stalls: %d\nTotal seconds of stalls: %.2f\nAverage bitrate: %.2f bps\nNumber of quality switches: %d\n",
		report.NumStall, report.DurStall, report.AvgBitrate, report.NumQualitySwitches)
	return err
}

// DumpJSON writes the full report as JSON, per spec.md §6's field list.
func (a *Analyzer) DumpJSON(w io.Writer) error {
	report := a.Build()
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
