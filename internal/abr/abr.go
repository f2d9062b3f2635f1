// Package abr implements the pluggable ABR Controllers from spec.md §4.5:
// bandwidth-based, buffer-occupancy-based, dash-hybrid (the default),
// plain hybrid, and fixed-quality selection. Every controller is
// dispatched through a typed Kind string plus a builder function — never
// reflection — per the capability-composition design note in spec.md §9.
package abr

import (
	"sort"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
)

// Kind identifies an ABR policy.
type Kind string

const (
	KindBandwidth Kind = "bandwidth"
	KindBuffer    Kind = "buffer"
	KindDash      Kind = "dash"
	KindHybrid    Kind = "hybrid"
	KindFixed     Kind = "fixed"
)

// Selection maps adaptation set id to the chosen representation id. A
// missing entry (or a negative value) means no representation could serve
// that set at the given index.
type Selection map[int]int

// Controller is implemented by every ABR policy.
type Controller interface {
	Kind() Kind
	// UpdateSelection chooses a representation per adaptation set for the
	// segment at index.
	UpdateSelection(sets map[int]*mpd.AdaptationSet, index int) Selection
	// UpdateSelectionLowest is the fallback used after a dropped
	// transport, per spec.md §4.6 step S4: the lowest-bandwidth
	// representation for each set.
	UpdateSelectionLowest(sets map[int]*mpd.AdaptationSet, index int) Selection
}

// Deps bundles everything a controller's builder might need; individual
// builders use only the fields relevant to their policy.
type Deps struct {
	BandwidthMeter interface{ BandwidthEstimate() float64 }
	BufferManager  interface {
		Level() float64
	}
	BufferDuration    float64
	PanicBufferLevel  float64
	SafeBufferLevel   float64
	MaxSegmentDuration func() float64
	FixedQuality      int
}

// Build constructs the Controller for kind. Unknown kinds fall back to
// dash, the default policy.
func Build(kind Kind, deps Deps) Controller {
	switch kind {
	case KindBandwidth:
		return &BandwidthController{bw: deps.BandwidthMeter}
	case KindBuffer:
		return &BufferController{buf: deps.BufferManager, bufferDuration: deps.BufferDuration}
	case KindHybrid:
		return &HybridController{bw: deps.BandwidthMeter, buf: deps.BufferManager, panicBuffer: deps.PanicBufferLevel, safeBuffer: deps.SafeBufferLevel}
	case KindFixed:
		return &FixedController{quality: deps.FixedQuality}
	case KindDash:
		fallthrough
	default:
		return &DashController{
			bw:                 deps.BandwidthMeter,
			buf:                deps.BufferManager,
			panicBuffer:        deps.PanicBufferLevel,
			safeBuffer:         deps.SafeBufferLevel,
			maxSegmentDuration: deps.MaxSegmentDuration,
		}
	}
}

// budgetSplit implements the common budget split from spec.md §4.5:
// A = 0.7*B overall; split 0.8/0.2 between video and audio sets when both
// kinds are present, or evenly across all sets otherwise. It returns the
// per-set budget for each adaptation set id.
func budgetSplit(sets map[int]*mpd.AdaptationSet, bw float64) map[int]float64 {
	available := 0.7 * bw

	numVideo, numAudio := 0, 0
	for _, as := range sets {
		if as.ContentType == "video" {
			numVideo++
		} else {
			numAudio++
		}
	}

	out := make(map[int]float64, len(sets))
	if numVideo == 0 || numAudio == 0 {
		total := numVideo + numAudio
		if total == 0 {
			return out
		}
		perSet := available / float64(total)
		for id := range sets {
			out[id] = perSet
		}
		return out
	}

	perVideo := available * 0.8 / float64(numVideo)
	perAudio := available * 0.2 / float64(numAudio)
	for id, as := range sets {
		if as.ContentType == "video" {
			out[id] = perVideo
		} else {
			out[id] = perAudio
		}
	}
	return out
}

// chooseIdeal picks the highest-bandwidth representation strictly below
// budget; if none qualifies, the lowest-bandwidth representation.
func chooseIdeal(as *mpd.AdaptationSet, budget float64) int {
	reprs := sortedByBandwidthDesc(as)
	if len(reprs) == 0 {
		return -1
	}
	for _, r := range reprs {
		if float64(r.Bandwidth) < budget {
			return r.ID
		}
	}
	return reprs[len(reprs)-1].ID
}

func sortedByBandwidthDesc(as *mpd.AdaptationSet) []*mpd.Representation {
	out := make([]*mpd.Representation, 0, len(as.Representations))
	for _, r := range as.Representations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bandwidth > out[j].Bandwidth })
	return out
}

// lowestSelection picks the lowest-bandwidth representation for each set,
// the shared update_selection_lowest fallback.
func lowestSelection(sets map[int]*mpd.AdaptationSet) Selection {
	sel := make(Selection, len(sets))
	for id, as := range sets {
		reprs := sortedByBandwidthDesc(as)
		if len(reprs) == 0 {
			continue
		}
		sel[id] = reprs[len(reprs)-1].ID
	}
	return sel
}
