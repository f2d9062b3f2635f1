package abr

import (
	"sync"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
)

// DashController is the default, hybrid ABR policy from spec.md §4.5: an
// ideal bandwidth-budget selection adjusted by buffer occupancy, with a
// download-time check that lets a higher-bitrate "last" selection survive
// another segment when there's room in the safe band. Grounded on the
// original source's abr_dash module.
type DashController struct {
	bw  interface{ BandwidthEstimate() float64 }
	buf interface{ Level() float64 }

	panicBuffer        float64
	safeBuffer          float64
	maxSegmentDuration  func() float64

	mu   sync.Mutex
	last Selection
}

func (c *DashController) Kind() Kind { return KindDash }

func (c *DashController) UpdateSelection(sets map[int]*mpd.AdaptationSet, index int) Selection {
	bw := c.bw.BandwidthEstimate()
	budgets := budgetSplit(sets, bw)

	ideal := make(Selection, len(sets))
	for id, as := range sets {
		ideal[id] = chooseIdeal(as, budgets[id])
	}

	c.mu.Lock()
	last := c.last
	c.mu.Unlock()

	if last == nil {
		c.mu.Lock()
		c.last = ideal
		c.mu.Unlock()
		return ideal
	}

	bufferLevel := c.buf.Level()
	maxSegDur := 0.0
	if c.maxSegmentDuration != nil {
		maxSegDur = c.maxSegmentDuration()
	}

	final := make(Selection, len(sets))
	for id, as := range sets {
		lastID, hasLast := last[id]
		idealID := ideal[id]
		if !hasLast {
			final[id] = idealID
			continue
		}
		lastRepr := as.Representations[lastID]
		idealRepr := as.Representations[idealID]
		if lastRepr == nil || idealRepr == nil {
			final[id] = idealID
			continue
		}

		switch {
		case bufferLevel < c.panicBuffer:
			if lastRepr.Bandwidth < idealRepr.Bandwidth {
				final[id] = lastRepr.ID
			} else {
				final[id] = idealRepr.ID
			}
		case bufferLevel > c.safeBuffer && lastRepr.Bandwidth > idealRepr.Bandwidth:
			budget := budgets[id]
			if budget <= 0 {
				final[id] = idealRepr.ID
				break
			}
			downloadTime := float64(lastRepr.Bandwidth+idealRepr.Bandwidth) * maxSegDur / budget
			if downloadTime <= bufferLevel {
				final[id] = lastRepr.ID
			} else {
				final[id] = idealRepr.ID
			}
		default:
			final[id] = idealRepr.ID
		}
	}

	c.mu.Lock()
	c.last = final
	c.mu.Unlock()
	return final
}

func (c *DashController) UpdateSelectionLowest(sets map[int]*mpd.AdaptationSet, index int) Selection {
	return lowestSelection(sets)
}
