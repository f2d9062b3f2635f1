package abr

import (
	"sync"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
)

// HybridController is DashController without the download-time check: in
// the safe band it simply keeps "last" whenever it has higher bandwidth
// than "ideal", per spec.md §4.5.
type HybridController struct {
	bw  interface{ BandwidthEstimate() float64 }
	buf interface{ Level() float64 }

	panicBuffer float64
	safeBuffer  float64

	mu   sync.Mutex
	last Selection
}

func (c *HybridController) Kind() Kind { return KindHybrid }

func (c *HybridController) UpdateSelection(sets map[int]*mpd.AdaptationSet, index int) Selection {
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
		case bufferLevel > c.safeBuffer:
			if lastRepr.Bandwidth > idealRepr.Bandwidth {
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

func (c *HybridController) UpdateSelectionLowest(sets map[int]*mpd.AdaptationSet, index int) Selection {
	return lowestSelection(sets)
}
