package abr

import "github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"

// BandwidthController picks the highest-bandwidth representation that fits
// the common budget split, per spec.md §4.5, grounded on the original
// source's abr_bandwidth module.
type BandwidthController struct {
	bw interface{ BandwidthEstimate() float64 }
}

func (c *BandwidthController) Kind() Kind { return KindBandwidth }

func (c *BandwidthController) UpdateSelection(sets map[int]*mpd.AdaptationSet, index int) Selection {
	budgets := budgetSplit(sets, c.bw.BandwidthEstimate())
	sel := make(Selection, len(sets))
	for id, as := range sets {
		sel[id] = chooseIdeal(as, budgets[id])
	}
	return sel
}

func (c *BandwidthController) UpdateSelectionLowest(sets map[int]*mpd.AdaptationSet, index int) Selection {
	return lowestSelection(sets)
}
