package abr

import (
	"sort"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
)

const (
	reservoir      = 0.1
	upperReservoir = 0.9
)

// BufferController ignores bandwidth entirely and maps buffer occupancy to
// a bitrate via a piecewise-constant rate map, per spec.md §4.5, grounded
// on the original source's abr_buffer module.
type BufferController struct {
	buf            interface{ Level() float64 }
	bufferDuration float64
}

func (c *BufferController) Kind() Kind { return KindBuffer }

func (c *BufferController) UpdateSelection(sets map[int]*mpd.AdaptationSet, index int) Selection {
	occ := c.buf.Level() / c.bufferDuration

	sel := make(Selection, len(sets))
	for id, as := range sets {
		sel[id] = chooseByOccupancy(as, occ)
	}
	return sel
}

func (c *BufferController) UpdateSelectionLowest(sets map[int]*mpd.AdaptationSet, index int) Selection {
	return lowestSelection(sets)
}

func chooseByOccupancy(as *mpd.AdaptationSet, occ float64) int {
	reprs := make([]*mpd.Representation, 0, len(as.Representations))
	for _, r := range as.Representations {
		reprs = append(reprs, r)
	}
	sort.Slice(reprs, func(i, j int) bool { return reprs[i].Bandwidth < reprs[j].Bandwidth })
	if len(reprs) == 0 {
		return -1
	}

	if occ <= reservoir {
		return reprs[0].ID
	}
	if occ >= upperReservoir {
		return reprs[len(reprs)-1].ID
	}

	var intermediate []*mpd.Representation
	if len(reprs) > 2 {
		intermediate = reprs[1 : len(reprs)-1]
	}

	// Rate map: ascending markers between reservoir and upperReservoir, one
	// per intermediate bitrate, plus the two reservoir bounds. Pick the
	// bitrate of the smallest marker that is still >= occ.
	markerLen := (upperReservoir - reservoir) / float64(len(intermediate)+1)
	marker := reservoir + markerLen
	for _, r := range intermediate {
		if marker >= occ {
			return r.ID
		}
		marker += markerLen
	}
	return reprs[len(reprs)-1].ID
}
