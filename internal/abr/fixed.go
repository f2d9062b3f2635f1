package abr

import "github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"

// FixedController always selects a fixed quality step per adaptation set,
// per spec.md §4.5: representation min(repr_id with segment[index]) +
// (quality mod n), or no selection if no representation has the index.
type FixedController struct {
	quality int
}

func (c *FixedController) Kind() Kind { return KindFixed }

func (c *FixedController) UpdateSelection(sets map[int]*mpd.AdaptationSet, index int) Selection {
	sel := make(Selection, len(sets))
	for id, as := range sets {
		repr, ok := c.selectForIndex(as, index)
		if !ok {
			continue
		}
		sel[id] = repr
	}
	return sel
}

func (c *FixedController) selectForIndex(as *mpd.AdaptationSet, index int) (int, bool) {
	var withSeg []*mpd.Representation
	for _, r := range as.Representations {
		if _, ok := r.Segments[index]; ok {
			withSeg = append(withSeg, r)
		}
	}
	if len(withSeg) == 0 {
		return 0, false
	}

	firstID := withSeg[0].ID
	for _, r := range withSeg[1:] {
		if r.ID < firstID {
			firstID = r.ID
		}
	}

	n := len(withSeg)
	return firstID + (c.quality % n), true
}

func (c *FixedController) UpdateSelectionLowest(sets map[int]*mpd.AdaptationSet, index int) Selection {
	return lowestSelection(sets)
}
