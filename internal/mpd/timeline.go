package mpd

// MergeDynamic merges a freshly fetched dynamic MPD into the previous one,
// the way the teacher's MergeTimelines combines two SegmentTimelines: union
// the segments of each matching Representation, letting the newly fetched
// MPD win on overlapping indices, so a live presentation's growing timeline
// never loses segments already known from an earlier refresh.
func MergeDynamic(prev, next *MPD) *MPD {
	if prev == nil {
		return next
	}
	if next == nil {
		return prev
	}

	for asID, prevAS := range prev.AdaptationSets {
		nextAS, ok := next.AdaptationSets[asID]
		if !ok {
			next.AdaptationSets[asID] = prevAS
			continue
		}
		for reprID, prevRep := range prevAS.Representations {
			nextRep, ok := nextAS.Representations[reprID]
			if !ok {
				nextAS.Representations[reprID] = prevRep
				continue
			}
			for segID, seg := range prevRep.Segments {
				if _, exists := nextRep.Segments[segID]; !exists {
					nextRep.Segments[segID] = seg
				}
			}
		}
	}

	return next
}
