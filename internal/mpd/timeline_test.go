package mpd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func repWithSegments(ids ...int) *Representation {
	rep := &Representation{ID: 0, Segments: make(map[int]*Segment)}
	for _, id := range ids {
		rep.Segments[id] = &Segment{ReprID: 0}
	}
	return rep
}

func TestMergeDynamicUnionsSegments(t *testing.T) {
	prev := &MPD{
		Type: "dynamic",
		AdaptationSets: map[int]*AdaptationSet{
			0: {ID: 0, Representations: map[int]*Representation{0: repWithSegments(1, 2, 3)}},
		},
	}
	next := &MPD{
		Type: "dynamic",
		AdaptationSets: map[int]*AdaptationSet{
			0: {ID: 0, Representations: map[int]*Representation{0: repWithSegments(3, 4, 5)}},
		},
	}

	merged := MergeDynamic(prev, next)
	rep := merged.AdaptationSets[0].Representations[0]
	assert.Len(t, rep.Segments, 5)
	for _, id := range []int{1, 2, 3, 4, 5} {
		_, ok := rep.Segments[id]
		assert.True(t, ok, "segment %d missing", id)
	}
}

func TestMergeDynamicKeepsRepresentationMissingFromRefresh(t *testing.T) {
	prev := &MPD{
		Type: "dynamic",
		AdaptationSets: map[int]*AdaptationSet{
			0: {ID: 0, Representations: map[int]*Representation{
				0: repWithSegments(1),
				1: repWithSegments(1),
			}},
		},
	}
	next := &MPD{
		Type: "dynamic",
		AdaptationSets: map[int]*AdaptationSet{
			0: {ID: 0, Representations: map[int]*Representation{
				0: repWithSegments(2),
			}},
		},
	}

	merged := MergeDynamic(prev, next)
	reps := merged.AdaptationSets[0].Representations
	assert.Len(t, reps, 2)
	assert.Len(t, reps[0].Segments, 2)
	assert.Len(t, reps[1].Segments, 1)
}

func TestMergeDynamicNilHandling(t *testing.T) {
	m := &MPD{Type: "dynamic", AdaptationSets: map[int]*AdaptationSet{}}
	assert.Same(t, m, MergeDynamic(nil, m))
	assert.Same(t, m, MergeDynamic(m, nil))
}
