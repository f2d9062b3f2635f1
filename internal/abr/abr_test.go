package abr

import (
	"testing"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedBandwidth float64

func (f fixedBandwidth) BandwidthEstimate() float64 { return float64(f) }

type fixedLevel float64

func (f fixedLevel) Level() float64 { return float64(f) }

func videoSet(id int, bitrates ...int) *mpd.AdaptationSet {
	as := &mpd.AdaptationSet{ID: id, ContentType: "video", Representations: make(map[int]*mpd.Representation)}
	for i, bw := range bitrates {
		as.Representations[i] = &mpd.Representation{ID: i, Bandwidth: bw}
	}
	return as
}

func audioSet(id int, bitrates ...int) *mpd.AdaptationSet {
	as := videoSet(id, bitrates...)
	as.ContentType = "audio"
	return as
}

func TestBudgetSplitSingleKindEvenlyShared(t *testing.T) {
	sets := map[int]*mpd.AdaptationSet{
		0: videoSet(0, 500_000),
		1: videoSet(1, 500_000),
	}
	budgets := budgetSplit(sets, 1_000_000)
	assert.InDelta(t, 350_000, budgets[0], 1)
	assert.InDelta(t, 350_000, budgets[1], 1)
}

func TestBudgetSplitMixedKinds80_20(t *testing.T) {
	sets := map[int]*mpd.AdaptationSet{
		0: videoSet(0, 500_000),
		1: audioSet(1, 128_000),
	}
	budgets := budgetSplit(sets, 1_000_000)
	assert.InDelta(t, 0.7*1_000_000*0.8, budgets[0], 1)
	assert.InDelta(t, 0.7*1_000_000*0.2, budgets[1], 1)
}

func TestChooseIdealPicksHighestBelowBudget(t *testing.T) {
	as := videoSet(0, 300_000, 600_000, 1_200_000)
	assert.Equal(t, 1, chooseIdeal(as, 700_000))
}

func TestChooseIdealFallsBackToLowestWhenNoneFit(t *testing.T) {
	as := videoSet(0, 300_000, 600_000, 1_200_000)
	assert.Equal(t, 0, chooseIdeal(as, 100_000))
}

func TestBandwidthControllerSelectsWithinBudget(t *testing.T) {
	c := &BandwidthController{bw: fixedBandwidth(2_000_000)} // budget = 0.7 * 2 Mbps = 1.4 Mbps
	sets := map[int]*mpd.AdaptationSet{0: videoSet(0, 300_000, 900_000, 2_000_000)}
	sel := c.UpdateSelection(sets, 0)
	assert.Equal(t, 1, sel[0])
}

func TestBandwidthControllerLowestFallback(t *testing.T) {
	c := &BandwidthController{bw: fixedBandwidth(1_000_000)}
	sets := map[int]*mpd.AdaptationSet{0: videoSet(0, 300_000, 900_000, 2_000_000)}
	sel := c.UpdateSelectionLowest(sets, 0)
	assert.Equal(t, 0, sel[0])
}

func TestBufferControllerLowWhenBelowReservoir(t *testing.T) {
	c := &BufferController{buf: fixedLevel(0.5), bufferDuration: 10} // occ = 0.05
	sets := map[int]*mpd.AdaptationSet{0: videoSet(0, 300_000, 900_000, 2_000_000)}
	sel := c.UpdateSelection(sets, 0)
	assert.Equal(t, 0, sel[0])
}

func TestBufferControllerHighWhenAboveUpperReservoir(t *testing.T) {
	c := &BufferController{buf: fixedLevel(9.5), bufferDuration: 10} // occ = 0.95
	sets := map[int]*mpd.AdaptationSet{0: videoSet(0, 300_000, 900_000, 2_000_000)}
	sel := c.UpdateSelection(sets, 0)
	assert.Equal(t, 2, sel[0])
}

func TestBufferControllerIntermediateOccupancy(t *testing.T) {
	c := &BufferController{buf: fixedLevel(5), bufferDuration: 10} // occ = 0.5, midway
	sets := map[int]*mpd.AdaptationSet{0: videoSet(0, 300_000, 900_000, 2_000_000)}
	sel := c.UpdateSelection(sets, 0)
	assert.Equal(t, 1, sel[0])
}

func TestDashControllerFirstCallReturnsIdeal(t *testing.T) {
	c := &DashController{
		bw:                 fixedBandwidth(1_000_000),
		buf:                fixedLevel(5),
		panicBuffer:        2.5,
		safeBuffer:         6,
		maxSegmentDuration: func() float64 { return 4 },
	}
	sets := map[int]*mpd.AdaptationSet{0: videoSet(0, 300_000, 900_000, 2_000_000)}
	sel := c.UpdateSelection(sets, 0)
	require.Contains(t, sel, 0)
}

func TestDashControllerPanicsDownToLowerRate(t *testing.T) {
	c := &DashController{
		bw:                 fixedBandwidth(2_000_000),
		buf:                fixedLevel(5),
		panicBuffer:        2.5,
		safeBuffer:         6,
		maxSegmentDuration: func() float64 { return 4 },
	}
	sets := map[int]*mpd.AdaptationSet{0: videoSet(0, 300_000, 900_000, 2_000_000)}
	// seed "last" at the highest rate
	c.UpdateSelection(sets, 0)
	c.last[0] = 2

	// now panic-level buffer with a much lower ideal bandwidth
	c.bw = fixedBandwidth(100_000)
	c.buf = fixedLevel(1) // below panicBuffer
	sel := c.UpdateSelection(sets, 1)
	assert.Equal(t, 0, sel[0]) // idealRepr.Bandwidth < lastRepr.Bandwidth so min(last, ideal) wins -> ideal
}

func TestHybridControllerKeepsLastInSafeBandWithoutDownloadCheck(t *testing.T) {
	c := &HybridController{
		bw:          fixedBandwidth(100_000), // ideal will now be lowest
		buf:         fixedLevel(8),           // above safeBuffer
		panicBuffer: 2.5,
		safeBuffer:  6,
	}
	sets := map[int]*mpd.AdaptationSet{0: videoSet(0, 300_000, 900_000, 2_000_000)}
	c.last = Selection{0: 2} // previously at the top rate
	sel := c.UpdateSelection(sets, 1)
	assert.Equal(t, 2, sel[0], "hybrid keeps last without a download-time feasibility check")
}

func TestFixedControllerCyclesThroughQualities(t *testing.T) {
	as := videoSet(0, 300_000, 900_000, 2_000_000)
	as.Representations[0].Segments = map[int]*mpd.Segment{5: {}}
	as.Representations[1].Segments = map[int]*mpd.Segment{5: {}}
	as.Representations[2].Segments = map[int]*mpd.Segment{5: {}}

	sets := map[int]*mpd.AdaptationSet{0: as}

	c := &FixedController{quality: 1}
	sel := c.UpdateSelection(sets, 5)
	assert.Equal(t, 1, sel[0])
}

func TestFixedControllerSkipsSetWithoutSegmentAtIndex(t *testing.T) {
	as := videoSet(0, 300_000)
	as.Representations[0].Segments = map[int]*mpd.Segment{5: {}}
	sets := map[int]*mpd.AdaptationSet{0: as}

	c := &FixedController{quality: 0}
	sel := c.UpdateSelection(sets, 99)
	_, ok := sel[0]
	assert.False(t, ok)
}

func TestBuildDispatchesOnKind(t *testing.T) {
	deps := Deps{
		BandwidthMeter: fixedBandwidth(1_000_000),
		BufferManager:  fixedLevel(5),
	}
	assert.Equal(t, KindBandwidth, Build(KindBandwidth, deps).Kind())
	assert.Equal(t, KindBuffer, Build(KindBuffer, deps).Kind())
	assert.Equal(t, KindHybrid, Build(KindHybrid, deps).Kind())
	assert.Equal(t, KindFixed, Build(KindFixed, deps).Kind())
	assert.Equal(t, KindDash, Build(KindDash, deps).Kind())
	assert.Equal(t, KindDash, Build(Kind("unknown"), deps).Kind())
}
