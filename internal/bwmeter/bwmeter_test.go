package bwmeter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureListener struct {
	updates []float64
}

func (c *captureListener) OnBandwidthUpdate(bw float64) {
	c.updates = append(c.updates, bw)
}

func TestMeterSeedsEstimateFromMaxInitialBitrate(t *testing.T) {
	m := New(2_000_000, 0.5, nil)
	assert.Equal(t, float64(2_000_000), m.BandwidthEstimate())
}

func TestMeterSegmentGroupCompleteSmoothsEstimate(t *testing.T) {
	m := New(1_000_000, 0.5, nil)
	cap := &captureListener{}
	m.AddListener(cap)

	m.OnTransferStart("http://a/seg1.m4s")
	m.groupStart = time.Now().Add(-1 * time.Second) // force a known elapsed window
	m.OnBytesTransferred(125_000, "http://a/seg1.m4s", 125_000, 125_000, nil)
	m.OnTransferEnd(125_000, "http://a/seg1.m4s")

	m.SegmentGroupComplete()

	require.Len(t, cap.updates, 1)
	// currBW ~= 8*125000/1s = 1,000,000 bps; EWMA of (1e6, 1e6) stays 1e6.
	assert.InDelta(t, 1_000_000, cap.updates[0], 50_000)

	// Stats and byte counters reset after the group completes.
	_, ok := m.Stats("http://a/seg1.m4s")
	assert.False(t, ok)
}

func TestOnTransferEndDoesNotSetStoppedBytes(t *testing.T) {
	m := New(1_000_000, 0.5, nil)
	m.OnTransferStart("http://a/seg1.m4s")
	m.OnBytesTransferred(1000, "http://a/seg1.m4s", 1000, 2000, nil)
	m.OnTransferEnd(2000, "http://a/seg1.m4s")

	stats, ok := m.Stats("http://a/seg1.m4s")
	require.True(t, ok)
	assert.Equal(t, int64(0), stats.StoppedBytes)
	assert.False(t, stats.StopTime.IsZero())
}

func TestOnTransferCanceledSetsStoppedBytes(t *testing.T) {
	m := New(1_000_000, 0.5, nil)
	m.OnTransferStart("http://a/seg1.m4s")
	m.OnBytesTransferred(500, "http://a/seg1.m4s", 500, 2000, nil)
	m.OnTransferCanceled("http://a/seg1.m4s", 500, 2000)

	stats, ok := m.Stats("http://a/seg1.m4s")
	require.True(t, ok)
	assert.Equal(t, int64(500), stats.StoppedBytes)
	assert.Equal(t, int64(500), stats.ReceivedBytes)
}
