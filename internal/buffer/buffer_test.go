package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureLevelListener struct {
	mu     sync.Mutex
	levels []float64
}

func (c *captureLevelListener) OnBufferLevelUpdate(level float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels = append(c.levels, level)
}

func (c *captureLevelListener) last() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.levels[len(c.levels)-1]
}

func segGroup(duration float64) map[int]*mpd.Segment {
	return map[int]*mpd.Segment{0: {Duration: duration}}
}

func TestEnqueueDequeueLevel(t *testing.T) {
	m := New(nil)
	cap := &captureLevelListener{}
	m.AddListener(cap)

	m.Enqueue(0, segGroup(4))
	assert.InDelta(t, 4, m.Level(), 0.001)
	assert.InDelta(t, 4, cap.last(), 0.001)

	m.Enqueue(1, segGroup(2))
	assert.InDelta(t, 6, m.Level(), 0.001)

	item, ok := m.Peek()
	require.True(t, ok)
	assert.Equal(t, 0, item.Index)

	item, ok = m.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 0, item.Index)
	assert.InDelta(t, 2, m.Level(), 0.001)

	_, ok = m.Dequeue()
	require.True(t, ok)
	assert.True(t, m.IsEmpty())

	_, ok = m.Dequeue()
	assert.False(t, ok)
}

func TestEnqueueDerivesMaxDurationAcrossGroup(t *testing.T) {
	m := New(nil)
	m.Enqueue(0, map[int]*mpd.Segment{
		0: {Duration: 2},
		1: {Duration: 6},
	})
	item, _ := m.Peek()
	assert.InDelta(t, 6, item.MaxDuration, 0.001)
}

func TestWaitForLevelUnblocksOnEnqueue(t *testing.T) {
	m := New(nil)
	result := make(chan float64, 1)

	go func() {
		result <- m.WaitForLevel(func(level float64) bool { return level >= 4 }, nil)
	}()

	time.Sleep(10 * time.Millisecond)
	m.Enqueue(0, segGroup(4))

	select {
	case level := <-result:
		assert.InDelta(t, 4, level, 0.001)
	case <-time.After(time.Second):
		t.Fatal("WaitForLevel did not unblock after Enqueue")
	}
}

func TestWaitForLevelUnblocksOnStop(t *testing.T) {
	m := New(nil)
	stop := make(chan struct{})
	result := make(chan float64, 1)

	go func() {
		result <- m.WaitForLevel(func(level float64) bool { return level >= 100 }, stop)
	}()

	time.Sleep(10 * time.Millisecond)
	close(stop)

	select {
	case <-result:
	case <-time.After(time.Second):
		t.Fatal("WaitForLevel did not unblock after stop closed")
	}
}
