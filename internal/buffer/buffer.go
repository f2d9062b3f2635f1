// Package buffer implements the Buffer Manager from spec.md §4.4: a
// bounded FIFO of BufferItems guarded by a mutex-plus-broadcast condition,
// the same primitive the teacher's session loops use to hand results
// between a producer goroutine and a consumer loop.
package buffer

import (
	"sync"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/mpd"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
)

// Item is one scheduled segment group: the segment chosen per adaptation
// set for a single index, plus the duration the Player must hold it for.
type Item struct {
	Index       int
	Segments    map[int]*mpd.Segment // keyed by adaptation set id
	MaxDuration float64
}

// LevelListener is notified whenever buffer_level changes.
type LevelListener interface {
	OnBufferLevelUpdate(level float64)
}

// Manager is the bounded FIFO described in spec.md §4.4. enqueue/dequeue
// may race with a waiter blocked in WaitForLevel; cond broadcast plus the
// shared mutex keeps the level and the queue head consistent for any
// waiter it wakes.
type Manager struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []*Item
	level float64

	log       *telemetry.Logger
	listeners []LevelListener
}

func New(log *telemetry.Logger) *Manager {
	if log == nil {
		log = telemetry.Noop()
	}
	m := &Manager{log: log.WithComponent("buffer")}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *Manager) AddListener(l LevelListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Enqueue appends item, derives max_duration from the longest segment in
// the group, bumps buffer_level, and wakes every waiter.
func (m *Manager) Enqueue(index int, segments map[int]*mpd.Segment) {
	maxDuration := 0.0
	for _, seg := range segments {
		if seg.Duration > maxDuration {
			maxDuration = seg.Duration
		}
	}

	m.mu.Lock()
	m.items = append(m.items, &Item{Index: index, Segments: segments, MaxDuration: maxDuration})
	m.level += maxDuration
	level := m.level
	m.cond.Broadcast()
	m.mu.Unlock()

	m.notify(level)
}

// Peek returns the head item without removing it. ok is false if empty.
func (m *Manager) Peek() (*Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil, false
	}
	return m.items[0], true
}

// Dequeue removes the head item, decrements buffer_level, and wakes
// waiters. ok is false if the buffer was empty.
func (m *Manager) Dequeue() (*Item, bool) {
	m.mu.Lock()
	if len(m.items) == 0 {
		m.mu.Unlock()
		return nil, false
	}
	item := m.items[0]
	m.items = m.items[1:]
	m.level -= item.MaxDuration
	level := m.level
	m.cond.Broadcast()
	m.mu.Unlock()

	m.notify(level)
	return item, true
}

func (m *Manager) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

func (m *Manager) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items) == 0
}

// WaitForLevel blocks until pred(level) holds or stop is closed, then
// returns the level last observed. Since cond.Wait reacquires the lock
// before returning, a caller that then calls Peek under no intervening
// unlock window sees a head consistent with the level it woke on.
func (m *Manager) WaitForLevel(pred func(level float64) bool, stop <-chan struct{}) float64 {
	done := make(chan struct{})
	go func() {
		select {
		case <-stop:
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	m.mu.Lock()
	defer m.mu.Unlock()
	for !pred(m.level) {
		select {
		case <-stop:
			return m.level
		default:
		}
		m.cond.Wait()
	}
	return m.level
}

func (m *Manager) notify(level float64) {
	m.mu.Lock()
	listeners := append([]LevelListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l.OnBufferLevelUpdate(level)
	}
}
