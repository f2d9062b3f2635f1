// Package player implements the consumer playback loop from spec.md §4.7:
// it drains the Buffer Manager in wall-clock time, advancing a virtual
// playhead and broadcasting BUFFERING/READY/END state transitions.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/buffer"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/model"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
)

// EventListener observes playback state and position changes, and the
// start of each segment group's playback.
type EventListener interface {
	OnStateChange(from, to model.PlaybackState)
	OnPositionChange(position float64)
	OnSegmentPlaybackStart(item *buffer.Item)
}

// EndChecker reports whether the scheduler has reached end-of-stream, so
// the Player knows whether an empty buffer means "done" or "rebuffer".
type EndChecker interface {
	IsEnd() bool
}

type Config struct {
	MinStartDuration    float64
	MinRebufferDuration float64
	TimeFactor          float64
}

// Player is the consumer loop.
type Player struct {
	cfg     Config
	bufMgr  *buffer.Manager
	sched   EndChecker
	log     *telemetry.Logger

	mu        sync.Mutex
	listeners []EventListener

	state          model.PlaybackState
	position       float64
	firstStartTime float64
	haveFirstStart bool
}

func New(cfg Config, bufMgr *buffer.Manager, sched EndChecker, log *telemetry.Logger) *Player {
	if log == nil {
		log = telemetry.Noop()
	}
	return &Player{
		cfg:    cfg,
		bufMgr: bufMgr,
		sched:  sched,
		log:    log.WithComponent("player"),
		state:  model.StateIdle,
	}
}

func (p *Player) AddListener(l EventListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

func (p *Player) State() model.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Run drives the playback loop until ctx is canceled or playback reaches
// the END state.
func (p *Player) Run(ctx context.Context) error {
	p.transition(model.StateBuffering)

	firstRebuffer := true
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		threshold := p.cfg.MinRebufferDuration
		if firstRebuffer {
			threshold = p.cfg.MinStartDuration
		}

		level := p.bufMgr.WaitForLevel(func(level float64) bool {
			return level >= threshold || p.sched.IsEnd()
		}, ctx.Done())

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if level < threshold && p.sched.IsEnd() && p.bufMgr.IsEmpty() {
			p.transition(model.StateEnd)
			return nil
		}

		firstRebuffer = false
		p.transition(model.StateReady)

		item, ok := p.bufMgr.Peek()
		if !ok {
			p.transition(model.StateBuffering)
			continue
		}

		if !p.haveFirstStart {
			p.mu.Lock()
			p.firstStartTime = minStartTime(item)
			p.haveFirstStart = true
			p.mu.Unlock()
		}

		p.mu.Lock()
		p.position = minStartTime(item) - p.firstStartTime
		pos := p.position
		p.mu.Unlock()
		p.notifyPosition(pos)
		p.notifySegmentStart(item)

		sleepDuration := time.Duration(p.cfg.TimeFactor * item.MaxDuration * float64(time.Second))
		if sleepDuration < 0 {
			sleepDuration = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepDuration):
		}

		p.mu.Lock()
		p.position += item.MaxDuration
		pos = p.position
		p.mu.Unlock()
		p.notifyPosition(pos)

		p.bufMgr.Dequeue()

		if p.bufMgr.IsEmpty() {
			if p.sched.IsEnd() {
				p.transition(model.StateEnd)
				return nil
			}
			p.transition(model.StateBuffering)
		}
	}
}

func minStartTime(item *buffer.Item) float64 {
	min := -1.0
	for _, seg := range item.Segments {
		if min < 0 || seg.StartTime < min {
			min = seg.StartTime
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

func (p *Player) transition(to model.PlaybackState) {
	p.mu.Lock()
	from := p.state
	if from == to {
		p.mu.Unlock()
		return
	}
	p.state = to
	listeners := append([]EventListener(nil), p.listeners...)
	p.mu.Unlock()

	for _, l := range listeners {
		l.OnStateChange(from, to)
	}
}

func (p *Player) notifyPosition(pos float64) {
	p.mu.Lock()
	listeners := append([]EventListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnPositionChange(pos)
	}
}

func (p *Player) notifySegmentStart(item *buffer.Item) {
	p.mu.Lock()
	listeners := append([]EventListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnSegmentPlaybackStart(item)
	}
}
