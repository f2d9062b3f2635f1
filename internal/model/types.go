// Package model holds data types shared across the player's core
// subsystems: per-transfer statistics and playback state. Buffered
// segment groups are buffer.Item, in internal/buffer. Keeping these types
// here (rather than in any one subsystem's package) avoids import cycles
// between transport, buffer, scheduler, player, and analyzer.
package model

import "time"

// DownloadStats tracks one URL's transfer from transfer_start to its
// terminal event. All timestamps are time.Time values from time.Now, which
// carry a monotonic clock reading.
type DownloadStats struct {
	TotalBytes    int64
	ReceivedBytes int64
	StoppedBytes  int64
	StartTime     time.Time
	StopTime      time.Time
	FirstByteAt   time.Time
	LastByteAt    time.Time
}

// Duration returns the wall-clock span between start and stop. Zero if the
// transfer hasn't stopped yet.
func (s *DownloadStats) Duration() time.Duration {
	if s.StopTime.IsZero() || s.StartTime.IsZero() {
		return 0
	}
	return s.StopTime.Sub(s.StartTime)
}

// Throughput returns 8*received_bytes/(stop-start) in bits per second.
func (s *DownloadStats) Throughput() float64 {
	d := s.Duration().Seconds()
	if d <= 0 {
		return 0
	}
	return 8 * float64(s.ReceivedBytes) / d
}

// PlaybackState is the Player's coarse state machine.
type PlaybackState int

const (
	StateIdle PlaybackState = iota
	StateBuffering
	StateReady
	StateEnd
)

func (s PlaybackState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBuffering:
		return "BUFFERING"
	case StateReady:
		return "READY"
	case StateEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}
