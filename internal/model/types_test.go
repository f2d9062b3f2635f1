package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDownloadStatsThroughput(t *testing.T) {
	s := DownloadStats{
		ReceivedBytes: 125_000,
		StartTime:     time.Unix(0, 0),
		StopTime:      time.Unix(1, 0),
	}
	assert.InDelta(t, 1_000_000, s.Throughput(), 0.001)
}

func TestDownloadStatsThroughputZeroBeforeStop(t *testing.T) {
	s := DownloadStats{ReceivedBytes: 1000, StartTime: time.Unix(0, 0)}
	assert.Equal(t, 0.0, s.Throughput())
}

func TestPlaybackStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "BUFFERING", StateBuffering.String())
	assert.Equal(t, "READY", StateReady.String())
	assert.Equal(t, "END", StateEnd.String())
}
