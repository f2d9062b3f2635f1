// Package localtransport implements the local-filesystem pseudo-transport
// from spec.md §4.2: it reads a file from disk and paces delivery at a
// configured bitrate using fixed-size packets, standing in for a network
// origin in tests and offline experiments. It does not support
// cancellation — Stop and DropURL both report TransportUnsupported, as
// spec.md's error-handling section calls out explicitly.
package localtransport

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/apperr"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport"
)

// Manager is the local pseudo-transport. BandwidthBps paces delivery;
// MaxPacketSize bounds the size of each delivered chunk.
type Manager struct {
	transport.Broadcaster

	BandwidthBps  int64
	MaxPacketSize int

	log *telemetry.Logger

	mu        sync.Mutex
	transfers map[string]*transfer
}

type transfer struct {
	done      chan struct{}
	result    transport.Result
	err       error
}

func New(log *telemetry.Logger, bandwidthBps int64, maxPacketSize int) *Manager {
	if log == nil {
		log = telemetry.Noop()
	}
	if maxPacketSize <= 0 {
		maxPacketSize = 20_000
	}
	if bandwidthBps <= 0 {
		bandwidthBps = 100_000_000_000
	}
	return &Manager{
		BandwidthBps:  bandwidthBps,
		MaxPacketSize: maxPacketSize,
		log:           log.WithComponent("transport.local"),
		transfers:     make(map[string]*transfer),
	}
}

func localPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		return u.Path
	}
	return strings.TrimPrefix(rawURL, "file://")
}

func (m *Manager) Download(ctx context.Context, req transport.Request) error {
	t := &transfer{done: make(chan struct{})}

	m.mu.Lock()
	m.transfers[req.URL] = t
	m.mu.Unlock()

	go m.run(ctx, req.URL, t)
	return nil
}

func (m *Manager) run(ctx context.Context, url string, t *transfer) {
	m.Broadcaster.Start(url)

	data, err := os.ReadFile(localPath(url))
	if err != nil {
		m.Broadcaster.Canceled(url, 0, 0)
		t.result = transport.Result{Outcome: transport.OutcomeDropped}
		t.err = apperr.NewTransportError(fmt.Errorf("read local file %s: %w", url, err))
		close(t.done)
		return
	}

	total := int64(len(data))
	var position int64
	packetDuration := time.Duration(float64(m.MaxPacketSize) * 8 / float64(m.BandwidthBps) * float64(time.Second))
	if packetDuration <= 0 {
		packetDuration = time.Nanosecond
	}
	ticker := time.NewTicker(packetDuration)
	defer ticker.Stop()

	for position < total {
		end := position + int64(m.MaxPacketSize)
		if end > total {
			end = total
		}
		chunk := data[position:end]
		position = end
		m.Broadcaster.Bytes(len(chunk), url, position, total, chunk)

		select {
		case <-ctx.Done():
			m.Broadcaster.Canceled(url, position, total)
			t.result = transport.Result{Outcome: transport.OutcomeDropped}
			close(t.done)
			return
		case <-ticker.C:
		}
	}

	m.Broadcaster.End(total, url)
	t.result = transport.Result{Outcome: transport.OutcomeComplete, Bytes: data, TotalSize: total}
	close(t.done)
}

func (m *Manager) WaitComplete(ctx context.Context, url string) (transport.Result, error) {
	m.mu.Lock()
	t, ok := m.transfers[url]
	m.mu.Unlock()
	if !ok {
		return transport.Result{}, apperr.NewTransportError(fmt.Errorf("no transfer in progress for %s", url))
	}

	select {
	case <-t.done:
		m.mu.Lock()
		delete(m.transfers, url)
		m.mu.Unlock()
		return t.result, t.err
	case <-ctx.Done():
		return transport.Result{}, ctx.Err()
	}
}

// Stop is unsupported: the local transport paces delivery synchronously in
// its own goroutine loop and has no graceful half-close.
func (m *Manager) Stop(url string) error {
	return transport.ErrUnsupported("stop")
}

// DropURL is unsupported for the same reason; use Close to tear the whole
// transport down instead.
func (m *Manager) DropURL(url string) error {
	return transport.ErrUnsupported("drop_url")
}

func (m *Manager) Close() error {
	m.mu.Lock()
	m.transfers = make(map[string]*transfer)
	m.mu.Unlock()
	return nil
}
