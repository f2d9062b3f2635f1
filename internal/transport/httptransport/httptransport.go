// Package httptransport implements the HTTP/1.1-over-TLS transport.Manager,
// grounded on the browser-fingerprinted utls+HTTP/2 client from the example
// pack's media-proxy-go project: a custom http.RoundTripper performs the
// TLS handshake with utls.HelloChrome_120 and negotiates ALPN itself,
// falling back to plain HTTP/1.1 when the origin doesn't speak h2.
package httptransport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/apperr"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/transport"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

const chunkSize = 32 * 1024

// Manager is the HTTP/1.1+TLS transport.Manager implementation.
type Manager struct {
	transport.Broadcaster

	client *http.Client
	log    *telemetry.Logger

	mu        sync.Mutex
	transfers map[string]*transfer
}

type transfer struct {
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	body      io.ReadCloser
	position  int64
	totalSize int64
	stopped   bool
	done      chan struct{}
	result    transport.Result
	err       error
}

// New builds an HTTP transport.Manager. headerTimeout is defaulted to 10s
// when non-positive and passed to newUTLSRoundTripper, which does not apply
// it: no request is bounded in the time spent waiting for response headers.
func New(log *telemetry.Logger, headerTimeout time.Duration) *Manager {
	if log == nil {
		log = telemetry.Noop()
	}
	if headerTimeout <= 0 {
		headerTimeout = 10 * time.Second
	}
	return &Manager{
		client: &http.Client{
			Transport: newUTLSRoundTripper(headerTimeout),
		},
		log:       log.WithComponent("transport.http"),
		transfers: make(map[string]*transfer),
	}
}

func (m *Manager) Download(ctx context.Context, req transport.Request) error {
	tctx, cancel := context.WithCancel(context.Background())

	t := &transfer{
		ctx:    tctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.transfers[req.URL] = t
	m.mu.Unlock()

	go m.run(req, t)
	return nil
}

func (m *Manager) run(req transport.Request, t *transfer) {
	m.Broadcaster.Start(req.URL)

	httpReq, err := http.NewRequestWithContext(t.ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		m.finish(req.URL, t, transport.Result{Outcome: transport.OutcomeDropped}, apperr.NewTransportError(err))
		return
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		m.log.WithURL(req.URL).WithError(err).Debug("http transfer failed")
		m.Broadcaster.Canceled(req.URL, 0, 0)
		m.finish(req.URL, t, transport.Result{Outcome: transport.OutcomeDropped}, apperr.NewTransportError(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		m.Broadcaster.Canceled(req.URL, 0, 0)
		m.finish(req.URL, t, transport.Result{Outcome: transport.OutcomeDropped}, apperr.NewTransportError(fmt.Errorf("status %d from %s", resp.StatusCode, req.URL)))
		return
	}

	t.totalSize = resp.ContentLength
	buf := make([]byte, 0, max64(t.totalSize, 0))
	chunk := make([]byte, chunkSize)

	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			t.position += int64(n)
			piece := append([]byte(nil), chunk[:n]...)
			buf = append(buf, piece...)
			m.Broadcaster.Bytes(n, req.URL, t.position, t.totalSize, piece)
		}

		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()

		if stopped {
			m.Broadcaster.End(t.totalSize, req.URL)
			m.finish(req.URL, t, transport.Result{Outcome: transport.OutcomeComplete, Bytes: buf, TotalSize: t.totalSize}, nil)
			return
		}

		if readErr == io.EOF {
			m.Broadcaster.End(t.totalSize, req.URL)
			m.finish(req.URL, t, transport.Result{Outcome: transport.OutcomeComplete, Bytes: buf, TotalSize: t.totalSize}, nil)
			return
		}
		if readErr != nil {
			if t.ctx.Err() != nil {
				m.Broadcaster.Canceled(req.URL, t.position, t.totalSize)
				m.finish(req.URL, t, transport.Result{Outcome: transport.OutcomeDropped}, nil)
				return
			}
			m.Broadcaster.Canceled(req.URL, t.position, t.totalSize)
			m.finish(req.URL, t, transport.Result{Outcome: transport.OutcomeDropped}, apperr.NewTransportError(readErr))
			return
		}
	}
}

func (m *Manager) finish(url string, t *transfer, result transport.Result, err error) {
	t.result = result
	t.err = err
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

func (m *Manager) Stop(url string) error {
	m.mu.Lock()
	t, ok := m.transfers[url]
	m.mu.Unlock()
	if !ok {
		return apperr.NewTransportError(fmt.Errorf("no transfer in progress for %s", url))
	}
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return nil
}

func (m *Manager) DropURL(url string) error {
	m.mu.Lock()
	t, ok := m.transfers[url]
	m.mu.Unlock()
	if !ok {
		return apperr.NewTransportError(fmt.Errorf("no transfer in progress for %s", url))
	}
	t.cancel()
	return nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		t.cancel()
	}
	m.transfers = make(map[string]*transfer)
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// utlsRoundTripper performs the TLS handshake with utls, negotiating ALPN
// itself and speaking HTTP/2 or falling back to HTTP/1.1 depending on what
// the origin selects.
type utlsRoundTripper struct {
	dialer      *net.Dialer
	h2Transport *http2.Transport
}

func newUTLSRoundTripper(headerTimeout time.Duration) *utlsRoundTripper {
	return &utlsRoundTripper{
		dialer: &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second},
		h2Transport: &http2.Transport{
			AllowHTTP:              false,
			ReadIdleTimeout:        30 * time.Second,
		},
	}
}

func (t *utlsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	addr := req.URL.Host
	if !strings.Contains(addr, ":") {
		addr += ":443"
	}

	conn, err := t.dialer.DialContext(req.Context(), "tcp", addr)
	if err != nil {
		return nil, err
	}

	tlsConfig := &utls.Config{ServerName: req.URL.Hostname()}
	uconn := utls.UClient(conn, tlsConfig, utls.HelloChrome_120)
	if err := uconn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("utls handshake: %w", err)
	}

	switch uconn.ConnectionState().NegotiatedProtocol {
	case "h2":
		h2Conn, err := t.h2Transport.NewClientConn(uconn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return h2Conn.RoundTrip(req)
	default:
		return doHTTP1(uconn, req)
	}
}

func doHTTP1(conn net.Conn, req *http.Request) (*http.Response, error) {
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp.Body = &connClosingBody{resp.Body, conn}
	return resp, nil
}

type connClosingBody struct {
	io.ReadCloser
	conn net.Conn
}

func (b *connClosingBody) Close() error {
	b.ReadCloser.Close()
	return b.conn.Close()
}
