package mpd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NetMedia-Sys-Lab/istream-player/internal/apperr"
	"github.com/NetMedia-Sys-Lab/istream-player/internal/telemetry"
)

// Client fetches and parses MPDs over plain HTTP, following redirects itself
// so the final, resolved URL (used to compute the base URL for relative
// segment paths) is always known, the way the teacher's dash.Client does.
type Client struct {
	httpClient *http.Client
	log        *telemetry.Logger
}

func NewClient(log *telemetry.Logger) *Client {
	if log == nil {
		log = telemetry.Noop()
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: 10 * time.Second},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: log.WithComponent("mpd.client"),
	}
}

// FetchAndParseMPD fetches the MPD at initialURL, following at most one
// redirect hop (as the teacher's client does), and parses the result.
func (c *Client) FetchAndParseMPD(ctx context.Context, initialURL string) (*MPD, error) {
	data, finalURL, err := c.fetch(ctx, initialURL)
	if err != nil {
		return nil, err
	}
	return Parse(data, finalURL)
}

func (c *Client) fetch(ctx context.Context, initialURL string) ([]byte, string, error) {
	data, resp, err := c.doGet(ctx, initialURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	finalURL := initialURL
	if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusMovedPermanently {
		loc, err := resp.Location()
		if err != nil {
			return nil, "", apperr.NewTransportError(fmt.Errorf("redirect location: %w", err))
		}
		finalURL = loc.String()
		c.log.WithURL(finalURL).Debug("following MPD redirect")

		data, resp, err = c.doGet(ctx, finalURL)
		if err != nil {
			return nil, "", err
		}
		defer resp.Body.Close()
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", apperr.NewTransportError(fmt.Errorf("fetch MPD: status %d from %s", resp.StatusCode, finalURL))
	}

	return data, finalURL, nil
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, apperr.NewTransportError(fmt.Errorf("build MPD request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, apperr.NewTransportError(fmt.Errorf("fetch MPD from %s: %w", url, err))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, nil, apperr.NewTransportError(fmt.Errorf("read MPD body: %w", err))
	}

	return data, resp, nil
}
