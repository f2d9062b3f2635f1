package mpd

import (
	"context"
	"sync"
)

// Provider holds the current MPD and knows how to refresh it from its
// origin URL, merging a dynamic presentation's growing timeline the way
// MergeDynamic does.
type Provider struct {
	client *Client
	url    string

	mu      sync.RWMutex
	current *MPD
}

func NewProvider(client *Client, initial *MPD) *Provider {
	return &Provider{client: client, url: initial.URL, current: initial}
}

func (p *Provider) Current() *MPD {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Refresh fetches the MPD again and merges it with the previous one when
// the presentation is dynamic, per spec.md §4.6 step 2.
func (p *Provider) Refresh(ctx context.Context) (*MPD, error) {
	fresh, err := p.client.FetchAndParseMPD(ctx, p.url)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.current.IsDynamic() {
		fresh = MergeDynamic(p.current, fresh)
	}
	p.current = fresh
	return fresh, nil
}
