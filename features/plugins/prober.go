package plugins

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

const defaultHealthPath = "/health"

// ErrAllEndpointsDown reports that no configured endpoint of a plugin
// service answered its health check.
var ErrAllEndpointsDown = errors.New("all endpoints are down")

// Prober finds a live endpoint for a plugin service by probing each
// configured endpoint's health route in order.
type Prober struct {
	client *http.Client
	path   string
}

// NewProber returns a prober using the given HTTP client and health path.
// Zero values select http.DefaultClient and /health.
func NewProber(client *http.Client, path string) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	if path == "" {
		path = defaultHealthPath
	}
	return &Prober{client: client, path: path}
}

// Healthy returns the first endpoint whose health route answers with a 2xx
// status. Endpoints that fail to connect or answer otherwise are skipped.
func (p *Prober) Healthy(ctx context.Context, endpoints []string) (string, error) {
	for _, endpoint := range endpoints {
		if p.healthy(ctx, endpoint) {
			return endpoint, nil
		}
	}
	return "", ErrAllEndpointsDown
}

func (p *Prober) healthy(ctx context.Context, endpoint string) bool {
	url := strings.TrimSuffix(endpoint, "/") + p.path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
