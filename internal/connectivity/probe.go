// Package connectivity provides the network reachability probe consulted at
// the start of every sync pass.
package connectivity

import (
	"context"
	"net/http"
	"time"
)

// HTTPProbe reports connectivity by issuing a cheap HEAD request against the
// remote base URL. Any HTTP response counts as online, regardless of status;
// only transport-level failures count as offline.
type HTTPProbe struct {
	url    string
	client *http.Client
}

// NewHTTPProbe creates a probe against the given URL.
func NewHTTPProbe(url string, timeout time.Duration) *HTTPProbe {
	return &HTTPProbe{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Online reports whether the probe target is currently reachable.
func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()

	return true
}
