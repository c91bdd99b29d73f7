package network

import (
	"context"
	"net/http"
	"time"

	"github.com/open-edge-platform/srcsec/internal/utils/logger"
)

// DefaultUserAgent is sent with every probe unless configured otherwise.
const DefaultUserAgent = "srcsec/1.0"

// Prober checks whether a URL currently resolves.
type Prober interface {
	// Head returns the final URL after redirects when the resource answers
	// 200, and ok=false for any other status or transport failure.
	Head(ctx context.Context, url string) (final string, ok bool)
}

// HTTPProber probes with HEAD requests, following redirects.
type HTTPProber struct {
	client    *http.Client
	userAgent string
}

// NewHTTPProber creates a prober with a per-request timeout.
func NewHTTPProber(timeout time.Duration, userAgent string) *HTTPProber {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPProber{
		client:    NewSecureHTTPClient(timeout),
		userAgent: userAgent,
	}
}

// NewHTTPProberWithClient uses an existing client, mostly for tests.
func NewHTTPProberWithClient(client *http.Client, userAgent string) *HTTPProber {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPProber{client: client, userAgent: userAgent}
}

// Head implements Prober.
func (p *HTTPProber) Head(ctx context.Context, url string) (string, bool) {
	log := logger.Logger()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		log.Debugf("probe %s: %v", url, err)
		return "", false
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		log.Debugf("probe %s: %v", url, err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debugf("probe %s: status %d", url, resp.StatusCode)
		return "", false
	}
	return resp.Request.URL.String(), true
}
