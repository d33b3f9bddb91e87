// Copyright 2025 Certen Protocol
//
// HTTPPoster is the production implementation of pkg/broadcast.Poster
// and pkg/server.OriginResolver's companion send path: a plain
// net/http client performing the signed inter-chain POSTs that
// broadcast.Scheduler and server.HTTPReceiptSender both construct,
// grounded on HTTPPeerManager's (pkg/batch/peer_manager.go)
// client-wrapper idiom.
package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// DefaultTimeout bounds one outbound verification/receipt POST.
const DefaultTimeout = 30 * time.Second

// HTTPPoster sends signed requests to other Dragon Net nodes.
type HTTPPoster struct {
	client *http.Client
	logger *log.Logger
}

// Option configures an HTTPPoster.
type Option func(*HTTPPoster)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *HTTPPoster) { p.client.Timeout = d }
}

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *HTTPPoster) { p.logger = logger }
}

// NewHTTPPoster builds a Poster backed by a plain http.Client.
func NewHTTPPoster(opts ...Option) *HTTPPoster {
	p := &HTTPPoster{
		client: &http.Client{Timeout: DefaultTimeout},
		logger: log.New(log.Writer(), "[rpc] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Post sends body to url with headers applied, returning the response
// status and body. A non-2xx status is not itself an error; callers
// (pkg/broadcast, pkg/server) interpret the status themselves.
func (p *HTTPPoster) Post(ctx context.Context, url string, headers map[string]string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request to %s: %w", url, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post to %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response from %s: %w", url, err)
	}
	if resp.StatusCode >= 300 {
		p.logger.Printf("post %s: non-success status %d", url, resp.StatusCode)
	}
	return resp.StatusCode, respBody, nil
}
