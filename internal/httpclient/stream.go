package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"
)

// StreamClient issues requests whose bodies are consumed incrementally.
// Unlike Client it has no whole-request timeout: a streaming read is
// bounded by the caller's context and by the response-header timeout.
type StreamClient struct {
	http *http.Client
}

// NewStream creates a StreamClient. headerTimeout bounds the wait for
// response headers; the body read is only bounded by the context.
func NewStream(headerTimeout time.Duration) *StreamClient {
	return &StreamClient{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ResponseHeaderTimeout: headerTimeout,
				ForceAttemptHTTP2:     true,
			},
		},
	}
}

// PostStream sends a JSON POST request and returns the raw response.
// The caller owns the response body and must close it. A non-nil error
// indicates a network-level failure; HTTP error statuses are returned
// in the response for the caller to classify.
func (c *StreamClient) PostStream(ctx context.Context, rawURL string, body any, opts ...RequestOption) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	return c.http.Do(req)
}
