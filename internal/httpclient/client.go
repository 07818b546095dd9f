// Package httpclient provides the bounded HTTP GET client used to reach
// upstream data sources.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout applies when a client is created with a zero timeout.
	DefaultTimeout = 30 * time.Second
	// MaxResponseSize bounds the body accepted from an upstream.
	MaxResponseSize = 100 * 1024 * 1024

	userAgent       = "feed-registry-server/1.0"
	maxErrorMessage = 1024
)

// Client fetches raw response bodies.
type Client interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type defaultClient struct {
	client *http.Client
}

// NewDefaultClient creates a Client with the given request timeout.
func NewDefaultClient(timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &defaultClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request and returns the body of a 200 response.
func (c *defaultClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorMessage))
		message := string(msg)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, NewHTTPError(resp.StatusCode, url, message)
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, sizeError(resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, sizeError(int64(len(data)))
	}
	return data, nil
}

// StatusCode extracts the upstream status from err, or 0 if err is not an
// HTTPError.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

func sizeError(size int64) error {
	return fmt.Errorf("response size %d bytes exceeds maximum allowed size of %.2f MB",
		size, float64(MaxResponseSize)/(1024*1024))
}
