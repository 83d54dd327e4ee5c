// Package client calls API endpoints and returns their raw response text
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mcncl/jsonmeta/internal/errors"
)

// Response is the status and body of one call
type Response struct {
	StatusCode int
	Body       string
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Invoker performs one logical API call for an endpoint string
type Invoker interface {
	Invoke(ctx context.Context, endpoint string) (*Response, error)
}

// InvokerFunc adapts a function to Invoker
type InvokerFunc func(ctx context.Context, endpoint string) (*Response, error)

// Invoke calls f
func (f InvokerFunc) Invoke(ctx context.Context, endpoint string) (*Response, error) {
	return f(ctx, endpoint)
}

// Doer sends HTTP requests; *http.Client satisfies it
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures an HTTPClient
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Doer replaces the default *http.Client, mainly for tests
	Doer   Doer
	Logger *slog.Logger
}

// HTTPClient invokes endpoints relative to a base URL
type HTTPClient struct {
	baseURL string
	token   string
	doer    Doer
	logger  *slog.Logger
}

var methods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// New creates an HTTP invoker. A base URL is required.
func New(opts Options) (*HTTPClient, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.NewRequestError("base URL is not set", errors.ErrNoInvoker)
	}
	doer := opts.Doer
	if doer == nil {
		doer = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		doer:    doer,
		logger:  logger.With("component", "client"),
	}, nil
}

// Invoke calls endpoint. The endpoint may start with an HTTP method
// ("get vm/1"); GET is the default. Absolute URLs are used as they are.
// A non-2xx status is returned as a Response, not an error.
func (c *HTTPClient) Invoke(ctx context.Context, endpoint string) (*Response, error) {
	method, target := SplitMethod(endpoint)
	url := target
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		url = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.NewRequestError(fmt.Sprintf("invalid endpoint '%s'", endpoint), err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, errors.NewRequestError(fmt.Sprintf("%s %s failed", method, url), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewRequestError(fmt.Sprintf("failed to read response of %s %s", method, url), err)
	}

	result := &Response{StatusCode: resp.StatusCode, Body: string(body)}
	c.logger.Debug("endpoint invoked",
		"method", method,
		"url", url,
		"status", resp.StatusCode,
		"duration", time.Since(start))
	if !result.OK() {
		c.logger.Warn("endpoint returned non-success status", "method", method, "url", url, "status", resp.StatusCode)
	}
	return result, nil
}

// SplitMethod separates a leading HTTP method from an endpoint string
func SplitMethod(endpoint string) (string, string) {
	parts := strings.Fields(endpoint)
	if len(parts) >= 2 && methods[strings.ToUpper(parts[0])] {
		return strings.ToUpper(parts[0]), strings.Join(parts[1:], " ")
	}
	return http.MethodGet, strings.TrimSpace(endpoint)
}
