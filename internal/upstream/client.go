// Package upstream holds the outbound HTTP client used by the web page to
// reach the API and by the API to reach the engine.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andyluo22/mini-hft/internal/logging"
	"github.com/imroc/req/v3"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
	rootPath    = "/"

	// StatusOK is the status a healthy service reports from /health.
	StatusOK = "ok"

	// MetricsContentType is the Prometheus text exposition media type.
	MetricsContentType = "text/plain; version=0.0.4"
)

// ErrMissingStatus is returned when a health body has no usable status field.
var ErrMissingStatus = errors.New("health response has no status field")

// Client handles communication with one upstream service.
type Client struct {
	baseURL string
	http    *req.Client
	metrics *Metrics
}

// NewClient creates a client rooted at baseURL. A zero timeout disables the
// per-request deadline; callers still bound calls through their context.
// Retries stay disabled.
func NewClient(baseURL string, timeout time.Duration, metrics *Metrics) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: baseURL,
		http: req.C().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetUserAgent("mini-hft"),
		metrics: metrics,
	}
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthBody is the /health wire contract: {"status": <string>}. Services may
// add fields; readers only rely on status.
type HealthBody struct {
	Status *string `json:"status"`
}

// HealthStatus fetches {base}/health and returns its status field. The HTTP
// status code is not inspected: any JSON body with a non-empty string status
// is a result.
func (c *Client) HealthStatus(ctx context.Context) (string, error) {
	start := time.Now()
	status, err := c.healthStatus(ctx)
	c.metrics.record("health", time.Since(start), err)
	if err != nil {
		logging.NewLogger(ctx).LogDebugf("health", "health check against %s failed: %v", c.baseURL, err)
	}
	return status, err
}

func (c *Client) healthStatus(ctx context.Context) (string, error) {
	res, err := c.http.R().SetContext(ctx).Get(healthPath)
	if err != nil {
		return "", fmt.Errorf("upstream request failed: %w", err)
	}

	var body HealthBody
	if err := json.Unmarshal(res.Bytes(), &body); err != nil {
		return "", fmt.Errorf("decode health response: %w", err)
	}
	if body.Status == nil || *body.Status == "" {
		return "", ErrMissingStatus
	}
	return *body.Status, nil
}

// StatusError reports an upstream response with an error status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Code, e.Body)
}

// Metrics fetches {base}/metrics and returns the raw exposition text.
func (c *Client) Metrics(ctx context.Context) ([]byte, error) {
	logger := logging.NewLogger(ctx)
	start := time.Now()

	res, err := c.http.R().SetContext(ctx).Get(metricsPath)
	if err != nil {
		c.metrics.record("metrics", time.Since(start), err)
		logger.LogError("fetch_metrics", err)
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	if res.IsErrorState() {
		err := &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(res.String())}
		c.metrics.record("metrics", time.Since(start), err)
		logger.LogWarnf("fetch_metrics", "upstream returned status %d", res.StatusCode)
		return nil, err
	}

	c.metrics.record("metrics", time.Since(start), nil)
	return res.Bytes(), nil
}

// Ping requests {base}/ and fails on transport errors or an error status.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	res, err := c.http.R().SetContext(ctx).Get(rootPath)
	if err == nil && res.IsErrorState() {
		err = &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(res.String())}
	}
	c.metrics.record("ping", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("ping %s: %w", c.baseURL, err)
	}
	return nil
}
