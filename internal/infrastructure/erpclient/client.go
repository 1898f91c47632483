// Package erpclient talks to the ERP backend's purchase-order API. It
// implements the order catalog and the finalization gateway.
package erpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/infrastructure/config"
	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	maxResponseSize = 10 * 1024 * 1024
	apiPrefix       = "/api/v1/trade/purchase-orders"
)

// UpstreamError is a non-successful ERP response
type UpstreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("erp: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("erp: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// retryable reports whether repeating the same read could succeed
func (e *UpstreamError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout
}

// Client is an HTTP client for the ERP backend
type Client struct {
	baseURL    string
	token      string
	pageSize   int
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default traced HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// New creates a Client from upstream settings
func New(cfg config.UpstreamConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		pageSize:   cfg.PageSize,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	if c.pageSize <= 0 {
		c.pageSize = 100
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 200 * time.Millisecond
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	method   string
	path     string
	query    url.Values
	tenantID uuid.UUID
	body     any
	headers  map[string]string
	// meta receives the pagination block when the response carries one
	meta *pageMeta
}

// get performs a read, retrying transport failures and retryable statuses
// with exponential backoff up to maxRetries times
func (c *Client) get(ctx context.Context, req request, out any) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := c.do(ctx, req, out)
		if err == nil {
			return nil
		}
		var upstream *UpstreamError
		if errors.As(err, &upstream) && !upstream.retryable() {
			return backoff.Permanent(err)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.WithLogger(ctx, c.logger).Warn("ERP read failed, retrying",
			zap.String("path", req.path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(c.maxRetries, 0))), ctx)
	return backoff.RetryNotify(op, b, notify)
}

// do performs a single request and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, req request, out any) error {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("erp: failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("erp: failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("X-Tenant-ID", req.tenantID.String())
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	if requestID := logger.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Request-ID", requestID)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("erp: %s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("erp: failed to read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upstream := &UpstreamError{StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			upstream.Code = env.Error.Code
			upstream.Message = env.Error.Message
		}
		return upstream
	}
	if decodeErr != nil {
		return fmt.Errorf("erp: failed to decode response: %w", decodeErr)
	}
	if !env.Success {
		upstream := &UpstreamError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			upstream.Code = env.Error.Code
			upstream.Message = env.Error.Message
		}
		return upstream
	}
	if req.meta != nil && env.Meta != nil {
		*req.meta = *env.Meta
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("erp: failed to decode %s: %w", req.path, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound
}

// transportError wraps err as a transport failure, carrying the ERP's own
// code and message when it sent one
func transportError(action string, err error) error {
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.Message != "" {
		return receiving.NewTransportError(fmt.Sprintf("%s: %s (%s)", action, upstream.Message, upstream.Code), err)
	}
	return receiving.NewTransportError(action, err)
}
