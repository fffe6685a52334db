package queueclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/queuefire/internal/credentials"
	"github.com/torosent/queuefire/internal/metrics"
	"github.com/torosent/queuefire/internal/tracing"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL    string
	ScheduleID string
	// Timeout is the per-request timeout; ignored when HTTPClient is set.
	Timeout time.Duration
	// HTTPClient overrides the tuned default client.
	HTTPClient *http.Client
	Tracer     trace.Tracer
	Propagate  bool
	// FailureLogger, when set, receives one record per failed request.
	FailureLogger *slog.Logger
}

// Client sends queue API requests. It is safe for concurrent use.
type Client struct {
	http      *http.Client
	urls      [3]string
	tracer    trace.Tracer
	propagate bool
	failures  *slog.Logger
}

// Response describes one completed attempt, successful or not.
type Response struct {
	Endpoint   metrics.Endpoint
	StatusCode int // 0 when no response was received
	Duration   time.Duration
	// Status is the parsed "status" field of a 200 status poll.
	Status string
}

// Ready reports whether a status poll admitted the client.
func (r Response) Ready() bool {
	return r.Endpoint == metrics.EndpointStatus && r.StatusCode == http.StatusOK && r.Status == StatusReady
}

// Queue status values reported by the status endpoint.
const (
	StatusWaiting = "WAITING"
	StatusReady   = "READY"
)

// New validates opts and returns a client for the configured schedule.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}
	schedule := strings.TrimSpace(opts.ScheduleID)
	if schedule == "" {
		return nil, errors.New("schedule ID is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(opts.Timeout)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("queuefire")
	}

	prefix := base + "/api/v1/queue/" + url.PathEscape(schedule) + "/"
	c := &Client{
		http:      httpClient,
		tracer:    tracer,
		propagate: opts.Propagate,
		failures:  opts.FailureLogger,
	}
	for _, ep := range metrics.Endpoints() {
		c.urls[ep] = prefix + ep.String()
	}
	return c, nil
}

// URL returns the absolute URL of an endpoint.
func (c *Client) URL(ep metrics.Endpoint) string {
	return c.urls[ep]
}

// Enter joins the queue. 200 and 201 are success.
func (c *Client) Enter(ctx context.Context, cred credentials.Credential) (Response, error) {
	return c.do(ctx, metrics.EndpointEnter, http.MethodPost, cred)
}

// Status polls the admission status. A 200 response must carry a string
// "status" field; anything else is a protocol error.
func (c *Client) Status(ctx context.Context, cred credentials.Credential) (Response, error) {
	return c.do(ctx, metrics.EndpointStatus, http.MethodGet, cred)
}

// Heartbeat renews queue membership. 200 and 201 are success.
func (c *Client) Heartbeat(ctx context.Context, cred credentials.Credential) (Response, error) {
	return c.do(ctx, metrics.EndpointHeartbeat, http.MethodPost, cred)
}

func (c *Client) do(ctx context.Context, ep metrics.Endpoint, method string, cred credentials.Credential) (Response, error) {
	resp := Response{Endpoint: ep}

	ctx, span := tracing.StartRequestSpan(ctx, c.tracer, method, ep.String(),
		tracing.AttrUserID.Int64(cred.UserID),
	)
	req, err := c.newRequest(ctx, method, ep, cred)
	if err != nil {
		tracing.EndSpan(span, err)
		return resp, err
	}

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		resp.Duration = time.Since(start)
		reqErr := &RequestError{Endpoint: ep, Kind: metrics.KindTransportTimeout, Err: err}
		if ctx.Err() != nil {
			reqErr.Kind = metrics.KindAborted
		}
		c.endSpan(span, resp, reqErr)
		return resp, reqErr
	}
	body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	_, _ = io.Copy(io.Discard, httpResp.Body)
	_ = httpResp.Body.Close()
	resp.Duration = time.Since(start)
	resp.StatusCode = httpResp.StatusCode

	reqErr := classify(ep, httpResp.StatusCode, body)
	if reqErr == nil && readErr != nil {
		reqErr = &RequestError{Endpoint: ep, Kind: metrics.KindTransportTimeout, StatusCode: httpResp.StatusCode, Err: readErr}
		if ctx.Err() != nil {
			reqErr.Kind = metrics.KindAborted
		}
	}
	if reqErr == nil && ep == metrics.EndpointStatus {
		resp.Status, reqErr = parseStatus(body)
	}

	if reqErr != nil {
		c.endSpan(span, resp, reqErr)
		return resp, reqErr
	}
	c.endSpan(span, resp, nil)
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method string, ep metrics.Endpoint, cred credentials.Credential) (*http.Request, error) {
	var body io.Reader
	if method == http.MethodPost {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, c.urls[ep], body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", ep, err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	req.Header.Set("User-Agent", "queuefire")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}
	return req, nil
}

func (c *Client) endSpan(span trace.Span, resp Response, err *RequestError) {
	attrs := []attribute.KeyValue{tracing.AttrStatusCode.Int(resp.StatusCode)}
	if err == nil {
		tracing.EndSpan(span, nil, attrs...)
		return
	}
	attrs = append(attrs, tracing.AttrErrorKind.String(err.Kind.String()))
	tracing.EndSpan(span, err, attrs...)

	if c.failures != nil && err.Kind != metrics.KindAborted {
		c.failures.Warn("request failed",
			"endpoint", resp.Endpoint.String(),
			"kind", err.Kind.String(),
			"status", resp.StatusCode,
			"duration", resp.Duration,
			"error", err.Err,
		)
	}
}

// NewHTTPClient returns an http.Client tuned for many concurrent clients
// hitting one host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          1024,
		MaxIdleConnsPerHost:   512,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
