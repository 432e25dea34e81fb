package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/flagdesk/internal/observability"
)

// Client talks to the flag moderation REST API. It performs no retries; the
// only fallback is the list scan in GetFlagByID.
type Client struct {
	baseURL    string
	session    Session
	httpClient *http.Client
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets an overall request timeout. Zero keeps the transport default.
// The HTTP client is copied first so a shared client passed to WithHTTPClient
// keeps its own timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m observability.MetricsRegistry) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client for baseURL authenticated by session.
func New(baseURL string, session Session, opts ...Option) *Client {
	if session == nil {
		session = StaticSession("")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  zap.NewNop(),
		metrics: observability.NewNoOpRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type errorBody struct {
	Message string `json:"message"`
}

// request describes one API call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	// ifMatch is sent as If-Match when positive
	ifMatch int
}

func (c *Client) do(ctx context.Context, req request, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		c.metrics.RecordClientLatency(req.op, time.Since(start))
		c.metrics.IncrementClientRequests(req.op, outcome)
	}()

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", req.op, err)
		}
		body = bytes.NewReader(b)
	}

	u := c.baseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", req.op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.ifMatch > 0 {
		httpReq.Header.Set("If-Match", strconv.Itoa(req.ifMatch))
	}
	reqID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", reqID)

	tok, err := c.session.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: session: %w", req.op, err)
	}
	if tok != "" {
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &NetworkError{Op: req.op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	c.logger.Debug("api response",
		zap.String("op", req.op),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(req.op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return &ServerError{Op: req.op, StatusCode: resp.StatusCode, Message: "empty response body"}
		}
		return &ServerError{Op: req.op, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

// statusError prefers the JSON {message} body over the HTTP status text.
func (c *Client) statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := http.StatusText(resp.StatusCode)
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && strings.TrimSpace(eb.Message) != "" {
		msg = eb.Message
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &NotFoundError{Op: op, Message: msg}
	case http.StatusConflict:
		return &ConflictError{Op: op, Message: msg}
	}
	return &ServerError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}
