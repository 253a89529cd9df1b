// Package transport posts pipeline batches to the remote endpoint.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/tomyedwab/libsqlhttp/libsql/dberr"
	"github.com/tomyedwab/libsqlhttp/libsql/types"
)

var (
	sharedOnce   sync.Once
	sharedClient *http.Client
)

// SharedHTTPClient returns the process-wide pooled client used when no client
// is supplied.
func SharedHTTPClient() *http.Client {
	sharedOnce.Do(func() {
		sharedClient = cleanhttp.DefaultPooledClient()
	})
	return sharedClient
}

// Client sends batches for one connection string.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// Option represents a functional option for configuring the Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger used for per-batch debug output
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for cfg.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = SharedHTTPClient()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Config returns the connection settings of the client.
func (c *Client) Config() Config {
	return c.cfg
}

// Exchange is one completed request/response cycle.
type Exchange struct {
	StatusCode   int
	RequestBody  []byte
	ResponseBody []byte
	Response     *types.PipelineResponse
	Duration     time.Duration
}

// Post sends req and decodes the response. sql is only used to annotate errors.
//
// A cancelled or expired ctx yields an OperationCanceled error. Network
// failures, non-2xx statuses and unreadable bodies are Transport errors; a
// batch level error or a response without results is a Protocol error.
func (c *Client) Post(ctx context.Context, req *types.PipelineRequest, sql string) (*Exchange, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, dberr.NewTransportError("failed to marshal pipeline request", err).WithSQL(sql)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, dberr.NewTransportError("failed to create request", err).WithSQL(sql)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := contextError(ctx, err); ctxErr != nil {
			return nil, dberr.NewCanceledError(ctxErr).WithSQL(sql)
		}
		return nil, dberr.NewTransportError("request failed", err).WithSQL(sql).WithExchange(0, body, nil)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	ex := &Exchange{
		StatusCode:   resp.StatusCode,
		RequestBody:  body,
		ResponseBody: respBody,
		Duration:     time.Since(start),
	}
	if err != nil {
		if ctxErr := contextError(ctx, err); ctxErr != nil {
			return nil, dberr.NewCanceledError(ctxErr).WithSQL(sql)
		}
		return nil, dberr.NewTransportError("failed to read response body", err).WithSQL(sql).WithExchange(resp.StatusCode, body, respBody)
	}

	c.logger.Debug("Posted pipeline batch",
		"requests", len(req.Requests),
		"status", resp.StatusCode,
		"duration", ex.Duration)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, dberr.Newf(dberr.KindTransport, "pipeline request failed: %s", http.StatusText(resp.StatusCode)).
			WithSQL(sql).WithExchange(resp.StatusCode, body, respBody)
	}

	var pr types.PipelineResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, dberr.NewTransportError("failed to unmarshal pipeline response", err).
			WithSQL(sql).WithExchange(resp.StatusCode, body, respBody)
	}
	if pr.Error != nil {
		return nil, dberr.Newf(dberr.KindProtocol, "pipeline error: %s", pr.Error.Message).
			WithSQL(sql).WithExchange(resp.StatusCode, body, respBody)
	}
	if pr.Results == nil {
		return nil, dberr.NewProtocolError("pipeline response has no results").
			WithSQL(sql).WithExchange(resp.StatusCode, body, respBody)
	}

	ex.Response = &pr
	return ex, nil
}

func contextError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// TokenExpiry reads the exp claim of a JWT bearer token without verifying its
// signature. ok is false for tokens that are not JWTs or carry no exp.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
