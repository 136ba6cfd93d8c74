// Package rpc implements ledger.Gateway against the dungeon relay: a
// JSON-RPC 2.0 endpoint over HTTP for reads and submissions, and a
// websocket endpoint that pushes room change notifications.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kimo-do/SeekerDungeon-sub002/internal/ledger"
)

type Config struct {
	URL               string
	RequestsPerSecond float64 // 0 disables throttling
	Burst             int
	Timeout           time.Duration
	HTTPClient        *http.Client
}

type Stats struct {
	Requests    uint64
	Failures    uint64
	RateLimited uint64
}

// Client issues JSON-RPC calls. Every call waits on the shared limiter
// first so the process stays under the provider's request budget.
type Client struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
	schemas schemaSet
	nextID  atomic.Uint64

	requests    atomic.Uint64
	failures    atomic.Uint64
	rateLimited atomic.Uint64
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rpc: url is required")
	}
	schemas, err := loadSchemas()
	if err != nil {
		return nil, fmt.Errorf("rpc: load schemas: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{url: cfg.URL, http: hc, schemas: schemas}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

// Call invokes method and decodes the result into out. A null result leaves
// pointer outs nil. When schema is non-empty the raw result is validated
// before decoding.
func (c *Client) Call(ctx context.Context, method string, params any, schema string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	c.requests.Add(1)
	raw, err := c.roundTrip(ctx, method, params)
	if err != nil {
		c.failures.Add(1)
		if ledger.Classify(err) == ledger.KindRateLimited {
			c.rateLimited.Add(1)
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	if schema != "" {
		if err := c.schemas.validate(schema, raw); err != nil {
			c.failures.Add(1)
			return fmt.Errorf("%s: %w", method, &ledger.Error{Code: ledger.ErrBadResponse, Message: err.Error()})
		}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.failures.Add(1)
		return fmt.Errorf("%s: %w", method, &ledger.Error{Code: ledger.ErrBadResponse, Message: err.Error()})
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ledger.Error{Code: ledger.ErrUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &ledger.Error{Code: ledger.ErrUnavailable, Message: err.Error(), Status: resp.StatusCode}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ledger.Error{Code: ledger.ErrRateLimit, Message: strings.TrimSpace(string(payload)), Status: resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, &ledger.Error{Code: ledger.ErrUnavailable, Message: strings.TrimSpace(string(payload)), Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &ledger.Error{Code: ledger.ErrInternal, Message: strings.TrimSpace(string(payload)), Status: resp.StatusCode}
	}

	var rr rpcResponse
	if err := json.Unmarshal(payload, &rr); err != nil {
		return nil, &ledger.Error{Code: ledger.ErrBadResponse, Message: err.Error()}
	}
	if rr.Error != nil {
		return nil, rr.Error.toLedger()
	}
	return rr.Result, nil
}

func (c *Client) Stats() Stats {
	return Stats{
		Requests:    c.requests.Load(),
		Failures:    c.failures.Load(),
		RateLimited: c.rateLimited.Load(),
	}
}
