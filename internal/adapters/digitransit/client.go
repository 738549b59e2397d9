// Package digitransit queries the Digitransit routing GraphQL API.
package digitransit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/samirrijal/hsltrips/internal/core/domain"
	"github.com/samirrijal/hsltrips/internal/core/ports"
	"github.com/samirrijal/hsltrips/internal/pkg/metrics"
)

// SubscriptionKeyHeader carries the API key expected by api.digitransit.fi.
const SubscriptionKeyHeader = "digitransit-subscription-key"

const tripPatternQuery = `query TripPattern($id: String!) {
  trip(id: $id) {
    pattern {
      code
    }
  }
}`

// Config configures a Client.
type Config struct {
	URL             string
	SubscriptionKey string
	Timeout         time.Duration
	// RatePerSecond limits every query; LowPriorityRatePerSecond additionally
	// limits low-priority ones. Zero means unlimited.
	RatePerSecond            float64
	Burst                    int
	LowPriorityRatePerSecond float64
}

// Client implements ports.RemoteTripSource.
type Client struct {
	url     string
	key     string
	timeout time.Duration
	http    *fasthttp.Client

	shared     *rate.Limiter
	background *rate.Limiter
}

// New creates a Client with its own fasthttp transport.
func New(cfg Config) *Client {
	return NewWithHTTPClient(cfg, &fasthttp.Client{
		Name:                "hsltrips",
		MaxConnsPerHost:     32,
		ReadTimeout:         cfg.Timeout,
		WriteTimeout:        cfg.Timeout,
		MaxIdleConnDuration: 30 * time.Second,
	})
}

// NewWithHTTPClient creates a Client using hc as transport.
func NewWithHTTPClient(cfg Config, hc *fasthttp.Client) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		url:        cfg.URL,
		key:        cfg.SubscriptionKey,
		timeout:    timeout,
		http:       hc,
		shared:     newLimiter(cfg.RatePerSecond, burst),
		background: newLimiter(cfg.LowPriorityRatePerSecond, 1),
	}
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type tripResponse struct {
	Data struct {
		Trip *domain.RemoteTrip `json:"trip"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// FetchTrip returns the trip's pattern data. A trip unknown to the routing API
// yields (nil, nil); decoding failures wrap domain.ErrMalformedPayload.
func (c *Client) FetchTrip(ctx context.Context, tripID string, priority ports.Priority) (*domain.RemoteTrip, error) {
	start := time.Now()
	trip, err := c.fetchTrip(ctx, tripID, priority)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RemoteQueryDuration.WithLabelValues(priority.String(), outcome).Observe(time.Since(start).Seconds())
	return trip, err
}

func (c *Client) fetchTrip(ctx context.Context, tripID string, priority ports.Priority) (*domain.RemoteTrip, error) {
	if err := c.wait(ctx, priority); err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphQLRequest{
		Query:     tripPatternQuery,
		Variables: map[string]any{"id": tripID},
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	var out tripResponse
	if err := c.do(ctx, body, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("routing api: %s", strings.Join(msgs, "; "))
	}
	return out.Data.Trip, nil
}

// wait blocks until the limiters admit a query of the given priority.
// High-priority queries skip the background limiter.
func (c *Client) wait(ctx context.Context, priority ports.Priority) error {
	if priority != ports.PriorityHigh {
		if err := c.background.Wait(ctx); err != nil {
			return fmt.Errorf("low priority wait: %w", err)
		}
	}
	if err := c.shared.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

type rawResponse struct {
	status int
	body   []byte
	err    error
}

// do sends body and decodes the reply into out. DoDeadline only honours the
// deadline, so the exchange runs in its own goroutine and a cancelled ctx
// returns without waiting for it.
func (c *Client) do(ctx context.Context, body []byte, out any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("routing api request: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan rawResponse, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		defer fasthttp.ReleaseRequest(req)
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(c.url)
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		if c.key != "" {
			req.Header.Set(SubscriptionKeyHeader, c.key)
		}
		req.SetBodyRaw(body)

		err := c.http.DoDeadline(req, resp, deadline)
		done <- rawResponse{
			status: resp.StatusCode(),
			body:   append([]byte(nil), resp.Body()...),
			err:    err,
		}
	}()

	var r rawResponse
	select {
	case <-ctx.Done():
		return fmt.Errorf("routing api request: %w", ctx.Err())
	case r = <-done:
	}

	if r.err != nil {
		return fmt.Errorf("routing api request: %w", r.err)
	}
	if r.status != fasthttp.StatusOK {
		return fmt.Errorf("routing api: unexpected status %d", r.status)
	}
	if err := json.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("%w: decode routing api response: %w", domain.ErrMalformedPayload, err)
	}
	return nil
}
