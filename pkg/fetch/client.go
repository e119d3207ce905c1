// Package fetch implements the ReadingFetchers: one independently
// configured client per upstream source (flood, hydrology, rainfall),
// sharing a resilient HTTP transport built from resty, a bounded
// exponential-backoff retry policy, and a circuit breaker, following the
// pattern of wrapping every external call behind a small resilience
// layer seen in cloud/retry.go's retry-with-backoff idiom, generalized
// here to the upstream environmental-data APIs.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	resty "github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"riverwatch.dev/agent/internal/errs"
	"riverwatch.dev/agent/pkg/model"
	"riverwatch.dev/agent/pkg/stations"
)

// ClientConfig parameterizes one fetcher's resilience policy.
type ClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	BreakerName string
}

// ResilientClient wraps a resty client with bounded exponential-backoff
// retry on transient failures and a circuit breaker that trips after
// repeated upstream failures, sparing a struggling upstream further load.
type ResilientClient struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	cfg     ClientConfig
}

func NewResilientClient(cfg ClientConfig) *ResilientClient {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &ResilientClient{http: http, breaker: breaker, cfg: cfg}
}

// Get performs a GET request against path with the given query params,
// retrying transient failures (5xx, connection errors) with exponential
// backoff and jitter up to MaxRetries times after the first attempt
// (MaxRetries+1 attempts in all). 4xx responses are
// terminal and returned immediately without retry. The circuit breaker
// short-circuits calls while the upstream is judged unhealthy.
func (c *ResilientClient) Get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.getWithRetry(ctx, path, params)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &errs.TransientUpstreamError{Source: c.cfg.BreakerName, Err: err}
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (c *ResilientClient) getWithRetry(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = c.cfg.Timeout

	var body []byte
	var attempt int

	operation := func() error {
		attempt++
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(path)
		if err != nil {
			return &errs.TransientUpstreamError{Source: c.cfg.BreakerName, Err: err}
		}
		if resp.StatusCode() >= 500 {
			return &errs.TransientUpstreamError{Source: c.cfg.BreakerName,
				Err: fmt.Errorf("upstream returned %d", resp.StatusCode())}
		}
		if resp.StatusCode() >= 400 {
			return backoff.Permanent(&errs.TerminalUpstreamError{Source: c.cfg.BreakerName,
				Err: fmt.Errorf("upstream returned %d", resp.StatusCode())})
		}
		body = resp.Body()
		return nil
	}

	maxAttempts := c.cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	bounded := backoff.WithMaxRetries(policy, uint64(maxAttempts))

	if err := backoff.Retry(operation, backoff.WithContext(bounded, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// Fetcher is the contract every source-specific fetcher implements.
type Fetcher interface {
	Source() model.Source
	FetchLatest(ctx context.Context) ([]model.Reading, error)
}

// enrichWithStations fills in station coordinates via a single batch
// lookup, marking unresolved readings coord-less rather than dropping
// them; filtering happens downstream (AnomalyDetector).
func enrichWithStations(ctx context.Context, store stations.Store, source model.Source, readings []model.Reading) ([]model.Reading, error) {
	ids := make([]string, 0, len(readings))
	seen := make(map[string]bool, len(readings))
	for _, r := range readings {
		if !seen[r.StationID] {
			seen[r.StationID] = true
			ids = append(ids, r.StationID)
		}
	}

	resolved, err := store.LookupBatch(ctx, source, ids)
	if err != nil {
		return nil, err
	}

	out := make([]model.Reading, len(readings))
	for i, r := range readings {
		if st, ok := resolved[r.StationID]; ok {
			r.HasCoords = true
			r.Lat = st.Lat
			r.Lon = st.Lon
		}
		out[i] = r
	}
	return out, nil
}
