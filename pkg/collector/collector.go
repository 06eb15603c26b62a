// Package collector implements the platform pollers. Each collector hits one
// platform API, pages through results and appends the raw payloads to the
// gzipped NDJSON archive.
package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// A Collector runs one collection pass for one platform.
type Collector interface {
	// Name identifies the collector in logs and the run ledger.
	Name() string

	// Run executes one collection pass and returns the number of records
	// written.
	Run(ctx context.Context) (int, error)
}

// RunInfo describes one collection pass for the run ledger.
type RunInfo struct {
	Label      string
	Day        time.Time
	OutputFile string
}

// Describer reports where the next pass writes. Collectors implementing it
// get their label, day and output file recorded alongside the run.
type Describer interface {
	Describe() RunInfo
}

// RetryPolicy controls how failed requests are repeated.
type RetryPolicy struct {
	// Attempts is the total number of tries, the first included.
	Attempts int

	// Wait is the pause after the first failure.
	Wait time.Duration

	// Exponential doubles the pause after every further failure.
	Exponential bool
}

// Do runs fn until it succeeds, attempts run out, or ctx is done. The last
// error is returned when attempts run out.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.Wait
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if p.Exponential {
			wait *= 2
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// StatusError reports a non-2xx API response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// client wraps the pieces every collector shares: the HTTP client, a rate
// limiter and a logger.
type client struct {
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func newClient(timeout time.Duration, limit rate.Limit, log *zap.Logger) client {
	if log == nil {
		log = zap.NewNop()
	}
	return client{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// getJSON rate-limits, fetches url and returns the response body. Non-2xx
// responses come back as *StatusError.
func (c client) getJSON(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
