// Package provider fetches game exports from the public chess platform
// APIs. A Fetcher applies a per-platform Profile (pacing, backoff,
// timeout) to every request; the source adapters on top of it know the
// URL shapes and payload formats but never touch storage.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const userAgent = "chesslog/1.0 (+https://github.com/chesslog/chesslog)"

// Profile bundles the request pacing rules for one platform.
type Profile struct {
	// InterRequestDelay is the minimum spacing between requests.
	// Zero means unpaced.
	InterRequestDelay time.Duration
	// InitialBackoff is the first wait after a 429 response.
	InitialBackoff time.Duration
	// BackoffFactor multiplies the wait after each further 429.
	// A factor of 1 keeps the backoff fixed.
	BackoffFactor float64
	// MaxBackoff caps the grown backoff.
	MaxBackoff time.Duration
	// MaxRetries is how many 429 responses are retried before giving up.
	MaxRetries int
	// Timeout bounds a single request, including reading the body.
	Timeout time.Duration
}

// ChessComProfile paces requests to the Chess.com published-data API.
var ChessComProfile = Profile{
	InterRequestDelay: 500 * time.Millisecond,
	InitialBackoff:    2 * time.Second,
	BackoffFactor:     2,
	MaxBackoff:        60 * time.Second,
	MaxRetries:        3,
	Timeout:           30 * time.Second,
}

// LichessProfile paces requests to the Lichess export API. The long
// timeout covers streaming a full game history in one response.
var LichessProfile = Profile{
	InterRequestDelay: 0,
	InitialBackoff:    60 * time.Second,
	BackoffFactor:     1,
	MaxBackoff:        60 * time.Second,
	MaxRetries:        3,
	Timeout:           10 * time.Minute,
}

// NotFoundError reports a 404 response, usually an unknown username.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// RateLimitedError reports that the retry budget for 429 responses
// was exhausted.
type RateLimitedError struct {
	URL     string
	Retries int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited after %d retries: %s", e.Retries, e.URL)
}

// StatusError reports any other non-success response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.URL)
}

// Fetcher issues GET requests under a Profile's pacing rules.
type Fetcher struct {
	profile Profile
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	sleep   func(context.Context, time.Duration) error
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger zerolog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithSleep replaces the backoff sleep, letting tests observe waits
// without incurring them.
func WithSleep(sleep func(context.Context, time.Duration) error) FetcherOption {
	return func(f *Fetcher) {
		f.sleep = sleep
	}
}

// NewFetcher creates a Fetcher for the given profile.
func NewFetcher(profile Profile, opts ...FetcherOption) *Fetcher {
	limit := rate.Inf
	if profile.InterRequestDelay > 0 {
		limit = rate.Every(profile.InterRequestDelay)
	}
	f := &Fetcher{
		profile: profile,
		client:  &http.Client{Timeout: profile.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  zerolog.Nop(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchText GETs url and returns the whole body.
func (f *Fetcher) FetchText(ctx context.Context, url, accept string) ([]byte, error) {
	resp, err := f.do(ctx, url, accept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	return body, nil
}

// FetchStream GETs url and returns the response body for the caller to
// consume incrementally. The caller must close it.
func (f *Fetcher) FetchStream(ctx context.Context, url, accept string) (io.ReadCloser, error) {
	resp, err := f.do(ctx, url, accept)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (f *Fetcher) do(ctx context.Context, url, accept string) (*http.Response, error) {
	backoff := f.profile.InitialBackoff
	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
		}
		req.Header.Set("User-Agent", userAgent)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request to %s failed: %w", url, err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if attempt >= f.profile.MaxRetries {
				return nil, &RateLimitedError{URL: url, Retries: attempt}
			}
			f.logger.Warn().
				Str("url", url).
				Dur("backoff", backoff).
				Int("attempt", attempt+1).
				Msg("Rate limited, backing off")
			if err := f.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = nextBackoff(backoff, f.profile)
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, &NotFoundError{URL: url}
		default:
			code := resp.StatusCode
			resp.Body.Close()
			return nil, &StatusError{URL: url, StatusCode: code}
		}
	}
}

func nextBackoff(current time.Duration, p Profile) time.Duration {
	next := time.Duration(float64(current) * p.BackoffFactor)
	if next > p.MaxBackoff {
		next = p.MaxBackoff
	}
	return next
}
