package fetcher

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

type Kind string

const (
	KindTimeout      Kind = "timeout"
	KindNetworkError Kind = "network_error"
	KindHTTP5xx      Kind = "http_5xx"
	KindHTTP4xx      Kind = "http_4xx"
	KindRateLimited  Kind = "rate_limited"
	KindAccessDenied Kind = "access_denied"
	KindPaywall      Kind = "paywall_detected"
	KindTooLarge     Kind = "too_large"
)

type Failure struct {
	Kind     Kind
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("fetch %s failed: %s", f.URL, f.Kind)
	if f.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", f.Status)
	}
	if f.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", f.Attempts)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func (f *Failure) Retryable() bool {
	switch f.Kind {
	case KindTimeout, KindNetworkError, KindHTTP5xx, KindRateLimited:
		return true
	}
	return false
}

// Gate paces requests to a single source. One gate is created per source
// run and shared by discovery and article fetches.
type Gate struct {
	limiter *rate.Limiter
	headers map[string]string
}

func NewGate(interval time.Duration, headers map[string]string) *Gate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Gate{
		limiter: rate.NewLimiter(limit, 1),
		headers: headers,
	}
}

func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}
