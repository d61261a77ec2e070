// Package fetcher downloads candidate pages with per-source pacing, a
// global in-flight cap, retries and typed failures.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/semaphore"
)

type Config struct {
	Timeout       time.Duration
	MaxBodyBytes  int64
	MaxConcurrent int
	UserAgents    []string
	Backoff       []time.Duration
	MaxAttempts   int
}

func DefaultConfig() Config {
	return Config{
		Timeout:       15 * time.Second,
		MaxBodyBytes:  5 << 20,
		MaxConcurrent: 3,
		UserAgents:    []string{"Mozilla/5.0 (compatible; TopicHarvest/1.0)"},
		Backoff:       []time.Duration{time.Second, 3 * time.Second, 5 * time.Second},
		MaxAttempts:   3,
	}
}

// Structural markers are class or id names that only gated pages carry.
var paywallGateMarkers = []string{
	"premium-content-gate",
	"meteredcontent",
	"paywall-overlay",
}

// Subscription copy appears in site chrome on free pages too, so it only
// counts inside the page text left after noise removal, and only when that
// text is teaser-sized.
var paywallCopyMarkers = []string{
	"subscribe to continue reading",
	"subscribe to read",
	"this article is for subscribers",
	"already a subscriber?",
}

const (
	paywallTeaserWords = 250
	paywallNoise       = "header, nav, footer, aside, script, style, noscript, [role=banner], [role=navigation]"
)

// Fetcher is safe for concurrent use. Per-source pacing lives in the Gate
// handed to Run, so different sources never contend on each other's delay.
type Fetcher struct {
	client *http.Client
	cfg    Config
	sem    *semaphore.Weighted
	agent  atomic.Uint64
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewFetcher(client *http.Client, cfg Config) *Fetcher {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaults.MaxConcurrent
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = defaults.UserAgents
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = defaults.Backoff
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if client == nil {
		client = &http.Client{}
	}

	return &Fetcher{
		client: client,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		sleep:  sleepContext,
	}
}

// Run fetches rawURL and returns the response body. Every attempt waits on
// gate first. A cancelled ctx stops further attempts but never interrupts
// a request already on the wire; that one finishes or hits its timeout.
func (f *Fetcher) Run(ctx context.Context, gate *Gate, rawURL string) ([]byte, error) {
	return f.run(ctx, gate, rawURL, true)
}

// Get is Run without paywall detection, for feeds, sitemaps and listing
// pages whose teasers routinely carry subscription copy.
func (f *Fetcher) Get(ctx context.Context, gate *Gate, rawURL string) ([]byte, error) {
	return f.run(ctx, gate, rawURL, false)
}

func (f *Fetcher) run(ctx context.Context, gate *Gate, rawURL string, checkPaywall bool) ([]byte, error) {
	var last *Failure

	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, f.cancelled(rawURL, attempt-1, last, err)
		}

		if err := gate.Wait(ctx); err != nil {
			return nil, f.cancelled(rawURL, attempt-1, last, err)
		}

		body, failure := f.attempt(ctx, gate, rawURL, checkPaywall)
		if failure == nil {
			return body, nil
		}
		failure.Attempts = attempt
		last = failure

		if !failure.Retryable() || attempt == f.cfg.MaxAttempts {
			break
		}

		delay := f.backoff(attempt)
		slog.Debug("Fetch attempt failed, retrying", "url", rawURL, "kind", failure.Kind, "attempt", attempt, "delay", delay)

		if err := f.sleep(ctx, delay); err != nil {
			return nil, f.cancelled(rawURL, attempt, last, err)
		}
	}

	return nil, last
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	if attempt-1 < len(f.cfg.Backoff) {
		return f.cfg.Backoff[attempt-1]
	}
	return f.cfg.Backoff[len(f.cfg.Backoff)-1]
}

func (f *Fetcher) cancelled(rawURL string, attempts int, last *Failure, err error) error {
	if last != nil {
		return last
	}
	return &Failure{Kind: KindNetworkError, URL: rawURL, Attempts: attempts, Err: err}
}

func (f *Fetcher) attempt(ctx context.Context, gate *Gate, rawURL string, checkPaywall bool) ([]byte, *Failure) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, &Failure{Kind: KindNetworkError, URL: rawURL, Err: err}
	}
	defer f.sem.Release(1)

	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Failure{Kind: KindNetworkError, URL: rawURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("User-Agent", f.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if gate != nil {
		for key, value := range gate.headers {
			req.Header.Set(key, value)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransport(rawURL, err)
	}
	defer resp.Body.Close()

	if failure := classifyStatus(rawURL, resp.StatusCode); failure != nil {
		return nil, failure
	}

	if resp.ContentLength > f.cfg.MaxBodyBytes {
		return nil, &Failure{Kind: KindTooLarge, URL: rawURL, Status: resp.StatusCode,
			Err: fmt.Errorf("content length %d exceeds %d bytes", resp.ContentLength, f.cfg.MaxBodyBytes)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, classifyTransport(rawURL, fmt.Errorf("failed to read response body: %w", err))
	}
	if int64(len(body)) > f.cfg.MaxBodyBytes {
		return nil, &Failure{Kind: KindTooLarge, URL: rawURL, Status: resp.StatusCode,
			Err: fmt.Errorf("body exceeds %d bytes", f.cfg.MaxBodyBytes)}
	}

	if checkPaywall && isPaywalled(body) {
		return nil, &Failure{Kind: KindPaywall, URL: rawURL, Status: resp.StatusCode}
	}

	return body, nil
}

func (f *Fetcher) nextUserAgent() string {
	n := f.agent.Add(1) - 1
	return f.cfg.UserAgents[n%uint64(len(f.cfg.UserAgents))]
}

func classifyStatus(rawURL string, status int) *Failure {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &Failure{Kind: KindAccessDenied, URL: rawURL, Status: status}
	case status == http.StatusPaymentRequired:
		return &Failure{Kind: KindPaywall, URL: rawURL, Status: status}
	case status == http.StatusTooManyRequests:
		return &Failure{Kind: KindRateLimited, URL: rawURL, Status: status}
	case status >= 500:
		return &Failure{Kind: KindHTTP5xx, URL: rawURL, Status: status}
	default:
		return &Failure{Kind: KindHTTP4xx, URL: rawURL, Status: status}
	}
}

func classifyTransport(rawURL string, err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Failure{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &Failure{Kind: KindNetworkError, URL: rawURL, Err: err}
}

func isPaywalled(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, marker := range paywallGateMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	doc.Find(paywallNoise).Remove()

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(strings.Fields(text)) >= paywallTeaserWords {
		return false
	}

	text = strings.ToLower(text)
	for _, marker := range paywallCopyMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
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
