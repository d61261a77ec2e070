// Package discovery finds candidate article URLs for a source by running
// an ordered chain of strategies until one of them yields something.
package discovery

import (
	"context"
	"time"

	"github.com/lysyi3m/topic-harvest/app/fetcher"
)

const (
	StrategyRSS       = "rss"
	StrategyHTML      = "html"
	StrategySitemap   = "sitemap"
	StrategyHeuristic = "heuristic"
)

var DefaultOrder = []string{StrategyRSS, StrategyHTML, StrategySitemap, StrategyHeuristic}

// Candidate is a URL worth fetching. Title, PublishedAt, Author and Summary
// come from the feed or listing and are placeholders only.
type Candidate struct {
	URL         string
	Normalized  string
	Strategy    string
	Title       string
	PublishedAt *time.Time
	Author      string
	Summary     string
}

// Target is what the chain needs to know about one source run.
type Target struct {
	Name          string
	FeedURL       string
	HomepageURL   string
	ListingURLs   []string
	LinkSelectors []string
	Method        string
	MaxCandidates int
	MaxAge        time.Duration
	Gate          *fetcher.Gate
}

func (t Target) listingPages() []string {
	if len(t.ListingURLs) > 0 {
		return t.ListingURLs
	}
	return []string{t.HomepageURL}
}

// Getter downloads discovery documents (feeds, sitemaps, listing pages).
type Getter interface {
	Get(ctx context.Context, gate *fetcher.Gate, url string) ([]byte, error)
}

// Filter reports whether a candidate should be kept. It is where the
// caller plugs in recheck-window and discard lookups.
type Filter func(ctx context.Context, candidate Candidate) bool

type Strategy interface {
	Name() string
	Discover(ctx context.Context, target Target) ([]Candidate, error)
}
