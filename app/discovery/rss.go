package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/topic-harvest/app/feed"
	"github.com/lysyi3m/topic-harvest/app/urlnorm"
)

var commonFeedPaths = []string{"/feed", "/rss.xml", "/atom.xml", "/feed.xml", "/rss"}

type RSSStrategy struct {
	getter Getter
	parser *feed.Parser
}

func NewRSSStrategy(getter Getter) *RSSStrategy {
	return &RSSStrategy{
		getter: getter,
		parser: feed.NewParser(),
	}
}

func (s *RSSStrategy) Name() string {
	return StrategyRSS
}

// Discover reads the explicit feed when one is configured, then feeds
// advertised on the homepage, then the usual feed paths. The first feed
// that parses with at least one item wins.
func (s *RSSStrategy) Discover(ctx context.Context, target Target) ([]Candidate, error) {
	var errs []error

	tried := map[string]bool{}
	try := func(feedURL string) ([]Candidate, bool) {
		if feedURL == "" || tried[feedURL] {
			return nil, false
		}
		tried[feedURL] = true

		candidates, err := s.readFeed(ctx, target, feedURL)
		if err != nil {
			errs = append(errs, err)
			return nil, false
		}
		return candidates, len(candidates) > 0
	}

	if candidates, ok := try(target.FeedURL); ok {
		return candidates, nil
	}

	if target.HomepageURL == "" {
		return nil, errors.Join(append(errs, errors.New("no homepage to autodiscover feeds from"))...)
	}

	for _, feedURL := range s.advertised(ctx, target) {
		if candidates, ok := try(feedURL); ok {
			return candidates, nil
		}
	}

	for _, path := range commonFeedPaths {
		feedURL, err := urlnorm.Absolute(target.HomepageURL, path)
		if err != nil {
			continue
		}
		if candidates, ok := try(feedURL); ok {
			return candidates, nil
		}
	}

	if len(errs) == len(tried) && len(errs) > 0 {
		return nil, fmt.Errorf("no readable feed: %w", errors.Join(errs...))
	}
	return nil, nil
}

func (s *RSSStrategy) advertised(ctx context.Context, target Target) []string {
	data, err := s.getter.Get(ctx, target.Gate, target.HomepageURL)
	if err != nil {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	var feeds []string
	doc.Find("link[rel='alternate'][href]").Each(func(_ int, sel *goquery.Selection) {
		kind := strings.ToLower(sel.AttrOr("type", ""))
		if !strings.Contains(kind, "rss") && !strings.Contains(kind, "atom") {
			return
		}
		if resolved, err := urlnorm.Absolute(target.HomepageURL, sel.AttrOr("href", "")); err == nil {
			feeds = append(feeds, resolved)
		}
	})
	return feeds
}

func (s *RSSStrategy) readFeed(ctx context.Context, target Target, feedURL string) ([]Candidate, error) {
	data, err := s.getter.Get(ctx, target.Gate, feedURL)
	if err != nil {
		return nil, err
	}

	_, items, err := s.parser.Run(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", feedURL, err)
	}

	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		link, err := urlnorm.Absolute(feedURL, item.Link)
		if err != nil {
			continue
		}
		candidate, ok := newCandidate(link, StrategyRSS)
		if !ok {
			continue
		}
		candidate.Title = item.Title
		candidate.PublishedAt = item.PublishedAt
		candidate.Author = item.Author
		candidate.Summary = item.Summary
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
