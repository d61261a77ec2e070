package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/topic-harvest/app/urlnorm"
)

// Anchor selectors from most to least specific. The first one that yields
// usable links on a page decides that page's candidates.
var defaultLinkSelectors = []string{
	"article h1 a[href]",
	"article h2 a[href]",
	"article h3 a[href]",
	".post-title a[href]",
	".entry-title a[href]",
	"h2 a[href]",
	"h3 a[href]",
	"main a[href]",
	"a[href]",
}

var nonArticleSegments = map[string]bool{
	"tag": true, "tags": true, "category": true, "categories": true,
	"author": true, "authors": true, "page": true, "search": true,
	"about": true, "contact": true, "login": true, "signin": true,
	"register": true, "subscribe": true, "privacy": true, "terms": true,
	"feed": true, "rss": true, "wp-admin": true, "wp-login.php": true,
	"cart": true, "account": true, "newsletter": true,
}

var skippedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".svg": true, ".pdf": true, ".zip": true, ".mp3": true, ".mp4": true,
	".xml": true, ".css": true, ".js": true,
}

type LinkStrategy struct {
	getter Getter
}

func NewLinkStrategy(getter Getter) *LinkStrategy {
	return &LinkStrategy{getter: getter}
}

func (s *LinkStrategy) Name() string {
	return StrategyHTML
}

func (s *LinkStrategy) Discover(ctx context.Context, target Target) ([]Candidate, error) {
	selectors := append(append([]string{}, target.LinkSelectors...), defaultLinkSelectors...)

	var candidates []Candidate
	var errs []error
	pages := target.listingPages()

	for _, page := range pages {
		doc, base, err := loadPage(ctx, s.getter, target, page)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, selector := range selectors {
			found := pageLinks(doc, base, page, selector)
			if len(found) > 0 {
				candidates = append(candidates, found...)
				break
			}
		}
	}

	if len(errs) == len(pages) {
		return nil, errors.Join(errs...)
	}
	return candidates, nil
}

func pageLinks(doc *goquery.Document, base, page, selector string) []Candidate {
	var found []Candidate
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		link, err := urlnorm.Absolute(base, sel.AttrOr("href", ""))
		if err != nil || !urlnorm.SameHost(link, page) || !looksLikeArticle(link, page) {
			return
		}
		candidate, ok := newCandidate(link, StrategyHTML)
		if !ok {
			return
		}
		candidate.Title = strings.Join(strings.Fields(sel.Text()), " ")
		found = append(found, candidate)
	})
	return found
}

// loadPage fetches and parses a listing page. The returned base honours a
// <base href> element.
func loadPage(ctx context.Context, getter Getter, target Target, page string) (*goquery.Document, string, error) {
	if page == "" {
		return nil, "", errors.New("no listing page")
	}

	data, err := getter.Get(ctx, target.Gate, page)
	if err != nil {
		return nil, "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", page, err)
	}

	base := page
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := urlnorm.Absolute(page, href); err == nil {
			base = resolved
		}
	}
	return doc, base, nil
}

func looksLikeArticle(link, page string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}

	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return false
	}
	if same, err := urlnorm.Normalize(page); err == nil {
		if normalized, err := urlnorm.Normalize(link); err == nil && normalized == same {
			return false
		}
	}
	if skippedExtensions[strings.ToLower(path.Ext(trimmed))] {
		return false
	}

	segments := strings.Split(strings.ToLower(trimmed), "/")
	for _, segment := range segments {
		if nonArticleSegments[segment] {
			return false
		}
	}
	return true
}

func newCandidate(link, strategy string) (Candidate, bool) {
	normalized, err := urlnorm.Normalize(link)
	if err != nil {
		return Candidate{}, false
	}
	return Candidate{URL: link, Normalized: normalized, Strategy: strategy}, true
}
