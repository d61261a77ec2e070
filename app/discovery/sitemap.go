package discovery

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/lysyi3m/topic-harvest/app/urlnorm"
	"github.com/temoto/robotstxt"
)

const (
	maxChildSitemaps = 5
	maxSitemapBytes  = 50 << 20
)

type sitemapDocument struct {
	XMLName  xml.Name
	URLs     []sitemapEntry `xml:"url"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
	News    struct {
		PublicationDate string `xml:"publication_date"`
		Title           string `xml:"title"`
	} `xml:"news"`
}

func (e sitemapEntry) modified() (time.Time, bool) {
	for _, raw := range []string{e.News.PublicationDate, e.LastMod} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if parsed, err := dateparse.ParseAny(raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

type SitemapStrategy struct {
	getter Getter
	window time.Duration
	now    func() time.Time
}

func NewSitemapStrategy(getter Getter, window time.Duration, now func() time.Time) *SitemapStrategy {
	if now == nil {
		now = time.Now
	}
	return &SitemapStrategy{getter: getter, window: window, now: now}
}

func (s *SitemapStrategy) Name() string {
	return StrategySitemap
}

// Discover reads sitemaps listed in robots.txt plus the conventional
// locations, follows one level of sitemap index and keeps same-host
// entries modified within the window, newest first. Undated entries are
// dropped.
func (s *SitemapStrategy) Discover(ctx context.Context, target Target) ([]Candidate, error) {
	if target.HomepageURL == "" {
		return nil, errors.New("no homepage to locate sitemaps from")
	}

	type dated struct {
		candidate Candidate
		at        time.Time
	}

	cutoff := s.now().Add(-s.window)
	var entries []dated
	var errs []error
	seen := map[string]bool{}

	locations := s.locations(ctx, target)
	for _, location := range locations {
		urls, err := s.read(ctx, target, location, 0)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		for _, entry := range urls {
			at, ok := entry.modified()
			if !ok || at.Before(cutoff) {
				continue
			}
			link, err := urlnorm.Absolute(location, entry.Loc)
			if err != nil || !urlnorm.SameHost(link, target.HomepageURL) {
				continue
			}
			candidate, ok := newCandidate(link, StrategySitemap)
			if !ok || seen[candidate.Normalized] {
				continue
			}
			seen[candidate.Normalized] = true

			published := at
			candidate.PublishedAt = &published
			candidate.Title = strings.TrimSpace(entry.News.Title)
			entries = append(entries, dated{candidate: candidate, at: at})
		}
	}

	if len(errs) == len(locations) {
		return nil, fmt.Errorf("no readable sitemap: %w", errors.Join(errs...))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].at.After(entries[j].at)
	})

	candidates := make([]Candidate, len(entries))
	for i, entry := range entries {
		candidates[i] = entry.candidate
	}
	return candidates, nil
}

func (s *SitemapStrategy) locations(ctx context.Context, target Target) []string {
	var locations []string
	add := func(location string) {
		for _, existing := range locations {
			if existing == location {
				return
			}
		}
		locations = append(locations, location)
	}

	if robotsURL, err := urlnorm.Absolute(target.HomepageURL, "/robots.txt"); err == nil {
		if data, err := s.getter.Get(ctx, target.Gate, robotsURL); err == nil {
			if robots, err := robotstxt.FromBytes(data); err == nil {
				for _, sitemap := range robots.Sitemaps {
					if resolved, err := urlnorm.Absolute(robotsURL, sitemap); err == nil {
						add(resolved)
					}
				}
			}
		}
	}

	for _, path := range []string{"/sitemap.xml", "/sitemap_index.xml"} {
		if location, err := urlnorm.Absolute(target.HomepageURL, path); err == nil {
			add(location)
		}
	}
	return locations
}

func (s *SitemapStrategy) read(ctx context.Context, target Target, location string, depth int) ([]sitemapEntry, error) {
	data, err := s.getter.Get(ctx, target.Gate, location)
	if err != nil {
		return nil, err
	}

	doc, err := decodeSitemap(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}

	if len(doc.Sitemaps) == 0 {
		return doc.URLs, nil
	}
	if depth > 0 {
		slog.Debug("Ignoring nested sitemap index", "source", target.Name, "sitemap", location)
		return nil, nil
	}

	children := doc.Sitemaps
	sort.SliceStable(children, func(i, j int) bool {
		ti, _ := children[i].modified()
		tj, _ := children[j].modified()
		return ti.After(tj)
	})
	if len(children) > maxChildSitemaps {
		children = children[:maxChildSitemaps]
	}

	var urls []sitemapEntry
	for _, child := range children {
		childURL, err := urlnorm.Absolute(location, child.Loc)
		if err != nil {
			continue
		}
		entries, err := s.read(ctx, target, childURL, depth+1)
		if err != nil {
			slog.Debug("Failed to read child sitemap", "source", target.Name, "sitemap", childURL, "error", err)
			continue
		}
		urls = append(urls, entries...)
	}
	return urls, nil
}

func decodeSitemap(data []byte) (*sitemapDocument, error) {
	var reader io.Reader = bytes.NewReader(data)
	if len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip sitemap: %w", err)
		}
		defer gz.Close()
		reader = io.LimitReader(gz, maxSitemapBytes)
	}

	var doc sitemapDocument
	if err := xml.NewDecoder(reader).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode sitemap: %w", err)
	}
	if doc.XMLName.Local != "urlset" && doc.XMLName.Local != "sitemapindex" {
		return nil, fmt.Errorf("unexpected sitemap root <%s>", doc.XMLName.Local)
	}
	return &doc, nil
}
