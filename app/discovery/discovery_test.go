package discovery

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/topic-harvest/app/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGetter struct {
	pages    map[string]string
	requests []string
}

func (m *mockGetter) Get(ctx context.Context, gate *fetcher.Gate, url string) ([]byte, error) {
	m.requests = append(m.requests, url)
	body, ok := m.pages[url]
	if !ok {
		return nil, &fetcher.Failure{Kind: fetcher.KindHTTP4xx, URL: url, Status: 404}
	}
	return []byte(body), nil
}

func (m *mockGetter) requested(url string) bool {
	for _, r := range m.requests {
		if r == url {
			return true
		}
	}
	return false
}

const home = "https://news.example.com/"

func rssFeed(n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>News</title>`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<item><title>Story %d</title><link>https://news.example.com/2024/story-%d?utm_source=rss</link>`+
			`<description>&lt;p&gt;Summary %d&lt;/p&gt;</description><pubDate>Mon, 01 Jul 2024 10:00:00 GMT</pubDate></item>`, i, i, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func newTestChain(getter Getter) *Chain {
	chain := NewChain(getter, Config{SitemapWindow: 30 * 24 * time.Hour})
	chain.now = func() time.Time { return time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC) }
	return chain
}

func TestOrder(t *testing.T) {
	assert.Equal(t, DefaultOrder, Order("auto"))
	assert.Equal(t, DefaultOrder, Order(""))
	assert.Equal(t, []string{StrategySitemap, StrategyRSS, StrategyHTML, StrategyHeuristic}, Order(StrategySitemap))
	assert.Equal(t, []string{StrategyHeuristic, StrategyRSS, StrategyHTML, StrategySitemap}, Order(StrategyHeuristic))
}

func TestChain_ExplicitFeed(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		"https://news.example.com/custom.xml": rssFeed(3),
	}}

	candidates, err := newTestChain(getter).Run(context.Background(), Target{
		Name:        "daily",
		FeedURL:     "https://news.example.com/custom.xml",
		HomepageURL: home,
	}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	first := candidates[0]
	assert.Equal(t, StrategyRSS, first.Strategy)
	assert.Equal(t, "https://news.example.com/2024/story-1?utm_source=rss", first.URL)
	assert.Equal(t, "https://news.example.com/2024/story-1", first.Normalized)
	assert.Equal(t, "Story 1", first.Title)
	assert.Equal(t, "Summary 1", first.Summary)
	require.NotNil(t, first.PublishedAt)

	assert.False(t, getter.requested(home), "homepage should not be fetched when the explicit feed works")
}

func TestChain_FeedAutodiscovery(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		home: `<html><head><link rel="alternate" type="application/rss+xml" href="/feeds/main.xml"></head><body></body></html>`,
		"https://news.example.com/feeds/main.xml": rssFeed(2),
	}}

	candidates, err := newTestChain(getter).Run(context.Background(), Target{HomepageURL: home}, nil)
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestChain_CommonFeedPath(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		home: `<html><body>no feeds advertised</body></html>`,
		"https://news.example.com/rss.xml": rssFeed(1),
	}}

	candidates, err := newTestChain(getter).Run(context.Background(), Target{HomepageURL: home}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.True(t, getter.requested("https://news.example.com/feed"), "earlier common paths should be tried first")
}

func TestChain_CapAndFilter(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		"https://news.example.com/feed": rssFeed(40),
	}}

	filter := func(ctx context.Context, c Candidate) bool {
		return c.Normalized != "https://news.example.com/2024/story-2"
	}

	candidates, err := newTestChain(getter).Run(context.Background(), Target{
		FeedURL:       "https://news.example.com/feed",
		HomepageURL:   home,
		MaxCandidates: 5,
	}, filter)
	require.NoError(t, err)
	require.Len(t, candidates, 5)

	for _, c := range candidates {
		assert.NotEqual(t, "https://news.example.com/2024/story-2", c.Normalized)
	}
	assert.Equal(t, "https://news.example.com/2024/story-6", candidates[4].Normalized)
}

func TestChain_MaxAge(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		"https://news.example.com/feed": rssFeed(3),
	}}

	candidates, err := newTestChain(getter).Run(context.Background(), Target{
		FeedURL:     "https://news.example.com/feed",
		HomepageURL: home,
		MaxAge:      24 * time.Hour,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestChain_FallsBackToHTMLLinks(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		home: `<html><head><base href="https://news.example.com/section/"></head><body>
			<nav><a href="/about">About</a><a href="/tag/politics">Politics</a></nav>
			<article><h2><a href="first-story">First story</a></h2></article>
			<article><h2><a href="https://news.example.com/section/second-story#comments">Second story</a></h2></article>
			<article><h2><a href="https://elsewhere.org/story">Offsite</a></h2></article>
			<footer><a href="/privacy">Privacy</a></footer>
		</body></html>`,
	}}

	candidates, err := newTestChain(getter).Run(context.Background(), Target{HomepageURL: home}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, StrategyHTML, candidates[0].Strategy)
	assert.Equal(t, "https://news.example.com/section/first-story", candidates[0].URL)
	assert.Equal(t, "First story", candidates[0].Title)
	assert.Equal(t, "https://news.example.com/section/second-story", candidates[1].Normalized)
}

func TestChain_MalformedFeedContinues(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		"https://news.example.com/feed": `<rss><channel><item><title>broken`,
		home: `<html><body><main><a href="/2024/a-real-story">A real story</a></main></body></html>`,
	}}

	candidates, err := newTestChain(getter).Run(context.Background(), Target{
		FeedURL:     "https://news.example.com/feed",
		HomepageURL: home,
	}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, StrategyHTML, candidates[0].Strategy)
}

func TestChain_AllStrategiesFail(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{}}

	candidates, err := newTestChain(getter).Run(context.Background(), Target{HomepageURL: home}, nil)
	assert.Error(t, err)
	assert.Empty(t, candidates)
}

func TestChain_MethodMovesStrategyFirst(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		"https://news.example.com/feed": rssFeed(2),
		"https://news.example.com/sitemap.xml": `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://news.example.com/2024/from-sitemap</loc><lastmod>2024-07-09</lastmod></url>
</urlset>`,
	}}

	candidates, err := newTestChain(getter).Run(context.Background(), Target{
		FeedURL:     "https://news.example.com/feed",
		HomepageURL: home,
		Method:      StrategySitemap,
	}, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, StrategySitemap, candidates[0].Strategy)
}

func TestSitemapStrategy(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		"https://news.example.com/robots.txt": "User-agent: *\nDisallow: /admin\nSitemap: https://news.example.com/news-index.xml\n",
		"https://news.example.com/news-index.xml": `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://news.example.com/sitemap-july.xml</loc><lastmod>2024-07-09</lastmod></sitemap>
  <sitemap><loc>https://news.example.com/sitemap-nested.xml</loc></sitemap>
</sitemapindex>`,
		"https://news.example.com/sitemap-july.xml": `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:news="http://www.google.com/schemas/sitemap-news/0.9">
  <url><loc>https://news.example.com/2024/older</loc><lastmod>2024-07-01T08:00:00Z</lastmod></url>
  <url><loc>https://news.example.com/2024/newest</loc>
    <news:news><news:publication_date>2024-07-09T12:00:00Z</news:publication_date><news:title>Newest</news:title></news:news>
  </url>
  <url><loc>https://news.example.com/2023/ancient</loc><lastmod>2023-01-01</lastmod></url>
  <url><loc>https://news.example.com/2024/undated</loc></url>
  <url><loc>https://other.example.org/2024/offsite</loc><lastmod>2024-07-08</lastmod></url>
</urlset>`,
		"https://news.example.com/sitemap-nested.xml": `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://news.example.com/too-deep.xml</loc></sitemap>
</sitemapindex>`,
	}}

	now := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)
	strategy := NewSitemapStrategy(getter, 30*24*time.Hour, func() time.Time { return now })

	candidates, err := strategy.Discover(context.Background(), Target{HomepageURL: home})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "https://news.example.com/2024/newest", candidates[0].URL)
	assert.Equal(t, "Newest", candidates[0].Title)
	assert.Equal(t, "https://news.example.com/2024/older", candidates[1].URL)
	assert.False(t, getter.requested("https://news.example.com/too-deep.xml"))
}

func TestSitemapStrategy_Malformed(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		"https://news.example.com/sitemap.xml": `<urlset><url><loc>broken`,
	}}

	strategy := NewSitemapStrategy(getter, 30*24*time.Hour, nil)

	_, err := strategy.Discover(context.Background(), Target{HomepageURL: home})
	assert.Error(t, err)
}

func TestHeuristicStrategy(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		"https://news.example.com/latest": `<html><body>
			<div itemscope itemtype="https://schema.org/NewsArticle">
				<h3 itemprop="headline">Schema headline</h3>
				<a href="/2024/schema-story">Read more</a>
				<time datetime="2024-07-08T09:00:00Z">July 8</time>
			</div>
			<article>
				<a href="/2024/outer"><img src="x.jpg"></a>
				<h2><a href="/2024/outer">Outer story</a></h2>
				<div role="article"><a href="/2024/inner">Inner</a></div>
			</article>
			<div role="article"><p>No link here</p></div>
		</body></html>`,
	}}

	strategy := NewHeuristicStrategy(getter)

	candidates, err := strategy.Discover(context.Background(), Target{
		HomepageURL: home,
		ListingURLs: []string{"https://news.example.com/latest"},
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "https://news.example.com/2024/schema-story", candidates[0].URL)
	assert.Equal(t, "Schema headline", candidates[0].Title)
	require.NotNil(t, candidates[0].PublishedAt)
	assert.Equal(t, 8, candidates[0].PublishedAt.Day())

	assert.Equal(t, "https://news.example.com/2024/outer", candidates[1].URL)
	assert.Equal(t, "Outer story", candidates[1].Title)
}

func TestLinkStrategy_CustomSelectorFirst(t *testing.T) {
	getter := &mockGetter{pages: map[string]string{
		home: `<html><body>
			<div class="rail"><a href="/2024/rail-story">Rail</a></div>
			<h2><a href="/2024/headline">Headline</a></h2>
		</body></html>`,
	}}

	strategy := NewLinkStrategy(getter)

	candidates, err := strategy.Discover(context.Background(), Target{
		HomepageURL:   home,
		LinkSelectors: []string{".rail a[href]"},
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "https://news.example.com/2024/rail-story", candidates[0].URL)
}

func TestLooksLikeArticle(t *testing.T) {
	tests := []struct {
		link     string
		expected bool
	}{
		{"https://news.example.com/2024/story", true},
		{"https://news.example.com/", false},
		{"https://news.example.com/tag/climate", false},
		{"https://news.example.com/author/jane", false},
		{"https://news.example.com/files/report.pdf", false},
		{"https://news.example.com/latest", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, looksLikeArticle(tt.link, "https://news.example.com/latest"), tt.link)
	}
}
