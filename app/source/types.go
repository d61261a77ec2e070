package source

import (
	"github.com/lysyi3m/topic-harvest/app/extract"
)

// Scraping methods. MethodAuto runs the discovery chain in its default
// order; any other value moves that strategy to the front.
const (
	MethodAuto      = "auto"
	MethodRSS       = "rss"
	MethodHTML      = "html"
	MethodSitemap   = "sitemap"
	MethodHeuristic = "heuristic"
)

type Config struct {
	Name        string   // Derived from filename (without .yml extension)
	Domain      string   `yaml:"domain"`
	FeedURL     string   `yaml:"feed_url"`
	HomepageURL string   `yaml:"homepage_url"`
	ListingURLs []string `yaml:"listing_urls"`
	Method      string   `yaml:"method"`
	Topics      []string `yaml:"topics"`

	Settings  ConfigSettings    `yaml:"settings"`
	Selectors ConfigSelectors   `yaml:"selectors"`
	Filters   []ConfigFilter    `yaml:"filters"`
	Blacklist []string          `yaml:"blacklist_phrases"`
	Headers   map[string]string `yaml:"headers"`
}

type ConfigSettings struct {
	Enabled              bool `yaml:"enabled"`
	Whitelisted          bool `yaml:"whitelisted"`
	Blacklisted          bool `yaml:"blacklisted"`
	Snippet              bool `yaml:"snippet"`
	ScrapeFrequencyHours int  `yaml:"scrape_frequency_hours"`
	MaxCandidates        int  `yaml:"max_candidates"`
	TrustedMaxAgeDays    int  `yaml:"trusted_max_age_days"`
	RecheckWindowHours   int  `yaml:"recheck_window_hours"`
}

type ConfigSelectors struct {
	extract.Selectors `yaml:",inline"`
	Links             []string `yaml:"links"`
	Family            string   `yaml:"family"`
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// Subject is the text a filter looks at.
type Subject struct {
	Title   string
	Summary string
	Content string
	Author  string
	Link    string
}

// Entrypoint is the URL discovery starts from.
func (c *Config) Entrypoint() string {
	if c.HomepageURL != "" {
		return c.HomepageURL
	}
	return "https://" + c.Domain + "/"
}
