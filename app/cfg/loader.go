package cfg

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/harvest.db" description:"Path to the SQLite database file"`

	// Application configuration
	SourcesDir        string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl           string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://harvest.example.com)"`
	WorkerCount       int    `long:"worker-count" env:"WORKER_COUNT" default:"4" description:"Number of background workers for source runs"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"60" description:"Scheduler interval in seconds"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Fetching
	UserAgents           string `long:"user-agents" env:"USER_AGENTS" description:"Pipe-separated pool of user agent strings to rotate through"`
	FetchTimeout         int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15" description:"Per-request timeout in seconds"`
	InterRequestDelay    int    `long:"inter-request-delay" env:"INTER_REQUEST_DELAY" default:"2000" description:"Minimum delay between requests to one source in milliseconds"`
	MaxConcurrentFetches int    `long:"max-concurrent-fetches" env:"MAX_CONCURRENT_FETCHES" default:"3" description:"Maximum in-flight article fetches across all sources"`
	MaxBodyBytes         int64  `long:"max-body-bytes" env:"MAX_BODY_BYTES" default:"5242880" description:"Maximum response body size in bytes"`

	// Discovery and quality gates
	MaxCandidates             int     `long:"max-candidates" env:"MAX_CANDIDATES" default:"25" description:"Default cap of candidate URLs per source run"`
	SitemapWindowDays         int     `long:"sitemap-window-days" env:"SITEMAP_WINDOW_DAYS" default:"30" description:"Sitemap lastmod recency window in days"`
	MinWordCountHardFail      int     `long:"min-words" env:"MIN_WORD_COUNT" default:"50" description:"Articles below this word count fail the quality gate"`
	MinWordCountQualityTarget int     `long:"target-words" env:"TARGET_WORD_COUNT" default:"200" description:"Word count articles should reach for full quality score"`
	MaxWordCount              int     `long:"max-words" env:"MAX_WORD_COUNT" default:"10000" description:"Articles above this word count fail the quality gate"`
	DuplicateThreshold        float64 `long:"duplicate-threshold" env:"DUPLICATE_THRESHOLD" default:"0.8" description:"Text similarity at which two articles are flagged for merge review"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := fromRaw(raw)

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func fromRaw(raw rawCfg) *Cfg {
	return &Cfg{
		DBPath:                    raw.DBPath,
		SourcesDir:                raw.SourcesDir,
		Port:                      raw.Port,
		BaseUrl:                   raw.BaseUrl,
		WorkerCount:               raw.WorkerCount,
		SchedulerInterval:         raw.SchedulerInterval,
		APIAccessKey:              raw.APIAccessKey,
		UserAgents:                parseUserAgents(raw.UserAgents),
		FetchTimeout:              time.Duration(raw.FetchTimeout) * time.Second,
		InterRequestDelay:         time.Duration(raw.InterRequestDelay) * time.Millisecond,
		MaxConcurrentFetches:      raw.MaxConcurrentFetches,
		MaxBodyBytes:              raw.MaxBodyBytes,
		MaxCandidates:             raw.MaxCandidates,
		SitemapWindowDays:         raw.SitemapWindowDays,
		MinWordCountHardFail:      raw.MinWordCountHardFail,
		MinWordCountQualityTarget: raw.MinWordCountQualityTarget,
		MaxWordCount:              raw.MaxWordCount,
		DuplicateThreshold:        raw.DuplicateThreshold,
		Timezone:                  raw.Timezone,
		Debug:                     raw.Debug,
		Version:                   GetVersion(),
	}
}

func parseUserAgents(value string) []string {
	var agents []string
	for _, agent := range strings.Split(value, "|") {
		if agent = strings.TrimSpace(agent); agent != "" {
			agents = append(agents, agent)
		}
	}
	if len(agents) == 0 {
		return append([]string(nil), defaultUserAgents...)
	}
	return agents
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
