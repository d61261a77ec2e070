package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/lysyi3m/topic-harvest/app/discovery"
	"github.com/lysyi3m/topic-harvest/app/fetcher"
	"github.com/lysyi3m/topic-harvest/app/health"
	"github.com/lysyi3m/topic-harvest/app/quality"
)

// ErrRunInProgress is returned when a source is triggered while a run for
// it is still going.
var ErrRunInProgress = errors.New("source run already in progress")

// MethodRSSSummary marks an article whose body is the feed summary because
// the page itself could not be used.
const MethodRSSSummary = "rss_summary"

type Discoverer interface {
	Run(ctx context.Context, target discovery.Target, filter discovery.Filter) ([]discovery.Candidate, error)
}

var _ Discoverer = (*discovery.Chain)(nil)

type PageFetcher interface {
	Run(ctx context.Context, gate *fetcher.Gate, url string) ([]byte, error)
}

var _ PageFetcher = (*fetcher.Fetcher)(nil)

// ErrorSink receives per-candidate and per-source failures.
type ErrorSink interface {
	LogError(ctx context.Context, ticketType string, details map[string]any, severity string) error
}

type Config struct {
	InterRequestDelay  time.Duration
	Quality            quality.Config
	DuplicateThreshold float64
	CorpusWindow       time.Duration
	CorpusLimit        int
	MinStoredWords     int
	DefaultFrequency   time.Duration
	// MaxCandidates caps a run when the source sets no limit of its own.
	MaxCandidates int
}

func DefaultConfig() Config {
	return Config{
		InterRequestDelay:  2 * time.Second,
		Quality:            quality.DefaultConfig(),
		DuplicateThreshold: 0.8,
		CorpusWindow:       30 * 24 * time.Hour,
		CorpusLimit:        500,
		MinStoredWords:     10,
		DefaultFrequency:   6 * time.Hour,
		MaxCandidates:      discovery.DefaultMaxCandidates,
	}
}

// Report summarizes one source run.
type Report struct {
	Source         string          `json:"source"`
	Skipped        string          `json:"skipped,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
	DiscoveryError string          `json:"discovery_error,omitempty"`
	Candidates     int             `json:"candidates"`
	Fetched        int             `json:"fetched"`
	FetchFailures  int             `json:"fetch_failures"`
	Approved       int             `json:"approved"`
	NeedsReview    int             `json:"needs_review"`
	Duplicates     int             `json:"duplicates"`
	Filtered       int             `json:"filtered"`
	Rejected       int             `json:"rejected"`
	Conflicts      int             `json:"conflicts"`
	Cancelled      bool            `json:"cancelled,omitempty"`
	Health         health.Snapshot `json:"health"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	Duration       time.Duration   `json:"duration"`
}
