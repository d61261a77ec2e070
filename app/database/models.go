package database

import (
	"time"

	"github.com/lysyi3m/topic-harvest/app/health"
)

// Article statuses
const (
	StatusApproved        = "approved"
	StatusNeedsReview     = "needs_review"
	StatusDuplicateReview = "duplicate_review"
	StatusFiltered        = "filtered"
)

// URL history statuses
const (
	HistorySeen     = "seen"
	HistoryFetched  = "fetched"
	HistoryFailed   = "failed"
	HistoryRejected = "rejected"
	HistoryStored   = "stored"
)

// Error log severities
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

type Source struct {
	ID                   string
	Name                 string // Configuration source identifier derived from filename
	Domain               string
	FeedURL              string
	HomepageURL          string
	Method               string
	IsActive             bool
	IsBlacklisted        bool
	IsWhitelisted        bool
	ConsecutiveFailures  int
	LastFailureReason    string
	LastFailureAt        *time.Time
	LastSuccessAt        *time.Time
	LastScrapedAt        *time.Time
	SuccessRate          float64
	AvgResponseMs        int64
	ScrapeFrequencyHours int
	NextRunAt            *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (s Source) HealthState() health.State {
	return health.State{
		IsActive:            s.IsActive && !s.IsBlacklisted,
		ConsecutiveFailures: s.ConsecutiveFailures,
		LastFailureAt:       s.LastFailureAt,
		LastFailureReason:   s.LastFailureReason,
		LastSuccessAt:       s.LastSuccessAt,
		LastScrapedAt:       s.LastScrapedAt,
		SuccessRate:         s.SuccessRate,
		AvgResponseTime:     time.Duration(s.AvgResponseMs) * time.Millisecond,
	}
}

// SourceSpec is the operator-controlled part of a source, synced from its
// YAML file.
type SourceSpec struct {
	Name                 string
	Domain               string
	FeedURL              string
	HomepageURL          string
	Method               string
	IsActive             bool
	IsBlacklisted        bool
	IsWhitelisted        bool
	ScrapeFrequencyHours int
	Topics               []string
}

type Topic struct {
	ID        string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

type Article struct {
	ID               string
	SourceID         string
	TopicID          string
	URL              string
	NormalizedURL    string
	Title            string
	Body             string
	Author           string
	PublishedAt      *time.Time
	WordCount        int
	ParagraphCount   int
	ExtractionMethod string
	Confidence       float64
	QualityScore     float64
	Status           string
	Degraded         bool
	Checksum         string
	Reasons          []string
	CreatedAt        time.Time
}

// CorpusEntry is the slice of an article the duplicate detector needs.
type CorpusEntry struct {
	ID            string
	NormalizedURL string
	Checksum      string
	Body          string
}

type ArticleFilter struct {
	TopicName  string
	SourceName string
	Status     string
	Limit      int
	Offset     int
}

type QueuedArticle struct {
	Article
	SourceName string
	TopicName  string
	EnqueuedAt time.Time
}

type ErrorEntry struct {
	ID         int64          `json:"id"`
	TicketType string         `json:"ticket_type"`
	Severity   string         `json:"severity"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}
