package database

import (
	"context"
	"errors"
	"time"

	"github.com/lysyi3m/topic-harvest/app/health"
)

var (
	// ErrDuplicateConflict is returned when an article with the same
	// normalized URL is already stored for the topic.
	ErrDuplicateConflict = errors.New("article already stored for topic")
	// ErrSourceInUse blocks deleting a source linked to an active topic.
	ErrSourceInUse = errors.New("source is linked to an active topic")
	ErrNotFound    = errors.New("not found")
)

type SourceRepository interface {
	GetSource(ctx context.Context, name string) (*Source, error)
	GetSources(ctx context.Context) ([]Source, error)
	GetSourcesDueForRun(ctx context.Context, now time.Time) ([]Source, error)

	UpsertSource(ctx context.Context, spec SourceSpec) (string, error)
	UpdateSourceHealth(ctx context.Context, sourceID string, state health.State, nextRunAt *time.Time) error
	DeleteSource(ctx context.Context, name string) error
}

type TopicRepository interface {
	GetTopic(ctx context.Context, name string) (*Topic, error)
	GetTopicsForSource(ctx context.Context, sourceID string) ([]Topic, error)
	SetTopicActive(ctx context.Context, name string, active bool) error
}

type ArticleRepository interface {
	SaveArticle(ctx context.Context, article *Article) (string, error)
	GetArticles(ctx context.Context, filter ArticleFilter) ([]Article, error)
	GetRecentCorpus(ctx context.Context, topicID string, since time.Time, limit int) ([]CorpusEntry, error)
	RecordDuplicate(ctx context.Context, articleID, duplicateID, method string, score float64) error

	Enqueue(ctx context.Context, articleID, topicID string) error
	GetQueuedArticles(ctx context.Context, topicName string, limit int) ([]QueuedArticle, error)
}

type HistoryRepository interface {
	RecordURL(ctx context.Context, sourceID, normalizedURL, status string) error
	SeenSince(ctx context.Context, sourceID, normalizedURL string, since time.Time) (bool, error)

	Discard(ctx context.Context, topicID, normalizedURL, reason string) error
	DiscardedTopics(ctx context.Context, normalizedURL string) (map[string]bool, error)
}

type ErrorLogRepository interface {
	LogError(ctx context.Context, ticketType string, details map[string]any, severity string) error
	GetRecentErrors(ctx context.Context, limit int) ([]ErrorEntry, error)
}
