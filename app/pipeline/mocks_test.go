package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lysyi3m/topic-harvest/app/database"
	"github.com/lysyi3m/topic-harvest/app/discovery"
	"github.com/lysyi3m/topic-harvest/app/fetcher"
	"github.com/lysyi3m/topic-harvest/app/health"
)

type MockSourceRepository struct {
	sources map[string]*database.Source

	healthUpdates []health.State
	nextRunAt     []*time.Time
}

var _ database.SourceRepository = (*MockSourceRepository)(nil)

func (m *MockSourceRepository) GetSource(ctx context.Context, name string) (*database.Source, error) {
	return m.sources[name], nil
}

func (m *MockSourceRepository) GetSources(ctx context.Context) ([]database.Source, error) {
	var sources []database.Source
	for _, s := range m.sources {
		sources = append(sources, *s)
	}
	return sources, nil
}

func (m *MockSourceRepository) GetSourcesDueForRun(ctx context.Context, now time.Time) ([]database.Source, error) {
	return m.GetSources(ctx)
}

func (m *MockSourceRepository) UpsertSource(ctx context.Context, spec database.SourceSpec) (string, error) {
	return "source-id", nil
}

func (m *MockSourceRepository) UpdateSourceHealth(ctx context.Context, sourceID string, state health.State, nextRunAt *time.Time) error {
	m.healthUpdates = append(m.healthUpdates, state)
	m.nextRunAt = append(m.nextRunAt, nextRunAt)
	return nil
}

func (m *MockSourceRepository) DeleteSource(ctx context.Context, name string) error {
	return nil
}

type MockTopicRepository struct {
	topics []database.Topic
}

var _ database.TopicRepository = (*MockTopicRepository)(nil)

func (m *MockTopicRepository) GetTopic(ctx context.Context, name string) (*database.Topic, error) {
	for _, topic := range m.topics {
		if topic.Name == name {
			return &topic, nil
		}
	}
	return nil, nil
}

func (m *MockTopicRepository) GetTopicsForSource(ctx context.Context, sourceID string) ([]database.Topic, error) {
	return append([]database.Topic{}, m.topics...), nil
}

func (m *MockTopicRepository) SetTopicActive(ctx context.Context, name string, active bool) error {
	return nil
}

type duplicateRecord struct {
	ArticleID   string
	DuplicateID string
	Method      string
}

// MockArticleRepository keeps articles in memory and rejects a second save
// of the same normalized URL for a topic, like the real unique index.
type MockArticleRepository struct {
	articles   []database.Article
	corpus     map[string][]database.CorpusEntry
	duplicates []duplicateRecord
	queue      map[string][]string
}

var _ database.ArticleRepository = (*MockArticleRepository)(nil)

func (m *MockArticleRepository) SaveArticle(ctx context.Context, article *database.Article) (string, error) {
	for _, existing := range m.articles {
		if existing.TopicID == article.TopicID && existing.NormalizedURL == article.NormalizedURL {
			return "", database.ErrDuplicateConflict
		}
	}
	article.ID = fmt.Sprintf("article-%d", len(m.articles)+1)
	m.articles = append(m.articles, *article)
	return article.ID, nil
}

func (m *MockArticleRepository) GetArticles(ctx context.Context, filter database.ArticleFilter) ([]database.Article, error) {
	return m.articles, nil
}

func (m *MockArticleRepository) GetRecentCorpus(ctx context.Context, topicID string, since time.Time, limit int) ([]database.CorpusEntry, error) {
	return m.corpus[topicID], nil
}

func (m *MockArticleRepository) RecordDuplicate(ctx context.Context, articleID, duplicateID, method string, score float64) error {
	m.duplicates = append(m.duplicates, duplicateRecord{ArticleID: articleID, DuplicateID: duplicateID, Method: method})
	return nil
}

func (m *MockArticleRepository) Enqueue(ctx context.Context, articleID, topicID string) error {
	if m.queue == nil {
		m.queue = make(map[string][]string)
	}
	m.queue[topicID] = append(m.queue[topicID], articleID)
	return nil
}

func (m *MockArticleRepository) GetQueuedArticles(ctx context.Context, topicName string, limit int) ([]database.QueuedArticle, error) {
	return nil, nil
}

func (m *MockArticleRepository) byStatus(status string) []database.Article {
	var found []database.Article
	for _, article := range m.articles {
		if article.Status == status {
			found = append(found, article)
		}
	}
	return found
}

type MockHistoryRepository struct {
	recorded  map[string][]string
	seen      map[string]bool
	discarded map[string]map[string]bool
}

var _ database.HistoryRepository = (*MockHistoryRepository)(nil)

func (m *MockHistoryRepository) RecordURL(ctx context.Context, sourceID, normalizedURL, status string) error {
	if m.recorded == nil {
		m.recorded = make(map[string][]string)
	}
	m.recorded[normalizedURL] = append(m.recorded[normalizedURL], status)
	return nil
}

func (m *MockHistoryRepository) SeenSince(ctx context.Context, sourceID, normalizedURL string, since time.Time) (bool, error) {
	return m.seen[normalizedURL], nil
}

func (m *MockHistoryRepository) Discard(ctx context.Context, topicID, normalizedURL, reason string) error {
	return nil
}

func (m *MockHistoryRepository) DiscardedTopics(ctx context.Context, normalizedURL string) (map[string]bool, error) {
	return m.discarded[normalizedURL], nil
}

type MockErrorSink struct {
	tickets []string
}

func (m *MockErrorSink) LogError(ctx context.Context, ticketType string, details map[string]any, severity string) error {
	m.tickets = append(m.tickets, ticketType)
	return nil
}

// MockDiscoverer applies the run's filter to a fixed candidate list.
type MockDiscoverer struct {
	candidates []discovery.Candidate
	err        error
	entered    chan struct{}
	block      chan struct{}

	target discovery.Target
}

func (m *MockDiscoverer) Run(ctx context.Context, target discovery.Target, filter discovery.Filter) ([]discovery.Candidate, error) {
	m.target = target
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.block != nil {
		<-m.block
	}

	var kept []discovery.Candidate
	for _, candidate := range m.candidates {
		if filter == nil || filter(ctx, candidate) {
			kept = append(kept, candidate)
		}
	}
	return kept, m.err
}

type MockPageFetcher struct {
	mu    sync.Mutex
	pages map[string][]byte
	calls []string
}

func (m *MockPageFetcher) Run(ctx context.Context, gate *fetcher.Gate, url string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, url)
	if body, ok := m.pages[url]; ok {
		return body, nil
	}
	return nil, &fetcher.Failure{Kind: fetcher.KindHTTP4xx, URL: url, Status: 404, Attempts: 1}
}
