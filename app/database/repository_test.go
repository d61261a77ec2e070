package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/topic-harvest/app/health"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	state, err := RunMigrations(db)
	require.NoError(t, err)
	require.Equal(t, SchemaState{Version: 1}, state)

	return db
}

func seedSource(t *testing.T, db *DB, name string, topics ...string) string {
	t.Helper()

	id, err := NewSourceRepo(db).UpsertSource(context.Background(), SourceSpec{
		Name:                 name,
		Domain:               name + ".example.com",
		HomepageURL:          "https://" + name + ".example.com/",
		Method:               "auto",
		IsActive:             true,
		ScrapeFrequencyHours: 6,
		Topics:               topics,
	})
	require.NoError(t, err)
	return id
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	db := newTestDB(t)

	state, err := RunMigrations(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaState{Version: 1}, state)
}

func TestSourceUpsertKeepsIdentityAndHealth(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSourceRepo(db)

	id := seedSource(t, db, "daily", "climate", "energy")

	now := time.Now().UTC().Truncate(time.Second)
	state := health.State{IsActive: true, ConsecutiveFailures: 2, LastFailureReason: "timeout", LastFailureAt: &now, SuccessRate: 0.64}
	require.NoError(t, repo.UpdateSourceHealth(ctx, id, state, nil))

	again := seedSource(t, db, "daily", "climate")
	assert.Equal(t, id, again)

	source, err := repo.GetSource(ctx, "daily")
	require.NoError(t, err)
	require.NotNil(t, source)
	assert.Equal(t, 2, source.ConsecutiveFailures)
	assert.Equal(t, "timeout", source.LastFailureReason)
	assert.InDelta(t, 0.64, source.SuccessRate, 1e-9)
	require.NotNil(t, source.LastFailureAt)
	assert.True(t, source.LastFailureAt.Equal(now))
	assert.Equal(t, health.LevelFailing, health.Evaluate(source.HealthState(), now).Level)

	topics, err := NewTopicRepo(db).GetTopicsForSource(ctx, id)
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "climate", topics[0].Name)
	assert.True(t, topics[0].IsActive)

	missing, err := repo.GetSource(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetSourcesDueForRun(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSourceRepo(db)

	now := time.Now()
	dueID := seedSource(t, db, "due")
	laterID := seedSource(t, db, "later")
	seedSource(t, db, "fresh")

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	require.NoError(t, repo.UpdateSourceHealth(ctx, dueID, health.State{IsActive: true, SuccessRate: 1}, &past))
	require.NoError(t, repo.UpdateSourceHealth(ctx, laterID, health.State{IsActive: true, SuccessRate: 1}, &future))

	due, err := repo.GetSourcesDueForRun(ctx, now)
	require.NoError(t, err)

	names := map[string]bool{}
	for _, s := range due {
		names[s.Name] = true
	}
	assert.True(t, names["due"])
	assert.True(t, names["fresh"], "never scheduled sources are due")
	assert.False(t, names["later"])
}

func TestDeleteSourceBlockedByActiveTopic(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSourceRepo(db)
	topics := NewTopicRepo(db)

	seedSource(t, db, "linked", "climate")

	err := repo.DeleteSource(ctx, "linked")
	assert.True(t, errors.Is(err, ErrSourceInUse))

	require.NoError(t, topics.SetTopicActive(ctx, "climate", false))
	require.NoError(t, repo.DeleteSource(ctx, "linked"))

	source, err := repo.GetSource(ctx, "linked")
	require.NoError(t, err)
	assert.Nil(t, source)

	assert.True(t, errors.Is(repo.DeleteSource(ctx, "linked"), ErrNotFound))
	assert.True(t, errors.Is(topics.SetTopicActive(ctx, "unknown", false), ErrNotFound))
}

func TestArticleSaveListAndQueue(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	articles := NewArticleRepo(db)

	sourceID := seedSource(t, db, "daily", "climate")
	topic, err := NewTopicRepo(db).GetTopic(ctx, "climate")
	require.NoError(t, err)
	require.NotNil(t, topic)

	published := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	article := &Article{
		SourceID:         sourceID,
		TopicID:          topic.ID,
		URL:              "https://daily.example.com/a?utm_source=x",
		NormalizedURL:    "https://daily.example.com/a",
		Title:            "Heat records broken again",
		Body:             "body text",
		PublishedAt:      &published,
		WordCount:        2,
		ParagraphCount:   1,
		ExtractionMethod: "selector:article",
		Confidence:       0.8,
		QualityScore:     0.7,
		Status:           StatusApproved,
		Checksum:         "abc",
		Reasons:          []string{"below target"},
	}

	id, err := articles.SaveArticle(ctx, article)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = articles.SaveArticle(ctx, &Article{
		SourceID: sourceID, TopicID: topic.ID, URL: article.URL, NormalizedURL: article.NormalizedURL, Status: StatusApproved,
	})
	assert.True(t, errors.Is(err, ErrDuplicateConflict))

	second := &Article{SourceID: sourceID, TopicID: topic.ID, URL: "https://daily.example.com/b", NormalizedURL: "https://daily.example.com/b", Status: StatusNeedsReview, Degraded: true}
	secondID, err := articles.SaveArticle(ctx, second)
	require.NoError(t, err)

	listed, err := articles.GetArticles(ctx, ArticleFilter{TopicName: "climate", Status: StatusApproved})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, id, listed[0].ID)
	assert.Equal(t, []string{"below target"}, listed[0].Reasons)
	require.NotNil(t, listed[0].PublishedAt)
	assert.True(t, listed[0].PublishedAt.Equal(published))

	all, err := articles.GetArticles(ctx, ArticleFilter{SourceName: "daily"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	corpus, err := articles.GetRecentCorpus(ctx, topic.ID, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, corpus, 2)

	require.NoError(t, articles.RecordDuplicate(ctx, secondID, id, "similarity", 0.91))

	require.NoError(t, articles.Enqueue(ctx, id, topic.ID))
	require.NoError(t, articles.Enqueue(ctx, id, topic.ID))

	queued, err := articles.GetQueuedArticles(ctx, "climate", 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "Heat records broken again", queued[0].Title)
	assert.Equal(t, "daily", queued[0].SourceName)
	assert.Equal(t, "climate", queued[0].TopicName)
}

func TestHistoryAndDiscards(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	history := NewHistoryRepo(db)

	sourceID := seedSource(t, db, "daily", "climate")
	topic, err := NewTopicRepo(db).GetTopic(ctx, "climate")
	require.NoError(t, err)

	url := "https://daily.example.com/a"
	seen, err := history.SeenSince(ctx, sourceID, url, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, history.RecordURL(ctx, sourceID, url, HistorySeen))
	require.NoError(t, history.RecordURL(ctx, sourceID, url, HistoryStored))

	seen, err = history.SeenSince(ctx, sourceID, url, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = history.SeenSince(ctx, sourceID, url, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, history.Discard(ctx, topic.ID, url, "off topic"))
	discarded, err := history.DiscardedTopics(ctx, url)
	require.NoError(t, err)
	assert.True(t, discarded[topic.ID])

	none, err := history.DiscardedTopics(ctx, "https://daily.example.com/other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestErrorLog(t *testing.T) {
	ctx := context.Background()
	repo := NewErrorLogRepo(newTestDB(t))

	require.NoError(t, repo.LogError(ctx, "fetch_failed", map[string]any{"url": "https://x.example.com", "kind": "timeout"}, SeverityMedium))
	require.NoError(t, repo.LogError(ctx, "source_failing", nil, SeverityHigh))

	entries, err := repo.GetRecentErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "source_failing", entries[0].TicketType)
	assert.Equal(t, "timeout", entries[1].Details["kind"])
}
