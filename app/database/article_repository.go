package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// ArticleRepo handles stored articles, duplicate pairs and the generation
// queue.
type ArticleRepo struct {
	db *DB
}

var _ ArticleRepository = (*ArticleRepo)(nil)

func NewArticleRepo(db *DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

var articleColumns = []string{
	"a.id", "a.source_id", "a.topic_id", "a.url", "a.normalized_url", "a.title", "a.body", "a.author",
	"a.published_at", "a.word_count", "a.paragraph_count", "a.extraction_method", "a.confidence",
	"a.quality_score", "a.status", "a.degraded", "a.checksum", "a.reasons", "a.created_at",
}

// SaveArticle stores article and returns its id. A second article with the
// same normalized URL for the same topic yields ErrDuplicateConflict.
func (r *ArticleRepo) SaveArticle(ctx context.Context, article *Article) (string, error) {
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now()
	}

	reasons, err := json.Marshal(nonNil(article.Reasons))
	if err != nil {
		return "", fmt.Errorf("failed to encode reasons: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO articles (
			id, source_id, topic_id, url, normalized_url, title, body, author,
			published_at, word_count, paragraph_count, extraction_method, confidence,
			quality_score, status, degraded, checksum, reasons, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (topic_id, normalized_url) DO NOTHING
	`, article.ID, article.SourceID, article.TopicID, article.URL, article.NormalizedURL,
		article.Title, article.Body, article.Author, tsPtr(article.PublishedAt), article.WordCount,
		article.ParagraphCount, article.ExtractionMethod, article.Confidence, article.QualityScore,
		article.Status, article.Degraded, article.Checksum, string(reasons), ts(article.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("failed to save article: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return "", ErrDuplicateConflict
	}

	return article.ID, nil
}

func (r *ArticleRepo) GetArticles(ctx context.Context, filter ArticleFilter) ([]Article, error) {
	query := sq.Select(articleColumns...).
		From("articles a").
		Join("topics t ON t.id = a.topic_id").
		Join("sources s ON s.id = a.source_id").
		OrderBy("a.created_at DESC", "a.id")

	if filter.TopicName != "" {
		query = query.Where(sq.Eq{"t.name": filter.TopicName})
	}
	if filter.SourceName != "" {
		query = query.Where(sq.Eq{"s.name": filter.SourceName})
	}
	if filter.Status != "" {
		query = query.Where(sq.Eq{"a.status": filter.Status})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query = query.Limit(uint64(limit))
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build article query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		articles = append(articles, *article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

// GetRecentCorpus returns the articles of a topic stored since the given
// time, newest first. Filtered articles are not part of the corpus.
func (r *ArticleRepo) GetRecentCorpus(ctx context.Context, topicID string, since time.Time, limit int) ([]CorpusEntry, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, normalized_url, checksum, body
		FROM articles
		WHERE topic_id = ? AND created_at >= ? AND status != ?
		ORDER BY created_at DESC
		LIMIT ?
	`, topicID, ts(since), StatusFiltered, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get corpus: %w", err)
	}
	defer rows.Close()

	var corpus []CorpusEntry
	for rows.Next() {
		var entry CorpusEntry
		if err := rows.Scan(&entry.ID, &entry.NormalizedURL, &entry.Checksum, &entry.Body); err != nil {
			return nil, fmt.Errorf("failed to scan corpus row: %w", err)
		}
		corpus = append(corpus, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating corpus rows: %w", err)
	}

	return corpus, nil
}

func (r *ArticleRepo) RecordDuplicate(ctx context.Context, articleID, duplicateID, method string, score float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO duplicates (article_id, duplicate_id, method, score, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (article_id, duplicate_id) DO UPDATE SET
			method = excluded.method,
			score = excluded.score
	`, articleID, duplicateID, method, score, ts(time.Now()))

	if err != nil {
		return fmt.Errorf("failed to record duplicate: %w", err)
	}
	return nil
}

func (r *ArticleRepo) Enqueue(ctx context.Context, articleID, topicID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO generation_queue (article_id, topic_id, enqueued_at)
		VALUES (?, ?, ?)
		ON CONFLICT (article_id) DO NOTHING
	`, articleID, topicID, ts(time.Now()))

	if err != nil {
		return fmt.Errorf("failed to enqueue article: %w", err)
	}
	return nil
}

// GetQueuedArticles returns unconsumed queue entries of a topic, newest
// first.
func (r *ArticleRepo) GetQueuedArticles(ctx context.Context, topicName string, limit int) ([]QueuedArticle, error) {
	if limit <= 0 {
		limit = 50
	}

	columns := append(append([]string{}, articleColumns...), "s.name", "t.name", "q.enqueued_at")
	sqlQuery, args, err := sq.Select(columns...).
		From("generation_queue q").
		Join("articles a ON a.id = q.article_id").
		Join("topics t ON t.id = q.topic_id").
		Join("sources s ON s.id = a.source_id").
		Where(sq.Eq{"t.name": topicName}).
		Where("q.consumed_at IS NULL").
		OrderBy("q.enqueued_at DESC", "q.id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build queue query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get queued articles: %w", err)
	}
	defer rows.Close()

	var queued []QueuedArticle
	for rows.Next() {
		var entry QueuedArticle
		var reasons string
		a := &entry.Article
		err := rows.Scan(
			&a.ID, &a.SourceID, &a.TopicID, &a.URL, &a.NormalizedURL, &a.Title, &a.Body, &a.Author,
			&a.PublishedAt, &a.WordCount, &a.ParagraphCount, &a.ExtractionMethod, &a.Confidence,
			&a.QualityScore, &a.Status, &a.Degraded, &a.Checksum, &reasons, &a.CreatedAt,
			&entry.SourceName, &entry.TopicName, &entry.EnqueuedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		a.Reasons = decodeReasons(reasons)
		queued = append(queued, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue rows: %w", err)
	}

	return queued, nil
}

func scanArticle(row rowScanner) (*Article, error) {
	var a Article
	var reasons string
	err := row.Scan(
		&a.ID, &a.SourceID, &a.TopicID, &a.URL, &a.NormalizedURL, &a.Title, &a.Body, &a.Author,
		&a.PublishedAt, &a.WordCount, &a.ParagraphCount, &a.ExtractionMethod, &a.Confidence,
		&a.QualityScore, &a.Status, &a.Degraded, &a.Checksum, &reasons, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Reasons = decodeReasons(reasons)
	return &a, nil
}

func decodeReasons(raw string) []string {
	var reasons []string
	if err := json.Unmarshal([]byte(raw), &reasons); err != nil {
		return nil
	}
	return reasons
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
