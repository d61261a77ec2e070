package database

import (
	"context"
	"fmt"
	"time"
)

// HistoryRepo tracks which URLs a source has already seen and which URLs
// operators discarded per topic.
type HistoryRepo struct {
	db *DB
}

var _ HistoryRepository = (*HistoryRepo)(nil)

func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// RecordURL upserts a history row. The first-seen time never moves.
func (r *HistoryRepo) RecordURL(ctx context.Context, sourceID, normalizedURL, status string) error {
	now := ts(time.Now())
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO url_history (normalized_url, source_id, status, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (normalized_url, source_id) DO UPDATE SET
			status = excluded.status,
			last_seen_at = excluded.last_seen_at
	`, normalizedURL, sourceID, status, now, now)

	if err != nil {
		return fmt.Errorf("failed to record url history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) SeenSince(ctx context.Context, sourceID, normalizedURL string, since time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM url_history
		WHERE source_id = ? AND normalized_url = ? AND last_seen_at >= ?
	`, sourceID, normalizedURL, ts(since)).Scan(&count)

	if err != nil {
		return false, fmt.Errorf("failed to check url history: %w", err)
	}
	return count > 0, nil
}

func (r *HistoryRepo) Discard(ctx context.Context, topicID, normalizedURL, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO discards (normalized_url, topic_id, reason, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (normalized_url, topic_id) DO UPDATE SET reason = excluded.reason
	`, normalizedURL, topicID, reason, ts(time.Now()))

	if err != nil {
		return fmt.Errorf("failed to discard url: %w", err)
	}
	return nil
}

// DiscardedTopics returns the ids of the topics that discarded the URL.
func (r *HistoryRepo) DiscardedTopics(ctx context.Context, normalizedURL string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT topic_id FROM discards WHERE normalized_url = ?`, normalizedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get discards: %w", err)
	}
	defer rows.Close()

	topics := make(map[string]bool)
	for rows.Next() {
		var topicID string
		if err := rows.Scan(&topicID); err != nil {
			return nil, fmt.Errorf("failed to scan discard row: %w", err)
		}
		topics[topicID] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating discard rows: %w", err)
	}

	return topics, nil
}
