package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TopicRepo struct {
	db *DB
}

var _ TopicRepository = (*TopicRepo)(nil)

func NewTopicRepo(db *DB) *TopicRepo {
	return &TopicRepo{db: db}
}

func (r *TopicRepo) GetTopic(ctx context.Context, name string) (*Topic, error) {
	var topic Topic
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, is_active, created_at FROM topics WHERE name = ?
	`, name).Scan(&topic.ID, &topic.Name, &topic.IsActive, &topic.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}
	return &topic, nil
}

func (r *TopicRepo) GetTopicsForSource(ctx context.Context, sourceID string) ([]Topic, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.is_active, t.created_at
		FROM topics t
		JOIN source_topics st ON st.topic_id = t.id
		WHERE st.source_id = ?
		ORDER BY t.name
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get topics for source: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var topic Topic
		if err := rows.Scan(&topic.ID, &topic.Name, &topic.IsActive, &topic.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan topic row: %w", err)
		}
		topics = append(topics, topic)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating topic rows: %w", err)
	}

	return topics, nil
}

func (r *TopicRepo) SetTopicActive(ctx context.Context, name string, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE topics SET is_active = ? WHERE name = ?`, active, name)
	if err != nil {
		return fmt.Errorf("failed to update topic: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func ensureTopic(ctx context.Context, tx *sql.Tx, name string, now time.Time) (string, error) {
	var topicID string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO topics (id, name, is_active, created_at) VALUES (?, ?, 1, ?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id
	`, uuid.NewString(), name, now).Scan(&topicID)
	if err != nil {
		return "", fmt.Errorf("failed to ensure topic %s: %w", name, err)
	}
	return topicID, nil
}
