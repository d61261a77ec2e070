package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lysyi3m/topic-harvest/app/health"
)

// SourceRepo handles database operations for content sources
type SourceRepo struct {
	db *DB
}

var _ SourceRepository = (*SourceRepo)(nil)

func NewSourceRepo(db *DB) *SourceRepo {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, name, domain, feed_url, homepage_url, method,
	is_active, is_blacklisted, is_whitelisted,
	consecutive_failures, last_failure_reason, last_failure_at, last_success_at, last_scraped_at,
	success_rate, avg_response_ms, scrape_frequency_hours, next_run_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*Source, error) {
	var s Source
	err := row.Scan(
		&s.ID, &s.Name, &s.Domain, &s.FeedURL, &s.HomepageURL, &s.Method,
		&s.IsActive, &s.IsBlacklisted, &s.IsWhitelisted,
		&s.ConsecutiveFailures, &s.LastFailureReason, &s.LastFailureAt, &s.LastSuccessAt, &s.LastScrapedAt,
		&s.SuccessRate, &s.AvgResponseMs, &s.ScrapeFrequencyHours, &s.NextRunAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SourceRepo) GetSource(ctx context.Context, name string) (*Source, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)

	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return source, nil
}

func (r *SourceRepo) GetSources(ctx context.Context) ([]Source, error) {
	return r.querySources(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
}

// GetSourcesDueForRun returns active, non-blacklisted sources whose next
// run time has passed or was never set.
func (r *SourceRepo) GetSourcesDueForRun(ctx context.Context, now time.Time) ([]Source, error) {
	return r.querySources(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE is_active = 1
		  AND is_blacklisted = 0
		  AND (next_run_at IS NULL OR next_run_at <= ?)
		ORDER BY COALESCE(next_run_at, '1970-01-01 00:00:00+00:00')
		LIMIT 50
	`, ts(now))
}

func (r *SourceRepo) querySources(ctx context.Context, query string, args ...any) ([]Source, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}

	return sources, nil
}

// UpsertSource inserts or updates the operator-controlled fields of a
// source and relinks its topics. Health counters are left untouched.
func (r *SourceRepo) UpsertSource(ctx context.Context, spec SourceSpec) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := ts(time.Now())

	var sourceID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sources (id, name, domain, feed_url, homepage_url, method,
			is_active, is_blacklisted, is_whitelisted, scrape_frequency_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			domain = excluded.domain,
			feed_url = excluded.feed_url,
			homepage_url = excluded.homepage_url,
			method = excluded.method,
			is_active = excluded.is_active,
			is_blacklisted = excluded.is_blacklisted,
			is_whitelisted = excluded.is_whitelisted,
			scrape_frequency_hours = excluded.scrape_frequency_hours,
			updated_at = excluded.updated_at
		RETURNING id
	`, uuid.NewString(), spec.Name, spec.Domain, spec.FeedURL, spec.HomepageURL, spec.Method,
		spec.IsActive, spec.IsBlacklisted, spec.IsWhitelisted, spec.ScrapeFrequencyHours, now, now).Scan(&sourceID)
	if err != nil {
		return "", fmt.Errorf("failed to upsert source: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM source_topics WHERE source_id = ?`, sourceID); err != nil {
		return "", fmt.Errorf("failed to clear source topics: %w", err)
	}

	for _, topic := range spec.Topics {
		topicID, err := ensureTopic(ctx, tx, topic, now)
		if err != nil {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO source_topics (source_id, topic_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, sourceID, topicID); err != nil {
			return "", fmt.Errorf("failed to link topic %s: %w", topic, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit source upsert: %w", err)
	}

	return sourceID, nil
}

// UpdateSourceHealth persists the counters produced by health.Apply
func (r *SourceRepo) UpdateSourceHealth(ctx context.Context, sourceID string, state health.State, nextRunAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sources
		SET consecutive_failures = ?,
		    last_failure_reason = ?,
		    last_failure_at = ?,
		    last_success_at = ?,
		    last_scraped_at = ?,
		    success_rate = ?,
		    avg_response_ms = ?,
		    next_run_at = ?,
		    updated_at = ?
		WHERE id = ?
	`, state.ConsecutiveFailures, state.LastFailureReason, tsPtr(state.LastFailureAt), tsPtr(state.LastSuccessAt),
		tsPtr(state.LastScrapedAt), state.SuccessRate, state.AvgResponseTime.Milliseconds(), tsPtr(nextRunAt),
		ts(time.Now()), sourceID)

	if err != nil {
		return fmt.Errorf("failed to update source health: %w", err)
	}

	return nil
}

// DeleteSource removes a source and its history. It refuses while the
// source feeds an active topic.
func (r *SourceRepo) DeleteSource(ctx context.Context, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var sourceID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM sources WHERE name = ?`, name).Scan(&sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up source: %w", err)
	}

	var activeTopics int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM source_topics st
		JOIN topics t ON t.id = st.topic_id
		WHERE st.source_id = ? AND t.is_active = 1
	`, sourceID).Scan(&activeTopics)
	if err != nil {
		return fmt.Errorf("failed to count active topics: %w", err)
	}
	if activeTopics > 0 {
		return ErrSourceInUse
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	return tx.Commit()
}
