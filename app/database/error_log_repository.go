package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type ErrorLogRepo struct {
	db *DB
}

var _ ErrorLogRepository = (*ErrorLogRepo)(nil)

func NewErrorLogRepo(db *DB) *ErrorLogRepo {
	return &ErrorLogRepo{db: db}
}

func (r *ErrorLogRepo) LogError(ctx context.Context, ticketType string, details map[string]any, severity string) error {
	if details == nil {
		details = map[string]any{}
	}

	encoded, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode error details: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO error_log (ticket_type, severity, details, created_at)
		VALUES (?, ?, ?, ?)
	`, ticketType, severity, string(encoded), ts(time.Now()))

	if err != nil {
		return fmt.Errorf("failed to write error log: %w", err)
	}
	return nil
}

func (r *ErrorLogRepo) GetRecentErrors(ctx context.Context, limit int) ([]ErrorEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_type, severity, details, created_at
		FROM error_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get error log: %w", err)
	}
	defer rows.Close()

	var entries []ErrorEntry
	for rows.Next() {
		var entry ErrorEntry
		var details string
		if err := rows.Scan(&entry.ID, &entry.TicketType, &entry.Severity, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan error log row: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &entry.Details); err != nil {
			entry.Details = map[string]any{"raw": details}
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating error log rows: %w", err)
	}

	return entries, nil
}
