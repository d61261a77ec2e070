package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/topic-harvest/app/database"
	"github.com/lysyi3m/topic-harvest/app/source"
)

type SyncSourceConfigTask struct {
	Task
	SourceConfig *source.Config
	sourceRepo   database.SourceRepository
}

func NewSyncSourceConfigTask(sourceName string, sourceConfig *source.Config, sourceRepo database.SourceRepository) *SyncSourceConfigTask {
	return &SyncSourceConfigTask{
		Task:         NewTask(TaskTypeSyncSourceConfig, sourceName),
		SourceConfig: sourceConfig,
		sourceRepo:   sourceRepo,
	}
}

func (t *SyncSourceConfigTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	sourceID, err := t.sourceRepo.UpsertSource(ctx, specFromConfig(t.SourceConfig))
	if err != nil {
		slog.Error("Task failed", "type", "SyncSourceConfig", "source", t.SourceName, "error", err)
		return fmt.Errorf("failed to sync source config to database: %w", err)
	}

	slog.Info("Task completed",
		"type", "SyncSourceConfig",
		"source", t.SourceName,
		"source_id", sourceID,
		"topics", len(t.SourceConfig.Topics),
		"duration", t.GetDuration())

	return nil
}

func specFromConfig(sourceConfig *source.Config) database.SourceSpec {
	return database.SourceSpec{
		Name:                 sourceConfig.Name,
		Domain:               sourceConfig.Domain,
		FeedURL:              sourceConfig.FeedURL,
		HomepageURL:          sourceConfig.Entrypoint(),
		Method:               sourceConfig.Method,
		IsActive:             sourceConfig.Settings.Enabled,
		IsBlacklisted:        sourceConfig.Settings.Blacklisted,
		IsWhitelisted:        sourceConfig.Settings.Whitelisted,
		ScrapeFrequencyHours: sourceConfig.Settings.ScrapeFrequencyHours,
		Topics:               sourceConfig.Topics,
	}
}
