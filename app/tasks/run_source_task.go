package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/topic-harvest/app/pipeline"
	"github.com/lysyi3m/topic-harvest/app/source"
)

type RunSourceTask struct {
	Task
	SourceConfig *source.Config
	runner       SourceRunner

	Report *pipeline.Report
}

func NewRunSourceTask(sourceName string, sourceConfig *source.Config, runner SourceRunner) *RunSourceTask {
	return &RunSourceTask{
		Task:         NewTask(TaskTypeRunSource, sourceName),
		SourceConfig: sourceConfig,
		runner:       runner,
	}
}

func (t *RunSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !t.SourceConfig.Settings.Enabled {
		slog.Debug("Source disabled, skipping", "source", t.SourceName)
		return nil
	}

	report, err := t.runner.Run(ctx, t.SourceConfig)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		slog.Info("Source run already in progress, skipping", "source", t.SourceName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run source: %w", err)
	}
	t.Report = report

	if report.Skipped != "" {
		slog.Debug("Task skipped",
			"type", "RunSource",
			"source", t.SourceName,
			"reason", report.Skipped)
		return nil
	}

	slog.Info("Task completed",
		"type", "RunSource",
		"source", t.SourceName,
		"candidates", report.Candidates,
		"approved", report.Approved,
		"needs_review", report.NeedsReview,
		"health", report.Health.Level,
		"duration", t.GetDuration())

	return nil
}
