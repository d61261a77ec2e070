package tasks

import (
	"context"

	"github.com/lysyi3m/topic-harvest/app/pipeline"
	"github.com/lysyi3m/topic-harvest/app/source"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the API to manage background source runs.
// Example usage:
//
//	scheduler := NewScheduler(configCache, sourceRepo, orchestrator)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.TriggerSource("example-news")
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	TriggerSource(sourceName string) error
}

// SourceRunner runs the pipeline for one source.
type SourceRunner interface {
	Run(ctx context.Context, sourceConfig *source.Config) (*pipeline.Report, error)
}

var _ SourceRunner = (*pipeline.Orchestrator)(nil)
