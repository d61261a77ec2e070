package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/topic-harvest/app/cfg"
	"github.com/lysyi3m/topic-harvest/app/database"
	"github.com/lysyi3m/topic-harvest/app/source"
)

var (
	ErrUnknownSource  = errors.New("source config not found")
	ErrSourceDisabled = errors.New("source is disabled")
	ErrAlreadyQueued  = errors.New("source run already queued")
	ErrQueueFull      = errors.New("task queue is full")
	ErrStopped        = errors.New("scheduler stopped")
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	configCache *source.ConfigCache
	sourceRepo  database.SourceRepository
	runner      SourceRunner
	cron        *cron.Cron
	interval    time.Duration
	workerCount int
	taskTimeout time.Duration
	retryDelay  func(retryCount int) time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface

	mu      sync.Mutex
	queued  map[string]bool
	stopped bool
}

func NewScheduler(configCache *source.ConfigCache, sourceRepo database.SourceRepository,
	runner SourceRunner) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		configCache: configCache,
		sourceRepo:  sourceRepo,
		runner:      runner,
		cron:        cron.New(),
		interval:    time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount: cfg.WorkerCount,
		taskTimeout: 15 * time.Minute,
		retryDelay:  backoff,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
		queued:      make(map[string]bool),
	}
}

func backoff(retryCount int) time.Duration {
	retryDelay := time.Duration(1<<uint(retryCount-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}
	return retryDelay
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	interval := s.interval
	if interval < time.Second {
		interval = time.Second
	}
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.enqueueTasks); err != nil {
		slog.Error("Failed to schedule periodic source runs", "interval", interval.String(), "error", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.syncConfigs()
		s.enqueueTasks()
		s.cron.Start()
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.stopped = true
	close(s.taskQueue)
	s.mu.Unlock()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return ErrQueueFull
	}
}

// TriggerSource queues an immediate run of one source, outside its
// schedule.
func (s *Scheduler) TriggerSource(sourceName string) error {
	sourceConfig, err := s.configCache.GetConfig(sourceName)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownSource, sourceName)
	}
	if !sourceConfig.Settings.Enabled || sourceConfig.Settings.Blacklisted {
		return fmt.Errorf("%w: %s", ErrSourceDisabled, sourceName)
	}
	return s.enqueueRun(sourceConfig)
}

// enqueueRun queues a run task unless one for the same source is already
// waiting or running.
func (s *Scheduler) enqueueRun(sourceConfig *source.Config) error {
	s.mu.Lock()
	if s.queued[sourceConfig.Name] {
		s.mu.Unlock()
		return ErrAlreadyQueued
	}
	s.queued[sourceConfig.Name] = true
	s.mu.Unlock()

	if err := s.EnqueueTask(NewRunSourceTask(sourceConfig.Name, sourceConfig, s.runner)); err != nil {
		s.release(sourceConfig.Name)
		return err
	}
	return nil
}

func (s *Scheduler) release(sourceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queued, sourceName)
}

// syncConfigs writes every cached source config to the database before the
// first run is queued.
func (s *Scheduler) syncConfigs() {
	sourceConfigs := s.configCache.GetConfigs()
	if len(sourceConfigs) == 0 {
		slog.Debug("No source configurations found")
		return
	}

	slog.Debug("Syncing source configurations", "count", len(sourceConfigs))

	for _, sourceConfig := range sourceConfigs {
		if s.ctx.Err() != nil {
			return
		}

		syncTask := NewSyncSourceConfigTask(sourceConfig.Name, sourceConfig, s.sourceRepo)
		syncTask.Start()
		if err := syncTask.Execute(s.ctx); err != nil {
			slog.Warn("Failed to sync source config, queueing retry", "source", sourceConfig.Name, "error", err)
			if err := s.EnqueueTask(syncTask); err != nil {
				slog.Warn("Failed to enqueue SyncSourceConfigTask", "source", sourceConfig.Name, "error", err)
			}
		}
	}
}

func (s *Scheduler) enqueueTasks() {
	if s.ctx.Err() != nil {
		return
	}

	due, err := s.sourceRepo.GetSourcesDueForRun(s.ctx, time.Now().UTC())
	if err != nil {
		slog.Warn("Failed to load sources due for run", "error", err)
		return
	}
	if len(due) == 0 {
		slog.Debug("No sources due for run")
		return
	}

	slog.Debug("Queueing due sources", "count", len(due))

	for _, src := range due {
		sourceConfig, err := s.configCache.GetConfig(src.Name)
		if err != nil {
			slog.Warn("Source has no configuration, skipping", "source", src.Name, "error", err)
			continue
		}
		if !sourceConfig.Settings.Enabled {
			slog.Debug("Source disabled, skipping RunSourceTask", "source", src.Name)
			continue
		}

		err = s.enqueueRun(sourceConfig)
		switch {
		case errors.Is(err, ErrAlreadyQueued):
			slog.Debug("Source run already queued", "source", src.Name)
		case err != nil:
			slog.Warn("Failed to enqueue RunSourceTask", "source", src.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		s.finish(task)
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "source", task.GetSourceName(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() || s.ctx.Err() != nil {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		s.finish(task)
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "source", task.GetSourceName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			s.finish(task)
			return
		case <-time.After(retryDelay):
		}

		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			s.finish(task)
		}
	}()
}

// finish clears the queued marker once a run task will not execute again.
func (s *Scheduler) finish(task TaskInterface) {
	if task.GetType() == TaskTypeRunSource {
		s.release(task.GetSourceName())
	}
}
