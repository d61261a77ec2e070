// Package pipeline runs a source end to end: discovery, fetch, extraction,
// validation, relevance filtering, deduplication, storage and health.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/topic-harvest/app/database"
	"github.com/lysyi3m/topic-harvest/app/dedup"
	"github.com/lysyi3m/topic-harvest/app/discovery"
	"github.com/lysyi3m/topic-harvest/app/extract"
	"github.com/lysyi3m/topic-harvest/app/fetcher"
	"github.com/lysyi3m/topic-harvest/app/health"
	"github.com/lysyi3m/topic-harvest/app/metrics"
	"github.com/lysyi3m/topic-harvest/app/quality"
	"github.com/lysyi3m/topic-harvest/app/source"
)

type Orchestrator struct {
	sourceRepo  database.SourceRepository
	topicRepo   database.TopicRepository
	articleRepo database.ArticleRepository
	historyRepo database.HistoryRepository
	errorSink   ErrorSink
	discoverer  Discoverer
	fetcher     PageFetcher
	extractor   *extract.Extractor
	filterer    *source.Filterer
	detector    *dedup.Detector
	cfg         Config
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewOrchestrator(sourceRepo database.SourceRepository, topicRepo database.TopicRepository,
	articleRepo database.ArticleRepository, historyRepo database.HistoryRepository, errorSink ErrorSink,
	discoverer Discoverer, pageFetcher PageFetcher, cfg Config) *Orchestrator {
	if cfg.MinStoredWords <= 0 {
		cfg.MinStoredWords = 10
	}
	if cfg.CorpusWindow <= 0 {
		cfg.CorpusWindow = 30 * 24 * time.Hour
	}
	if cfg.DefaultFrequency <= 0 {
		cfg.DefaultFrequency = 6 * time.Hour
	}

	return &Orchestrator{
		sourceRepo:  sourceRepo,
		topicRepo:   topicRepo,
		articleRepo: articleRepo,
		historyRepo: historyRepo,
		errorSink:   errorSink,
		discoverer:  discoverer,
		fetcher:     pageFetcher,
		extractor:   extract.NewExtractor(cfg.Quality.MinWordCountHardFail),
		filterer:    source.NewFilterer(),
		detector:    dedup.NewDetector(cfg.DuplicateThreshold),
		cfg:         cfg,
		now:         time.Now,
		locks:       make(map[string]*sync.Mutex),
	}
}

// sourceRun is the state of one run. Only the goroutine holding the
// source's lock touches it.
type sourceRun struct {
	cfg       *source.Config
	source    *database.Source
	topics    []database.Topic
	plan      *extract.Plan
	gate      *fetcher.Gate
	validator *quality.Validator
	corpus    map[string][]dedup.Record
	report    *Report

	fetchTime   time.Duration
	lastFailure string
}

func (o *Orchestrator) lockFor(name string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[name] = lock
	}
	return lock
}

// Run processes one source. Per-candidate failures are logged and never
// abort the run; the returned error is reserved for overlapping runs and
// storage failures around the run itself.
func (o *Orchestrator) Run(ctx context.Context, sourceConfig *source.Config) (*Report, error) {
	lock := o.lockFor(sourceConfig.Name)
	if !lock.TryLock() {
		return nil, ErrRunInProgress
	}
	defer lock.Unlock()

	started := time.Now()
	report := &Report{Source: sourceConfig.Name}

	src, err := o.sourceRepo.GetSource(ctx, sourceConfig.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load source: %w", err)
	}
	if src == nil {
		return nil, fmt.Errorf("source %s is not registered: %w", sourceConfig.Name, database.ErrNotFound)
	}

	if !src.IsActive || src.IsBlacklisted {
		slog.Debug("Source inactive, skipping run", "source", src.Name)
		report.Skipped = "source is inactive"
		report.Health = health.Evaluate(src.HealthState(), o.now())
		return report, nil
	}

	topics, err := o.activeTopics(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	if len(topics) == 0 {
		slog.Info("Source has no active topics, skipping run", "source", src.Name)
		report.Skipped = "no active topics"
		report.Health = health.Evaluate(src.HealthState(), o.now())
		return report, nil
	}

	run := &sourceRun{
		cfg:       sourceConfig,
		source:    src,
		topics:    topics,
		plan:      extract.Resolve(sourceConfig.Selectors.Selectors, sourceConfig.Selectors.Family),
		gate:      fetcher.NewGate(o.cfg.InterRequestDelay, sourceConfig.Headers),
		validator: o.validatorFor(sourceConfig),
		corpus:    make(map[string][]dedup.Record),
		report:    report,
	}

	candidates, discoveryErr := o.discoverer.Run(ctx, o.target(run), o.candidateFilter(run))
	if discoveryErr != nil {
		report.DiscoveryError = discoveryErr.Error()
		slog.Warn("Discovery failed", "source", src.Name, "error", discoveryErr)
		o.logFailure(ctx, "discovery_failure", database.SeverityMedium, map[string]any{
			"source": src.Name,
			"error":  discoveryErr.Error(),
		})
	}

	report.Candidates = len(candidates)
	if len(candidates) > 0 {
		report.Strategy = candidates[0].Strategy
		metrics.RecordCandidates(report.Strategy, len(candidates))
	}

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			slog.Info("Source run cancelled, no further fetches", "source", src.Name)
			report.Cancelled = true
			break
		}
		o.processCandidate(ctx, run, candidate)
	}

	// Health is written even when the run was cancelled.
	if err := o.updateHealth(context.WithoutCancel(ctx), run, discoveryErr); err != nil {
		return report, err
	}

	report.Duration = time.Since(started)
	result := "success"
	if discoveryErr != nil || (report.Fetched == 0 && report.FetchFailures > 0) {
		result = "failure"
	}
	metrics.RecordRun(src.Name, result, report.Duration.Seconds())

	slog.Info("Source run completed",
		"source", src.Name,
		"duration", report.Duration,
		"strategy", report.Strategy,
		"candidates", report.Candidates,
		"approved", report.Approved,
		"needs_review", report.NeedsReview,
		"duplicates", report.Duplicates,
		"filtered", report.Filtered,
		"rejected", report.Rejected,
		"fetch_failures", report.FetchFailures)

	return report, nil
}

func (o *Orchestrator) activeTopics(ctx context.Context, sourceID string) ([]database.Topic, error) {
	topics, err := o.topicRepo.GetTopicsForSource(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}

	active := topics[:0]
	for _, topic := range topics {
		if topic.IsActive {
			active = append(active, topic)
		}
	}
	return active, nil
}

func (o *Orchestrator) validatorFor(sourceConfig *source.Config) *quality.Validator {
	cfg := o.cfg.Quality
	if len(sourceConfig.Blacklist) > 0 {
		cfg.BlacklistPhrases = append(append([]string{}, cfg.BlacklistPhrases...), sourceConfig.Blacklist...)
	}
	return quality.NewValidator(cfg)
}

func (o *Orchestrator) target(run *sourceRun) discovery.Target {
	settings := run.cfg.Settings
	return discovery.Target{
		Name:          run.cfg.Name,
		FeedURL:       run.cfg.FeedURL,
		HomepageURL:   run.cfg.Entrypoint(),
		ListingURLs:   run.cfg.ListingURLs,
		LinkSelectors: run.cfg.Selectors.Links,
		Method:        run.cfg.Method,
		MaxCandidates: cmp.Or(settings.MaxCandidates, o.cfg.MaxCandidates),
		MaxAge:        time.Duration(settings.TrustedMaxAgeDays) * 24 * time.Hour,
		Gate:          run.gate,
	}
}

// candidateFilter drops URLs seen within the recheck window and URLs every
// active topic has discarded.
func (o *Orchestrator) candidateFilter(run *sourceRun) discovery.Filter {
	window := time.Duration(run.cfg.Settings.RecheckWindowHours) * time.Hour

	return func(ctx context.Context, candidate discovery.Candidate) bool {
		if window > 0 {
			seen, err := o.historyRepo.SeenSince(ctx, run.source.ID, candidate.Normalized, o.now().Add(-window))
			if err != nil {
				slog.Warn("Failed to check url history", "source", run.source.Name, "url", candidate.Normalized, "error", err)
			} else if seen {
				return false
			}
		}

		discarded, err := o.historyRepo.DiscardedTopics(ctx, candidate.Normalized)
		if err != nil {
			slog.Warn("Failed to check discards", "source", run.source.Name, "url", candidate.Normalized, "error", err)
			return true
		}
		return len(openTopics(run.topics, discarded)) > 0
	}
}

func openTopics(topics []database.Topic, discarded map[string]bool) []database.Topic {
	if len(discarded) == 0 {
		return topics
	}
	open := make([]database.Topic, 0, len(topics))
	for _, topic := range topics {
		if !discarded[topic.ID] {
			open = append(open, topic)
		}
	}
	return open
}

func (o *Orchestrator) processCandidate(ctx context.Context, run *sourceRun, candidate discovery.Candidate) {
	o.recordURL(ctx, run, candidate, database.HistorySeen)

	fetchStarted := time.Now()
	body, err := o.fetcher.Run(ctx, run.gate, candidate.URL)
	run.fetchTime += time.Since(fetchStarted)

	if err != nil {
		run.report.FetchFailures++
		run.lastFailure = err.Error()

		kind := string(fetcher.KindNetworkError)
		var failure *fetcher.Failure
		if errors.As(err, &failure) {
			kind = string(failure.Kind)
		}
		metrics.RecordFetchFailure(kind)

		slog.Warn("Article fetch failed", "source", run.source.Name, "url", candidate.URL, "kind", kind, "error", err)
		o.logFailure(ctx, "fetch_failure", fetchSeverity(kind), map[string]any{
			"source": run.source.Name,
			"url":    candidate.URL,
			"kind":   kind,
			"error":  err.Error(),
		})
		o.recordURL(ctx, run, candidate, database.HistoryFailed)
		o.fallback(ctx, run, candidate, "fetch failed: "+kind)
		return
	}

	run.report.Fetched++
	o.recordURL(ctx, run, candidate, database.HistoryFetched)

	article, result, err := o.extract(run, body, candidate)
	if err != nil {
		slog.Warn("Article extraction failed", "source", run.source.Name, "url", candidate.URL, "error", err)
		o.logFailure(ctx, "extraction_failure", database.SeverityLow, map[string]any{
			"source": run.source.Name,
			"url":    candidate.URL,
			"error":  err.Error(),
		})
		o.fallback(ctx, run, candidate, "extraction failed")
		return
	}

	if !result.Passed() {
		slog.Info("Article failed quality gate", "source", run.source.Name, "url", candidate.URL,
			"status", result.Status, "reasons", result.Reasons)
		o.logFailure(ctx, "validation_failure", database.SeverityLow, map[string]any{
			"source":  run.source.Name,
			"url":     candidate.URL,
			"status":  string(result.Status),
			"reasons": result.Reasons,
		})

		if strings.TrimSpace(candidate.Summary) != "" {
			o.fallback(ctx, run, candidate, "validation failed: "+strings.Join(result.Reasons, "; "))
			return
		}
		if article.WordCount >= o.cfg.MinStoredWords {
			o.store(ctx, run, candidate, article, result, database.StatusNeedsReview, false)
			return
		}
		o.reject(ctx, run, candidate, "validation")
		return
	}

	o.store(ctx, run, candidate, article, result, database.StatusApproved, false)
}

// extract runs the selector plan and, when validation asks for a retry,
// the readability strategy once. The better of the two results is kept.
func (o *Orchestrator) extract(run *sourceRun, body []byte, candidate discovery.Candidate) (*extract.Article, quality.Result, error) {
	opts := quality.Options{Snippet: run.cfg.Settings.Snippet}

	article, err := o.extractor.Run(body, candidate.URL, run.plan)
	if err != nil {
		return nil, quality.Result{}, err
	}

	result := run.validator.Run(article, opts)
	if result.Status != quality.StatusRetry || article.Method == extract.MethodReadability {
		return article, result, nil
	}

	slog.Debug("Retrying extraction with readability", "source", run.source.Name, "url", candidate.URL, "reasons", result.Reasons)

	alternate, err := o.extractor.RunReadability(body, candidate.URL, run.plan)
	if err != nil {
		return article, result, nil
	}

	alternateResult := run.validator.Run(alternate, opts)
	if alternateResult.Passed() || alternateResult.Score > result.Score {
		return alternate, alternateResult, nil
	}
	return article, result, nil
}

// fallback stores the feed summary as degraded content for review. Without
// a summary the candidate is rejected.
func (o *Orchestrator) fallback(ctx context.Context, run *sourceRun, candidate discovery.Candidate, reason string) {
	summary := strings.TrimSpace(candidate.Summary)
	if summary == "" {
		o.reject(ctx, run, candidate, reason)
		return
	}

	article := &extract.Article{
		Title:          candidate.Title,
		Body:           summary,
		Author:         candidate.Author,
		PublishedAt:    candidate.PublishedAt,
		WordCount:      len(strings.Fields(summary)),
		ParagraphCount: 1,
		SourceURL:      candidate.URL,
		Method:         MethodRSSSummary,
	}
	result := quality.Result{Status: quality.StatusFail, Reasons: []string{reason}}

	o.store(ctx, run, candidate, article, result, database.StatusNeedsReview, true)
}

func (o *Orchestrator) reject(ctx context.Context, run *sourceRun, candidate discovery.Candidate, reason string) {
	run.report.Rejected++
	metrics.RecordRejected(strings.SplitN(reason, ":", 2)[0])
	o.recordURL(ctx, run, candidate, database.HistoryRejected)
	slog.Debug("Candidate rejected", "source", run.source.Name, "url", candidate.URL, "reason", reason)
}

func (o *Orchestrator) store(ctx context.Context, run *sourceRun, candidate discovery.Candidate,
	article *extract.Article, result quality.Result, status string, degraded bool) {
	reasons := append([]string{}, result.Reasons...)

	if status == database.StatusApproved && article.WordCount < o.cfg.MinStoredWords {
		status = database.StatusNeedsReview
		reasons = append(reasons, fmt.Sprintf("word count %d below %d", article.WordCount, o.cfg.MinStoredWords))
	}

	subject := source.Subject{
		Title:   article.Title,
		Summary: candidate.Summary,
		Content: article.Body,
		Author:  article.Author,
		Link:    candidate.URL,
	}
	if filtered, reason := o.filterer.Run(subject, run.cfg); filtered {
		status = database.StatusFiltered
		reasons = append(reasons, reason)
	}

	discarded, err := o.historyRepo.DiscardedTopics(ctx, candidate.Normalized)
	if err != nil {
		slog.Warn("Failed to check discards", "source", run.source.Name, "url", candidate.Normalized, "error", err)
	}

	checksum := dedup.Checksum(article.Body)
	title := article.Title
	if title == "" {
		title = candidate.Title
	}

	stored := false
	for _, topic := range openTopics(run.topics, discarded) {
		topicStatus := status

		var matches []dedup.Match
		if topicStatus != database.StatusFiltered {
			record := dedup.Record{NormalizedURL: candidate.Normalized, Checksum: checksum, Body: article.Body}
			matches = o.detector.Run(record, o.corpusFor(ctx, run, topic.ID))
			if len(matches) > 0 {
				topicStatus = database.StatusDuplicateReview
			}
		}

		row := &database.Article{
			SourceID:         run.source.ID,
			TopicID:          topic.ID,
			URL:              candidate.URL,
			NormalizedURL:    candidate.Normalized,
			Title:            title,
			Body:             article.Body,
			Author:           article.Author,
			PublishedAt:      article.PublishedAt,
			WordCount:        article.WordCount,
			ParagraphCount:   article.ParagraphCount,
			ExtractionMethod: article.Method,
			Confidence:       article.Confidence,
			QualityScore:     result.Score,
			Status:           topicStatus,
			Degraded:         degraded,
			Checksum:         checksum,
			Reasons:          reasons,
			CreatedAt:        o.now(),
		}

		if row.PublishedAt == nil {
			row.PublishedAt = candidate.PublishedAt
		}

		id, err := o.articleRepo.SaveArticle(ctx, row)
		if errors.Is(err, database.ErrDuplicateConflict) {
			run.report.Conflicts++
			slog.Debug("Article already stored for topic", "source", run.source.Name, "topic", topic.Name, "url", candidate.Normalized)
			continue
		}
		if err != nil {
			slog.Error("Failed to save article", "source", run.source.Name, "topic", topic.Name, "url", candidate.URL, "error", err)
			o.logFailure(ctx, "storage_failure", database.SeverityHigh, map[string]any{
				"source": run.source.Name,
				"topic":  topic.Name,
				"url":    candidate.URL,
				"error":  err.Error(),
			})
			continue
		}
		stored = true

		for _, match := range matches {
			if err := o.articleRepo.RecordDuplicate(ctx, id, match.DuplicateID, match.Method, match.Score); err != nil {
				slog.Warn("Failed to record duplicate", "article", id, "duplicate", match.DuplicateID, "error", err)
			}
		}

		if topicStatus != database.StatusFiltered {
			run.corpus[topic.ID] = append(run.corpus[topic.ID], dedup.Record{
				ID:            id,
				NormalizedURL: candidate.Normalized,
				Checksum:      checksum,
				Body:          article.Body,
			})
		}

		if topicStatus == database.StatusApproved {
			if err := o.articleRepo.Enqueue(ctx, id, topic.ID); err != nil {
				slog.Error("Failed to enqueue article", "article", id, "topic", topic.Name, "error", err)
			}
		}

		o.count(run.report, topicStatus)
		metrics.RecordArticle(topicStatus)
	}

	if stored {
		o.recordURL(ctx, run, candidate, database.HistoryStored)
	}
}

func (o *Orchestrator) count(report *Report, status string) {
	switch status {
	case database.StatusApproved:
		report.Approved++
	case database.StatusNeedsReview:
		report.NeedsReview++
	case database.StatusDuplicateReview:
		report.Duplicates++
	case database.StatusFiltered:
		report.Filtered++
	}
}

func (o *Orchestrator) corpusFor(ctx context.Context, run *sourceRun, topicID string) []dedup.Record {
	if corpus, ok := run.corpus[topicID]; ok {
		return corpus
	}

	entries, err := o.articleRepo.GetRecentCorpus(ctx, topicID, o.now().Add(-o.cfg.CorpusWindow), o.cfg.CorpusLimit)
	if err != nil {
		slog.Warn("Failed to load duplicate corpus", "source", run.source.Name, "topic", topicID, "error", err)
	}

	corpus := make([]dedup.Record, 0, len(entries))
	for _, entry := range entries {
		corpus = append(corpus, dedup.Record{
			ID:            entry.ID,
			NormalizedURL: entry.NormalizedURL,
			Checksum:      entry.Checksum,
			Body:          entry.Body,
		})
	}
	run.corpus[topicID] = corpus
	return corpus
}

func (o *Orchestrator) updateHealth(ctx context.Context, run *sourceRun, discoveryErr error) error {
	report := run.report
	now := o.now()

	attempt := health.Attempt{Success: true, At: now}
	switch {
	case discoveryErr != nil:
		attempt.Success = false
		attempt.Reason = "discovery failed: " + discoveryErr.Error()
	case report.Fetched == 0 && report.FetchFailures > 0:
		attempt.Success = false
		attempt.Reason = fmt.Sprintf("all %d article fetches failed: %s", report.FetchFailures, run.lastFailure)
	}

	if requests := report.Fetched + report.FetchFailures; requests > 0 {
		attempt.ResponseTime = run.fetchTime / time.Duration(requests)
	}

	state := health.Apply(run.source.HealthState(), attempt)

	base := time.Duration(run.source.ScrapeFrequencyHours) * time.Hour
	if base <= 0 {
		base = o.cfg.DefaultFrequency
	}

	var nextRunAt *time.Time
	if interval := health.NextInterval(state, base); interval > 0 {
		next := now.Add(interval)
		nextRunAt = &next
	}

	if err := o.sourceRepo.UpdateSourceHealth(ctx, run.source.ID, state, nextRunAt); err != nil {
		return fmt.Errorf("failed to update source health: %w", err)
	}

	report.Health = health.Evaluate(state, now)
	report.NextRunAt = nextRunAt
	return nil
}

func (o *Orchestrator) recordURL(ctx context.Context, run *sourceRun, candidate discovery.Candidate, status string) {
	if err := o.historyRepo.RecordURL(context.WithoutCancel(ctx), run.source.ID, candidate.Normalized, status); err != nil {
		slog.Warn("Failed to record url history", "source", run.source.Name, "url", candidate.Normalized, "status", status, "error", err)
	}
}

func (o *Orchestrator) logFailure(ctx context.Context, ticketType, severity string, details map[string]any) {
	if o.errorSink == nil {
		return
	}
	if err := o.errorSink.LogError(context.WithoutCancel(ctx), ticketType, details, severity); err != nil {
		slog.Warn("Failed to write error log", "ticket_type", ticketType, "error", err)
	}
}

func fetchSeverity(kind string) string {
	switch fetcher.Kind(kind) {
	case fetcher.KindAccessDenied, fetcher.KindPaywall:
		return database.SeverityMedium
	default:
		return database.SeverityLow
	}
}
