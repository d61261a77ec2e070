package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/topic-harvest/app/database"
	"github.com/lysyi3m/topic-harvest/app/feed"
	"github.com/lysyi3m/topic-harvest/app/health"
	"github.com/lysyi3m/topic-harvest/app/source"
	"github.com/lysyi3m/topic-harvest/app/tasks"
	"github.com/lysyi3m/topic-harvest/app/urlnorm"
)

func NewHandler(configCache *source.ConfigCache, sourceRepo database.SourceRepository,
	topicRepo database.TopicRepository, articleRepo database.ArticleRepository,
	historyRepo database.HistoryRepository, errorRepo database.ErrorLogRepository,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		sourceRepo:  sourceRepo,
		topicRepo:   topicRepo,
		articleRepo: articleRepo,
		historyRepo: historyRepo,
		errorRepo:   errorRepo,
		generator:   feed.NewGenerator(),
		configCache: configCache,
		scheduler:   scheduler,
	}
}

// GetTopicFeed renders the approved generation queue of a topic as RSS.
func (h *Handler) GetTopicFeed(c *gin.Context) {
	name := c.Param("topic")
	ctx := c.Request.Context()

	topic, err := h.topicRepo.GetTopic(ctx, name)
	if err != nil {
		slog.Error("Database error", "operation", "get_topic", "topic", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if topic == nil {
		c.Status(http.StatusNotFound)
		return
	}

	limit := queryInt(c, "limit", defaultFeedLimit, maxFeedLimit)
	items, err := h.articleRepo.GetQueuedArticles(ctx, name, limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_queued_articles", "topic", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(feed.Channel{Topic: topic.Name}, items)
	if err != nil {
		slog.Error("RSS generation error", "topic", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Topic-Name", topic.Name)

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	status := map[string]any{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if sources, err := h.sourceRepo.GetSources(c.Request.Context()); err == nil {
		status["sources"] = len(sources)
	}

	status["loaded_configurations"] = h.configCache.GetConfigCount()

	c.JSON(http.StatusOK, status)
}

func (h *Handler) APIListSources(c *gin.Context) {
	sources, err := h.sourceRepo.GetSources(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	now := time.Now()
	list := make([]map[string]any, 0, len(sources))

	for _, src := range sources {
		info := map[string]any{
			"name":              src.Name,
			"domain":            src.Domain,
			"method":            src.Method,
			"active":            src.IsActive,
			"blacklisted":       src.IsBlacklisted,
			"whitelisted":       src.IsWhitelisted,
			"scrape_frequency":  (time.Duration(src.ScrapeFrequencyHours) * time.Hour).String(),
			"next_run_at":       src.NextRunAt,
			"health":            health.Evaluate(src.HealthState(), now),
			"configuration_set": false,
		}

		if _, err := h.configCache.GetConfig(src.Name); err == nil {
			info["configuration_set"] = true
		}

		list = append(list, info)
	}

	c.JSON(http.StatusOK, map[string]any{
		"sources": list,
		"total":   len(list),
	})
}

func (h *Handler) APIGetSourceHealth(c *gin.Context) {
	name := c.Param("name")

	src, err := h.sourceRepo.GetSource(c.Request.Context(), name)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if src == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":                 src.Name,
		"health":               health.Evaluate(src.HealthState(), time.Now()),
		"last_failure_reason":  src.LastFailureReason,
		"last_failure_at":      src.LastFailureAt,
		"avg_response_time":    (time.Duration(src.AvgResponseMs) * time.Millisecond).String(),
		"next_run_at":          src.NextRunAt,
		"consecutive_failures": src.ConsecutiveFailures,
	})
}

func (h *Handler) APIRunSource(c *gin.Context) {
	name := c.Param("name")

	err := h.scheduler.TriggerSource(name)
	switch {
	case errors.Is(err, tasks.ErrUnknownSource):
		c.JSON(http.StatusNotFound, gin.H{"error": "Source configuration not found"})
		return
	case errors.Is(err, tasks.ErrSourceDisabled), errors.Is(err, tasks.ErrAlreadyQueued):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		slog.Error("Error enqueueing run task", "source", name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue run task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Source run queued",
		"source":  name,
	})
}

func (h *Handler) APIReloadSource(c *gin.Context) {
	name := c.Param("name")

	sourceConfig, err := h.configCache.LoadConfig(name)
	if err != nil {
		slog.Error("Error reloading configuration", "source", name, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Failed to reload configuration",
			"details": err.Error(),
		})
		return
	}

	syncTask := tasks.NewSyncSourceConfigTask(name, sourceConfig, h.sourceRepo)
	if err := h.scheduler.EnqueueTask(syncTask); err != nil {
		slog.Error("Error enqueueing sync task", "source", name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "Failed to enqueue sync task",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Configuration reloaded and sync task enqueued",
		"source": gin.H{
			"name":    name,
			"domain":  sourceConfig.Domain,
			"method":  sourceConfig.Method,
			"enabled": sourceConfig.Settings.Enabled,
		},
		"tasks": []gin.H{
			{
				"id":   syncTask.ID,
				"type": syncTask.Type,
			},
		},
	})
}

func (h *Handler) APIDeleteSource(c *gin.Context) {
	name := c.Param("name")

	err := h.sourceRepo.DeleteSource(c.Request.Context(), name)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	case errors.Is(err, database.ErrSourceInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "Source is linked to an active topic"})
		return
	case err != nil:
		slog.Error("Database error", "operation", "delete_source", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	h.configCache.Remove(name)
	slog.Info("Source deleted", "source", name)

	c.JSON(http.StatusOK, gin.H{"success": true, "source": name})
}

func (h *Handler) APIDiscardURL(c *gin.Context) {
	name := c.Param("topic")
	ctx := c.Request.Context()

	var req discardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	normalized, err := urlnorm.Normalize(req.URL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL", "details": err.Error()})
		return
	}

	topic, err := h.topicRepo.GetTopic(ctx, name)
	if err != nil {
		slog.Error("Database error", "operation", "get_topic", "topic", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if topic == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Topic not found"})
		return
	}

	if err := h.historyRepo.Discard(ctx, topic.ID, normalized, req.Reason); err != nil {
		slog.Error("Database error", "operation", "discard", "topic", name, "url", normalized, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"topic":          topic.Name,
		"normalized_url": normalized,
	})
}

func (h *Handler) APIDeactivateTopic(c *gin.Context) {
	h.setTopicActive(c, false)
}

func (h *Handler) APIActivateTopic(c *gin.Context) {
	h.setTopicActive(c, true)
}

func (h *Handler) setTopicActive(c *gin.Context, active bool) {
	name := c.Param("topic")

	err := h.topicRepo.SetTopicActive(c.Request.Context(), name, active)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Topic not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "set_topic_active", "topic", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	slog.Info("Topic state changed", "topic", name, "active", active)
	c.JSON(http.StatusOK, gin.H{"success": true, "topic": name, "active": active})
}

func (h *Handler) APIListArticles(c *gin.Context) {
	filter := database.ArticleFilter{
		TopicName:  c.Query("topic"),
		SourceName: c.Query("source"),
		Status:     c.Query("status"),
		Limit:      queryInt(c, "limit", defaultArticleLimit, maxArticleLimit),
		Offset:     queryInt(c, "offset", 0, 0),
	}

	articles, err := h.articleRepo.GetArticles(c.Request.Context(), filter)
	if err != nil {
		slog.Error("Database error", "operation", "get_articles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	list := make([]map[string]any, 0, len(articles))
	for _, article := range articles {
		list = append(list, map[string]any{
			"id":                article.ID,
			"url":               article.URL,
			"title":             article.Title,
			"author":            article.Author,
			"published_at":      article.PublishedAt,
			"word_count":        article.WordCount,
			"extraction_method": article.ExtractionMethod,
			"quality_score":     article.QualityScore,
			"status":            article.Status,
			"degraded":          article.Degraded,
			"reasons":           article.Reasons,
			"created_at":        article.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, map[string]any{
		"articles": list,
		"total":    len(list),
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *Handler) APIListErrors(c *gin.Context) {
	entries, err := h.errorRepo.GetRecentErrors(c.Request.Context(), queryInt(c, "limit", defaultErrorLimit, maxArticleLimit))
	if err != nil {
		slog.Error("Database error", "operation", "get_errors", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, map[string]any{
		"errors": entries,
		"total":  len(entries),
	})
}

// queryInt reads a positive integer query parameter. ceiling <= 0 means
// unbounded.
func queryInt(c *gin.Context, key string, fallback, ceiling int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil || value <= 0 {
		return fallback
	}
	if ceiling > 0 && value > ceiling {
		return ceiling
	}
	return value
}
