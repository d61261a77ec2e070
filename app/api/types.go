package api

import (
	"github.com/lysyi3m/topic-harvest/app/database"
	"github.com/lysyi3m/topic-harvest/app/feed"
	"github.com/lysyi3m/topic-harvest/app/source"
	"github.com/lysyi3m/topic-harvest/app/tasks"
)

type GeneratorInterface interface {
	Run(channel feed.Channel, items []database.QueuedArticle) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type Handler struct {
	sourceRepo  database.SourceRepository
	topicRepo   database.TopicRepository
	articleRepo database.ArticleRepository
	historyRepo database.HistoryRepository
	errorRepo   database.ErrorLogRepository
	generator   GeneratorInterface
	configCache *source.ConfigCache
	scheduler   tasks.TaskSchedulerInterface
}

type discardRequest struct {
	URL    string `json:"url" binding:"required"`
	Reason string `json:"reason"`
}

const (
	defaultFeedLimit    = 50
	maxFeedLimit        = 200
	defaultArticleLimit = 50
	maxArticleLimit     = 500
	defaultErrorLimit   = 100
)
