package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/topic-harvest/app/api"
	"github.com/lysyi3m/topic-harvest/app/cfg"
	"github.com/lysyi3m/topic-harvest/app/database"
	"github.com/lysyi3m/topic-harvest/app/discovery"
	"github.com/lysyi3m/topic-harvest/app/fetcher"
	"github.com/lysyi3m/topic-harvest/app/pipeline"
	"github.com/lysyi3m/topic-harvest/app/source"
	"github.com/lysyi3m/topic-harvest/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Topic Harvest", "version", appCfg.Version)

	db, err := database.Open(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	schema, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", schema.Version)

	configCache := source.NewConfigCache(appCfg.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "dir", appCfg.SourcesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "count", configCache.GetConfigCount())

	sourceRepo := database.NewSourceRepo(db)
	topicRepo := database.NewTopicRepo(db)
	articleRepo := database.NewArticleRepo(db)
	historyRepo := database.NewHistoryRepo(db)
	errorRepo := database.NewErrorLogRepo(db)

	pageFetcher := fetcher.NewFetcher(&http.Client{}, fetcher.Config{
		Timeout:       appCfg.FetchTimeout,
		MaxBodyBytes:  appCfg.MaxBodyBytes,
		MaxConcurrent: appCfg.MaxConcurrentFetches,
		UserAgents:    appCfg.UserAgents,
	})

	chain := discovery.NewChain(pageFetcher, discovery.Config{
		SitemapWindow: time.Duration(appCfg.SitemapWindowDays) * 24 * time.Hour,
	})

	pipelineCfg := pipeline.DefaultConfig()
	pipelineCfg.InterRequestDelay = appCfg.InterRequestDelay
	pipelineCfg.Quality.MinWordCountHardFail = appCfg.MinWordCountHardFail
	pipelineCfg.Quality.MinWordCountQualityTarget = appCfg.MinWordCountQualityTarget
	pipelineCfg.Quality.MaxWordCount = appCfg.MaxWordCount
	pipelineCfg.DuplicateThreshold = appCfg.DuplicateThreshold
	pipelineCfg.MaxCandidates = appCfg.MaxCandidates

	orchestrator := pipeline.NewOrchestrator(sourceRepo, topicRepo, articleRepo, historyRepo, errorRepo,
		chain, pageFetcher, pipelineCfg)

	scheduler := tasks.NewScheduler(configCache, sourceRepo, orchestrator)
	scheduler.Start()

	handler := api.NewHandler(configCache, sourceRepo, topicRepo, articleRepo, historyRepo, errorRepo, scheduler)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port, "api_enabled", appCfg.APIAccessKey != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()

	slog.Info("Topic Harvest stopped")
}
