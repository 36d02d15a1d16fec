// Package main provides the API server entry point for the apply pipeline.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gildigital/aijobapply/internal/api"
	"github.com/gildigital/aijobapply/internal/config"
	"github.com/gildigital/aijobapply/internal/dedup"
	"github.com/gildigital/aijobapply/internal/discovery"
	"github.com/gildigital/aijobapply/internal/dispatch"
	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/queue"
	"github.com/gildigital/aijobapply/internal/scheduler"
	"github.com/gildigital/aijobapply/internal/storage"
	"github.com/gildigital/aijobapply/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisStore(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// ClickHouse is optional: without it the pipeline runs with no audit
	// history, everything else is unaffected.
	var eventLog *storage.EventLog
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, submission history disabled")
	} else {
		defer clickhouse.Close()
		eventLog = storage.NewEventLog(clickhouse)
		if err := eventLog.EnsureSchema(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to ensure event log schema, submission history disabled")
			eventLog = nil
		}
	}

	logger.Info("Database connections established")

	// Initialize repositories
	linkRepo := storage.NewLinkRepository(postgres)
	queueRepo := storage.NewQueueRepository(postgres)
	appRepo := storage.NewApplicationRepository(postgres)

	usageTracker, err := storage.NewDailyUsageTracker(&storage.DailyUsageTrackerConfig{
		Redis: redis.Client(),
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create usage tracker")
	}

	// Initialize services
	logger.Info("Initializing services...")

	// eventLog is stored in interface-typed fields; a typed nil would defeat
	// the services' nil checks, so assign only when ClickHouse is up.
	var queueEvents queue.EventSink
	var dispatchEvents dispatch.EventSink
	var schedulerEvents scheduler.EventSink
	if eventLog != nil {
		queueEvents = eventLog
		dispatchEvents = eventLog
		schedulerEvents = eventLog
	}

	queueService := queue.NewService(queueRepo, usageTracker, queueEvents, logger)

	deduplicator := dedup.New(linkRepo, cfg.Dedup.SimilarityThreshold, cfg.Dedup.MinTokenLength, logger)

	var sources []discovery.Searcher
	for _, src := range cfg.Discovery.Sources {
		sources = append(sources, discovery.NewHTTPSource(src.Name, src.URL, src.APIKey))
		logger.WithFields(map[string]interface{}{
			"source": src.Name,
			"url":    src.URL,
		}).Info("Discovery source configured")
	}
	if len(sources) == 0 {
		logger.Warn("No discovery sources configured; discovery runs will only recluster existing links")
	}
	aggregator := discovery.NewAggregator(sources, linkRepo, deduplicator, logger)

	workerClient := worker.NewClient(cfg.Worker.BaseURL)
	dispatcher := dispatch.NewDispatcher(workerClient, queueRepo, dispatchEvents, dispatch.Config{
		ProbeTimeout:   cfg.Dispatch.ProbeTimeout,
		SubmitTimeout:  cfg.Dispatch.SubmitTimeout,
		CallbackURL:    cfg.Server.PublicURL + "/api/worker/update-job-status",
		CallbackSecret: cfg.Worker.CallbackSecret,
	}, logger)

	sched := scheduler.New(queueRepo, dispatcher, usageTracker, schedulerEvents, scheduler.Config{
		DailyCap:       cfg.Limits.DailyApplications,
		MaxConcurrent:  cfg.Dispatch.MaxConcurrent,
		PollInterval:   cfg.Dispatch.PollInterval,
		SelectionBatch: cfg.Dispatch.SelectionBatch,
	}, logger)

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequestsPerSec:  cfg.Limits.APIRequestsPerSec,
		CallbackSecret:  cfg.Worker.CallbackSecret,
	}

	var eventReader api.EventReaderInterface
	if eventLog != nil {
		eventReader = eventLog
	}

	server := api.NewServer(serverConfig, queueService, deduplicator, aggregator, linkRepo, appRepo, eventReader, logger)

	// Start the scheduling loop
	schedCtx, cancelSched := context.WithCancel(context.Background())
	defer cancelSched()
	if err := sched.Start(schedCtx); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}
	logger.Info("Dispatch scheduler started")

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if err := sched.Stop(); err != nil {
		logger.WithError(err).Warn("Scheduler stop failed")
	}
	cancelSched()

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
