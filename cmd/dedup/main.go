// Package main provides a CLI tool for running a link deduplication pass.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/gildigital/aijobapply/internal/config"
	"github.com/gildigital/aijobapply/internal/dedup"
	"github.com/gildigital/aijobapply/internal/logging"
	"github.com/gildigital/aijobapply/internal/storage"
)

func main() {
	var (
		userID  = flag.Int64("user", 0, "User ID whose links should be clustered (required)")
		timeout = flag.Duration("timeout", time.Minute, "Run timeout")
	)
	flag.Parse()

	if *userID <= 0 {
		log.Fatal("-user is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	linkRepo := storage.NewLinkRepository(postgres)
	deduplicator := dedup.New(linkRepo, cfg.Dedup.SimilarityThreshold, cfg.Dedup.MinTokenLength, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := deduplicator.Run(ctx, *userID)
	if err != nil {
		logger.WithError(err).Fatal("Deduplication run failed")
	}

	logger.WithFields(map[string]interface{}{
		"userId":   *userID,
		"links":    result.Links,
		"clusters": result.Clusters,
		"demoted":  result.Demoted,
	}).Info("Deduplication run completed")
}
