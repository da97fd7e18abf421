/**
 * Prospect Scan Worker - Main Entry Point
 *
 * Turns batches of social-network screenshots into scored prospects.
 *
 * Architecture:
 * - HTTP API (gin) for submission, status polling, health and metrics
 * - Asynq consumer for the Redis-backed scan queue
 * - Nine-stage pipeline: recognition, parsing, four enrichment passes,
 *   scoring and persistence
 * - Redis status store (with PostgreSQL mirror when a database is configured)
 * - PostgreSQL result store and optional Qdrant prospect index
 */

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/adverant/nexus/prospect-worker/internal/api"
	"github.com/adverant/nexus/prospect-worker/internal/config"
	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/metrics"
	"github.com/adverant/nexus/prospect-worker/internal/pipeline"
	"github.com/adverant/nexus/prospect-worker/internal/queue"
	"github.com/adverant/nexus/prospect-worker/internal/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.NewLogger("ProspectWorker")
	logger.Info("Prospect worker starting",
		"redis", redisHost(cfg.RedisURL),
		"postgres", cfg.DatabaseURL != "",
		"qdrant", cfg.QdrantURL,
		"workers", cfg.WorkerConcurrency,
		"recognitionConcurrency", cfg.RecognitionConcurrency,
	)

	lex, err := pipeline.LoadLexicon(cfg.LexiconPath)
	if err != nil {
		log.Fatalf("Failed to load lexicon: %v", err)
	}

	m := metrics.New()

	// Status store (Redis, mirrored to PostgreSQL when available)
	redisStatus, err := storage.NewRedisStatusStore(cfg.RedisURL, time.Duration(cfg.StatusTTLSeconds)*time.Second)
	if err != nil {
		log.Fatalf("Failed to initialize status store: %v", err)
	}
	defer redisStatus.Close()

	storageManager, err := storage.NewStorageManager(cfg.DatabaseURL, cfg.QdrantURL, cfg.QdrantCollection)
	if err != nil {
		log.Fatalf("Failed to initialize storage manager: %v", err)
	}

	statusLogger := logger.With("StatusMirror")
	statuses := storage.NewMirroredStatusStore(redisStatus, storageManager.StatusMirror(), func(scanID string, err error) {
		statusLogger.Warn("Failed to mirror scan status", "scanId", scanID, "error", err)
	})

	orchestrator, err := pipeline.Build(pipeline.Options{
		Lexicon:                lex,
		Recognizer:             pipeline.NewRecognizer(cfg.RecognitionURL, cfg.TesseractLanguages),
		Statuses:               statuses,
		Results:                storageManager,
		RecognitionConcurrency: cfg.RecognitionConcurrency,
		MinConfidence:          cfg.MinConfidence,
		MaxSliceHeight:         cfg.MaxSliceHeight,
		SliceOverlap:           cfg.SliceOverlap,
		Metrics:                m,
		Logger:                 logger,
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	// Queue
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.RedisURL,
		QueueName:   cfg.QueueName,
		Concurrency: cfg.WorkerConcurrency,
		Submitter:   orchestrator,
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	producer, err := queue.NewProducer(cfg.RedisURL, cfg.QueueName)
	if err != nil {
		log.Fatalf("Failed to initialize queue producer: %v", err)
	}
	defer producer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	// HTTP
	apiConfig := api.Config{
		Scans:   orchestrator,
		Queue:   producer,
		Metrics: m,
		Checks: map[string]api.HealthCheck{
			"redis":   redisStatus.Ping,
			"storage": storageManager.Ping,
		},
		Stats: map[string]api.StatsSource{
			"storage": storageManager.GetStats,
			"queue": func(ctx context.Context) (map[string]interface{}, error) {
				return consumer.GetStatistics(), nil
			},
		},
		Logger: logger.With("API"),
	}
	if index := storageManager.Index(); index != nil {
		apiConfig.Similar = index
	}
	router, err := api.NewRouter(apiConfig)
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Printf("===========================================")
	log.Printf("Prospect Worker is READY")
	log.Printf("===========================================")
	log.Printf("HTTP: %s", cfg.HTTPAddr)
	log.Printf("Queue: %s (workers=%d)", cfg.QueueName, cfg.WorkerConcurrency)
	log.Printf("Recognition: %d parallel, min confidence %.2f", cfg.RecognitionConcurrency, cfg.MinConfidence)
	log.Printf("===========================================")

	<-ctx.Done()
	log.Printf("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}
	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}
	if err := storageManager.Close(); err != nil {
		log.Printf("Error closing storage manager: %v", err)
	}

	log.Printf("Shutdown complete")
}

// redisHost strips credentials, path and query from a Redis URL for logging
func redisHost(redisURL string) string {
	u, err := url.Parse(redisURL)
	if err != nil || u.Host == "" {
		return "unparseable"
	}
	return u.Host
}
