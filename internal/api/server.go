/**
 * HTTP surface of the prospect scan worker
 *
 * POST /api/scans               submit screenshots (queued, or ?wait=true to run inline)
 * GET  /api/scans/:id/status    poll a scan
 * GET  /api/prospects/similar   prospects resembling ?text= (when an index is configured)
 * GET  /api/stats               backend statistics
 * GET  /health                  liveness plus dependency checks
 * GET  /metrics                 Prometheus exposition
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/adverant/nexus/prospect-worker/internal/errors"
	"github.com/adverant/nexus/prospect-worker/internal/logging"
	"github.com/adverant/nexus/prospect-worker/internal/metrics"
	"github.com/adverant/nexus/prospect-worker/internal/model"
	"github.com/adverant/nexus/prospect-worker/internal/processor"
	"github.com/adverant/nexus/prospect-worker/internal/queue"
	"github.com/adverant/nexus/prospect-worker/internal/storage"
)

const (
	DefaultMaxImages    = 50
	defaultMaxImageSize = 20 << 20
)

// Scans is the orchestrator surface the API drives
type Scans interface {
	MarkQueued(ctx context.Context, scanID string) error
	SubmitScan(ctx context.Context, scanID string, images []model.RawImage) (*processor.ScanOutcome, error)
	PollStatus(ctx context.Context, scanID string) (*processor.StatusView, error)
}

// HealthCheck reports a dependency problem
type HealthCheck func(ctx context.Context) error

// StatsSource contributes a section to GET /api/stats
type StatsSource func(ctx context.Context) (map[string]interface{}, error)

// SimilarProspects searches previously scored prospects
type SimilarProspects interface {
	SearchSimilar(ctx context.Context, text string, limit int) ([]*storage.SimilarProspect, error)
}

// Config holds server dependencies. Queue may be nil, in which case only
// synchronous submission is available.
type Config struct {
	Scans     Scans
	Queue     queue.Enqueuer
	Metrics   *metrics.Metrics
	Checks    map[string]HealthCheck
	Stats     map[string]StatsSource
	Similar   SimilarProspects // optional
	MaxImages int
	Logger    *logging.Logger
}

// Server holds the handlers
type Server struct {
	scans     Scans
	queue     queue.Enqueuer
	checks    map[string]HealthCheck
	stats     map[string]StatsSource
	similar   SimilarProspects
	maxImages int
	logger    *logging.Logger
}

// NewRouter builds the gin engine
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.Scans == nil {
		return nil, fmt.Errorf("scans is required")
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = DefaultMaxImages
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("API")
	}

	s := &Server{
		scans:     cfg.Scans,
		queue:     cfg.Queue,
		checks:    cfg.Checks,
		stats:     cfg.Stats,
		similar:   cfg.Similar,
		maxImages: cfg.MaxImages,
		logger:    cfg.Logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(cfg.Logger))

	r.GET("/health", s.health)
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	scans := r.Group("/api/scans")
	scans.POST("", s.submitScan)
	scans.GET("/:id/status", s.pollStatus)

	r.GET("/api/prospects/similar", s.similarProspects)
	r.GET("/api/stats", s.statsHandler)

	return r, nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func accessLog(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"requestId", c.GetString(requestIDKey),
		)
	}
}

// submitScan accepts a JSON body shaped like the queue payload, or a
// multipart form with one or more "images" files.
func (s *Server) submitScan(c *gin.Context) {
	payload, err := s.readPayload(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(payload.Images) == 0 {
		badRequest(c, "at least one image is required")
		return
	}
	if len(payload.Images) > s.maxImages {
		badRequest(c, fmt.Sprintf("too many images: %d (max %d)", len(payload.Images), s.maxImages))
		return
	}
	if payload.ScanID == "" {
		payload.ScanID = uuid.NewString()
	}
	for i := range payload.Images {
		if payload.Images[i].ID == "" {
			payload.Images[i].ID = fmt.Sprintf("%s-%d", payload.ScanID, i)
		}
	}

	ctx := c.Request.Context()
	wait, _ := strconv.ParseBool(c.Query("wait"))

	if wait {
		outcome, err := s.scans.SubmitScan(ctx, payload.ScanID, payload.RawImages())
		switch {
		case outcome == nil && apperrors.HasCode(err, apperrors.ErrorInvalidRequest):
			badRequest(c, err.Error())
		case outcome == nil:
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
		case err != nil:
			respondError(c, http.StatusUnprocessableEntity, "SCAN_FAILED", outcome.Error, outcome)
		default:
			respond(c, http.StatusOK, outcome)
		}
		return
	}

	if s.queue == nil {
		respondError(c, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "asynchronous submission is not configured; use ?wait=true", nil)
		return
	}

	if err := s.scans.MarkQueued(ctx, payload.ScanID); err != nil {
		s.logger.Warn("Failed to record queued status", "scanId", payload.ScanID, "error", err)
	}
	if err := s.queue.Enqueue(ctx, payload.ScanID, payload.RawImages()); err != nil {
		s.logger.Error("Failed to enqueue scan", "scanId", payload.ScanID, "error", err)
		respondError(c, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "failed to enqueue scan", nil)
		return
	}

	respond(c, http.StatusAccepted, gin.H{
		"scanId":    payload.ScanID,
		"status":    processor.StatusQueued,
		"images":    len(payload.Images),
		"statusUrl": "/api/scans/" + payload.ScanID + "/status",
	})
}

func (s *Server) readPayload(c *gin.Context) (*queue.ScanPayload, error) {
	if c.ContentType() != "multipart/form-data" {
		var payload queue.ScanPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
		return &payload, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	payload := &queue.ScanPayload{ScanID: c.PostForm("scanId")}
	for _, fh := range form.File["images"] {
		if fh.Size > defaultMaxImageSize {
			return nil, fmt.Errorf("image %s exceeds %d bytes", fh.Filename, defaultMaxImageSize)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
		}
		payload.Images = append(payload.Images, queue.ImagePayload{Filename: fh.Filename, Data: data})
	}
	return payload, nil
}

func (s *Server) pollStatus(c *gin.Context) {
	scanID := c.Param("id")
	view, err := s.scans.PollStatus(c.Request.Context(), scanID)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(c, http.StatusNotFound, "SCAN_NOT_FOUND", fmt.Sprintf("scan %s not found", scanID), nil)
		return
	}
	if err != nil {
		s.logger.Error("Failed to read scan status", "scanId", scanID, "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to read scan status", nil)
		return
	}
	respond(c, http.StatusOK, view)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

func (s *Server) similarProspects(c *gin.Context) {
	if s.similar == nil {
		respondError(c, http.StatusServiceUnavailable, "INDEX_UNAVAILABLE", "prospect index is not configured", nil)
		return
	}
	text := c.Query("text")
	if text == "" {
		badRequest(c, "text is required")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 1 || limit > 100 {
		badRequest(c, "limit must be between 1 and 100")
		return
	}

	hits, err := s.similar.SearchSimilar(c.Request.Context(), text, limit)
	if err != nil {
		s.logger.Error("Prospect search failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "prospect search failed", nil)
		return
	}
	respond(c, http.StatusOK, gin.H{"prospects": hits, "count": len(hits)})
}

func (s *Server) statsHandler(c *gin.Context) {
	out := make(map[string]interface{}, len(s.stats))
	for name, source := range s.stats {
		section, err := source(c.Request.Context())
		if err != nil {
			s.logger.Warn("Stats source failed", "source", name, "error", err)
			out[name] = gin.H{"error": err.Error()}
			continue
		}
		out[name] = section
	}
	respond(c, http.StatusOK, out)
}
