package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/linker"
	"github.com/docutag/linker/db"
	"github.com/docutag/linker/models"
)

// Server represents the API server
type Server struct {
	db          *db.DB
	linker      *linker.Linker
	job         *linker.BatchJob
	registry    *prometheus.Registry
	logger      *slog.Logger
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
}

// Config contains server configuration
type Config struct {
	Addr         string
	DBConfig     db.Config
	LinkerConfig linker.Config
	Archive      linker.Archive // Optional: keeps original bodies before batch writes
	CORSEnabled  bool
	Logger       *slog.Logger
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		DBConfig:     db.DefaultConfig(),
		LinkerConfig: linker.DefaultConfig(),
		CORSEnabled:  true,
	}
}

// NewServer creates a new API server
func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Initialize database
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(database.DB(), "linker"),
	)
	metrics := linker.NewMetrics(registry)

	l := linker.New(config.LinkerConfig, database,
		linker.WithLogger(logger),
		linker.WithMetrics(metrics),
		linker.WithArticleGetter(database),
	)

	var jobOpts []linker.JobOption
	if config.Archive != nil {
		jobOpts = append(jobOpts, linker.WithArchive(config.Archive))
	}

	s := &Server{
		db:          database,
		linker:      l,
		job:         linker.NewBatchJob(database, l, jobOpts...),
		registry:    registry,
		logger:      logger,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
	}

	// Register routes
	s.registerRoutes()

	// Create HTTP server
	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      otelhttp.NewHandler(s.middleware(s.mux), "linker-api"),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // Allow time for a full batch run
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/rewrite", s.handleRewrite)
	s.mux.HandleFunc("/api/articles/", s.handleArticle) // Handles /api/articles/{id|slug}/links and .../restore
	s.mux.HandleFunc("/api/batch-runs", s.handleBatchRun)
	s.mux.HandleFunc("/api/batch-runs/last", s.handleLastBatchRun)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// DB returns the article store
func (s *Server) DB() *db.DB {
	return s.db
}

// Job returns the batch linking job
func (s *Server) Job() *linker.BatchJob {
	return s.job
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Logging (skip health checks and scrapes to reduce noise)
		quiet := r.URL.Path == "/health" || r.URL.Path == "/metrics"
		start := time.Now()

		next.ServeHTTP(w, r)

		if !quiet {
			s.logger.InfoContext(r.Context(), "request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start),
			)
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.db.CountPublished(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"published": count,
		"batch":     s.job.State().String(),
		"time":      time.Now(),
	})
}

// RewriteRequest represents an ad-hoc rewrite request
type RewriteRequest struct {
	Body      string `json:"body"`
	Title     string `json:"title"`
	ExcludeID int64  `json:"exclude_id"` // Article being edited, 0 for new content
}

// handleRewrite links a body that is not necessarily stored yet. A blank
// body comes back unchanged.
func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ExcludeID < 0 {
		respondError(w, http.StatusBadRequest, "exclude_id must not be negative")
		return
	}

	result := s.linker.RewriteDetailed(r.Context(), req.Body, req.Title, req.ExcludeID)
	respondJSON(w, http.StatusOK, result)
}

// ArticleLinksResponse is the rewrite preview of a stored article
type ArticleLinksResponse struct {
	ArticleID int64  `json:"article_id"`
	Slug      string `json:"slug"`
	models.RewriteResult
}

// handleArticle routes requests for a single stored article
func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/articles/")

	switch {
	case strings.HasSuffix(path, "/links"):
		s.handleArticleLinks(w, r, strings.TrimSuffix(path, "/links"))
	case strings.HasSuffix(path, "/restore"):
		s.handleRestoreRevision(w, r, strings.TrimSuffix(path, "/restore"))
	default:
		respondError(w, http.StatusNotFound, "not found")
	}
}

// resolveArticleID accepts a numeric ID or a slug
func (s *Server) resolveArticleID(ctx context.Context, ref string) (int64, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id <= 0 {
			return 0, errInvalidArticleID
		}
		return id, nil
	}

	if ref == "" || strings.Contains(ref, "/") {
		return 0, errInvalidArticleID
	}
	article, err := s.db.GetArticleBySlug(ctx, ref)
	if err != nil {
		return 0, err
	}
	if article == nil {
		return 0, linker.ErrArticleNotFound
	}
	return article.ID, nil
}

var errInvalidArticleID = errors.New("invalid article id")

// handleArticleLinks previews the links a stored article would receive
func (s *Server) handleArticleLinks(w http.ResponseWriter, r *http.Request, ref string) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, err := s.resolveArticleID(r.Context(), ref)
	if !s.checkArticleErr(w, err) {
		return
	}

	article, result, err := s.linker.RewriteArticle(r.Context(), id)
	if !s.checkArticleErr(w, err) {
		return
	}

	respondJSON(w, http.StatusOK, ArticleLinksResponse{
		ArticleID:     article.ID,
		Slug:          article.Slug,
		RewriteResult: result,
	})
}

// RestoreRequest names the archived revision to put back
type RestoreRequest struct {
	Key string `json:"key"` // As logged by the batch run that archived it
}

// handleRestoreRevision replaces an article body with an archived revision
func (s *Server) handleRestoreRevision(w http.ResponseWriter, r *http.Request, ref string) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" {
		respondError(w, http.StatusBadRequest, "key is required")
		return
	}

	id, err := s.resolveArticleID(r.Context(), ref)
	if !s.checkArticleErr(w, err) {
		return
	}

	article, err := s.job.Restore(r.Context(), id, req.Key)
	switch {
	case errors.Is(err, linker.ErrNoArchive):
		respondError(w, http.StatusNotImplemented, "revision archive not configured")
		return
	case errors.Is(err, linker.ErrRevisionMismatch):
		respondError(w, http.StatusBadRequest, "revision does not belong to article")
		return
	case !s.checkArticleErr(w, err):
		return
	}

	respondJSON(w, http.StatusOK, article)
}

// checkArticleErr writes the response for a failed article lookup and
// reports whether the handler may continue
func (s *Server) checkArticleErr(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, errInvalidArticleID):
		respondError(w, http.StatusBadRequest, "invalid article id")
	case errors.Is(err, linker.ErrArticleNotFound):
		respondError(w, http.StatusNotFound, "article not found")
	default:
		s.logger.Error("article request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
	}
	return false
}

// BatchRunRequest represents a batch run request
type BatchRunRequest struct {
	DryRun bool `json:"dry_run"` // Count changes without persisting them
}

// BatchRunCancelled carries the partial stats of an interrupted run
type BatchRunCancelled struct {
	Error string          `json:"error"`
	Stats models.RunStats `json:"stats"`
}

// handleBatchRun runs one batch linking sweep and returns its stats
func (s *Server) handleBatchRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req BatchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stats, err := s.job.RunWithOptions(r.Context(), linker.RunOptions{DryRun: req.DryRun})
	switch {
	case errors.Is(err, linker.ErrRunInProgress):
		respondError(w, http.StatusConflict, "batch run already in progress")
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondJSON(w, http.StatusServiceUnavailable, BatchRunCancelled{
			Error: "batch run cancelled",
			Stats: stats,
		})
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "batch run failed", "error", err)
		respondError(w, http.StatusInternalServerError, "batch run failed")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleLastBatchRun returns the stats of the most recent batch run
func (s *Server) handleLastBatchRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, ok := s.job.LastRun()
	if !ok {
		respondError(w, http.StatusNotFound, "no batch run recorded")
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
