// Package api exposes the HTTP interface for the harvester service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aitoolsdir/harvester/internal/catalog"
	"github.com/aitoolsdir/harvester/internal/harvest"
	"github.com/aitoolsdir/harvester/internal/jobs"
	"github.com/aitoolsdir/harvester/internal/metrics"
	"github.com/aitoolsdir/harvester/internal/staging"
)

// JobRunner is the slice of the orchestrator the HTTP surface needs.
type JobRunner interface {
	Submit(ctx context.Context, overrides harvest.JobOverrides) (string, error)
	Status(ctx context.Context, jobID string) (harvest.JobStatus, error)
	ReadLog(ctx context.Context, jobID string, since int64) (harvest.JobStatus, string, int64, error)
	RunSync(ctx context.Context, overrides harvest.JobOverrides) (jobs.SyncResult, error)
}

// Moderator applies bulk ingestion-status changes to the catalog.
type Moderator interface {
	SetIngestionStatus(ctx context.Context, slugs []string, status string) (int, error)
}

// RowImporter imports already-parsed staging rows into the catalog.
type RowImporter interface {
	Import(ctx context.Context, rows []staging.Row) (harvest.ImportStats, error)
}

// Server wires HTTP handlers to the orchestrator and catalog.
type Server struct {
	router    chi.Router
	runner    JobRunner
	moderator Moderator
	importer  RowImporter
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner JobRunner, moderator Moderator, importer RowImporter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		runner:    runner,
		moderator: moderator,
		importer:  importer,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(10 * time.Minute))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Post("/run", s.runSync)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/log", s.getJobLog)
			})
		})
		r.Post("/tools/status", s.moderateTools)
		r.Post("/imports", s.importCSV)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	overrides, err := decodeOverrides(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	jobID, err := s.runner.Submit(r.Context(), overrides)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	status, err := s.runner.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch job status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) getJobLog(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an integer byte offset")
			return
		}
		since = parsed
	}
	status, chunk, offset, err := s.runner.ReadLog(r.Context(), jobID, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read job log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": status.State,
		"chunk":  chunk,
		"offset": offset,
	})
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request) {
	overrides, err := decodeOverrides(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	result, err := s.runner.RunSync(r.Context(), overrides)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type moderateRequest struct {
	Slugs  []string `json:"slugs"`
	Status string   `json:"status"`
}

func (s *Server) moderateTools(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Slugs) == 0 {
		writeError(w, http.StatusBadRequest, "slugs required")
		return
	}
	if !validIngestionStatus(req.Status) {
		writeError(w, http.StatusBadRequest, "status must be one of Pending Review, Approved, Rejected")
		return
	}
	updated, err := s.moderator.SetIngestionStatus(r.Context(), req.Slugs, req.Status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update tools")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// importCSV accepts a staging CSV as the request body and runs the import
// engine over it. Header variants are resolved by the staging reader.
func (s *Server) importCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := staging.Read(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("parse csv: %v", err))
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "csv contains no data rows")
		return
	}
	stats, err := s.importer.Import(r.Context(), rows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decodeOverrides(r *http.Request) (harvest.JobOverrides, error) {
	var overrides harvest.JobOverrides
	if r.Body == nil {
		return overrides, nil
	}
	// An empty body means "run with defaults".
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		return harvest.JobOverrides{}, err
	}
	return overrides, nil
}

func validIngestionStatus(status string) bool {
	switch status {
	case catalog.StatusPendingReview, catalog.StatusApproved, catalog.StatusRejected:
		return true
	}
	return false
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode failures mean the client went away mid-write.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
