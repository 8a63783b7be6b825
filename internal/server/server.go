// Package server exposes the research pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/corvuslabs/spyglass/internal/metrics"
	"github.com/corvuslabs/spyglass/internal/research"
)

type Server struct {
	log    *slog.Logger
	cfg    Config
	router chi.Router
	http   *http.Server
}

// New creates the HTTP API server. It owns no research logic: it
// validates request shape, calls the pipeline, and renders JSON.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{log: cfg.Logger, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}
	r.Use(s.requestLogger)

	r.Post("/api/research", s.handleResearch)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	s.router = r
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}
	}()

	s.log.Info("server: http api listening", "listenAddr", s.cfg.ListenAddr)

	select {
	case <-ctx.Done():
		s.log.Info("server: stopping", "reason", ctx.Err())
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	case err := <-serveErrCh:
		return err
	}
}

// ResearchRequest is the incoming request body.
type ResearchRequest struct {
	Question string `json:"question"`
}

// ResearchResponse is the successful response body.
type ResearchResponse struct {
	Answer     string   `json:"answer"`
	DurationMS int64    `json:"duration_ms"`
	Sources    []string `json:"sources,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	answer, err := s.cfg.Pipeline.Run(r.Context(), research.Request{Question: req.Question})
	if err != nil {
		if errors.Is(err, research.ErrEmptyQuestion) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("server: research request failed", "error", err)
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("research failed: %v", err))
		return
	}

	sources := make([]string, 0, len(answer.Sources))
	for _, src := range answer.Sources {
		sources = append(sources, src.URL)
	}

	s.writeJSON(w, http.StatusOK, ResearchResponse{
		Answer:     answer.Text,
		DurationMS: answer.Duration.Milliseconds(),
		Sources:    sources,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("server: failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// requestLogger logs each request and feeds the HTTP metrics.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, fmt.Sprintf("%d", wrapped.Status())).Inc()
		metrics.HTTPRequestDuration.Observe(duration.Seconds())

		s.log.Debug("server: request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"duration", duration,
		)
	})
}
