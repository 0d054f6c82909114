// Package server exposes the classifier endpoint consumed by the sync.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sheetsync/internal/metrics"
	"sheetsync/internal/parser"
)

// Asker answers a free-text query given the current time.
type Asker interface {
	Ask(ctx context.Context, query string, now time.Time) (string, error)
}

type Server struct {
	asker  Asker
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func New(asker Asker, loc *time.Location, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{asker: asker, loc: loc, now: time.Now, logger: logger}
}

// Router mounts /process/, /healthz and /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/process", s.handleProcess)
	r.Post("/process/", s.handleProcess)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&in); err != nil || strings.TrimSpace(in.Text) == "" {
		metrics.ProcessRequests.WithLabelValues("bad_request").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	now := s.now().In(s.loc)
	answer, err := s.asker.Ask(r.Context(), in.Text, now)
	if err != nil {
		metrics.ProcessRequests.WithLabelValues("upstream_error").Inc()
		s.logger.Error("ask failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "classification unavailable"})
		return
	}
	result, err := parser.ParseAnswer(answer, now)
	if err != nil {
		metrics.ProcessRequests.WithLabelValues("unparsed").Inc()
		s.logger.Warn("answer not understood", "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	metrics.ProcessRequests.WithLabelValues(result[0].(string)).Inc()
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
