// Package server exposes scenario reports, cumulative history and metrics
// over HTTP.
package server

import (
	"compress/flate"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	llmr "github.com/aws-samples/llmresilience"
	"github.com/aws-samples/llmresilience/report"
)

// Server serves the report board.
type Server struct {
	board    *report.Board
	history  llmr.RunStore
	gatherer prometheus.Gatherer
	logger   *zap.SugaredLogger
}

// New creates a server. A nil gatherer serves the default registry.
func New(board *report.Board, history llmr.RunStore, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{board: board, history: history, gatherer: gatherer, logger: logger}
}

// Router returns a chi router with endpoints registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(Logger(s.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(flate.DefaultCompression))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	r.Use(c.Handler)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{DisableCompression: true}))

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/reports", s.listReports)
		r.Get("/reports/{scenario}", s.getReport)
		r.Get("/history/{scenario}", s.getHistory)
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, code int, msg string) {
	render.Status(r, code)
	render.JSON(w, r, errorResponse{Error: msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.board.All())
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	scenario := chi.URLParam(r, "scenario")
	e, ok := s.board.Latest(scenario)
	if !ok {
		s.fail(w, r, http.StatusNotFound, "no report for scenario "+scenario)
		return
	}
	render.JSON(w, r, e)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.fail(w, r, http.StatusNotFound, "history is disabled")
		return
	}
	scenario := chi.URLParam(r, "scenario")
	t, err := s.history.Totals(r.Context(), scenario)
	if err != nil {
		s.logger.Errorf("%+v", err)
		s.fail(w, r, http.StatusInternalServerError, "failed to load history")
		return
	}
	render.JSON(w, r, t)
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Infof("report server listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
