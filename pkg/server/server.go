package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/config"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/importer"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/metrics"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/uptime"
)

// Deps groups what the handlers need.
type Deps struct {
	Project      config.ProjectConfig
	Store        *store.Store
	Importer     *importer.Importer
	Prober       *uptime.Prober
	Metrics      *metrics.Metrics
	Log          *zap.Logger
	MaxBodyBytes int64
}

// Server provides the HTTP API.
type Server struct {
	Deps
	port    int
	handler http.Handler
}

// New creates a new HTTP server.
func New(d Deps, port int) *Server {
	if port == 0 {
		port = 8000
	}
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 64 << 20
	}
	d.Log = d.Log.Named("http")
	s := &Server{Deps: d, port: port}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/", s.handleInfo)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Route("/import", func(r chi.Router) {
		r.Put("/pipelines", s.handleImportPipelines)
		r.Put("/issue_stats", s.handleImportIssueStats)
	})

	r.Get("/uptime", s.handleUptime)
	r.Get("/uptime/{limit}", s.handleUptime)

	r.Get("/pipelines", s.handleListSummaries)
	r.Get("/pipelines/{id}", s.handleGetSummary)
	r.Delete("/pipelines/{id}", s.handleDeleteSummary)

	r.Get("/workflows", s.handleListWorkflows)
	r.Get("/workflows/{id}", s.handleGetWorkflow)
	r.Delete("/workflows/{id}", s.handleDeleteWorkflow)

	r.Get("/releases/{tag_sha}", s.handleGetRelease)
	r.Delete("/releases/{tag_sha}", s.handleDeleteRelease)

	r.Get("/topics", s.handleListTopics)
	r.Delete("/topics/{id}", s.handleDeleteTopic)

	return r
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":        s.Project.Name,
		"version":     s.Project.Version,
		"description": s.Project.Description,
	})
}
