package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/pipeline"
	"github.com/snarg/scribe/internal/session"
)

// Controller is the recording context the API drives.
type Controller interface {
	Start(ctx context.Context) (session.Status, error)
	StopAndTranscribe(ctx context.Context) (*pipeline.Outcome, error)
	Discard(ctx context.Context) error
	Import(ctx context.Context, job pipeline.Job) (*pipeline.Outcome, error)
	Status() session.Status
}

// Deps are the services behind the API. History, MQTT and Backup may be nil.
type Deps struct {
	Controller Controller
	History    database.Store
	MQTT       ConnChecker
	Backup     BackupChecker
	VaultType  string
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(cfg *config.Config, deps Deps, version string, startTime time.Time, log zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(cfg.AuthToken, deps, version, startTime, log),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// NewRouter builds the route tree. Health and metrics are public; everything
// else requires the bearer token when one is configured.
func NewRouter(authToken string, deps Deps, version string, startTime time.Time, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(log))
	r.Use(CORS)
	r.Use(metrics.InstrumentHandler)

	health := NewHealthHandler(deps, version, startTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(authToken))
		r.Route("/api/v1", func(r chi.Router) {
			NewSessionHandler(deps.Controller, log).Routes(r)
			NewTranscriptionHandler(deps.Controller, log).Routes(r)
			NewNotesHandler(deps.History, log).Routes(r)
		})
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
