package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/The-Noona-Project/noona-warden/pkg/catalog"
	"github.com/The-Noona-Project/noona-warden/pkg/engine"
	"github.com/The-Noona-Project/noona-warden/pkg/history"
	"github.com/The-Noona-Project/noona-warden/pkg/install"
	"github.com/The-Noona-Project/noona-warden/pkg/log"
	"github.com/The-Noona-Project/noona-warden/pkg/metrics"
	"github.com/The-Noona-Project/noona-warden/pkg/wizard"
)

// Server is the control-plane HTTP API. It exposes the service catalog,
// installation, history and wizard endpoints as JSON over HTTP on a
// trusted internal network; there is no authentication.
type Server struct {
	catalog     *catalog.Catalog
	coordinator *install.Coordinator
	engine      *engine.Engine
	history     *history.Store
	wizard      *wizard.Service
	logger      zerolog.Logger

	srv *http.Server
}

// Options configures a Server
type Options struct {
	Catalog     *catalog.Catalog
	Coordinator *install.Coordinator
	Engine      *engine.Engine
	History     *history.Store
	Wizard      *wizard.Service
}

// NewServer creates the API server
func NewServer(opts Options) *Server {
	return &Server{
		catalog:     opts.Catalog,
		coordinator: opts.Coordinator,
		engine:      opts.Engine,
		history:     opts.History,
		wizard:      opts.Wizard,
		logger:      log.WithComponent("api"),
	}
}

// Router builds the HTTP routing tree
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)

	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/services", s.handleListServices)
		r.Post("/services/install", s.handleInstall)
		r.Get("/services/install/progress", s.handleInstallProgress)
		r.Get("/services/installation/logs", s.handleInstallationLogs)
		r.Get("/services/{name}/logs", s.handleServiceLogs)
		r.Post("/services/{name}/test", s.handleServiceTest)
		r.Get("/services/{name}/health", s.handleServiceHealth)
		r.Post("/services/noona-raven/detect", s.handleDetectMount)

		r.Route("/setup/wizard", func(r chi.Router) {
			r.Get("/metadata", s.handleWizardMetadata)
			r.Get("/state", s.handleWizardState)
			r.Put("/state", s.handleWizardPutState)
			r.Get("/steps/{step}/history", s.handleWizardStepHistory)
			r.Post("/steps/{step}/reset", s.handleWizardStepReset)
			r.Post("/steps/{step}/broadcast", s.handleWizardStepBroadcast)
			r.Post("/complete", s.handleWizardComplete)
		})
	})

	return r
}

// Start begins serving on the given address until the context is
// cancelled, then drains with a grace period
func (s *Server) Start(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // install runs answer slowly
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("control-plane API listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
