package schedulerservice

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chronoplan/scheduler/internal/api"
	"github.com/chronoplan/scheduler/internal/applier"
	"github.com/chronoplan/scheduler/internal/auth"
	"github.com/chronoplan/scheduler/internal/collab"
	"github.com/chronoplan/scheduler/internal/config"
	"github.com/chronoplan/scheduler/internal/factory"
	"github.com/chronoplan/scheduler/internal/logger"
	"github.com/chronoplan/scheduler/internal/orchestrator"
	"github.com/chronoplan/scheduler/internal/recurrence"
	"github.com/chronoplan/scheduler/internal/services"
	"github.com/chronoplan/scheduler/internal/solver"
	"github.com/chronoplan/scheduler/internal/store"
)

// Run starts the scheduler HTTP service and blocks until shutdown or error.
func Run() error {
	log := logger.New("scheduler-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("solver_url", cfg.SolverURL).
		Str("calendar_url", cfg.CalendarURL).
		Msg("Scheduler service starting")

	// Cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return err
	}

	router := buildRouter(st, cfg, log)

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// buildRouter wires the domain components behind the HTTP routes.
func buildRouter(st store.Store, cfg *config.Config, log zerolog.Logger) http.Handler {
	calendar := collab.NewHTTPCalendarService(cfg.CalendarURL)
	conference := collab.NewHTTPConferenceService(cfg.ConferenceURL)

	var notifier collab.Notifier = collab.NopNotifier{}
	if cfg.NotifyURL != "" {
		notifier = collab.NewHTTPNotifier(cfg.NotifyURL, log)
	}

	gw := solver.NewGateway(st, calendar, solver.NewHTTPClient(cfg.SolverURL), log)
	ap := applier.New(calendar, conference, applier.Config{
		Workers:     cfg.ApplyWorkers,
		MaxAttempts: cfg.ApplyMaxAttempts,
		BaseBackoff: cfg.ApplyBaseBackoff,
		MaxInterval: cfg.ApplyMaxInterval,
	}, log)
	orch := orchestrator.New(st, gw, ap, notifier, orchestrator.Config{
		MaxSolveAttempts: cfg.MaxSolveAttempts,
	}, log)

	expander := recurrence.NewExpander(cfg.RecurrenceMaxOccurrences)
	svc := services.NewMeetingAssistService(st, expander)

	router := api.NewRouter(st, svc, orch, log)
	router.Use(auth.Middleware(auth.NewFromConfig(cfg), log))
	return router
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
