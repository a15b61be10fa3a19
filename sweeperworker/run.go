package sweeperworker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/chronoplan/scheduler/internal/applier"
	"github.com/chronoplan/scheduler/internal/collab"
	"github.com/chronoplan/scheduler/internal/config"
	"github.com/chronoplan/scheduler/internal/factory"
	"github.com/chronoplan/scheduler/internal/orchestrator"
	"github.com/chronoplan/scheduler/internal/solver"
	"github.com/chronoplan/scheduler/internal/sweeper"
)

// Run starts the sweeper worker and blocks until shutdown or error.
//
// The worker expires overdue meetings, auto-submits meetings whose lead
// time has arrived, and resubmits requests whose solver callback never
// came. It shares the HTTP service's store and orchestrator wiring so a
// sweep takes the same paths a live request would.
func Run() error {
	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := factory.NewStore(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("store")
	}

	calendar := collab.NewHTTPCalendarService(cfg.CalendarURL)
	conference := collab.NewHTTPConferenceService(cfg.ConferenceURL)

	var notifier collab.Notifier = collab.NopNotifier{}
	if cfg.NotifyURL != "" {
		notifier = collab.NewHTTPNotifier(cfg.NotifyURL, log.Logger)
	}

	gw := solver.NewGateway(st, calendar, solver.NewHTTPClient(cfg.SolverURL), log.Logger)
	ap := applier.New(calendar, conference, applier.Config{
		Workers:     cfg.ApplyWorkers,
		MaxAttempts: cfg.ApplyMaxAttempts,
		BaseBackoff: cfg.ApplyBaseBackoff,
		MaxInterval: cfg.ApplyMaxInterval,
	}, log.Logger)
	orch := orchestrator.New(st, gw, ap, notifier, orchestrator.Config{
		MaxSolveAttempts: cfg.MaxSolveAttempts,
	}, log.Logger)

	sw := sweeper.New(st, orch, sweeper.Config{
		Interval:         cfg.SweepInterval,
		BatchSize:        cfg.SweepBatchSize,
		SubmitLeadTime:   cfg.SubmitLeadTime,
		SolveWaitTimeout: cfg.SolveWaitTimeout,
	}, log.Logger)

	if err := sw.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("sweeper worker exit")
		return err
	}
	return nil
}
