// Package sweeper runs the periodic maintenance scan: expiring overdue
// meetings, promoting instances whose submission lead time has run out, and
// resubmitting solve requests that never got a callback. It races the
// callback path on purpose; the store's conditional updates settle every
// race.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/orchestrator"
	"github.com/chronoplan/scheduler/internal/store"
)

// Config controls batch size and polling cadence.
type Config struct {
	Interval         time.Duration // poll interval
	BatchSize        int           // rows per category per cycle
	SubmitLeadTime   time.Duration // auto-submit window before windowStartDate
	SolveWaitTimeout time.Duration // resubmission threshold for missing callbacks
}

// Sweeper scans the store and drives time-triggered transitions.
type Sweeper struct {
	store store.Store
	orch  *orchestrator.Orchestrator
	cfg   Config
	log   zerolog.Logger
	clock func() time.Time
}

// New constructs a Sweeper from dependencies.
func New(st store.Store, orch *orchestrator.Orchestrator, cfg Config, log zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.SubmitLeadTime <= 0 {
		cfg.SubmitLeadTime = 24 * time.Hour
	}
	if cfg.SolveWaitTimeout <= 0 {
		cfg.SolveWaitTimeout = 15 * time.Minute
	}
	return &Sweeper{store: st, orch: orch, cfg: cfg, log: log, clock: time.Now}
}

// Run starts the polling loop until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info().Int("batch", s.cfg.BatchSize).Dur("interval", s.cfg.Interval).Msg("sweeper starting")
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.ProcessOnce(ctx); err != nil {
				// Log and continue; individual rows already degrade
				// independently.
				s.log.Error().Err(err).Msg("sweep cycle failed")
			}
		}
	}
}

// ProcessOnce runs one full sweep. Exported so tests and the operator CLI
// can trigger a single pass.
func (s *Sweeper) ProcessOnce(ctx context.Context) error {
	now := s.clock()
	if err := s.expireOverdue(ctx, now); err != nil {
		return err
	}
	if err := s.promoteDue(ctx, now); err != nil {
		return err
	}
	return s.resubmitStale(ctx, now)
}

// expireOverdue transitions meetings past their expire date into Expired. A
// concurrent callback may win the terminal race; the resulting conflict is
// expected and dropped.
func (s *Sweeper) expireOverdue(ctx context.Context, now time.Time) error {
	rows, err := s.store.MeetingAssists().ListExpired(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, m := range rows {
		if err := s.orch.Expire(ctx, m.MeetingID); err != nil {
			if errors.Is(err, model.ErrConflict) {
				continue
			}
			s.log.Error().Err(err).Str("meeting_id", m.MeetingID).Msg("expire failed")
		}
	}
	return nil
}

// promoteDue submits PreferencesOpen meetings whose window lead time has
// been exhausted.
func (s *Sweeper) promoteDue(ctx context.Context, now time.Time) error {
	rows, err := s.store.MeetingAssists().ListDueForSubmit(ctx, now, s.cfg.SubmitLeadTime, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, m := range rows {
		if err := s.orch.Submit(ctx, m.MeetingID); err != nil {
			if errors.Is(err, model.ErrConflict) {
				continue
			}
			s.log.Error().Err(err).Str("meeting_id", m.MeetingID).Msg("lead-time submit failed")
		}
	}
	return nil
}

// resubmitStale re-sends solve requests whose callback never arrived within
// the wait window, issuing a fresh correlation id each time. This is the
// same path that recovers a crash between submission and acknowledgement.
func (s *Sweeper) resubmitStale(ctx context.Context, now time.Time) error {
	rows, err := s.store.MeetingAssists().ListStaleSolving(ctx, now, s.cfg.SolveWaitTimeout, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, m := range rows {
		if err := s.orch.Resubmit(ctx, m.MeetingID); err != nil {
			if errors.Is(err, model.ErrConflict) {
				continue
			}
			s.log.Warn().Err(err).Str("meeting_id", m.MeetingID).Int("attempts", m.SolveAttempts).Msg("resubmission failed")
		}
	}
	return nil
}
