// Package orchestrator owns the per-meeting state machine: it receives
// solver callbacks, validates and de-duplicates them, evaluates the
// cancellation/threshold policy and drives application of the result. Every
// transition is a conditional update in the store; a transition that finds a
// mismatched current state is abandoned without side effects.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chronoplan/scheduler/internal/collab"
	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/solver"
	"github.com/chronoplan/scheduler/internal/store"
)

// Gateway submits meetings to the external solver.
type Gateway interface {
	Submit(ctx context.Context, meetingID string) (string, error)
}

// Applier writes solved slots to attendee calendars.
type Applier interface {
	Apply(ctx context.Context, m *model.MeetingAssist, attendees []*model.MeetingAssistAttendee, slot model.Interval) []model.PerAttendeeResult
	Rollback(ctx context.Context, results []model.PerAttendeeResult)
}

// Config carries the orchestration policy knobs.
type Config struct {
	// MaxSolveAttempts bounds submissions per meeting, including
	// guaranteed-availability relaxation retries and crash-recovery
	// resubmissions.
	MaxSolveAttempts int
}

// Orchestrator drives a MeetingAssist through its lifecycle.
type Orchestrator struct {
	store    store.Store
	gateway  Gateway
	applier  Applier
	notifier collab.Notifier
	cfg      Config
	log      zerolog.Logger
}

// New constructs an Orchestrator from dependencies.
func New(st store.Store, gw Gateway, ap Applier, n collab.Notifier, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.MaxSolveAttempts <= 0 {
		cfg.MaxSolveAttempts = 3
	}
	if n == nil {
		n = collab.NopNotifier{}
	}
	return &Orchestrator{store: st, gateway: gw, applier: ap, notifier: n, cfg: cfg, log: log}
}

// CompleteIntake moves a meeting from Created to PreferencesOpen once
// attendees and at least one host-level preferred range are recorded.
func (o *Orchestrator) CompleteIntake(ctx context.Context, meetingID string) error {
	attendees, err := o.store.Attendees().List(ctx, meetingID)
	if err != nil {
		return err
	}
	if len(attendees) == 0 {
		return model.Invalid("intake requires at least one attendee")
	}
	ranges, err := o.store.PreferredTimeRanges().List(ctx, meetingID)
	if err != nil {
		return err
	}
	hasHostRange := false
	for _, r := range ranges {
		if r.AttendeeID == nil {
			hasHostRange = true
			break
		}
	}
	if !hasHostRange {
		return model.Invalid("intake requires the host's preferred ranges")
	}
	return o.store.MeetingAssists().TransitionState(ctx, meetingID,
		[]model.State{model.StateCreated}, model.StatePreferencesOpen, nil)
}

// Submit seals the meeting against preference edits and hands it to the
// solver gateway. The threshold policy is re-checked here since responses
// may have changed since intake. The caller returns as soon as the request
// is accepted; Solving→Solved happens later on the callback path.
func (o *Orchestrator) Submit(ctx context.Context, meetingID string) error {
	m, err := o.store.MeetingAssists().Get(ctx, meetingID)
	if err != nil {
		return err
	}
	invites, err := o.store.Invites().List(ctx, meetingID)
	if err != nil {
		return err
	}
	if d := EvaluatePolicy(m, invites); d.Cancel {
		return o.cancel(ctx, m, []model.State{model.StatePreferencesOpen}, d.Reason)
	}

	if err := o.store.MeetingAssists().TransitionState(ctx, meetingID,
		[]model.State{model.StatePreferencesOpen}, model.StateSubmitted, nil); err != nil {
		return err
	}
	return o.submitToSolver(ctx, meetingID)
}

// Lock sets lockAfter on the meeting and submits it for solving. Setting
// lockAfter is the host's explicit "no more preference edits" signal, so it
// drives the same PreferencesOpen→Submitted transition an explicit submit
// would.
func (o *Orchestrator) Lock(ctx context.Context, meetingID string) error {
	m, err := o.store.MeetingAssists().Get(ctx, meetingID)
	if err != nil {
		return err
	}
	// sealing a meeting that never opened for preferences would strand it
	if m.State != model.StatePreferencesOpen {
		return model.ErrConflict
	}
	if err := o.store.MeetingAssists().SetLockAfter(ctx, meetingID); err != nil {
		return err
	}
	return o.Submit(ctx, meetingID)
}

// Resubmit re-sends a Submitted/Solving meeting with a fresh correlation id;
// used by the sweeper for crash recovery and callback timeouts. The old
// correlation id becomes permanently ignorable.
func (o *Orchestrator) Resubmit(ctx context.Context, meetingID string) error {
	m, err := o.store.MeetingAssists().Get(ctx, meetingID)
	if err != nil {
		return err
	}
	if m.SolveAttempts >= o.cfg.MaxSolveAttempts {
		reason := fmt.Sprintf("no solver callback after %d attempts", m.SolveAttempts)
		return o.store.MeetingAssists().TransitionState(ctx, meetingID,
			[]model.State{model.StateSubmitted, model.StateSolving}, model.StateFailed, &reason)
	}
	return o.submitToSolver(ctx, meetingID)
}

func (o *Orchestrator) submitToSolver(ctx context.Context, meetingID string) error {
	_, err := o.gateway.Submit(ctx, meetingID)
	if err == nil {
		return nil
	}
	m, getErr := o.store.MeetingAssists().Get(ctx, meetingID)
	if getErr != nil {
		return errors.Join(err, getErr)
	}
	if m.SolveAttempts >= o.cfg.MaxSolveAttempts {
		reason := fmt.Sprintf("solver submission failed after %d attempts: %v", m.SolveAttempts, err)
		if tErr := o.store.MeetingAssists().TransitionState(ctx, meetingID,
			[]model.State{model.StateSubmitted, model.StateSolving}, model.StateFailed, &reason); tErr != nil && !errors.Is(tErr, model.ErrConflict) {
			return errors.Join(err, tErr)
		}
		o.log.Error().Err(err).Str("meeting_id", meetingID).Msg("solver submission attempts exhausted")
		return err
	}
	// Leave the row in Submitted/Solving; the sweeper resubmits once the
	// wait window elapses.
	o.log.Warn().Err(err).Str("meeting_id", meetingID).Int("attempts", m.SolveAttempts).Msg("solver submission failed, will retry")
	return err
}

// HandleCallback processes an inbound solve result. Processing is keyed by
// correlation id: an unknown id is rejected, an id whose meeting is already
// past Solving is acknowledged and discarded, and only the first matching
// callback drives the Solved/Applied path.
func (o *Orchestrator) HandleCallback(ctx context.Context, res *model.SolveResult) error {
	if res.CorrelationID == "" {
		return model.Invalid("callback missing correlationId")
	}
	m, err := o.store.MeetingAssists().GetByCorrelationID(ctx, res.CorrelationID)
	if errors.Is(err, model.ErrNotFound) {
		o.log.Warn().Str("correlation_id", res.CorrelationID).Msg("callback with unknown correlation id rejected")
		return model.ErrUnknownCorrelation
	}
	if err != nil {
		return err
	}
	if m.State != model.StateSolving {
		o.log.Info().
			Str("meeting_id", m.MeetingID).
			Str("correlation_id", res.CorrelationID).
			Str("state", string(m.State)).
			Msg("stale or duplicate callback discarded")
		return model.ErrStaleCallback
	}

	if res.Infeasible {
		return o.handleInfeasible(ctx, m, res)
	}

	attendees, err := o.store.Attendees().List(ctx, m.MeetingID)
	if err != nil {
		return err
	}
	if err := solver.ValidateResult(m, attendees, res); err != nil {
		o.log.Warn().Err(err).Str("meeting_id", m.MeetingID).Msg("malformed solve result rejected")
		return err
	}

	if err := o.store.MeetingAssists().TransitionState(ctx, m.MeetingID,
		[]model.State{model.StateSolving}, model.StateSolved, nil); err != nil {
		if errors.Is(err, model.ErrConflict) {
			// lost the race against the sweeper or a duplicate callback
			return model.ErrStaleCallback
		}
		return err
	}
	o.log.Info().Str("meeting_id", m.MeetingID).Str("correlation_id", res.CorrelationID).Msg("meeting solved")

	slot := model.Interval{Start: res.Assignments[0].Start, End: res.Assignments[0].End}
	return o.ApplyResult(ctx, m.MeetingID, slot)
}

func (o *Orchestrator) handleInfeasible(ctx context.Context, m *model.MeetingAssist, res *model.SolveResult) error {
	reason := "solver reported no feasible slot"
	if res.Reason != nil {
		reason = *res.Reason
	}
	if !m.GuaranteeAvailability {
		return o.cancel(ctx, m, []model.State{model.StateSolving}, reason)
	}
	if m.SolveAttempts >= o.cfg.MaxSolveAttempts {
		full := fmt.Sprintf("infeasible after %d relaxed attempts: %s", m.SolveAttempts, reason)
		return o.store.MeetingAssists().TransitionState(ctx, m.MeetingID,
			[]model.State{model.StateSolving}, model.StateFailed, &full)
	}
	o.log.Info().
		Str("meeting_id", m.MeetingID).
		Int("attempts", m.SolveAttempts).
		Msg("infeasible with guaranteed availability, resubmitting with relaxed constraints")
	return o.submitToSolver(ctx, m.MeetingID)
}

// ApplyResult drives Solved→Applying→Applied. The threshold policy is
// re-checked at the moment of application; a breach cancels instead.
func (o *Orchestrator) ApplyResult(ctx context.Context, meetingID string, slot model.Interval) error {
	m, err := o.store.MeetingAssists().Get(ctx, meetingID)
	if err != nil {
		return err
	}
	invites, err := o.store.Invites().List(ctx, meetingID)
	if err != nil {
		return err
	}
	if d := EvaluatePolicy(m, invites); d.Cancel {
		return o.cancel(ctx, m, []model.State{model.StateSolved}, d.Reason)
	}

	if err := o.store.MeetingAssists().TransitionState(ctx, meetingID,
		[]model.State{model.StateSolved}, model.StateApplying, nil); err != nil {
		return err
	}

	attendees, err := o.store.Attendees().List(ctx, meetingID)
	if err != nil {
		return err
	}
	results := o.applier.Apply(ctx, m, attendees, slot)

	succeeded := 0
	hostOK := true // a meeting of purely external attendees has no host row
	for i, r := range results {
		if isHost(m, attendees[i]) && r.Outcome != model.ApplySucceeded {
			hostOK = false
		}
		if r.Outcome == model.ApplySucceeded {
			succeeded++
		}
	}

	thresholdBreached := m.MinThresholdCount > 0 && succeeded < m.MinThresholdCount
	if !hostOK || thresholdBreached {
		o.applier.Rollback(ctx, results)
		reason := "calendar application failed for the host"
		if thresholdBreached {
			reason = "calendar application left successes below minimum threshold"
		}
		if err := o.store.MeetingAssists().TransitionState(ctx, meetingID,
			[]model.State{model.StateApplying}, model.StateFailed, &reason); err != nil {
			return err
		}
		o.notifier.Notify(ctx, model.NotifyMeetingCancelled, notifyPayload(m, results))
		return fmt.Errorf("application failed: %s", reason)
	}

	if err := o.store.MeetingAssists().TransitionState(ctx, meetingID,
		[]model.State{model.StateApplying}, model.StateApplied, nil); err != nil {
		if errors.Is(err, model.ErrConflict) {
			// The sweeper expired the meeting while events were being
			// written. The expiry won, so compensate the writes.
			o.log.Warn().Str("meeting_id", meetingID).Msg("meeting expired during application, compensating calendar writes")
			o.applier.Rollback(ctx, results)
		}
		return err
	}
	o.log.Info().
		Str("meeting_id", meetingID).
		Int("attendees", len(attendees)).
		Int("succeeded", succeeded).
		Msg("meeting applied")
	o.notifier.Notify(ctx, model.NotifyMeetingApplied, notifyPayload(m, results))
	return nil
}

// Expire moves an overdue meeting into the terminal Expired state. Safe to
// race with a late callback: whichever transition commits first wins and the
// loser is rejected by the state guard.
func (o *Orchestrator) Expire(ctx context.Context, meetingID string) error {
	reason := "expire date passed before scheduling completed"
	err := o.store.MeetingAssists().TransitionState(ctx, meetingID,
		[]model.State{model.StateCreated, model.StatePreferencesOpen, model.StateSubmitted,
			model.StateSolving, model.StateSolved, model.StateApplying},
		model.StateExpired, &reason)
	if err != nil {
		return err
	}
	o.log.Info().Str("meeting_id", meetingID).Msg("meeting expired")
	o.notifier.Notify(ctx, model.NotifyMeetingExpired, map[string]interface{}{"meetingId": meetingID})
	return nil
}

// Cancel cancels a meeting explicitly from any non-terminal state.
func (o *Orchestrator) Cancel(ctx context.Context, meetingID, reason string) error {
	m, err := o.store.MeetingAssists().Get(ctx, meetingID)
	if err != nil {
		return err
	}
	return o.cancel(ctx, m, []model.State{model.StateCreated, model.StatePreferencesOpen,
		model.StateSubmitted, model.StateSolving, model.StateSolved, model.StateApplying}, reason)
}

func (o *Orchestrator) cancel(ctx context.Context, m *model.MeetingAssist, from []model.State, reason string) error {
	if err := o.store.MeetingAssists().TransitionState(ctx, m.MeetingID, from, model.StateCancelled, &reason); err != nil {
		return err
	}
	o.log.Info().Str("meeting_id", m.MeetingID).Str("reason", reason).Msg("meeting cancelled")
	o.notifier.Notify(ctx, model.NotifyMeetingCancelled, map[string]interface{}{
		"meetingId": m.MeetingID,
		"reason":    reason,
	})
	return nil
}

func isHost(m *model.MeetingAssist, a *model.MeetingAssistAttendee) bool {
	return a.UserID != nil && *a.UserID == m.HostID
}

func notifyPayload(m *model.MeetingAssist, results []model.PerAttendeeResult) map[string]interface{} {
	return map[string]interface{}{
		"meetingId": m.MeetingID,
		"results":   results,
	}
}
