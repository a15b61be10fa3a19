// Package solver is the gateway to the external constraint solver. The
// solver is a black box reached asynchronously: this package assembles and
// submits requests and validates the out-of-band callback payloads; the
// orchestrator's state machine owns correctness.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chronoplan/scheduler/internal/collab"
	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/store"
)

// ErrSubmission marks failures to hand a request to the solver: unreachable
// service or a meeting with no feasible attendees.
var ErrSubmission = errors.New("solver submission error")

// Client submits an assembled request to the external solver.
type Client interface {
	Submit(ctx context.Context, req *model.SolveRequest) error
}

// RelaxLevel widens the constraint set on guaranteed-availability retries.
type RelaxLevel int

const (
	// RelaxNone submits the full constraint set.
	RelaxNone RelaxLevel = iota
	// RelaxAttendeeRanges drops attendee-scoped preferred ranges; host
	// defaults remain.
	RelaxAttendeeRanges
	// RelaxBuffers additionally drops buffer time.
	RelaxBuffers
)

// relaxFor maps a retry attempt (0-based) to a relaxation level. The exact
// strategy is a policy parameter, not a hard-coded algorithm; this default
// widens gradually.
func relaxFor(attempt int) RelaxLevel {
	switch {
	case attempt <= 0:
		return RelaxNone
	case attempt == 1:
		return RelaxAttendeeRanges
	default:
		return RelaxBuffers
	}
}

// Gateway serializes a meeting assist plus attendee preferences and busy
// blocks into the solver's request shape and submits it.
type Gateway struct {
	store    store.Store
	calendar collab.CalendarService
	client   Client
	log      zerolog.Logger
}

// NewGateway constructs a Gateway from dependencies.
func NewGateway(st store.Store, cal collab.CalendarService, client Client, log zerolog.Logger) *Gateway {
	return &Gateway{store: st, calendar: cal, client: client, log: log}
}

// Submit assembles and sends the solve request for meetingID, which must be
// in Submitted (first attempt) or Solving (resubmission). A fresh correlation
// id is persisted against the meeting before the network call so a crash
// between submission and acknowledgement is recoverable; the previous id
// becomes permanently ignorable. Returns the correlation id used.
func (g *Gateway) Submit(ctx context.Context, meetingID string) (string, error) {
	m, err := g.store.MeetingAssists().Get(ctx, meetingID)
	if err != nil {
		return "", err
	}
	attendees, err := g.store.Attendees().List(ctx, meetingID)
	if err != nil {
		return "", err
	}
	if len(attendees) == 0 {
		return "", fmt.Errorf("%w: meeting has no attendees", ErrSubmission)
	}
	ranges, err := g.store.PreferredTimeRanges().List(ctx, meetingID)
	if err != nil {
		return "", err
	}

	req, err := g.BuildRequest(ctx, m, attendees, ranges, relaxFor(m.SolveAttempts))
	if err != nil {
		return "", err
	}

	// Record the correlation id first; the callback handler and the crash
	// recovery sweep both key off the persisted value, never an in-process
	// one.
	if err := g.store.MeetingAssists().RecordSubmission(ctx, meetingID, req.CorrelationID,
		[]model.State{model.StateSubmitted, model.StateSolving}); err != nil {
		return "", err
	}

	if err := g.client.Submit(ctx, req); err != nil {
		return req.CorrelationID, fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	g.log.Info().
		Str("meeting_id", meetingID).
		Str("correlation_id", req.CorrelationID).
		Int("preferred_ranges", len(req.PreferredRanges)).
		Msg("solve request submitted")
	return req.CorrelationID, nil
}

// BuildRequest combines the meeting window, duration and buffer with the
// preferred ranges (host defaults apply to attendees lacking their own) and
// each attendee's busy intervals from the calendar collaborator.
func (g *Gateway) BuildRequest(ctx context.Context, m *model.MeetingAssist,
	attendees []*model.MeetingAssistAttendee,
	ranges []*model.MeetingAssistPreferredTimeRange,
	relax RelaxLevel) (*model.SolveRequest, error) {

	window := model.Interval{Start: m.WindowStartDate, End: m.WindowEndDate}

	merged := MergeRanges(attendees, ranges)
	if relax >= RelaxAttendeeRanges {
		merged = hostOnly(merged)
	}

	busy := make(map[string][]model.Interval, len(attendees))
	for _, a := range attendees {
		ivs, err := g.calendar.BusyIntervals(ctx, a.AttendeeID, window)
		if err != nil {
			return nil, fmt.Errorf("busy intervals for %s: %w", a.AttendeeID, err)
		}
		busy[a.AttendeeID] = ivs
	}

	req := &model.SolveRequest{
		CorrelationID:   uuid.New().String(),
		MeetingID:       m.MeetingID,
		Window:          window,
		DurationMinutes: m.DurationMinutes,
		BufferBefore:    m.BufferBeforeMinutes,
		BufferAfter:     m.BufferAfterMinutes,
		PreferredRanges: merged,
		BusyIntervals:   busy,
	}
	if relax >= RelaxBuffers {
		req.BufferBefore = 0
		req.BufferAfter = 0
	}
	return req, nil
}

// MergeRanges resolves the effective preferred ranges: an attendee with its
// own ranges keeps exactly those; attendees without any inherit a copy of
// the host-level defaults (AttendeeID nil).
func MergeRanges(attendees []*model.MeetingAssistAttendee, ranges []*model.MeetingAssistPreferredTimeRange) []*model.MeetingAssistPreferredTimeRange {
	var defaults []*model.MeetingAssistPreferredTimeRange
	byAttendee := make(map[string][]*model.MeetingAssistPreferredTimeRange)
	for _, r := range ranges {
		if r.AttendeeID == nil {
			defaults = append(defaults, r)
			continue
		}
		byAttendee[*r.AttendeeID] = append(byAttendee[*r.AttendeeID], r)
	}

	var out []*model.MeetingAssistPreferredTimeRange
	out = append(out, defaults...)
	for _, a := range attendees {
		own := byAttendee[a.AttendeeID]
		if len(own) > 0 {
			out = append(out, own...)
			continue
		}
		for _, d := range defaults {
			c := *d
			id := a.AttendeeID
			c.AttendeeID = &id
			out = append(out, &c)
		}
	}
	return out
}

func hostOnly(ranges []*model.MeetingAssistPreferredTimeRange) []*model.MeetingAssistPreferredTimeRange {
	var out []*model.MeetingAssistPreferredTimeRange
	for _, r := range ranges {
		if r.AttendeeID == nil {
			out = append(out, r)
		}
	}
	return out
}

// ValidateResult checks an inbound solve result against the meeting it
// claims to solve. A feasible response must cover every attendee with an
// assignment inside the original window that respects duration and buffer,
// and all assignments must share one scheduled interval since the solver
// places a single meeting, not one slot per attendee; anything less is
// malformed and rejected rather than partially applied.
func ValidateResult(m *model.MeetingAssist, attendees []*model.MeetingAssistAttendee, res *model.SolveResult) error {
	if res.Infeasible {
		return nil
	}
	if len(res.Assignments) == 0 {
		return model.Invalid("feasible result carries no assignments")
	}
	seen := make(map[string]bool, len(res.Assignments))
	dur := time.Duration(m.DurationMinutes) * time.Minute
	windowStart := m.WindowStartDate.Add(time.Duration(m.BufferBeforeMinutes) * time.Minute)
	windowEnd := m.WindowEndDate.Add(-time.Duration(m.BufferAfterMinutes) * time.Minute)
	first := res.Assignments[0]
	for _, a := range res.Assignments {
		if seen[a.AttendeeID] {
			return model.Invalid("duplicate assignment for attendee " + a.AttendeeID)
		}
		seen[a.AttendeeID] = true
		if !a.End.After(a.Start) {
			return model.Invalid("assignment interval is empty")
		}
		if a.End.Sub(a.Start) != dur {
			return model.Invalid("assignment does not match meeting duration")
		}
		if a.Start.Before(windowStart) || a.End.After(windowEnd) {
			return model.Invalid("assignment falls outside the search window")
		}
		if !a.Start.Equal(first.Start) || !a.End.Equal(first.End) {
			return model.Invalid("assignments disagree on the scheduled interval")
		}
	}
	for _, at := range attendees {
		if !seen[at.AttendeeID] {
			return model.Invalid("response missing attendee " + at.AttendeeID)
		}
	}
	return nil
}
