package store

import (
	"context"
	"time"

	"github.com/chronoplan/scheduler/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (e.g., postgres, sqlite).
type Store interface {
	MeetingAssists() MeetingAssists
	Attendees() Attendees
	PreferredTimeRanges() PreferredTimeRanges
	Invites() Invites
	Ping(ctx context.Context) error
}

// MeetingAssists persists the scheduling units. State changes go through
// TransitionState so the expected-state check and the write are one atomic
// conditional update; in-process locking is never the source of truth.
type MeetingAssists interface {
	Create(ctx context.Context, m *model.MeetingAssist) (*model.MeetingAssist, error)
	Get(ctx context.Context, meetingID string) (*model.MeetingAssist, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*model.MeetingAssist, error)

	// TransitionState moves meetingID from one of the expected states to
	// the target state, recording reason. Returns model.ErrConflict when
	// the row is not currently in any expected state, model.ErrNotFound
	// when it does not exist.
	TransitionState(ctx context.Context, meetingID string, from []model.State, to model.State, reason *string) error

	// RecordSubmission stores a fresh correlation id and bumps the attempt
	// counter in the same conditional update that moves the row to
	// SOLVING. Any previously recorded correlation id becomes permanently
	// ignorable.
	RecordSubmission(ctx context.Context, meetingID, correlationID string, from []model.State) error

	// SetLockAfter seals the meeting against further preference edits.
	SetLockAfter(ctx context.Context, meetingID string) error

	// IncrementResponded adjusts attendeeRespondedCount by delta.
	IncrementResponded(ctx context.Context, meetingID string, delta int) error

	// ListExpired returns non-terminal rows whose expireDate is before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.MeetingAssist, error)
	// ListDueForSubmit returns PREFERENCES_OPEN rows whose window starts
	// within leadTime of now.
	ListDueForSubmit(ctx context.Context, now time.Time, leadTime time.Duration, limit int) ([]*model.MeetingAssist, error)
	// ListStaleSolving returns SUBMITTED/SOLVING rows whose last
	// submission is older than wait; candidates for resubmission.
	ListStaleSolving(ctx context.Context, now time.Time, wait time.Duration, limit int) ([]*model.MeetingAssist, error)

	SoftDelete(ctx context.Context, meetingID string) error
}

type Attendees interface {
	// Create inserts the attendee and increments the parent meeting's
	// attendeeCount in the same transaction.
	Create(ctx context.Context, a *model.MeetingAssistAttendee) (*model.MeetingAssistAttendee, error)
	Get(ctx context.Context, meetingID, attendeeID string) (*model.MeetingAssistAttendee, error)
	List(ctx context.Context, meetingID string) ([]*model.MeetingAssistAttendee, error)
}

type PreferredTimeRanges interface {
	Create(ctx context.Context, r *model.MeetingAssistPreferredTimeRange) (*model.MeetingAssistPreferredTimeRange, error)
	List(ctx context.Context, meetingID string) ([]*model.MeetingAssistPreferredTimeRange, error)
	DeleteByMeeting(ctx context.Context, meetingID string) error
}

type Invites interface {
	Create(ctx context.Context, i *model.MeetingAssistInvite) (*model.MeetingAssistInvite, error)
	List(ctx context.Context, meetingID string) ([]*model.MeetingAssistInvite, error)
	// SetStatus updates an invite's response and returns the previous
	// status. A transition out of PENDING increments the meeting's
	// attendeeRespondedCount in the same transaction, so a first
	// response is counted exactly once under concurrency.
	SetStatus(ctx context.Context, meetingID, attendeeID string, status model.InviteStatus, respondedAt time.Time) (model.InviteStatus, error)
}
