package services

import (
	"context"
	"time"

	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/recurrence"
	"github.com/chronoplan/scheduler/internal/store"
)

// MeetingAssistService orchestrates intake use cases: creating meetings,
// adding attendees and preferences, recording invite responses, and
// expanding recurrence templates. State-machine transitions live in the
// orchestrator; this layer enforces the mutation rules around them.
type MeetingAssistService struct {
	store    store.Store
	expander *recurrence.Expander
}

func NewMeetingAssistService(s store.Store, expander *recurrence.Expander) *MeetingAssistService {
	if expander == nil {
		expander = recurrence.NewExpander(0)
	}
	return &MeetingAssistService{store: s, expander: expander}
}

// CreateMeetingAssist validates and persists a new meeting in Created.
func (s *MeetingAssistService) CreateMeetingAssist(ctx context.Context, m *model.MeetingAssist) (*model.MeetingAssist, error) {
	m.State = model.StateCreated
	if m.ExpireDate.IsZero() {
		m.ExpireDate = m.WindowEndDate
	}
	return s.store.MeetingAssists().Create(ctx, m)
}

// GetMeetingAssist returns the meeting with its current state and detail.
func (s *MeetingAssistService) GetMeetingAssist(ctx context.Context, meetingID string) (*model.MeetingAssist, error) {
	return s.store.MeetingAssists().Get(ctx, meetingID)
}

// AddAttendee registers a participant and opens a pending invite for them.
// Attendees may only be added before the meeting is sealed for solving.
func (s *MeetingAssistService) AddAttendee(ctx context.Context, a *model.MeetingAssistAttendee) (*model.MeetingAssistAttendee, error) {
	m, err := s.store.MeetingAssists().Get(ctx, a.MeetingID)
	if err != nil {
		return nil, err
	}
	if err := s.mutableGuard(m); err != nil {
		return nil, err
	}
	if a.PrimaryEmail == "" {
		return nil, model.Invalid("primaryEmail is required")
	}
	a.HostID = m.HostID
	if a.Timezone == "" {
		a.Timezone = m.Timezone
	}
	created, err := s.store.Attendees().Create(ctx, a)
	if err != nil {
		return nil, err
	}
	_, err = s.store.Invites().Create(ctx, &model.MeetingAssistInvite{
		MeetingID:  created.MeetingID,
		AttendeeID: created.AttendeeID,
		Status:     model.InvitePending,
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// AddPreferredTimeRange records one allowed interval. Nil attendeeID means a
// host-level default.
func (s *MeetingAssistService) AddPreferredTimeRange(ctx context.Context, r *model.MeetingAssistPreferredTimeRange) (*model.MeetingAssistPreferredTimeRange, error) {
	m, err := s.store.MeetingAssists().Get(ctx, r.MeetingID)
	if err != nil {
		return nil, err
	}
	if err := s.mutableGuard(m); err != nil {
		return nil, err
	}
	if r.DayOfWeek == nil && r.Date == nil {
		return nil, model.Invalid("preferred range needs dayOfWeek or date")
	}
	if r.DayOfWeek != nil && r.Date != nil {
		return nil, model.Invalid("preferred range takes dayOfWeek or date, not both")
	}
	if r.StartTime == "" || r.EndTime == "" || r.StartTime >= r.EndTime {
		return nil, model.Invalid("preferred range needs startTime before endTime")
	}
	if r.AttendeeID != nil {
		if _, err := s.store.Attendees().Get(ctx, r.MeetingID, *r.AttendeeID); err != nil {
			return nil, err
		}
	}
	return s.store.PreferredTimeRanges().Create(ctx, r)
}

// RespondInvite records an attendee's accept/decline and maintains
// attendeeRespondedCount. Response bookkeeping is allowed even after
// lockAfter seals preference edits.
func (s *MeetingAssistService) RespondInvite(ctx context.Context, meetingID, attendeeID string, status model.InviteStatus) error {
	if status != model.InviteAccepted && status != model.InviteDeclined {
		return model.Invalid("response must be ACCEPTED or DECLINED")
	}
	m, err := s.store.MeetingAssists().Get(ctx, meetingID)
	if err != nil {
		return err
	}
	if m.State.Terminal() {
		return model.ErrConflict
	}
	_, err = s.store.Invites().SetStatus(ctx, meetingID, attendeeID, status, time.Now().UTC())
	return err
}

// ListInvites returns the response state for every attendee.
func (s *MeetingAssistService) ListInvites(ctx context.Context, meetingID string) ([]*model.MeetingAssistInvite, error) {
	return s.store.Invites().List(ctx, meetingID)
}

// ExpandRecurrence generates and persists the child instances of a
// recurring template, attendees and invites included.
func (s *MeetingAssistService) ExpandRecurrence(ctx context.Context, templateMeetingID string) ([]*model.MeetingAssist, error) {
	tpl, err := s.store.MeetingAssists().Get(ctx, templateMeetingID)
	if err != nil {
		return nil, err
	}
	ranges, err := s.store.PreferredTimeRanges().List(ctx, templateMeetingID)
	if err != nil {
		return nil, err
	}
	attendees, err := s.store.Attendees().List(ctx, templateMeetingID)
	if err != nil {
		return nil, err
	}

	instances, err := s.expander.Expand(tpl, ranges)
	if err != nil {
		return nil, err
	}

	out := make([]*model.MeetingAssist, 0, len(instances))
	for _, inst := range instances {
		inst.Meeting.AttendeeCount = 0 // recounted as attendees are copied
		created, err := s.store.MeetingAssists().Create(ctx, inst.Meeting)
		if err != nil {
			return out, err
		}
		idMap := make(map[string]string, len(attendees))
		for _, a := range attendees {
			child := *a
			child.AttendeeID = ""
			child.MeetingID = created.MeetingID
			ca, err := s.store.Attendees().Create(ctx, &child)
			if err != nil {
				return out, err
			}
			idMap[a.AttendeeID] = ca.AttendeeID
			if _, err := s.store.Invites().Create(ctx, &model.MeetingAssistInvite{
				MeetingID:  created.MeetingID,
				AttendeeID: ca.AttendeeID,
				Status:     model.InvitePending,
			}); err != nil {
				return out, err
			}
		}
		for _, r := range inst.Ranges {
			c := *r
			c.MeetingID = created.MeetingID
			if c.AttendeeID != nil {
				if mapped, ok := idMap[*c.AttendeeID]; ok {
					c.AttendeeID = &mapped
				}
			}
			if _, err := s.store.PreferredTimeRanges().Create(ctx, &c); err != nil {
				return out, err
			}
		}
		out = append(out, created)
	}
	return out, nil
}

// DeleteMeetingAssist soft-deletes the meeting and removes its preferred
// ranges, used on explicit cancellation cleanup.
func (s *MeetingAssistService) DeleteMeetingAssist(ctx context.Context, meetingID string) error {
	if err := s.store.PreferredTimeRanges().DeleteByMeeting(ctx, meetingID); err != nil {
		return err
	}
	return s.store.MeetingAssists().SoftDelete(ctx, meetingID)
}

// mutableGuard rejects preference mutations once lockAfter has sealed the
// instance or the state machine has moved past intake.
func (s *MeetingAssistService) mutableGuard(m *model.MeetingAssist) error {
	if m.LockAfter {
		return model.ErrLocked
	}
	switch m.State {
	case model.StateCreated, model.StatePreferencesOpen:
		return nil
	}
	return model.ErrLocked
}
