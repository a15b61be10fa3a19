package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/recurrence"
	"github.com/chronoplan/scheduler/internal/store"
	"github.com/chronoplan/scheduler/internal/store/sqlite"
)

func newTestService(t *testing.T) (*MeetingAssistService, store.Store) {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := sqlite.NewWithDB(db)
	require.NoError(t, err)
	return NewMeetingAssistService(st, recurrence.NewExpander(10)), st
}

func createMeeting(t *testing.T, svc *MeetingAssistService, mutate func(*model.MeetingAssist)) *model.MeetingAssist {
	t.Helper()
	m := &model.MeetingAssist{
		HostID:          "host-1",
		WindowStartDate: time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
		WindowEndDate:   time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
		Timezone:        "UTC",
	}
	if mutate != nil {
		mutate(m)
	}
	created, err := svc.CreateMeetingAssist(context.Background(), m)
	require.NoError(t, err)
	return created
}

func TestCreateMeetingAssistDefaultsExpireDate(t *testing.T) {
	svc, _ := newTestService(t)
	m := createMeeting(t, svc, nil)
	assert.Equal(t, model.StateCreated, m.State)
	assert.Equal(t, m.WindowEndDate, m.ExpireDate)
}

func TestAddAttendeeOpensPendingInvite(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	m := createMeeting(t, svc, nil)

	a, err := svc.AddAttendee(ctx, &model.MeetingAssistAttendee{
		MeetingID:    m.MeetingID,
		PrimaryEmail: "guest@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "host-1", a.HostID)
	assert.Equal(t, "UTC", a.Timezone, "attendee inherits the meeting timezone")

	invites, err := svc.ListInvites(ctx, m.MeetingID)
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.Equal(t, a.AttendeeID, invites[0].AttendeeID)
	assert.Equal(t, model.InvitePending, invites[0].Status)

	got, err := svc.GetMeetingAssist(ctx, m.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttendeeCount)
}

func TestAddAttendeeRejectedAfterLock(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	locked := createMeeting(t, svc, func(m *model.MeetingAssist) { m.LockAfter = true })
	_, err := svc.AddAttendee(ctx, &model.MeetingAssistAttendee{
		MeetingID: locked.MeetingID, PrimaryEmail: "guest@example.com",
	})
	assert.ErrorIs(t, err, model.ErrLocked)

	sealed := createMeeting(t, svc, nil)
	require.NoError(t, st.MeetingAssists().TransitionState(ctx, sealed.MeetingID,
		[]model.State{model.StateCreated}, model.StateSubmitted, nil))
	_, err = svc.AddAttendee(ctx, &model.MeetingAssistAttendee{
		MeetingID: sealed.MeetingID, PrimaryEmail: "guest@example.com",
	})
	assert.ErrorIs(t, err, model.ErrLocked)
}

func TestAddPreferredTimeRangeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	m := createMeeting(t, svc, nil)
	tue := time.Tuesday
	date := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)

	// host-level weekday range
	r, err := svc.AddPreferredTimeRange(ctx, &model.MeetingAssistPreferredTimeRange{
		MeetingID: m.MeetingID, DayOfWeek: &tue, StartTime: "09:00", EndTime: "12:00",
	})
	require.NoError(t, err)
	assert.Nil(t, r.AttendeeID)

	// neither anchor
	_, err = svc.AddPreferredTimeRange(ctx, &model.MeetingAssistPreferredTimeRange{
		MeetingID: m.MeetingID, StartTime: "09:00", EndTime: "12:00",
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	// both anchors
	_, err = svc.AddPreferredTimeRange(ctx, &model.MeetingAssistPreferredTimeRange{
		MeetingID: m.MeetingID, DayOfWeek: &tue, Date: &date, StartTime: "09:00", EndTime: "12:00",
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	// inverted times
	_, err = svc.AddPreferredTimeRange(ctx, &model.MeetingAssistPreferredTimeRange{
		MeetingID: m.MeetingID, DayOfWeek: &tue, StartTime: "12:00", EndTime: "09:00",
	})
	assert.ErrorIs(t, err, model.ErrValidation)

	// attendee-scoped range requires an existing attendee
	ghost := "no-such-attendee"
	_, err = svc.AddPreferredTimeRange(ctx, &model.MeetingAssistPreferredTimeRange{
		MeetingID: m.MeetingID, AttendeeID: &ghost, DayOfWeek: &tue, StartTime: "09:00", EndTime: "12:00",
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRespondInviteMaintainsRespondedCount(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	m := createMeeting(t, svc, nil)
	a, err := svc.AddAttendee(ctx, &model.MeetingAssistAttendee{
		MeetingID: m.MeetingID, PrimaryEmail: "guest@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, svc.RespondInvite(ctx, m.MeetingID, a.AttendeeID, model.InviteAccepted))
	got, err := svc.GetMeetingAssist(ctx, m.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttendeeRespondedCount)

	// changing the answer must not double count
	require.NoError(t, svc.RespondInvite(ctx, m.MeetingID, a.AttendeeID, model.InviteDeclined))
	got, err = svc.GetMeetingAssist(ctx, m.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AttendeeRespondedCount)

	invites, err := svc.ListInvites(ctx, m.MeetingID)
	require.NoError(t, err)
	assert.Equal(t, model.InviteDeclined, invites[0].Status)
}

func TestRespondInviteValidation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	m := createMeeting(t, svc, nil)
	a, err := svc.AddAttendee(ctx, &model.MeetingAssistAttendee{
		MeetingID: m.MeetingID, PrimaryEmail: "guest@example.com",
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RespondInvite(ctx, m.MeetingID, a.AttendeeID, model.InvitePending), model.ErrValidation)

	reason := "cancelled"
	require.NoError(t, st.MeetingAssists().TransitionState(ctx, m.MeetingID,
		[]model.State{model.StateCreated}, model.StateCancelled, &reason))
	assert.ErrorIs(t, svc.RespondInvite(ctx, m.MeetingID, a.AttendeeID, model.InviteAccepted), model.ErrConflict)
}

func TestExpandRecurrencePersistsChildren(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	freq := model.FreqWeekly
	until := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	tpl := createMeeting(t, svc, func(m *model.MeetingAssist) {
		m.Frequency = &freq
		m.Interval = 1
		m.Until = &until
	})
	a, err := svc.AddAttendee(ctx, &model.MeetingAssistAttendee{
		MeetingID: tpl.MeetingID, PrimaryEmail: "guest@example.com",
	})
	require.NoError(t, err)
	tue := time.Tuesday
	mon := time.Monday
	_, err = svc.AddPreferredTimeRange(ctx, &model.MeetingAssistPreferredTimeRange{
		MeetingID: tpl.MeetingID, DayOfWeek: &mon, StartTime: "09:00", EndTime: "17:00",
	})
	require.NoError(t, err)
	_, err = svc.AddPreferredTimeRange(ctx, &model.MeetingAssistPreferredTimeRange{
		MeetingID: tpl.MeetingID, AttendeeID: &a.AttendeeID, DayOfWeek: &tue, StartTime: "10:00", EndTime: "12:00",
	})
	require.NoError(t, err)

	children, err := svc.ExpandRecurrence(ctx, tpl.MeetingID)
	require.NoError(t, err)
	require.Len(t, children, 2) // Oct 8 and Oct 15 windows

	for _, c := range children {
		require.NotNil(t, c.OriginalMeetingID)
		assert.Equal(t, tpl.MeetingID, *c.OriginalMeetingID)
		assert.Nil(t, c.Frequency)

		got, err := svc.GetMeetingAssist(ctx, c.MeetingID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AttendeeCount)

		childAttendees, err := st.Attendees().List(ctx, c.MeetingID)
		require.NoError(t, err)
		require.Len(t, childAttendees, 1)
		assert.NotEqual(t, a.AttendeeID, childAttendees[0].AttendeeID)

		invites, err := svc.ListInvites(ctx, c.MeetingID)
		require.NoError(t, err)
		require.Len(t, invites, 1)
		assert.Equal(t, model.InvitePending, invites[0].Status)

		childRanges, err := st.PreferredTimeRanges().List(ctx, c.MeetingID)
		require.NoError(t, err)
		require.Len(t, childRanges, 2)
		for _, r := range childRanges {
			if r.AttendeeID != nil {
				// attendee-scoped ranges point at the child's own attendee
				assert.Equal(t, childAttendees[0].AttendeeID, *r.AttendeeID)
			}
		}
	}
}

func TestDeleteMeetingAssistRemovesRangesAndHides(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	m := createMeeting(t, svc, nil)
	fri := time.Friday
	_, err := svc.AddPreferredTimeRange(ctx, &model.MeetingAssistPreferredTimeRange{
		MeetingID: m.MeetingID, DayOfWeek: &fri, StartTime: "09:00", EndTime: "17:00",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteMeetingAssist(ctx, m.MeetingID))

	_, err = svc.GetMeetingAssist(ctx, m.MeetingID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	list, err := st.PreferredTimeRanges().List(ctx, m.MeetingID)
	require.NoError(t, err)
	assert.Empty(t, list)
}
