package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/scheduler/internal/collab"
	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/store"
)

// --- Fakes ---

type fakeStore struct {
	meeting   *model.MeetingAssist
	attendees []*model.MeetingAssistAttendee
	ranges    []*model.MeetingAssistPreferredTimeRange

	recordedCorrelation string
	recordOrder         *[]string
}

func (f *fakeStore) MeetingAssists() store.MeetingAssists           { return &fakeMeetings{f} }
func (f *fakeStore) Attendees() store.Attendees                     { return &fakeAttendees{f} }
func (f *fakeStore) PreferredTimeRanges() store.PreferredTimeRanges { return &fakeRanges{f} }
func (f *fakeStore) Invites() store.Invites                         { panic("unused") }
func (f *fakeStore) Ping(context.Context) error                     { return nil }

type fakeMeetings struct{ p *fakeStore }

func (m *fakeMeetings) Create(context.Context, *model.MeetingAssist) (*model.MeetingAssist, error) {
	panic("unused")
}
func (m *fakeMeetings) Get(context.Context, string) (*model.MeetingAssist, error) {
	return m.p.meeting, nil
}
func (m *fakeMeetings) GetByCorrelationID(context.Context, string) (*model.MeetingAssist, error) {
	panic("unused")
}
func (m *fakeMeetings) TransitionState(context.Context, string, []model.State, model.State, *string) error {
	panic("unused")
}
func (m *fakeMeetings) RecordSubmission(_ context.Context, _ string, correlationID string, _ []model.State) error {
	m.p.recordedCorrelation = correlationID
	if m.p.recordOrder != nil {
		*m.p.recordOrder = append(*m.p.recordOrder, "record")
	}
	return nil
}
func (m *fakeMeetings) IncrementResponded(context.Context, string, int) error { panic("unused") }
func (m *fakeMeetings) SetLockAfter(context.Context, string) error { panic("unused") }
func (m *fakeMeetings) ListExpired(context.Context, time.Time, int) ([]*model.MeetingAssist, error) {
	panic("unused")
}
func (m *fakeMeetings) ListDueForSubmit(context.Context, time.Time, time.Duration, int) ([]*model.MeetingAssist, error) {
	panic("unused")
}
func (m *fakeMeetings) ListStaleSolving(context.Context, time.Time, time.Duration, int) ([]*model.MeetingAssist, error) {
	panic("unused")
}
func (m *fakeMeetings) SoftDelete(context.Context, string) error { panic("unused") }

type fakeAttendees struct{ p *fakeStore }

func (a *fakeAttendees) Create(context.Context, *model.MeetingAssistAttendee) (*model.MeetingAssistAttendee, error) {
	panic("unused")
}
func (a *fakeAttendees) Get(context.Context, string, string) (*model.MeetingAssistAttendee, error) {
	panic("unused")
}
func (a *fakeAttendees) List(context.Context, string) ([]*model.MeetingAssistAttendee, error) {
	return a.p.attendees, nil
}

type fakeRanges struct{ p *fakeStore }

func (r *fakeRanges) Create(context.Context, *model.MeetingAssistPreferredTimeRange) (*model.MeetingAssistPreferredTimeRange, error) {
	panic("unused")
}
func (r *fakeRanges) List(context.Context, string) ([]*model.MeetingAssistPreferredTimeRange, error) {
	return r.p.ranges, nil
}
func (r *fakeRanges) DeleteByMeeting(context.Context, string) error { panic("unused") }

type stubCalendar struct {
	busy map[string][]model.Interval
}

func (f *stubCalendar) BusyIntervals(_ context.Context, attendeeID string, _ model.Interval) ([]model.Interval, error) {
	return f.busy[attendeeID], nil
}
func (f *stubCalendar) CreateEvent(context.Context, string, model.Interval, collab.EventMetadata) (string, error) {
	panic("unused")
}
func (f *stubCalendar) CancelEvent(context.Context, string) error { panic("unused") }

type fakeClient struct {
	submitted *model.SolveRequest
	err       error
	order     *[]string
}

func (f *fakeClient) Submit(_ context.Context, req *model.SolveRequest) error {
	f.submitted = req
	if f.order != nil {
		*f.order = append(*f.order, "submit")
	}
	return f.err
}

// --- Helpers ---

func testMeeting() *model.MeetingAssist {
	return &model.MeetingAssist{
		MeetingID:           "m-1",
		HostID:              "host-1",
		State:               model.StateSubmitted,
		WindowStartDate:     time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC),
		WindowEndDate:       time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC),
		DurationMinutes:     30,
		BufferBeforeMinutes: 10,
		BufferAfterMinutes:  10,
		Timezone:            "UTC",
	}
}

func testAttendees() []*model.MeetingAssistAttendee {
	return []*model.MeetingAssistAttendee{
		{AttendeeID: "a-1", MeetingID: "m-1", PrimaryEmail: "a1@example.com"},
		{AttendeeID: "a-2", MeetingID: "m-1", PrimaryEmail: "a2@example.com"},
	}
}

// --- Tests ---

func TestSubmitPersistsCorrelationBeforeNetworkCall(t *testing.T) {
	var order []string
	fs := &fakeStore{
		meeting:     testMeeting(),
		attendees:   testAttendees(),
		recordOrder: &order,
	}
	client := &fakeClient{order: &order}
	gw := NewGateway(fs, &stubCalendar{}, client, zerolog.Nop())

	corr, err := gw.Submit(context.Background(), "m-1")
	require.NoError(t, err)
	assert.NotEmpty(t, corr)
	assert.Equal(t, corr, fs.recordedCorrelation)
	assert.Equal(t, corr, client.submitted.CorrelationID)
	assert.Equal(t, []string{"record", "submit"}, order)
}

func TestSubmitReturnsCorrelationEvenWhenClientFails(t *testing.T) {
	fs := &fakeStore{meeting: testMeeting(), attendees: testAttendees()}
	client := &fakeClient{err: errors.New("connection refused")}
	gw := NewGateway(fs, &stubCalendar{}, client, zerolog.Nop())

	corr, err := gw.Submit(context.Background(), "m-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmission)
	// the id was persisted before the failed call, so the sweeper can
	// recover with a fresh one
	assert.Equal(t, fs.recordedCorrelation, corr)
}

func TestSubmitRejectsMeetingWithoutAttendees(t *testing.T) {
	fs := &fakeStore{meeting: testMeeting()}
	gw := NewGateway(fs, &stubCalendar{}, &fakeClient{}, zerolog.Nop())

	_, err := gw.Submit(context.Background(), "m-1")
	assert.ErrorIs(t, err, ErrSubmission)
	assert.Empty(t, fs.recordedCorrelation)
}

func TestBuildRequestRelaxation(t *testing.T) {
	a1 := "a-1"
	m := testMeeting()
	attendees := testAttendees()
	ranges := []*model.MeetingAssistPreferredTimeRange{
		{RangeID: "r-host", MeetingID: "m-1", StartTime: "09:00", EndTime: "12:00"},
		{RangeID: "r-a1", MeetingID: "m-1", AttendeeID: &a1, StartTime: "14:00", EndTime: "16:00"},
	}
	gw := NewGateway(&fakeStore{}, &stubCalendar{}, &fakeClient{}, zerolog.Nop())

	full, err := gw.BuildRequest(context.Background(), m, attendees, ranges, RelaxNone)
	require.NoError(t, err)
	assert.Equal(t, 10, full.BufferBefore)
	// host default + a-1's own + a-2 inheriting the default
	assert.Len(t, full.PreferredRanges, 3)

	relaxed, err := gw.BuildRequest(context.Background(), m, attendees, ranges, RelaxAttendeeRanges)
	require.NoError(t, err)
	for _, r := range relaxed.PreferredRanges {
		assert.Nil(t, r.AttendeeID)
	}
	assert.Equal(t, 10, relaxed.BufferBefore)

	widest, err := gw.BuildRequest(context.Background(), m, attendees, ranges, RelaxBuffers)
	require.NoError(t, err)
	assert.Zero(t, widest.BufferBefore)
	assert.Zero(t, widest.BufferAfter)
}

func TestRelaxForWidensGradually(t *testing.T) {
	assert.Equal(t, RelaxNone, relaxFor(0))
	assert.Equal(t, RelaxAttendeeRanges, relaxFor(1))
	assert.Equal(t, RelaxBuffers, relaxFor(2))
	assert.Equal(t, RelaxBuffers, relaxFor(7))
}

func TestMergeRangesHostDefaultsInherited(t *testing.T) {
	a1 := "a-1"
	attendees := testAttendees()
	ranges := []*model.MeetingAssistPreferredTimeRange{
		{RangeID: "r-host", StartTime: "09:00", EndTime: "12:00"},
		{RangeID: "r-a1", AttendeeID: &a1, StartTime: "14:00", EndTime: "16:00"},
	}

	merged := MergeRanges(attendees, ranges)
	require.Len(t, merged, 3)

	var a2Ranges []*model.MeetingAssistPreferredTimeRange
	for _, r := range merged {
		if r.AttendeeID != nil && *r.AttendeeID == "a-2" {
			a2Ranges = append(a2Ranges, r)
		}
	}
	// a-2 has no own ranges so it inherits the host default window
	require.Len(t, a2Ranges, 1)
	assert.Equal(t, "09:00", a2Ranges[0].StartTime)
}

func TestValidateResult(t *testing.T) {
	m := testMeeting()
	attendees := testAttendees()
	start := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	good := func() *model.SolveResult {
		return &model.SolveResult{
			CorrelationID: "c-1",
			Assignments: []model.SolveAssignment{
				{AttendeeID: "a-1", Start: start, End: start.Add(30 * time.Minute)},
				{AttendeeID: "a-2", Start: start, End: start.Add(30 * time.Minute)},
			},
		}
	}

	assert.NoError(t, ValidateResult(m, attendees, good()))
	assert.NoError(t, ValidateResult(m, attendees, &model.SolveResult{Infeasible: true}))

	res := good()
	res.Assignments = nil
	assert.ErrorIs(t, ValidateResult(m, attendees, res), model.ErrValidation)

	res = good()
	res.Assignments[1].AttendeeID = "a-1"
	assert.ErrorIs(t, ValidateResult(m, attendees, res), model.ErrValidation)

	res = good()
	res.Assignments = res.Assignments[:1]
	assert.ErrorIs(t, ValidateResult(m, attendees, res), model.ErrValidation)

	res = good()
	res.Assignments[0].End = res.Assignments[0].Start.Add(45 * time.Minute)
	assert.ErrorIs(t, ValidateResult(m, attendees, res), model.ErrValidation)

	// buffered window: 08:00 window start plus 10 minute buffer
	res = good()
	res.Assignments[0].Start = time.Date(2026, 10, 1, 8, 5, 0, 0, time.UTC)
	res.Assignments[0].End = res.Assignments[0].Start.Add(30 * time.Minute)
	assert.ErrorIs(t, ValidateResult(m, attendees, res), model.ErrValidation)

	// one meeting, one interval: attendees scheduled into different slots
	// is a malformed response even when each slot is individually valid
	res = good()
	res.Assignments[1].Start = start.Add(time.Hour)
	res.Assignments[1].End = res.Assignments[1].Start.Add(30 * time.Minute)
	assert.ErrorIs(t, ValidateResult(m, attendees, res), model.ErrValidation)
}
