package applier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/scheduler/internal/collab"
	"github.com/chronoplan/scheduler/internal/model"
)

// --- Fakes ---

type fakeCalendar struct {
	mu        sync.Mutex
	created   []string // attendee ids that got an event
	cancelled []string // event ids cancelled
	failFor   map[string]error
	flakyLeft map[string]int // failures to emit before succeeding
}

func (f *fakeCalendar) BusyIntervals(context.Context, string, model.Interval) ([]model.Interval, error) {
	return nil, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, attendeeID string, _ model.Interval, _ collab.EventMetadata) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[attendeeID]; ok {
		return "", err
	}
	if left := f.flakyLeft[attendeeID]; left > 0 {
		f.flakyLeft[attendeeID] = left - 1
		return "", errors.New("transient calendar error")
	}
	f.created = append(f.created, attendeeID)
	return "evt-" + attendeeID, nil
}

func (f *fakeCalendar) CancelEvent(_ context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, eventID)
	return nil
}

type fakeConference struct {
	calls int
	err   error
}

func (f *fakeConference) CreateMeetingLink(context.Context, string, model.Interval) (collab.MeetingLink, error) {
	f.calls++
	if f.err != nil {
		return collab.MeetingLink{}, f.err
	}
	return collab.MeetingLink{JoinURL: "https://meet.example.com/abc", HostURL: "https://meet.example.com/abc/host"}, nil
}

// --- Helpers ---

func fastConfig() Config {
	return Config{Workers: 2, MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func applyMeeting() *model.MeetingAssist {
	return &model.MeetingAssist{MeetingID: "m-1", HostID: "host-1", DurationMinutes: 30}
}

func applyAttendees(n int) []*model.MeetingAssistAttendee {
	out := make([]*model.MeetingAssistAttendee, n)
	for i := range out {
		out[i] = &model.MeetingAssistAttendee{
			AttendeeID: fmt.Sprintf("a-%d", i+1),
			MeetingID:  "m-1",
		}
	}
	return out
}

func slot() model.Interval {
	start := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	return model.Interval{Start: start, End: start.Add(30 * time.Minute)}
}

// --- Tests ---

func TestApplyAllSucceed(t *testing.T) {
	cal := &fakeCalendar{}
	a := New(cal, &fakeConference{}, fastConfig(), zerolog.Nop())

	results := a.Apply(context.Background(), applyMeeting(), applyAttendees(3), slot())
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("a-%d", i+1), r.AttendeeID)
		assert.Equal(t, model.ApplySucceeded, r.Outcome)
		assert.Equal(t, "evt-"+r.AttendeeID, r.EventID)
	}
}

func TestApplyOneFailureDoesNotBlockOthers(t *testing.T) {
	cal := &fakeCalendar{failFor: map[string]error{"a-2": errors.New("mailbox gone")}}
	a := New(cal, nil, fastConfig(), zerolog.Nop())

	results := a.Apply(context.Background(), applyMeeting(), applyAttendees(3), slot())
	require.Len(t, results, 3)

	assert.Equal(t, model.ApplySucceeded, results[0].Outcome)
	assert.Equal(t, model.ApplyFailed, results[1].Outcome)
	assert.Contains(t, results[1].Error, "mailbox gone")
	assert.Equal(t, 3, results[1].Attempts)
	assert.Equal(t, model.ApplySucceeded, results[2].Outcome)
	assert.NotEmpty(t, results[0].EventID)
	assert.NotEmpty(t, results[2].EventID)
}

func TestApplyRetriesTransientFailures(t *testing.T) {
	cal := &fakeCalendar{flakyLeft: map[string]int{"a-1": 2}}
	a := New(cal, nil, fastConfig(), zerolog.Nop())

	results := a.Apply(context.Background(), applyMeeting(), applyAttendees(1), slot())
	require.Len(t, results, 1)
	assert.Equal(t, model.ApplySucceeded, results[0].Outcome)
	assert.Equal(t, 3, results[0].Attempts)
}

func TestApplyProvisionsConferenceLinkOnce(t *testing.T) {
	cal := &fakeCalendar{}
	conf := &fakeConference{}
	a := New(cal, conf, fastConfig(), zerolog.Nop())

	m := applyMeeting()
	m.EnableConference = true
	results := a.Apply(context.Background(), m, applyAttendees(3), slot())

	assert.Equal(t, 1, conf.calls)
	for _, r := range results {
		assert.Equal(t, "https://meet.example.com/abc", r.JoinURL)
	}
}

func TestApplyDegradesToLinklessWhenConferenceFails(t *testing.T) {
	cal := &fakeCalendar{}
	conf := &fakeConference{err: errors.New("provider down")}
	a := New(cal, conf, fastConfig(), zerolog.Nop())

	m := applyMeeting()
	m.EnableConference = true
	results := a.Apply(context.Background(), m, applyAttendees(2), slot())

	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, model.ApplySucceeded, r.Outcome)
		assert.Empty(t, r.JoinURL)
	}
}

func TestRollbackCancelsOnlySucceededEvents(t *testing.T) {
	cal := &fakeCalendar{}
	a := New(cal, nil, fastConfig(), zerolog.Nop())

	results := []model.PerAttendeeResult{
		{AttendeeID: "a-1", Outcome: model.ApplySucceeded, EventID: "evt-a-1"},
		{AttendeeID: "a-2", Outcome: model.ApplyFailed},
		{AttendeeID: "a-3", Outcome: model.ApplySucceeded, EventID: "evt-a-3"},
	}
	a.Rollback(context.Background(), results)

	assert.Equal(t, []string{"evt-a-1", "evt-a-3"}, cal.cancelled)
}

func TestPermanentCalendarErrorIsNotRetried(t *testing.T) {
	cal := &fakeCalendar{failFor: map[string]error{
		"a-2": &collab.PermanentError{Err: fmt.Errorf("%w: HTTP 400: unknown attendee", collab.ErrCalendarWrite)},
	}}
	ap := New(cal, nil, fastConfig(), zerolog.Nop())

	results := ap.Apply(context.Background(), applyMeeting(), applyAttendees(3), slot())

	require.Equal(t, model.ApplyFailed, results[1].Outcome)
	assert.Equal(t, 1, results[1].Attempts, "client errors exhaust no retry budget")
	assert.Equal(t, model.ApplySucceeded, results[0].Outcome)
	assert.Equal(t, model.ApplySucceeded, results[2].Outcome)
}
