package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/orchestrator"
	"github.com/chronoplan/scheduler/internal/recurrence"
	"github.com/chronoplan/scheduler/internal/services"
	"github.com/chronoplan/scheduler/internal/store"
	"github.com/chronoplan/scheduler/internal/store/sqlite"
)

// fakeGateway mimics the real gateway's contract: it records a fresh
// correlation id against the meeting before "sending".
type fakeGateway struct {
	store store.Store
	next  int
}

func (g *fakeGateway) Submit(ctx context.Context, meetingID string) (string, error) {
	g.next++
	corr := fmt.Sprintf("corr-%d", g.next)
	err := g.store.MeetingAssists().RecordSubmission(ctx, meetingID, corr,
		[]model.State{model.StateSubmitted, model.StateSolving})
	return corr, err
}

type fakeApplier struct{}

func (fakeApplier) Apply(_ context.Context, _ *model.MeetingAssist, attendees []*model.MeetingAssistAttendee, _ model.Interval) []model.PerAttendeeResult {
	out := make([]model.PerAttendeeResult, len(attendees))
	for i, a := range attendees {
		out[i] = model.PerAttendeeResult{AttendeeID: a.AttendeeID, Outcome: model.ApplySucceeded, EventID: "evt-" + a.AttendeeID}
	}
	return out
}

func (fakeApplier) Rollback(_ context.Context, _ []model.PerAttendeeResult) {}

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st, err := sqlite.NewWithDB(db)
	require.NoError(t, err)

	gw := &fakeGateway{store: st}
	orch := orchestrator.New(st, gw, fakeApplier{}, nil, orchestrator.Config{MaxSolveAttempts: 3}, zerolog.Nop())
	svc := services.NewMeetingAssistService(st, recurrence.NewExpander(10))

	srv := httptest.NewServer(NewRouter(st, svc, orch, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, st
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func createMeetingViaAPI(t *testing.T, base string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/api/meeting-assists", map[string]interface{}{
		"hostId":          "host-1",
		"windowStartDate": "2026-10-01T08:00:00Z",
		"windowEndDate":   "2026-10-01T18:00:00Z",
		"durationMinutes": 30,
		"timezone":        "UTC",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["meetingId"].(string)
	require.NotEmpty(t, id)
	return id
}

func addAttendeeViaAPI(t *testing.T, base, meetingID, email string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/attendees", map[string]interface{}{
		"primaryEmail": email,
		"timezone":     "UTC",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["attendeeId"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestCreateMeetingAssistValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/meeting-assists", map[string]interface{}{
		"windowStartDate": "2026-10-01T08:00:00Z",
		"windowEndDate":   "2026-10-01T18:00:00Z",
		"durationMinutes": 30,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing hostId")

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/meeting-assists", map[string]interface{}{
		"hostId":          "host-1",
		"windowStartDate": "2026-10-01T18:00:00Z",
		"windowEndDate":   "2026-10-01T08:00:00Z",
		"durationMinutes": 30,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "inverted window")

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/meeting-assists", map[string]interface{}{
		"hostId":          "host-1",
		"windowStartDate": "2026-10-01T08:00:00Z",
		"windowEndDate":   "2026-10-01T18:00:00Z",
		"durationMinutes": 30,
		"timezone":        "Mars/Olympus",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown timezone")

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/meeting-assists", map[string]interface{}{
		"hostId":          "host-1",
		"windowStartDate": "2026-10-01T08:00:00Z",
		"windowEndDate":   "2026-10-01T18:00:00Z",
		"durationMinutes": 30,
		"frequency":       "fortnightly",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "unknown frequency")
}

func TestMeetingLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL

	meetingID := createMeetingViaAPI(t, base)
	attendeeID := addAttendeeViaAPI(t, base, meetingID, "guest@example.com")

	// preferred range for the host
	resp, _ := doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/preferred-time-ranges", map[string]interface{}{
		"dayOfWeek": 2,
		"startTime": "09:00",
		"endTime":   "17:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// invite response
	resp, body := doJSON(t, http.MethodPost,
		base+"/api/meeting-assists/"+meetingID+"/invites/"+attendeeID+"/respond",
		map[string]interface{}{"response": "accept"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ACCEPTED", body["status"])

	// intake complete
	resp, _ = doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/complete-intake", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// submit for solving
	resp, body = doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/submit", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "SOLVING", body["state"])

	// status reflects the invite and state
	resp, body = doJSON(t, http.MethodGet, base+"/api/meeting-assists/"+meetingID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ma, _ := body["meetingAssist"].(map[string]interface{})
	require.NotNil(t, ma)
	assert.Equal(t, "SOLVING", ma["state"])
	invites, _ := body["invites"].([]interface{})
	require.Len(t, invites, 1)

	// solver callback completes the lifecycle
	resp, body = doJSON(t, http.MethodPost, base+"/api/solver/callback", map[string]interface{}{
		"correlationId": "corr-1",
		"assignments": []map[string]interface{}{
			{"attendeeId": attendeeID, "start": "2026-10-01T10:00:00Z", "end": "2026-10-01T10:30:00Z"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "processed", body["status"])

	resp, body = doJSON(t, http.MethodGet, base+"/api/meeting-assists/"+meetingID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ma, _ = body["meetingAssist"].(map[string]interface{})
	assert.Equal(t, "APPLIED", ma["state"])
}

func TestSolverCallbackStatuses(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL

	meetingID := createMeetingViaAPI(t, base)
	attendeeID := addAttendeeViaAPI(t, base, meetingID, "guest@example.com")
	resp, _ := doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/preferred-time-ranges", map[string]interface{}{
		"dayOfWeek": 2, "startTime": "09:00", "endTime": "17:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/complete-intake", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/submit", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// missing correlation id
	resp, _ = doJSON(t, http.MethodPost, base+"/api/solver/callback", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// unknown correlation id
	resp, _ = doJSON(t, http.MethodPost, base+"/api/solver/callback", map[string]interface{}{
		"correlationId": "corr-unknown",
		"infeasible":    true,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	payload := map[string]interface{}{
		"correlationId": "corr-1",
		"assignments": []map[string]interface{}{
			{"attendeeId": attendeeID, "start": "2026-10-01T10:00:00Z", "end": "2026-10-01T10:30:00Z"},
		},
	}
	resp, _ = doJSON(t, http.MethodPost, base+"/api/solver/callback", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// a redelivery is acknowledged but ignored
	resp, body := doJSON(t, http.MethodPost, base+"/api/solver/callback", payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ignored", body["status"])
}

func TestRespondInviteRejectsBadResponse(t *testing.T) {
	srv, _ := newTestServer(t)
	meetingID := createMeetingViaAPI(t, srv.URL)
	attendeeID := addAttendeeViaAPI(t, srv.URL, meetingID, "guest@example.com")

	resp, _ := doJSON(t, http.MethodPost,
		srv.URL+"/api/meeting-assists/"+meetingID+"/invites/"+attendeeID+"/respond",
		map[string]interface{}{"response": "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddAttendeeAfterSubmitConflicts(t *testing.T) {
	srv, st := newTestServer(t)
	meetingID := createMeetingViaAPI(t, srv.URL)

	require.NoError(t, st.MeetingAssists().TransitionState(
		context.Background(), meetingID,
		[]model.State{model.StateCreated}, model.StateSubmitted, nil))

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/meeting-assists/"+meetingID+"/attendees", map[string]interface{}{
		"primaryEmail": "late@example.com",
		"timezone":     "UTC",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLockEndpointSealsAndSubmits(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL

	meetingID := createMeetingViaAPI(t, base)
	addAttendeeViaAPI(t, base, meetingID, "guest@example.com")
	resp, _ := doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/preferred-time-ranges", map[string]interface{}{
		"dayOfWeek": 2, "startTime": "09:00", "endTime": "17:00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// locking before intake completes is a conflict
	resp, _ = doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/lock", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/complete-intake", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/lock", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "SOLVING", body["state"])

	// the sealed meeting rejects further preference edits
	resp, _ = doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/attendees", map[string]interface{}{
		"primaryEmail": "late@example.com",
		"timezone":     "UTC",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExpandEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	base := srv.URL

	resp, body := doJSON(t, http.MethodPost, base+"/api/meeting-assists", map[string]interface{}{
		"hostId":          "host-1",
		"windowStartDate": "2026-10-01T08:00:00Z",
		"windowEndDate":   "2026-10-01T18:00:00Z",
		"durationMinutes": 30,
		"frequency":       "weekly",
		"interval":        1,
		"until":           "2026-10-15T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	meetingID, _ := body["meetingId"].(string)
	addAttendeeViaAPI(t, base, meetingID, "guest@example.com")

	resp, body = doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+meetingID+"/expand", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(2), body["count"])

	// non-recurring meetings cannot be expanded
	plain := createMeetingViaAPI(t, base)
	resp, _ = doJSON(t, http.MethodPost, base+"/api/meeting-assists/"+plain+"/expand", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/health/db", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestCancelAndDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	meetingID := createMeetingViaAPI(t, srv.URL)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/meeting-assists/"+meetingID+"/cancel",
		map[string]interface{}{"reason": "plans changed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "CANCELLED", body["state"])

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/meeting-assists/"+meetingID, nil)
	require.NoError(t, err)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp2.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/meeting-assists/"+meetingID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
