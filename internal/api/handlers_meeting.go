package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/chronoplan/scheduler/internal/api/respond"
	"github.com/chronoplan/scheduler/internal/api/validate"
	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/orchestrator"
	"github.com/chronoplan/scheduler/internal/recurrence"
	"github.com/chronoplan/scheduler/internal/services"
)

// MeetingHandler serves the meeting-assist intake and status surface.
type MeetingHandler struct {
	svc  *services.MeetingAssistService
	orch *orchestrator.Orchestrator
}

func NewMeetingHandler(svc *services.MeetingAssistService, orch *orchestrator.Orchestrator) *MeetingHandler {
	return &MeetingHandler{svc: svc, orch: orch}
}

// writeServiceError maps domain errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		respond.WriteNotFound(w, err.Error())
	case errors.Is(err, model.ErrValidation):
		respond.WriteBadRequest(w, err.Error())
	case errors.Is(err, model.ErrLocked), errors.Is(err, model.ErrConflict):
		respond.WriteConflict(w, err.Error())
	default:
		respond.WriteInternalError(w, err.Error())
	}
}

type createMeetingRequest struct {
	HostID                string     `json:"hostId"`
	WindowStartDate       time.Time  `json:"windowStartDate"`
	WindowEndDate         time.Time  `json:"windowEndDate"`
	DurationMinutes       int        `json:"durationMinutes"`
	BufferBeforeMinutes   int        `json:"bufferBeforeMinutes"`
	BufferAfterMinutes    int        `json:"bufferAfterMinutes"`
	Priority              int        `json:"priority"`
	Timezone              string     `json:"timezone"`
	EnableConference      bool       `json:"enableConference"`
	ConferenceApp         *string    `json:"conferenceApp,omitempty"`
	CancelIfAnyRefuse     bool       `json:"cancelIfAnyRefuse"`
	GuaranteeAvailability bool       `json:"guaranteeAvailability"`
	MinThresholdCount     int        `json:"minThresholdCount"`
	ExpireDate            *time.Time `json:"expireDate,omitempty"`
	Frequency             *string    `json:"frequency,omitempty"`
	Interval              int        `json:"interval,omitempty"`
	Until                 *time.Time `json:"until,omitempty"`
}

// CreateMeetingAssist POST /api/meeting-assists
func (h *MeetingHandler) CreateMeetingAssist(w http.ResponseWriter, r *http.Request) {
	var req createMeetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.CreateMeetingAssist(req.HostID, req.WindowStartDate, req.WindowEndDate, req.DurationMinutes); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.Timezone(req.Timezone); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	m := &model.MeetingAssist{
		HostID:                req.HostID,
		WindowStartDate:       req.WindowStartDate,
		WindowEndDate:         req.WindowEndDate,
		DurationMinutes:       req.DurationMinutes,
		BufferBeforeMinutes:   req.BufferBeforeMinutes,
		BufferAfterMinutes:    req.BufferAfterMinutes,
		Priority:              req.Priority,
		Timezone:              req.Timezone,
		EnableConference:      req.EnableConference,
		ConferenceApp:         req.ConferenceApp,
		CancelIfAnyRefuse:     req.CancelIfAnyRefuse,
		GuaranteeAvailability: req.GuaranteeAvailability,
		MinThresholdCount:     req.MinThresholdCount,
		Interval:              req.Interval,
		Until:                 req.Until,
	}
	if m.Timezone == "" {
		m.Timezone = "UTC"
	}
	if req.ExpireDate != nil {
		m.ExpireDate = *req.ExpireDate
	}
	if req.Frequency != nil {
		f := model.Frequency(*req.Frequency)
		switch f {
		case model.FreqDaily, model.FreqWeekly, model.FreqMonthly, model.FreqYearly:
			m.Frequency = &f
		default:
			respond.WriteBadRequest(w, "frequency must be daily, weekly, monthly or yearly")
			return
		}
	}
	out, err := h.svc.CreateMeetingAssist(r.Context(), m)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

// GetMeetingAssist GET /api/meeting-assists/{meetingId}
func (h *MeetingHandler) GetMeetingAssist(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	m, err := h.svc.GetMeetingAssist(r.Context(), v["meetingId"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	invites, err := h.svc.ListInvites(r.Context(), m.MeetingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"meetingAssist": m,
		"invites":       invites,
	})
}

type addAttendeeRequest struct {
	UserID           *string `json:"userId,omitempty"`
	ExternalAttendee bool    `json:"externalAttendee"`
	Timezone         string  `json:"timezone"`
	PrimaryEmail     string  `json:"primaryEmail"`
}

// AddAttendee POST /api/meeting-assists/{meetingId}/attendees
func (h *MeetingHandler) AddAttendee(w http.ResponseWriter, r *http.Request) {
	var req addAttendeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Email(req.PrimaryEmail); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.Timezone(req.Timezone); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	v := mux.Vars(r)
	out, err := h.svc.AddAttendee(r.Context(), &model.MeetingAssistAttendee{
		MeetingID:        v["meetingId"],
		UserID:           req.UserID,
		ExternalAttendee: req.ExternalAttendee,
		Timezone:         req.Timezone,
		PrimaryEmail:     req.PrimaryEmail,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

type addRangeRequest struct {
	AttendeeID *string    `json:"attendeeId,omitempty"`
	DayOfWeek  *int       `json:"dayOfWeek,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	StartTime  string     `json:"startTime"`
	EndTime    string     `json:"endTime"`
}

// AddPreferredTimeRange POST /api/meeting-assists/{meetingId}/preferred-time-ranges
func (h *MeetingHandler) AddPreferredTimeRange(w http.ResponseWriter, r *http.Request) {
	var req addRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.PreferredTimeRange(req.DayOfWeek, req.Date, req.StartTime, req.EndTime); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	v := mux.Vars(r)
	rng := &model.MeetingAssistPreferredTimeRange{
		MeetingID:  v["meetingId"],
		AttendeeID: req.AttendeeID,
		Date:       req.Date,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	}
	if req.DayOfWeek != nil {
		wd := time.Weekday(*req.DayOfWeek)
		rng.DayOfWeek = &wd
	}
	out, err := h.svc.AddPreferredTimeRange(r.Context(), rng)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, out)
}

type respondInviteRequest struct {
	Response string `json:"response"`
}

// RespondInvite POST /api/meeting-assists/{meetingId}/invites/{attendeeId}/respond
func (h *MeetingHandler) RespondInvite(w http.ResponseWriter, r *http.Request) {
	var req respondInviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	v := mux.Vars(r)
	var status model.InviteStatus
	switch req.Response {
	case "accept", "ACCEPTED":
		status = model.InviteAccepted
	case "decline", "DECLINED":
		status = model.InviteDeclined
	default:
		respond.WriteBadRequest(w, "response must be accept or decline")
		return
	}
	if err := h.svc.RespondInvite(r.Context(), v["meetingId"], v["attendeeId"], status); err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// CompleteIntake POST /api/meeting-assists/{meetingId}/complete-intake
func (h *MeetingHandler) CompleteIntake(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if err := h.orch.CompleteIntake(r.Context(), v["meetingId"]); err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"state": string(model.StatePreferencesOpen)})
}

// SubmitForSolving POST /api/meeting-assists/{meetingId}/submit
// Returns as soon as the request is accepted; solving completes on the
// callback path.
func (h *MeetingHandler) SubmitForSolving(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if err := h.orch.Submit(r.Context(), v["meetingId"]); err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusAccepted, map[string]string{"state": string(model.StateSolving)})
}

// Lock POST /api/meeting-assists/{meetingId}/lock
// Sets lockAfter and submits in one step: locking is the host's signal that
// preference intake is over.
func (h *MeetingHandler) Lock(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if err := h.orch.Lock(r.Context(), v["meetingId"]); err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusAccepted, map[string]string{"state": string(model.StateSolving)})
}

// ExpandRecurrence POST /api/meeting-assists/{meetingId}/expand
func (h *MeetingHandler) ExpandRecurrence(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	children, err := h.svc.ExpandRecurrence(r.Context(), v["meetingId"])
	if err != nil {
		if errors.Is(err, recurrence.ErrNotRecurring) || errors.Is(err, recurrence.ErrInvalidInterval) {
			respond.WriteBadRequest(w, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"meetingAssists": children,
		"count":          len(children),
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelMeetingAssist POST /api/meeting-assists/{meetingId}/cancel
func (h *MeetingHandler) CancelMeetingAssist(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by host"
	}
	v := mux.Vars(r)
	if err := h.orch.Cancel(r.Context(), v["meetingId"], req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{"state": string(model.StateCancelled)})
}

// DeleteMeetingAssist DELETE /api/meeting-assists/{meetingId}
func (h *MeetingHandler) DeleteMeetingAssist(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if err := h.svc.DeleteMeetingAssist(r.Context(), v["meetingId"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
