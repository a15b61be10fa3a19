package model

import "time"

// State is the lifecycle state of a MeetingAssist.
type State string

const (
	StateCreated         State = "CREATED"
	StatePreferencesOpen State = "PREFERENCES_OPEN"
	StateSubmitted       State = "SUBMITTED"
	StateSolving         State = "SOLVING"
	StateSolved          State = "SOLVED"
	StateApplying        State = "APPLYING"
	StateApplied         State = "APPLIED"
	StateCancelled       State = "CANCELLED"
	StateExpired         State = "EXPIRED"
	StateFailed          State = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	switch s {
	case StateApplied, StateCancelled, StateExpired, StateFailed:
		return true
	}
	return false
}

// Frequency is the recurrence unit of a MeetingAssist template.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// InviteStatus tracks a single attendee's response.
type InviteStatus string

const (
	InvitePending  InviteStatus = "PENDING"
	InviteAccepted InviteStatus = "ACCEPTED"
	InviteDeclined InviteStatus = "DECLINED"
)

// MeetingAssist is the unit of scheduling work: one meeting request to be
// placed inside a search window by the external solver.
type MeetingAssist struct {
	MeetingID              string     `json:"meetingId"`
	HostID                 string     `json:"hostId"`
	State                  State      `json:"state"`
	StateReason            *string    `json:"stateReason,omitempty"`
	AttendeeCount          int        `json:"attendeeCount"`
	AttendeeRespondedCount int        `json:"attendeeRespondedCount"`
	MinThresholdCount      int        `json:"minThresholdCount"`
	WindowStartDate        time.Time  `json:"windowStartDate"`
	WindowEndDate          time.Time  `json:"windowEndDate"`
	DurationMinutes        int        `json:"durationMinutes"`
	BufferBeforeMinutes    int        `json:"bufferBeforeMinutes"`
	BufferAfterMinutes     int        `json:"bufferAfterMinutes"`
	Priority               int        `json:"priority"`
	Timezone               string     `json:"timezone"`
	EnableConference       bool       `json:"enableConference"`
	ConferenceApp          *string    `json:"conferenceApp,omitempty"`
	CancelIfAnyRefuse      bool       `json:"cancelIfAnyRefuse"`
	GuaranteeAvailability  bool       `json:"guaranteeAvailability"`
	LockAfter              bool       `json:"lockAfter"`
	ExpireDate             time.Time  `json:"expireDate"`
	Frequency              *Frequency `json:"frequency,omitempty"`
	Interval               int        `json:"interval,omitempty"`
	Until                  *time.Time `json:"until,omitempty"`
	OriginalMeetingID      *string    `json:"originalMeetingId,omitempty"`

	// Submission bookkeeping; a fresh correlation id is issued per attempt.
	CorrelationID *string    `json:"correlationId,omitempty"`
	SolveAttempts int        `json:"solveAttempts"`
	SubmittedAt   *time.Time `json:"submittedAt,omitempty"`

	CreationTime time.Time  `json:"creationTime"`
	UpdateTime   time.Time  `json:"updateTime"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

// Validate checks the structural invariants of a MeetingAssist.
func (m *MeetingAssist) Validate() error {
	if m.HostID == "" {
		return Invalid("hostId is required")
	}
	if !m.WindowStartDate.Before(m.WindowEndDate) {
		return Invalid("windowStartDate must be before windowEndDate")
	}
	if m.DurationMinutes <= 0 {
		return Invalid("duration must be positive")
	}
	if m.AttendeeRespondedCount > m.AttendeeCount {
		return Invalid("attendeeRespondedCount exceeds attendeeCount")
	}
	if m.BufferBeforeMinutes < 0 || m.BufferAfterMinutes < 0 {
		return Invalid("bufferTime must not be negative")
	}
	return nil
}

// MeetingAssistAttendee is a participant of one MeetingAssist.
type MeetingAssistAttendee struct {
	AttendeeID       string    `json:"attendeeId"`
	MeetingID        string    `json:"meetingId"`
	HostID           string    `json:"hostId"`
	UserID           *string   `json:"userId,omitempty"`
	ExternalAttendee bool      `json:"externalAttendee"`
	Timezone         string    `json:"timezone"`
	PrimaryEmail     string    `json:"primaryEmail"`
	CreationTime     time.Time `json:"creationTime"`
}

// MeetingAssistPreferredTimeRange is one allowed interval for placement.
// AttendeeID nil means a host-level default applied to attendees lacking
// their own ranges. Either DayOfWeek or Date is set, not both.
type MeetingAssistPreferredTimeRange struct {
	RangeID      string        `json:"rangeId"`
	MeetingID    string        `json:"meetingId"`
	AttendeeID   *string       `json:"attendeeId,omitempty"`
	DayOfWeek    *time.Weekday `json:"dayOfWeek,omitempty"`
	Date         *time.Time    `json:"date,omitempty"`
	StartTime    string        `json:"startTime"` // "HH:MM", meeting timezone
	EndTime      string        `json:"endTime"`
	CreationTime time.Time     `json:"creationTime"`
}

// MeetingAssistInvite tracks per-attendee response state.
type MeetingAssistInvite struct {
	InviteID     string       `json:"inviteId"`
	MeetingID    string       `json:"meetingId"`
	AttendeeID   string       `json:"attendeeId"`
	Status       InviteStatus `json:"status"`
	RespondedAt  *time.Time   `json:"respondedAt,omitempty"`
	CreationTime time.Time    `json:"creationTime"`
}

// Interval is a half-open [Start, End) time span.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// SolveRequest is the transient payload submitted to the external solver.
// It is not persisted beyond the correlation id recorded on the meeting.
type SolveRequest struct {
	CorrelationID   string                            `json:"correlationId"`
	MeetingID       string                            `json:"meetingId"`
	Window          Interval                          `json:"window"`
	DurationMinutes int                               `json:"durationMinutes"`
	BufferBefore    int                               `json:"bufferBeforeMinutes"`
	BufferAfter     int                               `json:"bufferAfterMinutes"`
	PreferredRanges []*MeetingAssistPreferredTimeRange `json:"preferredRanges"`
	BusyIntervals   map[string][]Interval             `json:"busyIntervals"` // keyed by attendeeId
}

// SolveAssignment is one attendee's placement in a SolveResult.
type SolveAssignment struct {
	AttendeeID string    `json:"attendeeId"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// SolveResult is the solver's out-of-band callback payload.
type SolveResult struct {
	CorrelationID string            `json:"correlationId"`
	Infeasible    bool              `json:"infeasible,omitempty"`
	Reason        *string           `json:"reason,omitempty"`
	Assignments   []SolveAssignment `json:"assignments,omitempty"`
}

// ApplyOutcome is the per-attendee result category of calendar application.
type ApplyOutcome string

const (
	ApplySucceeded ApplyOutcome = "APPLIED"
	ApplyFailed    ApplyOutcome = "APPLICATION_FAILED"
)

// PerAttendeeResult reports one attendee's calendar application outcome.
type PerAttendeeResult struct {
	AttendeeID string       `json:"attendeeId"`
	Outcome    ApplyOutcome `json:"outcome"`
	EventID    string       `json:"eventId,omitempty"`
	JoinURL    string       `json:"joinUrl,omitempty"`
	Error      string       `json:"error,omitempty"`
	Attempts   int          `json:"attempts"`
}

// NotificationEvent names the fire-and-forget notifications emitted on
// terminal transitions.
type NotificationEvent string

const (
	NotifyMeetingApplied   NotificationEvent = "MeetingApplied"
	NotifyMeetingCancelled NotificationEvent = "MeetingCancelled"
	NotifyMeetingExpired   NotificationEvent = "MeetingExpired"
)
