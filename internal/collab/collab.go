// Package collab defines the external collaborators the orchestrator talks
// to: the calendar read/write service, the conferencing provider, and the
// notification service. HTTP implementations live in this package; tests use
// in-file fakes.
package collab

import (
	"context"
	"errors"

	"github.com/chronoplan/scheduler/internal/model"
)

// ErrCalendarWrite wraps calendar event creation failures.
var ErrCalendarWrite = errors.New("calendar write error")

// ErrConferenceProvision wraps conference link creation failures.
var ErrConferenceProvision = errors.New("conference provision error")

// EventMetadata carries display fields for a created calendar event.
type EventMetadata struct {
	Title         string `json:"title"`
	MeetingID     string `json:"meetingId"`
	JoinURL       string `json:"joinUrl,omitempty"`
	ConferenceApp string `json:"conferenceApp,omitempty"`
}

// CalendarService is the calendar read/write collaborator.
type CalendarService interface {
	BusyIntervals(ctx context.Context, attendeeID string, window model.Interval) ([]model.Interval, error)
	CreateEvent(ctx context.Context, attendeeID string, interval model.Interval, meta EventMetadata) (eventID string, err error)
	CancelEvent(ctx context.Context, eventID string) error
}

// MeetingLink is the pair of URLs returned by the conferencing provider.
type MeetingLink struct {
	JoinURL string `json:"joinUrl"`
	HostURL string `json:"hostUrl"`
}

// ConferenceService provisions conference links.
type ConferenceService interface {
	CreateMeetingLink(ctx context.Context, hostID string, interval model.Interval) (MeetingLink, error)
}

// Notifier delivers fire-and-forget user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, event model.NotificationEvent, payload map[string]interface{})
}
