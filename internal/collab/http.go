package collab

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/chronoplan/scheduler/internal/model"
)

// HTTPCalendarService talks to the calendar read/write collaborator over
// HTTP.
type HTTPCalendarService struct {
	client *resty.Client
}

// NewHTTPCalendarService constructs a client against baseURL.
func NewHTTPCalendarService(baseURL string) *HTTPCalendarService {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	return &HTTPCalendarService{client: c}
}

type busyResponse struct {
	Intervals []model.Interval `json:"intervals"`
}

func (s *HTTPCalendarService) BusyIntervals(ctx context.Context, attendeeID string, window model.Interval) ([]model.Interval, error) {
	var out busyResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("start", window.Start.Format(time.RFC3339)).
		SetQueryParam("end", window.End.Format(time.RFC3339)).
		SetResult(&out).
		Get(fmt.Sprintf("/api/attendees/%s/busy", attendeeID))
	if err != nil {
		return nil, fmt.Errorf("busy intervals request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("busy intervals: HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Intervals, nil
}

type createEventRequest struct {
	Interval model.Interval `json:"interval"`
	Metadata EventMetadata  `json:"metadata"`
}

type createEventResponse struct {
	EventID string `json:"eventId"`
}

func (s *HTTPCalendarService) CreateEvent(ctx context.Context, attendeeID string, interval model.Interval, meta EventMetadata) (string, error) {
	var out createEventResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(&createEventRequest{Interval: interval, Metadata: meta}).
		SetResult(&out).
		Post(fmt.Sprintf("/api/attendees/%s/events", attendeeID))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCalendarWrite, err)
	}
	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		return "", statusError(ErrCalendarWrite, resp)
	}
	return out.EventID, nil
}

func (s *HTTPCalendarService) CancelEvent(ctx context.Context, eventID string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/api/events/%s", eventID))
	if err != nil {
		return fmt.Errorf("cancel event request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusNoContent {
		return fmt.Errorf("cancel event: HTTP %d", resp.StatusCode())
	}
	return nil
}

// HTTPConferenceService provisions conference links over HTTP.
type HTTPConferenceService struct {
	client *resty.Client
}

func NewHTTPConferenceService(baseURL string) *HTTPConferenceService {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(30 * time.Second)
	return &HTTPConferenceService{client: c}
}

type createLinkRequest struct {
	HostID   string         `json:"hostId"`
	Interval model.Interval `json:"interval"`
}

func (s *HTTPConferenceService) CreateMeetingLink(ctx context.Context, hostID string, interval model.Interval) (MeetingLink, error) {
	var out MeetingLink
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(&createLinkRequest{HostID: hostID, Interval: interval}).
		SetResult(&out).
		Post("/api/meeting-links")
	if err != nil {
		return MeetingLink{}, fmt.Errorf("%w: %v", ErrConferenceProvision, err)
	}
	if resp.StatusCode() != http.StatusCreated && resp.StatusCode() != http.StatusOK {
		return MeetingLink{}, statusError(ErrConferenceProvision, resp)
	}
	return out, nil
}

// HTTPNotifier posts notification events; delivery is fire-and-forget and
// failures are only logged.
type HTTPNotifier struct {
	client *resty.Client
	log    zerolog.Logger
}

func NewHTTPNotifier(baseURL string, log zerolog.Logger) *HTTPNotifier {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)
	return &HTTPNotifier{client: c, log: log}
}

type notifyRequest struct {
	Event   model.NotificationEvent `json:"event"`
	Payload map[string]interface{}  `json:"payload"`
}

func (n *HTTPNotifier) Notify(ctx context.Context, event model.NotificationEvent, payload map[string]interface{}) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(&notifyRequest{Event: event, Payload: payload}).
		Post("/api/notifications")
	if err != nil {
		n.log.Warn().Err(err).Str("event", string(event)).Msg("notification delivery failed")
		return
	}
	if resp.StatusCode() >= 300 {
		n.log.Warn().Int("status", resp.StatusCode()).Str("event", string(event)).Msg("notification rejected")
	}
}

// NopNotifier discards notifications; used when no notify endpoint is
// configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, model.NotificationEvent, map[string]interface{}) {}
