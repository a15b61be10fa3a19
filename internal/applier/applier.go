// Package applier writes a solved time slot to each attendee's calendar.
// Attendees are isolated: one network operation per attendee, run on a
// bounded worker pool, with per-attendee bounded exponential backoff. The
// aggregated results are collected after all operations settle.
package applier

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/chronoplan/scheduler/internal/collab"
	"github.com/chronoplan/scheduler/internal/model"
)

// Config controls pool width and retry behaviour.
type Config struct {
	Workers     int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxInterval time.Duration
}

// Applier creates calendar events and conference links for a solved meeting.
type Applier struct {
	calendar   collab.CalendarService
	conference collab.ConferenceService
	cfg        Config
	log        zerolog.Logger
}

// New constructs an Applier. Zero-value config fields get defaults.
func New(cal collab.CalendarService, conf collab.ConferenceService, cfg Config, log zerolog.Logger) *Applier {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	return &Applier{calendar: cal, conference: conf, cfg: cfg, log: log}
}

// Apply writes the solved interval to every attendee's calendar. A failure
// for one attendee never blocks the others; each slot in the returned slice
// corresponds to the attendee at the same index.
func (a *Applier) Apply(ctx context.Context, m *model.MeetingAssist, attendees []*model.MeetingAssistAttendee, slot model.Interval) []model.PerAttendeeResult {
	link := a.provisionLink(ctx, m, slot)

	results := make([]model.PerAttendeeResult, len(attendees))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := a.cfg.Workers
	if workers > len(attendees) {
		workers = len(attendees)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = a.applyOne(ctx, m, attendees[i], slot, link)
			}
		}()
	}
	for i := range attendees {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

// provisionLink creates the shared conference link when the meeting asks for
// one. Exhausted retries degrade to a linkless meeting rather than failing
// the application.
func (a *Applier) provisionLink(ctx context.Context, m *model.MeetingAssist, slot model.Interval) collab.MeetingLink {
	if !m.EnableConference || a.conference == nil {
		return collab.MeetingLink{}
	}
	var link collab.MeetingLink
	op := func() error {
		var err error
		link, err = a.conference.CreateMeetingLink(ctx, m.HostID, slot)
		if err != nil && collab.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, a.newBackOff(ctx)); err != nil {
		a.log.Warn().Err(err).Str("meeting_id", m.MeetingID).Msg("conference link provisioning exhausted retries")
		return collab.MeetingLink{}
	}
	return link
}

func (a *Applier) applyOne(ctx context.Context, m *model.MeetingAssist, at *model.MeetingAssistAttendee, slot model.Interval, link collab.MeetingLink) model.PerAttendeeResult {
	res := model.PerAttendeeResult{AttendeeID: at.AttendeeID}
	meta := collab.EventMetadata{
		Title:     "Meeting",
		MeetingID: m.MeetingID,
		JoinURL:   link.JoinURL,
	}
	if m.ConferenceApp != nil {
		meta.ConferenceApp = *m.ConferenceApp
	}

	var eventID string
	op := func() error {
		res.Attempts++
		var err error
		eventID, err = a.calendar.CreateEvent(ctx, at.AttendeeID, slot, meta)
		if err != nil && collab.IsPermanent(err) {
			// a client error the calendar will keep rejecting
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, a.newBackOff(ctx)); err != nil {
		a.log.Error().Err(err).
			Str("meeting_id", m.MeetingID).
			Str("attendee_id", at.AttendeeID).
			Int("attempts", res.Attempts).
			Msg("calendar write exhausted retries")
		res.Outcome = model.ApplyFailed
		res.Error = err.Error()
		return res
	}
	res.Outcome = model.ApplySucceeded
	res.EventID = eventID
	res.JoinURL = link.JoinURL
	return res
}

// Rollback cancels the calendar events of every succeeded result; issued as
// compensation when the meeting as a whole fails the threshold policy.
func (a *Applier) Rollback(ctx context.Context, results []model.PerAttendeeResult) {
	for _, r := range results {
		if r.Outcome != model.ApplySucceeded || r.EventID == "" {
			continue
		}
		if err := a.calendar.CancelEvent(ctx, r.EventID); err != nil {
			a.log.Error().Err(err).
				Str("attendee_id", r.AttendeeID).
				Str("event_id", r.EventID).
				Msg("compensating cancellation failed")
		}
	}
}

func (a *Applier) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.BaseBackoff
	bo.MaxInterval = a.cfg.MaxInterval
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(a.cfg.MaxAttempts-1)), ctx)
}
