// Package recurrence expands a template meeting assist into concrete child
// instances. Expansion is a pure function so it can be tested without
// persistence; callers persist the returned instances.
package recurrence

import (
	"errors"
	"time"

	"github.com/chronoplan/scheduler/internal/model"
)

// DefaultMaxOccurrences bounds runaway recurrence definitions when the caller
// does not configure a cap.
const DefaultMaxOccurrences = 52

// ErrNotRecurring indicates the template has no recurrence rule.
var ErrNotRecurring = errors.New("recurrence: template has no frequency")

// ErrInvalidInterval indicates a non-positive recurrence interval.
var ErrInvalidInterval = errors.New("recurrence: interval must be positive")

// Instance is one generated child: the meeting plus its copied ranges.
type Instance struct {
	Meeting *model.MeetingAssist
	Ranges  []*model.MeetingAssistPreferredTimeRange
}

// Expander generates child instances from a template.
type Expander struct {
	maxOccurrences int
}

// NewExpander constructs an Expander. maxOccurrences <= 0 selects the default
// cap.
func NewExpander(maxOccurrences int) *Expander {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Expander{maxOccurrences: maxOccurrences}
}

// Expand produces one child per occurrence after the template, each with its
// window and expiry advanced by interval × frequency-unit, originalMeetingId
// set to the template id, and every preferred range copied. Weekday-anchored
// ranges are unchanged by the shift; absolute-date ranges move with the
// window. Generation stops at the template's until date or at the cap,
// whichever comes first. Children start in Created with no submission state.
func (e *Expander) Expand(tpl *model.MeetingAssist, ranges []*model.MeetingAssistPreferredTimeRange) ([]Instance, error) {
	if tpl.Frequency == nil {
		return nil, ErrNotRecurring
	}
	interval := tpl.Interval
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}

	var out []Instance
	for n := 1; n <= e.maxOccurrences; n++ {
		start := advance(tpl.WindowStartDate, *tpl.Frequency, interval*n)
		if tpl.Until != nil && pastUntil(start, *tpl.Until) {
			break
		}
		offset := start.Sub(tpl.WindowStartDate)

		child := *tpl
		child.MeetingID = "" // assigned by the store
		child.State = model.StateCreated
		child.StateReason = nil
		child.WindowStartDate = start
		child.WindowEndDate = tpl.WindowEndDate.Add(offset)
		child.ExpireDate = tpl.ExpireDate.Add(offset)
		orig := tpl.MeetingID
		child.OriginalMeetingID = &orig
		// children are single occurrences, not templates themselves
		child.Frequency = nil
		child.Interval = 0
		child.Until = nil
		child.AttendeeRespondedCount = 0
		child.LockAfter = false
		child.CorrelationID = nil
		child.SolveAttempts = 0
		child.SubmittedAt = nil

		copied := make([]*model.MeetingAssistPreferredTimeRange, 0, len(ranges))
		for _, r := range ranges {
			c := *r
			c.RangeID = ""
			c.MeetingID = ""
			if c.Date != nil {
				d := c.Date.Add(offset)
				c.Date = &d
			}
			copied = append(copied, &c)
		}
		out = append(out, Instance{Meeting: &child, Ranges: copied})
	}
	return out, nil
}

// pastUntil reports whether start falls on a later calendar day than until.
// The until bound is date-granular and inclusive: an occurrence on the until
// date is generated regardless of either clock time.
func pastUntil(start, until time.Time) bool {
	sy, sm, sd := start.UTC().Date()
	uy, um, ud := until.UTC().Date()
	s := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	u := time.Date(uy, um, ud, 0, 0, 0, 0, time.UTC)
	return s.After(u)
}

// advance moves t forward by count units of freq. Daily and weekly shifts are
// whole days so weekday anchoring is preserved; monthly and yearly use
// calendar arithmetic.
func advance(t time.Time, freq model.Frequency, count int) time.Time {
	switch freq {
	case model.FreqDaily:
		return t.AddDate(0, 0, count)
	case model.FreqWeekly:
		return t.AddDate(0, 0, 7*count)
	case model.FreqMonthly:
		return t.AddDate(0, count, 0)
	case model.FreqYearly:
		return t.AddDate(count, 0, 0)
	default:
		return t
	}
}
