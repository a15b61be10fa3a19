package validate

import (
	"fmt"
	"regexp"
	"time"
)

var emailRx = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// timeOfDayRx matches "HH:MM" 24-hour clock values.
var timeOfDayRx = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

func Email(v string) error {
	if v == "" {
		return fmt.Errorf("email is required")
	}
	if len(v) > 320 || !emailRx.MatchString(v) {
		return fmt.Errorf("invalid email")
	}
	return nil
}

func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

// TimeOfDay validates an "HH:MM" wall-clock string.
func TimeOfDay(field, v string) error {
	if !timeOfDayRx.MatchString(v) {
		return fmt.Errorf("%s must be HH:MM", field)
	}
	return nil
}

// Timezone validates an IANA timezone name.
func Timezone(v string) error {
	if v == "" {
		return nil // defaults to the meeting's zone
	}
	if _, err := time.LoadLocation(v); err != nil {
		return fmt.Errorf("invalid timezone %q", v)
	}
	return nil
}

// -------- Request specific helpers ----------

// CreateMeetingAssist validates intake input for a new meeting.
func CreateMeetingAssist(hostID string, windowStart, windowEnd time.Time, durationMinutes int) error {
	if err := NonEmpty("hostId", hostID); err != nil {
		return err
	}
	if windowStart.IsZero() || windowEnd.IsZero() {
		return fmt.Errorf("windowStartDate and windowEndDate are required")
	}
	if !windowStart.Before(windowEnd) {
		return fmt.Errorf("windowStartDate must be before windowEndDate")
	}
	if durationMinutes <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	return nil
}

// PreferredTimeRange validates one allowed interval.
func PreferredTimeRange(dayOfWeek *int, date *time.Time, startTime, endTime string) error {
	if dayOfWeek == nil && date == nil {
		return fmt.Errorf("dayOfWeek or date is required")
	}
	if dayOfWeek != nil && date != nil {
		return fmt.Errorf("dayOfWeek and date are mutually exclusive")
	}
	if dayOfWeek != nil && (*dayOfWeek < 0 || *dayOfWeek > 6) {
		return fmt.Errorf("dayOfWeek must be 0 (Sunday) through 6 (Saturday)")
	}
	if err := TimeOfDay("startTime", startTime); err != nil {
		return err
	}
	if err := TimeOfDay("endTime", endTime); err != nil {
		return err
	}
	if startTime >= endTime {
		return fmt.Errorf("startTime must be before endTime")
	}
	return nil
}
