package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/store"
)

// sqliteStore implements store.Store using the modernc SQLite driver. It is
// the local/dev and test backend; postgres is used in deployment.
type sqliteStore struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database file and ensures the schema.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db)
}

// NewWithDB allows wiring with an existing connection (used by tests).
func NewWithDB(db *sql.DB) (store.Store, error) {
	if err := EnsureSchema(db); err != nil {
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) MeetingAssists() store.MeetingAssists             { return &meetings{db: s.db} }
func (s *sqliteStore) Attendees() store.Attendees                       { return &attendees{db: s.db} }
func (s *sqliteStore) PreferredTimeRanges() store.PreferredTimeRanges   { return &ranges{db: s.db} }
func (s *sqliteStore) Invites() store.Invites                           { return &invites{db: s.db} }
func (s *sqliteStore) Ping(ctx context.Context) error                   { return s.db.PingContext(ctx) }

// --- MeetingAssists ---

type meetings struct{ db *sql.DB }

const meetingColumns = `meeting_id, host_id, state, state_reason, attendee_count, attendee_responded_count,
 min_threshold_count, window_start_date, window_end_date, duration_minutes, buffer_before_minutes,
 buffer_after_minutes, priority, timezone, enable_conference, conference_app, cancel_if_any_refuse,
 guarantee_availability, lock_after, expire_date, frequency, recur_interval, until_date,
 original_meeting_id, correlation_id, solve_attempts, submitted_at, creation_time, update_time, deleted_at`

func (q *meetings) Create(ctx context.Context, m *model.MeetingAssist) (*model.MeetingAssist, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := *m
	if out.MeetingID == "" {
		out.MeetingID = uuid.New().String()
	}
	if out.State == "" {
		out.State = model.StateCreated
	}
	now := time.Now().UTC()
	out.CreationTime = now
	out.UpdateTime = now
	var freq *string
	if out.Frequency != nil {
		f := string(*out.Frequency)
		freq = &f
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO meeting_assists (`+meetingColumns+`)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		out.MeetingID, out.HostID, string(out.State), out.StateReason, out.AttendeeCount,
		out.AttendeeRespondedCount, out.MinThresholdCount, out.WindowStartDate.UTC(), out.WindowEndDate.UTC(),
		out.DurationMinutes, out.BufferBeforeMinutes, out.BufferAfterMinutes, out.Priority, out.Timezone,
		out.EnableConference, out.ConferenceApp, out.CancelIfAnyRefuse, out.GuaranteeAvailability,
		out.LockAfter, out.ExpireDate.UTC(), freq, out.Interval, nullTime(out.Until),
		out.OriginalMeetingID, out.CorrelationID, out.SolveAttempts, nullTime(out.SubmittedAt),
		out.CreationTime, out.UpdateTime, nil)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (q *meetings) Get(ctx context.Context, meetingID string) (*model.MeetingAssist, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meeting_assists
        WHERE meeting_id = ? AND deleted_at IS NULL`, meetingID)
	return scanMeeting(row)
}

func (q *meetings) GetByCorrelationID(ctx context.Context, correlationID string) (*model.MeetingAssist, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meeting_assists
        WHERE correlation_id = ? AND deleted_at IS NULL`, correlationID)
	return scanMeeting(row)
}

func (q *meetings) TransitionState(ctx context.Context, meetingID string, from []model.State, to model.State, reason *string) error {
	if len(from) == 0 {
		return model.Invalid("transition requires expected states")
	}
	args := []interface{}{string(to), reason, time.Now().UTC(), meetingID}
	res, err := q.db.ExecContext(ctx, `UPDATE meeting_assists
        SET state = ?, state_reason = ?, update_time = ?
        WHERE meeting_id = ? AND deleted_at IS NULL AND state IN `+statePlaceholders(len(from)),
		append(args, stateArgs(from)...)...)
	if err != nil {
		return err
	}
	return checkTransition(ctx, q.db, res, meetingID)
}

func (q *meetings) RecordSubmission(ctx context.Context, meetingID, correlationID string, from []model.State) error {
	if len(from) == 0 {
		return model.Invalid("submission requires expected states")
	}
	now := time.Now().UTC()
	args := []interface{}{string(model.StateSolving), correlationID, now, now, meetingID}
	res, err := q.db.ExecContext(ctx, `UPDATE meeting_assists
        SET state = ?, correlation_id = ?, solve_attempts = solve_attempts + 1,
            submitted_at = ?, update_time = ?
        WHERE meeting_id = ? AND deleted_at IS NULL AND state IN `+statePlaceholders(len(from)),
		append(args, stateArgs(from)...)...)
	if err != nil {
		return err
	}
	return checkTransition(ctx, q.db, res, meetingID)
}

func (q *meetings) SetLockAfter(ctx context.Context, meetingID string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE meeting_assists SET lock_after = 1, update_time = ?
        WHERE meeting_id = ? AND deleted_at IS NULL`, time.Now().UTC(), meetingID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (q *meetings) IncrementResponded(ctx context.Context, meetingID string, delta int) error {
	res, err := q.db.ExecContext(ctx, `UPDATE meeting_assists
        SET attendee_responded_count = MAX(0, MIN(attendee_count, attendee_responded_count + ?)),
            update_time = ?
        WHERE meeting_id = ? AND deleted_at IS NULL`, delta, time.Now().UTC(), meetingID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (q *meetings) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.MeetingAssist, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meeting_assists
        WHERE deleted_at IS NULL AND expire_date < ?
          AND state NOT IN ('APPLIED','CANCELLED','EXPIRED','FAILED')
        ORDER BY expire_date ASC LIMIT ?`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return scanMeetings(rows)
}

func (q *meetings) ListDueForSubmit(ctx context.Context, now time.Time, leadTime time.Duration, limit int) ([]*model.MeetingAssist, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meeting_assists
        WHERE deleted_at IS NULL AND state = 'PREFERENCES_OPEN' AND window_start_date <= ?
        ORDER BY window_start_date ASC LIMIT ?`, now.Add(leadTime).UTC(), limit)
	if err != nil {
		return nil, err
	}
	return scanMeetings(rows)
}

func (q *meetings) ListStaleSolving(ctx context.Context, now time.Time, wait time.Duration, limit int) ([]*model.MeetingAssist, error) {
	cutoff := now.Add(-wait).UTC()
	rows, err := q.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meeting_assists
        WHERE deleted_at IS NULL AND state IN ('SUBMITTED','SOLVING')
          AND COALESCE(submitted_at, update_time) < ?
        ORDER BY update_time ASC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return scanMeetings(rows)
}

func (q *meetings) SoftDelete(ctx context.Context, meetingID string) error {
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `UPDATE meeting_assists SET deleted_at = ?, update_time = ?
        WHERE meeting_id = ? AND deleted_at IS NULL`, now, now, meetingID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// checkTransition maps a zero-row conditional update to ErrConflict or
// ErrNotFound depending on whether the row exists at all.
func checkTransition(ctx context.Context, db *sql.DB, res sql.Result, meetingID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM meeting_assists WHERE meeting_id = ? AND deleted_at IS NULL`, meetingID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	return model.ErrConflict
}

func statePlaceholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}

func stateArgs(states []model.State) []interface{} {
	out := make([]interface{}, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMeeting(row rowScanner) (*model.MeetingAssist, error) {
	var m model.MeetingAssist
	var state, freq, confApp, origID, corrID, reason sql.NullString
	var until, submitted, deleted sql.NullTime
	err := row.Scan(&m.MeetingID, &m.HostID, &state, &reason, &m.AttendeeCount, &m.AttendeeRespondedCount,
		&m.MinThresholdCount, &m.WindowStartDate, &m.WindowEndDate, &m.DurationMinutes,
		&m.BufferBeforeMinutes, &m.BufferAfterMinutes, &m.Priority, &m.Timezone, &m.EnableConference,
		&confApp, &m.CancelIfAnyRefuse, &m.GuaranteeAvailability, &m.LockAfter, &m.ExpireDate,
		&freq, &m.Interval, &until, &origID, &corrID, &m.SolveAttempts, &submitted,
		&m.CreationTime, &m.UpdateTime, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan meeting assist: %w", err)
	}
	m.State = model.State(state.String)
	if reason.Valid {
		m.StateReason = &reason.String
	}
	if confApp.Valid {
		m.ConferenceApp = &confApp.String
	}
	if freq.Valid {
		f := model.Frequency(freq.String)
		m.Frequency = &f
	}
	if until.Valid {
		t := until.Time
		m.Until = &t
	}
	if origID.Valid {
		m.OriginalMeetingID = &origID.String
	}
	if corrID.Valid {
		m.CorrelationID = &corrID.String
	}
	if submitted.Valid {
		t := submitted.Time
		m.SubmittedAt = &t
	}
	if deleted.Valid {
		t := deleted.Time
		m.DeletedAt = &t
	}
	return &m, nil
}

func scanMeetings(rows *sql.Rows) ([]*model.MeetingAssist, error) {
	defer rows.Close()
	var out []*model.MeetingAssist
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Attendees ---

type attendees struct{ db *sql.DB }

func (q *attendees) Create(ctx context.Context, a *model.MeetingAssistAttendee) (*model.MeetingAssistAttendee, error) {
	out := *a
	if out.AttendeeID == "" {
		out.AttendeeID = uuid.New().String()
	}
	out.CreationTime = time.Now().UTC()
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	_, err = tx.ExecContext(ctx, `INSERT INTO meeting_assist_attendees
        (attendee_id, meeting_id, host_id, user_id, external_attendee, timezone, primary_email, creation_time)
        VALUES (?,?,?,?,?,?,?,?)`,
		out.AttendeeID, out.MeetingID, out.HostID, out.UserID, out.ExternalAttendee,
		out.Timezone, out.PrimaryEmail, out.CreationTime)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meeting_assists SET attendee_count = attendee_count + 1,
        update_time = ? WHERE meeting_id = ?`, out.CreationTime, out.MeetingID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (q *attendees) Get(ctx context.Context, meetingID, attendeeID string) (*model.MeetingAssistAttendee, error) {
	row := q.db.QueryRowContext(ctx, `SELECT attendee_id, meeting_id, host_id, user_id, external_attendee,
        timezone, primary_email, creation_time FROM meeting_assist_attendees
        WHERE meeting_id = ? AND attendee_id = ?`, meetingID, attendeeID)
	return scanAttendee(row)
}

func (q *attendees) List(ctx context.Context, meetingID string) ([]*model.MeetingAssistAttendee, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT attendee_id, meeting_id, host_id, user_id, external_attendee,
        timezone, primary_email, creation_time FROM meeting_assist_attendees
        WHERE meeting_id = ? ORDER BY creation_time ASC`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MeetingAssistAttendee
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttendee(row rowScanner) (*model.MeetingAssistAttendee, error) {
	var a model.MeetingAssistAttendee
	var userID sql.NullString
	err := row.Scan(&a.AttendeeID, &a.MeetingID, &a.HostID, &userID, &a.ExternalAttendee,
		&a.Timezone, &a.PrimaryEmail, &a.CreationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		a.UserID = &userID.String
	}
	return &a, nil
}

// --- PreferredTimeRanges ---

type ranges struct{ db *sql.DB }

func (q *ranges) Create(ctx context.Context, r *model.MeetingAssistPreferredTimeRange) (*model.MeetingAssistPreferredTimeRange, error) {
	out := *r
	if out.RangeID == "" {
		out.RangeID = uuid.New().String()
	}
	out.CreationTime = time.Now().UTC()
	var dow interface{}
	if out.DayOfWeek != nil {
		dow = int(*out.DayOfWeek)
	}
	_, err := q.db.ExecContext(ctx, `INSERT INTO meeting_assist_preferred_time_ranges
        (range_id, meeting_id, attendee_id, day_of_week, range_date, start_time, end_time, creation_time)
        VALUES (?,?,?,?,?,?,?,?)`,
		out.RangeID, out.MeetingID, out.AttendeeID, dow, nullTime(out.Date),
		out.StartTime, out.EndTime, out.CreationTime)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (q *ranges) List(ctx context.Context, meetingID string) ([]*model.MeetingAssistPreferredTimeRange, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT range_id, meeting_id, attendee_id, day_of_week, range_date,
        start_time, end_time, creation_time FROM meeting_assist_preferred_time_ranges
        WHERE meeting_id = ? ORDER BY creation_time ASC`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MeetingAssistPreferredTimeRange
	for rows.Next() {
		var r model.MeetingAssistPreferredTimeRange
		var attendeeID sql.NullString
		var dow sql.NullInt64
		var date sql.NullTime
		if err := rows.Scan(&r.RangeID, &r.MeetingID, &attendeeID, &dow, &date,
			&r.StartTime, &r.EndTime, &r.CreationTime); err != nil {
			return nil, err
		}
		if attendeeID.Valid {
			r.AttendeeID = &attendeeID.String
		}
		if dow.Valid {
			wd := time.Weekday(dow.Int64)
			r.DayOfWeek = &wd
		}
		if date.Valid {
			t := date.Time
			r.Date = &t
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (q *ranges) DeleteByMeeting(ctx context.Context, meetingID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM meeting_assist_preferred_time_ranges WHERE meeting_id = ?`, meetingID)
	return err
}

// --- Invites ---

type invites struct{ db *sql.DB }

func (q *invites) Create(ctx context.Context, i *model.MeetingAssistInvite) (*model.MeetingAssistInvite, error) {
	out := *i
	if out.InviteID == "" {
		out.InviteID = uuid.New().String()
	}
	if out.Status == "" {
		out.Status = model.InvitePending
	}
	out.CreationTime = time.Now().UTC()
	_, err := q.db.ExecContext(ctx, `INSERT INTO meeting_assist_invites
        (invite_id, meeting_id, attendee_id, status, responded_at, creation_time)
        VALUES (?,?,?,?,?,?)`,
		out.InviteID, out.MeetingID, out.AttendeeID, string(out.Status),
		nullTime(out.RespondedAt), out.CreationTime)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (q *invites) List(ctx context.Context, meetingID string) ([]*model.MeetingAssistInvite, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT invite_id, meeting_id, attendee_id, status, responded_at, creation_time
        FROM meeting_assist_invites WHERE meeting_id = ? ORDER BY creation_time ASC`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MeetingAssistInvite
	for rows.Next() {
		var i model.MeetingAssistInvite
		var status string
		var responded sql.NullTime
		if err := rows.Scan(&i.InviteID, &i.MeetingID, &i.AttendeeID, &status, &responded, &i.CreationTime); err != nil {
			return nil, err
		}
		i.Status = model.InviteStatus(status)
		if responded.Valid {
			t := responded.Time
			i.RespondedAt = &t
		}
		out = append(out, &i)
	}
	return out, rows.Err()
}

func (q *invites) SetStatus(ctx context.Context, meetingID, attendeeID string, status model.InviteStatus, respondedAt time.Time) (model.InviteStatus, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	// Claim the pending invite conditionally; only the claiming caller
	// bumps the responded count, so concurrent responses for the same
	// invite cannot double-count.
	res, err := tx.ExecContext(ctx, `UPDATE meeting_assist_invites SET status = ?, responded_at = ?
        WHERE meeting_id = ? AND attendee_id = ? AND status = ?`,
		string(status), respondedAt.UTC(), meetingID, attendeeID, string(model.InvitePending))
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		if _, err := tx.ExecContext(ctx, `UPDATE meeting_assists
            SET attendee_responded_count = MIN(attendee_count, attendee_responded_count + 1),
                update_time = ?
            WHERE meeting_id = ? AND deleted_at IS NULL`, time.Now().UTC(), meetingID); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", err
		}
		return model.InvitePending, nil
	}

	// already responded: overwrite the status, count unchanged
	var prev string
	err = tx.QueryRowContext(ctx, `SELECT status FROM meeting_assist_invites
        WHERE meeting_id = ? AND attendee_id = ?`, meetingID, attendeeID).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx, `UPDATE meeting_assist_invites SET status = ?, responded_at = ?
        WHERE meeting_id = ? AND attendee_id = ?`, string(status), respondedAt.UTC(), meetingID, attendeeID)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return model.InviteStatus(prev), nil
}
