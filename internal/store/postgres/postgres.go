package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/chronoplan/scheduler/internal/model"
	"github.com/chronoplan/scheduler/internal/store"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and verifies
// connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewWithDB constructs a native Postgres store backed directly by database/sql.
func NewWithDB(db *sql.DB) store.Store { return &pgStore{db: db} }

type pgStore struct{ db *sql.DB }

func (s *pgStore) MeetingAssists() store.MeetingAssists           { return &meetings{db: s.db} }
func (s *pgStore) Attendees() store.Attendees                     { return &attendees{db: s.db} }
func (s *pgStore) PreferredTimeRanges() store.PreferredTimeRanges { return &ranges{db: s.db} }
func (s *pgStore) Invites() store.Invites                         { return &invites{db: s.db} }
func (s *pgStore) Ping(ctx context.Context) error                 { return s.db.PingContext(ctx) }

// Bootstrap performs a connectivity check to ensure Postgres is reachable.
// Ping-only since deploy migrations handle schema setup.
func Bootstrap(ctx context.Context, dsn string) error {
	if dsn == "" {
		return nil
	}
	db, err := Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return db.PingContext(ctx)
}

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
	var freq *string
	if out.Frequency != nil {
		f := string(*out.Frequency)
		freq = &f
	}
	row := q.db.QueryRowContext(ctx, `INSERT INTO meeting_assists
        (meeting_id, host_id, state, state_reason, attendee_count, attendee_responded_count,
         min_threshold_count, window_start_date, window_end_date, duration_minutes,
         buffer_before_minutes, buffer_after_minutes, priority, timezone, enable_conference,
         conference_app, cancel_if_any_refuse, guarantee_availability, lock_after, expire_date,
         frequency, recur_interval, until_date, original_meeting_id, correlation_id, solve_attempts, submitted_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
        RETURNING creation_time, update_time`,
		out.MeetingID, out.HostID, string(out.State), out.StateReason, out.AttendeeCount,
		out.AttendeeRespondedCount, out.MinThresholdCount, out.WindowStartDate.UTC(), out.WindowEndDate.UTC(),
		out.DurationMinutes, out.BufferBeforeMinutes, out.BufferAfterMinutes, out.Priority, out.Timezone,
		out.EnableConference, out.ConferenceApp, out.CancelIfAnyRefuse, out.GuaranteeAvailability,
		out.LockAfter, out.ExpireDate.UTC(), freq, out.Interval, out.Until,
		out.OriginalMeetingID, out.CorrelationID, out.SolveAttempts, out.SubmittedAt)
	if err := row.Scan(&out.CreationTime, &out.UpdateTime); err != nil {
		return nil, err
	}
	return &out, nil
}

func (q *meetings) Get(ctx context.Context, meetingID string) (*model.MeetingAssist, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meeting_assists
        WHERE meeting_id=$1 AND deleted_at IS NULL`, meetingID)
	return scanMeeting(row)
}

func (q *meetings) GetByCorrelationID(ctx context.Context, correlationID string) (*model.MeetingAssist, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meeting_assists
        WHERE correlation_id=$1 AND deleted_at IS NULL`, correlationID)
	return scanMeeting(row)
}

func (q *meetings) TransitionState(ctx context.Context, meetingID string, from []model.State, to model.State, reason *string) error {
	if len(from) == 0 {
		return model.Invalid("transition requires expected states")
	}
	res, err := q.db.ExecContext(ctx, `UPDATE meeting_assists
        SET state=$2, state_reason=$3, update_time=now()
        WHERE meeting_id=$1 AND deleted_at IS NULL AND state = ANY($4)`,
		meetingID, string(to), reason, stateArray(from))
	if err != nil {
		return err
	}
	return checkTransition(ctx, q.db, res, meetingID)
}

func (q *meetings) RecordSubmission(ctx context.Context, meetingID, correlationID string, from []model.State) error {
	if len(from) == 0 {
		return model.Invalid("submission requires expected states")
	}
	res, err := q.db.ExecContext(ctx, `UPDATE meeting_assists
        SET state=$2, correlation_id=$3, solve_attempts=solve_attempts+1,
            submitted_at=now(), update_time=now()
        WHERE meeting_id=$1 AND deleted_at IS NULL AND state = ANY($4)`,
		meetingID, string(model.StateSolving), correlationID, stateArray(from))
	if err != nil {
		return err
	}
	return checkTransition(ctx, q.db, res, meetingID)
}

func (q *meetings) SetLockAfter(ctx context.Context, meetingID string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE meeting_assists SET lock_after=TRUE, update_time=now()
        WHERE meeting_id=$1 AND deleted_at IS NULL`, meetingID)
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
        SET attendee_responded_count=GREATEST(0, LEAST(attendee_count, attendee_responded_count+$2)),
            update_time=now()
        WHERE meeting_id=$1 AND deleted_at IS NULL`, meetingID, delta)
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
        WHERE deleted_at IS NULL AND expire_date < $1
          AND state NOT IN ('APPLIED','CANCELLED','EXPIRED','FAILED')
        ORDER BY expire_date ASC LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	return scanMeetings(rows)
}

func (q *meetings) ListDueForSubmit(ctx context.Context, now time.Time, leadTime time.Duration, limit int) ([]*model.MeetingAssist, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meeting_assists
        WHERE deleted_at IS NULL AND state='PREFERENCES_OPEN' AND window_start_date <= $1
        ORDER BY window_start_date ASC LIMIT $2`, now.Add(leadTime).UTC(), limit)
	if err != nil {
		return nil, err
	}
	return scanMeetings(rows)
}

func (q *meetings) ListStaleSolving(ctx context.Context, now time.Time, wait time.Duration, limit int) ([]*model.MeetingAssist, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meeting_assists
        WHERE deleted_at IS NULL AND state IN ('SUBMITTED','SOLVING')
          AND COALESCE(submitted_at, update_time) < $1
        ORDER BY update_time ASC LIMIT $2`, now.Add(-wait).UTC(), limit)
	if err != nil {
		return nil, err
	}
	return scanMeetings(rows)
}

func (q *meetings) SoftDelete(ctx context.Context, meetingID string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE meeting_assists SET deleted_at=now(), update_time=now()
        WHERE meeting_id=$1 AND deleted_at IS NULL`, meetingID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func checkTransition(ctx context.Context, db *sql.DB, res sql.Result, meetingID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM meeting_assists WHERE meeting_id=$1 AND deleted_at IS NULL`, meetingID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	return model.ErrConflict
}

func stateArray(states []model.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMeeting(row rowScanner) (*model.MeetingAssist, error) {
	var m model.MeetingAssist
	var state string
	var reason, confApp, freq, origID, corrID *string
	var until, submitted, deleted *time.Time
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
		return nil, err
	}
	m.State = model.State(state)
	m.StateReason = reason
	m.ConferenceApp = confApp
	if freq != nil {
		f := model.Frequency(*freq)
		m.Frequency = &f
	}
	m.Until = until
	m.OriginalMeetingID = origID
	m.CorrelationID = corrID
	m.SubmittedAt = submitted
	m.DeletedAt = deleted
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
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	row := tx.QueryRowContext(ctx, `INSERT INTO meeting_assist_attendees
        (attendee_id, meeting_id, host_id, user_id, external_attendee, timezone, primary_email)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING creation_time`,
		out.AttendeeID, out.MeetingID, out.HostID, out.UserID, out.ExternalAttendee,
		out.Timezone, out.PrimaryEmail)
	if err := row.Scan(&out.CreationTime); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meeting_assists SET attendee_count = attendee_count + 1,
        update_time = now() WHERE meeting_id = $1`, out.MeetingID); err != nil {
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
        WHERE meeting_id=$1 AND attendee_id=$2`, meetingID, attendeeID)
	var a model.MeetingAssistAttendee
	err := row.Scan(&a.AttendeeID, &a.MeetingID, &a.HostID, &a.UserID, &a.ExternalAttendee,
		&a.Timezone, &a.PrimaryEmail, &a.CreationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q *attendees) List(ctx context.Context, meetingID string) ([]*model.MeetingAssistAttendee, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT attendee_id, meeting_id, host_id, user_id, external_attendee,
        timezone, primary_email, creation_time FROM meeting_assist_attendees
        WHERE meeting_id=$1 ORDER BY creation_time ASC`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MeetingAssistAttendee
	for rows.Next() {
		var a model.MeetingAssistAttendee
		if err := rows.Scan(&a.AttendeeID, &a.MeetingID, &a.HostID, &a.UserID, &a.ExternalAttendee,
			&a.Timezone, &a.PrimaryEmail, &a.CreationTime); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// --- PreferredTimeRanges ---

type ranges struct{ db *sql.DB }

func (q *ranges) Create(ctx context.Context, r *model.MeetingAssistPreferredTimeRange) (*model.MeetingAssistPreferredTimeRange, error) {
	out := *r
	if out.RangeID == "" {
		out.RangeID = uuid.New().String()
	}
	var dow *int
	if out.DayOfWeek != nil {
		d := int(*out.DayOfWeek)
		dow = &d
	}
	row := q.db.QueryRowContext(ctx, `INSERT INTO meeting_assist_preferred_time_ranges
        (range_id, meeting_id, attendee_id, day_of_week, range_date, start_time, end_time)
        VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING creation_time`,
		out.RangeID, out.MeetingID, out.AttendeeID, dow, out.Date, out.StartTime, out.EndTime)
	if err := row.Scan(&out.CreationTime); err != nil {
		return nil, err
	}
	return &out, nil
}

func (q *ranges) List(ctx context.Context, meetingID string) ([]*model.MeetingAssistPreferredTimeRange, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT range_id, meeting_id, attendee_id, day_of_week, range_date,
        start_time, end_time, creation_time FROM meeting_assist_preferred_time_ranges
        WHERE meeting_id=$1 ORDER BY creation_time ASC`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MeetingAssistPreferredTimeRange
	for rows.Next() {
		var r model.MeetingAssistPreferredTimeRange
		var dow *int
		if err := rows.Scan(&r.RangeID, &r.MeetingID, &r.AttendeeID, &dow, &r.Date,
			&r.StartTime, &r.EndTime, &r.CreationTime); err != nil {
			return nil, err
		}
		if dow != nil {
			wd := time.Weekday(*dow)
			r.DayOfWeek = &wd
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (q *ranges) DeleteByMeeting(ctx context.Context, meetingID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM meeting_assist_preferred_time_ranges WHERE meeting_id=$1`, meetingID)
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
	row := q.db.QueryRowContext(ctx, `INSERT INTO meeting_assist_invites
        (invite_id, meeting_id, attendee_id, status, responded_at)
        VALUES ($1,$2,$3,$4,$5) RETURNING creation_time`,
		out.InviteID, out.MeetingID, out.AttendeeID, string(out.Status), out.RespondedAt)
	if err := row.Scan(&out.CreationTime); err != nil {
		return nil, err
	}
	return &out, nil
}

func (q *invites) List(ctx context.Context, meetingID string) ([]*model.MeetingAssistInvite, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT invite_id, meeting_id, attendee_id, status, responded_at, creation_time
        FROM meeting_assist_invites WHERE meeting_id=$1 ORDER BY creation_time ASC`, meetingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.MeetingAssistInvite
	for rows.Next() {
		var i model.MeetingAssistInvite
		var status string
		if err := rows.Scan(&i.InviteID, &i.MeetingID, &i.AttendeeID, &status, &i.RespondedAt, &i.CreationTime); err != nil {
			return nil, err
		}
		i.Status = model.InviteStatus(status)
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

	// Claim the pending invite conditionally; under read committed a
	// concurrent response blocks on the row lock and re-evaluates the
	// predicate, so only one caller takes the counting path.
	res, err := tx.ExecContext(ctx, `UPDATE meeting_assist_invites SET status=$3, responded_at=$4
        WHERE meeting_id=$1 AND attendee_id=$2 AND status=$5`,
		meetingID, attendeeID, string(status), respondedAt.UTC(), string(model.InvitePending))
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		if _, err := tx.ExecContext(ctx, `UPDATE meeting_assists
            SET attendee_responded_count = LEAST(attendee_count, attendee_responded_count + 1),
                update_time = NOW()
            WHERE meeting_id=$1 AND deleted_at IS NULL`, meetingID); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", err
		}
		return model.InvitePending, nil
	}

	var prev string
	err = tx.QueryRowContext(ctx, `SELECT status FROM meeting_assist_invites
        WHERE meeting_id=$1 AND attendee_id=$2`, meetingID, attendeeID).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE meeting_assist_invites SET status=$3, responded_at=$4
        WHERE meeting_id=$1 AND attendee_id=$2`,
		meetingID, attendeeID, string(status), respondedAt.UTC()); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return model.InviteStatus(prev), nil
}
