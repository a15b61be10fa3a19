package sqlite

import "database/sql"

// Schema mirrors the postgres migrations; applied on open so local and test
// databases are always usable without an external migration step.
const Schema = `
CREATE TABLE IF NOT EXISTS meeting_assists (
    meeting_id               TEXT PRIMARY KEY,
    host_id                  TEXT NOT NULL,
    state                    TEXT NOT NULL,
    state_reason             TEXT,
    attendee_count           INTEGER NOT NULL DEFAULT 0,
    attendee_responded_count INTEGER NOT NULL DEFAULT 0,
    min_threshold_count      INTEGER NOT NULL DEFAULT 0,
    window_start_date        TIMESTAMP NOT NULL,
    window_end_date          TIMESTAMP NOT NULL,
    duration_minutes         INTEGER NOT NULL,
    buffer_before_minutes    INTEGER NOT NULL DEFAULT 0,
    buffer_after_minutes     INTEGER NOT NULL DEFAULT 0,
    priority                 INTEGER NOT NULL DEFAULT 0,
    timezone                 TEXT NOT NULL DEFAULT 'UTC',
    enable_conference        INTEGER NOT NULL DEFAULT 0,
    conference_app           TEXT,
    cancel_if_any_refuse     INTEGER NOT NULL DEFAULT 0,
    guarantee_availability   INTEGER NOT NULL DEFAULT 0,
    lock_after               INTEGER NOT NULL DEFAULT 0,
    expire_date              TIMESTAMP NOT NULL,
    frequency                TEXT,
    recur_interval           INTEGER NOT NULL DEFAULT 0,
    until_date               TIMESTAMP,
    original_meeting_id      TEXT,
    correlation_id           TEXT,
    solve_attempts           INTEGER NOT NULL DEFAULT 0,
    submitted_at             TIMESTAMP,
    creation_time            TIMESTAMP NOT NULL,
    update_time              TIMESTAMP NOT NULL,
    deleted_at               TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_meeting_assists_correlation ON meeting_assists(correlation_id);
CREATE INDEX IF NOT EXISTS idx_meeting_assists_state_expire ON meeting_assists(state, expire_date);

CREATE TABLE IF NOT EXISTS meeting_assist_attendees (
    attendee_id       TEXT PRIMARY KEY,
    meeting_id        TEXT NOT NULL REFERENCES meeting_assists(meeting_id) ON DELETE CASCADE,
    host_id           TEXT NOT NULL,
    user_id           TEXT,
    external_attendee INTEGER NOT NULL DEFAULT 0,
    timezone          TEXT NOT NULL DEFAULT 'UTC',
    primary_email     TEXT NOT NULL,
    creation_time     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attendees_meeting ON meeting_assist_attendees(meeting_id);

CREATE TABLE IF NOT EXISTS meeting_assist_preferred_time_ranges (
    range_id      TEXT PRIMARY KEY,
    meeting_id    TEXT NOT NULL REFERENCES meeting_assists(meeting_id) ON DELETE CASCADE,
    attendee_id   TEXT,
    day_of_week   INTEGER,
    range_date    TIMESTAMP,
    start_time    TEXT NOT NULL,
    end_time      TEXT NOT NULL,
    creation_time TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ranges_meeting ON meeting_assist_preferred_time_ranges(meeting_id);

CREATE TABLE IF NOT EXISTS meeting_assist_invites (
    invite_id     TEXT PRIMARY KEY,
    meeting_id    TEXT NOT NULL REFERENCES meeting_assists(meeting_id) ON DELETE CASCADE,
    attendee_id   TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'PENDING',
    responded_at  TIMESTAMP,
    creation_time TIMESTAMP NOT NULL,
    UNIQUE (meeting_id, attendee_id)
);
`

// EnsureSchema creates all tables when missing; safe to call repeatedly.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
