package postgres

// DDL is the reference schema for the postgres backend. Deployments apply it
// through their migration tooling; it is kept here so the column lists in
// this package have a single source of truth next to them.
const DDL = `
CREATE TABLE IF NOT EXISTS meeting_assists (
    meeting_id               TEXT PRIMARY KEY,
    host_id                  TEXT NOT NULL,
    state                    TEXT NOT NULL,
    state_reason             TEXT,
    attendee_count           INT NOT NULL DEFAULT 0,
    attendee_responded_count INT NOT NULL DEFAULT 0,
    min_threshold_count      INT NOT NULL DEFAULT 0,
    window_start_date        TIMESTAMPTZ NOT NULL,
    window_end_date          TIMESTAMPTZ NOT NULL,
    duration_minutes         INT NOT NULL,
    buffer_before_minutes    INT NOT NULL DEFAULT 0,
    buffer_after_minutes     INT NOT NULL DEFAULT 0,
    priority                 INT NOT NULL DEFAULT 0,
    timezone                 TEXT NOT NULL DEFAULT 'UTC',
    enable_conference        BOOLEAN NOT NULL DEFAULT FALSE,
    conference_app           TEXT,
    cancel_if_any_refuse     BOOLEAN NOT NULL DEFAULT FALSE,
    guarantee_availability   BOOLEAN NOT NULL DEFAULT FALSE,
    lock_after               BOOLEAN NOT NULL DEFAULT FALSE,
    expire_date              TIMESTAMPTZ NOT NULL,
    frequency                TEXT,
    recur_interval           INT NOT NULL DEFAULT 0,
    until_date               TIMESTAMPTZ,
    original_meeting_id      TEXT,
    correlation_id           TEXT,
    solve_attempts           INT NOT NULL DEFAULT 0,
    submitted_at             TIMESTAMPTZ,
    creation_time            TIMESTAMPTZ NOT NULL DEFAULT now(),
    update_time              TIMESTAMPTZ NOT NULL DEFAULT now(),
    deleted_at               TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_meeting_assists_correlation ON meeting_assists(correlation_id);
CREATE INDEX IF NOT EXISTS idx_meeting_assists_state_expire ON meeting_assists(state, expire_date);

CREATE TABLE IF NOT EXISTS meeting_assist_attendees (
    attendee_id       TEXT PRIMARY KEY,
    meeting_id        TEXT NOT NULL REFERENCES meeting_assists(meeting_id) ON DELETE CASCADE,
    host_id           TEXT NOT NULL,
    user_id           TEXT,
    external_attendee BOOLEAN NOT NULL DEFAULT FALSE,
    timezone          TEXT NOT NULL DEFAULT 'UTC',
    primary_email     TEXT NOT NULL,
    creation_time     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_attendees_meeting ON meeting_assist_attendees(meeting_id);

CREATE TABLE IF NOT EXISTS meeting_assist_preferred_time_ranges (
    range_id      TEXT PRIMARY KEY,
    meeting_id    TEXT NOT NULL REFERENCES meeting_assists(meeting_id) ON DELETE CASCADE,
    attendee_id   TEXT,
    day_of_week   INT,
    range_date    TIMESTAMPTZ,
    start_time    TEXT NOT NULL,
    end_time      TEXT NOT NULL,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_ranges_meeting ON meeting_assist_preferred_time_ranges(meeting_id);

CREATE TABLE IF NOT EXISTS meeting_assist_invites (
    invite_id     TEXT PRIMARY KEY,
    meeting_id    TEXT NOT NULL REFERENCES meeting_assists(meeting_id) ON DELETE CASCADE,
    attendee_id   TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'PENDING',
    responded_at  TIMESTAMPTZ,
    creation_time TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (meeting_id, attendee_id)
);
`
