package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS rigs (
    node_id     BIGINT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    addr        TEXT NOT NULL DEFAULT '',
    hostname    TEXT NOT NULL DEFAULT '',
    version     TEXT NOT NULL DEFAULT '',
    first_seen  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_seen   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT PRIMARY KEY,
    activity     TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'starting',
    host_node_id BIGINT NOT NULL,
    detail       TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    ended_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS session_participants (
    id           BIGSERIAL PRIMARY KEY,
    session_id   TEXT NOT NULL REFERENCES sessions(id),
    node_id      BIGINT NOT NULL,
    role         TEXT NOT NULL,
    player_index INTEGER NOT NULL DEFAULT 0,
    configured   INTEGER NOT NULL DEFAULT 0,
    started      INTEGER NOT NULL DEFAULT 0,
    detail       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_participants_session ON session_participants(session_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
