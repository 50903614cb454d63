package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS rigs (
    node_id     INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    addr        TEXT NOT NULL DEFAULT '',
    hostname    TEXT NOT NULL DEFAULT '',
    version     TEXT NOT NULL DEFAULT '',
    first_seen  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    last_seen   TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS sessions (
    id           TEXT PRIMARY KEY,
    activity     TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'starting',
    host_node_id INTEGER NOT NULL,
    detail       TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    ended_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS session_participants (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   TEXT NOT NULL REFERENCES sessions(id),
    node_id      INTEGER NOT NULL,
    role         TEXT NOT NULL,
    player_index INTEGER NOT NULL DEFAULT 0,
    configured   INTEGER NOT NULL DEFAULT 0,
    started      INTEGER NOT NULL DEFAULT 0,
    detail       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_participants_session ON session_participants(session_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`
