package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Session lifecycle statuses.
const (
	SessionStarting = "starting"
	SessionRunning  = "running"
	SessionDegraded = "degraded"
	SessionFailed   = "failed"
	SessionStopped  = "stopped"
)

type Session struct {
	ID         string     `json:"id"`
	Activity   string     `json:"activity"`
	Status     string     `json:"status"`
	HostNodeID int64      `json:"host_node_id"`
	Detail     string     `json:"detail"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

type Participant struct {
	ID          int64  `json:"id"`
	SessionID   string `json:"session_id"`
	NodeID      int64  `json:"node_id"`
	Role        string `json:"role"`
	PlayerIndex int    `json:"player_index"`
	Configured  bool   `json:"configured"`
	Started     bool   `json:"started"`
	Detail      string `json:"detail"`
}

const sessionSelectCols = `id, activity, status, host_node_id, detail, created_at, ended_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var s Session
	var createdAt, endedAt any
	if err := row.Scan(&s.ID, &s.Activity, &s.Status, &s.HostNodeID, &s.Detail, &createdAt, &endedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = parseTime(createdAt)
	s.EndedAt = parseTimePtr(endedAt)
	return &s, nil
}

func (db *DB) CreateSession(s *Session) error {
	_, err := db.Exec(db.Q(`INSERT INTO sessions (id, activity, status, host_node_id, detail) VALUES (?, ?, ?, ?, ?)`),
		s.ID, s.Activity, s.Status, s.HostNodeID, s.Detail)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (db *DB) UpdateSessionStatus(id, status, detail string) error {
	_, err := db.Exec(db.Q(`UPDATE sessions SET status=?, detail=? WHERE id=?`), status, detail, id)
	return err
}

// EndSession marks a session terminal and stamps ended_at.
func (db *DB) EndSession(id, status, detail string) error {
	_, err := db.Exec(db.Q(`UPDATE sessions SET status=?, detail=?, ended_at=datetime('now','localtime') WHERE id=?`),
		status, detail, id)
	return err
}

func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM sessions WHERE id=?`, sessionSelectCols)), id)
	return scanSession(row)
}

// ActiveSession returns the most recent non-terminal session, or nil.
func (db *DB) ActiveSession() (*Session, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(
		`SELECT %s FROM sessions WHERE status IN (?, ?, ?) ORDER BY created_at DESC LIMIT 1`, sessionSelectCols)),
		SessionStarting, SessionRunning, SessionDegraded)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (db *DB) ListSessions(limit int) ([]*Session, error) {
	rows, err := db.Query(db.Q(fmt.Sprintf(
		`SELECT %s FROM sessions ORDER BY created_at DESC LIMIT ?`, sessionSelectCols)), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (db *DB) AddParticipant(p *Participant) error {
	result, err := db.Exec(db.Q(`INSERT INTO session_participants (session_id, node_id, role, player_index, configured, started, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.SessionID, p.NodeID, p.Role, p.PlayerIndex, boolToInt(p.Configured), boolToInt(p.Started), p.Detail)
	if err != nil {
		return fmt.Errorf("add participant: %w", err)
	}
	if db.driver == "sqlite" {
		p.ID, _ = result.LastInsertId()
	}
	return nil
}

func (db *DB) SetParticipantConfigured(sessionID string, nodeID int64, configured bool, detail string) error {
	_, err := db.Exec(db.Q(`UPDATE session_participants SET configured=?, detail=? WHERE session_id=? AND node_id=?`),
		boolToInt(configured), detail, sessionID, nodeID)
	return err
}

func (db *DB) SetParticipantStarted(sessionID string, nodeID int64, started bool, detail string) error {
	_, err := db.Exec(db.Q(`UPDATE session_participants SET started=?, detail=? WHERE session_id=? AND node_id=?`),
		boolToInt(started), detail, sessionID, nodeID)
	return err
}

func (db *DB) ListParticipants(sessionID string) ([]*Participant, error) {
	rows, err := db.Query(db.Q(`SELECT id, session_id, node_id, role, player_index, configured, started, detail FROM session_participants WHERE session_id=? ORDER BY player_index`), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var parts []*Participant
	for rows.Next() {
		var p Participant
		var configured, started int
		if err := rows.Scan(&p.ID, &p.SessionID, &p.NodeID, &p.Role, &p.PlayerIndex, &configured, &started, &p.Detail); err != nil {
			return nil, err
		}
		p.Configured = configured != 0
		p.Started = started != 0
		parts = append(parts, &p)
	}
	return parts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
