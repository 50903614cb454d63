package store

import (
	"time"
)

// Run outcomes.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Run is one navigation attempt on this rig, kept locally so individual
// rigs can be debugged without the coordinator.
type Run struct {
	ID          int64      `json:"id"`
	SessionID   string     `json:"session_id"`
	Activity    string     `json:"activity"`
	Role        string     `json:"role"`
	PlayerIndex int        `json:"player_index"`
	Outcome     string     `json:"outcome"`
	Detail      string     `json:"detail"`
	Steps       int        `json:"steps"`
	Attempts    int        `json:"attempts"`
	Fallbacks   int        `json:"fallbacks"`
	DurationMS  int64      `json:"duration_ms"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func (db *DB) CreateRun(r *Run) error {
	result, err := db.Exec(`INSERT INTO runs (session_id, activity, role, player_index, outcome) VALUES (?, ?, ?, ?, ?)`,
		r.SessionID, r.Activity, r.Role, r.PlayerIndex, OutcomeRunning)
	if err != nil {
		return err
	}
	r.ID, _ = result.LastInsertId()
	r.Outcome = OutcomeRunning
	return nil
}

func (db *DB) FinishRun(id int64, outcome, detail string, steps, attempts, fallbacks int, duration time.Duration) error {
	_, err := db.Exec(`UPDATE runs SET outcome=?, detail=?, steps=?, attempts=?, fallbacks=?, duration_ms=?, finished_at=datetime('now','localtime') WHERE id=?`,
		outcome, detail, steps, attempts, fallbacks, duration.Milliseconds(), id)
	return err
}

func (db *DB) ListRuns(limit int) ([]*Run, error) {
	rows, err := db.Query(`SELECT id, session_id, activity, role, player_index, outcome, detail, steps, attempts, fallbacks, duration_ms, started_at, finished_at FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		var r Run
		var startedAt string
		var finishedAt *string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Activity, &r.Role, &r.PlayerIndex, &r.Outcome, &r.Detail, &r.Steps, &r.Attempts, &r.Fallbacks, &r.DurationMS, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAt)
		if finishedAt != nil {
			t, _ := time.Parse("2006-01-02 15:04:05", *finishedAt)
			r.FinishedAt = &t
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
