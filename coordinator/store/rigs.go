package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Rig is the durable record of a fleet member, kept across coordinator
// restarts. Liveness lives in the in-memory registry; this table is the
// fleet's paper trail.
type Rig struct {
	NodeID    int64     `json:"node_id"`
	Name      string    `json:"name"`
	Addr      string    `json:"addr"`
	Hostname  string    `json:"hostname"`
	Version   string    `json:"version"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

const rigSelectCols = `node_id, name, addr, hostname, version, first_seen, last_seen`

func scanRig(row interface{ Scan(...any) error }) (*Rig, error) {
	var r Rig
	var firstSeen, lastSeen any
	if err := row.Scan(&r.NodeID, &r.Name, &r.Addr, &r.Hostname, &r.Version, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	r.FirstSeen = parseTime(firstSeen)
	r.LastSeen = parseTime(lastSeen)
	return &r, nil
}

// UpsertRig records a rig announcement, refreshing last_seen on conflict.
func (db *DB) UpsertRig(r *Rig) error {
	_, err := db.Exec(db.Q(`INSERT INTO rigs (node_id, name, addr, hostname, version) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET name=excluded.name, addr=excluded.addr, hostname=excluded.hostname, version=excluded.version, last_seen=datetime('now','localtime')`),
		r.NodeID, r.Name, r.Addr, r.Hostname, r.Version)
	if err != nil {
		return fmt.Errorf("upsert rig: %w", err)
	}
	return nil
}

// TouchRig bumps last_seen only.
func (db *DB) TouchRig(nodeID int64) error {
	_, err := db.Exec(db.Q(`UPDATE rigs SET last_seen=datetime('now','localtime') WHERE node_id=?`), nodeID)
	return err
}

func (db *DB) GetRig(nodeID int64) (*Rig, error) {
	row := db.QueryRow(db.Q(fmt.Sprintf(`SELECT %s FROM rigs WHERE node_id=?`, rigSelectCols)), nodeID)
	return scanRig(row)
}

func (db *DB) ListRigs() ([]*Rig, error) {
	rows, err := db.Query(fmt.Sprintf(`SELECT %s FROM rigs ORDER BY node_id`, rigSelectCols))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRigs(rows)
}

func scanRigs(rows *sql.Rows) ([]*Rig, error) {
	var rigs []*Rig
	for rows.Next() {
		r, err := scanRig(rows)
		if err != nil {
			return nil, err
		}
		rigs = append(rigs, r)
	}
	return rigs, rows.Err()
}
