package store

import (
	"path/filepath"
	"testing"

	"simfleet/coordinator/config"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertRig(t *testing.T) {
	db := testDB(t)

	r := &Rig{NodeID: 1, Name: "rig-a", Addr: "10.0.0.1:8077", Hostname: "sim-a", Version: "1.0"}
	if err := db.UpsertRig(r); err != nil {
		t.Fatalf("UpsertRig: %v", err)
	}
	// Second announce updates in place.
	r.Addr = "10.0.0.9:8077"
	if err := db.UpsertRig(r); err != nil {
		t.Fatalf("UpsertRig again: %v", err)
	}

	got, err := db.GetRig(1)
	if err != nil {
		t.Fatalf("GetRig: %v", err)
	}
	if got.Addr != "10.0.0.9:8077" {
		t.Errorf("expected updated addr, got %q", got.Addr)
	}

	rigs, err := db.ListRigs()
	if err != nil {
		t.Fatalf("ListRigs: %v", err)
	}
	if len(rigs) != 1 {
		t.Errorf("expected 1 rig after upsert, got %d", len(rigs))
	}
}

func TestSessionLifecycle(t *testing.T) {
	db := testDB(t)

	s := &Session{ID: "sess-100-abc", Activity: "gt_race", Status: SessionStarting, HostNodeID: 1}
	if err := db.CreateSession(s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	for i, nodeID := range []int64{1, 2, 3} {
		role := "client"
		if i == 0 {
			role = "host"
		}
		if err := db.AddParticipant(&Participant{SessionID: s.ID, NodeID: nodeID, Role: role, PlayerIndex: i}); err != nil {
			t.Fatalf("AddParticipant %d: %v", nodeID, err)
		}
	}

	active, err := db.ActiveSession()
	if err != nil {
		t.Fatalf("ActiveSession: %v", err)
	}
	if active == nil || active.ID != s.ID {
		t.Fatalf("expected active session %s, got %+v", s.ID, active)
	}

	if err := db.SetParticipantConfigured(s.ID, 2, true, ""); err != nil {
		t.Fatalf("SetParticipantConfigured: %v", err)
	}
	parts, err := db.ListParticipants(s.ID)
	if err != nil {
		t.Fatalf("ListParticipants: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(parts))
	}
	if parts[0].Role != "host" || parts[0].NodeID != 1 {
		t.Errorf("expected node 1 as host at index 0, got %+v", parts[0])
	}
	if !parts[1].Configured || parts[0].Configured {
		t.Errorf("configured flags wrong: %+v", parts)
	}

	if err := db.EndSession(s.ID, SessionStopped, "operator stop"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	active, err = db.ActiveSession()
	if err != nil {
		t.Fatalf("ActiveSession after end: %v", err)
	}
	if active != nil {
		t.Errorf("expected no active session, got %+v", active)
	}
	got, err := db.GetSession(s.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != SessionStopped || got.EndedAt == nil {
		t.Errorf("expected stopped session with ended_at, got %+v", got)
	}
}

func TestAdminUsers(t *testing.T) {
	db := testDB(t)

	exists, err := db.AdminUserExists()
	if err != nil {
		t.Fatalf("AdminUserExists: %v", err)
	}
	if exists {
		t.Fatal("fresh db should have no admin users")
	}
	if err := db.CreateAdminUser("admin", "hash"); err != nil {
		t.Fatalf("CreateAdminUser: %v", err)
	}
	u, err := db.GetAdminUser("admin")
	if err != nil {
		t.Fatalf("GetAdminUser: %v", err)
	}
	if u.PasswordHash != "hash" {
		t.Errorf("unexpected hash %q", u.PasswordHash)
	}
}

func TestQRewritesForPostgres(t *testing.T) {
	db := &DB{driver: "postgres", dialect: postgresDialect{}}
	got := db.Q(`UPDATE rigs SET last_seen=datetime('now','localtime') WHERE node_id=?`)
	want := `UPDATE rigs SET last_seen=NOW() WHERE node_id=$1`
	if got != want {
		t.Errorf("Q rewrite:\n got %s\nwant %s", got, want)
	}

	sqlite := &DB{driver: "sqlite", dialect: sqliteDialect{}}
	passthrough := `SELECT * FROM rigs WHERE node_id=?`
	if sqlite.Q(passthrough) != passthrough {
		t.Error("sqlite queries must pass through unchanged")
	}
}
