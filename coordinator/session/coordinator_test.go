package session

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"simfleet/coordinator/config"
	"simfleet/coordinator/registry"
	"simfleet/coordinator/store"
	"simfleet/protocol"
)

// mockClient records every command and fails on demand per node address.
type mockClient struct {
	mu            sync.Mutex
	configures    map[string]*protocol.ConfigureCommand // by addr
	starts        []string                              // addrs
	stops         []string
	resets        []string
	failConfigure map[string]error
	failStart     map[string]error
}

func newMockClient() *mockClient {
	return &mockClient{
		configures:    make(map[string]*protocol.ConfigureCommand),
		failConfigure: make(map[string]error),
		failStart:     make(map[string]error),
	}
}

func (m *mockClient) Configure(_ context.Context, addr string, cmd *protocol.ConfigureCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failConfigure[addr]; err != nil {
		return err
	}
	m.configures[addr] = cmd
	return nil
}

func (m *mockClient) Start(_ context.Context, addr, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failStart[addr]; err != nil {
		return err
	}
	m.starts = append(m.starts, addr)
	return nil
}

func (m *mockClient) Stop(_ context.Context, addr, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops = append(m.stops, addr)
	return nil
}

func (m *mockClient) Reset(_ context.Context, addr, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, addr)
	return nil
}

func (m *mockClient) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.starts)
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addr(id int64) string {
	return map[int64]string{1: "10.0.0.1:8077", 2: "10.0.0.2:8077", 3: "10.0.0.3:8077"}[id]
}

// testFleet registers rigs 3, 1, 2 out of order; id ordering must not
// depend on arrival order.
func testFleet(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(nil, nil)
	now := time.Now()
	for _, id := range []int64{3, 1, 2} {
		err := reg.Register(&protocol.RigRegister{
			NodeID: id,
			Name:   map[int64]string{1: "rig-a", 2: "rig-b", 3: "rig-c"}[id],
			Addr:   addr(id),
		}, now)
		if err != nil {
			t.Fatalf("register rig %d: %v", id, err)
		}
	}
	return reg
}

func testCoordinator(t *testing.T, client NodeClient) *Coordinator {
	t.Helper()
	return NewCoordinator(testFleet(t), testDB(t), client, nil, config.SessionConfig{
		MinNodes:       2,
		CommandTimeout: 2 * time.Second,
	})
}

func TestStartAssignsRolesByNodeID(t *testing.T) {
	client := newMockClient()
	c := testCoordinator(t, client)

	sess, err := c.StartAll(context.Background(), "gt_race", 0)
	if err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if sess.Status != store.SessionRunning {
		t.Errorf("expected running session, got %q", sess.Status)
	}
	if sess.HostNodeID != 1 {
		t.Errorf("lowest node id must host, got %d", sess.HostNodeID)
	}

	want := map[string]struct {
		role  string
		index int
	}{
		addr(1): {protocol.SessionRoleHost, 0},
		addr(2): {protocol.SessionRoleClient, 1},
		addr(3): {protocol.SessionRoleClient, 2},
	}
	for a, w := range want {
		cmd := client.configures[a]
		if cmd == nil {
			t.Fatalf("rig at %s never got a configure command", a)
		}
		if cmd.Role != w.role || cmd.PlayerIndex != w.index {
			t.Errorf("%s: expected role %s index %d, got %s %d", a, w.role, w.index, cmd.Role, cmd.PlayerIndex)
		}
		if cmd.Activity != "gt_race" || cmd.SessionID != sess.ID {
			t.Errorf("%s: unexpected command %+v", a, cmd)
		}
	}
	if client.startCount() != 3 {
		t.Errorf("expected 3 start commands, got %d", client.startCount())
	}
}

func TestNoStartAfterFailedConfigure(t *testing.T) {
	client := newMockClient()
	client.failConfigure[addr(2)] = errors.New("rig refused " + protocol.ReasonNodeBusy)
	c := testCoordinator(t, client)

	_, err := c.StartAll(context.Background(), "gt_race", 0)
	var cfe *ConfigurationFailedError
	if !errors.As(err, &cfe) {
		t.Fatalf("expected ConfigurationFailedError, got %v", err)
	}
	if len(cfe.Failures) != 1 || cfe.Failures[0].NodeID != 2 {
		t.Errorf("expected rig 2 as the offender, got %+v", cfe.Failures)
	}

	// The invariant: not a single start command after a failed configure.
	if n := client.startCount(); n != 0 {
		t.Fatalf("expected zero start commands, got %d", n)
	}

	// Rollback hits exactly the rigs that acked.
	sort.Strings(client.resets)
	wantResets := []string{addr(1), addr(3)}
	if len(client.resets) != 2 || client.resets[0] != wantResets[0] || client.resets[1] != wantResets[1] {
		t.Errorf("expected resets to %v, got %v", wantResets, client.resets)
	}

	// The failed launch releases the slot for another attempt.
	if c.Active() != nil {
		t.Error("failed launch must not leave an active session")
	}
	if _, err := c.StartAll(context.Background(), "gt_race", 0); err == nil {
		t.Log("retry succeeded once the rig recovered")
	}
}

func TestStartLimitsParticipantCount(t *testing.T) {
	client := newMockClient()
	c := testCoordinator(t, client)

	sess, err := c.StartAll(context.Background(), "gt_race", 2)
	if err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if sess.HostNodeID != 1 {
		t.Errorf("lowest node id must host, got %d", sess.HostNodeID)
	}
	if client.configures[addr(3)] != nil {
		t.Error("rig 3 is outside the requested count and must not be configured")
	}
	if client.startCount() != 2 {
		t.Errorf("expected 2 start commands, got %d", client.startCount())
	}

	c.StopAll(context.Background())

	// Asking for more rigs than are online fails up front.
	if _, err := c.StartAll(context.Background(), "gt_race", 4); err == nil {
		t.Error("expected InsufficientNodesError for count beyond the fleet")
	}
}

func TestInsufficientNodes(t *testing.T) {
	client := newMockClient()
	c := NewCoordinator(registry.New(nil, nil), testDB(t), client, nil, config.SessionConfig{
		MinNodes:       2,
		CommandTimeout: time.Second,
	})

	_, err := c.StartAll(context.Background(), "gt_race", 0)
	var ine *InsufficientNodesError
	if !errors.As(err, &ine) {
		t.Fatalf("expected InsufficientNodesError, got %v", err)
	}
	if ine.Online != 0 || ine.Min != 2 {
		t.Errorf("unexpected counts %+v", ine)
	}
}

func TestSecondStartRejectedWhileActive(t *testing.T) {
	client := newMockClient()
	c := testCoordinator(t, client)

	if _, err := c.StartAll(context.Background(), "gt_race", 0); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if _, err := c.StartAll(context.Background(), "rally", 0); !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}
}

func TestDegradedStartDoesNotRollBack(t *testing.T) {
	client := newMockClient()
	client.failStart[addr(3)] = errors.New("game crashed on launch")
	c := testCoordinator(t, client)

	sess, err := c.StartAll(context.Background(), "gt_race", 0)
	if err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if sess.Status != store.SessionDegraded {
		t.Errorf("expected degraded session, got %q", sess.Status)
	}
	if len(client.resets) != 0 {
		t.Errorf("a start failure must not reset rigs already racing, got resets %v", client.resets)
	}
	if client.startCount() != 2 {
		t.Errorf("expected the other 2 rigs started, got %d", client.startCount())
	}
}

func TestStopAllIsBestEffortAndIdempotent(t *testing.T) {
	client := newMockClient()
	c := testCoordinator(t, client)

	started, err := c.StartAll(context.Background(), "gt_race", 0)
	if err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	stopped, err := c.StopAll(context.Background())
	if err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if stopped.ID != started.ID || stopped.Status != store.SessionStopped {
		t.Errorf("unexpected stopped session %+v", stopped)
	}
	if len(client.stops) != 3 {
		t.Errorf("expected stop sent to all 3 rigs, got %d", len(client.stops))
	}

	if _, err := c.StopAll(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("expected ErrNoActiveSession on second stop, got %v", err)
	}

	// Fleet is free again.
	if _, err := c.StartAll(context.Background(), "rally", 0); err != nil {
		t.Errorf("expected a fresh start after stop, got %v", err)
	}
}
