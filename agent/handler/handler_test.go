package handler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"simfleet/agent/config"
	"simfleet/agent/navigate"
	"simfleet/protocol"
)

type stubLauncher struct {
	mu         sync.Mutex
	launched   []string
	terminated []string
}

func (s *stubLauncher) Launch(_ context.Context, g config.GameConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launched = append(s.launched, g.Activity)
	return nil
}

func (s *stubLauncher) Terminate(activity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = append(s.terminated, activity)
	return nil
}

func (s *stubLauncher) terminatedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.terminated)
}

// stubNavigator blocks until release is closed, then returns its result.
type stubNavigator struct {
	release chan struct{}
	stats   navigate.Stats
	err     error
}

func (s *stubNavigator) Run(ctx context.Context, _ []navigate.Step) (navigate.Stats, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return navigate.Stats{}, ctx.Err()
		}
	}
	return s.stats, s.err
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	scriptDir := filepath.Join(dir, "scripts", "gt_race")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := `[{"template": "main", "region": [0.1, 0.1, 0.9, 0.9], "key_press": "enter"}]`
	for _, role := range []string{"host", "client"} {
		if err := os.WriteFile(filepath.Join(scriptDir, role+".json"), []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Defaults()
	cfg.ScriptsDir = filepath.Join(dir, "scripts")
	cfg.Games = []config.GameConfig{{
		Activity:   "gt_race",
		Executable: "/usr/bin/true",
	}}
	return cfg
}

func configureCmd() *protocol.ConfigureCommand {
	return &protocol.ConfigureCommand{
		SessionID:   "sess-1",
		Activity:    "gt_race",
		Role:        "host",
		PlayerIndex: 0,
	}
}

func waitForStatus(t *testing.T, r *Rig, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if status, _, _ := r.Status(); status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	status, _, _ := r.Status()
	t.Fatalf("rig never reached %q, stuck at %q", want, status)
}

func TestConfigureOnlyFromIdle(t *testing.T) {
	r := New(testConfig(t), &stubLauncher{}, nil, &stubNavigator{}, nil)

	if err := r.Configure(configureCmd()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	status, activity, sessionID := r.Status()
	if status != protocol.StatusConfigured || activity != "gt_race" || sessionID != "sess-1" {
		t.Errorf("unexpected status %q %q %q", status, activity, sessionID)
	}

	err := r.Configure(&protocol.ConfigureCommand{SessionID: "sess-2", Activity: "gt_race", Role: "client"})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for a second configure, got %v", err)
	}
}

func TestConfigureRejectsUnknownActivity(t *testing.T) {
	r := New(testConfig(t), &stubLauncher{}, nil, &stubNavigator{}, nil)

	err := r.Configure(&protocol.ConfigureCommand{SessionID: "sess-1", Activity: "flight_sim", Role: "host"})
	if !errors.Is(err, ErrUnknownScript) {
		t.Errorf("expected ErrUnknownScript, got %v", err)
	}
	if status, _, _ := r.Status(); status != protocol.StatusIdle {
		t.Errorf("a refused configure must leave the rig idle, got %q", status)
	}
}

func TestStartRequiresConfigure(t *testing.T) {
	r := New(testConfig(t), &stubLauncher{}, nil, &stubNavigator{}, nil)
	if err := r.Start("sess-1"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStartRunsAndStaysInSession(t *testing.T) {
	launcher := &stubLauncher{}
	nav := &stubNavigator{stats: navigate.Stats{Steps: 1}}
	r := New(testConfig(t), launcher, nil, nav, nil)

	if err := r.Configure(configureCmd()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := r.Start("sess-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, r, protocol.StatusRunning)

	// Completed navigation keeps the rig in its session.
	time.Sleep(50 * time.Millisecond)
	if status, _, sessionID := r.Status(); status != protocol.StatusRunning || sessionID != "sess-1" {
		t.Errorf("expected rig still running sess-1, got %q %q", status, sessionID)
	}
	if launcher.terminatedCount() != 0 {
		t.Error("a successful run must not kill the game")
	}
}

func TestStartWrongSessionRefused(t *testing.T) {
	r := New(testConfig(t), &stubLauncher{}, nil, &stubNavigator{}, nil)
	if err := r.Configure(configureCmd()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := r.Start("sess-other"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured for a session mismatch, got %v", err)
	}
}

func TestAbortedRunReturnsToIdle(t *testing.T) {
	launcher := &stubLauncher{}
	nav := &stubNavigator{err: navigate.ErrAborted}
	r := New(testConfig(t), launcher, nil, nav, nil)

	if err := r.Configure(configureCmd()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := r.Start("sess-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, r, protocol.StatusIdle)

	if launcher.terminatedCount() != 1 {
		t.Errorf("an aborted run must tear the game down, got %d terminations", launcher.terminatedCount())
	}
	if r.LastError() == "" {
		t.Error("an aborted run must record its failure")
	}
}

func TestStopCancelsRun(t *testing.T) {
	launcher := &stubLauncher{}
	nav := &stubNavigator{release: make(chan struct{})} // blocks until cancelled
	r := New(testConfig(t), launcher, nil, nav, nil)

	if err := r.Configure(configureCmd()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := r.Start("sess-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForStatus(t, r, protocol.StatusRunning)

	if err := r.Stop("sess-1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForStatus(t, r, protocol.StatusIdle)
	if launcher.terminatedCount() == 0 {
		t.Error("stop must terminate the game")
	}

	// Stop is idempotent.
	if err := r.Stop("sess-1"); err != nil {
		t.Errorf("second stop: %v", err)
	}
}

func TestResetRollsBackConfiguredAssignment(t *testing.T) {
	r := New(testConfig(t), &stubLauncher{}, nil, &stubNavigator{}, nil)

	// Reset on an idle rig is a no-op.
	if err := r.Reset("sess-1"); err != nil {
		t.Fatalf("idle reset: %v", err)
	}

	if err := r.Configure(configureCmd()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := r.Reset("sess-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if status, _, _ := r.Status(); status != protocol.StatusIdle {
		t.Errorf("reset must return the rig to idle, got %q", status)
	}

	// The rig accepts a fresh assignment afterwards.
	if err := r.Configure(configureCmd()); err != nil {
		t.Errorf("configure after reset: %v", err)
	}
}
