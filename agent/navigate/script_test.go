package navigate

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseScriptSingleCandidates(t *testing.T) {
	data := []byte(`[
		{"template": "press_start", "region": [0.3, 0.7, 0.7, 0.9], "press_until_match": "enter"},
		{"template": "main_menu", "region": [0.0, 0.0, 0.5, 0.2], "key_press": ["down", "down", "enter"]},
		{"template": "lobby_ready", "region": [0.4, 0.4, 0.6, 0.6], "key_press": null, "retry_delay": 2.5}
	]`)
	steps, err := ParseScript(data)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}

	c0 := steps[0].Candidates[0]
	if c0.PressUntil.IsZero() || len(c0.PressUntil.Keys) != 1 || c0.PressUntil.Keys[0] != "enter" {
		t.Errorf("step 0: expected press_until_match enter, got %v", c0.PressUntil)
	}
	c1 := steps[1].Candidates[0]
	want := []string{"down", "down", "enter"}
	if len(c1.Action.Keys) != len(want) {
		t.Fatalf("step 1: expected keys %v, got %v", want, c1.Action.Keys)
	}
	for i := range want {
		if c1.Action.Keys[i] != want[i] {
			t.Errorf("step 1 key %d: expected %q, got %q", i, want[i], c1.Action.Keys[i])
		}
	}
	c2 := steps[2].Candidates[0]
	if !c2.Action.IsZero() {
		t.Errorf("step 2: expected a wait step, got keys %v", c2.Action.Keys)
	}
	if c2.RetryDelay == nil || *c2.RetryDelay != 2500*time.Millisecond {
		t.Errorf("step 2: expected retry delay 2.5s, got %v", c2.RetryDelay)
	}
}

func TestParseScriptOptions(t *testing.T) {
	data := []byte(`[
		{"options": [
			{"template": "update_prompt", "region": [0.2, 0.2, 0.8, 0.8], "key_press": "esc"},
			{"template": "main_menu", "region": [0.0, 0.0, 0.5, 0.2], "key_press": "enter"}
		]}
	]`)
	steps, err := ParseScript(data)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	if len(steps) != 1 || len(steps[0].Candidates) != 2 {
		t.Fatalf("expected 1 step with 2 options, got %+v", steps)
	}
	if steps[0].Candidates[0].Template != "update_prompt" {
		t.Errorf("options must keep declared order, got %q first", steps[0].Candidates[0].Template)
	}
}

func TestParseScriptRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"empty", `[]`},
		{"missing template", `[{"region": [0,0,1,1], "key_press": "enter"}]`},
		{"region out of range", `[{"template": "t", "region": [0, 0, 1.5, 1], "key_press": "a"}]`},
		{"inverted region", `[{"template": "t", "region": [0.5, 0.1, 0.2, 0.9], "key_press": "a"}]`},
		{"region wrong arity", `[{"template": "t", "region": [0.1, 0.2, 0.3], "key_press": "a"}]`},
		{"press and press_until", `[{"template": "t", "region": [0,0,1,1], "key_press": "a", "press_until_match": "b"}]`},
		{"inline plus options", `[{"template": "t", "region": [0,0,1,1], "options": [{"template": "u", "region": [0,0,1,1]}]}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseScript([]byte(tc.data)); err == nil {
				t.Errorf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadScript(t *testing.T) {
	dir := t.TempDir()
	scriptDir := filepath.Join(dir, "gt_race")
	if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		t.Fatal(err)
	}
	doc := `[{"template": "main", "region": [0.1, 0.1, 0.9, 0.9], "key_press": "enter"}]`
	if err := os.WriteFile(filepath.Join(scriptDir, "host.json"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScript(dir, "gt_race", "host")
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	if s.Activity != "gt_race" || s.Role != "host" || len(s.Steps) != 1 {
		t.Errorf("unexpected script %+v", s)
	}

	if _, err := LoadScript(dir, "gt_race", "client"); err == nil {
		t.Error("expected an error for the missing client script")
	}
	if _, err := LoadScript(dir, "unknown_activity", "host"); err == nil {
		t.Error("expected an error for an unknown activity")
	}

	names, err := ListActivities(dir)
	if err != nil {
		t.Fatalf("ListActivities: %v", err)
	}
	if len(names) != 1 || names[0] != "gt_race" {
		t.Errorf("expected [gt_race], got %v", names)
	}
}
