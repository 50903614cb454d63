package navigate

import (
	"encoding/json"
	"fmt"
	"time"
)

// Region is a rectangular screen area in resolution-independent fractions
// of the display ([0,1] on both axes). Wire format is [x0, y0, x1, y1].
// Fractional coordinates are what make one script portable across rigs
// with different screen resolutions.
type Region struct {
	X0, Y0, X1, Y1 float64
}

// Center returns the midpoint of the region in fractional coordinates.
func (r Region) Center() (x, y float64) {
	return (r.X0 + r.X1) / 2, (r.Y0 + r.Y1) / 2
}

// Validate checks bounds and orientation.
func (r Region) Validate() error {
	for _, v := range []float64{r.X0, r.Y0, r.X1, r.Y1} {
		if v < 0 || v > 1 {
			return fmt.Errorf("region coordinate %v outside [0,1]", v)
		}
	}
	if r.X1 <= r.X0 {
		return fmt.Errorf("region x1 (%v) must be greater than x0 (%v)", r.X1, r.X0)
	}
	if r.Y1 <= r.Y0 {
		return fmt.Errorf("region y1 (%v) must be greater than y0 (%v)", r.Y1, r.Y0)
	}
	return nil
}

// UnmarshalJSON decodes the [x0, y0, x1, y1] array form.
func (r *Region) UnmarshalJSON(data []byte) error {
	var coords []float64
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) != 4 {
		return fmt.Errorf("region must have 4 coordinates, got %d", len(coords))
	}
	r.X0, r.Y0, r.X1, r.Y1 = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// MarshalJSON encodes the [x0, y0, x1, y1] array form.
func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal([]float64{r.X0, r.Y0, r.X1, r.Y1})
}

// Action is an ordered key sequence executed with a fixed delay between
// presses. The wire format accepts a single string, a list of strings, or
// null (a wait/poll step that matches but presses nothing). Order is part
// of the script's semantics: no reordering, no deduplication.
type Action struct {
	Keys []string
}

// IsZero reports whether the action presses nothing.
func (a Action) IsZero() bool { return len(a.Keys) == 0 }

func (a Action) String() string {
	switch len(a.Keys) {
	case 0:
		return "(wait)"
	case 1:
		return a.Keys[0]
	default:
		return fmt.Sprint(a.Keys)
	}
}

// UnmarshalJSON accepts "enter", ["down","down","enter"], or null.
func (a *Action) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		a.Keys = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		a.Keys = []string{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("action must be a key string or list of keys: %w", err)
	}
	a.Keys = list
	return nil
}

// MarshalJSON keeps the compact single-string form where possible.
func (a Action) MarshalJSON() ([]byte, error) {
	switch len(a.Keys) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(a.Keys[0])
	default:
		return json.Marshal(a.Keys)
	}
}

// Candidate is one (template, region, action) triple considered at a step.
// Exactly one of Action and PressUntil is meaningful: a normal candidate
// matches first and then presses, a press-until candidate presses first and
// then checks whether the expected screen appeared (skip-intro pattern).
type Candidate struct {
	Template   string
	Region     Region
	Action     Action
	PressUntil Action

	// Optional per-candidate overrides of the script-level delays.
	RetryDelay  *time.Duration
	ActionDelay *time.Duration
}

// IsPressUntil reports whether this candidate uses press-before-check.
func (c *Candidate) IsPressUntil() bool { return !c.PressUntil.IsZero() }

// Step is one unit of the automation script: an ordered candidate list.
// Most steps carry a single candidate; multi-candidate steps cover screens
// that can appear in several states, most-likely-first. Candidates are
// evaluated in declared order on every attempt.
type Step struct {
	Candidates []Candidate
}
