package navigate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Script is a parsed, validated navigation script for one activity role.
type Script struct {
	Activity string
	Role     string
	Steps    []Step
}

// rawCandidate is the wire form of a candidate. Delays come over the wire
// as seconds, matching how script authors think about menu timing.
type rawCandidate struct {
	Template    string   `json:"template"`
	Region      Region   `json:"region"`
	KeyPress    Action   `json:"key_press"`
	PressUntil  Action   `json:"press_until_match"`
	RetryDelay  *float64 `json:"retry_delay,omitempty"`
	ActionDelay *float64 `json:"action_delay,omitempty"`
}

// rawStep is the wire form of a step: either inline single-candidate fields
// or an explicit options list, never both.
type rawStep struct {
	rawCandidate
	Options []rawCandidate `json:"options,omitempty"`
}

func (rc *rawCandidate) toCandidate() (Candidate, error) {
	c := Candidate{
		Template:   rc.Template,
		Region:     rc.Region,
		Action:     rc.KeyPress,
		PressUntil: rc.PressUntil,
	}
	if c.Template == "" {
		return c, fmt.Errorf("candidate is missing a template")
	}
	if err := c.Region.Validate(); err != nil {
		return c, fmt.Errorf("template %q: %w", c.Template, err)
	}
	if !c.Action.IsZero() && !c.PressUntil.IsZero() {
		return c, fmt.Errorf("template %q: key_press and press_until_match are mutually exclusive", c.Template)
	}
	if rc.RetryDelay != nil {
		d := secondsToDuration(*rc.RetryDelay)
		c.RetryDelay = &d
	}
	if rc.ActionDelay != nil {
		d := secondsToDuration(*rc.ActionDelay)
		c.ActionDelay = &d
	}
	return c, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ParseScript decodes and validates a script document.
func ParseScript(data []byte) ([]Step, error) {
	var raw []rawStep
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("script has no steps")
	}
	steps := make([]Step, 0, len(raw))
	for i, rs := range raw {
		var step Step
		switch {
		case len(rs.Options) > 0:
			if rs.Template != "" {
				return nil, fmt.Errorf("step %d: inline template and options are mutually exclusive", i)
			}
			for j := range rs.Options {
				c, err := rs.Options[j].toCandidate()
				if err != nil {
					return nil, fmt.Errorf("step %d option %d: %w", i, j, err)
				}
				step.Candidates = append(step.Candidates, c)
			}
		default:
			c, err := rs.rawCandidate.toCandidate()
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			step.Candidates = []Candidate{c}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// LoadScript reads scripts/<activity>/<role>.json under dir. Role is "host"
// or "client"; a missing role file is reported as such so callers can reply
// with a precise refusal instead of a generic read error.
func LoadScript(dir, activity, role string) (*Script, error) {
	path := filepath.Join(dir, activity, role+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no %s script for activity %q: %w", role, activity, err)
		}
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	steps, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return &Script{Activity: activity, Role: role, Steps: steps}, nil
}

// ListActivities returns the activity names that have at least one script
// under dir, for the catalog endpoint.
func ListActivities(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		for _, f := range sub {
			if filepath.Ext(f.Name()) == ".json" {
				names = append(names, e.Name())
				break
			}
		}
	}
	return names, nil
}
