package navigate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrAborted is returned when a run exhausts its fallback budget.
var ErrAborted = errors.New("navigation aborted: fallback limit reached")

// Params are the run-level tuning knobs. Per-candidate overrides in the
// script take precedence over RetryDelay and ActionDelay.
type Params struct {
	// Threshold is the minimum match confidence to accept a candidate.
	Threshold float64
	// MaxAttempts is how many times a step is evaluated before one whole
	// visit to it counts as failed.
	MaxAttempts int
	// RetryDelay is the wait between attempts at the same step.
	RetryDelay time.Duration
	// ActionDelay is the wait between key presses and after each action.
	ActionDelay time.Duration
	// FallbackAfter is how many consecutive failed visits to a step
	// trigger a rewind to the previous step.
	FallbackAfter int
	// MaxFallbacks bounds rewinds for the whole run. Crossing it aborts
	// the run rather than oscillating between two steps forever.
	MaxFallbacks int
}

// DefaultParams returns the tuning used when config leaves a knob unset.
func DefaultParams() Params {
	return Params{
		Threshold:     0.80,
		MaxAttempts:   10,
		RetryDelay:    1 * time.Second,
		ActionDelay:   500 * time.Millisecond,
		FallbackAfter: 2,
		MaxFallbacks:  3,
	}
}

func (p *Params) applyDefaults() {
	d := DefaultParams()
	if p.Threshold <= 0 {
		p.Threshold = d.Threshold
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = d.RetryDelay
	}
	if p.ActionDelay <= 0 {
		p.ActionDelay = d.ActionDelay
	}
	if p.FallbackAfter <= 0 {
		p.FallbackAfter = d.FallbackAfter
	}
	if p.MaxFallbacks <= 0 {
		p.MaxFallbacks = d.MaxFallbacks
	}
}

// Stats summarizes a completed or aborted run for the history store.
type Stats struct {
	Steps     int
	Attempts  int
	Fallbacks int
	Duration  time.Duration
}

// Engine walks a script against the live screen. A run holds a cursor into
// the step list, advancing on a match and rewinding one step after repeated
// failures. Rewinding re-executes the previous step's action, which is what
// recovers a menu that swallowed a key press.
type Engine struct {
	matcher Matcher
	input   Input
	params  Params
}

// New builds an engine. Zero-valued params are filled from DefaultParams.
func New(matcher Matcher, input Input, params Params) *Engine {
	params.applyDefaults()
	return &Engine{matcher: matcher, input: input, params: params}
}

// Run executes the script until the cursor passes the last step, the
// context is cancelled, or the fallback budget is spent. Cancellation is
// observed at every delay, so Stop acts within one sleep interval.
func (e *Engine) Run(ctx context.Context, steps []Step) (Stats, error) {
	if len(steps) == 0 {
		return Stats{}, fmt.Errorf("no steps to run")
	}
	start := time.Now()
	stats := Stats{}
	i := 0
	failures := 0 // consecutive failed visits to steps[i]

	for i < len(steps) {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		ok, attempts, err := e.visitStep(ctx, i, steps[i])
		stats.Attempts += attempts
		if err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		if ok {
			stats.Steps++
			failures = 0
			i++
			continue
		}

		failures++
		if failures < e.params.FallbackAfter {
			continue
		}

		// Repeated failure here usually means the previous action never
		// landed. Step back once and replay it.
		if stats.Fallbacks >= e.params.MaxFallbacks {
			stats.Duration = time.Since(start)
			return stats, ErrAborted
		}
		stats.Fallbacks++
		failures = 0
		prev := i
		if i > 0 {
			i--
		}
		log.Printf("[NAV] step %d not matching, falling back to step %d (%d/%d)",
			prev, i, stats.Fallbacks, e.params.MaxFallbacks)
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// visitStep makes up to MaxAttempts passes over the step's candidates in
// declared order, stopping at the first match. It reports whether the step
// succeeded and how many attempts were consumed.
func (e *Engine) visitStep(ctx context.Context, idx int, step Step) (bool, int, error) {
	for attempt := 1; attempt <= e.params.MaxAttempts; attempt++ {
		for ci := range step.Candidates {
			c := &step.Candidates[ci]
			matched, err := e.tryCandidate(ctx, c)
			if err != nil {
				return false, attempt, fmt.Errorf("step %d template %q: %w", idx, c.Template, err)
			}
			if matched {
				if ci > 0 {
					log.Printf("[NAV] step %d matched option %d (%s)", idx, ci, c.Template)
				}
				return true, attempt, nil
			}
		}
		if attempt < e.params.MaxAttempts {
			if err := sleep(ctx, e.retryDelay(step)); err != nil {
				return false, attempt, err
			}
		}
	}
	return false, e.params.MaxAttempts, nil
}

// tryCandidate evaluates one candidate. Press-until candidates press their
// keys first and then look for the expected screen; normal candidates look
// first and press only on a match.
func (e *Engine) tryCandidate(ctx context.Context, c *Candidate) (bool, error) {
	delay := e.actionDelay(c)

	if c.IsPressUntil() {
		if err := e.pressKeys(ctx, c.PressUntil.Keys, delay); err != nil {
			return false, err
		}
	}

	m, err := e.matcher.Match(ctx, c.Template, c.Region)
	if err != nil {
		return false, err
	}
	if m.Score < e.params.Threshold {
		return false, nil
	}

	if !c.IsPressUntil() && !c.Action.IsZero() {
		if err := e.pressKeys(ctx, c.Action.Keys, delay); err != nil {
			return false, err
		}
	}
	// Settle before the next step reads the screen.
	if err := sleep(ctx, delay); err != nil {
		return false, err
	}
	return true, nil
}

// pressKeys delivers an ordered key sequence with delay between presses.
func (e *Engine) pressKeys(ctx context.Context, keys []string, delay time.Duration) error {
	for n, key := range keys {
		if n > 0 {
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}
		if err := e.input.Press(ctx, key); err != nil {
			return fmt.Errorf("press %q: %w", key, err)
		}
	}
	return nil
}

// retryDelay prefers the first candidate's override, the authoring
// convention for step-level timing.
func (e *Engine) retryDelay(step Step) time.Duration {
	if len(step.Candidates) > 0 && step.Candidates[0].RetryDelay != nil {
		return *step.Candidates[0].RetryDelay
	}
	return e.params.RetryDelay
}

func (e *Engine) actionDelay(c *Candidate) time.Duration {
	if c.ActionDelay != nil {
		return *c.ActionDelay
	}
	return e.params.ActionDelay
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
