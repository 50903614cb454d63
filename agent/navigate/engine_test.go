package navigate

import (
	"context"
	"errors"
	"testing"
	"time"
)

// funcMatcher adapts a function into a Matcher for tests.
type funcMatcher func(template string, region Region) Match

func (f funcMatcher) Match(_ context.Context, template string, region Region) (Match, error) {
	return f(template, region), nil
}

// recordingInput captures every key press in order.
type recordingInput struct {
	keys []string
}

func (r *recordingInput) Press(_ context.Context, key string) error {
	r.keys = append(r.keys, key)
	return nil
}

func fastParams() Params {
	return Params{
		Threshold:     0.8,
		MaxAttempts:   2,
		RetryDelay:    time.Millisecond,
		ActionDelay:   time.Millisecond,
		FallbackAfter: 2,
		MaxFallbacks:  3,
	}
}

func region() Region { return Region{X0: 0.1, Y0: 0.1, X1: 0.9, Y1: 0.9} }

func singleStep(template string, keys ...string) Step {
	return Step{Candidates: []Candidate{{
		Template: template,
		Region:   region(),
		Action:   Action{Keys: keys},
	}}}
}

func TestRunHappyPath(t *testing.T) {
	matcher := funcMatcher(func(template string, _ Region) Match {
		return Match{Score: 0.95}
	})
	input := &recordingInput{}
	eng := New(matcher, input, fastParams())

	steps := []Step{
		singleStep("menu_main", "enter"),
		singleStep("menu_multiplayer", "down", "down", "enter"),
		singleStep("lobby"), // wait step, no keys
	}
	stats, err := eng.Run(context.Background(), steps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Steps != 3 {
		t.Errorf("expected 3 completed steps, got %d", stats.Steps)
	}
	want := []string{"enter", "down", "down", "enter"}
	if len(input.keys) != len(want) {
		t.Fatalf("expected keys %v, got %v", want, input.keys)
	}
	for i := range want {
		if input.keys[i] != want[i] {
			t.Errorf("key %d: expected %q, got %q", i, want[i], input.keys[i])
		}
	}
}

func TestCandidateOrderShortCircuits(t *testing.T) {
	// Both options would match; only the first declared may act.
	var asked []string
	matcher := funcMatcher(func(template string, _ Region) Match {
		asked = append(asked, template)
		return Match{Score: 0.95}
	})
	input := &recordingInput{}
	eng := New(matcher, input, fastParams())

	step := Step{Candidates: []Candidate{
		{Template: "variant_a", Region: region(), Action: Action{Keys: []string{"a"}}},
		{Template: "variant_b", Region: region(), Action: Action{Keys: []string{"b"}}},
	}}
	if _, err := eng.Run(context.Background(), []Step{step}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(asked) != 1 || asked[0] != "variant_a" {
		t.Errorf("expected only variant_a to be evaluated, got %v", asked)
	}
	if len(input.keys) != 1 || input.keys[0] != "a" {
		t.Errorf("expected only option a's action, got %v", input.keys)
	}
}

func TestSecondOptionWinsWhenFirstMisses(t *testing.T) {
	matcher := funcMatcher(func(template string, _ Region) Match {
		if template == "variant_b" {
			return Match{Score: 0.9}
		}
		return Match{Score: 0.1}
	})
	input := &recordingInput{}
	eng := New(matcher, input, fastParams())

	step := Step{Candidates: []Candidate{
		{Template: "variant_a", Region: region(), Action: Action{Keys: []string{"a"}}},
		{Template: "variant_b", Region: region(), Action: Action{Keys: []string{"b"}}},
	}}
	if _, err := eng.Run(context.Background(), []Step{step}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(input.keys) != 1 || input.keys[0] != "b" {
		t.Errorf("expected option b's action, got %v", input.keys)
	}
}

func TestFallbackRewindsOneStep(t *testing.T) {
	// Step 1 fails until step 0's action has run twice, simulating a menu
	// that swallowed the first press.
	step0Presses := 0
	matcher := funcMatcher(func(template string, _ Region) Match {
		switch template {
		case "screen_0":
			return Match{Score: 0.9}
		case "screen_1":
			if step0Presses >= 2 {
				return Match{Score: 0.9}
			}
			return Match{Score: 0.1}
		}
		return Match{}
	})
	input := &recordingInput{}
	countingInput := &countingPress{inner: input, onPress: func(key string) {
		if key == "enter" {
			step0Presses++
		}
	}}
	eng := New(matcher, countingInput, fastParams())

	steps := []Step{
		singleStep("screen_0", "enter"),
		singleStep("screen_1", "down"),
	}
	stats, err := eng.Run(context.Background(), steps)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Fallbacks != 1 {
		t.Errorf("expected 1 fallback, got %d", stats.Fallbacks)
	}
	if step0Presses != 2 {
		t.Errorf("expected step 0 to execute twice, ran %d times", step0Presses)
	}
}

type countingPress struct {
	inner   *recordingInput
	onPress func(string)
}

func (c *countingPress) Press(ctx context.Context, key string) error {
	c.onPress(key)
	return c.inner.Press(ctx, key)
}

func TestFallbackAtFirstStepDoesNotUnderflow(t *testing.T) {
	matcher := funcMatcher(func(string, Region) Match { return Match{Score: 0.0} })
	eng := New(matcher, &recordingInput{}, fastParams())

	stats, err := eng.Run(context.Background(), []Step{singleStep("never", "enter")})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	// Cursor stayed at 0 throughout; the budget bounds the retries.
	if stats.Fallbacks != fastParams().MaxFallbacks {
		t.Errorf("expected %d fallbacks before abort, got %d", fastParams().MaxFallbacks, stats.Fallbacks)
	}
	if stats.Steps != 0 {
		t.Errorf("expected no completed steps, got %d", stats.Steps)
	}
}

func TestAbortAfterFallbackBudget(t *testing.T) {
	// Step 0 always matches, step 1 never does: the run oscillates until
	// the budget is spent instead of spinning forever.
	matcher := funcMatcher(func(template string, _ Region) Match {
		if template == "screen_0" {
			return Match{Score: 0.9}
		}
		return Match{Score: 0.0}
	})
	p := fastParams()
	p.MaxFallbacks = 2
	eng := New(matcher, &recordingInput{}, p)

	steps := []Step{
		singleStep("screen_0", "enter"),
		singleStep("screen_1", "down"),
	}
	stats, err := eng.Run(context.Background(), steps)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if stats.Fallbacks != 2 {
		t.Errorf("expected 2 fallbacks, got %d", stats.Fallbacks)
	}
}

func TestPressUntilMatch(t *testing.T) {
	// The intro screen needs three presses before the menu appears.
	presses := 0
	matcher := funcMatcher(func(template string, _ Region) Match {
		if presses >= 3 {
			return Match{Score: 0.9}
		}
		return Match{Score: 0.1}
	})
	input := &recordingInput{}
	counting := &countingPress{inner: input, onPress: func(string) { presses++ }}
	p := fastParams()
	p.MaxAttempts = 5
	eng := New(matcher, counting, p)

	step := Step{Candidates: []Candidate{{
		Template:   "main_menu",
		Region:     region(),
		PressUntil: Action{Keys: []string{"enter"}},
	}}}
	if _, err := eng.Run(context.Background(), []Step{step}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if presses != 3 {
		t.Errorf("expected 3 presses before the menu appeared, got %d", presses)
	}
}

func TestCancellationStopsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	matched := make(chan struct{}, 1)
	matcher := funcMatcher(func(string, Region) Match {
		select {
		case matched <- struct{}{}:
		default:
		}
		return Match{Score: 0.0}
	})
	p := fastParams()
	p.RetryDelay = time.Hour // cancellation must cut the sleep short
	p.MaxAttempts = 100
	eng := New(matcher, &recordingInput{}, p)

	done := make(chan error, 1)
	go func() {
		_, err := eng.Run(ctx, []Step{singleStep("never", "enter")})
		done <- err
	}()
	<-matched
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}

func TestMatcherErrorIsFatal(t *testing.T) {
	wantErr := errors.New("template not found")
	m := errMatcher{err: wantErr}
	eng := New(m, &recordingInput{}, fastParams())

	_, err := eng.Run(context.Background(), []Step{singleStep("missing", "enter")})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected matcher error to surface, got %v", err)
	}
}

type errMatcher struct{ err error }

func (m errMatcher) Match(context.Context, string, Region) (Match, error) {
	return Match{}, m.err
}
