package navigate

import "context"

// Match is the outcome of comparing a template against a screen region.
// X and Y are the match location in fractional screen coordinates.
type Match struct {
	Score float64
	X, Y  float64
}

// Matcher locates a named template within a screen region and reports a
// confidence score in [0,1]. Implementations own screen capture and
// template storage; an error means the comparison could not be performed
// at all (unreadable template, capture failure), not a low score.
type Matcher interface {
	Match(ctx context.Context, template string, region Region) (Match, error)
}

// Input delivers key presses to the focused game window.
type Input interface {
	Press(ctx context.Context, key string) error
}
