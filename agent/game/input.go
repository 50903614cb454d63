package game

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Focuser raises the game window before input is delivered.
type Focuser interface {
	Focus(ctx context.Context, windowTitle string) error
}

// ExecFocuser shells out to a window manager tool. The command is a
// template where {title} is replaced, e.g. "wmctrl -a {title}".
type ExecFocuser struct {
	Command string
}

func (f *ExecFocuser) Focus(ctx context.Context, windowTitle string) error {
	command := f.Command
	if command == "" {
		command = "wmctrl -a {title}"
	}
	args := splitCommand(strings.ReplaceAll(command, "{title}", windowTitle))
	if len(args) == 0 {
		return fmt.Errorf("empty focus command")
	}
	if out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput(); err != nil {
		return fmt.Errorf("focus %q: %v: %s", windowTitle, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// ExecInput delivers key presses through an external injector, by default
// xdotool. It satisfies the navigation engine's Input interface.
type ExecInput struct {
	Command string // template with {key}, e.g. "xdotool key {key}"
}

func (i *ExecInput) Press(ctx context.Context, key string) error {
	command := i.Command
	if command == "" {
		command = "xdotool key {key}"
	}
	args := splitCommand(strings.ReplaceAll(command, "{key}", key))
	if len(args) == 0 {
		return fmt.Errorf("empty input command")
	}
	if out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput(); err != nil {
		return fmt.Errorf("press %q: %v: %s", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func splitCommand(s string) []string {
	return strings.Fields(s)
}
