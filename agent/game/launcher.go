package game

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"sync"
	"time"

	"simfleet/agent/config"
)

// Launcher starts and stops the game process for an activity.
type Launcher interface {
	Launch(ctx context.Context, g config.GameConfig) error
	Terminate(activity string) error
}

// ExecLauncher runs game executables as child processes and tracks them by
// activity so a stop can kill exactly what it started.
type ExecLauncher struct {
	mu      sync.Mutex
	running map[string]*exec.Cmd
}

func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{running: make(map[string]*exec.Cmd)}
}

// Launch starts the executable and waits the configured settle time so the
// first menu screen is up before navigation begins.
func (l *ExecLauncher) Launch(ctx context.Context, g config.GameConfig) error {
	if g.Executable == "" {
		return fmt.Errorf("activity %q has no executable configured", g.Activity)
	}

	l.mu.Lock()
	if _, ok := l.running[g.Activity]; ok {
		l.mu.Unlock()
		return fmt.Errorf("activity %q is already running", g.Activity)
	}
	cmd := exec.Command(g.Executable, g.Args...)
	if err := cmd.Start(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("launch %s: %w", g.Executable, err)
	}
	l.running[g.Activity] = cmd
	l.mu.Unlock()

	// Reap in the background so a crashed game does not leave a zombie.
	go func() {
		err := cmd.Wait()
		l.mu.Lock()
		delete(l.running, g.Activity)
		l.mu.Unlock()
		if err != nil {
			log.Printf("[GAME] %s exited: %v", g.Activity, err)
		}
	}()

	wait := g.LaunchWait
	if wait <= 0 {
		wait = 10 * time.Second
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		l.Terminate(g.Activity)
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Terminate kills the tracked process for the activity. Unknown activities
// are a no-op, which keeps stop idempotent.
func (l *ExecLauncher) Terminate(activity string) error {
	l.mu.Lock()
	cmd, ok := l.running[activity]
	delete(l.running, activity)
	l.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
