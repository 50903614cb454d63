package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"simfleet/agent/config"
	"simfleet/agent/game"
	"simfleet/agent/navigate"
	"simfleet/agent/store"
	"simfleet/protocol"
)

// Navigator walks a script against the live screen.
type Navigator interface {
	Run(ctx context.Context, steps []navigate.Step) (navigate.Stats, error)
}

// Command refusals, matched by the coordinator's error handling.
var (
	ErrBusy          = errors.New(protocol.ReasonNodeBusy)
	ErrNotConfigured = errors.New(protocol.ReasonNotConfigured)
	ErrUnknownScript = errors.New(protocol.ReasonUnknownScript)
)

// assignment is the rig's pending or active session slot.
type assignment struct {
	sessionID   string
	activity    string
	role        string
	playerIndex int
	script      *navigate.Script
	game        config.GameConfig
	cancel      context.CancelFunc
	runID       int64
}

// Rig is the agent's command state machine. Configure stages an
// assignment, Start spawns the run, Stop and Reset return the rig to idle
// from anywhere. A mutex guards every transition; the run itself happens
// on its own goroutine and reports back through finishRun.
type Rig struct {
	mu    sync.Mutex
	state string
	asg   *assignment

	cfg       *config.Config
	launcher  game.Launcher
	focuser   game.Focuser
	navigator Navigator
	db        *store.DB

	lastError string
}

func New(cfg *config.Config, launcher game.Launcher, focuser game.Focuser, navigator Navigator, db *store.DB) *Rig {
	return &Rig{
		state:     protocol.StatusIdle,
		cfg:       cfg,
		launcher:  launcher,
		focuser:   focuser,
		navigator: navigator,
		db:        db,
	}
}

// Status reports the rig's state for heartbeats.
func (r *Rig) Status() (status, activity, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.asg == nil {
		return r.state, "", ""
	}
	return r.state, r.asg.activity, r.asg.sessionID
}

// LastError returns the most recent run failure, cleared on configure.
func (r *Rig) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastError
}

// Configure stages a session assignment. Only an idle rig accepts one; the
// activity must have both launch settings and a script for the assigned
// role, validated now so a refusal reaches the coordinator before any rig
// is started.
func (r *Rig) Configure(cmd *protocol.ConfigureCommand) error {
	if cmd.SessionID == "" || cmd.Activity == "" {
		return fmt.Errorf("session_id and activity are required")
	}

	gameCfg, ok := r.cfg.Game(cmd.Activity)
	if !ok {
		return fmt.Errorf("%w: activity %q is not installed on this rig", ErrUnknownScript, cmd.Activity)
	}
	script, err := navigate.LoadScript(r.cfg.ScriptsDir, cmd.Activity, cmd.Role)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownScript, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != protocol.StatusIdle {
		return fmt.Errorf("%w: rig is %s", ErrBusy, r.state)
	}
	r.state = protocol.StatusConfigured
	r.asg = &assignment{
		sessionID:   cmd.SessionID,
		activity:    cmd.Activity,
		role:        cmd.Role,
		playerIndex: cmd.PlayerIndex,
		script:      script,
		game:        gameCfg,
	}
	r.lastError = ""
	log.Printf("[RIG] configured for %s as %s (player %d), session %s",
		cmd.Activity, cmd.Role, cmd.PlayerIndex, cmd.SessionID)
	return nil
}

// Start launches the staged assignment. The run happens on its own
// goroutine; the command returns as soon as the rig is committed.
func (r *Rig) Start(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != protocol.StatusConfigured || r.asg == nil {
		return fmt.Errorf("%w: rig is %s", ErrNotConfigured, r.state)
	}
	if sessionID != "" && sessionID != r.asg.sessionID {
		return fmt.Errorf("%w: configured for session %s", ErrNotConfigured, r.asg.sessionID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.asg.cancel = cancel
	r.state = protocol.StatusRunning

	if r.db != nil {
		run := &store.Run{
			SessionID:   r.asg.sessionID,
			Activity:    r.asg.activity,
			Role:        r.asg.role,
			PlayerIndex: r.asg.playerIndex,
		}
		if err := r.db.CreateRun(run); err != nil {
			log.Printf("[RIG] record run: %v", err)
		} else {
			r.asg.runID = run.ID
		}
	}

	go r.run(ctx, *r.asg)
	return nil
}

// run launches the game, focuses it, and navigates to the session. It owns
// the transition back out of the running state.
func (r *Rig) run(ctx context.Context, asg assignment) {
	started := time.Now()

	if err := r.launcher.Launch(ctx, asg.game); err != nil {
		r.finishRun(asg, store.OutcomeFailed, fmt.Sprintf("launch: %v", err), navigate.Stats{Duration: time.Since(started)}, true)
		return
	}
	if asg.game.WindowTitle != "" && r.focuser != nil {
		if err := r.focuser.Focus(ctx, asg.game.WindowTitle); err != nil {
			log.Printf("[RIG] focus %q: %v", asg.game.WindowTitle, err)
		}
	}

	stats, err := r.navigator.Run(ctx, asg.script.Steps)
	switch {
	case err == nil:
		log.Printf("[RIG] session %s: navigation complete, %d steps in %s",
			asg.sessionID, stats.Steps, stats.Duration.Round(time.Millisecond))
		r.finishRun(asg, store.OutcomeCompleted, "", stats, false)
	case errors.Is(err, context.Canceled):
		r.finishRun(asg, store.OutcomeCancelled, "stopped", stats, true)
	case errors.Is(err, navigate.ErrAborted):
		r.finishRun(asg, store.OutcomeAborted, err.Error(), stats, true)
	default:
		r.finishRun(asg, store.OutcomeFailed, err.Error(), stats, true)
	}
}

// finishRun records the outcome and settles the state machine. A completed
// navigation leaves the rig running its session until a stop arrives; any
// other outcome tears the game down and returns the rig to idle so the
// fleet can be relaunched without hands on this seat.
func (r *Rig) finishRun(asg assignment, outcome, detail string, stats navigate.Stats, teardown bool) {
	if r.db != nil && asg.runID != 0 {
		if err := r.db.FinishRun(asg.runID, outcome, detail, stats.Steps, stats.Attempts, stats.Fallbacks, stats.Duration); err != nil {
			log.Printf("[RIG] finish run: %v", err)
		}
	}
	if teardown {
		if err := r.launcher.Terminate(asg.activity); err != nil {
			log.Printf("[RIG] terminate %s: %v", asg.activity, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A stop may already have moved the machine on; only the owning run
	// settles it.
	if r.asg == nil || r.asg.sessionID != asg.sessionID {
		return
	}
	if outcome == store.OutcomeCompleted {
		// Stay running: the rig is in the session until stopped.
		return
	}
	if outcome != store.OutcomeCancelled {
		r.lastError = detail
		log.Printf("[RIG] session %s: %s: %s", asg.sessionID, outcome, detail)
	}
	r.state = protocol.StatusIdle
	r.asg = nil
}

// Stop halts whatever the rig is doing. It is idempotent and valid in any
// state; stopping an idle rig is a no-op.
func (r *Rig) Stop(sessionID string) error {
	r.mu.Lock()
	if r.asg == nil {
		r.mu.Unlock()
		return nil
	}
	asg := *r.asg
	r.state = protocol.StatusStopping
	r.asg = nil
	r.mu.Unlock()

	if asg.cancel != nil {
		asg.cancel()
	}
	if err := r.launcher.Terminate(asg.activity); err != nil {
		log.Printf("[RIG] terminate %s: %v", asg.activity, err)
	}
	if r.db != nil && asg.runID != 0 {
		r.db.FinishRun(asg.runID, store.OutcomeCancelled, "stopped", 0, 0, 0, 0)
	}

	r.mu.Lock()
	r.state = protocol.StatusIdle
	r.mu.Unlock()
	log.Printf("[RIG] stopped, session %s released", asg.sessionID)
	return nil
}

// Reset rolls a staged assignment back to idle. The coordinator sends it
// when another rig failed to configure; a rig that never staged anything
// treats it as a no-op.
func (r *Rig) Reset(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.asg == nil {
		return nil
	}
	if r.state == protocol.StatusRunning {
		// A running rig rolls back through Stop, not Reset.
		return fmt.Errorf("%w: rig is running", ErrBusy)
	}
	log.Printf("[RIG] assignment for session %s rolled back", r.asg.sessionID)
	r.state = protocol.StatusIdle
	r.asg = nil
	return nil
}
