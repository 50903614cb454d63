package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSessionActive is returned when a launch is requested while a session
// is already starting or running.
var ErrSessionActive = errors.New("a session is already active")

// ErrNoActiveSession is returned by StopAll when there is nothing to stop.
var ErrNoActiveSession = errors.New("no active session")

// InsufficientNodesError reports a fleet too small to launch.
type InsufficientNodesError struct {
	Online int
	Min    int
}

func (e *InsufficientNodesError) Error() string {
	return fmt.Sprintf("need at least %d online rigs to start a session, have %d", e.Min, e.Online)
}

// NodeFailure pins a launch failure to one rig.
type NodeFailure struct {
	NodeID int64
	Name   string
	Reason string
}

// ConfigurationFailedError is returned when phase one of a launch fails.
// The fleet has been rolled back; no rig received a start command.
type ConfigurationFailedError struct {
	SessionID string
	Failures  []NodeFailure
}

func (e *ConfigurationFailedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("rig %d (%s): %s", f.NodeID, f.Name, f.Reason)
	}
	return fmt.Sprintf("session %s: configuration failed, fleet rolled back: %s",
		e.SessionID, strings.Join(parts, "; "))
}
