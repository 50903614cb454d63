package session

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"simfleet/coordinator/config"
	"simfleet/coordinator/engine"
	"simfleet/coordinator/registry"
	"simfleet/coordinator/store"
	"simfleet/protocol"
)

// Coordinator runs the two-phase session launch across the fleet. The
// invariant it protects: a rig only ever receives a start command if every
// selected rig acknowledged its configuration first. A partial launch is
// worse than no launch, because half a fleet in a lobby needs hands-on
// recovery at every seat.
type Coordinator struct {
	mu       sync.Mutex
	registry *registry.Registry
	db       *store.DB
	client   NodeClient
	bus      *engine.EventBus
	cfg      config.SessionConfig

	active *launch
}

// launch tracks the in-flight session and its participants.
type launch struct {
	session      *store.Session
	participants []participant
}

type participant struct {
	snap  protocol.NodeSnapshot
	index int
	role  string
}

func NewCoordinator(reg *registry.Registry, db *store.DB, client NodeClient, bus *engine.EventBus, cfg config.SessionConfig) *Coordinator {
	if cfg.MinNodes < 1 {
		cfg.MinNodes = 1
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	return &Coordinator{
		registry: reg,
		db:       db,
		client:   client,
		bus:      bus,
		cfg:      cfg,
	}
}

// newSessionID combines a timestamp with a short random suffix so ids sort
// chronologically but cannot collide across coordinator restarts.
func newSessionID(now time.Time) string {
	return fmt.Sprintf("sess-%d-%s", now.Unix(), uuid.NewString()[:8])
}

// Active returns the in-flight session, or nil.
func (c *Coordinator) Active() *store.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	cp := *c.active.session
	return &cp
}

// StartAll launches the given activity across the fleet. count limits the
// session to the first count online rigs; zero or negative takes everyone.
// Selection, role assignment, and player numbering all derive from
// ascending node id: the lowest id hosts, everyone else joins as a client.
// Phase one fans out configure commands and waits for every reply; any
// refusal or timeout rolls the acked rigs back to idle and aborts before
// any start command is sent. Phase two fans out start; a rig that fails to
// start degrades the session but does not undo the rigs already racing.
func (c *Coordinator) StartAll(ctx context.Context, activity string, count int) (*store.Session, error) {
	if activity == "" {
		return nil, fmt.Errorf("activity is required")
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}

	now := time.Now()
	online := c.registry.Online(now) // ascending node id
	want := len(online)
	if count > 0 {
		want = count
	}
	if len(online) < want || len(online) < c.cfg.MinNodes {
		c.mu.Unlock()
		return nil, &InsufficientNodesError{Online: len(online), Min: max(want, c.cfg.MinNodes)}
	}
	online = online[:want]

	sessionID := newSessionID(now)
	sess := &store.Session{
		ID:         sessionID,
		Activity:   activity,
		Status:     store.SessionStarting,
		HostNodeID: online[0].NodeID,
	}
	participants := make([]participant, len(online))
	for i, snap := range online {
		role := protocol.SessionRoleClient
		if i == 0 {
			role = protocol.SessionRoleHost
		}
		participants[i] = participant{snap: snap, index: i, role: role}
	}
	c.active = &launch{session: sess, participants: participants}
	c.mu.Unlock()

	if err := c.db.CreateSession(sess); err != nil {
		c.clearActive()
		return nil, fmt.Errorf("persist session: %w", err)
	}
	for _, p := range participants {
		c.db.AddParticipant(&store.Participant{
			SessionID:   sessionID,
			NodeID:      p.snap.NodeID,
			Role:        p.role,
			PlayerIndex: p.index,
		})
	}

	nodeIDs := make([]int64, len(participants))
	for i, p := range participants {
		nodeIDs[i] = p.snap.NodeID
	}
	log.Printf("[SESSION] %s: launching %q on %d rigs, host is rig %d",
		sessionID, activity, len(participants), sess.HostNodeID)
	c.emit(engine.EventSessionStarting, engine.SessionEvent{
		SessionID: sessionID, Activity: activity, HostID: sess.HostNodeID, NodeIDs: nodeIDs,
	})

	// Phase one: configure everyone, wait for every reply.
	acked, failures := c.configureAll(ctx, sessionID, activity, participants)
	if len(failures) > 0 {
		c.rollback(sessionID, acked)
		detail := (&ConfigurationFailedError{SessionID: sessionID, Failures: failures}).Error()
		c.db.EndSession(sessionID, store.SessionFailed, detail)
		c.clearActive()
		c.emit(engine.EventSessionFailed, engine.SessionEvent{
			SessionID: sessionID, Activity: activity, HostID: sess.HostNodeID, NodeIDs: nodeIDs, Detail: detail,
		})
		return nil, &ConfigurationFailedError{SessionID: sessionID, Failures: failures}
	}

	// Phase two: every rig is configured, start them all.
	startFailures := c.startAll(ctx, sessionID, participants)
	status := store.SessionRunning
	detail := ""
	evt := engine.EventSessionStarted
	if len(startFailures) > 0 {
		status = store.SessionDegraded
		detail = fmt.Sprintf("%d of %d rigs failed to start", len(startFailures), len(participants))
		evt = engine.EventSessionDegraded
		log.Printf("[SESSION] %s: %s", sessionID, detail)
	}
	c.db.UpdateSessionStatus(sessionID, status, detail)

	c.mu.Lock()
	sess.Status = status
	sess.Detail = detail
	cp := *sess
	c.mu.Unlock()

	c.emit(evt, engine.SessionEvent{
		SessionID: sessionID, Activity: activity, HostID: sess.HostNodeID, NodeIDs: nodeIDs, Detail: detail,
	})
	return &cp, nil
}

// StopAll halts the active session. Stop is best-effort and idempotent:
// every participant gets a stop command, including rigs that failed to
// start, and individual failures only get logged.
func (c *Coordinator) StopAll(ctx context.Context) (*store.Session, error) {
	c.mu.Lock()
	if c.active == nil {
		c.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	l := c.active
	c.active = nil
	c.mu.Unlock()

	sessionID := l.session.ID
	log.Printf("[SESSION] %s: stopping %d rigs", sessionID, len(l.participants))

	var wg sync.WaitGroup
	for _, p := range l.participants {
		wg.Add(1)
		go func(p participant) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
			defer cancel()
			if err := c.client.Stop(cctx, p.snap.Addr, sessionID); err != nil {
				log.Printf("[SESSION] %s: stop rig %d (%s): %v", sessionID, p.snap.NodeID, p.snap.Name, err)
			}
		}(p)
	}
	wg.Wait()

	c.db.EndSession(sessionID, store.SessionStopped, "")
	l.session.Status = store.SessionStopped

	nodeIDs := make([]int64, len(l.participants))
	for i, p := range l.participants {
		nodeIDs[i] = p.snap.NodeID
	}
	c.emit(engine.EventSessionStopped, engine.SessionEvent{
		SessionID: sessionID, Activity: l.session.Activity, HostID: l.session.HostNodeID, NodeIDs: nodeIDs,
	})
	cp := *l.session
	return &cp, nil
}

// configureAll fans configure out to every participant and gathers the
// full barrier: it returns only when each rig has acked, refused, or timed
// out. acked holds the participants whose rigs accepted and may need a
// rollback; failures is ordered by node id for stable error text.
func (c *Coordinator) configureAll(ctx context.Context, sessionID, activity string, participants []participant) (acked []participant, failures []NodeFailure) {
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range participants {
		wg.Add(1)
		go func(p participant) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
			defer cancel()
			err := c.client.Configure(cctx, p.snap.Addr, &protocol.ConfigureCommand{
				SessionID:   sessionID,
				Activity:    activity,
				Role:        p.role,
				PlayerIndex: p.index,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[SESSION] %s: configure rig %d (%s): %v", sessionID, p.snap.NodeID, p.snap.Name, err)
				c.db.SetParticipantConfigured(sessionID, p.snap.NodeID, false, err.Error())
				failures = append(failures, NodeFailure{NodeID: p.snap.NodeID, Name: p.snap.Name, Reason: err.Error()})
				return
			}
			c.db.SetParticipantConfigured(sessionID, p.snap.NodeID, true, "")
			acked = append(acked, p)
		}(p)
	}
	wg.Wait()
	sort.Slice(failures, func(i, j int) bool { return failures[i].NodeID < failures[j].NodeID })
	return acked, failures
}

// rollback returns acked rigs to idle after a failed phase one. Rigs that
// never acked are already idle; rigs that refuse the reset get logged and
// left for their own recovery.
func (c *Coordinator) rollback(sessionID string, acked []participant) {
	if len(acked) == 0 {
		return
	}
	log.Printf("[SESSION] %s: rolling back %d configured rigs", sessionID, len(acked))
	var wg sync.WaitGroup
	for _, p := range acked {
		wg.Add(1)
		go func(p participant) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(context.Background(), c.cfg.CommandTimeout)
			defer cancel()
			if err := c.client.Reset(cctx, p.snap.Addr, sessionID); err != nil {
				log.Printf("[SESSION] %s: rollback rig %d (%s): %v", sessionID, p.snap.NodeID, p.snap.Name, err)
			}
		}(p)
	}
	wg.Wait()
}

// startAll fans start out to every configured rig and waits for the fleet.
func (c *Coordinator) startAll(ctx context.Context, sessionID string, participants []participant) []NodeFailure {
	var mu sync.Mutex
	var failures []NodeFailure
	var wg sync.WaitGroup
	for _, p := range participants {
		wg.Add(1)
		go func(p participant) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
			defer cancel()
			err := c.client.Start(cctx, p.snap.Addr, sessionID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[SESSION] %s: start rig %d (%s): %v", sessionID, p.snap.NodeID, p.snap.Name, err)
				c.db.SetParticipantStarted(sessionID, p.snap.NodeID, false, err.Error())
				failures = append(failures, NodeFailure{NodeID: p.snap.NodeID, Name: p.snap.Name, Reason: err.Error()})
				return
			}
			c.db.SetParticipantStarted(sessionID, p.snap.NodeID, true, "")
		}(p)
	}
	wg.Wait()
	return failures
}

func (c *Coordinator) clearActive() {
	c.mu.Lock()
	c.active = nil
	c.mu.Unlock()
}

func (c *Coordinator) emit(t engine.EventType, payload engine.SessionEvent) {
	if c.bus != nil {
		c.bus.Emit(engine.Event{Type: t, Payload: payload})
	}
}
