package registry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"simfleet/coordinator/engine"
	"simfleet/protocol"
)

// OnlineWindow is how recently a rig must have been heard from to count as
// online. Liveness is derived from lastSeen at read time; nothing in the
// registry runs a reaper, so a rig that resumes heartbeating is online
// again on the next read.
const OnlineWindow = 15 * time.Second

// Rig is the registry's record of one fleet member.
type Rig struct {
	NodeID   int64
	Name     string
	Addr     string
	Hostname string
	Version  string
	Status   string
	Activity string
	SessionID string
	LastSeen time.Time
}

func (r *Rig) snapshot(now time.Time) protocol.NodeSnapshot {
	return protocol.NodeSnapshot{
		NodeID:    r.NodeID,
		Name:      r.Name,
		Addr:      r.Addr,
		Status:    r.Status,
		Activity:  r.Activity,
		SessionID: r.SessionID,
		LastSeen:  r.LastSeen.Unix(),
		Online:    now.Sub(r.LastSeen) < OnlineWindow,
	}
}

// Registry tracks every rig that has ever announced itself this process
// lifetime, keyed by the rig's stable numeric id.
type Registry struct {
	mu     sync.RWMutex
	rigs   map[int64]*Rig
	bus    *engine.EventBus
	mirror *Mirror
}

// New builds a registry. bus and mirror are both optional.
func New(bus *engine.EventBus, mirror *Mirror) *Registry {
	return &Registry{rigs: make(map[int64]*Rig), bus: bus, mirror: mirror}
}

// Register records a rig announcement. Re-registration with the same id and
// name is idempotent and refreshes the record; the same id under a
// different name is a fleet configuration error and is rejected.
func (r *Registry) Register(p *protocol.RigRegister, now time.Time) error {
	r.mu.Lock()
	existing, known := r.rigs[p.NodeID]
	if known && existing.Name != p.Name {
		name := existing.Name
		r.mu.Unlock()
		return fmt.Errorf("node id %d is already registered as %q, refusing %q", p.NodeID, name, p.Name)
	}
	rig := existing
	if rig == nil {
		rig = &Rig{NodeID: p.NodeID, Status: protocol.StatusIdle}
		r.rigs[p.NodeID] = rig
	}
	rig.Name = p.Name
	rig.Addr = p.Addr
	rig.Hostname = p.Hostname
	rig.Version = p.Version
	rig.LastSeen = now
	snap := rig.snapshot(now)
	r.mu.Unlock()

	if !known {
		log.Printf("[REGISTRY] rig %d (%s) registered at %s", p.NodeID, p.Name, p.Addr)
		r.emit(engine.Event{Type: engine.EventRigRegistered, Payload: engine.RigRegisteredEvent{
			NodeID: p.NodeID, Name: p.Name, Addr: p.Addr,
		}})
	}
	r.mirrorSet(snap)
	return nil
}

// Heartbeat refreshes a rig's liveness and self-reported state. A heartbeat
// from an unknown rig registers it implicitly, so a restarted coordinator
// rebuilds its fleet view within one heartbeat interval.
func (r *Registry) Heartbeat(p *protocol.RigHeartbeat, now time.Time) error {
	r.mu.Lock()
	rig, known := r.rigs[p.NodeID]
	if known && p.Name != "" && rig.Name != p.Name {
		name := rig.Name
		r.mu.Unlock()
		return fmt.Errorf("node id %d is already registered as %q, refusing heartbeat from %q", p.NodeID, name, p.Name)
	}
	if !known {
		rig = &Rig{NodeID: p.NodeID}
		r.rigs[p.NodeID] = rig
	}
	oldStatus := rig.Status
	if p.Name != "" {
		rig.Name = p.Name
	}
	if p.Addr != "" {
		rig.Addr = p.Addr
	}
	rig.Status = p.Status
	rig.Activity = p.Activity
	rig.SessionID = p.SessionID
	rig.LastSeen = now
	snap := rig.snapshot(now)
	name := rig.Name
	r.mu.Unlock()

	if !known {
		log.Printf("[REGISTRY] rig %d (%s) discovered via heartbeat", p.NodeID, name)
		r.emit(engine.Event{Type: engine.EventRigRegistered, Payload: engine.RigRegisteredEvent{
			NodeID: p.NodeID, Name: name, Addr: p.Addr,
		}})
	}
	if known && oldStatus != p.Status {
		r.emit(engine.Event{Type: engine.EventRigStatusChanged, Payload: engine.RigStatusChangedEvent{
			NodeID: p.NodeID, Name: name, OldStatus: oldStatus, NewStatus: p.Status,
		}})
	}
	r.emit(engine.Event{Type: engine.EventRigHeartbeat, Payload: engine.RigHeartbeatEvent{
		NodeID: p.NodeID, Name: name, Status: p.Status, Activity: p.Activity,
	}})
	r.mirrorSet(snap)
	return nil
}

// Get returns the snapshot for one rig.
func (r *Registry) Get(nodeID int64, now time.Time) (protocol.NodeSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rig, ok := r.rigs[nodeID]
	if !ok {
		return protocol.NodeSnapshot{}, false
	}
	return rig.snapshot(now), true
}

// List returns snapshots of every known rig, online or not, ordered by
// ascending node id.
func (r *Registry) List(now time.Time) []protocol.NodeSnapshot {
	r.mu.RLock()
	snaps := make([]protocol.NodeSnapshot, 0, len(r.rigs))
	for _, rig := range r.rigs {
		snaps = append(snaps, rig.snapshot(now))
	}
	r.mu.RUnlock()
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].NodeID < snaps[j].NodeID })
	return snaps
}

// Online returns only the rigs heard from within OnlineWindow, ordered by
// ascending node id. Host selection and player numbering both key off this
// ordering.
func (r *Registry) Online(now time.Time) []protocol.NodeSnapshot {
	all := r.List(now)
	online := all[:0]
	for _, s := range all {
		if s.Online {
			online = append(online, s)
		}
	}
	return online
}

func (r *Registry) emit(evt engine.Event) {
	if r.bus != nil {
		r.bus.Emit(evt)
	}
}

func (r *Registry) mirrorSet(snap protocol.NodeSnapshot) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.SetRig(context.Background(), snap); err != nil {
		log.Printf("[REGISTRY] redis mirror update for rig %d: %v", snap.NodeID, err)
	}
}
