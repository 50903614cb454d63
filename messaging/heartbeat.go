package messaging

import (
	"log"
	"os"
	"sync"
	"time"

	"simfleet/protocol"
)

// DefaultHeartbeatInterval is the rig-side reporting cadence. The
// coordinator's liveness timeout is three missed beats.
const DefaultHeartbeatInterval = 5 * time.Second

// StatusFunc supplies the rig's current state for each heartbeat.
type StatusFunc func() (status, activity, sessionID string)

// Heartbeater sends rig.register on startup and rig.heartbeat periodically.
type Heartbeater struct {
	client    *Client
	nodeID    int64
	name      string
	addr      string
	version   string
	topic     string // fleet topic to publish on
	interval  time.Duration
	statusFn  StatusFunc
	startTime time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHeartbeater creates a heartbeater for the given rig identity. addr is
// the rig's command API base advertised to the coordinator.
func NewHeartbeater(client *Client, nodeID int64, name, addr, version, fleetTopic string, statusFn StatusFunc) *Heartbeater {
	return &Heartbeater{
		client:   client,
		nodeID:   nodeID,
		name:     name,
		addr:     addr,
		version:  version,
		topic:    fleetTopic,
		interval: DefaultHeartbeatInterval,
		statusFn: statusFn,
		stopCh:   make(chan struct{}),
	}
}

// Start sends an initial registration and begins the heartbeat loop.
func (h *Heartbeater) Start() {
	h.startTime = time.Now()
	h.sendRegister()
	h.sendHeartbeat()
	go h.loop()
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Heartbeater) src() protocol.Address {
	return protocol.Address{Role: protocol.RoleRig, Node: h.name}
}

func (h *Heartbeater) sendRegister() {
	hostname, _ := os.Hostname()
	env, err := protocol.NewEnvelope(
		protocol.TypeRigRegister,
		h.src(),
		protocol.Address{Role: protocol.RoleCoordinator},
		&protocol.RigRegister{
			NodeID:   h.nodeID,
			Name:     h.name,
			Addr:     h.addr,
			Hostname: hostname,
			Version:  h.version,
		},
	)
	if err != nil {
		log.Printf("heartbeater: build register: %v", err)
		return
	}
	if err := h.client.PublishEnvelope(h.topic, env); err != nil {
		log.Printf("heartbeater: send register: %v", err)
	} else {
		log.Printf("heartbeater: sent rig.register (node=%s id=%d)", h.name, h.nodeID)
	}
}

func (h *Heartbeater) sendHeartbeat() {
	status, activity, sessionID := h.statusFn()
	env, err := protocol.NewEnvelope(
		protocol.TypeRigHeartbeat,
		h.src(),
		protocol.Address{Role: protocol.RoleCoordinator},
		&protocol.RigHeartbeat{
			NodeID:    h.nodeID,
			Name:      h.name,
			Addr:      h.addr,
			Status:    status,
			Activity:  activity,
			SessionID: sessionID,
			Uptime:    int64(time.Since(h.startTime).Seconds()),
		},
	)
	if err != nil {
		log.Printf("heartbeater: build heartbeat: %v", err)
		return
	}
	if err := h.client.PublishEnvelope(h.topic, env); err != nil {
		log.Printf("heartbeater: send heartbeat: %v", err)
	}
}

func (h *Heartbeater) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}
