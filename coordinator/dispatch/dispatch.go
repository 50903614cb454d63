package dispatch

import (
	"log"
	"time"

	"simfleet/coordinator/registry"
	"simfleet/coordinator/store"
	"simfleet/protocol"
)

// Publisher is the slice of the messaging client the handler needs to
// answer rigs on the control topic.
type Publisher interface {
	PublishEnvelope(topic string, env interface{ Encode() ([]byte, error) }) error
}

// FleetHandler consumes rig traffic from the fleet topic: registrations
// and heartbeats feed the live registry, rig announcements feed the
// durable rigs table, and every message gets an ack on the control topic.
type FleetHandler struct {
	protocol.NoOpHandler
	registry     *registry.Registry
	db           *store.DB
	pub          Publisher
	controlTopic string
}

func NewFleetHandler(reg *registry.Registry, db *store.DB, pub Publisher, controlTopic string) *FleetHandler {
	return &FleetHandler{
		registry:     reg,
		db:           db,
		pub:          pub,
		controlTopic: controlTopic,
	}
}

func (h *FleetHandler) src() protocol.Address {
	return protocol.Address{Role: protocol.RoleCoordinator}
}

func (h *FleetHandler) HandleRigRegister(env *protocol.Envelope, p *protocol.RigRegister) {
	if err := h.registry.Register(p, time.Now()); err != nil {
		log.Printf("[DISPATCH] register rig %d: %v", p.NodeID, err)
		return
	}
	if h.db != nil {
		if err := h.db.UpsertRig(&store.Rig{
			NodeID:   p.NodeID,
			Name:     p.Name,
			Addr:     p.Addr,
			Hostname: p.Hostname,
			Version:  p.Version,
		}); err != nil {
			log.Printf("[DISPATCH] persist rig %d: %v", p.NodeID, err)
		}
	}
	h.reply(env, protocol.TypeRigRegistered, protocol.RigRegistered{
		NodeID:  p.NodeID,
		Message: "welcome",
	})
}

func (h *FleetHandler) HandleRigHeartbeat(env *protocol.Envelope, p *protocol.RigHeartbeat) {
	if err := h.registry.Heartbeat(p, time.Now()); err != nil {
		log.Printf("[DISPATCH] heartbeat rig %d: %v", p.NodeID, err)
		return
	}
	if h.db != nil {
		h.db.TouchRig(p.NodeID)
	}
	h.reply(env, protocol.TypeRigHeartbeatAck, protocol.RigHeartbeatAck{
		NodeID:   p.NodeID,
		ServerTS: time.Now().Unix(),
	})
}

func (h *FleetHandler) reply(env *protocol.Envelope, msgType string, payload any) {
	if h.pub == nil {
		return
	}
	reply, err := protocol.NewReply(msgType, h.src(), env.Src, env.ID, payload)
	if err != nil {
		log.Printf("[DISPATCH] build %s reply: %v", msgType, err)
		return
	}
	if err := h.pub.PublishEnvelope(h.controlTopic, reply); err != nil {
		log.Printf("[DISPATCH] publish %s: %v", msgType, err)
	}
}
