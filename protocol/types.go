package protocol

// Message type constants for the fleet bus.
const (
	// Rig -> Coordinator (published on the fleet topic)
	TypeRigRegister  = "rig.register"
	TypeRigHeartbeat = "rig.heartbeat"

	// Coordinator -> Rig (published on the control topic)
	TypeRigRegistered   = "rig.registered"
	TypeRigHeartbeatAck = "rig.heartbeat_ack"
)

// Roles for Address.Role.
const (
	RoleRig         = "rig"
	RoleCoordinator = "coordinator"
)

// NodeBroadcast addresses every rig on the control topic.
const NodeBroadcast = "*"

// Node lifecycle statuses reported in heartbeats.
const (
	StatusIdle        = "idle"
	StatusConfiguring = "configuring"
	StatusConfigured  = "configured"
	StatusRunning     = "running"
	StatusStopping    = "stopping"
)

// Session participant roles. The host is always the participant with the
// lowest node id.
const (
	SessionRoleHost   = "host"
	SessionRoleClient = "client"
)

// Protocol version.
const Version = 1
