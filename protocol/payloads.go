package protocol

// --- Rig -> Coordinator payloads ---

// RigRegister is sent by a rig agent on startup. Addr is the rig's command
// API base ("host:port") that the coordinator calls configure/start/stop on.
type RigRegister struct {
	NodeID   int64  `json:"node_id"`
	Name     string `json:"name"`
	Addr     string `json:"addr"`
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
}

// RigHeartbeat is sent every heartbeat interval. Status is one of the
// Status* constants; SessionID and Activity are empty while idle.
type RigHeartbeat struct {
	NodeID    int64  `json:"node_id"`
	Name      string `json:"name"`
	Addr      string `json:"addr"`
	Status    string `json:"status"`
	Activity  string `json:"activity,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Uptime    int64  `json:"uptime_s"`
}

// --- Coordinator -> Rig payloads ---

// RigRegistered acknowledges a registration.
type RigRegistered struct {
	NodeID  int64  `json:"node_id"`
	Message string `json:"message,omitempty"`
}

// RigHeartbeatAck acknowledges a heartbeat.
type RigHeartbeatAck struct {
	NodeID   int64 `json:"node_id"`
	ServerTS int64 `json:"server_ts"`
}

// --- Coordinator -> Rig command bodies (HTTP request/response) ---

// ConfigureCommand assigns a rig to a session. PlayerIndex is the rig's
// ordinal position among the participants (0-based; 0 is the host).
type ConfigureCommand struct {
	SessionID   string `json:"session_id"`
	Activity    string `json:"activity"`
	Role        string `json:"role"`
	PlayerIndex int    `json:"player_index"`
}

// CommandReply is the uniform reply for configure/start/stop/reset calls.
type CommandReply struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Rejection reasons carried in CommandReply.Reason.
const (
	ReasonNodeBusy      = "node_busy"
	ReasonNotConfigured = "not_configured"
	ReasonUnknownScript = "unknown_script"
)

// NodeSnapshot is the coordinator's public view of one rig, served by the
// operator API.
type NodeSnapshot struct {
	NodeID    int64  `json:"node_id"`
	Name      string `json:"name"`
	Addr      string `json:"addr"`
	Status    string `json:"status"`
	Activity  string `json:"activity,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	LastSeen  int64  `json:"last_seen_unix"`
	Online    bool   `json:"online"`
}
