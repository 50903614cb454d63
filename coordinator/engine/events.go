package engine

const (
	EventRigRegistered EventType = iota + 1
	EventRigHeartbeat
	EventRigStatusChanged
	EventSessionStarting
	EventSessionStarted
	EventSessionDegraded
	EventSessionFailed
	EventSessionStopped
	EventMessagingConnected
	EventMessagingDisconnected
)

// --- Event payloads ---

type RigRegisteredEvent struct {
	NodeID int64
	Name   string
	Addr   string
}

type RigHeartbeatEvent struct {
	NodeID   int64
	Name     string
	Status   string
	Activity string
}

type RigStatusChangedEvent struct {
	NodeID    int64
	Name      string
	OldStatus string
	NewStatus string
}

type SessionEvent struct {
	SessionID string
	Activity  string
	HostID    int64
	NodeIDs   []int64
	Detail    string
}

type ConnectionEvent struct {
	Detail string
}
