package protocol

// NoOpHandler implements MessageHandler with no-op methods.
// Embed this and override only the methods you need.
type NoOpHandler struct{}

func (NoOpHandler) HandleRigRegister(*Envelope, *RigRegister)         {}
func (NoOpHandler) HandleRigHeartbeat(*Envelope, *RigHeartbeat)       {}
func (NoOpHandler) HandleRigRegistered(*Envelope, *RigRegistered)     {}
func (NoOpHandler) HandleRigHeartbeatAck(*Envelope, *RigHeartbeatAck) {}

// Compile-time check that NoOpHandler implements MessageHandler.
var _ MessageHandler = NoOpHandler{}
