package protocol

import "time"

// Default TTLs by message category. Heartbeats are only useful fresh; a
// registration is worth replaying for a short window after a broker hiccup.
var defaultTTLs = map[string]time.Duration{
	TypeRigHeartbeat:    45 * time.Second,
	TypeRigHeartbeatAck: 45 * time.Second,

	TypeRigRegister:   2 * time.Minute,
	TypeRigRegistered: 2 * time.Minute,
}

// FallbackTTL is used when no specific TTL is configured.
const FallbackTTL = 5 * time.Minute

// DefaultTTLFor returns the default TTL for a message type.
func DefaultTTLFor(msgType string) time.Duration {
	if ttl, ok := defaultTTLs[msgType]; ok {
		return ttl
	}
	return FallbackTTL
}

// IsExpired returns true if the envelope has passed its expiry time.
func IsExpired(env *Envelope) bool {
	if env.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(env.ExpiresAt)
}

// IsExpiredHeader checks expiry using only the raw header.
func IsExpiredHeader(hdr *RawHeader) bool {
	if hdr.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(hdr.ExpiresAt)
}
