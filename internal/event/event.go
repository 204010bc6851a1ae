package event

import "time"

type Type string

const (
	TypeSessionCreated       Type = "session.created"
	TypeSessionRotated       Type = "session.rotated"
	TypeSessionRevoked       Type = "session.revoked"
	TypeSessionReuseDetected Type = "session.reuse_detected"
	TypeSessionsRevokedAll   Type = "sessions.revoked_all"
	TypeLoginFailed          Type = "login.failed"
	TypeRefreshRejected      Type = "refresh.rejected"
)

// Event is a security event raised by the session lifecycle. It must never
// carry token values.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	IdentityID string    `json:"identity_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
