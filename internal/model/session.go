package model

import "time"

// Session is one logical login. TokenValue is the refresh token value that
// currently represents it; stores only ever persist its digest.
type Session struct {
	SessionID  string    `json:"session_id"`
	TokenValue string    `json:"-"`
	IdentityID string    `json:"identity_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	RotatedAt  time.Time `json:"rotated_at,omitempty"`

	// PreviousDigest is the digest of the value the last rotation replaced.
	PreviousDigest string `json:"previous_digest,omitempty"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthResult is what login, registration and refresh hand back to the transport.
type AuthResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
	User             AuthUser
}

// TokenPair is the JSON body delivered to API clients.
type TokenPair struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         AuthUser `json:"user"`
}

// SessionView is the JSON body delivered to cookie clients; it never carries token values.
type SessionView struct {
	User      AuthUser  `json:"user"`
	ExpiresAt time.Time `json:"access_expires_at"`
}

type AuthStatus struct {
	Authenticated bool      `json:"authenticated"`
	User          *AuthUser `json:"user,omitempty"`
}

// AuthEvent is a persisted security event. It never carries token values.
type AuthEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	IdentityID string    `json:"identity_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
