// Package connect defines the contract with the real-time session provider.
//
// The media transport itself is an external collaborator; this package only
// names the attributes the core is allowed to hand it (no patient or clinician
// PHI) and the credentials it returns.
package connect

import (
	"context"
	"time"
)

// SessionAttributes is the non-identifying attribute set passed to the
// provider when allocating a call session.
type SessionAttributes struct {
	VisitID     string
	Role        string
	ScheduledAt time.Time
	DurationMin int
}

// Session holds the connection credentials returned by the provider.
type Session struct {
	SessionID        string
	ParticipantID    string
	ParticipantToken string
}

// Provider allocates and tears down real-time call sessions.
type Provider interface {
	StartSession(ctx context.Context, attrs SessionAttributes) (*Session, error)
	StopSession(ctx context.Context, sessionID string) error
}
