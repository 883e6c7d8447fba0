package connect

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/gofrs/uuid/v5"
)

// NoopProvider fabricates session credentials without any media backend.
// Dev and test use only; every allocated session is accepted and forgotten.
type NoopProvider struct{}

// StartSession returns fresh fake credentials.
func (NoopProvider) StartSession(_ context.Context, attrs SessionAttributes) (*Session, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("connect: session id: %w", err)
	}
	return &Session{
		SessionID:        "noop-" + hex.EncodeToString(id.Bytes()[:8]),
		ParticipantID:    attrs.Role,
		ParticipantToken: "noop-token",
	}, nil
}

// StopSession accepts any session id.
func (NoopProvider) StopSession(context.Context, string) error { return nil }
