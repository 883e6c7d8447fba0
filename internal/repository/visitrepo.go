package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/televisit/carelink/internal/model"
)

// StartUpdate carries the fields written when a visit goes ACTIVE.
type StartUpdate struct {
	SessionID  string
	Role       model.Role
	DeviceInfo []byte
	StartedAt  time.Time
}

// EndUpdate carries the fields written when a visit reaches a terminal status.
type EndUpdate struct {
	Status            model.VisitStatus
	EndedAt           time.Time
	ActualDurationMin int
	Notes             *string
}

// VisitRepository stores visits. Rows are never deleted.
type VisitRepository interface {
	// Insert persists a new SCHEDULED visit.
	Insert(ctx context.Context, v *model.Visit) error

	// GetByID returns a visit by id.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Visit, error)

	// HasClinicianVisitAt reports whether the clinician already holds a
	// SCHEDULED or ACTIVE visit at exactly the given instant.
	HasClinicianVisitAt(ctx context.Context, clinicianID uuid.UUID, at time.Time) (bool, error)

	// Start conditionally transitions SCHEDULED to ACTIVE, recording start
	// time, the joining role's joined-at, device info and the provider session
	// id. Returns false when the visit was no longer SCHEDULED.
	Start(ctx context.Context, id uuid.UUID, upd StartUpdate) (bool, error)

	// End conditionally transitions from the given current status to the
	// terminal status in upd. Returns false when the visit moved meanwhile.
	End(ctx context.Context, id uuid.UUID, from model.VisitStatus, upd EndUpdate) (bool, error)

	// ListByParticipant returns visits where the user is the patient or the
	// clinician, most recent first.
	ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Visit, error)
}
