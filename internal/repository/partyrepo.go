package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/televisit/carelink/internal/model"
)

// PartyRepository looks up the patient and clinician records needed for
// eligibility checks. Account management itself lives outside this core.
type PartyRepository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	GetClinicianByID(ctx context.Context, id uuid.UUID) (*model.Clinician, error)
}
