package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/televisit/carelink/internal/errs"
	"github.com/televisit/carelink/internal/model"
)

// PartyRepo implements PartyRepository using PostgreSQL.
type PartyRepo struct{ db *DB }

// NewPartyRepo constructs a party repository.
func NewPartyRepo(db *DB) *PartyRepo { return &PartyRepo{db: db} }

// GetPatientByID selects a patient by id.
func (r *PartyRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	const q = `SELECT id, name, COALESCE(state, '') FROM patients WHERE id=$1`
	var p model.Patient
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.Name, &p.State); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetClinicianByID selects a clinician with the licensed-jurisdiction set.
func (r *PartyRepo) GetClinicianByID(ctx context.Context, id uuid.UUID) (*model.Clinician, error) {
	const q = `SELECT id, name, licensed_states FROM clinicians WHERE id=$1`
	var c model.Clinician
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&c.ID, &c.Name, &c.LicensedStates); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
