package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/televisit/carelink/internal/errs"
	"github.com/televisit/carelink/internal/model"
	"github.com/televisit/carelink/internal/repository"
)

// VisitRepo implements VisitRepository using PostgreSQL.
type VisitRepo struct{ db *DB }

// NewVisitRepo constructs a visit repository.
func NewVisitRepo(db *DB) *VisitRepo { return &VisitRepo{db: db} }

const visitColumns = `id, patient_id, clinician_id, scheduled_at, duration_min, status,
started_at, ended_at, actual_duration_min, patient_joined_at, clinician_joined_at,
device_info, connect_session_id, notification_channel, notes, created_at, updated_at`

func scanVisit(row pgx.Row) (*model.Visit, error) {
	var v model.Visit
	err := row.Scan(
		&v.ID, &v.PatientID, &v.ClinicianID, &v.ScheduledAt, &v.DurationMin, &v.Status,
		&v.StartedAt, &v.EndedAt, &v.ActualDurationMin, &v.PatientJoinedAt, &v.ClinicianJoinedAt,
		&v.DeviceInfo, &v.ConnectSessionID, &v.NotificationChannel, &v.Notes, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &v, nil
}

// Insert persists a new SCHEDULED visit.
func (r *VisitRepo) Insert(ctx context.Context, v *model.Visit) error {
	const q = `
INSERT INTO visits (id, patient_id, clinician_id, scheduled_at, duration_min, status,
                    device_info, notification_channel, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`
	_, err := r.db.Pool.Exec(ctx, q,
		v.ID, v.PatientID, v.ClinicianID, v.ScheduledAt, v.DurationMin, v.Status,
		v.DeviceInfo, v.NotificationChannel,
	)
	return err
}

// GetByID selects a visit by id.
func (r *VisitRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Visit, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+visitColumns+` FROM visits WHERE id=$1`, id)
	return scanVisit(row)
}

// HasClinicianVisitAt is the double-booking guard; exact-instant match only.
func (r *VisitRepo) HasClinicianVisitAt(ctx context.Context, clinicianID uuid.UUID, at time.Time) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM visits
  WHERE clinician_id=$1 AND scheduled_at=$2 AND status IN ('SCHEDULED','ACTIVE')
)`
	var exists bool
	if err := r.db.Pool.QueryRow(ctx, q, clinicianID, at).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Start conditionally moves SCHEDULED to ACTIVE; the joining role's joined-at
// column is chosen in SQL so one statement covers both sides.
func (r *VisitRepo) Start(ctx context.Context, id uuid.UUID, upd repository.StartUpdate) (bool, error) {
	const q = `
UPDATE visits
SET status='ACTIVE', started_at=$2, connect_session_id=$3, device_info=$4,
    patient_joined_at   = CASE WHEN $5='patient'   THEN $2 ELSE patient_joined_at END,
    clinician_joined_at = CASE WHEN $5='clinician' THEN $2 ELSE clinician_joined_at END,
    updated_at=now()
WHERE id=$1 AND status='SCHEDULED'`
	tag, err := r.db.Pool.Exec(ctx, q, id, upd.StartedAt, upd.SessionID, upd.DeviceInfo, string(upd.Role))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// End conditionally moves the visit to a terminal status.
func (r *VisitRepo) End(ctx context.Context, id uuid.UUID, from model.VisitStatus, upd repository.EndUpdate) (bool, error) {
	const q = `
UPDATE visits
SET status=$2, ended_at=$3, actual_duration_min=$4,
    notes=COALESCE($5, notes), updated_at=now()
WHERE id=$1 AND status=$6`
	tag, err := r.db.Pool.Exec(ctx, q, id, upd.Status, upd.EndedAt, upd.ActualDurationMin, upd.Notes, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListByParticipant returns visits where the user is either party.
func (r *VisitRepo) ListByParticipant(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Visit, error) {
	q := `
SELECT ` + visitColumns + `
FROM visits
WHERE patient_id=$1 OR clinician_id=$1
ORDER BY scheduled_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}
