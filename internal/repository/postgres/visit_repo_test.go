package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/televisit/carelink/internal/errs"
	"github.com/televisit/carelink/internal/model"
	"github.com/televisit/carelink/internal/repository"
)

func visitRows(v *model.Visit) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "patient_id", "clinician_id", "scheduled_at", "duration_min", "status",
		"started_at", "ended_at", "actual_duration_min", "patient_joined_at", "clinician_joined_at",
		"device_info", "connect_session_id", "notification_channel", "notes", "created_at", "updated_at",
	}).AddRow(
		v.ID, v.PatientID, v.ClinicianID, v.ScheduledAt, v.DurationMin, v.Status,
		v.StartedAt, v.EndedAt, v.ActualDurationMin, v.PatientJoinedAt, v.ClinicianJoinedAt,
		v.DeviceInfo, v.ConnectSessionID, v.NotificationChannel, v.Notes, v.CreatedAt, v.UpdatedAt,
	)
}

func sampleVisit() *model.Visit {
	now := time.Now().Truncate(time.Second)
	return &model.Visit{
		ID:                  uuid.Must(uuid.NewV4()),
		PatientID:           uuid.Must(uuid.NewV4()),
		ClinicianID:         uuid.Must(uuid.NewV4()),
		ScheduledAt:         now.Add(time.Hour),
		DurationMin:         30,
		Status:              model.VisitScheduled,
		NotificationChannel: "sms",
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestVisitRepo_Insert(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)

	v := sampleVisit()
	mock.ExpectExec(`INSERT INTO visits`).
		WithArgs(v.ID, v.PatientID, v.ClinicianID, v.ScheduledAt, v.DurationMin, v.Status,
			v.DeviceInfo, v.NotificationChannel).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Insert(context.Background(), v))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitRepo_GetByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)

	v := sampleVisit()
	mock.ExpectQuery(`FROM visits WHERE id=\$1`).
		WithArgs(v.ID).
		WillReturnRows(visitRows(v))

	got, err := r.GetByID(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, v.ID, got.ID)
	require.Equal(t, model.VisitScheduled, got.Status)
}

func TestVisitRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`FROM visits WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.GetByID(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestVisitRepo_HasClinicianVisitAt(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)

	clinicianID := uuid.Must(uuid.NewV4())
	at := time.Now().Add(time.Hour)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(clinicianID, at).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	busy, err := r.HasClinicianVisitAt(context.Background(), clinicianID, at)
	require.NoError(t, err)
	require.True(t, busy)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(clinicianID, at).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	busy, err = r.HasClinicianVisitAt(context.Background(), clinicianID, at)
	require.NoError(t, err)
	require.False(t, busy)
}

func TestVisitRepo_Start_Matches(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)

	id := uuid.Must(uuid.NewV4())
	upd := repository.StartUpdate{
		SessionID:  "sess-1",
		Role:       model.RolePatient,
		DeviceInfo: []byte(`{"os":"ios"}`),
		StartedAt:  time.Now(),
	}
	mock.ExpectExec(`UPDATE visits`).
		WithArgs(id, upd.StartedAt, upd.SessionID, upd.DeviceInfo, "patient").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := r.Start(context.Background(), id, upd)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVisitRepo_Start_AlreadyActive(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)

	id := uuid.Must(uuid.NewV4())
	upd := repository.StartUpdate{SessionID: "sess-1", Role: model.RoleClinician, StartedAt: time.Now()}
	mock.ExpectExec(`UPDATE visits`).
		WithArgs(id, upd.StartedAt, upd.SessionID, upd.DeviceInfo, "clinician").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := r.Start(context.Background(), id, upd)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVisitRepo_End_Matches(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)

	id := uuid.Must(uuid.NewV4())
	ended := time.Now()
	notes := "follow up in two weeks"
	upd := repository.EndUpdate{
		Status:            model.VisitCompleted,
		EndedAt:           ended,
		ActualDurationMin: 28,
		Notes:             &notes,
	}
	mock.ExpectExec(`UPDATE visits`).
		WithArgs(id, upd.Status, ended, 28, &notes, model.VisitActive).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := r.End(context.Background(), id, model.VisitActive, upd)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVisitRepo_End_Raced(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)

	id := uuid.Must(uuid.NewV4())
	upd := repository.EndUpdate{Status: model.VisitCancelled, EndedAt: time.Now()}
	mock.ExpectExec(`UPDATE visits`).
		WithArgs(id, upd.Status, upd.EndedAt, 0, (*string)(nil), model.VisitScheduled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := r.End(context.Background(), id, model.VisitScheduled, upd)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVisitRepo_ListByParticipant(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewVisitRepo(db)

	v := sampleVisit()
	mock.ExpectQuery(`FROM visits`).
		WithArgs(v.PatientID, 20, 0).
		WillReturnRows(visitRows(v))

	got, err := r.ListByParticipant(context.Background(), v.PatientID, 20, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, v.ID, got[0].ID)
}
