package postgres

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/televisit/carelink/internal/errs"
)

func TestPartyRepo_GetPatientByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPartyRepo(db)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`FROM patients WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "state"}).
			AddRow(id, "Ada Park", "WA"))

	p, err := r.GetPatientByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "WA", p.State)
}

func TestPartyRepo_GetClinicianByID(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPartyRepo(db)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`FROM clinicians WHERE id=\$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "licensed_states"}).
			AddRow(id, "Dr. Rivera", []string{"WA", "OR"}))

	c, err := r.GetClinicianByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, c.LicensedIn("OR"))
	require.False(t, c.LicensedIn("CA"))
}

func TestPartyRepo_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPartyRepo(db)

	id := uuid.Must(uuid.NewV4())
	mock.ExpectQuery(`FROM patients WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := r.GetPatientByID(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
