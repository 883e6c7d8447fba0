package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/televisit/carelink/internal/errs"
	"github.com/televisit/carelink/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func tokenRows(t *model.Token) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "visit_id", "user_id", "role", "nonce", "status", "issued_at", "expires_at",
		"usage_count", "max_usage_count", "issued_to_ip", "issued_to_ua",
		"redeemed_at", "redemption_ip", "redemption_ua", "short_code",
	}).AddRow(
		t.ID, t.VisitID, t.UserID, t.Role, t.Nonce, t.Status, t.IssuedAt, t.ExpiresAt,
		t.UsageCount, t.MaxUsageCount, t.IssuedToIP, t.IssuedToUA,
		t.RedeemedAt, t.RedemptionIP, t.RedemptionUA, t.ShortCode,
	)
}

func sampleToken() *model.Token {
	now := time.Now().Truncate(time.Second)
	return &model.Token{
		ID:            "aabbccddee00112233445566778899aabbccddee00112233445566778899aabb",
		VisitID:       uuid.Must(uuid.NewV4()),
		UserID:        uuid.Must(uuid.NewV4()),
		Role:          model.RolePatient,
		Nonce:         "deadbeefdeadbeefdeadbeefdeadbeef",
		Status:        model.TokenActive,
		IssuedAt:      now,
		ExpiresAt:     now.Add(20 * time.Minute),
		MaxUsageCount: 1,
		IssuedToIP:    "203.0.113.7",
		IssuedToUA:    "test-agent",
		ShortCode:     "aabbccddee",
	}
}

func TestTokenRepo_Insert_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	tok := sampleToken()
	mock.ExpectExec(`INSERT INTO join_tokens`).
		WithArgs(tok.ID, tok.VisitID, tok.UserID, tok.Role, tok.Nonce, tok.Status,
			tok.IssuedAt, tok.ExpiresAt, tok.UsageCount, tok.MaxUsageCount,
			tok.IssuedToIP, tok.IssuedToUA, tok.ShortCode).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, r.Insert(context.Background(), tok))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepo_Insert_ShortCodeCollision(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	tok := sampleToken()
	mock.ExpectExec(`INSERT INTO join_tokens`).
		WithArgs(tok.ID, tok.VisitID, tok.UserID, tok.Role, tok.Nonce, tok.Status,
			tok.IssuedAt, tok.ExpiresAt, tok.UsageCount, tok.MaxUsageCount,
			tok.IssuedToIP, tok.IssuedToUA, tok.ShortCode).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := r.Insert(context.Background(), tok)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestTokenRepo_GetByID_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	tok := sampleToken()
	mock.ExpectQuery(`FROM join_tokens WHERE id=\$1`).
		WithArgs(tok.ID).
		WillReturnRows(tokenRows(tok))

	got, err := r.GetByID(context.Background(), tok.ID)
	require.NoError(t, err)
	require.Equal(t, tok.VisitID, got.VisitID)
	require.Equal(t, model.TokenActive, got.Status)
	require.Equal(t, 0, got.UsageCount)
}

func TestTokenRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	mock.ExpectQuery(`FROM join_tokens WHERE id=\$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestTokenRepo_GetByShortCode(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	tok := sampleToken()
	mock.ExpectQuery(`FROM join_tokens WHERE short_code=\$1`).
		WithArgs(tok.ShortCode).
		WillReturnRows(tokenRows(tok))

	got, err := r.GetByShortCode(context.Background(), tok.ShortCode)
	require.NoError(t, err)
	require.Equal(t, tok.ID, got.ID)
}

func TestTokenRepo_Redeem_Matches(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	at := time.Now()
	mock.ExpectExec(`WHERE id=\$1 AND status='ACTIVE' AND usage_count=0 AND expires_at > \$2`).
		WithArgs("tok-1", at, "198.51.100.9", "agent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := r.Redeem(context.Background(), "tok-1", "198.51.100.9", "agent", at)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTokenRepo_Redeem_NoMatch(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	at := time.Now()
	mock.ExpectExec(`UPDATE join_tokens`).
		WithArgs("tok-1", at, "198.51.100.9", "agent").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := r.Redeem(context.Background(), "tok-1", "198.51.100.9", "agent", at)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTokenRepo_MarkExpired(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	mock.ExpectExec(`UPDATE join_tokens SET status='EXPIRED' WHERE id=\$1 AND status='ACTIVE'`).
		WithArgs("tok-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, r.MarkExpired(context.Background(), "tok-1"))
}

func TestTokenRepo_RevokeByVisit_Counts(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	visitID := uuid.Must(uuid.NewV4())
	mock.ExpectExec(`UPDATE join_tokens SET status='REVOKED'`).
		WithArgs(visitID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := r.RevokeByVisit(context.Background(), visitID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	// Second pass finds no eligible rows.
	mock.ExpectExec(`UPDATE join_tokens SET status='REVOKED'`).
		WithArgs(visitID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	n, err = r.RevokeByVisit(context.Background(), visitID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestTokenRepo_ExpireDue(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewTokenRepo(db)

	now := time.Now()
	mock.ExpectExec(`UPDATE join_tokens SET status='EXPIRED' WHERE status='ACTIVE' AND expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := r.ExpireDue(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
