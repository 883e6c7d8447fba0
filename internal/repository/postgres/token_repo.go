package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/televisit/carelink/internal/errs"
	"github.com/televisit/carelink/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

const tokenColumns = `id, visit_id, user_id, role, nonce, status, issued_at, expires_at,
usage_count, max_usage_count, issued_to_ip, issued_to_ua,
redeemed_at, redemption_ip, redemption_ua, short_code`

func scanToken(row pgx.Row) (*model.Token, error) {
	var t model.Token
	err := row.Scan(
		&t.ID, &t.VisitID, &t.UserID, &t.Role, &t.Nonce, &t.Status, &t.IssuedAt, &t.ExpiresAt,
		&t.UsageCount, &t.MaxUsageCount, &t.IssuedToIP, &t.IssuedToUA,
		&t.RedeemedAt, &t.RedemptionIP, &t.RedemptionUA, &t.ShortCode,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Insert persists a freshly issued token row.
func (r *TokenRepo) Insert(ctx context.Context, t *model.Token) error {
	const q = `
INSERT INTO join_tokens (id, visit_id, user_id, role, nonce, status, issued_at, expires_at,
                         usage_count, max_usage_count, issued_to_ip, issued_to_ua, short_code)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Pool.Exec(ctx, q,
		t.ID, t.VisitID, t.UserID, t.Role, t.Nonce, t.Status, t.IssuedAt, t.ExpiresAt,
		t.UsageCount, t.MaxUsageCount, t.IssuedToIP, t.IssuedToUA, t.ShortCode,
	)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a token by its full id.
func (r *TokenRepo) GetByID(ctx context.Context, id string) (*model.Token, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM join_tokens WHERE id=$1`, id)
	return scanToken(row)
}

// GetByShortCode selects a token by its short alias.
func (r *TokenRepo) GetByShortCode(ctx context.Context, code string) (*model.Token, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM join_tokens WHERE short_code=$1`, code)
	return scanToken(row)
}

// Redeem performs the single conditional update that enforces single use.
// Two concurrent calls for the same id see exactly one row match between them.
// An overdue token never matches, even when the expiry sweep has not flipped
// it yet.
func (r *TokenRepo) Redeem(ctx context.Context, id, ip, ua string, at time.Time) (bool, error) {
	const q = `
UPDATE join_tokens
SET status='REDEEMED', usage_count=usage_count+1,
    redeemed_at=$2, redemption_ip=$3, redemption_ua=$4
WHERE id=$1 AND status='ACTIVE' AND usage_count=0 AND expires_at > $2`
	tag, err := r.db.Pool.Exec(ctx, q, id, at, ip, ua)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkExpired flips a still-ACTIVE token to EXPIRED.
func (r *TokenRepo) MarkExpired(ctx context.Context, id string) error {
	const q = `UPDATE join_tokens SET status='EXPIRED' WHERE id=$1 AND status='ACTIVE'`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return err
}

// RevokeByVisit bulk-revokes every still-revocable token of the visit.
func (r *TokenRepo) RevokeByVisit(ctx context.Context, visitID uuid.UUID) (int64, error) {
	const q = `
UPDATE join_tokens SET status='REVOKED'
WHERE visit_id=$1 AND status IN ('ACTIVE','EXPIRED')`
	tag, err := r.db.Pool.Exec(ctx, q, visitID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExpireDue flips every overdue ACTIVE token to EXPIRED.
func (r *TokenRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE join_tokens SET status='EXPIRED' WHERE status='ACTIVE' AND expires_at < $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
