// Package repository declares persistence interfaces implemented by postgres.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/televisit/carelink/internal/model"
)

// TokenRepository stores one-time join tokens. Rows are retained permanently
// for audit; no method deletes.
type TokenRepository interface {
	// Insert persists a freshly issued token. Returns errs.ErrAlreadyExists
	// on a short code collision so the issuer can regenerate.
	Insert(ctx context.Context, t *model.Token) error

	// GetByID returns a token by its full id.
	GetByID(ctx context.Context, id string) (*model.Token, error)

	// GetByShortCode returns a token by its short alias.
	GetByShortCode(ctx context.Context, code string) (*model.Token, error)

	// Redeem atomically flips ACTIVE & usage_count=0 & unexpired-at-`at` to
	// REDEEMED & usage_count=1, recording redemption ip/ua/time. Returns false
	// when no row matched, i.e. the token was already consumed, revoked,
	// expired (including overdue rows the sweep has not flipped), or absent.
	Redeem(ctx context.Context, id, ip, ua string, at time.Time) (bool, error)

	// MarkExpired flips a still-ACTIVE token to EXPIRED. A no-match is not an
	// error: some other path got there first.
	MarkExpired(ctx context.Context, id string) error

	// RevokeByVisit bulk-transitions every ACTIVE or EXPIRED token of the visit
	// to REVOKED and returns how many rows changed. Idempotent.
	RevokeByVisit(ctx context.Context, visitID uuid.UUID) (int64, error)

	// ExpireDue flips every ACTIVE token whose expiry has passed to EXPIRED
	// and returns how many rows changed. Driven by the expiry worker.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}
