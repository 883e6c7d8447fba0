package postgres

import (
	"context"

	"github.com/televisit/carelink/internal/model"
)

// AuditRepo implements AuditRepository using PostgreSQL. The audit_log table
// is append-only; nothing in this package updates or deletes from it.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Insert appends one audit event.
func (r *AuditRepo) Insert(ctx context.Context, ev *model.AuditEvent) error {
	const q = `
INSERT INTO audit_log (event_type, actor_id, actor_role, visit_id, token_id,
                       ip, ua, success, error_code, metadata, retention_until, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())`
	_, err := r.db.Pool.Exec(ctx, q,
		ev.EventType, ev.ActorID, ev.ActorRole, ev.VisitID, ev.TokenID,
		ev.IP, ev.UA, ev.Success, ev.ErrorCode, ev.Metadata, ev.RetentionUntil,
	)
	return err
}
