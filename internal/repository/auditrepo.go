package repository

import (
	"context"

	"github.com/televisit/carelink/internal/model"
)

// AuditRepository appends immutable audit events. Entries carry a multi-year
// retention horizon and are never updated or deleted.
type AuditRepository interface {
	Insert(ctx context.Context, ev *model.AuditEvent) error
}
