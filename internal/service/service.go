// Package service contains the application services for join tokens and visits.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/televisit/carelink/internal/model"
	"github.com/televisit/carelink/internal/repository"
)

// Audit event types recorded by the services.
const (
	EventTokenIssued       = "TOKEN_ISSUED"
	EventTokenRedeemed     = "TOKEN_REDEEMED"
	EventTokenReuseAttempt = "TOKEN_REUSE_ATTEMPT"
	EventTokenExpired      = "TOKEN_EXPIRED"
	EventTokenReissued     = "TOKEN_REISSUED"
	EventTokensRevoked     = "TOKENS_REVOKED"
	EventVisitScheduled    = "VISIT_SCHEDULED"
	EventVisitStarted      = "VISIT_STARTED"
	EventVisitEnded        = "VISIT_ENDED"
)

// Action tells the caller how to present an expected token failure without
// inspecting error strings.
type Action string

const (
	ActionRequestNewLink Action = "REQUEST_NEW_LINK"
	ActionContactSupport Action = "CONTACT_SUPPORT"
)

// Stable machine-readable codes for expected token failures.
const (
	CodeTokenInvalid  = "TOKEN_INVALID"
	CodeTokenExpired  = "TOKEN_EXPIRED"
	CodeTokenNotFound = "TOKEN_NOT_FOUND"
	CodeTokenUsed     = "TOKEN_ALREADY_USED"
	CodeTokenRevoked  = "TOKEN_REVOKED"
)

// Audit entries outlive the clinical record cycle.
const auditRetentionYears = 7

// recordAudit appends an audit event best-effort: the business operation never
// fails because the audit write did.
func recordAudit(ctx context.Context, repo repository.AuditRepository, log *zap.Logger, now time.Time, ev *model.AuditEvent) {
	ev.RetentionUntil = now.AddDate(auditRetentionYears, 0, 0)
	if err := repo.Insert(ctx, ev); err != nil {
		log.Warn("audit insert failed",
			zap.String("event_type", ev.EventType),
			zap.Error(err),
		)
	}
}
