package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/televisit/carelink/internal/connect"
	"github.com/televisit/carelink/internal/errs"
	"github.com/televisit/carelink/internal/model"
	"github.com/televisit/carelink/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// TokenOps is the slice of the token service the visit state machine drives.
type TokenOps interface {
	Issue(ctx context.Context, p IssueParams) (*IssuedToken, error)
	Redeem(ctx context.Context, p RedeemParams) (RedeemResult, error)
	RevokeForVisit(ctx context.Context, visitID uuid.UUID) error
	GetToken(ctx context.Context, id string) (*model.Token, error)
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	PatientID           uuid.UUID
	ClinicianID         uuid.UUID
	ScheduledAt         time.Time
	DurationMin         int
	NotificationChannel string
}

// StartParams are the inputs to Start.
type StartParams struct {
	VisitID    uuid.UUID
	TokenID    string
	DeviceInfo []byte
	IP         string
	UA         string
}

// StartResult carries everything the joining client needs.
type StartResult struct {
	Visit   *model.Visit
	Session *connect.Session
	// SessionToken lets the client re-authenticate mid-call without the
	// original one-time link. Nil when follow-up issuance failed; the call
	// itself is already running at that point.
	SessionToken *IssuedToken
}

// EndParams are the inputs to End.
type EndParams struct {
	VisitID uuid.UUID
	UserID  uuid.UUID
	Reason  model.EndReason
	Notes   *string
}

// Caller identifies who is asking in Get/List access checks.
type Caller struct {
	UserID uuid.UUID
	Role   model.Role
}

// VisitService governs the SCHEDULED -> ACTIVE -> terminal visit lifecycle and
// orchestrates the token service and the session provider around it.
//
// No operation here retries a failed store or provider call; retries, if any,
// belong to the caller.
type VisitService struct {
	visits   repository.VisitRepository
	parties  repository.PartyRepository
	audits   repository.AuditRepository
	tokens   TokenOps
	provider connect.Provider
	log      *zap.Logger

	sessionTTL time.Duration // follow-up session token lifetime

	now func() time.Time
}

// NewVisitService constructs VisitService with required dependencies.
func NewVisitService(
	visits repository.VisitRepository,
	parties repository.PartyRepository,
	audits repository.AuditRepository,
	tokens TokenOps,
	provider connect.Provider,
	log *zap.Logger,
	sessionTTL time.Duration,
) *VisitService {
	if sessionTTL == 0 {
		sessionTTL = 60 * time.Minute
	}
	return &VisitService{
		visits:     visits,
		parties:    parties,
		audits:     audits,
		tokens:     tokens,
		provider:   provider,
		log:        log,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// Create schedules a visit after jurisdiction and double-booking checks.
//
// The booking guard is read-then-insert, not transactional: two simultaneous
// creations for the same clinician/instant can both pass the check. Accepted
// for low-contention scheduling.
func (s *VisitService) Create(ctx context.Context, p CreateParams) (*model.Visit, error) {
	if p.PatientID == uuid.Nil || p.ClinicianID == uuid.Nil {
		return nil, fmt.Errorf("create visit: patient and clinician required: %w", errs.ErrValidation)
	}
	if p.ScheduledAt.IsZero() || p.DurationMin <= 0 {
		return nil, fmt.Errorf("create visit: schedule and duration required: %w", errs.ErrValidation)
	}

	patient, err := s.parties.GetPatientByID(ctx, p.PatientID)
	if err != nil {
		return nil, fmt.Errorf("create visit: load patient: %w", err)
	}
	if patient.State == "" {
		return nil, fmt.Errorf("create visit: patient jurisdiction unknown: %w", errs.ErrValidation)
	}

	clinician, err := s.parties.GetClinicianByID(ctx, p.ClinicianID)
	if err != nil {
		return nil, fmt.Errorf("create visit: load clinician: %w", err)
	}
	if !clinician.LicensedIn(patient.State) {
		return nil, fmt.Errorf("create visit: clinician not licensed in %s: %w", patient.State, errs.ErrForbidden)
	}

	booked, err := s.visits.HasClinicianVisitAt(ctx, p.ClinicianID, p.ScheduledAt)
	if err != nil {
		return nil, fmt.Errorf("create visit: booking check: %w", err)
	}
	if booked {
		return nil, fmt.Errorf("create visit: clinician already booked at %s: %w", p.ScheduledAt, errs.ErrConflict)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now()
	v := &model.Visit{
		ID:                  id,
		PatientID:           p.PatientID,
		ClinicianID:         p.ClinicianID,
		ScheduledAt:         p.ScheduledAt,
		DurationMin:         p.DurationMin,
		Status:              model.VisitScheduled,
		NotificationChannel: p.NotificationChannel,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.visits.Insert(ctx, v); err != nil {
		return nil, fmt.Errorf("create visit: insert: %w", err)
	}

	recordAudit(ctx, s.audits, s.log, now, &model.AuditEvent{
		EventType: EventVisitScheduled,
		ActorID:   p.ClinicianID.String(),
		ActorRole: string(model.RoleClinician),
		VisitID:   &v.ID,
		Success:   true,
	})
	return v, nil
}

// Start admits a joiner: burns their one-time token, allocates the call
// session, and moves the visit to ACTIVE.
//
// The token is consumed before the provider call; if the provider then fails,
// a replacement token for the same visit/role is issued so the user is not
// stranded with a dead link.
func (s *VisitService) Start(ctx context.Context, p StartParams) (*StartResult, error) {
	tok, err := s.tokens.GetToken(ctx, p.TokenID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("start visit: unknown token: %w", errs.ErrUnauthorized)
		}
		return nil, fmt.Errorf("start visit: load token: %w", err)
	}
	if tok.VisitID != p.VisitID {
		return nil, fmt.Errorf("start visit: token not issued for this visit: %w", errs.ErrUnauthorized)
	}

	res, err := s.tokens.Redeem(ctx, RedeemParams{TokenID: p.TokenID, IP: p.IP, UA: p.UA})
	if err != nil {
		return nil, fmt.Errorf("start visit: %w", err)
	}
	if !res.Success {
		return nil, fmt.Errorf("start visit: %s: %w", res.Error, errs.ErrUnauthorized)
	}

	visit, err := s.visits.GetByID(ctx, p.VisitID)
	if err != nil {
		return nil, fmt.Errorf("start visit: load visit: %w", err)
	}
	if visit.Status != model.VisitScheduled {
		return nil, fmt.Errorf("start visit: visit is %s: %w", visit.Status, errs.ErrInvalidState)
	}

	// Provider-facing attributes carry no patient/clinician PHI.
	session, err := s.provider.StartSession(ctx, connect.SessionAttributes{
		VisitID:     visit.ID.String(),
		Role:        string(tok.Role),
		ScheduledAt: visit.ScheduledAt,
		DurationMin: visit.DurationMin,
	})
	if err != nil {
		s.reissueAfterProviderFailure(ctx, tok, p)
		return nil, fmt.Errorf("start visit: start session: %v: %w", err, errs.ErrUpstream)
	}

	now := s.now()
	started, err := s.visits.Start(ctx, visit.ID, repository.StartUpdate{
		SessionID:  session.SessionID,
		Role:       tok.Role,
		DeviceInfo: p.DeviceInfo,
		StartedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("start visit: activate: %w", err)
	}
	if !started {
		// Lost a race to another transition; give the session back.
		if stopErr := s.provider.StopSession(ctx, session.SessionID); stopErr != nil {
			s.log.Warn("stop session after lost race failed", zap.Error(stopErr))
		}
		return nil, fmt.Errorf("start visit: visit no longer SCHEDULED: %w", errs.ErrInvalidState)
	}

	visit.Status = model.VisitActive
	visit.StartedAt = &now
	visit.ConnectSessionID = &session.SessionID
	visit.DeviceInfo = p.DeviceInfo
	if tok.Role == model.RolePatient {
		visit.PatientJoinedAt = &now
	} else {
		visit.ClinicianJoinedAt = &now
	}

	sessionToken, err := s.tokens.Issue(ctx, IssueParams{
		VisitID: visit.ID,
		UserID:  tok.UserID,
		Role:    tok.Role,
		TTL:     s.sessionTTL,
		IP:      p.IP,
		UA:      p.UA,
	})
	if err != nil {
		// The call is already running; a missing follow-up token only limits
		// mid-call re-authentication.
		s.log.Error("session token issuance failed", zap.String("visit_id", visit.ID.String()), zap.Error(err))
		sessionToken = nil
	}

	meta, _ := json.Marshal(map[string]string{
		"session_id": session.SessionID,
		"role":       string(tok.Role),
	})
	recordAudit(ctx, s.audits, s.log, now, &model.AuditEvent{
		EventType: EventVisitStarted,
		ActorID:   tok.UserID.String(),
		ActorRole: string(tok.Role),
		VisitID:   &visit.ID,
		TokenID:   &tok.ID,
		IP:        p.IP,
		UA:        p.UA,
		Success:   true,
		Metadata:  meta,
	})

	return &StartResult{Visit: visit, Session: session, SessionToken: sessionToken}, nil
}

// reissueAfterProviderFailure compensates for a burnt token when the session
// provider failed: the user gets a fresh link instead of a consumed one.
func (s *VisitService) reissueAfterProviderFailure(ctx context.Context, tok *model.Token, p StartParams) {
	replacement, err := s.tokens.Issue(ctx, IssueParams{
		VisitID: tok.VisitID,
		UserID:  tok.UserID,
		Role:    tok.Role,
		IP:      p.IP,
		UA:      p.UA,
	})
	if err != nil {
		s.log.Error("compensating reissue failed",
			zap.String("visit_id", tok.VisitID.String()), zap.Error(err))
		return
	}
	meta, _ := json.Marshal(map[string]string{
		"replaces":    tok.ID,
		"replacement": replacement.TokenID,
	})
	recordAudit(ctx, s.audits, s.log, s.now(), &model.AuditEvent{
		EventType: EventTokenReissued,
		ActorID:   tok.UserID.String(),
		ActorRole: string(tok.Role),
		VisitID:   &tok.VisitID,
		TokenID:   &replacement.TokenID,
		IP:        p.IP,
		UA:        p.UA,
		Success:   true,
		Metadata:  meta,
	})
}

// End closes a visit. Must always succeed once invoked: provider teardown and
// token revocation failures are logged, never propagated.
func (s *VisitService) End(ctx context.Context, p EndParams) (*model.Visit, error) {
	terminal, ok := model.TerminalStatusFor(p.Reason)
	if !ok {
		return nil, fmt.Errorf("end visit: unknown reason %q: %w", p.Reason, errs.ErrValidation)
	}

	visit, err := s.visits.GetByID(ctx, p.VisitID)
	if err != nil {
		return nil, fmt.Errorf("end visit: load visit: %w", err)
	}
	if !visit.Status.CanTransitionTo(terminal) {
		return nil, fmt.Errorf("end visit: visit is %s: %w", visit.Status, errs.ErrInvalidState)
	}

	now := s.now()
	actual := 0
	if visit.StartedAt != nil {
		if d := int(now.Sub(*visit.StartedAt).Minutes()); d > 0 {
			actual = d
		}
	}

	moved, err := s.visits.End(ctx, visit.ID, visit.Status, repository.EndUpdate{
		Status:            terminal,
		EndedAt:           now,
		ActualDurationMin: actual,
		Notes:             p.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("end visit: persist: %w", err)
	}
	if !moved {
		return nil, fmt.Errorf("end visit: visit moved concurrently: %w", errs.ErrInvalidState)
	}

	if visit.ConnectSessionID != nil {
		if err := s.provider.StopSession(ctx, *visit.ConnectSessionID); err != nil {
			s.log.Warn("session teardown failed",
				zap.String("visit_id", visit.ID.String()),
				zap.String("session_id", *visit.ConnectSessionID),
				zap.Error(err))
		}
	}

	if err := s.tokens.RevokeForVisit(ctx, visit.ID); err != nil {
		s.log.Warn("revoke tokens failed", zap.String("visit_id", visit.ID.String()), zap.Error(err))
	}

	meta, _ := json.Marshal(map[string]any{
		"reason":              string(p.Reason),
		"actual_duration_min": actual,
	})
	recordAudit(ctx, s.audits, s.log, now, &model.AuditEvent{
		EventType: EventVisitEnded,
		ActorID:   p.UserID.String(),
		VisitID:   &visit.ID,
		Success:   true,
		Metadata:  meta,
	})

	visit.Status = terminal
	visit.EndedAt = &now
	visit.ActualDurationMin = actual
	if p.Notes != nil {
		visit.Notes = p.Notes
	}
	return visit, nil
}

// Get returns a visit to a caller with standing: its patient, its clinician,
// or an administrator. Callers without clinical or administrative standing get
// free-text clinical fields stripped.
func (s *VisitService) Get(ctx context.Context, visitID uuid.UUID, caller Caller) (*model.Visit, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, fmt.Errorf("get visit: %w", err)
	}
	if !canAccess(visit, caller) {
		return nil, fmt.Errorf("get visit: no standing: %w", errs.ErrForbidden)
	}
	return redacted(visit, caller), nil
}

// List returns the user's visits, most recent first. Only admins may list for
// another user.
func (s *VisitService) List(ctx context.Context, caller Caller, userID uuid.UUID, limit, offset int) ([]model.Visit, error) {
	if caller.Role != model.RoleAdmin && caller.UserID != userID {
		return nil, fmt.Errorf("list visits: no standing: %w", errs.ErrForbidden)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	visits, err := s.visits.ListByParticipant(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	for i := range visits {
		visits[i] = *redacted(&visits[i], caller)
	}
	return visits, nil
}

func canAccess(v *model.Visit, c Caller) bool {
	return c.Role == model.RoleAdmin || c.UserID == v.PatientID || c.UserID == v.ClinicianID
}

// redacted strips free-text clinical fields for callers without clinical or
// administrative standing.
func redacted(v *model.Visit, c Caller) *model.Visit {
	if c.Role == model.RoleClinician || c.Role == model.RoleAdmin {
		return v
	}
	cp := *v
	cp.Notes = nil
	return &cp
}
