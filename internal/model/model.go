// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// VisitStatus is the lifecycle state of a visit. Transitions only move forward
// through visitTransitions; terminal states have no outgoing edges.
type VisitStatus string

const (
	VisitScheduled VisitStatus = "SCHEDULED"
	VisitActive    VisitStatus = "ACTIVE"
	VisitCompleted VisitStatus = "COMPLETED"
	VisitNoShow    VisitStatus = "NO_SHOW"
	VisitTechnical VisitStatus = "TECHNICAL"
	VisitCancelled VisitStatus = "CANCELLED"
)

var visitTransitions = map[VisitStatus][]VisitStatus{
	VisitScheduled: {VisitActive, VisitCompleted, VisitNoShow, VisitTechnical, VisitCancelled},
	VisitActive:    {VisitCompleted, VisitNoShow, VisitTechnical, VisitCancelled},
}

// CanTransitionTo reports whether the visit status may move to next.
func (s VisitStatus) CanTransitionTo(next VisitStatus) bool {
	for _, t := range visitTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions.
func (s VisitStatus) Terminal() bool {
	return len(visitTransitions[s]) == 0
}

// TokenStatus is the lifecycle state of a join token.
type TokenStatus string

const (
	TokenActive   TokenStatus = "ACTIVE"
	TokenRedeemed TokenStatus = "REDEEMED"
	TokenExpired  TokenStatus = "EXPIRED"
	TokenRevoked  TokenStatus = "REVOKED"
)

// REDEEMED is terminal and never transitions further.
var tokenTransitions = map[TokenStatus][]TokenStatus{
	TokenActive:  {TokenRedeemed, TokenExpired, TokenRevoked},
	TokenExpired: {TokenRevoked},
}

// CanTransitionTo reports whether the token status may move to next.
func (s TokenStatus) CanTransitionTo(next TokenStatus) bool {
	for _, t := range tokenTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Role identifies which side of the visit a token admits.
type Role string

const (
	RolePatient   Role = "patient"
	RoleClinician Role = "clinician"
	// RoleAdmin exists only as a caller role for access checks; tokens are never issued for it.
	RoleAdmin Role = "admin"
)

// Valid reports whether the role may appear in a token.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleClinician
}

// EndReason is the caller-supplied reason a visit ended.
type EndReason string

const (
	ReasonCompleted EndReason = "completed"
	ReasonNoShow    EndReason = "no-show"
	ReasonTechnical EndReason = "technical-issue"
	ReasonCancelled EndReason = "cancelled"
)

var reasonStatus = map[EndReason]VisitStatus{
	ReasonCompleted: VisitCompleted,
	ReasonNoShow:    VisitNoShow,
	ReasonTechnical: VisitTechnical,
	ReasonCancelled: VisitCancelled,
}

// TerminalStatusFor maps an end reason to its terminal visit status.
func TerminalStatusFor(r EndReason) (VisitStatus, bool) {
	st, ok := reasonStatus[r]
	return st, ok
}

// Visit is one scheduled patient-clinician encounter and its lifecycle record.
// Rows are kept indefinitely for audit.
type Visit struct {
	ID                  uuid.UUID
	PatientID           uuid.UUID
	ClinicianID         uuid.UUID
	ScheduledAt         time.Time
	DurationMin         int
	Status              VisitStatus
	StartedAt           *time.Time
	EndedAt             *time.Time
	ActualDurationMin   int
	PatientJoinedAt     *time.Time
	ClinicianJoinedAt   *time.Time
	DeviceInfo          []byte // opaque client-reported JSON
	ConnectSessionID    *string
	NotificationChannel string
	Notes               *string // free-text clinical notes; stripped for callers without standing
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Token is a one-time join credential scoped to one visit and one role.
// UsageCount never exceeds MaxUsageCount.
type Token struct {
	ID            string // 64 hex chars, 32 random bytes
	VisitID       uuid.UUID
	UserID        uuid.UUID // whom the link was issued to (token subject)
	Role          Role
	Nonce         string
	Status        TokenStatus
	IssuedAt      time.Time
	ExpiresAt     time.Time
	UsageCount    int
	MaxUsageCount int
	IssuedToIP    string
	IssuedToUA    string
	RedeemedAt    *time.Time
	RedemptionIP  *string
	RedemptionUA  *string
	ShortCode     string // short hexadecimal alias for join links
}

// Patient is the subset of the patient record this core needs for eligibility.
type Patient struct {
	ID    uuid.UUID
	Name  string
	State string // jurisdiction of residence; empty means unknown
}

// Clinician is the subset of the clinician record this core needs for eligibility.
type Clinician struct {
	ID             uuid.UUID
	Name           string
	LicensedStates []string
}

// LicensedIn reports whether the clinician holds a licence for the given jurisdiction.
func (c *Clinician) LicensedIn(state string) bool {
	for _, s := range c.LicensedStates {
		if s == state {
			return true
		}
	}
	return false
}

// AuditEvent is an immutable fact about a token or visit event.
type AuditEvent struct {
	ID             int64
	EventType      string
	ActorID        string
	ActorRole      string
	VisitID        *uuid.UUID
	TokenID        *string
	IP             string
	UA             string
	Success        bool
	ErrorCode      string
	Metadata       []byte // JSON
	RetentionUntil time.Time
	CreatedAt      time.Time
}
