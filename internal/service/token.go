package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/televisit/carelink/internal/cache"
	pkgcrypto "github.com/televisit/carelink/internal/crypto"
	"github.com/televisit/carelink/internal/errs"
	"github.com/televisit/carelink/internal/model"
	"github.com/televisit/carelink/internal/repository"
	"github.com/televisit/carelink/internal/signing"
)

const maxIssueAttempts = 3

// JoinClaims is the signed payload of a join token.
type JoinClaims struct {
	VisitID string `json:"visit_id"`
	Role    string `json:"role"`
	Nonce   string `json:"nonce"`
	jwt.RegisteredClaims
}

// TokenConfig carries token issuance/validation parameters.
type TokenConfig struct {
	Issuer     string
	Audience   string
	DefaultTTL time.Duration // join token lifetime; 20m when zero
	Skew       time.Duration // nbf/exp clock skew tolerance; 120s when zero
}

// IssueParams are the inputs to Issue.
type IssueParams struct {
	VisitID uuid.UUID
	UserID  uuid.UUID
	Role    model.Role
	TTL     time.Duration // default TokenConfig.DefaultTTL when zero
	IP      string
	UA      string
}

// IssuedToken is the caller-facing result of Issue.
type IssuedToken struct {
	Token     string // compact header.payload.signature string
	TokenID   string
	ShortCode string
	ExpiresAt time.Time
}

// ValidationResult reports the outcome of Validate. Expected failures are
// carried in ErrorCode/Action, never as Go errors.
type ValidationResult struct {
	Valid     bool
	Claims    *JoinClaims
	Error     string
	ErrorCode string
	Action    Action
}

// RedeemParams are the inputs to Redeem.
type RedeemParams struct {
	TokenID string
	IP      string
	UA      string
}

// RedeemResult reports the outcome of Redeem.
type RedeemResult struct {
	Success   bool
	Token     *model.Token // populated on success
	Error     string
	ErrorCode string
	Action    Action
}

// TokenService issues, validates, and single-use-consumes signed join tokens.
type TokenService struct {
	tokens repository.TokenRepository
	audits repository.AuditRepository
	signer signing.Signer
	keys   *signing.KeyCache
	codes  cache.ShortCodeCache
	log    *zap.Logger

	issuer     string
	audience   string
	defaultTTL time.Duration
	skew       time.Duration

	now func() time.Time
}

// NewTokenService constructs TokenService with required dependencies.
func NewTokenService(
	tokens repository.TokenRepository,
	audits repository.AuditRepository,
	signer signing.Signer,
	codes cache.ShortCodeCache,
	log *zap.Logger,
	cfg TokenConfig,
) *TokenService {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 20 * time.Minute
	}
	if cfg.Skew == 0 {
		cfg.Skew = 120 * time.Second
	}
	if codes == nil {
		codes = cache.Noop{}
	}
	return &TokenService{
		tokens:     tokens,
		audits:     audits,
		signer:     signer,
		keys:       signing.NewKeyCache(signer),
		codes:      codes,
		log:        log,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		defaultTTL: cfg.DefaultTTL,
		skew:       cfg.Skew,
		now:        time.Now,
	}
}

// Issue creates a persisted one-time token and its compact signed string.
// Pure insert: no locking. The short code is a prefix of the token id; on a
// short-code collision the whole identity is regenerated and the insert retried.
func (s *TokenService) Issue(ctx context.Context, p IssueParams) (*IssuedToken, error) {
	if p.VisitID == uuid.Nil || p.UserID == uuid.Nil {
		return nil, fmt.Errorf("issue: visit and user required: %w", errs.ErrValidation)
	}
	if !p.Role.Valid() {
		return nil, fmt.Errorf("issue: role %q: %w", p.Role, errs.ErrValidation)
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		tokenID, err := pkgcrypto.NewTokenID()
		if err != nil {
			return nil, fmt.Errorf("issue: token id: %w", err)
		}
		nonce, err := pkgcrypto.NewNonce()
		if err != nil {
			return nil, fmt.Errorf("issue: nonce: %w", err)
		}

		now := s.now()
		expiresAt := now.Add(ttl)
		claims := JoinClaims{
			VisitID: p.VisitID.String(),
			Role:    string(p.Role),
			Nonce:   nonce,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    s.issuer,
				Audience:  jwt.ClaimStrings{s.audience},
				Subject:   p.UserID.String(),
				ID:        tokenID,
				IssuedAt:  jwt.NewNumericDate(now),
				NotBefore: jwt.NewNumericDate(now.Add(-s.skew)),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
		}

		signed, err := s.sign(ctx, claims)
		if err != nil {
			return nil, err
		}

		row := &model.Token{
			ID:            tokenID,
			VisitID:       p.VisitID,
			UserID:        p.UserID,
			Role:          p.Role,
			Nonce:         nonce,
			Status:        model.TokenActive,
			IssuedAt:      now,
			ExpiresAt:     expiresAt,
			UsageCount:    0,
			MaxUsageCount: 1,
			IssuedToIP:    p.IP,
			IssuedToUA:    p.UA,
			ShortCode:     pkgcrypto.ShortCode(tokenID),
		}
		if err := s.tokens.Insert(ctx, row); err != nil {
			if errors.Is(err, errs.ErrAlreadyExists) {
				continue
			}
			return nil, fmt.Errorf("issue: insert token: %w", err)
		}

		if err := s.codes.Set(ctx, row.ShortCode, tokenID, expiresAt.Sub(now)); err != nil {
			s.log.Debug("short code cache set failed", zap.Error(err))
		}

		recordAudit(ctx, s.audits, s.log, now, &model.AuditEvent{
			EventType: EventTokenIssued,
			ActorID:   p.UserID.String(),
			ActorRole: string(p.Role),
			VisitID:   &p.VisitID,
			TokenID:   &tokenID,
			IP:        p.IP,
			UA:        p.UA,
			Success:   true,
		})

		return &IssuedToken{
			Token:     signed,
			TokenID:   tokenID,
			ShortCode: row.ShortCode,
			ExpiresAt: expiresAt,
		}, nil
	}

	return nil, fmt.Errorf("issue: short code collisions exhausted: %w", errs.ErrConflict)
}

// sign builds the compact JWS. The digest of the signing string goes to the
// signing backend; the private key never enters this process.
func (s *TokenService) sign(ctx context.Context, claims JoinClaims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.signer.KeyID()

	signingString, err := tok.SigningString()
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	digest := sha256.Sum256([]byte(signingString))
	sig, err := s.signer.Sign(ctx, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign: %v: %w", err, errs.ErrUpstream)
	}
	return signingString + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Validate checks a presented token string. Semi-pure: a token found to be
// past its expiry is flagged EXPIRED in the store as a side effect.
// Expected failures come back as {ErrorCode, Action}; a non-nil error means an
// infrastructure failure.
func (s *TokenService) Validate(ctx context.Context, raw string, requireUnused bool) (ValidationResult, error) {
	if strings.Count(raw, ".") != 2 {
		return invalid(CodeTokenInvalid, "Token malformed", ActionContactSupport), nil
	}

	// Untrusted peek for tracing only; claims are not used until verified.
	if traceID := s.unverifiedTokenID(raw); traceID != "" {
		s.log.Debug("validating token", zap.String("token_id", traceID))
	}

	claims, err := s.parse(ctx, raw)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		// Signature verified before claim validation, so the id is trustworthy.
		if claims.ID != "" {
			if mErr := s.tokens.MarkExpired(ctx, claims.ID); mErr != nil {
				s.log.Warn("mark expired failed", zap.String("token_id", claims.ID), zap.Error(mErr))
			}
			recordAudit(ctx, s.audits, s.log, s.now(), &model.AuditEvent{
				EventType: EventTokenExpired,
				TokenID:   &claims.ID,
				Success:   false,
				ErrorCode: CodeTokenExpired,
			})
		}
		return invalid(CodeTokenExpired, "Token expired", ActionRequestNewLink), nil
	default:
		return invalid(CodeTokenInvalid, "Token invalid", ActionContactSupport), nil
	}

	row, err := s.tokens.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return invalid(CodeTokenNotFound, "Token not found", ActionContactSupport), nil
		}
		return ValidationResult{}, fmt.Errorf("validate: load token: %w", err)
	}

	switch row.Status {
	case model.TokenRevoked:
		return invalid(CodeTokenRevoked, "Token revoked", ActionContactSupport), nil
	case model.TokenRedeemed:
		return invalid(CodeTokenUsed, "Token already used", ActionRequestNewLink), nil
	case model.TokenExpired:
		return invalid(CodeTokenExpired, "Token expired", ActionRequestNewLink), nil
	}
	if requireUnused && row.UsageCount > 0 {
		return invalid(CodeTokenUsed, "Token already used", ActionRequestNewLink), nil
	}

	return ValidationResult{Valid: true, Claims: claims}, nil
}

func invalid(code, msg string, action Action) ValidationResult {
	return ValidationResult{Error: msg, ErrorCode: code, Action: action}
}

func (s *TokenService) parse(ctx context.Context, raw string) (*JoinClaims, error) {
	keyfunc := func(_ *jwt.Token) (any, error) { return s.keys.Get(ctx) }
	// Skew tolerance is baked into the not-before claim at issuance; expiry is
	// checked strictly so a ttl=20m token is dead at +21m.
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	}

	claims := &JoinClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, keyfunc, opts...)
	if err != nil && errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		// The signing key may have rotated; refresh the cached key once.
		s.keys.Invalidate()
		claims = &JoinClaims{}
		_, err = jwt.ParseWithClaims(raw, claims, keyfunc, opts...)
	}
	return claims, err
}

func (s *TokenService) unverifiedTokenID(raw string) string {
	claims := &JoinClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	return claims.ID
}

// Redeem consumes a token exactly once. The conditional store update is the
// only guard against two concurrent joiners both succeeding with one link.
func (s *TokenService) Redeem(ctx context.Context, p RedeemParams) (RedeemResult, error) {
	if p.TokenID == "" {
		return redeemFailure(CodeTokenNotFound, "Token not found", ActionContactSupport), nil
	}

	now := s.now()
	ok, err := s.tokens.Redeem(ctx, p.TokenID, p.IP, p.UA, now)
	if err != nil {
		return RedeemResult{}, fmt.Errorf("redeem: %w", err)
	}

	if ok {
		row, err := s.tokens.GetByID(ctx, p.TokenID)
		if err != nil {
			// Redemption itself committed; surface the row-load failure only in logs.
			s.log.Warn("load redeemed token failed", zap.String("token_id", p.TokenID), zap.Error(err))
		}
		recordAudit(ctx, s.audits, s.log, now, &model.AuditEvent{
			EventType: EventTokenRedeemed,
			TokenID:   &p.TokenID,
			VisitID:   tokenVisitID(row),
			IP:        p.IP,
			UA:        p.UA,
			Success:   true,
		})
		return RedeemResult{Success: true, Token: row}, nil
	}

	// No row matched: classify what the caller actually hit.
	row, err := s.tokens.GetByID(ctx, p.TokenID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return redeemFailure(CodeTokenNotFound, "Token not found", ActionContactSupport), nil
		}
		return RedeemResult{}, fmt.Errorf("redeem: classify: %w", err)
	}

	switch row.Status {
	case model.TokenActive:
		if row.ExpiresAt.After(now) {
			return redeemFailure(CodeTokenInvalid, "Token not redeemable", ActionContactSupport), nil
		}
		// Past its TTL but the sweep has not flipped it yet; flag it now.
		if mErr := s.tokens.MarkExpired(ctx, p.TokenID); mErr != nil {
			s.log.Warn("mark expired failed", zap.String("token_id", p.TokenID), zap.Error(mErr))
		}
		recordAudit(ctx, s.audits, s.log, now, &model.AuditEvent{
			EventType: EventTokenExpired,
			TokenID:   &p.TokenID,
			VisitID:   &row.VisitID,
			IP:        p.IP,
			UA:        p.UA,
			Success:   false,
			ErrorCode: CodeTokenExpired,
		})
		return redeemFailure(CodeTokenExpired, "Token expired", ActionRequestNewLink), nil
	case model.TokenRedeemed:
		// Attempted reuse; keep the original redemption ip/ua for forensic comparison.
		meta, _ := json.Marshal(map[string]any{
			"original_redeemed_at":   row.RedeemedAt,
			"original_redemption_ip": row.RedemptionIP,
			"original_redemption_ua": row.RedemptionUA,
			"attempt_ip":             p.IP,
			"attempt_ua":             p.UA,
		})
		recordAudit(ctx, s.audits, s.log, now, &model.AuditEvent{
			EventType: EventTokenReuseAttempt,
			TokenID:   &p.TokenID,
			VisitID:   &row.VisitID,
			IP:        p.IP,
			UA:        p.UA,
			Success:   false,
			ErrorCode: CodeTokenUsed,
			Metadata:  meta,
		})
		return redeemFailure(CodeTokenUsed, "Token already used", ActionRequestNewLink), nil
	case model.TokenRevoked:
		return redeemFailure(CodeTokenRevoked, "Token revoked", ActionContactSupport), nil
	case model.TokenExpired:
		return redeemFailure(CodeTokenExpired, "Token expired", ActionRequestNewLink), nil
	default:
		return redeemFailure(CodeTokenInvalid, "Token not redeemable", ActionContactSupport), nil
	}
}

func redeemFailure(code, msg string, action Action) RedeemResult {
	return RedeemResult{Error: msg, ErrorCode: code, Action: action}
}

func tokenVisitID(t *model.Token) *uuid.UUID {
	if t == nil {
		return nil
	}
	return &t.VisitID
}

// RevokeForVisit bulk-revokes every ACTIVE or EXPIRED token of the visit.
// Idempotent: a second call finds no eligible rows and records nothing.
func (s *TokenService) RevokeForVisit(ctx context.Context, visitID uuid.UUID) error {
	n, err := s.tokens.RevokeByVisit(ctx, visitID)
	if err != nil {
		return fmt.Errorf("revoke for visit: %w", err)
	}
	if n > 0 {
		meta, _ := json.Marshal(map[string]int64{"revoked": n})
		recordAudit(ctx, s.audits, s.log, s.now(), &model.AuditEvent{
			EventType: EventTokensRevoked,
			VisitID:   &visitID,
			Success:   true,
			Metadata:  meta,
		})
	}
	return nil
}

// ResolveShortCode maps a join-link alias to a full token id. The persisted
// row is always re-checked for ACTIVE status and a future expiry, even on a
// cache hit, so a stale cache or a lagging cleanup pass cannot leak a dead
// token. Returns errs.ErrNotFound when no eligible token exists.
func (s *TokenService) ResolveShortCode(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("resolve short code: empty: %w", errs.ErrValidation)
	}

	var row *model.Token
	id, hit, err := s.codes.Get(ctx, code)
	if err != nil {
		s.log.Debug("short code cache get failed", zap.Error(err))
		hit = false
	}
	if hit {
		row, err = s.tokens.GetByID(ctx, id)
	} else {
		row, err = s.tokens.GetByShortCode(ctx, code)
	}
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return "", errs.ErrNotFound
		}
		return "", fmt.Errorf("resolve short code: %w", err)
	}

	now := s.now()
	if row.Status != model.TokenActive || !row.ExpiresAt.After(now) {
		return "", errs.ErrNotFound
	}

	if !hit {
		if err := s.codes.Set(ctx, code, row.ID, row.ExpiresAt.Sub(now)); err != nil {
			s.log.Debug("short code cache set failed", zap.Error(err))
		}
	}
	return row.ID, nil
}

// ExpireDue flips every overdue ACTIVE token to EXPIRED. Called periodically
// by the expiry worker; validation catches stragglers in between runs.
func (s *TokenService) ExpireDue(ctx context.Context) (int64, error) {
	n, err := s.tokens.ExpireDue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire due: %w", err)
	}
	if n > 0 {
		s.log.Info("expired overdue tokens", zap.Int64("count", n))
	}
	return n, nil
}

// GetToken returns the persisted row for a token id.
func (s *TokenService) GetToken(ctx context.Context, id string) (*model.Token, error) {
	return s.tokens.GetByID(ctx, id)
}
