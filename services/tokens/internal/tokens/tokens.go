// Package tokens implements the secure drop token service: scoped,
// expiring, rate-limited credentials over explicit artifact sets, with a
// complete access-attempt log.
package tokens

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trustgate/pkg/config"
	"trustgate/pkg/domain"
	"trustgate/pkg/ratelimit"
)

// TokenRepo is the token repository. Rotate atomically applies revokeOld
// to the old token and inserts the replacement; no reader ever sees both
// active at once.
type TokenRepo interface {
	Insert(ctx context.Context, t domain.SecureDropToken) error
	Get(ctx context.Context, id string) (domain.SecureDropToken, error)
	Update(ctx context.Context, id string, fn func(*domain.SecureDropToken) error) (domain.SecureDropToken, error)
	Rotate(ctx context.Context, oldID string, revokeOld func(*domain.SecureDropToken) error, replacement domain.SecureDropToken) error
	Stats(ctx context.Context) (Stats, error)
}

// AccessLog records every access attempt against a token.
type AccessLog interface {
	Append(ctx context.Context, e domain.SDTAccessLog) error
	List(ctx context.Context, tokenID string) ([]domain.SDTAccessLog, error)
}

// Pusher delivers signed webhook notifications to partner endpoints.
type Pusher interface {
	Push(ctx context.Context, endpoint, eventID, eventType string, payload any) error
}

type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

type Service struct {
	repo        TokenRepo
	accessLog   AccessLog
	pusher      Pusher
	cfg         config.Config
	issueLimit  *ratelimit.Limiter
	accessLimit *ratelimit.Limiter
	now         func() time.Time
}

func New(repo TokenRepo, accessLog AccessLog, pusher Pusher, cfg config.Config) *Service {
	return &Service{
		repo:        repo,
		accessLog:   accessLog,
		pusher:      pusher,
		cfg:         cfg,
		issueLimit:  ratelimit.New(cfg.SDTRateLimitPerMinute, time.Minute),
		accessLimit: ratelimit.New(cfg.SDTAccessRateLimitPerMinute, time.Minute),
		now:         time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func auditEvent(action string) string {
	return "evt_" + uuid.NewString() + " " + action
}

type IssueRequest struct {
	TenantID            string                     `json:"tenant_id"`
	WorkspaceID         string                     `json:"workspace_id"`
	ProjectID           string                     `json:"project_id"`
	ArtifactRefs        []string                   `json:"artifact_refs"`
	Permissions         []domain.SDTPermission     `json:"permissions"`
	DeliveryMethod      domain.SDTDeliveryMethod   `json:"delivery_method"`
	ExpiresInSeconds    int                        `json:"expires_in_seconds"`
	PartnerID           string                     `json:"partner_id,omitempty"`
	WebhookEndpoint     string                     `json:"webhook_endpoint,omitempty"`
	SessionRestrictions *domain.SessionRestriction `json:"session_restrictions,omitempty"`
}

// Issue mints an active token. The requested TTL is clamped to the
// configured maximum no matter what the caller asks for, and issuance is
// rate limited per tenant.
func (s *Service) Issue(ctx context.Context, req IssueRequest, issuedBy string) (domain.SecureDropToken, error) {
	if req.TenantID == "" || req.WorkspaceID == "" {
		return domain.SecureDropToken{}, domain.Validation("TENANT_REQUIRED", "tenant_id and workspace_id are required")
	}
	if len(req.ArtifactRefs) == 0 {
		return domain.SecureDropToken{}, domain.Validation("ARTIFACTS_REQUIRED", "token must be bound to at least one artifact")
	}
	if len(req.Permissions) == 0 {
		return domain.SecureDropToken{}, domain.Validation("PERMISSIONS_REQUIRED", "token must have at least one permission")
	}
	for _, p := range req.Permissions {
		if !domain.ValidPermission(p) {
			return domain.SecureDropToken{}, domain.Validation("INVALID_PERMISSION",
				fmt.Sprintf("permission %q is not one of view, download, acknowledge, comment", p))
		}
	}
	if !domain.ValidDeliveryMethod(req.DeliveryMethod) {
		return domain.SecureDropToken{}, domain.Validation("INVALID_DELIVERY_METHOD",
			fmt.Sprintf("delivery method %q is not one of partner_portal, webhook_push, signed_export", req.DeliveryMethod))
	}
	if req.DeliveryMethod == domain.DeliveryWebhookPush && req.WebhookEndpoint == "" {
		return domain.SecureDropToken{}, domain.Validation("WEBHOOK_ENDPOINT_REQUIRED",
			"webhook_push delivery requires a webhook_endpoint")
	}
	if req.ExpiresInSeconds <= 0 {
		return domain.SecureDropToken{}, domain.Validation("INVALID_TTL", "expires_in_seconds must be positive")
	}

	now := s.now()
	if !s.issueLimit.Allow(req.TenantID, now) {
		return domain.SecureDropToken{}, domain.RateLimited(
			fmt.Sprintf("token issuance rate limit exceeded for tenant %s", req.TenantID))
	}

	ttl := time.Duration(req.ExpiresInSeconds) * time.Second
	if ttl > s.cfg.MaxSDTTTL() {
		ttl = s.cfg.MaxSDTTTL()
	}

	var restrictions *domain.SessionRestriction
	if req.SessionRestrictions != nil {
		r := *req.SessionRestrictions
		r.IPAllowlist = append([]string(nil), req.SessionRestrictions.IPAllowlist...)
		r.CurrentAccessCount = 0
		restrictions = &r
	}

	t := domain.SecureDropToken{
		TokenID:             "sdt_" + uuid.NewString(),
		TenantID:            req.TenantID,
		WorkspaceID:         req.WorkspaceID,
		ProjectID:           req.ProjectID,
		ArtifactRefs:        append([]string(nil), req.ArtifactRefs...),
		Permissions:         append([]domain.SDTPermission(nil), req.Permissions...),
		DeliveryMethod:      req.DeliveryMethod,
		IssuedAt:            now.UTC(),
		ExpiresAt:           now.Add(ttl).UTC(),
		IssuedBy:            issuedBy,
		Status:              domain.SDTActive,
		PartnerID:           req.PartnerID,
		WebhookEndpoint:     req.WebhookEndpoint,
		SessionRestrictions: restrictions,
		AuditTrail:          []string{auditEvent("issued")},
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		return domain.SecureDropToken{}, err
	}

	s.notifyIssued(ctx, &t)
	return t, nil
}

// notifyIssued pushes a signed notification for webhook_push tokens. Push
// failures never fail issuance; they land on the audit trail.
func (s *Service) notifyIssued(ctx context.Context, t *domain.SecureDropToken) {
	if t.DeliveryMethod != domain.DeliveryWebhookPush || s.pusher == nil || !s.cfg.PartnerWebhooksEnabled {
		return
	}
	payload := map[string]any{
		"token_id":   t.TokenID,
		"tenant_id":  t.TenantID,
		"partner_id": t.PartnerID,
		"expires_at": t.ExpiresAt,
	}
	eventID := "evt_" + uuid.NewString()
	outcome := "push_delivered"
	if err := s.pusher.Push(ctx, t.WebhookEndpoint, eventID, "sdt.issued", payload); err != nil {
		outcome = "push_failed"
	}
	updated, err := s.repo.Update(ctx, t.TokenID, func(t *domain.SecureDropToken) error {
		t.AuditTrail = append(t.AuditTrail, auditEvent(outcome))
		return nil
	})
	if err == nil {
		*t = updated
	}
}

type ValidateResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validate reports whether the token is currently usable. Expiry and
// consumption are checked lazily here: a stale active token flips to its
// terminal status on first observation.
func (s *Service) Validate(ctx context.Context, tokenID string) (ValidateResult, error) {
	t, err := s.repo.Update(ctx, tokenID, func(t *domain.SecureDropToken) error {
		s.settleStatus(t)
		return nil
	})
	if err != nil {
		return ValidateResult{}, err
	}
	switch t.Status {
	case domain.SDTActive:
		return ValidateResult{Valid: true}, nil
	case domain.SDTExpired:
		return ValidateResult{Valid: false, Reason: "expired"}, nil
	case domain.SDTRevoked:
		return ValidateResult{Valid: false, Reason: "revoked"}, nil
	case domain.SDTConsumed:
		return ValidateResult{Valid: false, Reason: "max access count reached"}, nil
	default:
		return ValidateResult{Valid: false, Reason: string(t.Status)}, nil
	}
}

// settleStatus applies lazy terminal transitions to an active token.
func (s *Service) settleStatus(t *domain.SecureDropToken) {
	if t.Status != domain.SDTActive {
		return
	}
	if !s.now().Before(t.ExpiresAt) {
		t.Status = domain.SDTExpired
		t.AuditTrail = append(t.AuditTrail, auditEvent("expired"))
		return
	}
	if r := t.SessionRestrictions; r != nil && r.MaxAccessCount > 0 && r.CurrentAccessCount >= r.MaxAccessCount {
		t.Status = domain.SDTConsumed
		t.AuditTrail = append(t.AuditTrail, auditEvent("consumed"))
	}
}

// Revoke terminates the token. Revoking an already-terminal token is a
// no-op success so callers can retry safely.
func (s *Service) Revoke(ctx context.Context, tokenID, reason string) error {
	_, err := s.repo.Update(ctx, tokenID, func(t *domain.SecureDropToken) error {
		if t.Status.Terminal() {
			return nil
		}
		t.Status = domain.SDTRevoked
		t.AuditTrail = append(t.AuditTrail, auditEvent("revoked: "+reason))
		return nil
	})
	return err
}

// Rotate issues a replacement preserving the old token's scope and
// revokes the old one in a single repository operation; at no point are
// both observable as active. The replacement gets a fresh default TTL,
// clamped to the configured maximum.
func (s *Service) Rotate(ctx context.Context, tokenID, issuedBy string) (domain.SecureDropToken, error) {
	old, err := s.repo.Update(ctx, tokenID, func(t *domain.SecureDropToken) error {
		s.settleStatus(t)
		return nil
	})
	if err != nil {
		return domain.SecureDropToken{}, err
	}
	if err := s.rotatable(&old); err != nil {
		return domain.SecureDropToken{}, err
	}

	ttl := s.cfg.DefaultSDTTTL()
	if ttl > s.cfg.MaxSDTTTL() {
		ttl = s.cfg.MaxSDTTTL()
	}
	now := s.now()
	replacement := domain.SecureDropToken{
		TokenID:         "sdt_" + uuid.NewString(),
		TenantID:        old.TenantID,
		WorkspaceID:     old.WorkspaceID,
		ProjectID:       old.ProjectID,
		ArtifactRefs:    append([]string(nil), old.ArtifactRefs...),
		Permissions:     append([]domain.SDTPermission(nil), old.Permissions...),
		DeliveryMethod:  old.DeliveryMethod,
		IssuedAt:        now.UTC(),
		ExpiresAt:       now.Add(ttl).UTC(),
		IssuedBy:        issuedBy,
		Status:          domain.SDTActive,
		PartnerID:       old.PartnerID,
		WebhookEndpoint: old.WebhookEndpoint,
		AuditTrail:      []string{auditEvent("rotated from " + tokenID)},
	}
	if old.SessionRestrictions != nil {
		r := *old.SessionRestrictions
		r.IPAllowlist = append([]string(nil), old.SessionRestrictions.IPAllowlist...)
		r.CurrentAccessCount = 0
		replacement.SessionRestrictions = &r
	}

	err = s.repo.Rotate(ctx, tokenID, func(t *domain.SecureDropToken) error {
		if err := s.rotatable(t); err != nil {
			return err
		}
		t.Status = domain.SDTRevoked
		t.AuditTrail = append(t.AuditTrail, auditEvent("revoked: rotated to "+replacement.TokenID))
		return nil
	}, replacement)
	if err != nil {
		return domain.SecureDropToken{}, err
	}
	return replacement, nil
}

// rotatable settles lazy expiry on t and reports whether a replacement
// may still be minted for it. A token past its expires_at is refused even
// if nothing has observed the expiry yet.
func (s *Service) rotatable(t *domain.SecureDropToken) error {
	s.settleStatus(t)
	if t.Status == domain.SDTExpired {
		return domain.Expired("TOKEN_EXPIRED", "token has expired and cannot be rotated")
	}
	if t.Status.Terminal() {
		return domain.StateConflict("TOKEN_TERMINAL",
			fmt.Sprintf("token is %s and cannot be rotated", t.Status))
	}
	return nil
}

func (s *Service) GetToken(ctx context.Context, tokenID string) (domain.SecureDropToken, error) {
	return s.repo.Get(ctx, tokenID)
}

func (s *Service) GetAccessLog(ctx context.Context, tokenID string) ([]domain.SDTAccessLog, error) {
	if _, err := s.repo.Get(ctx, tokenID); err != nil {
		return nil, err
	}
	return s.accessLog.List(ctx, tokenID)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}
