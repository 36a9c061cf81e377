package tokens_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trustgate/pkg/config"
	"trustgate/pkg/domain"
	"trustgate/services/tokens/internal/memstore"
	"trustgate/services/tokens/internal/tokens"
)

func newService(t *testing.T, cfg config.Config) (*tokens.Service, *memstore.AccessLogs) {
	t.Helper()
	logs := memstore.NewAccessLogs()
	return tokens.New(memstore.New(), logs, nil, cfg), logs
}

func issueReq() tokens.IssueRequest {
	return tokens.IssueRequest{
		TenantID:         "ten_1",
		WorkspaceID:      "ws_1",
		ProjectID:        "proj_1",
		ArtifactRefs:     []string{"art_1", "art_2"},
		Permissions:      []domain.SDTPermission{domain.PermView, domain.PermDownload},
		DeliveryMethod:   domain.DeliveryPartnerPortal,
		ExpiresInSeconds: 3600,
	}
}

func issueToken(t *testing.T, svc *tokens.Service, req tokens.IssueRequest) domain.SecureDropToken {
	t.Helper()
	tok, err := svc.Issue(context.Background(), req, "user_1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	return tok
}

func TestIssueActiveToken(t *testing.T) {
	svc, _ := newService(t, config.Default())
	tok := issueToken(t, svc, issueReq())

	if tok.Status != domain.SDTActive {
		t.Fatalf("status = %s, want active", tok.Status)
	}
	if !strings.HasPrefix(tok.TokenID, "sdt_") {
		t.Fatalf("token id = %s", tok.TokenID)
	}
	if len(tok.AuditTrail) != 1 || !strings.Contains(tok.AuditTrail[0], "issued") {
		t.Fatalf("audit trail = %v", tok.AuditTrail)
	}
	if got := tok.ExpiresAt.Sub(tok.IssuedAt); got != time.Hour {
		t.Fatalf("ttl = %v, want 1h", got)
	}
}

func TestIssueValidation(t *testing.T) {
	svc, _ := newService(t, config.Default())
	ctx := context.Background()

	cases := []struct {
		name string
		code string
		mod  func(*tokens.IssueRequest)
	}{
		{"no artifacts", "ARTIFACTS_REQUIRED", func(r *tokens.IssueRequest) { r.ArtifactRefs = nil }},
		{"no permissions", "PERMISSIONS_REQUIRED", func(r *tokens.IssueRequest) { r.Permissions = nil }},
		{"bad permission", "INVALID_PERMISSION", func(r *tokens.IssueRequest) {
			r.Permissions = []domain.SDTPermission{"delete"}
		}},
		{"bad delivery", "INVALID_DELIVERY_METHOD", func(r *tokens.IssueRequest) { r.DeliveryMethod = "carrier_pigeon" }},
		{"webhook without endpoint", "WEBHOOK_ENDPOINT_REQUIRED", func(r *tokens.IssueRequest) {
			r.DeliveryMethod = domain.DeliveryWebhookPush
		}},
		{"zero ttl", "INVALID_TTL", func(r *tokens.IssueRequest) { r.ExpiresInSeconds = 0 }},
	}
	for _, tc := range cases {
		req := issueReq()
		tc.mod(&req)
		_, err := svc.Issue(ctx, req, "user_1")
		var derr *domain.Error
		if !errors.As(err, &derr) || derr.Code != tc.code {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.code, err)
		}
	}
}

func TestIssueClampsTTLToMax(t *testing.T) {
	svc, _ := newService(t, config.Default())
	now := time.Now().UTC()
	svc.WithClock(func() time.Time { return now })

	req := issueReq()
	req.ExpiresInSeconds = 999_999_999
	tok := issueToken(t, svc, req)
	if got := tok.ExpiresAt.Sub(tok.IssuedAt); got != 24*time.Hour {
		t.Fatalf("ttl = %v, want clamped to 24h", got)
	}
}

func TestIssueRateLimitedPerTenant(t *testing.T) {
	cfg := config.Default()
	cfg.SDTRateLimitPerMinute = 2
	svc, _ := newService(t, cfg)
	ctx := context.Background()

	issueToken(t, svc, issueReq())
	issueToken(t, svc, issueReq())
	_, err := svc.Issue(ctx, issueReq(), "user_1")
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind != domain.KindRateLimited {
		t.Fatalf("expected rate_limited, got %v", err)
	}

	// Another tenant is unaffected.
	other := issueReq()
	other.TenantID = "ten_2"
	issueToken(t, svc, other)
}

func TestIssueResetsAccessCounter(t *testing.T) {
	svc, _ := newService(t, config.Default())
	req := issueReq()
	req.SessionRestrictions = &domain.SessionRestriction{
		MaxAccessCount:     3,
		CurrentAccessCount: 99,
	}
	tok := issueToken(t, svc, req)
	if tok.SessionRestrictions.CurrentAccessCount != 0 {
		t.Fatalf("current_access_count = %d, want 0", tok.SessionRestrictions.CurrentAccessCount)
	}
}

func TestValidateExpiresLazily(t *testing.T) {
	svc, _ := newService(t, config.Default())
	now := time.Now().UTC()
	svc.WithClock(func() time.Time { return now })
	ctx := context.Background()

	req := issueReq()
	req.ExpiresInSeconds = 1
	tok := issueToken(t, svc, req)

	res, err := svc.Validate(ctx, tok.TokenID)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("fresh token invalid: %+v", res)
	}

	svc.WithClock(func() time.Time { return now.Add(2 * time.Second) })
	res, err = svc.Validate(ctx, tok.TokenID)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if res.Valid || res.Reason != "expired" {
		t.Fatalf("result = %+v, want expired", res)
	}

	got, _ := svc.GetToken(ctx, tok.TokenID)
	if got.Status != domain.SDTExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, _ := newService(t, config.Default())
	tok := issueToken(t, svc, issueReq())
	ctx := context.Background()

	if err := svc.Revoke(ctx, tok.TokenID, "partner offboarded"); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if err := svc.Revoke(ctx, tok.TokenID, "again"); err != nil {
		t.Fatalf("second Revoke should be a no-op success, got %v", err)
	}
	got, _ := svc.GetToken(ctx, tok.TokenID)
	if got.Status != domain.SDTRevoked {
		t.Fatalf("status = %s", got.Status)
	}
	if err := svc.Revoke(ctx, "sdt_missing", "x"); err == nil {
		t.Fatalf("expected not_found for unknown token")
	}
}

func TestRotatePreservesScopeAtomically(t *testing.T) {
	svc, _ := newService(t, config.Default())
	req := issueReq()
	req.PartnerID = "partner_1"
	req.SessionRestrictions = &domain.SessionRestriction{MaxAccessCount: 5}
	old := issueToken(t, svc, req)
	ctx := context.Background()

	// Burn some accesses so the reset is observable on the replacement.
	for i := 0; i < 2; i++ {
		if _, err := svc.Access(ctx, old.TokenID, tokens.AccessRequest{
			AccessorID: "acc_1", Action: domain.PermView, ArtifactRef: "art_1",
		}); err != nil {
			t.Fatalf("Access error: %v", err)
		}
	}

	fresh, err := svc.Rotate(ctx, old.TokenID, "user_2")
	if err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
	if fresh.TokenID == old.TokenID {
		t.Fatalf("rotate reused the token id")
	}
	if fresh.Status != domain.SDTActive || fresh.IssuedBy != "user_2" {
		t.Fatalf("replacement = %+v", fresh)
	}
	if len(fresh.ArtifactRefs) != 2 || fresh.PartnerID != "partner_1" ||
		fresh.DeliveryMethod != old.DeliveryMethod || len(fresh.Permissions) != 2 {
		t.Fatalf("scope not preserved: %+v", fresh)
	}
	if fresh.SessionRestrictions.CurrentAccessCount != 0 {
		t.Fatalf("access counter not reset: %d", fresh.SessionRestrictions.CurrentAccessCount)
	}

	gotOld, _ := svc.GetToken(ctx, old.TokenID)
	if gotOld.Status != domain.SDTRevoked {
		t.Fatalf("old token status = %s, want revoked", gotOld.Status)
	}
}

func TestRotateRefusesExpiredToken(t *testing.T) {
	svc, _ := newService(t, config.Default())
	now := time.Now().UTC()
	svc.WithClock(func() time.Time { return now })
	req := issueReq()
	req.ExpiresInSeconds = 1
	tok := issueToken(t, svc, req)
	ctx := context.Background()

	// No Validate or Access in between: the stored status still says
	// active, only the clock has moved.
	svc.WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	_, err := svc.Rotate(ctx, tok.TokenID, "user_1")
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind != domain.KindExpired {
		t.Fatalf("expected expired error, got %v", err)
	}

	got, _ := svc.GetToken(ctx, tok.TokenID)
	if got.Status != domain.SDTExpired {
		t.Fatalf("status = %s, want expired", got.Status)
	}
}

func TestRotateRefusesTerminalToken(t *testing.T) {
	svc, _ := newService(t, config.Default())
	tok := issueToken(t, svc, issueReq())
	ctx := context.Background()
	if err := svc.Revoke(ctx, tok.TokenID, "done"); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	_, err := svc.Rotate(ctx, tok.TokenID, "user_1")
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind != domain.KindStateConflict {
		t.Fatalf("expected state_conflict, got %v", err)
	}
}
