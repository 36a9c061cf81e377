package tokens_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trustgate/pkg/config"
	"trustgate/pkg/domain"
	"trustgate/pkg/webhooks"
	"trustgate/services/tokens/internal/memstore"
	"trustgate/services/tokens/internal/tokens"
	"trustgate/services/tokens/internal/webhookpush"
)

func webhookIssueReq(endpoint string) tokens.IssueRequest {
	req := issueReq()
	req.DeliveryMethod = domain.DeliveryWebhookPush
	req.WebhookEndpoint = endpoint
	req.PartnerID = "partner_1"
	return req
}

func TestIssuePushesSignedWebhook(t *testing.T) {
	secret := "push-secret"
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(200)
	}))
	defer srv.Close()

	cfg := config.Default()
	svc := tokens.New(memstore.New(), memstore.NewAccessLogs(), webhookpush.New(secret, cfg.MaxWebhookPayloadBytes), cfg)
	tok := issueToken(t, svc, webhookIssueReq(srv.URL))

	if gotBody == nil {
		t.Fatalf("no webhook delivered")
	}
	res, err := webhooks.NewHMACVerifier().Verify(gotHeaders, gotBody, time.Now(), secret)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !res.Valid || res.EventType != "sdt.issued" {
		t.Fatalf("verification = %+v", res)
	}

	got, _ := svc.GetToken(context.Background(), tok.TokenID)
	if !hasAuditEntry(got.AuditTrail, "push_delivered") {
		t.Fatalf("audit trail missing push_delivered: %v", got.AuditTrail)
	}
}

func TestIssuePushFailureDoesNotFailIssuance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.Default()
	svc := tokens.New(memstore.New(), memstore.NewAccessLogs(), webhookpush.New("push-secret", cfg.MaxWebhookPayloadBytes), cfg)
	tok := issueToken(t, svc, webhookIssueReq(srv.URL))

	got, err := svc.GetToken(context.Background(), tok.TokenID)
	if err != nil {
		t.Fatalf("GetToken error: %v", err)
	}
	if got.Status != domain.SDTActive {
		t.Fatalf("push failure changed token status: %s", got.Status)
	}
	if !hasAuditEntry(got.AuditTrail, "push_failed") {
		t.Fatalf("audit trail missing push_failed: %v", got.AuditTrail)
	}
}

func TestIssueSkipsPushWhenWebhooksDisabled(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.PartnerWebhooksEnabled = false
	svc := tokens.New(memstore.New(), memstore.NewAccessLogs(), webhookpush.New("push-secret", cfg.MaxWebhookPayloadBytes), cfg)
	issueToken(t, svc, webhookIssueReq(srv.URL))

	if called {
		t.Fatalf("push delivered with partner webhooks disabled")
	}
}

func hasAuditEntry(trail []string, want string) bool {
	for _, e := range trail {
		if strings.Contains(e, want) {
			return true
		}
	}
	return false
}
