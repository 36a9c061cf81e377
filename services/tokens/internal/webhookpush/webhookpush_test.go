package webhookpush

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"trustgate/pkg/webhooks"
)

func TestPushSetsSignatureHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(204)
	}))
	defer srv.Close()

	p := New("secret", 1024)
	if err := p.Push(context.Background(), srv.URL, "evt_1", "sdt.issued", map[string]string{"token_id": "sdt_1"}); err != nil {
		t.Fatalf("Push error: %v", err)
	}
	if got.Get(webhooks.SignatureHeader) == "" {
		t.Fatalf("missing signature header")
	}
	if got.Get(webhooks.EventIDHeader) != "evt_1" || got.Get(webhooks.EventTypeHeader) != "sdt.issued" {
		t.Fatalf("event headers = %v", got)
	}
}

func TestPushRefusesOversizedPayload(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := New("secret", 16)
	err := p.Push(context.Background(), srv.URL, "evt_1", "sdt.issued", map[string]string{
		"payload": strings.Repeat("x", 64),
	})
	if err == nil || !strings.Contains(err.Error(), "limit") {
		t.Fatalf("expected size refusal, got %v", err)
	}
	if called {
		t.Fatalf("oversized payload was sent")
	}
}

func TestPushRequiresSecret(t *testing.T) {
	p := New("", 1024)
	if err := p.Push(context.Background(), "http://localhost:0", "evt_1", "sdt.issued", nil); err == nil {
		t.Fatalf("expected error with empty secret")
	}
}

func TestPushSurfacesEndpointErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := New("secret", 1024).Push(context.Background(), srv.URL, "evt_1", "sdt.issued", nil); err == nil {
		t.Fatalf("expected error on 502")
	}
}
