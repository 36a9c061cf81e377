package gatesdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"trustgate/pkg/domain"
)

func TestClientPlugsAndInstall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/certgate/plugs/plug_1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"plug_id": "plug_1", "name": "ci-reporter",
				"badges": []string{"certified"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/certgate/plugs":
			if r.URL.Query().Get("certified_only") != "true" {
				t.Errorf("missing certified_only query, got %q", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"plugs": []map[string]any{{"plug_id": "plug_1"}},
				"total": 1,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/certgate/installs/validate":
			var in domain.InstallRequest
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in.PlugID != "plug_1" || in.InstallMode != domain.InstallOneClick {
				t.Errorf("unexpected install request: %+v", in)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true, "install_id": "inst_1", "plug_id": "plug_1",
				"install_mode": "one_click", "attestation_ref": "art_7",
			})
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	ctx := context.Background()

	p, err := c.Plug(ctx, "plug_1")
	if err != nil {
		t.Fatalf("Plug() error: %v", err)
	}
	if p.Name != "ci-reporter" || len(p.Badges) != 1 {
		t.Fatalf("Plug() = %+v", p)
	}

	list, err := c.Plugs(ctx, ListOptions{CertifiedOnly: true})
	if err != nil {
		t.Fatalf("Plugs() error: %v", err)
	}
	if list.Total != 1 || len(list.Plugs) != 1 {
		t.Fatalf("Plugs() = %+v", list)
	}

	res, err := c.ValidateInstall(ctx, domain.InstallRequest{
		PlugID:      "plug_1",
		TenantID:    "ten_1",
		InstallMode: domain.InstallOneClick,
	})
	if err != nil {
		t.Fatalf("ValidateInstall() error: %v", err)
	}
	if !res.Success || res.AttestationRef != "art_7" {
		t.Fatalf("ValidateInstall() = %+v", res)
	}
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "").Stats(context.Background()); err == nil {
		t.Fatalf("expected error on 500")
	}
}
