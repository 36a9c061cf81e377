package lockerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trustgate/pkg/digest"
	"trustgate/pkg/domain"
	"trustgate/services/certgate/internal/certgate"
)

func TestStoreAttestation(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/locker/artifacts" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(201)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"artifact": map[string]any{"artifact_id": "art_9"},
		})
	}))
	defer srv.Close()

	ref, err := New(srv.URL).StoreAttestation(context.Background(), certgate.Attestation{
		InstallID:   "inst_1",
		PlugID:      "plug_1",
		PlugVersion: "1.0.0",
		TenantID:    "ten_1",
		WorkspaceID: "ws_1",
		InstallMode: domain.InstallOneClick,
		Timestamp:   time.Unix(1700000000, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("StoreAttestation error: %v", err)
	}
	if ref != "art_9" {
		t.Fatalf("ref = %s", ref)
	}
	if got["tenant_id"] != "ten_1" || got["type"] != "attestation" {
		t.Fatalf("unexpected store body: %+v", got)
	}
	if hash, _ := got["content_hash"].(string); !digest.WellFormed(hash) {
		t.Fatalf("content_hash not well-formed: %v", got["content_hash"])
	}
}

func TestStoreAttestationServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := New(srv.URL).StoreAttestation(context.Background(), certgate.Attestation{}); err == nil {
		t.Fatalf("expected error on 502")
	}
}
