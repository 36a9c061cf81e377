package exportsig

import (
	"errors"
	"testing"
	"time"
)

func TestSignThenVerify(t *testing.T) {
	key := []byte("export-signing-key")
	s := NewSigner(key, time.Hour)
	now := time.Now()

	token, err := s.Sign(ManifestClaims{
		TenantID:     "ten_1",
		BundleURI:    "trustgate://evidence/ten_1/exports/bundle_abc.json",
		ManifestHash: "sha256:deadbeef",
		Exporter:     "user_1",
		ArtifactIDs:  []string{"art_1", "art_2"},
	}, now)
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	claims, err := Verify(token, key)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.ManifestHash != "sha256:deadbeef" {
		t.Fatalf("unexpected manifest hash: %s", claims.ManifestHash)
	}
	if claims.TenantID != "ten_1" || len(claims.ArtifactIDs) != 2 {
		t.Fatalf("unexpected claims: %#v", claims)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	s := NewSigner([]byte("key-a"), time.Hour)
	token, err := s.Sign(ManifestClaims{ManifestHash: "sha256:aa"}, time.Now())
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if _, err := Verify(token, []byte("key-b")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	key := []byte("key")
	s := NewSigner(key, time.Minute)
	token, err := s.Sign(ManifestClaims{ManifestHash: "sha256:aa"}, time.Now().Add(-2*time.Minute))
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}
	if _, err := Verify(token, key); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	if _, err := Verify("not-a-token", []byte("key")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
