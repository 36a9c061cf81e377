package digest

import (
	"strings"
	"testing"
)

func TestSumObjectDeterministicForSameState(t *testing.T) {
	h := SHA256()
	a := map[string]any{"b": 2, "a": map[string]any{"y": 2, "x": 1}}
	b := map[string]any{"a": map[string]any{"x": 1, "y": 2}, "b": 2}

	ha, _, err := h.SumObject(a)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	hb, _, err := h.SumObject(b)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ha != hb {
		t.Fatalf("expected same hash, got %s vs %s", ha, hb)
	}
	if !strings.HasPrefix(ha, "sha256:") {
		t.Fatalf("expected sha256 prefix, got %s", ha)
	}
}

func TestSumObjectChangesWhenStateChanges(t *testing.T) {
	h := SHA256()
	ha, _, _ := h.SumObject(map[string]any{"a": 1})
	hb, _, _ := h.SumObject(map[string]any{"a": 2})
	if ha == hb {
		t.Fatalf("expected different hashes")
	}
}

func TestWellFormed(t *testing.T) {
	h := SHA256()
	if !WellFormed(h.Sum([]byte("content"))) {
		t.Fatalf("expected produced digest to be well-formed")
	}
	for _, bad := range []string{"", "sha256:", "nohash", "sha256:XYZ", "sha256:abc"} {
		if WellFormed(bad) {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestManifestHashOrderSensitive(t *testing.T) {
	h := SHA256()
	a := ManifestEntry{ArtifactID: "art_1", ContentHash: h.Sum([]byte("one"))}
	b := ManifestEntry{ArtifactID: "art_2", ContentHash: h.Sum([]byte("two"))}

	ab := ManifestHash(h, []ManifestEntry{a, b})
	ab2 := ManifestHash(h, []ManifestEntry{a, b})
	ba := ManifestHash(h, []ManifestEntry{b, a})

	if ab != ab2 {
		t.Fatalf("expected deterministic manifest hash")
	}
	if ab == ba {
		t.Fatalf("expected order to change manifest hash")
	}
}
