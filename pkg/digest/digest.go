// Package digest provides the content-hash primitives for evidence
// artifacts and export manifests. The algorithm sits behind Hasher so it
// can be swapped without touching call sites; SHA-256 is the default.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
)

// Hasher produces prefixed hex digests like "sha256:<hex>".
type Hasher interface {
	// Algorithm is the prefix used in produced digests.
	Algorithm() string
	// Sum hashes raw bytes.
	Sum(data []byte) string
	// SumObject hashes the canonical JSON encoding of v.
	SumObject(v any) (string, []byte, error)
}

type sha256Hasher struct{}

// SHA256 returns the default Hasher.
func SHA256() Hasher { return sha256Hasher{} }

func (sha256Hasher) Algorithm() string { return "sha256" }

func (sha256Hasher) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (h sha256Hasher) SumObject(v any) (string, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	return h.Sum(b), b, nil
}

var reHash = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*:[0-9a-f]{16,128}$`)

// WellFormed reports whether s looks like an "<algo>:<lower-hex>" digest.
// It does not require a specific algorithm; the locker stores whatever the
// producing component hashed with.
func WellFormed(s string) bool {
	return reHash.MatchString(strings.TrimSpace(s))
}

// ManifestEntry is one (artifact id, content hash) pair in an export
// manifest.
type ManifestEntry struct {
	ArtifactID  string `json:"artifact_id"`
	ContentHash string `json:"content_hash"`
}

// ManifestHash computes the bundle manifest hash over the ordered
// "id:hash" lines. Order matters: the same artifacts in a different order
// produce a different manifest hash.
func ManifestHash(h Hasher, entries []ManifestEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.ArtifactID)
		b.WriteString(":")
		b.WriteString(e.ContentHash)
		b.WriteString("\n")
	}
	return h.Sum([]byte(b.String()))
}
