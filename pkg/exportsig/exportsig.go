// Package exportsig mints and verifies signed export manifest tokens.
// A signed manifest lets an external party check offline that a bundle
// reference and its manifest hash were produced by the locker.
package exportsig

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid export manifest token")
	ErrExpiredToken = errors.New("export manifest token expired")
)

// ManifestClaims bind a bundle locator to its manifest hash and exporter.
type ManifestClaims struct {
	TenantID     string   `json:"tenant_id"`
	BundleURI    string   `json:"bundle_uri"`
	ManifestHash string   `json:"manifest_hash"`
	Exporter     string   `json:"exporter"`
	ArtifactIDs  []string `json:"artifact_ids"`
	jwt.RegisteredClaims
}

type Signer struct {
	key []byte
	ttl time.Duration
}

func NewSigner(key []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{key: key, ttl: ttl}
}

// Sign mints an HS256 token over the manifest claims.
func (s *Signer) Sign(claims ManifestClaims, now time.Time) (string, error) {
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	claims.Issuer = "trustgate-locker"
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.key)
}

// Verify parses and validates a token produced by Sign.
func Verify(token string, key []byte) (*ManifestClaims, error) {
	var claims ManifestClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
