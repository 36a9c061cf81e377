package locker

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"trustgate/pkg/digest"
	"trustgate/pkg/domain"
	"trustgate/pkg/exportsig"
	"trustgate/pkg/secretscan"
)

type ExportRequest struct {
	ArtifactIDs []string `json:"artifact_ids"`
	Format      string   `json:"format"`
	Exporter    string   `json:"exporter"`
}

type ExportResult struct {
	BundleURI     string                    `json:"bundle_uri"`
	ManifestHash  string                    `json:"manifest_hash"`
	ManifestToken string                    `json:"manifest_token,omitempty"`
	Artifacts     []domain.EvidenceArtifact `json:"artifacts"`
}

var exportFormats = map[string]bool{"pdf": true, "csv": true, "json": true}

// Export builds a signed bundle reference over the requested artifacts. It
// fails outright, touching nothing, if any id is unknown, any artifact is
// redacted or superseded, or any artifact's content carries a secret-like
// pattern. On success every included artifact gets an exported custody
// entry appended under the same repository hold, so no partial export is
// ever observable.
func (s *Service) Export(ctx context.Context, req ExportRequest) (ExportResult, error) {
	if len(req.ArtifactIDs) == 0 {
		return ExportResult{}, domain.Validation("EMPTY_EXPORT", "artifact_ids must be non-empty")
	}
	if !exportFormats[req.Format] {
		return ExportResult{}, domain.Validation("INVALID_FORMAT",
			fmt.Sprintf("format %q is not one of pdf, csv, json", req.Format))
	}
	if req.Exporter == "" {
		return ExportResult{}, domain.Validation("ACTOR_REQUIRED", "export must carry an exporter")
	}

	// Scan outside the repository hold; blob content never changes for a
	// stored artifact.
	for _, id := range req.ArtifactIDs {
		a, err := s.repo.Get(ctx, id)
		if err != nil {
			return ExportResult{}, err
		}
		if a.StorageURI == "" {
			continue
		}
		content, found, err := s.blobs.Get(ctx, a.StorageURI)
		if err != nil {
			return ExportResult{}, fmt.Errorf("read blob for %s: %w", id, err)
		}
		if !found {
			continue
		}
		if findings := secretscan.Scan(content); len(findings) > 0 {
			return ExportResult{}, domain.PermissionDenied("SECRET_DETECTED",
				fmt.Sprintf("artifact %s contains %d secret-like pattern(s) and cannot leave the tenant boundary", id, len(findings)))
		}
	}

	var out ExportResult
	err := s.repo.UpdateMany(ctx, req.ArtifactIDs, func(byID map[string]*domain.EvidenceArtifact) error {
		entries := make([]digest.ManifestEntry, 0, len(req.ArtifactIDs))
		artifacts := make([]domain.EvidenceArtifact, 0, len(req.ArtifactIDs))
		for _, id := range req.ArtifactIDs {
			a, ok := byID[id]
			if !ok {
				return domain.NotFound("artifact", id)
			}
			if !a.Trusted() {
				return domain.StateConflict("UNTRUSTED_ARTIFACT",
					fmt.Sprintf("artifact %s is %s and cannot be exported", id, a.Status))
			}
			entries = append(entries, digest.ManifestEntry{ArtifactID: a.ArtifactID, ContentHash: a.ContentHash})
		}
		now := s.now().UTC()
		for _, id := range req.ArtifactIDs {
			a := byID[id]
			a.CustodyChain = append(a.CustodyChain, domain.CustodyEntry{
				Action:    domain.CustodyExported,
				Actor:     req.Exporter,
				Timestamp: now,
				Details:   "Exported as " + req.Format + " bundle",
			})
			artifacts = append(artifacts, a.Clone())
		}

		tenantID := byID[req.ArtifactIDs[0]].TenantID
		bundleID := "bundle_" + uuid.NewString()
		out = ExportResult{
			BundleURI:    fmt.Sprintf("trustgate://evidence/%s/exports/%s.%s", tenantID, bundleID, req.Format),
			ManifestHash: digest.ManifestHash(s.hasher, entries),
			Artifacts:    artifacts,
		}
		if s.signer != nil {
			token, err := s.signer.Sign(exportsig.ManifestClaims{
				TenantID:     tenantID,
				BundleURI:    out.BundleURI,
				ManifestHash: out.ManifestHash,
				Exporter:     req.Exporter,
				ArtifactIDs:  append([]string(nil), req.ArtifactIDs...),
			}, now)
			if err != nil {
				return fmt.Errorf("sign export manifest: %w", err)
			}
			out.ManifestToken = token
		}
		return nil
	})
	if err != nil {
		return ExportResult{}, err
	}
	return out, nil
}
