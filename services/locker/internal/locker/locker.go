// Package locker implements the evidence locker core: content-addressed
// artifact storage with an append-only custody chain, integrity
// verification, redaction, supersession and scanned export.
package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trustgate/pkg/config"
	"trustgate/pkg/digest"
	"trustgate/pkg/domain"
	"trustgate/pkg/exportsig"
)

// Repo is the artifact repository. Update and UpdateMany run fn while the
// targeted entities are exclusively held, so callers never observe a
// half-appended custody chain.
type Repo interface {
	Insert(ctx context.Context, a domain.EvidenceArtifact) error
	Get(ctx context.Context, id string) (domain.EvidenceArtifact, error)
	Update(ctx context.Context, id string, fn func(*domain.EvidenceArtifact) error) (domain.EvidenceArtifact, error)
	UpdateMany(ctx context.Context, ids []string, fn func(map[string]*domain.EvidenceArtifact) error) error
	Query(ctx context.Context, q Query) (QueryResult, error)
	Stats(ctx context.Context) (Stats, error)
}

// BlobStore resolves an artifact's storage URI to its raw content for
// export scanning. A URI with no stored blob yields found=false.
type BlobStore interface {
	Put(ctx context.Context, uri string, content []byte) error
	Get(ctx context.Context, uri string) (content []byte, found bool, err error)
}

type Query struct {
	TenantID      string                  `json:"tenant_id"`
	WorkspaceID   string                  `json:"workspace_id,omitempty"`
	ProjectID     string                  `json:"project_id,omitempty"`
	Types         []domain.ArtifactType   `json:"artifact_types,omitempty"`
	Statuses      []domain.ArtifactStatus `json:"status,omitempty"`
	CreatedAfter  *time.Time              `json:"created_after,omitempty"`
	CreatedBefore *time.Time              `json:"created_before,omitempty"`
	Limit         int                     `json:"limit,omitempty"`
	Cursor        string                  `json:"cursor,omitempty"`
}

type QueryResult struct {
	Artifacts  []domain.EvidenceArtifact `json:"artifacts"`
	TotalCount int                       `json:"total_count"`
	NextCursor string                    `json:"next_cursor,omitempty"`
}

type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByType   map[string]int `json:"by_type"`
}

type Service struct {
	repo   Repo
	blobs  BlobStore
	hasher digest.Hasher
	cfg    config.Config
	policy config.Policy
	signer *exportsig.Signer
	now    func() time.Time
}

func New(repo Repo, blobs BlobStore, hasher digest.Hasher, cfg config.Config, policy config.Policy) *Service {
	s := &Service{
		repo:   repo,
		blobs:  blobs,
		hasher: hasher,
		cfg:    cfg,
		policy: policy,
		now:    time.Now,
	}
	if cfg.ExportSigningKey != "" {
		s.signer = exportsig.NewSigner([]byte(cfg.ExportSigningKey), 24*time.Hour)
	}
	return s
}

// WithClock overrides the service clock; tests use it to drive expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type StoreRequest struct {
	TenantID    string              `json:"tenant_id"`
	WorkspaceID string              `json:"workspace_id"`
	ProjectID   string              `json:"project_id,omitempty"`
	Type        domain.ArtifactType `json:"type"`
	Label       string              `json:"label"`
	ContentHash string              `json:"content_hash"`
	StorageURI  string              `json:"storage_uri"`
	SizeBytes   int64               `json:"size_bytes"`
	MimeType    string              `json:"mime_type"`
	CreatedBy   string              `json:"created_by"`
	Retention   string              `json:"retention,omitempty"`
	Metadata    domain.Metadata     `json:"metadata,omitempty"`
	// Content, when present, is persisted to the blob store and must
	// hash to ContentHash.
	Content []byte `json:"content,omitempty"`
}

// Store validates and persists a new artifact with status pending and a
// single created custody entry.
func (s *Service) Store(ctx context.Context, req StoreRequest) (domain.EvidenceArtifact, error) {
	if req.TenantID == "" || req.WorkspaceID == "" {
		return domain.EvidenceArtifact{}, domain.Validation("TENANT_REQUIRED", "tenant_id and workspace_id are required")
	}
	if req.Label == "" {
		return domain.EvidenceArtifact{}, domain.Validation("LABEL_REQUIRED", "label is required")
	}
	if req.SizeBytes > s.cfg.MaxArtifactSizeBytes {
		return domain.EvidenceArtifact{}, domain.Validation("SIZE_EXCEEDED",
			fmt.Sprintf("artifact size %d exceeds maximum %d bytes", req.SizeBytes, s.cfg.MaxArtifactSizeBytes))
	}
	if !s.policy.MIMEAllowed(req.MimeType) {
		return domain.EvidenceArtifact{}, domain.Validation("UNSUPPORTED_MIME_TYPE",
			fmt.Sprintf("MIME type %q is not allowed", req.MimeType))
	}
	if !digest.WellFormed(req.ContentHash) {
		return domain.EvidenceArtifact{}, domain.Validation("INVALID_HASH", "content_hash must be a well-formed algo:hex digest")
	}
	if err := req.Metadata.Validate(); err != nil {
		return domain.EvidenceArtifact{}, err
	}
	if len(req.Content) > 0 {
		if got := s.hasher.Sum(req.Content); got != req.ContentHash {
			return domain.EvidenceArtifact{}, domain.Validation("INVALID_HASH",
				"content does not hash to the declared content_hash")
		}
	}

	now := s.now().UTC()
	a := domain.EvidenceArtifact{
		ArtifactID:  "art_" + uuid.NewString(),
		TenantID:    req.TenantID,
		WorkspaceID: req.WorkspaceID,
		ProjectID:   req.ProjectID,
		Type:        req.Type,
		Label:       req.Label,
		ContentHash: req.ContentHash,
		StorageURI:  req.StorageURI,
		SizeBytes:   req.SizeBytes,
		MimeType:    req.MimeType,
		Status:      domain.ArtifactPending,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		CustodyChain: []domain.CustodyEntry{{
			Action:    domain.CustodyCreated,
			Actor:     req.CreatedBy,
			Timestamp: now,
			Details:   "Artifact stored: " + req.Label,
		}},
		Retention: req.Retention,
		Metadata:  req.Metadata,
	}
	if a.Retention == "" {
		a.Retention = s.cfg.DefaultRetentionPeriod
	}

	if len(req.Content) > 0 && req.StorageURI != "" {
		if err := s.blobs.Put(ctx, req.StorageURI, req.Content); err != nil {
			return domain.EvidenceArtifact{}, fmt.Errorf("store blob: %w", err)
		}
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		return domain.EvidenceArtifact{}, err
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.EvidenceArtifact, error) {
	return s.repo.Get(ctx, id)
}

type VerifyResult struct {
	Valid     bool                     `json:"valid"`
	HashMatch bool                     `json:"hash_match"`
	Artifact  *domain.EvidenceArtifact `json:"artifact,omitempty"`
}

// Verify compares the stored hash against expectedHash (empty means "just
// check status"). A matching pending artifact transitions to verified with
// a custody entry, exactly once; repeated calls are idempotent. Redacted
// and superseded artifacts are never valid again regardless of the hash.
func (s *Service) Verify(ctx context.Context, id, expectedHash string) (VerifyResult, error) {
	var res VerifyResult
	a, err := s.repo.Update(ctx, id, func(a *domain.EvidenceArtifact) error {
		res.HashMatch = expectedHash == "" || a.ContentHash == expectedHash
		if res.HashMatch && a.Status == domain.ArtifactPending {
			a.Status = domain.ArtifactVerified
			a.CustodyChain = append(a.CustodyChain, domain.CustodyEntry{
				Action:    domain.CustodyVerified,
				Actor:     "system",
				Timestamp: s.now().UTC(),
				Details:   "Content hash verified",
			})
		}
		res.Valid = a.Trusted() && res.HashMatch
		return nil
	})
	if err != nil {
		return VerifyResult{}, err
	}
	res.Artifact = &a
	return res, nil
}

// Query lists a tenant's artifacts newest-first with offset-cursor
// pagination. The tenant filter is mandatory.
func (s *Service) Query(ctx context.Context, q Query) (QueryResult, error) {
	if q.TenantID == "" {
		return QueryResult{}, domain.Validation("TENANT_REQUIRED", "tenant_id is required")
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	return s.repo.Query(ctx, q)
}

type CustodyRequest struct {
	Action  domain.CustodyAction `json:"action"`
	Actor   string               `json:"actor"`
	Details string               `json:"details,omitempty"`
}

// AddCustodyEntry is the single append path for custody records. Entries
// are never edited or removed.
func (s *Service) AddCustodyEntry(ctx context.Context, id string, req CustodyRequest) (domain.EvidenceArtifact, error) {
	if req.Actor == "" {
		return domain.EvidenceArtifact{}, domain.Validation("ACTOR_REQUIRED", "custody entries must carry an actor")
	}
	switch req.Action {
	case domain.CustodyAccessed, domain.CustodySigned, domain.CustodyExported, domain.CustodyVerified:
	default:
		return domain.EvidenceArtifact{}, domain.Validation("INVALID_CUSTODY_ACTION",
			fmt.Sprintf("custody action %q cannot be appended directly", req.Action))
	}
	return s.repo.Update(ctx, id, func(a *domain.EvidenceArtifact) error {
		a.CustodyChain = append(a.CustodyChain, domain.CustodyEntry{
			Action:    req.Action,
			Actor:     req.Actor,
			Timestamp: s.now().UTC(),
			Details:   req.Details,
		})
		return nil
	})
}

// Redact marks the artifact terminally untrusted. The record itself
// survives; the audit trail must outlive the content.
func (s *Service) Redact(ctx context.Context, id, reason, actor string) (domain.EvidenceArtifact, error) {
	if actor == "" {
		return domain.EvidenceArtifact{}, domain.Validation("ACTOR_REQUIRED", "redact must carry an actor")
	}
	return s.repo.Update(ctx, id, func(a *domain.EvidenceArtifact) error {
		if a.Status.Terminal() {
			return domain.StateConflict("ALREADY_TERMINAL",
				fmt.Sprintf("artifact %s is already %s", a.ArtifactID, a.Status))
		}
		a.Status = domain.ArtifactRedacted
		a.CustodyChain = append(a.CustodyChain, domain.CustodyEntry{
			Action:    domain.CustodyRedacted,
			Actor:     actor,
			Timestamp: s.now().UTC(),
			Details:   reason,
		})
		return nil
	})
}

// Supersede points the artifact at a replacement that must already exist.
func (s *Service) Supersede(ctx context.Context, id, replacementID, actor string) (domain.EvidenceArtifact, error) {
	if actor == "" {
		return domain.EvidenceArtifact{}, domain.Validation("ACTOR_REQUIRED", "supersede must carry an actor")
	}
	if replacementID == id {
		return domain.EvidenceArtifact{}, domain.Validation("SELF_SUPERSEDE", "an artifact cannot supersede itself")
	}
	if _, err := s.repo.Get(ctx, replacementID); err != nil {
		return domain.EvidenceArtifact{}, err
	}
	return s.repo.Update(ctx, id, func(a *domain.EvidenceArtifact) error {
		if a.Status.Terminal() {
			return domain.StateConflict("ALREADY_TERMINAL",
				fmt.Sprintf("artifact %s is already %s", a.ArtifactID, a.Status))
		}
		a.Status = domain.ArtifactSuperseded
		a.CustodyChain = append(a.CustodyChain, domain.CustodyEntry{
			Action:    domain.CustodySuperseded,
			Actor:     actor,
			Timestamp: s.now().UTC(),
			Details:   "Superseded by " + replacementID,
		})
		return nil
	})
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}
