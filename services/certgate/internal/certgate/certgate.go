// Package certgate implements the certification gate: a state machine over
// a fixed evidence bag that decides whether a third-party plug may be
// listed with trust badges and installed.
package certgate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trustgate/pkg/config"
	"trustgate/pkg/domain"
)

// PlugRepo is the plug listing repository. Update runs fn while the
// listing is exclusively held, so badge sets are never computed from a
// partially updated evidence bag.
type PlugRepo interface {
	Insert(ctx context.Context, p domain.PlugListing) error
	Get(ctx context.Context, id string) (domain.PlugListing, error)
	Update(ctx context.Context, id string, fn func(*domain.PlugListing) error) (domain.PlugListing, error)
	List(ctx context.Context, f ListFilter) ([]domain.PlugListing, error)
	Stats(ctx context.Context) (Stats, error)
}

// InstallLog records every install authorization attempt, allowed or not.
type InstallLog interface {
	Append(ctx context.Context, att domain.InstallAttempt) error
	List(ctx context.Context, plugID string) ([]domain.InstallAttempt, error)
	Count(ctx context.Context) (int, error)
}

// AttestationWriter stores the install attestation artifact produced by a
// successful validation. The evidence locker client implements it.
type AttestationWriter interface {
	StoreAttestation(ctx context.Context, att Attestation) (artifactRef string, err error)
}

// Attestation is the proof record written back to the evidence locker on
// every allowed install.
type Attestation struct {
	InstallID   string             `json:"install_id"`
	PlugID      string             `json:"plug_id"`
	PlugVersion string             `json:"plug_version"`
	TenantID    string             `json:"tenant_id"`
	WorkspaceID string             `json:"workspace_id"`
	InstallMode domain.InstallMode `json:"install_mode"`
	Badges      []domain.Badge     `json:"badges"`
	Timestamp   time.Time          `json:"timestamp"`
}

type ListFilter struct {
	CertifiedOnly bool
	Badge         domain.Badge
	Category      string
}

type Stats struct {
	TotalPlugs    int            `json:"total_plugs"`
	ByStatus      map[string]int `json:"by_status"`
	TotalInstalls int            `json:"total_installs"`
}

type Service struct {
	plugs    PlugRepo
	installs InstallLog
	attest   AttestationWriter
	cfg      config.Config
	policy   config.Policy
	now      func() time.Time
}

func New(plugs PlugRepo, installs InstallLog, attest AttestationWriter, cfg config.Config, policy config.Policy) *Service {
	return &Service{plugs: plugs, installs: installs, attest: attest, cfg: cfg, policy: policy, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type RegisterRequest struct {
	Name          string               `json:"name"`
	Version       string               `json:"version"`
	PublisherID   string               `json:"publisher_id"`
	PublisherName string               `json:"publisher_name,omitempty"`
	Description   string               `json:"description"`
	Category      string               `json:"category"`
	Tags          []string             `json:"tags,omitempty"`
	InstallModes  []domain.InstallMode `json:"install_modes"`
}

// RegisterPlug creates a listing in status pending with no badges. Which
// evidence checks are required comes from the review policy; all start
// unset.
func (s *Service) RegisterPlug(ctx context.Context, req RegisterRequest) (domain.PlugListing, error) {
	if req.Name == "" || req.Version == "" || req.PublisherID == "" {
		return domain.PlugListing{}, domain.Validation("PLUG_FIELDS_REQUIRED", "name, version and publisher_id are required")
	}
	if len(req.InstallModes) == 0 {
		return domain.PlugListing{}, domain.Validation("INSTALL_MODES_REQUIRED", "at least one install mode is required")
	}
	for _, m := range req.InstallModes {
		if !domain.ValidInstallMode(m) {
			return domain.PlugListing{}, domain.Validation("INVALID_INSTALL_MODE",
				fmt.Sprintf("install mode %q is not one of one_click, sandbox, managed", m))
		}
	}

	evidence := domain.NewCertificationEvidence()
	for _, name := range domain.CheckNames() {
		evidence.Check(name).Required = s.policy.RequiredCheck(name)
	}

	now := s.now().UTC()
	p := domain.PlugListing{
		PlugID:        "plug_" + uuid.NewString(),
		Name:          req.Name,
		Version:       req.Version,
		PublisherID:   req.PublisherID,
		PublisherName: req.PublisherName,
		Description:   req.Description,
		Category:      req.Category,
		Tags:          req.Tags,
		Badges:        []domain.Badge{},
		InstallModes:  req.InstallModes,
		Certification: domain.CertificationRecord{
			Status:   domain.CertPending,
			Evidence: evidence,
		},
		EvidenceRefs: []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.plugs.Insert(ctx, p); err != nil {
		return domain.PlugListing{}, err
	}
	return p, nil
}

func (s *Service) GetPlug(ctx context.Context, id string) (domain.PlugListing, error) {
	return s.plugs.Get(ctx, id)
}

func (s *Service) ListPlugs(ctx context.Context, f ListFilter) ([]domain.PlugListing, error) {
	return s.plugs.List(ctx, f)
}

// SubmitForReview moves a pending listing into review.
func (s *Service) SubmitForReview(ctx context.Context, id string) (domain.CertificationRecord, error) {
	p, err := s.plugs.Update(ctx, id, func(p *domain.PlugListing) error {
		if p.Certification.Status != domain.CertPending {
			return domain.StateConflict("NOT_PENDING",
				fmt.Sprintf("plug is %s; only pending listings can be submitted for review", p.Certification.Status))
		}
		p.Certification.Status = domain.CertInReview
		p.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return domain.CertificationRecord{}, err
	}
	return p.Certification, nil
}

type CheckResult struct {
	Passed      bool   `json:"passed"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// RunChecks updates the named evidence checks and recomputes badges.
// Unknown check names are rejected outright rather than silently skipped.
func (s *Service) RunChecks(ctx context.Context, id string, results map[string]CheckResult) (domain.CertificationEvidence, error) {
	if len(results) == 0 {
		return domain.CertificationEvidence{}, domain.Validation("EMPTY_CHECKS", "at least one check result is required")
	}
	p, err := s.plugs.Update(ctx, id, func(p *domain.PlugListing) error {
		switch p.Certification.Status {
		case domain.CertPending, domain.CertInReview:
		default:
			return domain.StateConflict("CHECKS_CLOSED",
				fmt.Sprintf("checks cannot be updated while plug is %s", p.Certification.Status))
		}
		now := s.now().UTC()
		for name, res := range results {
			check := p.Certification.Evidence.Check(name)
			if check == nil {
				return domain.Validation("UNKNOWN_CHECK", fmt.Sprintf("%q is not a recognized evidence check", name))
			}
			check.Passed = res.Passed
			check.ArtifactRef = res.ArtifactRef
			check.Notes = res.Notes
			ts := now
			check.CheckedAt = &ts
			if res.ArtifactRef != "" {
				p.EvidenceRefs = append(p.EvidenceRefs, res.ArtifactRef)
			}
		}
		p.Badges = domain.ComputeBadges(p.Certification.Evidence, p.InstallModes)
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.CertificationEvidence{}, err
	}
	return p.Certification.Evidence, nil
}

// Certify marks the listing certified. It fails with a typed error naming
// every still-failing required check; certified-with-incomplete-evidence
// is structurally unreachable.
func (s *Service) Certify(ctx context.Context, id, certifier string) (domain.CertificationRecord, error) {
	if certifier == "" {
		return domain.CertificationRecord{}, domain.Validation("CERTIFIER_REQUIRED", "certify must carry a certifier")
	}
	p, err := s.plugs.Update(ctx, id, func(p *domain.PlugListing) error {
		if failing := domain.FailedRequiredChecks(p.Certification.Evidence); len(failing) > 0 {
			return &domain.ChecksIncompleteError{Failing: failing}
		}
		switch p.Certification.Status {
		case domain.CertPending, domain.CertInReview:
		default:
			return domain.StateConflict("NOT_REVIEWABLE",
				fmt.Sprintf("plug is %s and cannot be certified", p.Certification.Status))
		}
		now := s.now().UTC()
		p.Certification.Status = domain.CertCertified
		p.Certification.CertifiedAt = &now
		p.Certification.CertifiedBy = certifier
		p.Certification.LastReviewedAt = &now
		p.Badges = domain.ComputeBadges(p.Certification.Evidence, p.InstallModes)
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.CertificationRecord{}, err
	}
	return p.Certification, nil
}

// Reject closes review with a recorded reason.
func (s *Service) Reject(ctx context.Context, id, reason string) (domain.CertificationRecord, error) {
	p, err := s.plugs.Update(ctx, id, func(p *domain.PlugListing) error {
		switch p.Certification.Status {
		case domain.CertPending, domain.CertInReview:
		default:
			return domain.StateConflict("NOT_REVIEWABLE",
				fmt.Sprintf("plug is %s and cannot be rejected", p.Certification.Status))
		}
		now := s.now().UTC()
		p.Certification.Status = domain.CertRejected
		p.Certification.LastReviewedAt = &now
		p.Certification.ReviewNotes = reason
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.CertificationRecord{}, err
	}
	return p.Certification, nil
}

// Revoke withdraws a certification and strips the certified badge and
// everything that depends on it. Checks are not re-run.
func (s *Service) Revoke(ctx context.Context, id, reason string) (domain.CertificationRecord, error) {
	p, err := s.plugs.Update(ctx, id, func(p *domain.PlugListing) error {
		switch p.Certification.Status {
		case domain.CertCertified, domain.CertExceptionApproved:
		default:
			return domain.StateConflict("NOT_CERTIFIED",
				fmt.Sprintf("plug is %s and has nothing to revoke", p.Certification.Status))
		}
		now := s.now().UTC()
		p.Certification.Status = domain.CertRevoked
		p.Certification.LastReviewedAt = &now
		p.Certification.ReviewNotes = reason
		kept := p.Badges[:0]
		for _, b := range p.Badges {
			if b != domain.BadgeCertified && b != domain.BadgeManagedOption {
				kept = append(kept, b)
			}
		}
		p.Badges = kept
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.CertificationRecord{}, err
	}
	return p.Certification, nil
}

type ExceptionRequest struct {
	ApprovedBy    string     `json:"approved_by"`
	Justification string     `json:"justification"`
	Scope         string     `json:"scope"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ApproveException overrides the gate with a fully attributed record. The
// exception is re-validated at every install attempt, not just here.
func (s *Service) ApproveException(ctx context.Context, id string, req ExceptionRequest) (domain.CertificationRecord, error) {
	if req.ApprovedBy == "" || req.Justification == "" {
		return domain.CertificationRecord{}, domain.Validation("EXCEPTION_FIELDS_REQUIRED", "approved_by and justification are required")
	}
	p, err := s.plugs.Update(ctx, id, func(p *domain.PlugListing) error {
		if p.Certification.Status == domain.CertRevoked {
			return domain.StateConflict("REVOKED",
				"a revoked plug cannot be exception-approved; re-register it")
		}
		now := s.now().UTC()
		p.Certification.Status = domain.CertExceptionApproved
		p.Certification.Exception = &domain.CertificationException{
			ApprovedBy:    req.ApprovedBy,
			ApprovedAt:    now,
			Justification: req.Justification,
			Scope:         req.Scope,
			ExpiresAt:     req.ExpiresAt,
		}
		p.Certification.LastReviewedAt = &now
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return domain.CertificationRecord{}, err
	}
	return p.Certification, nil
}

func (s *Service) InstallAttempts(ctx context.Context, plugID string) ([]domain.InstallAttempt, error) {
	return s.installs.List(ctx, plugID)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.plugs.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	installs, err := s.installs.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.TotalInstalls = installs
	return st, nil
}
