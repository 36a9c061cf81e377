package domain

import "time"

type Badge string

const (
	BadgeCertified         Badge = "certified"
	BadgeVerifiedPublisher Badge = "verified_publisher"
	BadgeManagedOption     Badge = "managed_option"
)

type InstallMode string

const (
	InstallOneClick InstallMode = "one_click"
	InstallSandbox  InstallMode = "sandbox"
	InstallManaged  InstallMode = "managed"
)

func ValidInstallMode(m InstallMode) bool {
	switch m {
	case InstallOneClick, InstallSandbox, InstallManaged:
		return true
	default:
		return false
	}
}

type CertificationStatus string

const (
	CertPending           CertificationStatus = "pending"
	CertInReview          CertificationStatus = "in_review"
	CertCertified         CertificationStatus = "certified"
	CertRejected          CertificationStatus = "rejected"
	CertRevoked           CertificationStatus = "revoked"
	CertExceptionApproved CertificationStatus = "exception_approved"
)

// InstallAllowed reports whether installation may proceed under this
// status. Exception expiry is checked separately at install time.
func (s CertificationStatus) InstallAllowed() bool {
	return s == CertCertified || s == CertExceptionApproved
}

// EvidenceCheck is one named compliance check in the evidence bag.
type EvidenceCheck struct {
	Required    bool       `json:"required"`
	Passed      bool       `json:"passed"`
	ArtifactRef string     `json:"artifact_ref,omitempty"`
	CheckedAt   *time.Time `json:"checked_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// CertificationEvidence is the fixed bag of named checks a listing must
// satisfy. The set of checks never varies per listing.
type CertificationEvidence struct {
	BuildMetadata       EvidenceCheck `json:"build_metadata"`
	DependencyScan      EvidenceCheck `json:"dependency_scan"`
	PermissionsManifest EvidenceCheck `json:"permissions_manifest"`
	SmokeTest           EvidenceCheck `json:"smoke_test"`
	RollbackReadiness   EvidenceCheck `json:"rollback_readiness"`
}

// CheckNames lists the evidence check names in canonical order.
func CheckNames() []string {
	return []string{"build_metadata", "dependency_scan", "permissions_manifest", "smoke_test", "rollback_readiness"}
}

// NewCertificationEvidence returns the bag with every check required and
// unset.
func NewCertificationEvidence() CertificationEvidence {
	req := EvidenceCheck{Required: true}
	return CertificationEvidence{
		BuildMetadata:       req,
		DependencyScan:      req,
		PermissionsManifest: req,
		SmokeTest:           req,
		RollbackReadiness:   req,
	}
}

// Check returns a pointer to the named check, or nil for unknown names.
func (e *CertificationEvidence) Check(name string) *EvidenceCheck {
	switch name {
	case "build_metadata":
		return &e.BuildMetadata
	case "dependency_scan":
		return &e.DependencyScan
	case "permissions_manifest":
		return &e.PermissionsManifest
	case "smoke_test":
		return &e.SmokeTest
	case "rollback_readiness":
		return &e.RollbackReadiness
	default:
		return nil
	}
}

// FailedRequiredChecks lists, in canonical order, every required check
// whose Passed is false.
func FailedRequiredChecks(e CertificationEvidence) []string {
	var failing []string
	for _, name := range CheckNames() {
		c := e.Check(name)
		if c.Required && !c.Passed {
			failing = append(failing, name)
		}
	}
	return failing
}

// ComputeBadges is the single deterministic badge function: certified iff
// no required check is failing, managed_option iff certified and managed
// is a supported install mode. Identical inputs always yield identical
// badge sets.
func ComputeBadges(e CertificationEvidence, installModes []InstallMode) []Badge {
	var badges []Badge
	if len(FailedRequiredChecks(e)) == 0 {
		badges = append(badges, BadgeCertified)
		for _, m := range installModes {
			if m == InstallManaged {
				badges = append(badges, BadgeManagedOption)
				break
			}
		}
	}
	return badges
}

// CertificationException is an explicit, attributed override. It is
// re-validated at every install attempt, not just at approval time.
type CertificationException struct {
	ApprovedBy    string     `json:"approved_by"`
	ApprovedAt    time.Time  `json:"approved_at"`
	Justification string     `json:"justification"`
	Scope         string     `json:"scope"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type CertificationRecord struct {
	Status         CertificationStatus     `json:"status"`
	Evidence       CertificationEvidence   `json:"evidence"`
	Exception      *CertificationException `json:"exception,omitempty"`
	CertifiedAt    *time.Time              `json:"certified_at,omitempty"`
	CertifiedBy    string                  `json:"certified_by,omitempty"`
	LastReviewedAt *time.Time              `json:"last_reviewed_at,omitempty"`
	ReviewNotes    string                  `json:"review_notes,omitempty"`
}

// PlugListing is a third-party extension gated by certification. A listing
// has exactly one certification record.
type PlugListing struct {
	PlugID        string              `json:"plug_id"`
	Name          string              `json:"name"`
	Version       string              `json:"version"`
	PublisherID   string              `json:"publisher_id"`
	PublisherName string              `json:"publisher_name,omitempty"`
	Description   string              `json:"description"`
	Category      string              `json:"category"`
	Tags          []string            `json:"tags"`
	Badges        []Badge             `json:"badges"`
	InstallModes  []InstallMode       `json:"install_modes"`
	Certification CertificationRecord `json:"certification"`
	EvidenceRefs  []string            `json:"evidence_refs"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func (p *PlugListing) SupportsInstallMode(m InstallMode) bool {
	for _, have := range p.InstallModes {
		if have == m {
			return true
		}
	}
	return false
}

func (p PlugListing) Clone() PlugListing {
	out := p
	out.Tags = append([]string(nil), p.Tags...)
	out.Badges = append([]Badge(nil), p.Badges...)
	out.InstallModes = append([]InstallMode(nil), p.InstallModes...)
	out.EvidenceRefs = append([]string(nil), p.EvidenceRefs...)
	if p.Certification.Exception != nil {
		ex := *p.Certification.Exception
		out.Certification.Exception = &ex
	}
	return out
}

type InstallRequest struct {
	PlugID      string      `json:"plug_id"`
	TenantID    string      `json:"tenant_id"`
	WorkspaceID string      `json:"workspace_id"`
	InstallMode InstallMode `json:"install_mode"`
}

type InstallResult struct {
	Success        bool        `json:"success"`
	InstallID      string      `json:"install_id"`
	PlugID         string      `json:"plug_id"`
	InstallMode    InstallMode `json:"install_mode"`
	AttestationRef string      `json:"attestation_ref,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// InstallAttempt is one audit record of an install authorization attempt.
// Both allowed and refused attempts are recorded.
type InstallAttempt struct {
	InstallID   string      `json:"install_id"`
	PlugID      string      `json:"plug_id"`
	TenantID    string      `json:"tenant_id"`
	WorkspaceID string      `json:"workspace_id"`
	InstallMode InstallMode `json:"install_mode"`
	Timestamp   time.Time   `json:"timestamp"`
	Allowed     bool        `json:"allowed"`
	Reason      string      `json:"reason,omitempty"`
}
