package domain

import "time"

type ArtifactType string

const (
	ArtifactDocument           ArtifactType = "document"
	ArtifactReceipt            ArtifactType = "receipt"
	ArtifactAttestation        ArtifactType = "attestation"
	ArtifactLog                ArtifactType = "log"
	ArtifactScanResult         ArtifactType = "scan_result"
	ArtifactDeployProof        ArtifactType = "deploy_proof"
	ArtifactSignedExport       ArtifactType = "signed_export"
	ArtifactBuildProvenance    ArtifactType = "build_provenance"
	ArtifactDependencyManifest ArtifactType = "dependency_manifest"
	ArtifactPermissionManifest ArtifactType = "permission_manifest"
	ArtifactSmokeTestResult    ArtifactType = "smoke_test_result"
	ArtifactRollbackPlan       ArtifactType = "rollback_plan"
	ArtifactScreenshot         ArtifactType = "screenshot"
	ArtifactUserUpload         ArtifactType = "user_upload"
)

type ArtifactStatus string

const (
	ArtifactPending    ArtifactStatus = "pending"
	ArtifactVerified   ArtifactStatus = "verified"
	ArtifactSuperseded ArtifactStatus = "superseded"
	ArtifactRedacted   ArtifactStatus = "redacted"
)

// Terminal reports whether the status can never change again.
func (s ArtifactStatus) Terminal() bool {
	return s == ArtifactSuperseded || s == ArtifactRedacted
}

type CustodyAction string

const (
	CustodyCreated    CustodyAction = "created"
	CustodyAccessed   CustodyAction = "accessed"
	CustodyExported   CustodyAction = "exported"
	CustodySigned     CustodyAction = "signed"
	CustodyVerified   CustodyAction = "verified"
	CustodySuperseded CustodyAction = "superseded"
	CustodyRedacted   CustodyAction = "redacted"
)

// CustodyEntry is one append-only chain-of-custody record. Entries are
// never edited or removed once appended.
type CustodyEntry struct {
	Action    CustodyAction `json:"action"`
	Actor     string        `json:"actor"`
	Timestamp time.Time     `json:"timestamp"`
	Details   string        `json:"details,omitempty"`
}

// EvidenceArtifact is a proof object. ContentHash is immutable once set;
// Status only moves forward: pending -> verified -> {superseded, redacted}.
type EvidenceArtifact struct {
	ArtifactID   string         `json:"artifact_id"`
	TenantID     string         `json:"tenant_id"`
	WorkspaceID  string         `json:"workspace_id"`
	ProjectID    string         `json:"project_id,omitempty"`
	Type         ArtifactType   `json:"type"`
	Label        string         `json:"label"`
	ContentHash  string         `json:"content_hash"`
	StorageURI   string         `json:"storage_uri"`
	SizeBytes    int64          `json:"size_bytes"`
	MimeType     string         `json:"mime_type"`
	Status       ArtifactStatus `json:"status"`
	CreatedBy    string         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	CustodyChain []CustodyEntry `json:"custody_chain"`
	Retention    string         `json:"retention"`
	Metadata     Metadata       `json:"metadata,omitempty"`
}

// Trusted reports whether the artifact can still be relied on as evidence.
// Redacted and superseded artifacts are terminal for trust and export.
func (a *EvidenceArtifact) Trusted() bool {
	return a.Status == ArtifactPending || a.Status == ArtifactVerified
}

// Clone returns a deep copy so repository snapshots cannot leak shared
// custody-chain or metadata state to callers.
func (a EvidenceArtifact) Clone() EvidenceArtifact {
	out := a
	out.CustodyChain = append([]CustodyEntry(nil), a.CustodyChain...)
	if a.Metadata != nil {
		out.Metadata = make(Metadata, len(a.Metadata))
		for k, v := range a.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
