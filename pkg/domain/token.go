package domain

import "time"

type SDTPermission string

const (
	PermView        SDTPermission = "view"
	PermDownload    SDTPermission = "download"
	PermAcknowledge SDTPermission = "acknowledge"
	PermComment     SDTPermission = "comment"
)

func ValidPermission(p SDTPermission) bool {
	switch p {
	case PermView, PermDownload, PermAcknowledge, PermComment:
		return true
	default:
		return false
	}
}

type SDTDeliveryMethod string

const (
	DeliveryPartnerPortal SDTDeliveryMethod = "partner_portal"
	DeliveryWebhookPush   SDTDeliveryMethod = "webhook_push"
	DeliverySignedExport  SDTDeliveryMethod = "signed_export"
)

func ValidDeliveryMethod(m SDTDeliveryMethod) bool {
	switch m {
	case DeliveryPartnerPortal, DeliveryWebhookPush, DeliverySignedExport:
		return true
	default:
		return false
	}
}

type SDTStatus string

const (
	SDTActive   SDTStatus = "active"
	SDTExpired  SDTStatus = "expired"
	SDTRevoked  SDTStatus = "revoked"
	SDTConsumed SDTStatus = "consumed"
)

// Terminal reports whether the token can never become active again.
func (s SDTStatus) Terminal() bool { return s != SDTActive }

// SessionRestriction narrows where and how often a token may be used.
type SessionRestriction struct {
	IPAllowlist        []string `json:"ip_allowlist,omitempty"`
	DeviceFingerprint  string   `json:"device_fingerprint,omitempty"`
	MaxAccessCount     int      `json:"max_access_count,omitempty"`
	CurrentAccessCount int      `json:"current_access_count"`
}

// SecureDropToken is a scoped, expiring credential over an explicit
// artifact set. ExpiresAt is mandatory; expiry and revocation are terminal.
type SecureDropToken struct {
	TokenID             string              `json:"token_id"`
	TenantID            string              `json:"tenant_id"`
	WorkspaceID         string              `json:"workspace_id"`
	ProjectID           string              `json:"project_id"`
	ArtifactRefs        []string            `json:"artifact_refs"`
	Permissions         []SDTPermission     `json:"permissions"`
	DeliveryMethod      SDTDeliveryMethod   `json:"delivery_method"`
	IssuedAt            time.Time           `json:"issued_at"`
	ExpiresAt           time.Time           `json:"expires_at"`
	IssuedBy            string              `json:"issued_by"`
	Status              SDTStatus           `json:"status"`
	PartnerID           string              `json:"partner_id,omitempty"`
	WebhookEndpoint     string              `json:"webhook_endpoint,omitempty"`
	SessionRestrictions *SessionRestriction `json:"session_restrictions,omitempty"`
	AuditTrail          []string            `json:"audit_trail"`
}

func (t *SecureDropToken) HasPermission(p SDTPermission) bool {
	for _, have := range t.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

func (t *SecureDropToken) InScope(artifactRef string) bool {
	for _, ref := range t.ArtifactRefs {
		if ref == artifactRef {
			return true
		}
	}
	return false
}

func (t SecureDropToken) Clone() SecureDropToken {
	out := t
	out.ArtifactRefs = append([]string(nil), t.ArtifactRefs...)
	out.Permissions = append([]SDTPermission(nil), t.Permissions...)
	out.AuditTrail = append([]string(nil), t.AuditTrail...)
	if t.SessionRestrictions != nil {
		sr := *t.SessionRestrictions
		sr.IPAllowlist = append([]string(nil), t.SessionRestrictions.IPAllowlist...)
		out.SessionRestrictions = &sr
	}
	return out
}

type AccessResult string

const (
	AccessAllowed     AccessResult = "allowed"
	AccessDenied      AccessResult = "denied"
	AccessRateLimited AccessResult = "rate_limited"
)

// SDTAccessLog records one access attempt. Every attempt is logged, not
// only successes, so audits can reconstruct every probe against a token.
type SDTAccessLog struct {
	TokenID      string        `json:"token_id"`
	AccessorID   string        `json:"accessor_id"`
	Action       SDTPermission `json:"action"`
	ArtifactRef  string        `json:"artifact_ref"`
	Timestamp    time.Time     `json:"timestamp"`
	IPAddress    string        `json:"ip_address,omitempty"`
	Result       AccessResult  `json:"result"`
	DenialReason string        `json:"denial_reason,omitempty"`
}
