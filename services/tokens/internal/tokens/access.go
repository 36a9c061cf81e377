package tokens

import (
	"context"
	"fmt"

	"trustgate/pkg/domain"
)

type AccessRequest struct {
	AccessorID        string               `json:"accessor_id"`
	Action            domain.SDTPermission `json:"action"`
	ArtifactRef       string               `json:"artifact_ref"`
	IPAddress         string               `json:"ip_address,omitempty"`
	DeviceFingerprint string               `json:"device_fingerprint,omitempty"`
}

type AccessResponse struct {
	Result       domain.AccessResult `json:"result"`
	DenialReason string              `json:"denial_reason,omitempty"`
}

// Access evaluates one access attempt against the token and logs the
// outcome unconditionally. Checks run in a fixed order: liveness,
// permission, artifact scope, session restrictions, access count, then
// the per-token rate limit. Only an allowed attempt consumes an access.
func (s *Service) Access(ctx context.Context, tokenID string, req AccessRequest) (AccessResponse, error) {
	if req.AccessorID == "" {
		return AccessResponse{}, domain.Validation("ACCESSOR_REQUIRED", "accessor_id is required")
	}
	if !domain.ValidPermission(req.Action) {
		return AccessResponse{}, domain.Validation("INVALID_PERMISSION",
			fmt.Sprintf("action %q is not one of view, download, acknowledge, comment", req.Action))
	}
	if req.ArtifactRef == "" {
		return AccessResponse{}, domain.Validation("ARTIFACT_REF_REQUIRED", "artifact_ref is required")
	}

	var resp AccessResponse
	_, err := s.repo.Update(ctx, tokenID, func(t *domain.SecureDropToken) error {
		resp = s.evaluate(t, req)
		return nil
	})
	if err != nil {
		return AccessResponse{}, err
	}

	entry := domain.SDTAccessLog{
		TokenID:      tokenID,
		AccessorID:   req.AccessorID,
		Action:       req.Action,
		ArtifactRef:  req.ArtifactRef,
		Timestamp:    s.now().UTC(),
		IPAddress:    req.IPAddress,
		Result:       resp.Result,
		DenialReason: resp.DenialReason,
	}
	if err := s.accessLog.Append(ctx, entry); err != nil {
		return AccessResponse{}, err
	}
	return resp, nil
}

// evaluate runs the check chain against t, mutating it for the lazy
// status transitions and the access counter. Runs inside the repository
// update so concurrent attempts observe a consistent counter.
func (s *Service) evaluate(t *domain.SecureDropToken, req AccessRequest) AccessResponse {
	deny := func(reason string) AccessResponse {
		return AccessResponse{Result: domain.AccessDenied, DenialReason: reason}
	}

	s.settleStatus(t)
	if t.Status != domain.SDTActive {
		return deny(fmt.Sprintf("token is %s", t.Status))
	}
	if !t.HasPermission(req.Action) {
		return deny(fmt.Sprintf("token does not grant %s", req.Action))
	}
	if !t.InScope(req.ArtifactRef) {
		return deny(fmt.Sprintf("artifact %s is not in token scope", req.ArtifactRef))
	}

	if r := t.SessionRestrictions; r != nil {
		if len(r.IPAllowlist) > 0 && !ipAllowed(r.IPAllowlist, req.IPAddress) {
			return deny(fmt.Sprintf("ip address %s is not in the allowlist", req.IPAddress))
		}
		if r.DeviceFingerprint != "" && r.DeviceFingerprint != req.DeviceFingerprint {
			return deny("device fingerprint does not match")
		}
		if r.MaxAccessCount > 0 && r.CurrentAccessCount >= r.MaxAccessCount {
			return deny("max access count reached")
		}
	}

	if !s.accessLimit.Allow(t.TokenID, s.now()) {
		return AccessResponse{Result: domain.AccessRateLimited, DenialReason: "access rate limit exceeded"}
	}

	if r := t.SessionRestrictions; r != nil {
		r.CurrentAccessCount++
		if r.MaxAccessCount > 0 && r.CurrentAccessCount >= r.MaxAccessCount {
			t.Status = domain.SDTConsumed
			t.AuditTrail = append(t.AuditTrail, auditEvent("consumed"))
		}
	}
	return AccessResponse{Result: domain.AccessAllowed}
}

func ipAllowed(allowlist []string, ip string) bool {
	for _, allowed := range allowlist {
		if allowed == ip {
			return true
		}
	}
	return false
}
