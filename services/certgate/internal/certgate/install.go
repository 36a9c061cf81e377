package certgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"trustgate/pkg/domain"
)

// ValidateInstall authorizes an install iff the certification status
// allows it, the requested mode is supported and any exception is still
// in force. Every attempt lands in the install log, refused ones with
// their reason; a partial audit trail defeats the gate's purpose.
func (s *Service) ValidateInstall(ctx context.Context, req domain.InstallRequest) (domain.InstallResult, error) {
	installID := "inst_" + uuid.NewString()
	refuse := func(reason string) (domain.InstallResult, error) {
		if err := s.logAttempt(ctx, req, installID, false, reason); err != nil {
			return domain.InstallResult{}, err
		}
		return domain.InstallResult{
			Success:     false,
			InstallID:   installID,
			PlugID:      req.PlugID,
			InstallMode: req.InstallMode,
			Error:       reason,
		}, nil
	}

	if req.TenantID == "" || req.WorkspaceID == "" {
		return domain.InstallResult{}, domain.Validation("TENANT_REQUIRED", "tenant_id and workspace_id are required")
	}
	if !domain.ValidInstallMode(req.InstallMode) {
		return domain.InstallResult{}, domain.Validation("INVALID_INSTALL_MODE",
			fmt.Sprintf("install mode %q is not one of one_click, sandbox, managed", req.InstallMode))
	}

	p, err := s.plugs.Get(ctx, req.PlugID)
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) && derr.Kind == domain.KindNotFound {
			return refuse(fmt.Sprintf("Plug %q not found", req.PlugID))
		}
		return domain.InstallResult{}, err
	}

	status := p.Certification.Status
	if !status.InstallAllowed() {
		return refuse(fmt.Sprintf("Plug certification status %q does not allow installation. Must be certified or exception_approved.", status))
	}
	if !p.SupportsInstallMode(req.InstallMode) {
		return refuse(fmt.Sprintf("Install mode %q not supported. Available: %s", req.InstallMode, joinModes(p.InstallModes)))
	}
	if req.InstallMode == domain.InstallManaged && !s.cfg.ManagedInstallsEnabled {
		return refuse("Managed installs are disabled for this deployment")
	}
	if status == domain.CertExceptionApproved {
		ex := p.Certification.Exception
		if ex == nil {
			return refuse("Certification exception record is missing")
		}
		if ex.ExpiresAt != nil && ex.ExpiresAt.Before(s.now()) {
			return refuse("Certification exception has expired")
		}
	}

	attestationRef, err := s.storeAttestation(ctx, p, req, installID)
	if err != nil {
		if _, logErr := refuse("Attestation storage failed; install refused"); logErr != nil {
			return domain.InstallResult{}, logErr
		}
		return domain.InstallResult{}, fmt.Errorf("store attestation: %w", err)
	}

	if _, err := s.plugs.Update(ctx, p.PlugID, func(p *domain.PlugListing) error {
		p.EvidenceRefs = append(p.EvidenceRefs, attestationRef)
		return nil
	}); err != nil {
		return domain.InstallResult{}, err
	}
	if err := s.logAttempt(ctx, req, installID, true, ""); err != nil {
		return domain.InstallResult{}, err
	}

	return domain.InstallResult{
		Success:        true,
		InstallID:      installID,
		PlugID:         req.PlugID,
		InstallMode:    req.InstallMode,
		AttestationRef: attestationRef,
	}, nil
}

func (s *Service) storeAttestation(ctx context.Context, p domain.PlugListing, req domain.InstallRequest, installID string) (string, error) {
	if s.attest == nil {
		return "att_" + uuid.NewString(), nil
	}
	return s.attest.StoreAttestation(ctx, Attestation{
		InstallID:   installID,
		PlugID:      p.PlugID,
		PlugVersion: p.Version,
		TenantID:    req.TenantID,
		WorkspaceID: req.WorkspaceID,
		InstallMode: req.InstallMode,
		Badges:      append([]domain.Badge(nil), p.Badges...),
		Timestamp:   s.now().UTC(),
	})
}

func (s *Service) logAttempt(ctx context.Context, req domain.InstallRequest, installID string, allowed bool, reason string) error {
	return s.installs.Append(ctx, domain.InstallAttempt{
		InstallID:   installID,
		PlugID:      req.PlugID,
		TenantID:    req.TenantID,
		WorkspaceID: req.WorkspaceID,
		InstallMode: req.InstallMode,
		Timestamp:   s.now().UTC(),
		Allowed:     allowed,
		Reason:      reason,
	})
}

func joinModes(modes []domain.InstallMode) string {
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}
