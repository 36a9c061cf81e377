package domain

import "testing"

func TestSDTStatusTerminal(t *testing.T) {
	if SDTActive.Terminal() {
		t.Fatalf("active must not be terminal")
	}
	for _, s := range []SDTStatus{SDTExpired, SDTRevoked, SDTConsumed} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}

func TestTokenScopeAndPermissions(t *testing.T) {
	tok := SecureDropToken{
		ArtifactRefs: []string{"art_1", "art_2"},
		Permissions:  []SDTPermission{PermView, PermDownload},
	}
	if !tok.InScope("art_2") || tok.InScope("art_3") {
		t.Fatalf("scope check wrong")
	}
	if !tok.HasPermission(PermDownload) || tok.HasPermission(PermComment) {
		t.Fatalf("permission check wrong")
	}
}

func TestTokenCloneIsolation(t *testing.T) {
	tok := SecureDropToken{
		ArtifactRefs: []string{"art_1"},
		Permissions:  []SDTPermission{PermView},
		AuditTrail:   []string{"issued"},
		SessionRestrictions: &SessionRestriction{
			IPAllowlist:    []string{"10.0.0.1"},
			MaxAccessCount: 5,
		},
	}
	c := tok.Clone()
	c.ArtifactRefs[0] = "art_9"
	c.AuditTrail[0] = "tampered"
	c.SessionRestrictions.IPAllowlist[0] = "0.0.0.0"
	c.SessionRestrictions.CurrentAccessCount = 3
	if tok.ArtifactRefs[0] != "art_1" || tok.AuditTrail[0] != "issued" {
		t.Fatalf("clone shares slices with original")
	}
	if tok.SessionRestrictions.IPAllowlist[0] != "10.0.0.1" || tok.SessionRestrictions.CurrentAccessCount != 0 {
		t.Fatalf("clone shares session restrictions with original")
	}
}

func TestValidPermissionAndDelivery(t *testing.T) {
	if !ValidPermission(PermAcknowledge) || ValidPermission("write") {
		t.Fatalf("permission validity wrong")
	}
	if !ValidDeliveryMethod(DeliveryWebhookPush) || ValidDeliveryMethod("carrier_pigeon") {
		t.Fatalf("delivery validity wrong")
	}
}

func TestArtifactTrusted(t *testing.T) {
	a := EvidenceArtifact{Status: ArtifactPending}
	if !a.Trusted() {
		t.Fatalf("pending must be trusted")
	}
	a.Status = ArtifactVerified
	if !a.Trusted() {
		t.Fatalf("verified must be trusted")
	}
	for _, s := range []ArtifactStatus{ArtifactSuperseded, ArtifactRedacted} {
		a.Status = s
		if a.Trusted() {
			t.Fatalf("%s must not be trusted", s)
		}
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}
