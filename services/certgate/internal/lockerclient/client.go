// Package lockerclient writes install attestation artifacts into the
// evidence locker over its HTTP API.
package lockerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"trustgate/pkg/digest"
	"trustgate/pkg/domain"
	"trustgate/services/certgate/internal/certgate"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	hasher  digest.Hasher
}

func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{}, hasher: digest.SHA256()}
}

// StoreAttestation hashes the attestation payload and stores it as an
// attestation artifact under the installing tenant.
func (c *Client) StoreAttestation(ctx context.Context, att certgate.Attestation) (string, error) {
	hash, payload, err := c.hasher.SumObject(att)
	if err != nil {
		return "", err
	}
	body := map[string]any{
		"tenant_id":    att.TenantID,
		"workspace_id": att.WorkspaceID,
		"type":         domain.ArtifactAttestation,
		"label":        fmt.Sprintf("install attestation %s@%s", att.PlugID, att.PlugVersion),
		"content_hash": hash,
		"storage_uri":  "trustgate://attestations/" + att.InstallID,
		"size_bytes":   len(payload),
		"mime_type":    "application/json",
		"created_by":   "certgate",
		"content":      payload,
		"metadata": domain.Metadata{
			"install_id":   att.InstallID,
			"plug_id":      att.PlugID,
			"install_mode": string(att.InstallMode),
		},
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/locker/artifacts", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("locker returned %d", resp.StatusCode)
	}
	var out struct {
		Artifact struct {
			ArtifactID string `json:"artifact_id"`
		} `json:"artifact"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Artifact.ArtifactID, nil
}
