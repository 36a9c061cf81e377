// Package gatesdk is the HTTP client consumers embed to talk to the
// certification gate: listing badge state and validating installs without
// linking the gate's internals.
package gatesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"trustgate/pkg/domain"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Bearer     string
}

func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Bearer:     bearer,
	}
}

// ListOptions filter the plug listing.
type ListOptions struct {
	CertifiedOnly bool
	Badge         domain.Badge
	Category      string
}

type ListResponse struct {
	Plugs []domain.PlugListing `json:"plugs"`
	Total int                  `json:"total"`
}

type StatsResponse struct {
	ByStatus      map[string]int `json:"by_status"`
	TotalPlugs    int            `json:"total_plugs"`
	TotalInstalls int            `json:"total_installs"`
}

func (c *Client) Plug(ctx context.Context, plugID string) (*domain.PlugListing, error) {
	u := fmt.Sprintf("%s/certgate/plugs/%s", c.BaseURL, url.PathEscape(plugID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return doJSON[domain.PlugListing](c, req)
}

func (c *Client) Plugs(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	q := url.Values{}
	if opts.CertifiedOnly {
		q.Set("certified_only", "true")
	}
	if opts.Badge != "" {
		q.Set("badge", string(opts.Badge))
	}
	if opts.Category != "" {
		q.Set("category", opts.Category)
	}
	u := fmt.Sprintf("%s/certgate/plugs?%s", c.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return doJSON[ListResponse](c, req)
}

// ValidateInstall asks the gate whether an install may proceed. A refused
// install comes back as a non-error result with Success=false; transport
// and server failures are errors.
func (c *Client) ValidateInstall(ctx context.Context, in domain.InstallRequest) (*domain.InstallResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	u := c.BaseURL + "/certgate/installs/validate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON[domain.InstallResult](c, req)
}

func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/certgate/stats", nil)
	if err != nil {
		return nil, err
	}
	return doJSON[StatsResponse](c, req)
}

func doJSON[T any](c *Client, req *http.Request) (*T, error) {
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var errBody map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, fmt.Errorf("http %d: %v", resp.StatusCode, errBody)
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
