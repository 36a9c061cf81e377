// Package webhookpush delivers signed token notifications to partner
// endpoints.
package webhookpush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trustgate/pkg/webhooks"
)

type Pusher struct {
	http     *http.Client
	secret   string
	maxBytes int
}

// New returns a pusher signing with secret. Payloads larger than
// maxBytes are refused before any network call.
func New(secret string, maxBytes int) *Pusher {
	return &Pusher{
		http:     &http.Client{Timeout: 10 * time.Second},
		secret:   secret,
		maxBytes: maxBytes,
	}
}

func (p *Pusher) Push(ctx context.Context, endpoint, eventID, eventType string, payload any) error {
	if p.secret == "" {
		return fmt.Errorf("webhook push: no signing secret configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook push: encode payload: %w", err)
	}
	if p.maxBytes > 0 && len(body) > p.maxBytes {
		return fmt.Errorf("webhook push: payload is %d bytes, limit %d", len(body), p.maxBytes)
	}

	headers, err := webhooks.Sign(body, eventID, eventType, p.secret)
	if err != nil {
		return fmt.Errorf("webhook push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook push: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook push: endpoint returned %d", resp.StatusCode)
	}
	return nil
}
