package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	SignatureHeader = "X-Signature"
	EventIDHeader   = "X-Event-Id"
	EventTypeHeader = "X-Event-Type"
	Scheme          = "partner-hmac-sha256/v1"
)

// Sign produces the headers for an outbound partner push: an HMAC-SHA256
// signature over the raw body plus event metadata.
func Sign(rawBody []byte, eventID, eventType, secret string) (http.Header, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("webhook signing secret is empty")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	h := http.Header{}
	h.Set(SignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	h.Set(EventIDHeader, eventID)
	h.Set(EventTypeHeader, eventType)
	return h, nil
}

type hmacVerifier struct{}

// NewHMACVerifier verifies pushes signed by Sign. Partners embed this on
// their receiving side.
func NewHMACVerifier() Verifier { return &hmacVerifier{} }

func (v *hmacVerifier) Verify(headers http.Header, rawBody []byte, _ time.Time, secret string) (VerificationResult, error) {
	if strings.TrimSpace(secret) == "" {
		return VerificationResult{}, fmt.Errorf("webhook verifier secret is empty")
	}

	res := VerificationResult{
		Valid:  false,
		Scheme: Scheme,
		Details: map[string]any{
			"signature_header_present": false,
			"signature_hex_decodable":  false,
			"used_header":              SignatureHeader,
		},
		EventID:   strings.TrimSpace(headers.Get(EventIDHeader)),
		EventType: strings.TrimSpace(headers.Get(EventTypeHeader)),
	}
	if res.EventType == "" {
		res.EventType = "unknown"
	}

	sigHex := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHex == "" {
		return res, nil
	}
	res.Details["signature_header_present"] = true

	providedSig, err := hex.DecodeString(sigHex)
	if err != nil {
		return res, nil
	}
	res.Details["signature_hex_decodable"] = true

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	res.Valid = hmac.Equal(mac.Sum(nil), providedSig)
	return res, nil
}
