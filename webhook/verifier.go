package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA1 of the delivery body.
const SignatureHeader = "layer-webhook-signature"

// Verifier checks inbound delivery authenticity against the hook's
// shared secret. It never logs or exposes the secret.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify reports whether the provided hex signature matches the
// HMAC-SHA1 of the payload. The payload is percent-decoded first when
// the transport delivered it URL-encoded; the platform signs the raw
// decoded bytes.
func (v *Verifier) Verify(payload []byte, secret string, provided string) bool {
	secret = strings.TrimSpace(secret)
	provided = strings.TrimSpace(provided)
	if secret == "" || provided == "" {
		return false
	}
	computed := ComputeSignature(payload, secret)
	return hmac.Equal([]byte(computed), []byte(strings.ToLower(provided)))
}

// ComputeSignature returns the lowercase hex HMAC-SHA1 of the
// normalized payload bytes.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	_, _ = mac.Write(normalizePayload(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// normalizePayload undoes transport percent-encoding so the signature
// is computed over the same bytes the platform signed. Payloads that
// are not percent-encoded pass through unchanged.
func normalizePayload(payload []byte) []byte {
	text := string(payload)
	if !strings.Contains(text, "%") {
		return payload
	}
	decoded, err := url.PathUnescape(text)
	if err != nil {
		return payload
	}
	return []byte(decoded)
}
