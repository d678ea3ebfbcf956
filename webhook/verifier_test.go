package webhook

import (
	"net/url"
	"testing"
)

func TestVerifyAcceptsMatchingSignature(t *testing.T) {
	verifier := NewVerifier()
	payload := []byte(`{"event":{"type":"message.sent"}}`)
	secret := "s3cret"

	signature := ComputeSignature(payload, secret)
	if !verifier.Verify(payload, secret, signature) {
		t.Fatalf("expected matching signature to verify")
	}
	// Case of the hex digits must not matter.
	upper := make([]byte, len(signature))
	for i := 0; i < len(signature); i++ {
		c := signature[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		upper[i] = c
	}
	if !verifier.Verify(payload, secret, string(upper)) {
		t.Fatalf("expected uppercase signature to verify")
	}
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	verifier := NewVerifier()
	secret := "s3cret"
	payload := []byte(`{"event":{"type":"message.sent"}}`)
	signature := ComputeSignature(payload, secret)

	tampered := []byte(`{"event":{"type":"message.read"}}`)
	if verifier.Verify(tampered, secret, signature) {
		t.Fatalf("tampered payload must not verify")
	}
	if verifier.Verify(payload, "wrong", signature) {
		t.Fatalf("wrong secret must not verify")
	}
	if verifier.Verify(payload, secret, "") {
		t.Fatalf("empty signature must not verify")
	}
	if verifier.Verify(payload, "", signature) {
		t.Fatalf("empty secret must not verify")
	}
}

func TestVerifyHandlesPercentEncodedPayload(t *testing.T) {
	verifier := NewVerifier()
	secret := "s3cret"
	raw := []byte(`{"note":"caf` + "é" + ` & more+plus"}`)
	signature := ComputeSignature(raw, secret)

	// The transport may hand over the body percent-encoded; the
	// signature still covers the decoded bytes.
	encoded := []byte(url.PathEscape(string(raw)))
	if !verifier.Verify(encoded, secret, signature) {
		t.Fatalf("percent-encoded payload must verify against decoded bytes")
	}
	if got := ComputeSignature(encoded, secret); got != signature {
		t.Fatalf("signature of encoded payload diverged: %s vs %s", got, signature)
	}
}

func TestNormalizePayloadPassesPlainBodies(t *testing.T) {
	plain := []byte(`{"plus":"1+1"}`)
	if got := string(normalizePayload(plain)); got != string(plain) {
		t.Fatalf("plain payload rewritten: %s", got)
	}
	// A stray percent that is not valid encoding falls back to the raw bytes.
	invalid := []byte(`100% sure`)
	if got := string(normalizePayload(invalid)); got != string(invalid) {
		t.Fatalf("invalid encoding must pass through, got %s", got)
	}
}
