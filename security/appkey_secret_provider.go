package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-receipts/core"
)

// envelopePrefix versions the stored format so a future scheme can
// coexist with rows sealed under this one.
const envelopePrefix = "receipts.secret.v1:"

const envelopeAlgorithm = "aes-256-gcm"

// AppKeySecretProvider seals hook shared secrets with AES-256-GCM
// under a single application key. Key material that is not an AES key
// length is stretched through SHA-256.
type AppKeySecretProvider struct {
	key     []byte
	keyID   string
	version int
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)

type Option func(*AppKeySecretProvider)

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	trimmed := bytes.TrimSpace(keyMaterial)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		key:     deriveKey(trimmed),
		keyID:   "app-key",
		version: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(provider)
		}
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

// envelope is the stored JSON wrapper around one sealed secret.
type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// matchesProvider rejects envelopes sealed under a different key
// identity before any cipher work happens.
func (e envelope) matchesProvider(p *AppKeySecretProvider) error {
	if e.KeyID != "" && e.KeyID != p.keyID {
		return fmt.Errorf("security: key id mismatch: got %q want %q", e.KeyID, p.keyID)
	}
	if e.Version > 0 && e.Version != p.version {
		return fmt.Errorf("security: key version mismatch: got %d want %d", e.Version, p.version)
	}
	return nil
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}

	aead, err := p.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := envelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(aead.Seal(nil, nonce, plaintext, nil)),
	}
	encoded, err := json.Marshal(sealed)
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), encoded...), nil
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("security: ciphertext is required")
	}

	raw := strings.TrimPrefix(string(ciphertext), envelopePrefix)
	var sealed envelope
	if err := json.Unmarshal([]byte(raw), &sealed); err != nil {
		return nil, fmt.Errorf("security: decode envelope: %w", err)
	}
	if err := sealed.matchesProvider(p); err != nil {
		return nil, err
	}

	nonce, err := base64.StdEncoding.DecodeString(sealed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	body, err := base64.StdEncoding.DecodeString(sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}

	aead, err := p.aead()
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return aead, nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

// deriveKey accepts AES-128/192/256 key material verbatim and hashes
// anything else down to a 256-bit key.
func deriveKey(material []byte) []byte {
	switch len(material) {
	case 16, 24, 32:
		key := make([]byte, len(material))
		copy(key, material)
		return key
	default:
		sum := sha256.Sum256(material)
		return sum[:]
	}
}
