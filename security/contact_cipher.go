package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goliatone/go-accounts/core"
	"golang.org/x/crypto/hkdf"
)

const (
	encryptionKeyInfo  = "accounts.contact.encryption"
	fingerprintKeyInfo = "accounts.contact.fingerprint"
)

type Option func(*ContactCipher)

type cipherKey struct {
	id      string
	version int
	key     []byte
	window  KeyRotationWindow
}

// ContactCipher seals contact values with AES-GCM under an app key and
// fingerprints them with a keyed HMAC. Fingerprints must stay stable across
// key rotation, so the fingerprint key is configured separately from the
// sealing key once a rotation has happened.
type ContactCipher struct {
	primary        cipherKey
	retired        map[string]cipherKey
	fingerprintKey []byte
	now            func() time.Time
	pending        []func(*ContactCipher) error
}

func WithKeyID(id string) Option {
	return func(c *ContactCipher) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			c.primary.id = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(c *ContactCipher) {
		if version > 0 {
			c.primary.version = version
		}
	}
}

// WithFingerprintKey pins the HMAC key used for fingerprints.
func WithFingerprintKey(material []byte) Option {
	return func(c *ContactCipher) {
		c.pending = append(c.pending, func(c *ContactCipher) error {
			key, err := deriveKey(material, fingerprintKeyInfo)
			if err != nil {
				return err
			}
			c.fingerprintKey = key
			return nil
		})
	}
}

// WithRetiredKey keeps an old key available for Decrypt inside window.
func WithRetiredKey(id string, version int, material []byte, window KeyRotationWindow) Option {
	return func(c *ContactCipher) {
		c.pending = append(c.pending, func(c *ContactCipher) error {
			id = strings.TrimSpace(id)
			if id == "" {
				return fmt.Errorf("security: retired key id is required")
			}
			key, err := deriveKey(material, encryptionKeyInfo)
			if err != nil {
				return err
			}
			c.retired[id] = cipherKey{id: id, version: version, key: key, window: window}
			return nil
		})
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *ContactCipher) {
		if now != nil {
			c.now = now
		}
	}
}

func NewContactCipher(keyMaterial []byte, opts ...Option) (*ContactCipher, error) {
	key, err := deriveKey(keyMaterial, encryptionKeyInfo)
	if err != nil {
		return nil, err
	}
	c := &ContactCipher{
		primary: cipherKey{id: "app-key", version: 1, key: key},
		retired: map[string]cipherKey{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	for _, apply := range c.pending {
		if err := apply(c); err != nil {
			return nil, err
		}
	}
	c.pending = nil
	if c.fingerprintKey == nil {
		if c.fingerprintKey, err = deriveKey(keyMaterial, fingerprintKeyInfo); err != nil {
			return nil, err
		}
	}
	if _, clash := c.retired[c.primary.id]; clash {
		return nil, fmt.Errorf("security: retired key %q collides with the primary key id", c.primary.id)
	}
	return c, nil
}

func NewContactCipherFromString(key string, opts ...Option) (*ContactCipher, error) {
	return NewContactCipher([]byte(key), opts...)
}

func (c *ContactCipher) Encrypt(_ context.Context, plaintext string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("security: contact cipher is nil")
	}
	if plaintext == "" {
		return "", fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(c.primary.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), []byte(c.primary.id))
	return encodeEnvelope(envelope{
		KeyID:      c.primary.id,
		Version:    c.primary.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodeCiphertextPayload(nonce),
		Ciphertext: encodeCiphertextPayload(sealed),
	})
}

func (c *ContactCipher) Decrypt(_ context.Context, ciphertext string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("security: contact cipher is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return "", err
	}
	if parsed.Algorithm != envelopeAlgorithm {
		return "", fmt.Errorf("security: unsupported envelope algorithm %q", parsed.Algorithm)
	}
	key, err := c.keyFor(parsed)
	if err != nil {
		return "", err
	}
	nonce, err := decodeCiphertextPayload(parsed.Nonce)
	if err != nil {
		return "", err
	}
	payload, err := decodeCiphertextPayload(parsed.Ciphertext)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key.key)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("security: invalid nonce size %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, payload, []byte(key.id))
	if err != nil {
		return "", fmt.Errorf("security: decrypt payload: %w", err)
	}
	return string(plaintext), nil
}

// Fingerprint returns a hex HMAC-SHA256 of value. Callers normalize value
// first; the digest is case and whitespace sensitive.
func (c *ContactCipher) Fingerprint(value string) string {
	if c == nil || value == "" {
		return ""
	}
	mac := hmac.New(sha256.New, c.fingerprintKey)
	_, _ = mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// NeedsReseal reports whether ciphertext was sealed by a key other than the primary.
func (c *ContactCipher) NeedsReseal(ciphertext string) bool {
	if c == nil {
		return false
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return false
	}
	return meta.KeyID != c.primary.id || (meta.Version > 0 && meta.Version != c.primary.version)
}

func (c *ContactCipher) KeyID() string {
	if c == nil {
		return ""
	}
	return c.primary.id
}

func (c *ContactCipher) Version() int {
	if c == nil {
		return 0
	}
	return c.primary.version
}

func (c *ContactCipher) keyFor(parsed envelope) (cipherKey, error) {
	if parsed.KeyID == "" || parsed.KeyID == c.primary.id {
		if parsed.Version > 0 && parsed.Version != c.primary.version {
			return cipherKey{}, fmt.Errorf("security: key version mismatch: got %d want %d", parsed.Version, c.primary.version)
		}
		return c.primary, nil
	}
	retired, ok := c.retired[parsed.KeyID]
	if !ok {
		return cipherKey{}, fmt.Errorf("security: unknown key id %q", parsed.KeyID)
	}
	if !retired.window.Allows(c.now()) {
		return cipherKey{}, fmt.Errorf("security: key %q is outside its rotation window", parsed.KeyID)
	}
	return retired, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func deriveKey(material []byte, info string) ([]byte, error) {
	material = bytes.TrimSpace(material)
	if len(material) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("security: derive key: %w", err)
	}
	return key, nil
}

var _ core.ContactCipher = (*ContactCipher)(nil)
