// Package crypto implements the per-tenant field-encryption service used
// to protect task titles and descriptions at rest. Ciphertexts carry a
// versioned envelope prefix so mixed encrypted/legacy data stays readable:
// anything that does not decrypt cleanly is treated as already-plaintext.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// envelopePrefix marks a value produced by this cipher. Values without the
// prefix are legacy plaintext.
const envelopePrefix = "enc:v1:"

// Common cipher errors
var (
	ErrInvalidMasterKey  = errors.New("master key must decode to 32 bytes")
	ErrNotEncrypted      = errors.New("value is not an encrypted envelope")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrCiphertextTooShort = errors.New("ciphertext shorter than nonce")
)

// Decryptor is the capability the queue subsystem depends on: it never
// assumes a value is encrypted, or that decryption will succeed.
type Decryptor interface {
	// TryDecrypt returns the plaintext when the value is a valid envelope
	// for the tenant, and the original string unchanged otherwise.
	TryDecrypt(tenantID uuid.UUID, value string) string
}

// FieldCipher encrypts and decrypts individual fields with per-tenant keys
// derived from a single master key via HKDF. AEAD is ChaCha20-Poly1305.
type FieldCipher struct {
	masterKey []byte
}

// NewFieldCipher creates a FieldCipher from a base64-encoded 32-byte
// master key.
func NewFieldCipher(masterKeyB64 string) (*FieldCipher, error) {
	key, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}

	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidMasterKey
	}

	return &FieldCipher{masterKey: key}, nil
}

// tenantKey derives the tenant's field key from the master key.
// The tenant ID is the HKDF info parameter, so keys never collide across
// tenants and compromise of one does not expose another.
func (c *FieldCipher) tenantKey(tenantID uuid.UUID) ([]byte, error) {
	reader := hkdf.New(sha256.New, c.masterKey, nil, tenantID[:])

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive tenant key: %w", err)
	}

	return key, nil
}

// EncryptField encrypts a plaintext field value for the tenant and returns
// the versioned envelope string.
func (c *FieldCipher) EncryptField(tenantID uuid.UUID, plaintext string) (string, error) {
	key, err := c.tenantKey(tenantID)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return envelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField decrypts an envelope string for the tenant.
// Returns ErrNotEncrypted when the value carries no envelope prefix and
// ErrDecryptionFailed when authentication fails (wrong tenant or tampering).
func (c *FieldCipher) DecryptField(tenantID uuid.UUID, value string) (string, error) {
	if !strings.HasPrefix(value, envelopePrefix) {
		return "", ErrNotEncrypted
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, envelopePrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	key, err := c.tenantKey(tenantID)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", ErrCiphertextTooShort
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// TryDecrypt implements Decryptor. Any value that is not a valid envelope
// for the tenant is returned unchanged, never an error: legacy rows were
// written before encryption existed and must keep working.
func (c *FieldCipher) TryDecrypt(tenantID uuid.UUID, value string) string {
	plaintext, err := c.DecryptField(tenantID, value)
	if err != nil {
		return value
	}
	return plaintext
}
