package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKey() string {
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func TestNewFieldCipher(t *testing.T) {
	t.Parallel()

	_, err := NewFieldCipher(testMasterKey())
	require.NoError(t, err)

	// Not base64
	_, err = NewFieldCipher("!!!not-base64!!!")
	assert.Error(t, err)

	// Wrong length
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err = NewFieldCipher(short)
	assert.ErrorIs(t, err, ErrInvalidMasterKey)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	cipher, err := NewFieldCipher(testMasterKey())
	require.NoError(t, err)

	tenantID := uuid.New()
	plaintext := "[implement] Add retry logic"

	encrypted, err := cipher.EncryptField(tenantID, plaintext)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encrypted, "enc:v1:"), "envelope prefix expected")
	assert.NotContains(t, encrypted, plaintext)

	decrypted, err := cipher.DecryptField(tenantID, encrypted)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWrongTenantFails(t *testing.T) {
	t.Parallel()

	cipher, err := NewFieldCipher(testMasterKey())
	require.NoError(t, err)

	encrypted, err := cipher.EncryptField(uuid.New(), "secret task title")
	require.NoError(t, err)

	_, err = cipher.DecryptField(uuid.New(), encrypted)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptPlaintextReturnsNotEncrypted(t *testing.T) {
	t.Parallel()

	cipher, err := NewFieldCipher(testMasterKey())
	require.NoError(t, err)

	_, err = cipher.DecryptField(uuid.New(), "a legacy plaintext title")
	assert.ErrorIs(t, err, ErrNotEncrypted)
}

func TestTryDecrypt(t *testing.T) {
	t.Parallel()

	cipher, err := NewFieldCipher(testMasterKey())
	require.NoError(t, err)

	tenantID := uuid.New()

	// Valid envelope decrypts
	encrypted, err := cipher.EncryptField(tenantID, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", cipher.TryDecrypt(tenantID, encrypted))

	// Legacy plaintext passes through unchanged
	assert.Equal(t, "plain title", cipher.TryDecrypt(tenantID, "plain title"))

	// Wrong tenant falls back to the original string rather than failing
	assert.Equal(t, encrypted, cipher.TryDecrypt(uuid.New(), encrypted))

	// Corrupt envelope falls back too
	assert.Equal(t, "enc:v1:garbage", cipher.TryDecrypt(tenantID, "enc:v1:garbage"))
}
