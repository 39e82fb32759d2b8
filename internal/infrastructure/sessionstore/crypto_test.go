package sessionstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestCipher_RoundTrip(t *testing.T) {
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	sealed, err := cipher.Encrypt([]byte(`{"account_number":"123456789012"}`))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "123456789012")

	plain, err := cipher.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"account_number":"123456789012"}`, string(plain))
}

func TestCipher_UniqueNonces(t *testing.T) {
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	first, err := cipher.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	second, err := cipher.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCipher_RejectsBadKey(t *testing.T) {
	_, err := NewCipher("deadbeef")
	assert.Error(t, err)

	_, err = NewCipher("not hex at all")
	assert.Error(t, err)
}

func TestCipher_RejectsTamperedCiphertext(t *testing.T) {
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	sealed, err := cipher.Encrypt([]byte("payload"))
	require.NoError(t, err)

	tampered := strings.Replace(sealed, sealed[10:11], "A", 1)
	if tampered == sealed {
		tampered = strings.Replace(sealed, sealed[10:11], "B", 1)
	}
	_, err = cipher.Decrypt(tampered)
	assert.Error(t, err)
}
