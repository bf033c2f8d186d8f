package state

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESCipherRoundTrip(t *testing.T) {
	c, err := NewAESCipherFromPassphrase("travel-core-test")
	require.NoError(t, err)

	plaintext := []byte(`{"card":"none","traveler":"ada"}`)
	sealed, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(sealed, []byte("traveler")))

	opened, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestAESCipherNonceVariesPerCall(t *testing.T) {
	c, err := NewAESCipherFromPassphrase("travel-core-test")
	require.NoError(t, err)

	a, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same input"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESCipherRejectsBadInput(t *testing.T) {
	_, err := NewAESCipher([]byte("short"))
	require.Error(t, err)

	_, err = NewAESCipherFromPassphrase("")
	require.Error(t, err)

	c, err := NewAESCipherFromPassphrase("travel-core-test")
	require.NoError(t, err)

	_, err = c.Decrypt([]byte{0x01, 0x02})
	require.Error(t, err)

	other, err := NewAESCipherFromPassphrase("different-key")
	require.NoError(t, err)
	sealed, err := c.Encrypt([]byte("payload"))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	require.Error(t, err)
}
