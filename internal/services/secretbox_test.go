package services

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBox(t *testing.T, fill byte) *SecretBox {
	t.Helper()
	box, err := NewSecretBox(base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(fill), 32))))
	require.NoError(t, err)
	return box
}

func TestSecretBoxSealOpen(t *testing.T) {
	box := testBox(t, 'k')

	sealed, err := box.Seal("paypal-client-secret")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "paypal-client-secret")

	plain, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "paypal-client-secret", plain)
}

func TestSecretBoxRejectsOtherKey(t *testing.T) {
	sealed, err := testBox(t, 'a').Seal("secret")
	require.NoError(t, err)

	_, err = testBox(t, 'b').Open(sealed)
	assert.ErrorIs(t, err, ErrSecretTampered)

	_, err = testBox(t, 'a').Open("not-base64!")
	assert.ErrorIs(t, err, ErrSecretTampered)
}

func TestNewSecretBoxKeyLength(t *testing.T) {
	_, err := NewSecretBox(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorContains(t, err, "32 bytes")
}
