package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer("correct horse")
	require.NoError(t, err)

	creds := Credentials{Username: "camper@example.com", Password: "s3cret"}
	token, err := s.Seal(creds)
	require.NoError(t, err)
	assert.NotContains(t, token, "s3cret")

	got, err := s.Open(token)
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	other, err := NewSealer("battery staple")
	require.NoError(t, err)
	_, err = other.Open(token)
	assert.Error(t, err)
}

func TestNewSealerRequiresPassphrase(t *testing.T) {
	_, err := NewSealer("")
	assert.ErrorIs(t, err, ErrEmptyPassphrase)
}

func TestCredentialsEmpty(t *testing.T) {
	assert.True(t, Credentials{}.Empty())
	assert.True(t, Credentials{Username: "u"}.Empty())
	assert.False(t, Credentials{Username: "u", Password: "p"}.Empty())
}
