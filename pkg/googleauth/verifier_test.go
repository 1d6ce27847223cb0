package googleauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIgnoresBlankClientIDs(t *testing.T) {
	assert.False(t, New().Configured())
	assert.False(t, New(" ", "").Configured())
	assert.True(t, New(" web.apps.googleusercontent.com ").Configured())

	var nilVerifier *Verifier
	assert.False(t, nilVerifier.Configured())
}

func TestVerifyRequiresConfiguration(t *testing.T) {
	_, err := New().Verify("token")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	v := New("web.apps.googleusercontent.com")

	_, err := v.Verify("   ")
	require.Error(t, err)

	_, err = v.Verify("not-a-jwt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotConfigured)
}
