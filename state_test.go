package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateIssuerRoundTrip(t *testing.T) {
	issuer := NewStateIssuer(time.Minute)

	st, err := issuer.Issue("user-1", "instagram")
	require.NoError(t, err)
	require.NotEmpty(t, st.Value)
	require.NotEmpty(t, st.CodeVerifier)
	assert.NotEqual(t, st.Value, st.CodeVerifier)
	assert.True(t, st.ExpiresAt.After(st.IssuedAt))

	redeemed, err := issuer.Validate(st.Value, "instagram")
	require.NoError(t, err)
	assert.Equal(t, "user-1", redeemed.UserID)
	assert.Equal(t, "instagram", redeemed.Provider)
	assert.Equal(t, st.CodeVerifier, redeemed.CodeVerifier)
}

func TestStateIssuerSingleUse(t *testing.T) {
	issuer := NewStateIssuer(time.Minute)

	st, err := issuer.Issue("user-1", "instagram")
	require.NoError(t, err)

	_, err = issuer.Validate(st.Value, "instagram")
	require.NoError(t, err)

	_, err = issuer.Validate(st.Value, "instagram")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateIssuerProviderMismatchConsumes(t *testing.T) {
	issuer := NewStateIssuer(time.Minute)

	st, err := issuer.Issue("user-1", "instagram")
	require.NoError(t, err)

	_, err = issuer.Validate(st.Value, "twitter")
	assert.ErrorIs(t, err, ErrInvalidState)

	// The mismatch burned the value; the right provider cannot redeem it
	// afterwards either.
	_, err = issuer.Validate(st.Value, "instagram")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateIssuerRejectsUnknownValues(t *testing.T) {
	issuer := NewStateIssuer(time.Minute)

	_, err := issuer.Validate("", "instagram")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = issuer.Validate("never-issued", "instagram")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateIssuerExpires(t *testing.T) {
	issuer := NewStateIssuer(20 * time.Millisecond)

	st, err := issuer.Issue("user-1", "instagram")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = issuer.Validate(st.Value, "instagram")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestStateIssuerValuesAreUnique(t *testing.T) {
	issuer := NewStateIssuer(time.Minute)

	first, err := issuer.Issue("user-1", "instagram")
	require.NoError(t, err)
	second, err := issuer.Issue("user-1", "instagram")
	require.NoError(t, err)

	assert.NotEqual(t, first.Value, second.Value)
	assert.NotEqual(t, first.CodeVerifier, second.CodeVerifier)
}

func TestComputeCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", computeCodeChallenge(verifier))
}
