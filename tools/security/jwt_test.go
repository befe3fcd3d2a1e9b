package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestGenerateVerify(t *testing.T) {
	opts := DefaultOptions(secret)
	tok, exp, err := Generate(opts, "u1", map[string]any{"username": "alice"})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	c, err := Verify(opts, tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID())
	assert.Equal(t, "alice", c.DisplayName())
}

func TestVerify_ClaimFallbacks(t *testing.T) {
	tok := sign(t, jwtlib.SigningMethodHS256, secret, jwtlib.MapClaims{
		"user_id": float64(17),
		"name":    "bob",
		"exp":     time.Now().Add(time.Minute).Unix(),
	})
	c, err := Verify(DefaultOptions(secret), tok)
	require.NoError(t, err)
	assert.Equal(t, "17", c.UserID())
	assert.Equal(t, "bob", c.DisplayName())

	tok = sign(t, jwtlib.SigningMethodHS256, secret, jwtlib.MapClaims{
		"sub": "u2",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	c, err = Verify(DefaultOptions(secret), tok)
	require.NoError(t, err)
	assert.Equal(t, "User", c.DisplayName())
}

func TestVerify_Rejects(t *testing.T) {
	opts := DefaultOptions(secret)
	cases := map[string]string{
		"wrong secret": sign(t, jwtlib.SigningMethodHS256, []byte("other"), jwtlib.MapClaims{
			"sub": "u1", "exp": time.Now().Add(time.Minute).Unix(),
		}),
		"expired": sign(t, jwtlib.SigningMethodHS256, secret, jwtlib.MapClaims{
			"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix(),
		}),
		"no exp": sign(t, jwtlib.SigningMethodHS256, secret, jwtlib.MapClaims{"sub": "u1"}),
		"other alg": sign(t, jwtlib.SigningMethodHS512, secret, jwtlib.MapClaims{
			"sub": "u1", "exp": time.Now().Add(time.Minute).Unix(),
		}),
		"garbage": "not.a.jwt",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Verify(opts, tok)
			assert.Error(t, err)
		})
	}
}

func TestSigningMethod(t *testing.T) {
	_, err := signingMethod("RS256")
	assert.Error(t, err)
	m, err := signingMethod("hs384")
	require.NoError(t, err)
	assert.Equal(t, "HS384", m.Alg())
}

func sign(t *testing.T, m jwtlib.SigningMethod, key []byte, claims jwtlib.MapClaims) string {
	t.Helper()
	s, err := jwtlib.NewWithClaims(m, claims).SignedString(key)
	require.NoError(t, err)
	return s
}
