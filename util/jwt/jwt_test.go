package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue("s3cret", Claims{Subject: "u-1", Role: RoleUser, TelegramID: 777}, time.Hour)
	require.NoError(t, err)

	c, err := ParseAuth("Bearer "+tok, "s3cret")
	require.NoError(t, err)
	require.Equal(t, "u-1", c.Subject)
	require.Equal(t, RoleUser, c.Role)
	require.Equal(t, int64(777), c.TelegramID)

	c, err = ParseAuth(tok, "s3cret")
	require.NoError(t, err)
	require.Equal(t, "u-1", c.Subject)
}

func TestParseAuth_Rejects(t *testing.T) {
	tok, err := Issue("s3cret", Claims{Subject: "admin", Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)

	_, err = ParseAuth("", "s3cret")
	require.Error(t, err)
	_, err = ParseAuth("Bearer ", "s3cret")
	require.Error(t, err)
	_, err = ParseAuth("Bearer "+tok, "other")
	require.Error(t, err)

	expired, err := Issue("s3cret", Claims{Subject: "admin", Role: RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseAuth(expired, "s3cret")
	require.ErrorIs(t, err, jwt.ErrTokenExpired)

	_, err = Issue("", Claims{Subject: "x"}, time.Hour)
	require.Error(t, err)
}

func TestParseAuth_RejectsNoneAlg(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "x", "exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAuth(s, "s3cret")
	require.Error(t, err)
}
