package jwttoken

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "accolade/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var caller = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	token, jti, err := jwtService.GenerateAccessToken(caller, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, jti)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, caller.Hex(), claims.Subject)
	assert.Equal(t, jti, claims.ID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)

	got, err := claims.Caller()
	require.NoError(t, err)
	assert.Equal(t, caller, got)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "invalid token", err.Error())
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, _, err := jwtService.GenerateAccessToken(caller, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, "token has expired", err.Error())
}

func Test_ValidateToken_RejectsForeignTokens(t *testing.T) {
	t.Run("different signing key", func(t *testing.T) {
		other := NewJWTService("other-key", "test-issuer", "test-audience")
		token, _, err := other.GenerateAccessToken(caller, expiresIn)
		require.NoError(t, err)
		_, err = jwtService.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("different audience", func(t *testing.T) {
		other := NewJWTService("test-signing-key", "test-issuer", "another-api")
		token, _, err := other.GenerateAccessToken(caller, expiresIn)
		require.NoError(t, err)
		_, err = jwtService.ValidateToken(token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:  caller.Hex(),
			Issuer:   "test-issuer",
			Audience: []string{"test-audience"},
		}})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = jwtService.ValidateToken(signed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("subject is not an address", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}})
		signed, err := token.SignedString([]byte("test-signing-key"))
		require.NoError(t, err)
		_, err = jwtService.ValidateToken(signed)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func Test_Adapter(t *testing.T) {
	token, jti, err := jwtService.GenerateAccessToken(caller, expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, caller, claims.Caller)
	assert.Equal(t, jti, claims.JTI)
}
