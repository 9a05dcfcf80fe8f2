package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accolade/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return v.claims, v.err
}

func TestRequireAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	caller := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	var seen common.Address
	var seenJTI string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = requestcontext.Caller(r.Context())
		seenJTI = requestcontext.AccessTokenID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token sets caller", func(t *testing.T) {
		mw := RequireAuth(stubValidator{claims: &JWTClaims{Caller: caller, JTI: "jti-1"}}, logger)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)

		require.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, caller, seen)
		assert.Equal(t, "jti-1", seenJTI)
	})

	t.Run("missing header", func(t *testing.T) {
		mw := RequireAuth(stubValidator{}, logger)
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), `"error":"unauthorized"`)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		mw := RequireAuth(stubValidator{}, logger)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Basic abc")
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		mw := RequireAuth(stubValidator{err: errors.New("bad")}, logger)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rr := httptest.NewRecorder()
		mw(next).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid or expired token")
	})
}
