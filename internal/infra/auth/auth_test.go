package auth_test

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/infra/auth"
)

func newKeys(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestValidator_RoundTrip(t *testing.T) {
	key := newKeys(t)
	signer := auth.NewSigner(key, time.Hour)
	v := auth.NewBaseValidator(&key.PublicKey)

	tok, err := signer.Issue("0xOwner", domain.ScopeApprove, domain.ScopeManage)
	require.NoError(t, err)

	claims, err := v.VerifyToken("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "0xOwner", claims.Address)
	assert.True(t, claims.Scopes[domain.ScopeApprove])
	assert.False(t, claims.Scopes[domain.ScopeSubmit])
}

func TestValidator_Rejects(t *testing.T) {
	key := newKeys(t)
	other := newKeys(t)
	v := auth.NewBaseValidator(&key.PublicKey)

	foreign, err := auth.NewSigner(other, time.Hour).Issue("0xOwner")
	require.NoError(t, err)
	_, err = v.VerifyToken(foreign)
	assert.Error(t, err, "signed by a different key")

	expired, err := auth.NewSigner(key, -time.Minute).Issue("0xOwner")
	require.NoError(t, err)
	_, err = v.VerifyToken(expired)
	assert.Error(t, err, "expired")

	anon, err := auth.NewSigner(key, time.Hour).Issue("")
	require.NoError(t, err)
	_, err = v.VerifyToken(anon)
	assert.Error(t, err, "address claim is mandatory")
}

func TestMiddleware_ScopeChain(t *testing.T) {
	key := newKeys(t)
	signer := auth.NewSigner(key, time.Hour)
	v := auth.NewBaseValidator(&key.PublicKey)

	var seen string
	h := auth.NewMiddleware(v, zap.NewNop())(auth.RequireScope(domain.ScopeSubmit)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = auth.CallerFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})))

	do := func(token string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))

	noScope, _ := signer.Issue("0xAgent", domain.ScopeApprove)
	assert.Equal(t, http.StatusForbidden, do(noScope))

	ok, _ := signer.Issue("0xAgent", domain.ScopeSubmit)
	assert.Equal(t, http.StatusNoContent, do(ok))
	assert.Equal(t, "0xAgent", seen)
}
