package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type testIssuer struct {
	key    *rsa.PrivateKey
	server *httptest.Server
	issuer string
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	ti := &testIssuer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]any{{
			"kty": "RSA",
			"kid": "test-key",
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	})
	ti.server = httptest.NewServer(mux)
	t.Cleanup(ti.server.Close)
	ti.issuer = ti.server.URL
	return ti
}

func (ti *testIssuer) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "test-key"
	raw, err := tok.SignedString(ti.key)
	require.NoError(t, err)
	return raw
}

func (ti *testIssuer) claims(aud string, exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            ti.issuer,
		"aud":            aud,
		"sub":            "uid-1",
		"email":          "a@b.com",
		"email_verified": true,
		"name":           "Max Mustermann",
		"iat":            time.Now().Add(-time.Minute).Unix(),
		"exp":            exp.Unix(),
	}
}

func TestOIDCVerifier(t *testing.T) {
	ti := newTestIssuer(t)
	v := NewOIDCVerifier(context.Background(), ti.issuer, ti.server.URL+"/jwks", "my-project")

	raw := ti.sign(t, ti.claims("my-project", time.Now().Add(time.Hour)))
	got, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", got.UID)
	assert.Equal(t, "Max Mustermann", got.DisplayName)
	assert.True(t, got.EmailVerified)

	wrongAudience := ti.sign(t, ti.claims("other-project", time.Now().Add(time.Hour)))
	_, err = v.Verify(context.Background(), wrongAudience)
	assert.True(t, HasCode(err, CodeInvalidIDToken))

	expired := ti.sign(t, ti.claims("my-project", time.Now().Add(-time.Minute)))
	_, err = v.Verify(context.Background(), expired)
	assert.Error(t, err)
}

type countingVerifier struct {
	calls  atomic.Int32
	result *VerifiedToken
	err    error
}

func (c *countingVerifier) Verify(context.Context, string) (*VerifiedToken, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	out := *c.result
	return &out, nil
}

func TestCachingVerifierCachesSuccessOnly(t *testing.T) {
	inner := &countingVerifier{result: &VerifiedToken{
		Identity:  Identity{UID: "uid-1"},
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	v, err := NewCachingVerifier(inner, 100)
	require.NoError(t, err)
	defer v.Close()

	_, err = v.Verify(context.Background(), "token-a")
	require.NoError(t, err)
	v.cache.Wait()

	got, err := v.Verify(context.Background(), "token-a")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", got.UID)
	assert.Equal(t, int32(1), inner.calls.Load())

	inner.err = NewAuthError(CodeInvalidIDToken, nil)
	_, err = v.Verify(context.Background(), "token-b")
	require.Error(t, err)
	v.cache.Wait()
	_, err = v.Verify(context.Background(), "token-b")
	require.Error(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestCachingVerifierIgnoresExpiredEntries(t *testing.T) {
	now := time.Now()
	inner := &countingVerifier{result: &VerifiedToken{Identity: Identity{UID: "uid-1"}, ExpiresAt: now.Add(time.Minute)}}
	v, err := NewCachingVerifier(inner, 100)
	require.NoError(t, err)
	defer v.Close()

	_, err = v.Verify(context.Background(), "token")
	require.NoError(t, err)
	v.cache.Wait()

	v.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = v.Verify(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestGoogleOAuthExchange(t *testing.T) {
	ti := newTestIssuer(t)
	var idToken string

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "auth-code", r.PostForm.Get("code"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	})
	tokenServer := httptest.NewServer(mux)
	defer tokenServer.Close()

	keys := oidc.NewRemoteKeySet(context.Background(), ti.server.URL+"/jwks")
	g := newGoogleOAuth(
		GoogleConfig{ClientID: "client-id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"},
		oauth2.Endpoint{AuthURL: tokenServer.URL + "/auth", TokenURL: tokenServer.URL + "/token", AuthStyle: oauth2.AuthStyleInParams},
		oidc.NewVerifier(ti.issuer, keys, &oidc.Config{ClientID: "client-id"}),
	)

	loginURL := g.LoginURL("state-1", "nonce-1")
	assert.Contains(t, loginURL, "state=state-1")
	assert.Contains(t, loginURL, "nonce=nonce-1")

	claims := ti.claims("client-id", time.Now().Add(time.Hour))
	claims["nonce"] = "nonce-1"
	idToken = ti.sign(t, claims)

	raw, verified, err := g.Exchange(context.Background(), "auth-code", "nonce-1")
	require.NoError(t, err)
	assert.Equal(t, idToken, raw)
	assert.Equal(t, "a@b.com", verified.Email)

	_, _, err = g.Exchange(context.Background(), "auth-code", "other-nonce")
	assert.True(t, HasCode(err, CodeInvalidCredential))
}
