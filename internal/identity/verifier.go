package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dgraph-io/ristretto/v2"
)

const (
	firebaseIssuerPrefix = "https://securetoken.google.com/"
	firebaseJWKSURL      = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	googleIssuer         = "https://accounts.google.com"
	googleJWKSURL        = "https://www.googleapis.com/oauth2/v3/certs"
)

type tokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// OIDCVerifier verifies RS256 ID tokens against a remote key set.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer, jwksURL, audience string) *OIDCVerifier {
	keys := oidc.NewRemoteKeySet(ctx, jwksURL)
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: audience}),
	}
}

// NewFirebaseVerifier verifies ID tokens minted by Firebase Authentication
// for the given project.
func NewFirebaseVerifier(ctx context.Context, projectID string) *OIDCVerifier {
	return NewOIDCVerifier(ctx, firebaseIssuerPrefix+projectID, firebaseJWKSURL, projectID)
}

// NewGoogleVerifier verifies Google-issued ID tokens for the OAuth client.
func NewGoogleVerifier(ctx context.Context, clientID string) *OIDCVerifier {
	return NewOIDCVerifier(ctx, googleIssuer, googleJWKSURL, clientID)
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*VerifiedToken, error) {
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, NewAuthError(CodeInvalidIDToken, err)
	}
	return verifiedFromIDToken(tok)
}

func verifiedFromIDToken(tok *oidc.IDToken) (*VerifiedToken, error) {
	var claims tokenClaims
	if err := tok.Claims(&claims); err != nil {
		return nil, NewAuthError(CodeInvalidIDToken, fmt.Errorf("read claims: %w", err))
	}
	return &VerifiedToken{
		Identity: Identity{
			UID:           tok.Subject,
			Email:         claims.Email,
			DisplayName:   claims.Name,
			EmailVerified: claims.EmailVerified,
			PhotoURL:      claims.Picture,
		},
		ExpiresAt: tok.Expiry,
	}, nil
}

// CachingVerifier remembers successful verifications until the token expires.
// Failures are never cached.
type CachingVerifier struct {
	next  TokenVerifier
	cache *ristretto.Cache[string, VerifiedToken]
	now   func() time.Time
}

func NewCachingVerifier(next TokenVerifier, maxEntries int64) (*CachingVerifier, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, VerifiedToken]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}
	return &CachingVerifier{next: next, cache: cache, now: time.Now}, nil
}

func (v *CachingVerifier) Verify(ctx context.Context, rawToken string) (*VerifiedToken, error) {
	key := tokenKey(rawToken)
	if cached, ok := v.cache.Get(key); ok && v.now().Before(cached.ExpiresAt) {
		out := cached
		return &out, nil
	}

	verified, err := v.next.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if ttl := verified.ExpiresAt.Sub(v.now()); ttl > 0 {
		v.cache.SetWithTTL(key, *verified, 1, ttl)
	}
	return verified, nil
}

func (v *CachingVerifier) Close() {
	v.cache.Close()
}

func tokenKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

var (
	_ TokenVerifier = (*OIDCVerifier)(nil)
	_ TokenVerifier = (*CachingVerifier)(nil)
)
