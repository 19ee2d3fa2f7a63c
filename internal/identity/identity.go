// Package identity talks to the identity provider: sign-in, sign-up,
// token refresh and verification. It never stores application profiles.
package identity

import (
	"context"
	"time"
)

const ProviderGoogle = "google.com"

// Identity is the account record owned by the identity provider.
type Identity struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	PhotoURL      string `json:"photoUrl,omitempty"`
}

// Credentials is a signed-in identity together with its tokens.
type Credentials struct {
	Identity
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// VerifiedToken is the result of checking an ID token's signature and expiry.
type VerifiedToken struct {
	Identity
	ExpiresAt time.Time
}

// Provider is the set of identity operations the application needs. All
// errors returned are *AuthError.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Credentials, error)
	SignUp(ctx context.Context, email, password string) (*Credentials, error)
	UpdateDisplayName(ctx context.Context, idToken, displayName string) error
	SignInWithIDP(ctx context.Context, providerID, idpIDToken string) (*Credentials, error)
	SendPasswordReset(ctx context.Context, email string) error
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
	DeleteAccount(ctx context.Context, idToken string) error
}

type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*VerifiedToken, error)
}
