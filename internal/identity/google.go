package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleScopeEmail   = "email"
	googleScopeProfile = "profile"
)

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GoogleOAuth drives the redirect sign-in strategy: it builds the consent URL
// and turns the returned code into a verified Google ID token.
type GoogleOAuth struct {
	cfg      *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewGoogleOAuth(ctx context.Context, google GoogleConfig) *GoogleOAuth {
	keys := oidc.NewRemoteKeySet(ctx, googleJWKSURL)
	return newGoogleOAuth(google, endpoints.Google, oidc.NewVerifier(googleIssuer, keys, &oidc.Config{ClientID: google.ClientID}))
}

func newGoogleOAuth(google GoogleConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *GoogleOAuth {
	return &GoogleOAuth{
		cfg: &oauth2.Config{
			ClientID:     google.ClientID,
			ClientSecret: google.ClientSecret,
			RedirectURL:  google.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, googleScopeProfile, googleScopeEmail},
			Endpoint:     endpoint,
		},
		verifier: verifier,
	}
}

func (g *GoogleOAuth) LoginURL(state, nonce string) string {
	return g.cfg.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange redeems the authorization code and returns the raw Google ID token
// after checking its signature and nonce.
func (g *GoogleOAuth) Exchange(ctx context.Context, code, nonce string) (string, *VerifiedToken, error) {
	tok, err := g.cfg.Exchange(ctx, code)
	if err != nil {
		return "", nil, NewAuthError(CodeInvalidCredential, fmt.Errorf("exchange code: %w", err))
	}

	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", nil, NewAuthError(CodeInvalidCredential, errors.New("token response has no id_token"))
	}

	idTok, err := g.verifier.Verify(ctx, raw)
	if err != nil {
		return "", nil, NewAuthError(CodeInvalidCredential, fmt.Errorf("verify id token: %w", err))
	}
	if idTok.Nonce != nonce {
		return "", nil, NewAuthError(CodeInvalidCredential, errors.New("nonce mismatch"))
	}

	verified, err := verifiedFromIDToken(idTok)
	if err != nil {
		return "", nil, err
	}
	return raw, verified, nil
}

// Verify checks a Google ID token posted directly by the popup strategy.
func (g *GoogleOAuth) Verify(ctx context.Context, rawToken string) (*VerifiedToken, error) {
	idTok, err := g.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, NewAuthError(CodeInvalidCredential, err)
	}
	return verifiedFromIDToken(idTok)
}

var _ TokenVerifier = (*GoogleOAuth)(nil)
