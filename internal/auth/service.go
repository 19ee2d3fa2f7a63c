// Package auth turns sign-in, registration and logout intents into calls on
// the identity provider and keeps the profile store in step with them.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sidehustlers/internal/identity"
	"sidehustlers/internal/metrics"
	"sidehustlers/internal/models"
	"sidehustlers/internal/profile"
)

var ErrInvalidAccountType = errors.New("auth: invalid account type")

type ProfileService interface {
	GetProfile(ctx context.Context, uid string) (models.Profile, error)
	CreateProfile(ctx context.Context, in profile.NewProfile) (*models.IncompleteProfile, error)
}

// ProfileCache is implemented by profile.CachedStore.
type ProfileCache interface {
	Invalidate(ctx context.Context, uid string) error
}

// GoogleRedirect is implemented by identity.GoogleOAuth.
type GoogleRedirect interface {
	LoginURL(state, nonce string) string
	Exchange(ctx context.Context, code, nonce string) (string, *identity.VerifiedToken, error)
}

type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	AccountType models.AccountType
}

// GoogleLogin is a pending redirect sign-in. State and Nonce must round-trip
// through the browser and be handed back to CompleteGoogleRedirect.
type GoogleLogin struct {
	URL   string
	State string
	Nonce string
}

type Service struct {
	provider identity.Provider
	profiles ProfileService
	cache    ProfileCache
	google   GoogleRedirect
	metrics  metrics.Recorder
	logger   *zap.Logger
}

type Option func(*Service)

func WithProfileCache(cache ProfileCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithGoogleRedirect(google GoogleRedirect) Option {
	return func(s *Service) { s.google = google }
}

func WithMetrics(rec metrics.Recorder) Option {
	return func(s *Service) { s.metrics = rec }
}

func NewService(provider identity.Provider, profiles ProfileService, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		profiles: profiles,
		metrics:  metrics.Nop{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginWithEmail signs the client in. The client emits one auth-state event.
func (s *Service) LoginWithEmail(ctx context.Context, client *identity.Client, email, password string) error {
	creds, err := s.provider.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		s.record("login", err)
		return err
	}

	client.SetCredentials(creds)
	s.record("login", nil)
	s.logger.Info("login succeeded", zap.String("uid", creds.UID))
	return nil
}

// RegisterWithEmail creates the identity and its incomplete profile. The
// profile is written before the client is signed in, so the first auth-state
// event already finds it. If the profile cannot be written the new identity
// is deleted again.
func (s *Service) RegisterWithEmail(ctx context.Context, client *identity.Client, in RegisterInput) error {
	if !in.AccountType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAccountType, in.AccountType)
	}

	creds, err := s.provider.SignUp(ctx, strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		s.record("register", err)
		return err
	}

	displayName := strings.TrimSpace(in.FirstName + " " + in.LastName)
	if displayName != "" {
		if err := s.provider.UpdateDisplayName(ctx, creds.IDToken, displayName); err != nil {
			s.logger.Warn("setting display name failed", zap.String("uid", creds.UID), zap.Error(err))
		} else {
			creds.DisplayName = displayName
		}
	}

	_, err = s.profiles.CreateProfile(ctx, profile.NewProfile{
		UID:               creds.UID,
		Email:             creds.Email,
		AccountType:       in.AccountType,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		ProfilePictureURL: creds.PhotoURL,
	})
	if err != nil {
		s.compensate(ctx, creds)
		s.record("register", err)
		return fmt.Errorf("register %s: %w", creds.UID, err)
	}

	client.SetCredentials(creds)
	s.record("register", nil)
	s.logger.Info("registration succeeded", zap.String("uid", creds.UID), zap.String("accountType", string(in.AccountType)))
	return nil
}

func (s *Service) compensate(ctx context.Context, creds *identity.Credentials) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.provider.DeleteAccount(ctx, creds.IDToken); err != nil {
		s.logger.Error("orphaned identity left without profile", zap.String("uid", creds.UID), zap.Error(err))
		return
	}
	s.logger.Warn("identity deleted after profile creation failed", zap.String("uid", creds.UID))
}

// LoginWithGoogleToken completes the popup strategy with a Google ID token.
// A first-time Google user gets an incomplete customer profile.
func (s *Service) LoginWithGoogleToken(ctx context.Context, client *identity.Client, googleIDToken string) error {
	creds, err := s.provider.SignInWithIDP(ctx, identity.ProviderGoogle, googleIDToken)
	if err != nil {
		s.record("google", err)
		return err
	}

	if err := s.ensureProfile(ctx, creds); err != nil {
		s.record("google", err)
		return err
	}

	client.SetCredentials(creds)
	s.record("google", nil)
	s.logger.Info("google login succeeded", zap.String("uid", creds.UID))
	return nil
}

// GoogleLoginURL starts the redirect strategy.
func (s *Service) GoogleLoginURL() (*GoogleLogin, error) {
	if s.google == nil {
		return nil, identity.NewAuthError(identity.CodeOperationNotAllowed, errors.New("google sign-in is not configured"))
	}
	state, err := randomString()
	if err != nil {
		return nil, identity.NewAuthError(identity.CodeInternalError, err)
	}
	nonce, err := randomString()
	if err != nil {
		return nil, identity.NewAuthError(identity.CodeInternalError, err)
	}
	return &GoogleLogin{URL: s.google.LoginURL(state, nonce), State: state, Nonce: nonce}, nil
}

// CompleteGoogleRedirect finishes the redirect strategy on the callback.
func (s *Service) CompleteGoogleRedirect(ctx context.Context, client *identity.Client, code, state string, pending GoogleLogin) error {
	if s.google == nil {
		return identity.NewAuthError(identity.CodeOperationNotAllowed, errors.New("google sign-in is not configured"))
	}
	if pending.State == "" || state != pending.State {
		err := identity.NewAuthError(identity.CodeCancelledPopupRequest, errors.New("oauth state mismatch"))
		s.record("google", err)
		return err
	}

	raw, _, err := s.google.Exchange(ctx, code, pending.Nonce)
	if err != nil {
		s.record("google", err)
		return err
	}
	return s.LoginWithGoogleToken(ctx, client, raw)
}

func (s *Service) ensureProfile(ctx context.Context, creds *identity.Credentials) error {
	_, err := s.profiles.GetProfile(ctx, creds.UID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, profile.ErrNotFound) {
		return fmt.Errorf("load profile %s: %w", creds.UID, err)
	}

	first, last := splitDisplayName(creds.DisplayName, creds.Email)
	_, err = s.profiles.CreateProfile(ctx, profile.NewProfile{
		UID:               creds.UID,
		Email:             creds.Email,
		AccountType:       models.AccountTypeCustomer,
		FirstName:         first,
		LastName:          last,
		ProfilePictureURL: creds.PhotoURL,
	})
	switch {
	case errors.Is(err, profile.ErrAlreadyExists):
		// a concurrent sign-in provisioned it first
		return nil
	case err != nil:
		return fmt.Errorf("provision profile %s: %w", creds.UID, err)
	}
	s.logger.Info("provisioned customer profile for google user", zap.String("uid", creds.UID))
	return nil
}

// Logout signs the client out and drops the cached profile.
func (s *Service) Logout(ctx context.Context, client *identity.Client) {
	current := client.Current()
	client.SignOut()
	s.record("logout", nil)

	if current == nil || s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, current.UID); err != nil {
		s.logger.Warn("profile cache invalidation on logout failed", zap.String("uid", current.UID), zap.Error(err))
	}
}

// SendPasswordReset never reveals whether the address is registered.
func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	err := s.provider.SendPasswordReset(ctx, strings.TrimSpace(email))
	if identity.HasCode(err, identity.CodeUserNotFound) {
		s.logger.Debug("password reset for unknown address")
		err = nil
	}
	s.record("password_reset", err)
	return err
}

func (s *Service) record(action string, err error) {
	outcome := "success"
	if err != nil {
		outcome = identity.ToAuthError(err).Code
	}
	s.metrics.RecordAuthAttempt(action, outcome)
}

// splitDisplayName falls back to the local part of the email.
func splitDisplayName(displayName, email string) (string, string) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	first, last, _ := strings.Cut(name, " ")
	return first, strings.TrimSpace(last)
}

func randomString() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
