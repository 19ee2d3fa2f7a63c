package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type LocalConfig struct {
	Secret          string
	Issuer          string
	IDTokenTTL      time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
	// GoogleVerifier checks Google ID tokens for SignInWithIDP. Nil disables
	// Google sign-in.
	GoogleVerifier TokenVerifier
}

// LocalProvider is a self-contained identity provider: bcrypt passwords,
// HS256 ID tokens and rotated refresh tokens. It also verifies its own tokens.
type LocalProvider struct {
	store    CredentialStore
	config   LocalConfig
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time
}

type localClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

func NewLocalProvider(store CredentialStore, config LocalConfig, logger *zap.Logger) *LocalProvider {
	if config.Issuer == "" {
		config.Issuer = "sidehustlers-local"
	}
	if config.IDTokenTTL <= 0 {
		config.IDTokenTTL = time.Hour
	}
	if config.RefreshTokenTTL <= 0 {
		config.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &LocalProvider{
		store:    store,
		config:   config,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*Credentials, error) {
	rec, err := p.store.ByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, NewAuthError(CodeUserNotFound, nil)
		}
		return nil, NewAuthError(CodeInternalError, err)
	}
	if rec.Disabled {
		return nil, NewAuthError(CodeUserDisabled, nil)
	}
	if rec.PasswordHash == "" {
		return nil, NewAuthError(CodeWrongPassword, errors.New("account has no password"))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		return nil, NewAuthError(CodeWrongPassword, nil)
	}
	return p.issue(ctx, *rec)
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string) (*Credentials, error) {
	email = normalizeEmail(email)
	if err := p.validate.Var(email, "required,email"); err != nil {
		return nil, NewAuthError(CodeInvalidEmail, nil)
	}
	if len(password) < minPasswordLength {
		return nil, NewAuthError(CodeWeakPassword, nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.config.BcryptCost)
	if err != nil {
		return nil, NewAuthError(CodeInternalError, err)
	}

	now := p.now()
	rec := CredentialRecord{
		UID:          newUID(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, NewAuthError(CodeEmailAlreadyInUse, nil)
		}
		return nil, NewAuthError(CodeInternalError, err)
	}

	p.logger.Info("local account created", zap.String("uid", rec.UID))
	return p.issue(ctx, rec)
}

func (p *LocalProvider) UpdateDisplayName(ctx context.Context, idToken, displayName string) error {
	token, err := p.Verify(ctx, idToken)
	if err != nil {
		return err
	}
	if err := p.store.UpdateDisplayName(ctx, token.UID, displayName, p.now()); err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return NewAuthError(CodeUserNotFound, nil)
		}
		return NewAuthError(CodeInternalError, err)
	}
	return nil
}

// SignInWithIDP accepts a Google ID token. Accounts are matched by email and
// created on first use, mirroring how the hosted provider links Google.
func (p *LocalProvider) SignInWithIDP(ctx context.Context, providerID, idpIDToken string) (*Credentials, error) {
	if providerID != ProviderGoogle || p.config.GoogleVerifier == nil {
		return nil, NewAuthError(CodeOperationNotAllowed, fmt.Errorf("provider %q not enabled", providerID))
	}

	google, err := p.config.GoogleVerifier.Verify(ctx, idpIDToken)
	if err != nil {
		return nil, NewAuthError(CodeInvalidCredential, err)
	}
	email := normalizeEmail(google.Email)
	if email == "" {
		return nil, NewAuthError(CodeInvalidEmail, errors.New("google token has no email"))
	}

	rec, err := p.store.ByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrCredentialNotFound):
		now := p.now()
		created := CredentialRecord{
			UID:           newUID(),
			Email:         email,
			DisplayName:   google.DisplayName,
			PhotoURL:      google.PhotoURL,
			EmailVerified: google.EmailVerified,
			GoogleSubject: google.UID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := p.store.Create(ctx, created); err != nil {
			return nil, NewAuthError(CodeInternalError, err)
		}
		rec = &created
	case err != nil:
		return nil, NewAuthError(CodeInternalError, err)
	case rec.Disabled:
		return nil, NewAuthError(CodeUserDisabled, nil)
	case rec.GoogleSubject == "":
		if err := p.store.LinkGoogle(ctx, rec.UID, google.UID, p.now()); err != nil {
			return nil, NewAuthError(CodeInternalError, err)
		}
		rec.GoogleSubject = google.UID
		rec.EmailVerified = true
	}

	return p.issue(ctx, *rec)
}

// SendPasswordReset has no mail transport; the request is only logged.
func (p *LocalProvider) SendPasswordReset(ctx context.Context, email string) error {
	rec, err := p.store.ByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return NewAuthError(CodeUserNotFound, nil)
		}
		return NewAuthError(CodeInternalError, err)
	}
	p.logger.Info("password reset requested", zap.String("uid", rec.UID))
	return nil
}

func (p *LocalProvider) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	stored, err := p.store.FindRefreshToken(ctx, hashToken(refreshToken))
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, NewAuthError(CodeInvalidCredential, nil)
		}
		return nil, NewAuthError(CodeInternalError, err)
	}
	if stored.Revoked {
		return nil, NewAuthError(CodeInvalidCredential, errors.New("refresh token revoked"))
	}
	if p.now().After(stored.ExpiresAt) {
		_ = p.store.RevokeRefreshToken(ctx, stored.ID, "")
		return nil, NewAuthError(CodeUserTokenExpired, nil)
	}

	rec, err := p.store.ByUID(ctx, stored.UID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, NewAuthError(CodeUserNotFound, nil)
		}
		return nil, NewAuthError(CodeInternalError, err)
	}
	if rec.Disabled {
		return nil, NewAuthError(CodeUserDisabled, nil)
	}

	creds, next, err := p.issueWithRecord(ctx, *rec)
	if err != nil {
		return nil, err
	}
	if err := p.store.RevokeRefreshToken(ctx, stored.ID, next.ID); err != nil {
		p.logger.Warn("revoke rotated refresh token failed", zap.String("uid", rec.UID), zap.Error(err))
	}
	return creds, nil
}

func (p *LocalProvider) DeleteAccount(ctx context.Context, idToken string) error {
	token, err := p.Verify(ctx, idToken)
	if err != nil {
		return err
	}
	if err := p.store.Delete(ctx, token.UID); err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return NewAuthError(CodeUserNotFound, nil)
		}
		return NewAuthError(CodeInternalError, err)
	}
	if err := p.store.RevokeAllRefreshTokens(ctx, token.UID); err != nil {
		p.logger.Warn("revoke refresh tokens of deleted account failed", zap.String("uid", token.UID), zap.Error(err))
	}
	p.logger.Info("local account deleted", zap.String("uid", token.UID))
	return nil
}

// Verify checks an ID token issued by this provider.
func (p *LocalProvider) Verify(_ context.Context, rawToken string) (*VerifiedToken, error) {
	claims := &localClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(p.config.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, NewAuthError(CodeUserTokenExpired, err)
		}
		return nil, NewAuthError(CodeInvalidIDToken, err)
	}
	if claims.Subject == "" {
		return nil, NewAuthError(CodeInvalidIDToken, errors.New("token has no subject"))
	}

	return &VerifiedToken{
		Identity: Identity{
			UID:           claims.Subject,
			Email:         claims.Email,
			DisplayName:   claims.Name,
			EmailVerified: claims.EmailVerified,
			PhotoURL:      claims.Picture,
		},
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (p *LocalProvider) issue(ctx context.Context, rec CredentialRecord) (*Credentials, error) {
	creds, _, err := p.issueWithRecord(ctx, rec)
	return creds, err
}

func (p *LocalProvider) issueWithRecord(ctx context.Context, rec CredentialRecord) (*Credentials, *RefreshRecord, error) {
	now := p.now()
	expiresAt := now.Add(p.config.IDTokenTTL)

	claims := localClaims{
		Email:         rec.Email,
		EmailVerified: rec.EmailVerified,
		Name:          rec.DisplayName,
		Picture:       rec.PhotoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    p.config.Issuer,
			Subject:   rec.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.config.Secret))
	if err != nil {
		return nil, nil, NewAuthError(CodeInternalError, err)
	}

	plain, err := generateRefreshString()
	if err != nil {
		return nil, nil, NewAuthError(CodeInternalError, err)
	}
	refresh := RefreshRecord{
		ID:        uuid.NewString(),
		UID:       rec.UID,
		TokenHash: hashToken(plain),
		ExpiresAt: now.Add(p.config.RefreshTokenTTL),
		CreatedAt: now,
	}
	if err := p.store.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, nil, NewAuthError(CodeInternalError, err)
	}

	return &Credentials{
		Identity:     rec.Identity(),
		IDToken:      idToken,
		RefreshToken: plain,
		ExpiresAt:    expiresAt,
	}, &refresh, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

var (
	_ Provider      = (*LocalProvider)(nil)
	_ TokenVerifier = (*LocalProvider)(nil)
)
