package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestLocal(t *testing.T) (*LocalProvider, *MemoryCredentialStore) {
	t.Helper()
	store := NewMemoryCredentialStore()
	p := NewLocalProvider(store, LocalConfig{
		Secret:     "test-secret",
		BcryptCost: bcrypt.MinCost,
	}, zap.NewNop())
	return p, store
}

func TestLocalSignUpAndSignIn(t *testing.T) {
	p, _ := newTestLocal(t)
	ctx := context.Background()

	created, err := p.SignUp(ctx, " A@B.com ", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", created.Email)
	assert.NotEmpty(t, created.UID)
	assert.NotEmpty(t, created.RefreshToken)

	creds, err := p.SignInWithPassword(ctx, "a@b.com", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, created.UID, creds.UID)

	verified, err := p.Verify(ctx, creds.IDToken)
	require.NoError(t, err)
	assert.Equal(t, created.UID, verified.UID)
	assert.Equal(t, "a@b.com", verified.Email)
}

func TestLocalSignInErrors(t *testing.T) {
	p, _ := newTestLocal(t)
	ctx := context.Background()
	_, err := p.SignUp(ctx, "a@b.com", "Passw0rd!")
	require.NoError(t, err)

	_, err = p.SignInWithPassword(ctx, "a@b.com", "wrong")
	authErr := ToAuthError(err)
	assert.Equal(t, CodeWrongPassword, authErr.Code)
	assert.Equal(t, "Falsches Passwort.", authErr.Message)

	_, err = p.SignInWithPassword(ctx, "nobody@b.com", "Passw0rd!")
	assert.True(t, HasCode(err, CodeUserNotFound))
}

func TestLocalSignUpValidation(t *testing.T) {
	p, _ := newTestLocal(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "not-an-email", "Passw0rd!")
	assert.True(t, HasCode(err, CodeInvalidEmail))

	_, err = p.SignUp(ctx, "a@b.com", "123")
	assert.True(t, HasCode(err, CodeWeakPassword))

	_, err = p.SignUp(ctx, "a@b.com", "Passw0rd!")
	require.NoError(t, err)
	_, err = p.SignUp(ctx, "A@b.com", "Passw0rd!")
	assert.True(t, HasCode(err, CodeEmailAlreadyInUse))
}

func TestLocalRefreshRotatesTokens(t *testing.T) {
	p, _ := newTestLocal(t)
	ctx := context.Background()

	creds, err := p.SignUp(ctx, "a@b.com", "Passw0rd!")
	require.NoError(t, err)

	next, err := p.Refresh(ctx, creds.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, creds.RefreshToken, next.RefreshToken)
	assert.Equal(t, creds.UID, next.UID)

	_, err = p.Refresh(ctx, creds.RefreshToken)
	assert.True(t, HasCode(err, CodeInvalidCredential), "rotated token must not be reusable")

	_, err = p.Refresh(ctx, "unknown")
	assert.True(t, HasCode(err, CodeInvalidCredential))
}

func TestLocalRefreshExpired(t *testing.T) {
	p, _ := newTestLocal(t)
	ctx := context.Background()

	creds, err := p.SignUp(ctx, "a@b.com", "Passw0rd!")
	require.NoError(t, err)

	p.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	_, err = p.Refresh(ctx, creds.RefreshToken)
	assert.True(t, HasCode(err, CodeUserTokenExpired))

	_, err = p.Verify(ctx, creds.IDToken)
	assert.True(t, HasCode(err, CodeUserTokenExpired))
}

func TestLocalUpdateDisplayNameAndDelete(t *testing.T) {
	p, store := newTestLocal(t)
	ctx := context.Background()

	creds, err := p.SignUp(ctx, "a@b.com", "Passw0rd!")
	require.NoError(t, err)

	require.NoError(t, p.UpdateDisplayName(ctx, creds.IDToken, "Max Mustermann"))
	rec, err := store.ByUID(ctx, creds.UID)
	require.NoError(t, err)
	assert.Equal(t, "Max Mustermann", rec.DisplayName)

	require.NoError(t, p.DeleteAccount(ctx, creds.IDToken))
	_, err = store.ByUID(ctx, creds.UID)
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	_, err = p.Refresh(ctx, creds.RefreshToken)
	assert.True(t, HasCode(err, CodeInvalidCredential))
}

func TestLocalVerifyRejectsForeignTokens(t *testing.T) {
	p, _ := newTestLocal(t)
	other := NewLocalProvider(NewMemoryCredentialStore(), LocalConfig{Secret: "other", BcryptCost: bcrypt.MinCost}, zap.NewNop())

	creds, err := other.SignUp(context.Background(), "a@b.com", "Passw0rd!")
	require.NoError(t, err)

	_, err = p.Verify(context.Background(), creds.IDToken)
	assert.True(t, HasCode(err, CodeInvalidIDToken))
}

type stubVerifier struct {
	token *VerifiedToken
	err   error
}

func (s stubVerifier) Verify(context.Context, string) (*VerifiedToken, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.token
	return &out, nil
}

func TestLocalSignInWithGoogle(t *testing.T) {
	p, store := newTestLocal(t)
	ctx := context.Background()

	_, err := p.SignInWithIDP(ctx, ProviderGoogle, "google-token")
	assert.True(t, HasCode(err, CodeOperationNotAllowed))

	p.config.GoogleVerifier = stubVerifier{token: &VerifiedToken{Identity: Identity{
		UID: "google-sub", Email: "g@b.com", DisplayName: "Erika Musterfrau", EmailVerified: true,
	}}}

	first, err := p.SignInWithIDP(ctx, ProviderGoogle, "google-token")
	require.NoError(t, err)
	assert.Equal(t, "Erika Musterfrau", first.DisplayName)

	second, err := p.SignInWithIDP(ctx, ProviderGoogle, "google-token")
	require.NoError(t, err)
	assert.Equal(t, first.UID, second.UID)

	rec, err := store.ByEmail(ctx, "g@b.com")
	require.NoError(t, err)
	assert.Equal(t, "google-sub", rec.GoogleSubject)
	assert.Empty(t, rec.PasswordHash)
}

func TestLocalPasswordReset(t *testing.T) {
	p, _ := newTestLocal(t)
	ctx := context.Background()
	_, err := p.SignUp(ctx, "a@b.com", "Passw0rd!")
	require.NoError(t, err)

	assert.NoError(t, p.SendPasswordReset(ctx, "a@b.com"))
	assert.True(t, HasCode(p.SendPasswordReset(ctx, "x@b.com"), CodeUserNotFound))
}
