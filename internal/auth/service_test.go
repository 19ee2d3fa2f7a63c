package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"sidehustlers/internal/identity"
	"sidehustlers/internal/models"
	"sidehustlers/internal/profile"
)

type googleTokens map[string]identity.Identity

func (g googleTokens) Verify(_ context.Context, raw string) (*identity.VerifiedToken, error) {
	id, ok := g[raw]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return &identity.VerifiedToken{Identity: id, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type failingProfiles struct{}

func (failingProfiles) GetProfile(context.Context, string) (models.Profile, error) {
	return nil, profile.ErrNotFound
}

func (failingProfiles) CreateProfile(context.Context, profile.NewProfile) (*models.IncompleteProfile, error) {
	return nil, errors.New("database unavailable")
}

// provisionedElsewhere loses the create race to a concurrent sign-in.
type provisionedElsewhere struct{}

func (provisionedElsewhere) GetProfile(context.Context, string) (models.Profile, error) {
	return nil, profile.ErrNotFound
}

func (provisionedElsewhere) CreateProfile(context.Context, profile.NewProfile) (*models.IncompleteProfile, error) {
	return nil, profile.ErrAlreadyExists
}

type recordingCache struct{ invalidated []string }

func (c *recordingCache) Invalidate(_ context.Context, uid string) error {
	c.invalidated = append(c.invalidated, uid)
	return nil
}

type fixture struct {
	svc      *Service
	provider *identity.LocalProvider
	creds    *identity.MemoryCredentialStore
	profiles *profile.MemoryStore
	client   *identity.Client
	events   []*identity.Identity
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		creds:    identity.NewMemoryCredentialStore(),
		profiles: profile.NewMemoryStore(),
	}
	f.provider = identity.NewLocalProvider(f.creds, identity.LocalConfig{
		Secret:     "test-secret",
		BcryptCost: bcrypt.MinCost,
		GoogleVerifier: googleTokens{
			"google-token": {UID: "g-123", Email: "erika@gmail.com", DisplayName: "Erika Mustermann", EmailVerified: true},
		},
	}, zap.NewNop())
	f.svc = NewService(f.provider, profile.NewService(f.profiles, zap.NewNop()), zap.NewNop(), opts...)
	f.client = identity.NewClient(f.provider, zap.NewNop())
	unsubscribe := f.client.OnAuthStateChanged(func(id *identity.Identity) {
		f.events = append(f.events, id)
	})
	t.Cleanup(unsubscribe)
	return f
}

func TestRegisterCreatesIncompleteProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.RegisterWithEmail(ctx, f.client, RegisterInput{
		Email:       "max@example.com",
		Password:    "Passw0rd!",
		FirstName:   "Max",
		LastName:    "Muster",
		AccountType: models.AccountTypeProvider,
	})
	require.NoError(t, err)

	current := f.client.Current()
	require.NotNil(t, current)
	assert.Equal(t, "Max Muster", current.DisplayName)

	p, err := f.profiles.Get(ctx, current.UID)
	require.NoError(t, err)
	assert.False(t, p.IsComplete())
	assert.Equal(t, models.AccountTypeProvider, p.Base().AccountType)
	assert.Equal(t, "Max", p.Base().FirstName)

	// initial nil from subscribing plus exactly one sign-in event
	require.Len(t, f.events, 2)
	assert.Nil(t, f.events[0])
	assert.Equal(t, current.UID, f.events[1].UID)
}

func TestRegisterRejectsUnknownAccountType(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RegisterWithEmail(context.Background(), f.client, RegisterInput{
		Email:       "max@example.com",
		Password:    "Passw0rd!",
		AccountType: "admin",
	})
	assert.ErrorIs(t, err, ErrInvalidAccountType)
	assert.Equal(t, 0, f.profiles.Len())
}

func TestRegisterDeletesIdentityWhenProfileFails(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.provider, failingProfiles{}, zap.NewNop())
	ctx := context.Background()

	err := svc.RegisterWithEmail(ctx, f.client, RegisterInput{
		Email:       "max@example.com",
		Password:    "Passw0rd!",
		AccountType: models.AccountTypeCustomer,
	})
	require.Error(t, err)
	assert.Nil(t, f.client.Current())

	_, err = f.creds.ByEmail(ctx, "max@example.com")
	assert.ErrorIs(t, err, identity.ErrCredentialNotFound)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := RegisterInput{Email: "max@example.com", Password: "Passw0rd!", AccountType: models.AccountTypeCustomer}
	require.NoError(t, f.svc.RegisterWithEmail(ctx, f.client, in))

	err := f.svc.RegisterWithEmail(ctx, identity.NewClient(f.provider, zap.NewNop()), in)
	authErr := identity.ToAuthError(err)
	assert.Equal(t, identity.CodeEmailAlreadyInUse, authErr.Code)
	assert.Equal(t, 1, f.profiles.Len())
}

func TestLoginWrongPasswordLeavesClientSignedOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.provider.SignUp(ctx, "max@example.com", "Passw0rd!")
	require.NoError(t, err)

	err = f.svc.LoginWithEmail(ctx, f.client, "max@example.com", "falsch")
	authErr := identity.ToAuthError(err)
	assert.Equal(t, identity.CodeWrongPassword, authErr.Code)
	assert.Equal(t, "Falsches Passwort.", authErr.Message)
	assert.Nil(t, f.client.Current())
	assert.Len(t, f.events, 1)
}

func TestLoginEmitsOneEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.provider.SignUp(ctx, "max@example.com", "Passw0rd!")
	require.NoError(t, err)

	require.NoError(t, f.svc.LoginWithEmail(ctx, f.client, " max@example.com ", "Passw0rd!"))
	require.Len(t, f.events, 2)
	assert.Equal(t, "max@example.com", f.events[1].Email)
}

func TestGoogleLoginProvisionsCustomerProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.LoginWithGoogleToken(ctx, f.client, "google-token"))
	current := f.client.Current()
	require.NotNil(t, current)

	p, err := f.profiles.Get(ctx, current.UID)
	require.NoError(t, err)
	assert.Equal(t, models.AccountTypeCustomer, p.Base().AccountType)
	assert.Equal(t, "Erika", p.Base().FirstName)
	assert.Equal(t, "Mustermann", p.Base().LastName)
	assert.False(t, p.IsComplete())

	// second sign-in keeps the existing profile
	f.svc.Logout(ctx, f.client)
	require.NoError(t, f.svc.LoginWithGoogleToken(ctx, f.client, "google-token"))
	assert.Equal(t, 1, f.profiles.Len())
}

func TestGoogleLoginConcurrentProvisioning(t *testing.T) {
	f := newFixture(t)
	core, logs := observer.New(zap.InfoLevel)
	svc := NewService(f.provider, provisionedElsewhere{}, zap.New(core))

	require.NoError(t, svc.LoginWithGoogleToken(context.Background(), f.client, "google-token"))
	require.NotNil(t, f.client.Current())
	assert.Zero(t, logs.FilterMessage("provisioned customer profile for google user").Len())
}

func TestGoogleLoginRejectsBadToken(t *testing.T) {
	f := newFixture(t)

	err := f.svc.LoginWithGoogleToken(context.Background(), f.client, "forged")
	assert.True(t, identity.HasCode(err, identity.CodeInvalidCredential))
	assert.Equal(t, 0, f.profiles.Len())
}

type fakeRedirect struct {
	raw   string
	nonce string
}

func (r *fakeRedirect) LoginURL(state, nonce string) string {
	return "https://accounts.example/auth?state=" + state + "&nonce=" + nonce
}

func (r *fakeRedirect) Exchange(_ context.Context, code, nonce string) (string, *identity.VerifiedToken, error) {
	r.nonce = nonce
	if code != "good-code" {
		return "", nil, identity.NewAuthError(identity.CodeInvalidCredential, nil)
	}
	return r.raw, nil, nil
}

func TestGoogleRedirectFlow(t *testing.T) {
	redirect := &fakeRedirect{raw: "google-token"}
	f := newFixture(t, WithGoogleRedirect(redirect))
	ctx := context.Background()

	pending, err := f.svc.GoogleLoginURL()
	require.NoError(t, err)
	assert.True(t, strings.Contains(pending.URL, "state="+pending.State))
	assert.NotEqual(t, pending.State, pending.Nonce)

	err = f.svc.CompleteGoogleRedirect(ctx, f.client, "good-code", "tampered", *pending)
	assert.True(t, identity.HasCode(err, identity.CodeCancelledPopupRequest))
	assert.Nil(t, f.client.Current())

	require.NoError(t, f.svc.CompleteGoogleRedirect(ctx, f.client, "good-code", pending.State, *pending))
	assert.Equal(t, pending.Nonce, redirect.nonce)
	require.NotNil(t, f.client.Current())
	assert.Equal(t, "erika@gmail.com", f.client.Current().Email)
}

func TestGoogleDisabled(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GoogleLoginURL()
	assert.True(t, identity.HasCode(err, identity.CodeOperationNotAllowed))
}

func TestLogoutInvalidatesProfileCache(t *testing.T) {
	cache := &recordingCache{}
	f := newFixture(t, WithProfileCache(cache))
	ctx := context.Background()
	require.NoError(t, f.svc.RegisterWithEmail(ctx, f.client, RegisterInput{
		Email: "max@example.com", Password: "Passw0rd!", AccountType: models.AccountTypeCustomer,
	}))
	uid := f.client.Current().UID

	f.svc.Logout(ctx, f.client)
	assert.Nil(t, f.client.Current())
	assert.Equal(t, []string{uid}, cache.invalidated)

	// already signed out: no further event, no invalidation
	f.svc.Logout(ctx, f.client)
	assert.Len(t, cache.invalidated, 1)
	assert.Len(t, f.events, 3)
}

func TestPasswordResetDoesNotRevealUnknownEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.NoError(t, f.svc.SendPasswordReset(ctx, "nobody@example.com"))

	_, err := f.provider.SignUp(ctx, "max@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.NoError(t, f.svc.SendPasswordReset(ctx, "max@example.com"))
}

func TestSplitDisplayName(t *testing.T) {
	first, last := splitDisplayName("Anna Maria Schmidt", "a@b.de")
	assert.Equal(t, "Anna", first)
	assert.Equal(t, "Maria Schmidt", last)

	first, last = splitDisplayName("", "hans.meier@b.de")
	assert.Equal(t, "hans.meier", first)
	assert.Empty(t, last)
}
