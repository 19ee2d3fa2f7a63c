package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sidehustlers/internal/auth"
	"sidehustlers/internal/identity"
	"sidehustlers/internal/models"
	"sidehustlers/internal/profile"
)

type harness struct {
	provider *identity.LocalProvider
	profiles *profile.Service
	auth     *auth.Service
	client   *identity.Client
	session  *Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{}
	h.provider = identity.NewLocalProvider(identity.NewMemoryCredentialStore(), identity.LocalConfig{
		Secret:     "test-secret",
		BcryptCost: bcrypt.MinCost,
	}, zap.NewNop())
	h.profiles = profile.NewService(profile.NewMemoryStore(), zap.NewNop())
	h.auth = auth.NewService(h.provider, h.profiles, zap.NewNop())
	h.client = identity.NewClient(h.provider, zap.NewNop())
	h.session = New(h.client, h.auth, h.profiles, zap.NewNop(), Config{})
	t.Cleanup(h.session.Close)
	return h
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSessionStartsLoggedOut(t *testing.T) {
	h := newHarness(t)

	snap, err := h.session.Settled(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, StateLoggedOut, snap.State)
	assert.Nil(t, snap.Identity)
	assert.False(t, snap.Loading)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	snap, err := h.session.Register(ctx, auth.RegisterInput{
		Email:       "kunde@example.com",
		Password:    "Passw0rd!",
		FirstName:   "Klara",
		LastName:    "Kunde",
		AccountType: models.AccountTypeCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, StateLoggedInIncomplete, snap.State)
	assert.False(t, snap.IsProfileComplete())
	require.NotNil(t, snap.Identity)
	uid := snap.Identity.UID

	_, err = h.profiles.CompleteCustomerProfile(ctx, uid, profile.CustomerDetails{Phone: "0301234567"})
	require.NoError(t, err)

	// the stored profile changed but no auth event fired
	assert.Equal(t, StateLoggedInIncomplete, h.session.Snapshot().State)

	snap, err = h.session.RefreshProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateLoggedInComplete, snap.State)
	assert.True(t, snap.IsProfileComplete())

	snap, err = h.session.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateLoggedOut, snap.State)
	assert.Nil(t, snap.Identity)
	assert.Nil(t, snap.Profile)
	assert.Nil(t, h.client.Current())
}

func TestSessionLoginFailureKeepsStateAndRecordsMessage(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)
	_, err := h.provider.SignUp(ctx, "a@example.com", "Passw0rd!")
	require.NoError(t, err)

	snap, err := h.session.Login(ctx, "a@example.com", "falsch")
	require.Error(t, err)
	assert.Equal(t, StateLoggedOut, snap.State)
	assert.Equal(t, "Falsches Passwort.", snap.Err)

	h.session.ClearError()
	snap, err = h.session.Settled(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Err)
}

func TestSessionMissingProfileIsError(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	// identity without a profile document
	creds, err := h.provider.SignUp(ctx, "orphan@example.com", "Passw0rd!")
	require.NoError(t, err)
	h.client.SetCredentials(creds)

	snap, err := h.session.Settled(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, "Profil nicht gefunden.", snap.Err)
	require.NotNil(t, snap.Identity, "a failed fetch does not log the user out")
	assert.Equal(t, creds.UID, snap.Identity.UID)
}

type gatedProfiles struct {
	mu       sync.Mutex
	gates    map[string]chan struct{}
	profiles map[string]models.Profile
}

func (g *gatedProfiles) GetProfile(_ context.Context, uid string) (models.Profile, error) {
	g.mu.Lock()
	gate := g.gates[uid]
	p := g.profiles[uid]
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if p == nil {
		return nil, profile.ErrNotFound
	}
	return p, nil
}

func credentialsFor(uid string) *identity.Credentials {
	return &identity.Credentials{
		Identity: identity.Identity{UID: uid, Email: uid + "@example.com"},
		IDToken:  "token-" + uid,
	}
}

func TestStaleProfileFetchIsDiscarded(t *testing.T) {
	gateA := make(chan struct{})
	profiles := &gatedProfiles{
		gates: map[string]chan struct{}{"user-a": gateA},
		profiles: map[string]models.Profile{
			"user-a": &models.CustomerProfile{ProfileBase: models.ProfileBase{UID: "user-a", AccountType: models.AccountTypeCustomer}},
			"user-b": &models.IncompleteProfile{ProfileBase: models.ProfileBase{UID: "user-b", AccountType: models.AccountTypeProvider}},
		},
	}
	client := identity.NewClient(nil, zap.NewNop())
	s := New(client, nil, profiles, zap.NewNop(), Config{})
	t.Cleanup(s.Close)
	ctx := testContext(t)

	client.SetCredentials(credentialsFor("user-a"))
	assert.True(t, s.Snapshot().Loading)
	client.SetCredentials(credentialsFor("user-b"))

	snap, err := s.Settled(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-b", snap.Identity.UID)
	assert.Equal(t, StateLoggedInIncomplete, snap.State)

	// user-a's fetch resolves last and must not overwrite user-b
	close(gateA)
	assert.Never(t, func() bool {
		cur := s.Snapshot()
		return cur.State != StateLoggedInIncomplete || cur.Profile.Base().UID != "user-b"
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestSubscribeDeliversSnapshots(t *testing.T) {
	h := newHarness(t)
	ctx := testContext(t)

	var mu sync.Mutex
	var states []State
	unsubscribe := h.session.Subscribe(func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	})

	_, err := h.session.Register(ctx, auth.RegisterInput{
		Email:       "p@example.com",
		Password:    "Passw0rd!",
		AccountType: models.AccountTypeProvider,
	})
	require.NoError(t, err)
	unsubscribe()
	_, err = h.session.Logout(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, states)
	assert.Equal(t, StateLoggedOut, states[0])
	assert.Equal(t, StateLoggedInIncomplete, states[len(states)-1])
	assert.NotContains(t, states[1:], StateLoggedOut)
}

func TestClosedSessionRejectsWaits(t *testing.T) {
	h := newHarness(t)
	h.session.Close()

	_, err := h.session.RefreshProfile(testContext(t))
	assert.ErrorIs(t, err, ErrClosed)
}
