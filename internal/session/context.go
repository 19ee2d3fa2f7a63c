// Package session holds the server-side view of each browser session: who is
// signed in and whether their profile is complete.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sidehustlers/internal/auth"
	"sidehustlers/internal/identity"
	"sidehustlers/internal/metrics"
	"sidehustlers/internal/models"
	"sidehustlers/internal/profile"
)

const (
	msgProfileNotFound = "Profil nicht gefunden."
	msgProfileFailed   = "Fehler beim Laden des Profils."

	defaultFetchTimeout = 10 * time.Second
)

var ErrClosed = errors.New("session: closed")

// Authenticator is implemented by auth.Service.
type Authenticator interface {
	LoginWithEmail(ctx context.Context, client *identity.Client, email, password string) error
	RegisterWithEmail(ctx context.Context, client *identity.Client, in auth.RegisterInput) error
	LoginWithGoogleToken(ctx context.Context, client *identity.Client, googleIDToken string) error
	CompleteGoogleRedirect(ctx context.Context, client *identity.Client, code, state string, pending auth.GoogleLogin) error
	Logout(ctx context.Context, client *identity.Client)
	SendPasswordReset(ctx context.Context, email string) error
}

type ProfileReader interface {
	GetProfile(ctx context.Context, uid string) (models.Profile, error)
}

// Listener must not call back into the Context it is subscribed to.
type Listener func(Snapshot)

type Config struct {
	FetchTimeout time.Duration
	Metrics      metrics.Recorder
}

// Context owns the state of one browser session. A single goroutine applies
// auth-state events, profile fetch results and actions in arrival order; every
// auth-state event starts a new fetch generation and results from older
// generations are dropped.
type Context struct {
	client   *identity.Client
	auth     Authenticator
	profiles ProfileReader
	logger   *zap.Logger
	metrics  metrics.Recorder
	timeout  time.Duration

	inbox     chan message
	done      chan struct{}
	closeOnce sync.Once
	stopAuth  func()

	snap atomic.Pointer[Snapshot]
}

type message interface{}

type authEvent struct{ id *identity.Identity }

type fetchResult struct {
	gen     uint64
	profile models.Profile
	err     error
}

type refreshRequest struct{ reply chan struct{} }

type settledRequest struct{ reply chan struct{} }

type errorUpdate struct{ message string }

type subscribeRequest struct {
	id uint64
	fn Listener
}

type unsubscribeRequest struct{ id uint64 }

func New(client *identity.Client, authn Authenticator, profiles ProfileReader, logger *zap.Logger, cfg Config) *Context {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop{}
	}
	c := &Context{
		client:   client,
		auth:     authn,
		profiles: profiles,
		logger:   logger,
		metrics:  cfg.Metrics,
		timeout:  cfg.FetchTimeout,
		inbox:    make(chan message, 16),
		done:     make(chan struct{}),
	}
	c.snap.Store(&Snapshot{State: StateUnknown, Loading: true})

	go c.run()
	c.stopAuth = client.OnAuthStateChanged(func(id *identity.Identity) {
		c.send(authEvent{id: id})
	})
	return c
}

func (c *Context) Client() *identity.Client { return c.client }

func (c *Context) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Close unsubscribes from the client and cancels any in-flight fetch.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.stopAuth()
		close(c.done)
	})
}

func (c *Context) send(m message) bool {
	select {
	case c.inbox <- m:
		return true
	case <-c.done:
		return false
	}
}

// Settled waits until no profile fetch is in flight and returns the result.
func (c *Context) Settled(ctx context.Context) (Snapshot, error) {
	return c.await(ctx, func(reply chan struct{}) message { return settledRequest{reply: reply} })
}

// RefreshProfile re-reads the profile of the signed-in identity, typically
// after a completion form was submitted.
func (c *Context) RefreshProfile(ctx context.Context) (Snapshot, error) {
	return c.await(ctx, func(reply chan struct{}) message { return refreshRequest{reply: reply} })
}

func (c *Context) await(ctx context.Context, build func(chan struct{}) message) (Snapshot, error) {
	reply := make(chan struct{}, 1)
	if !c.send(build(reply)) {
		return c.Snapshot(), ErrClosed
	}
	select {
	case <-reply:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	case <-c.done:
		return c.Snapshot(), ErrClosed
	}
}

func (c *Context) Login(ctx context.Context, email, password string) (Snapshot, error) {
	return c.act(ctx, func() error {
		return c.auth.LoginWithEmail(ctx, c.client, email, password)
	})
}

func (c *Context) Register(ctx context.Context, in auth.RegisterInput) (Snapshot, error) {
	return c.act(ctx, func() error {
		return c.auth.RegisterWithEmail(ctx, c.client, in)
	})
}

func (c *Context) LoginWithGoogle(ctx context.Context, googleIDToken string) (Snapshot, error) {
	return c.act(ctx, func() error {
		return c.auth.LoginWithGoogleToken(ctx, c.client, googleIDToken)
	})
}

func (c *Context) CompleteGoogleRedirect(ctx context.Context, code, state string, pending auth.GoogleLogin) (Snapshot, error) {
	return c.act(ctx, func() error {
		return c.auth.CompleteGoogleRedirect(ctx, c.client, code, state, pending)
	})
}

func (c *Context) Logout(ctx context.Context) (Snapshot, error) {
	return c.act(ctx, func() error {
		c.auth.Logout(ctx, c.client)
		return nil
	})
}

func (c *Context) SendPasswordReset(ctx context.Context, email string) error {
	c.send(errorUpdate{})
	if err := c.auth.SendPasswordReset(ctx, email); err != nil {
		c.send(errorUpdate{message: identity.ToAuthError(err).Message})
		return err
	}
	return nil
}

func (c *Context) ClearError() {
	c.send(errorUpdate{})
}

// act clears the previous error, runs fn and waits for the profile fetch the
// resulting auth-state event started. A failed action keeps the current state
// and records its message.
func (c *Context) act(ctx context.Context, fn func() error) (Snapshot, error) {
	c.send(errorUpdate{})
	if err := fn(); err != nil {
		c.send(errorUpdate{message: identity.ToAuthError(err).Message})
		snap, _ := c.Settled(ctx)
		return snap, err
	}
	return c.Settled(ctx)
}

var nextListenerID atomic.Uint64

// Subscribe calls fn with the current snapshot and then with every change.
func (c *Context) Subscribe(fn Listener) (unsubscribe func()) {
	id := nextListenerID.Add(1)
	c.send(subscribeRequest{id: id, fn: fn})
	var once sync.Once
	return func() {
		once.Do(func() { c.send(unsubscribeRequest{id: id}) })
	}
}

// actor state, only touched by run
type loop struct {
	c         *Context
	current   Snapshot
	gen       uint64
	inFlight  bool
	cancel    context.CancelFunc
	waiters   []chan struct{}
	listeners map[uint64]Listener
}

func (c *Context) run() {
	l := &loop{
		c:         c,
		current:   *c.snap.Load(),
		listeners: make(map[uint64]Listener),
	}
	defer l.stopFetch()

	for {
		select {
		case <-c.done:
			return
		case m := <-c.inbox:
			l.handle(m)
		}
	}
}

func (l *loop) handle(m message) {
	switch m := m.(type) {
	case authEvent:
		l.onAuthState(m.id)
	case fetchResult:
		l.onFetchResult(m)
	case refreshRequest:
		if l.current.Identity == nil {
			m.reply <- struct{}{}
			return
		}
		l.startFetch(l.current.Identity.UID)
		next := l.current
		next.Loading = true
		l.publish(next)
		l.waiters = append(l.waiters, m.reply)
	case settledRequest:
		if !l.inFlight {
			m.reply <- struct{}{}
			return
		}
		l.waiters = append(l.waiters, m.reply)
	case errorUpdate:
		if l.current.Err == m.message {
			return
		}
		next := l.current
		next.Err = m.message
		l.publish(next)
	case subscribeRequest:
		l.listeners[m.id] = m.fn
		m.fn(l.current)
	case unsubscribeRequest:
		delete(l.listeners, m.id)
	}
}

func (l *loop) onAuthState(id *identity.Identity) {
	if id == nil {
		l.stopFetch()
		l.publish(Snapshot{State: StateLoggedOut, Err: l.current.Err})
		l.release()
		return
	}

	next := l.current
	if next.Identity == nil || next.Identity.UID != id.UID {
		next.State = StateUnknown
		next.Profile = nil
	}
	next.Identity = id
	next.Loading = true
	l.startFetch(id.UID)
	l.publish(next)
}

func (l *loop) startFetch(uid string) {
	l.stopFetch()
	l.gen++
	l.inFlight = true

	gen := l.gen
	ctx, cancel := context.WithTimeout(context.Background(), l.c.timeout)
	l.cancel = cancel
	go func() {
		defer cancel()
		p, err := l.c.profiles.GetProfile(ctx, uid)
		l.c.send(fetchResult{gen: gen, profile: p, err: err})
	}()
}

func (l *loop) stopFetch() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.inFlight = false
}

func (l *loop) onFetchResult(r fetchResult) {
	if r.gen != l.gen || !l.inFlight || l.current.Identity == nil {
		return
	}
	l.inFlight = false
	l.cancel = nil

	next := l.current
	next.Loading = false
	switch {
	case errors.Is(r.err, profile.ErrNotFound):
		next.State = StateError
		next.Profile = nil
		next.Err = msgProfileNotFound
	case r.err != nil:
		l.c.logger.Warn("profile fetch failed", zap.String("uid", next.Identity.UID), zap.Error(r.err))
		next.State = StateError
		next.Err = msgProfileFailed
	case r.profile.IsComplete():
		next.State = StateLoggedInComplete
		next.Profile = r.profile
		next.Err = ""
	default:
		next.State = StateLoggedInIncomplete
		next.Profile = r.profile
		next.Err = ""
	}
	l.publish(next)
	l.release()
}

func (l *loop) release() {
	for _, w := range l.waiters {
		w <- struct{}{}
	}
	l.waiters = nil
}

func (l *loop) publish(next Snapshot) {
	if next.State != l.current.State {
		l.c.metrics.RecordSessionTransition(next.State.String())
		l.c.logger.Debug("session state changed",
			zap.Stringer("from", l.current.State),
			zap.Stringer("to", next.State),
		)
	}
	l.current = next
	snap := next
	l.c.snap.Store(&snap)
	for _, fn := range l.listeners {
		fn(next)
	}
}
