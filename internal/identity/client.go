package identity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AuthStateListener receives the current identity, or nil once signed out.
// Listeners run synchronously and must not call back into the Client.
type AuthStateListener func(*Identity)

// Client holds the signed-in state of one browser session, the way the
// identity SDK does in a browser. It emits an auth-state event on sign-in,
// sign-out and token refresh.
type Client struct {
	provider Provider
	logger   *zap.Logger

	// emitMu orders state changes with their events.
	emitMu sync.Mutex

	mu        sync.Mutex
	creds     *Credentials
	listeners map[uint64]AuthStateListener
	nextID    uint64
}

func NewClient(provider Provider, logger *zap.Logger) *Client {
	return &Client{
		provider:  provider,
		logger:    logger,
		listeners: make(map[uint64]AuthStateListener),
	}
}

func (c *Client) Provider() Provider { return c.provider }

// Current returns a copy of the signed-in identity, or nil.
func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return nil
	}
	id := c.creds.Identity
	return &id
}

func (c *Client) IDToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return ""
	}
	return c.creds.IDToken
}

// SetCredentials signs the client in and emits exactly one event.
func (c *Client) SetCredentials(creds *Credentials) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	cp := *creds
	c.mu.Lock()
	c.creds = &cp
	c.mu.Unlock()

	id := cp.Identity
	c.emit(&id)
}

// SignOut clears the credentials. An event is emitted only if the client was
// signed in.
func (c *Client) SignOut() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	wasSignedIn := c.creds != nil
	c.creds = nil
	c.mu.Unlock()

	if wasSignedIn {
		c.emit(nil)
	}
}

// OnAuthStateChanged registers fn and immediately calls it with the current
// state. The returned func unsubscribes and is safe to call more than once.
func (c *Client) OnAuthStateChanged(fn AuthStateListener) (unsubscribe func()) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	var current *Identity
	if c.creds != nil {
		ident := c.creds.Identity
		current = &ident
	}
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Refresh exchanges the refresh token for a new ID token and emits an event.
// Credentials that the provider rejects sign the client out.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.creds == nil {
		c.mu.Unlock()
		return nil
	}
	prev := *c.creds
	c.mu.Unlock()

	next, err := c.provider.Refresh(ctx, prev.RefreshToken)
	if err != nil {
		if isTerminal(err) {
			c.logger.Info("refresh rejected, signing out", zap.String("uid", prev.UID), zap.Error(err))
			c.SignOut()
		}
		return err
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.creds == nil || c.creds.RefreshToken != prev.RefreshToken {
		// signed out or replaced while the refresh was in flight
		c.mu.Unlock()
		return nil
	}
	merged := mergeCredentials(prev, *next)
	c.creds = &merged
	c.mu.Unlock()

	id := merged.Identity
	c.emit(&id)
	return nil
}

// RunTokenRefresh refreshes the token every interval until ctx is done.
func (c *Client) RunTokenRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn("token refresh failed", zap.Error(err))
			}
		}
	}
}

func (c *Client) emit(id *Identity) {
	c.mu.Lock()
	listeners := make([]AuthStateListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		if id == nil {
			fn(nil)
			continue
		}
		cp := *id
		fn(&cp)
	}
}

func mergeCredentials(prev, next Credentials) Credentials {
	out := next
	if out.UID == "" {
		out.UID = prev.UID
	}
	if out.Email == "" {
		out.Email = prev.Email
	}
	if out.DisplayName == "" {
		out.DisplayName = prev.DisplayName
	}
	if out.PhotoURL == "" {
		out.PhotoURL = prev.PhotoURL
	}
	if !out.EmailVerified {
		out.EmailVerified = prev.EmailVerified
	}
	if out.RefreshToken == "" {
		out.RefreshToken = prev.RefreshToken
	}
	return out
}

func isTerminal(err error) bool {
	return HasCode(err, CodeInvalidCredential) ||
		HasCode(err, CodeUserTokenExpired) ||
		HasCode(err, CodeUserDisabled) ||
		HasCode(err, CodeUserNotFound)
}
