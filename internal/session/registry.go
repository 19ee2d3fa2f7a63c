package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sidehustlers/internal/identity"
	"sidehustlers/internal/metrics"
)

// CookieName is the opaque browser session id cookie.
const CookieName = "sh-session"

// ErrRegistryFull is returned by GetOrCreate once MaxEntries sessions are live.
var ErrRegistryFull = errors.New("session: registry full")

type RegistryConfig struct {
	IdleTTL         time.Duration
	RefreshInterval time.Duration
	CleanupInterval time.Duration
	FetchTimeout    time.Duration
	// MaxEntries caps live sessions; each one holds two goroutines.
	MaxEntries int
	Metrics    metrics.Recorder
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		IdleTTL:         24 * time.Hour,
		RefreshInterval: 50 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		FetchTimeout:    defaultFetchTimeout,
		MaxEntries:      100000,
	}
}

// Entry is one browser session.
type Entry struct {
	ID      string
	Client  *identity.Client
	Session *Context

	cancel   context.CancelFunc
	lastSeen atomic.Int64
}

func (e *Entry) touch(now time.Time) {
	e.lastSeen.Store(now.UnixNano())
}

func (e *Entry) close() {
	e.cancel()
	e.Session.Close()
}

// Registry maps session ids to live sessions. Idle sessions are evicted in the
// background; each live session keeps its ID token fresh.
type Registry struct {
	provider identity.Provider
	auth     Authenticator
	profiles ProfileReader
	logger   *zap.Logger
	config   RegistryConfig
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]*Entry

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRegistry(provider identity.Provider, authn Authenticator, profiles ProfileReader, logger *zap.Logger, config RegistryConfig) *Registry {
	defaults := DefaultRegistryConfig()
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaults.IdleTTL
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = defaults.RefreshInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaults.MaxEntries
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Nop{}
	}

	r := &Registry{
		provider: provider,
		auth:     authn,
		profiles: profiles,
		logger:   logger,
		config:   config,
		now:      time.Now,
		entries:  make(map[string]*Entry),
		stopCh:   make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// Get returns the live session for id and marks it as used.
func (r *Registry) Get(id string) (*Entry, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if ok {
		e.touch(r.now())
	}
	return e, ok
}

// GetOrCreate returns the session for id, or a new one with a fresh id when id
// is unknown. created reports whether the caller must set the cookie.
func (r *Registry) GetOrCreate(id string) (e *Entry, created bool, err error) {
	if e, ok := r.Get(id); ok {
		return e, false, nil
	}

	newID, err := newSessionID()
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	if len(r.entries) >= r.config.MaxEntries {
		r.mu.Unlock()
		return nil, false, ErrRegistryFull
	}
	client := identity.NewClient(r.provider, r.logger.Named("identity"))
	ctx, cancel := context.WithCancel(context.Background())
	e = &Entry{
		ID:     newID,
		Client: client,
		Session: New(client, r.auth, r.profiles, r.logger.Named("session"), Config{
			FetchTimeout: r.config.FetchTimeout,
			Metrics:      r.config.Metrics,
		}),
		cancel: cancel,
	}
	e.touch(r.now())
	r.entries[newID] = e
	r.mu.Unlock()

	go client.RunTokenRefresh(ctx, r.config.RefreshInterval)
	return e, true, nil
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if ok {
		e.close()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Close stops the eviction loop and closes every session.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.close()
	}
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) evictIdle() {
	cutoff := r.now().Add(-r.config.IdleTTL).UnixNano()

	var idle []*Entry
	r.mu.Lock()
	for id, e := range r.entries {
		if e.lastSeen.Load() < cutoff {
			idle = append(idle, e)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, e := range idle {
		e.close()
	}
	if len(idle) > 0 {
		r.logger.Info("evicted idle sessions", zap.Int("count", len(idle)))
	}
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
