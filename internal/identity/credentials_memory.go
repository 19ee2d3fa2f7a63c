package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCredentialStore keeps accounts in process. Used by the local
// provider in development and by tests.
type MemoryCredentialStore struct {
	mu       sync.Mutex
	accounts map[string]CredentialRecord
	refresh  map[string]RefreshRecord
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		accounts: make(map[string]CredentialRecord),
		refresh:  make(map[string]RefreshRecord),
	}
}

func (s *MemoryCredentialStore) Create(_ context.Context, rec CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, rec.Email) {
			return ErrEmailExists
		}
	}
	s.accounts[rec.UID] = rec
	return nil
}

func (s *MemoryCredentialStore) ByEmail(_ context.Context, email string) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.accounts {
		if strings.EqualFold(rec.Email, email) {
			out := rec
			return &out, nil
		}
	}
	return nil, ErrCredentialNotFound
}

func (s *MemoryCredentialStore) ByUID(_ context.Context, uid string) (*CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[uid]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return &rec, nil
}

func (s *MemoryCredentialStore) UpdateDisplayName(_ context.Context, uid, displayName string, now time.Time) error {
	return s.update(uid, func(rec *CredentialRecord) {
		rec.DisplayName = displayName
		rec.UpdatedAt = now
	})
}

func (s *MemoryCredentialStore) LinkGoogle(_ context.Context, uid, subject string, now time.Time) error {
	return s.update(uid, func(rec *CredentialRecord) {
		rec.GoogleSubject = subject
		rec.EmailVerified = true
		rec.UpdatedAt = now
	})
}

func (s *MemoryCredentialStore) update(uid string, fn func(*CredentialRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[uid]
	if !ok {
		return ErrCredentialNotFound
	}
	fn(&rec)
	s.accounts[uid] = rec
	return nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[uid]; !ok {
		return ErrCredentialNotFound
	}
	delete(s.accounts, uid)
	return nil
}

func (s *MemoryCredentialStore) SaveRefreshToken(_ context.Context, rec RefreshRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[rec.TokenHash] = rec
	return nil
}

func (s *MemoryCredentialStore) FindRefreshToken(_ context.Context, tokenHash string) (*RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refresh[tokenHash]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return &rec, nil
}

func (s *MemoryCredentialStore) RevokeRefreshToken(_ context.Context, id, replacedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, rec := range s.refresh {
		if rec.ID == id {
			rec.Revoked = true
			rec.ReplacedBy = replacedBy
			s.refresh[hash] = rec
			return nil
		}
	}
	return ErrCredentialNotFound
}

func (s *MemoryCredentialStore) RevokeAllRefreshTokens(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, rec := range s.refresh {
		if rec.UID == uid {
			rec.Revoked = true
			s.refresh[hash] = rec
		}
	}
	return nil
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
