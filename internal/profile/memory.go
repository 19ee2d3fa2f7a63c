package profile

import (
	"context"
	"sync"
	"time"

	"sidehustlers/internal/models"
)

// MemoryStore keeps profile documents in process.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]models.ProfileDocument
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]models.ProfileDocument)}
}

func (s *MemoryStore) Get(_ context.Context, uid string) (models.Profile, error) {
	s.mu.RLock()
	doc, ok := s.docs[uid]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc).Profile()
}

func (s *MemoryStore) Create(_ context.Context, p models.Profile) error {
	doc := cloneDocument(models.NewProfileDocument(p))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.UID]; ok {
		return ErrAlreadyExists
	}
	s.docs[doc.UID] = doc
	return nil
}

func (s *MemoryStore) Save(_ context.Context, p models.Profile) error {
	doc := cloneDocument(models.NewProfileDocument(p))

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.docs[doc.UID]; ok {
		if existing.AccountType != doc.AccountType || (existing.IsProfileComplete && !doc.IsProfileComplete) {
			return ErrConflict
		}
	}
	s.docs[doc.UID] = doc
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, uid string, patch models.ProfilePatch, now time.Time) (models.Profile, error) {
	return patchProfile(ctx, s, uid, patch, now)
}

// Len reports the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func cloneDocument(doc models.ProfileDocument) models.ProfileDocument {
	out := doc
	if doc.Address != nil {
		addr := *doc.Address
		out.Address = &addr
	}
	if doc.WorkingHours != nil {
		hours := *doc.WorkingHours
		out.WorkingHours = &hours
	}
	if doc.Verification != nil {
		v := *doc.Verification
		out.Verification = &v
	}
	if doc.Documents != nil {
		d := *doc.Documents
		out.Documents = &d
	}
	out.Services = append(models.StringList(nil), doc.Services...)
	out.ServiceArea = append(models.StringList(nil), doc.ServiceArea...)
	return out
}

var _ Store = (*MemoryStore)(nil)
