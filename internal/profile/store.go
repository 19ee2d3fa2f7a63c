// Package profile reads and writes the per-user profile document and runs
// the profile completion flows.
package profile

import (
	"context"
	"errors"
	"time"

	"sidehustlers/internal/models"
)

var (
	ErrNotFound            = errors.New("profile: not found")
	ErrAlreadyExists       = errors.New("profile: already exists")
	ErrAccountTypeMismatch = errors.New("profile: account type mismatch")
	// ErrConflict is returned when a write would change the account type or
	// turn a complete profile back into an incomplete one.
	ErrConflict = errors.New("profile: write conflicts with stored profile")
)

// Store persists one document per identity uid. Writes are keyed and last
// writer wins.
type Store interface {
	Get(ctx context.Context, uid string) (models.Profile, error)
	Create(ctx context.Context, p models.Profile) error
	Save(ctx context.Context, p models.Profile) error
	Update(ctx context.Context, uid string, patch models.ProfilePatch, now time.Time) (models.Profile, error)
}

// patchProfile is the read-modify-write shared by the stores.
func patchProfile(ctx context.Context, s Store, uid string, patch models.ProfilePatch, now time.Time) (models.Profile, error) {
	p, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if err := models.ApplyPatch(p, patch, now); err != nil {
		return nil, err
	}
	if err := s.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
