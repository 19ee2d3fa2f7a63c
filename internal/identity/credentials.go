package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	ErrCredentialNotFound = errors.New("identity: credential not found")
	ErrEmailExists        = errors.New("identity: email already registered")
)

// CredentialRecord is an account held by the local provider.
type CredentialRecord struct {
	UID           string    `bson:"_id"`
	Email         string    `bson:"email"`
	PasswordHash  string    `bson:"passwordHash,omitempty"`
	DisplayName   string    `bson:"displayName,omitempty"`
	PhotoURL      string    `bson:"photoUrl,omitempty"`
	EmailVerified bool      `bson:"emailVerified"`
	GoogleSubject string    `bson:"googleSubject,omitempty"`
	Disabled      bool      `bson:"disabled"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func (r CredentialRecord) Identity() Identity {
	return Identity{
		UID:           r.UID,
		Email:         r.Email,
		DisplayName:   r.DisplayName,
		EmailVerified: r.EmailVerified,
		PhotoURL:      r.PhotoURL,
	}
}

// RefreshRecord stores only the SHA-256 of a refresh token.
type RefreshRecord struct {
	ID         string    `bson:"_id"`
	UID        string    `bson:"uid"`
	TokenHash  string    `bson:"tokenHash"`
	ExpiresAt  time.Time `bson:"expiresAt"`
	Revoked    bool      `bson:"revoked"`
	ReplacedBy string    `bson:"replacedBy,omitempty"`
	CreatedAt  time.Time `bson:"createdAt"`
}

type CredentialStore interface {
	Create(ctx context.Context, rec CredentialRecord) error
	ByEmail(ctx context.Context, email string) (*CredentialRecord, error)
	ByUID(ctx context.Context, uid string) (*CredentialRecord, error)
	UpdateDisplayName(ctx context.Context, uid, displayName string, now time.Time) error
	LinkGoogle(ctx context.Context, uid, subject string, now time.Time) error
	Delete(ctx context.Context, uid string) error

	SaveRefreshToken(ctx context.Context, rec RefreshRecord) error
	FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshRecord, error)
	RevokeRefreshToken(ctx context.Context, id, replacedBy string) error
	RevokeAllRefreshTokens(ctx context.Context, uid string) error
}

func generateRefreshString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
