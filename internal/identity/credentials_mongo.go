package identity

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoCredentialStore persists local accounts in "identities" and refresh
// tokens in "refresh_tokens".
type MongoCredentialStore struct {
	accounts *mongo.Collection
	tokens   *mongo.Collection
}

func NewMongoCredentialStore(db *mongo.Database) *MongoCredentialStore {
	return &MongoCredentialStore{
		accounts: db.Collection("identities"),
		tokens:   db.Collection("refresh_tokens"),
	}
}

func (s *MongoCredentialStore) Create(ctx context.Context, rec CredentialRecord) error {
	if _, err := s.accounts.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailExists
		}
		return err
	}
	return nil
}

func (s *MongoCredentialStore) ByEmail(ctx context.Context, email string) (*CredentialRecord, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoCredentialStore) ByUID(ctx context.Context, uid string) (*CredentialRecord, error) {
	return s.findOne(ctx, bson.M{"_id": uid})
}

func (s *MongoCredentialStore) findOne(ctx context.Context, filter bson.M) (*CredentialRecord, error) {
	var rec CredentialRecord
	if err := s.accounts.FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *MongoCredentialStore) UpdateDisplayName(ctx context.Context, uid, displayName string, now time.Time) error {
	return s.set(ctx, uid, bson.M{"displayName": displayName, "updatedAt": now})
}

func (s *MongoCredentialStore) LinkGoogle(ctx context.Context, uid, subject string, now time.Time) error {
	return s.set(ctx, uid, bson.M{"googleSubject": subject, "emailVerified": true, "updatedAt": now})
}

func (s *MongoCredentialStore) set(ctx context.Context, uid string, fields bson.M) error {
	res, err := s.accounts.UpdateByID(ctx, uid, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *MongoCredentialStore) Delete(ctx context.Context, uid string) error {
	res, err := s.accounts.DeleteOne(ctx, bson.M{"_id": uid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (s *MongoCredentialStore) SaveRefreshToken(ctx context.Context, rec RefreshRecord) error {
	_, err := s.tokens.InsertOne(ctx, rec)
	return err
}

func (s *MongoCredentialStore) FindRefreshToken(ctx context.Context, tokenHash string) (*RefreshRecord, error) {
	var rec RefreshRecord
	if err := s.tokens.FindOne(ctx, bson.M{"tokenHash": tokenHash}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *MongoCredentialStore) RevokeRefreshToken(ctx context.Context, id, replacedBy string) error {
	_, err := s.tokens.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"revoked":    true,
		"replacedBy": replacedBy,
	}})
	return err
}

func (s *MongoCredentialStore) RevokeAllRefreshTokens(ctx context.Context, uid string) error {
	_, err := s.tokens.UpdateMany(ctx, bson.M{"uid": uid, "revoked": false}, bson.M{"$set": bson.M{"revoked": true}})
	return err
}

var _ CredentialStore = (*MongoCredentialStore)(nil)
