package profile

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sidehustlers/internal/models"
)

// MongoStore keeps profiles in the "users" collection with _id = uid.
type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("users")}
}

func (s *MongoStore) Get(ctx context.Context, uid string) (models.Profile, error) {
	var doc models.ProfileDocument
	if err := s.coll.FindOne(ctx, bson.M{"_id": uid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.Profile()
}

func (s *MongoStore) Create(ctx context.Context, p models.Profile) error {
	if _, err := s.coll.InsertOne(ctx, models.NewProfileDocument(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save upserts the full document. The filter pins the account type, and for
// incomplete profiles also requires the stored one to be incomplete, so a
// conflicting write turns into a duplicate key on the upsert.
func (s *MongoStore) Save(ctx context.Context, p models.Profile) error {
	doc := models.NewProfileDocument(p)
	filter := bson.M{"_id": doc.UID, "accountType": doc.AccountType}
	if !doc.IsProfileComplete {
		filter["isProfileComplete"] = bson.M{"$ne": true}
	}

	_, err := s.coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, uid string, patch models.ProfilePatch, now time.Time) (models.Profile, error) {
	return patchProfile(ctx, s, uid, patch, now)
}

var _ Store = (*MongoStore)(nil)
