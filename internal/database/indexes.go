package database

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	UsersCollection         = "users"
	IdentitiesCollection    = "identities"
	RefreshTokensCollection = "refresh_tokens"
	JobsCollection          = "jobs"
)

// EnsureIndexes creates every index the service relies on. Failures are
// collected so one bad collection does not hide the others.
func EnsureIndexes(db *mongo.Database, logger *zap.Logger) error {
	return errors.Join(
		EnsureUserIndexes(db, logger),
		EnsureIdentityIndexes(db, logger),
		EnsureRefreshTokenIndexes(db, logger),
		EnsureJobIndexes(db, logger),
	)
}

// Profiles are keyed by uid in _id; email is only used for lookups by support
// tooling, so it is not unique here. Uniqueness is owned by the identity
// provider.
func EnsureUserIndexes(db *mongo.Database, logger *zap.Logger) error {
	return createIndexes(db, logger, UsersCollection, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("email_index"),
	}, mongo.IndexModel{
		Keys:    bson.D{{Key: "accountType", Value: 1}, {Key: "isProfileComplete", Value: 1}},
		Options: options.Index().SetName("accountType_complete_index"),
	})
}

func EnsureIdentityIndexes(db *mongo.Database, logger *zap.Logger) error {
	return createIndexes(db, logger, IdentitiesCollection, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetName("email_unique").
			SetUnique(true),
	})
}

func EnsureRefreshTokenIndexes(db *mongo.Database, logger *zap.Logger) error {
	return createIndexes(db, logger, RefreshTokensCollection, mongo.IndexModel{
		Keys: bson.D{{Key: "tokenHash", Value: 1}},
		Options: options.Index().
			SetName("tokenHash_unique").
			SetUnique(true),
	}, mongo.IndexModel{
		Keys: bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().
			SetName("expiresAt_ttl").
			SetExpireAfterSeconds(0),
	}, mongo.IndexModel{
		Keys:    bson.D{{Key: "uid", Value: 1}},
		Options: options.Index().SetName("uid_index"),
	})
}

func EnsureJobIndexes(db *mongo.Database, logger *zap.Logger) error {
	return createIndexes(db, logger, JobsCollection, mongo.IndexModel{
		Keys:    bson.D{{Key: "providerId", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("providerId_createdAt_index"),
	})
}

func createIndexes(db *mongo.Database, logger *zap.Logger, collection string, models ...mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	names, err := db.Collection(collection).Indexes().CreateMany(ctx, models)
	if err != nil {
		logger.Error("index creation failed", zap.String("collection", collection), zap.Error(err))
		return err
	}
	logger.Info("indexes ensured", zap.String("collection", collection), zap.Strings("indexes", names))
	return nil
}
