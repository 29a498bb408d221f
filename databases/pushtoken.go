package databases

// go generate: mockery --name PushTokenDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/planner-alerts/models"
)

const pushTokenCollectionName = "pushtokens"

// PushTokenDatabase contains the methods to use with the push token database
type PushTokenDatabase interface {
	Upsert(ctx context.Context, token models.DeviceToken) error
	FindByOwner(ctx context.Context, ownerID string) ([]models.DeviceToken, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

type pushTokenDatabase struct {
	db DatabaseHelper
}

// NewPushTokenDatabase initializes a new instance of push token database with the provided db connection
func NewPushTokenDatabase(db DatabaseHelper) PushTokenDatabase {
	return &pushTokenDatabase{
		db: db,
	}
}

// Upsert records the token for its owner. Reinstalls can hand out the same token again,
// so (owner_id, token) is the key and only the platform and timestamp are refreshed.
func (pt *pushTokenDatabase) Upsert(ctx context.Context, token models.DeviceToken) error {
	if token.OwnerID == "" || token.Token == "" {
		return errors.New("owner and token are required")
	}
	now := time.Now().UTC()
	filter := bson.M{"owner_id": token.OwnerID, "token": token.Token}
	update := bson.M{
		"$set":         bson.M{"platform": token.Platform, "updatedAt": now},
		"$setOnInsert": bson.M{"_id": primitive.NewObjectID().Hex(), "createdAt": now},
	}
	_, err := pt.db.Collection(pushTokenCollectionName).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (pt *pushTokenDatabase) FindByOwner(ctx context.Context, ownerID string) ([]models.DeviceToken, error) {
	var tokens []models.DeviceToken
	cur, err := pt.db.Collection(pushTokenCollectionName).Find(ctx, bson.M{"owner_id": ownerID})
	if err != nil {
		return nil, err
	}
	err = cur.Decode(&tokens)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteByToken drops a token the push service reported as no longer registered
func (pt *pushTokenDatabase) DeleteByToken(ctx context.Context, token string) error {
	_, err := pt.db.Collection(pushTokenCollectionName).DeleteOne(ctx, bson.M{"token": token})
	return err
}

// DeleteStale removes tokens not refreshed since before and returns how many went
func (pt *pushTokenDatabase) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	res, err := pt.db.Collection(pushTokenCollectionName).DeleteMany(ctx, bson.M{"updatedAt": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
