package databases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/linesmerrill/planner-alerts/databases"
	"github.com/linesmerrill/planner-alerts/databases/mocks"
	"github.com/linesmerrill/planner-alerts/models"
)

func TestPushTokenDatabase_Upsert(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("UpdateOne", context.Background(), bson.M{"owner_id": "u1", "token": "ExponentPushToken[abc]"}, mock.Anything, mock.Anything).
		Return(&mongo.UpdateResult{UpsertedCount: 1}, nil)
	dbHelper.On("Collection", "pushtokens").Return(collectionHelper)

	ptDba := databases.NewPushTokenDatabase(dbHelper)

	err := ptDba.Upsert(context.Background(), models.DeviceToken{OwnerID: "u1", Token: "ExponentPushToken[abc]", Platform: models.PlatformIOS})
	assert.NoError(t, err)

	err = ptDba.Upsert(context.Background(), models.DeviceToken{OwnerID: "u1"})
	assert.EqualError(t, err, "owner and token are required")
}

func TestPushTokenDatabase_FindByOwner(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	cursorHelper := &mocks.CursorHelper{}

	cursorHelper.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		arg := args.Get(0).(*[]models.DeviceToken)
		*arg = []models.DeviceToken{{OwnerID: "u1", Token: "t1", Platform: models.PlatformAndroid}}
	})
	collectionHelper.On("Find", context.Background(), bson.M{"owner_id": "u1"}).Return(cursorHelper, nil)
	collectionHelper.On("Find", context.Background(), bson.M{"owner_id": "u2"}).Return(nil, errors.New("mocked-error"))
	dbHelper.On("Collection", "pushtokens").Return(collectionHelper)

	ptDba := databases.NewPushTokenDatabase(dbHelper)

	tokens, err := ptDba.FindByOwner(context.Background(), "u1")
	assert.NoError(t, err)
	assert.Equal(t, "t1", tokens[0].Token)

	tokens, err = ptDba.FindByOwner(context.Background(), "u2")
	assert.Empty(t, tokens)
	assert.EqualError(t, err, "mocked-error")
}

func TestPushTokenDatabase_DeleteByToken(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}

	collectionHelper.On("DeleteOne", context.Background(), bson.M{"token": "t1"}).
		Return(&mongo.DeleteResult{DeletedCount: 1}, nil)
	dbHelper.On("Collection", "pushtokens").Return(collectionHelper)

	assert.NoError(t, databases.NewPushTokenDatabase(dbHelper).DeleteByToken(context.Background(), "t1"))
}

func TestPushTokenDatabase_DeleteStale(t *testing.T) {
	dbHelper := &mocks.DatabaseHelper{}
	collectionHelper := &mocks.CollectionHelper{}
	before := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	collectionHelper.On("DeleteMany", context.Background(), bson.M{"updatedAt": bson.M{"$lt": before}}).
		Return(&mongo.DeleteResult{DeletedCount: 3}, nil).Once()
	collectionHelper.On("DeleteMany", context.Background(), mock.Anything).
		Return(nil, errors.New("mocked-error"))
	dbHelper.On("Collection", "pushtokens").Return(collectionHelper)

	ptDba := databases.NewPushTokenDatabase(dbHelper)

	n, err := ptDba.DeleteStale(context.Background(), before)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = ptDba.DeleteStale(context.Background(), before)
	assert.EqualError(t, err, "mocked-error")
	assert.Zero(t, n)
}
