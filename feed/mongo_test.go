package feed

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/planner-alerts/databases/mocks"
	"github.com/linesmerrill/planner-alerts/models"
)

func TestMongoSourceDecodesFullDocument(t *testing.T) {
	cs := &mocks.ChangeStreamHelper{}
	db := &mocks.AlertDatabase{}
	db.On("WatchInserts", mock.Anything, "u1").Return(cs, nil)
	cs.On("Next", mock.Anything).Return(true).Once()
	cs.On("Decode", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		ev := args.Get(0).(*changeEvent)
		ev.FullDocument = models.Alert{ID: "a1", OwnerID: "u1", Message: "risk"}
	}).Once()
	cs.On("Next", mock.Anything).Return(false).Once()
	cs.On("Err").Return(nil)
	cs.On("Close", mock.Anything).Return(nil).Once()

	stream, err := MongoSource{Alerts: db}.Open(context.Background(), "u1")
	require.NoError(t, err)

	a, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)
	assert.Equal(t, "risk", a.Message)

	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
	cs.AssertExpectations(t)
}

func TestMongoSourceStreamError(t *testing.T) {
	cs := &mocks.ChangeStreamHelper{}
	db := &mocks.AlertDatabase{}
	db.On("WatchInserts", mock.Anything, "u1").Return(cs, nil)
	cs.On("Next", mock.Anything).Return(false)
	cs.On("Err").Return(errors.New("resume token lost"))

	stream, err := MongoSource{Alerts: db}.Open(context.Background(), "u1")
	require.NoError(t, err)
	_, err = stream.Next(context.Background())
	assert.EqualError(t, err, "resume token lost")
}

func TestMongoSourceWatchError(t *testing.T) {
	db := &mocks.AlertDatabase{}
	db.On("WatchInserts", mock.Anything, "u1").Return(nil, errors.New("not a replica set"))

	_, err := MongoSource{Alerts: db}.Open(context.Background(), "u1")
	assert.Error(t, err)
}
