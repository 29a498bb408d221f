package databases

// go generate: mockery --name AlertDatabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/planner-alerts/models"
)

const alertCollectionName = "alerts"

// ErrAlertNotFound is returned when no alert matched the id and owner
var ErrAlertNotFound = errors.New("alert not found")

// AlertDatabase contains the methods to use with the alert database
type AlertDatabase interface {
	FindByOwner(ctx context.Context, ownerID string) ([]models.Alert, error)
	FindByID(ctx context.Context, ownerID, alertID string) (*models.Alert, error)
	InsertOne(ctx context.Context, alert models.Alert) (*models.Alert, error)
	MarkRead(ctx context.Context, ownerID, alertID string) (bool, error)
	Delete(ctx context.Context, ownerID, alertID string) error
	WatchInserts(ctx context.Context, ownerID string) (ChangeStreamHelper, error)
}

type alertDatabase struct {
	db DatabaseHelper
}

// NewAlertDatabase initializes a new instance of alert database with the provided db connection
func NewAlertDatabase(db DatabaseHelper) AlertDatabase {
	return &alertDatabase{
		db: db,
	}
}

// FindByOwner returns every alert of the owner, newest first
func (a *alertDatabase) FindByOwner(ctx context.Context, ownerID string) ([]models.Alert, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := a.db.Collection(alertCollectionName).Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	var alerts []models.Alert
	if err := cur.Decode(&alerts); err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts, nil
}

// FindByID returns one alert of the owner, ErrAlertNotFound when there is none
func (a *alertDatabase) FindByID(ctx context.Context, ownerID, alertID string) (*models.Alert, error) {
	alert := &models.Alert{}
	err := a.db.Collection(alertCollectionName).FindOne(ctx, bson.M{"_id": alertID, "owner_id": ownerID}).Decode(&alert)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// InsertOne stores a new alert, assigning the id and creation time when missing
func (a *alertDatabase) InsertOne(ctx context.Context, alert models.Alert) (*models.Alert, error) {
	if alert.OwnerID == "" {
		return nil, errors.New("alert owner is required")
	}
	if alert.ID == "" {
		alert.ID = primitive.NewObjectID().Hex()
	}
	if alert.CreatedAt.IsZero() {
		// mongo stores milliseconds, keep the returned value identical to the stored one
		alert.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	if _, err := a.db.Collection(alertCollectionName).InsertOne(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to insert alert: %w", err)
	}
	return &alert, nil
}

// MarkRead sets is_read on the owner's alert. The returned bool reports whether the
// alert had already been read.
func (a *alertDatabase) MarkRead(ctx context.Context, ownerID, alertID string) (bool, error) {
	filter := bson.M{"_id": alertID, "owner_id": ownerID}
	update := bson.M{"$set": bson.M{"is_read": true}}
	res, err := a.db.Collection(alertCollectionName).UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, ErrAlertNotFound
	}
	return res.ModifiedCount == 0, nil
}

// Delete hard deletes the owner's alert
func (a *alertDatabase) Delete(ctx context.Context, ownerID, alertID string) error {
	res, err := a.db.Collection(alertCollectionName).DeleteOne(ctx, bson.M{"_id": alertID, "owner_id": ownerID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// WatchInserts opens a change stream that only carries inserts of the owner's alerts.
// Change streams need a replica set.
func (a *alertDatabase) WatchInserts(ctx context.Context, ownerID string) (ChangeStreamHelper, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: "insert"},
			{Key: "fullDocument.owner_id", Value: ownerID},
		}}},
	}
	return a.db.Collection(alertCollectionName).Watch(ctx, pipeline)
}
