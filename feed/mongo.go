package feed

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/linesmerrill/planner-alerts/databases"
	"github.com/linesmerrill/planner-alerts/models"
)

// MongoSource streams inserts from the alerts collection change stream.
type MongoSource struct {
	Alerts databases.AlertDatabase
}

type changeEvent struct {
	FullDocument models.Alert `bson:"fullDocument"`
}

// Open starts a change stream filtered to inserts for ownerID.
func (m MongoSource) Open(ctx context.Context, ownerID string) (Stream, error) {
	cs, err := m.Alerts.WatchInserts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &mongoStream{cs: cs}, nil
}

type mongoStream struct {
	cs   databases.ChangeStreamHelper
	once sync.Once
}

func (s *mongoStream) Next(ctx context.Context) (models.Alert, error) {
	if !s.cs.Next(ctx) {
		if err := s.cs.Err(); err != nil {
			return models.Alert{}, err
		}
		return models.Alert{}, io.EOF
	}
	var ev changeEvent
	if err := s.cs.Decode(&ev); err != nil {
		return models.Alert{}, fmt.Errorf("decode change event: %w", err)
	}
	return ev.FullDocument, nil
}

func (s *mongoStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.cs.Close(context.Background())
	})
	return err
}
