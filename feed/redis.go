package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/linesmerrill/planner-alerts/models"
)

// Channel is the pub/sub channel carrying inserted alerts for ownerID.
func Channel(ownerID string) string {
	return "alerts:" + ownerID
}

// RedisPublisher fans inserted alerts out to every API instance.
type RedisPublisher struct {
	Client *redis.Client
}

// Publish sends alert on its owner's channel.
func (p RedisPublisher) Publish(ctx context.Context, alert models.Alert) error {
	payload, err := json.Marshal(Envelope{Event: EventAlertCreated, Data: alert})
	if err != nil {
		return err
	}
	return p.Client.Publish(ctx, Channel(alert.OwnerID), payload).Err()
}

// RedisSource subscribes to the owner's pub/sub channel.
type RedisSource struct {
	Client *redis.Client
}

// Open subscribes and waits for the server to confirm the subscription.
func (r RedisSource) Open(ctx context.Context, ownerID string) (Stream, error) {
	ps := r.Client.Subscribe(ctx, Channel(ownerID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(ownerID), err)
	}
	return &redisStream{ps: ps}, nil
}

type redisStream struct {
	ps   *redis.PubSub
	once sync.Once
}

func (s *redisStream) Next(ctx context.Context) (models.Alert, error) {
	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			return models.Alert{}, err
		}
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			return models.Alert{}, fmt.Errorf("decode %s payload: %w", msg.Channel, err)
		}
		if env.Event != EventAlertCreated {
			continue
		}
		return env.Data, nil
	}
}

func (s *redisStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
	})
	return err
}
