package feed

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/planner-alerts/models"
)

type chanStream struct {
	events chan models.Alert
	closed chan struct{}
	once   sync.Once
}

func newChanStream() *chanStream {
	return &chanStream{events: make(chan models.Alert), closed: make(chan struct{})}
}

func (c *chanStream) Next(ctx context.Context) (models.Alert, error) {
	select {
	case a, ok := <-c.events:
		if !ok {
			return models.Alert{}, io.EOF
		}
		return a, nil
	case <-c.closed:
		return models.Alert{}, errors.New("stream closed")
	}
}

func (c *chanStream) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	streams []*chanStream
	fail    int
	opened  chan *chanStream
}

func newFakeSource() *fakeSource {
	return &fakeSource{opened: make(chan *chanStream, 8)}
}

func (f *fakeSource) Open(ctx context.Context, ownerID string) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("unavailable")
	}
	s := newChanStream()
	f.streams = append(f.streams, s)
	f.opened <- s
	return s, nil
}

func fastListener(src Source) *Listener {
	l := NewListener(src)
	l.InitialBackoff = time.Millisecond
	l.MaxBackoff = 5 * time.Millisecond
	return l
}

func receive(t *testing.T, sub *Subscription) models.Alert {
	t.Helper()
	select {
	case a, ok := <-sub.Alerts():
		require.True(t, ok, "alerts channel closed")
		return a
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for alert")
	}
	return models.Alert{}
}

func TestSubscribeDeliversInOrder(t *testing.T) {
	src := newFakeSource()
	sub, err := fastListener(src).Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer sub.Unsubscribe()
	stream := <-src.opened

	go func() {
		stream.events <- models.Alert{ID: "a1", OwnerID: "u1"}
		stream.events <- models.Alert{ID: "x1", OwnerID: "u2"}
		stream.events <- models.Alert{ID: "a2", OwnerID: "u1"}
	}()

	assert.Equal(t, "a1", receive(t, sub).ID)
	assert.Equal(t, "a2", receive(t, sub).ID)
	assert.Equal(t, "u1", sub.OwnerID())
}

func TestSubscribeRequiresOwner(t *testing.T) {
	_, err := fastListener(newFakeSource()).Subscribe(context.Background(), "")
	assert.Error(t, err)
}

func TestSubscribeOpenFailure(t *testing.T) {
	src := newFakeSource()
	src.fail = 1
	sub, err := fastListener(src).Subscribe(context.Background(), "u1")
	assert.Error(t, err)
	assert.Nil(t, sub)
}

func TestUnsubscribeIsIdempotentAndClosesStream(t *testing.T) {
	src := newFakeSource()
	sub, err := fastListener(src).Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	stream := <-src.opened

	sub.Unsubscribe()
	assert.NotPanics(t, sub.Unsubscribe)

	_, open := <-sub.Alerts()
	assert.False(t, open)
	select {
	case <-stream.closed:
	default:
		t.Fatal("stream was not closed")
	}
}

func TestParentContextEndsSubscription(t *testing.T) {
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := fastListener(src).Subscribe(ctx, "u1")
	require.NoError(t, err)

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestReconnectsAfterStreamLoss(t *testing.T) {
	src := newFakeSource()
	reconnected := make(chan string, 1)
	l := fastListener(src)
	l.OnReconnect = func(ownerID string) { reconnected <- ownerID }

	sub, err := l.Subscribe(context.Background(), "u1")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	first := <-src.opened
	src.mu.Lock()
	src.fail = 2
	src.mu.Unlock()
	close(first.events)

	var second *chanStream
	select {
	case second = <-src.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not reconnect")
	}
	assert.Equal(t, "u1", <-reconnected)

	go func() { second.events <- models.Alert{ID: "a3", OwnerID: "u1"} }()
	assert.Equal(t, "a3", receive(t, sub).ID)
}

func TestBackoffBounds(t *testing.T) {
	l := &Listener{}
	b := l.newBackoff()
	assert.Equal(t, DefaultInitialBackoff, b.InitialInterval)
	assert.Equal(t, DefaultMaxBackoff, b.MaxInterval)

	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, b.NextBackOff(), time.Duration(float64(DefaultMaxBackoff)*1.2))
	}
}
