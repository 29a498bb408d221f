package reconciler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// State is the lifecycle position of an optimistic mutation.
type State int

const (
	Pending State = iota
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Kind names the operation a mutation performs.
type Kind string

const (
	KindMarkRead Kind = "mark_read"
	KindDelete   Kind = "delete"
)

// Mutation tracks one backend round trip for a local change. Callers racing on the same
// alert share a single Mutation and all observe its outcome.
type Mutation struct {
	ID      string
	Kind    Kind
	AlertID string

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

func newMutation(kind Kind, alertID string) *Mutation {
	return &Mutation{
		ID:      uuid.NewString(),
		Kind:    kind,
		AlertID: alertID,
		done:    make(chan struct{}),
	}
}

// State reports where the mutation currently is.
func (m *Mutation) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed once the mutation is confirmed or failed.
func (m *Mutation) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the mutation settles and returns its error, if any.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutation) settle(err error) error {
	m.mu.Lock()
	if err != nil {
		m.state = Failed
		m.err = &MutationError{MutationID: m.ID, Kind: m.Kind, AlertID: m.AlertID, Err: err}
	} else {
		m.state = Confirmed
	}
	out := m.err
	m.mu.Unlock()
	close(m.done)
	return out
}

// MutationError reports a mutation the backend rejected. The local change it made has
// already been reverted when this is returned, or the alert removed when the backend
// reported it missing.
type MutationError struct {
	MutationID string
	Kind       Kind
	AlertID    string
	Err        error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s of alert %s failed: %v", e.Kind, e.AlertID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// FetchError marks a failed load. The canonical list is left as it was.
type FetchError struct {
	OwnerID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to load alerts for %s: %v", e.OwnerID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
