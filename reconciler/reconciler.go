// Package reconciler owns the canonical list of a user's alerts and keeps it consistent
// with the backend while feed inserts and user mutations race each other.
package reconciler

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/linesmerrill/planner-alerts/grouping"
	"github.com/linesmerrill/planner-alerts/models"
)

// ErrNotFound is returned for an alert id that is not in the canonical list. Stores wrap
// it when the backend has no row for the id.
var ErrNotFound = errors.New("alert not found")

// Store is the backend the reconciler confirms against.
type Store interface {
	FindByOwner(ctx context.Context, ownerID string) ([]models.Alert, error)
	MarkRead(ctx context.Context, ownerID, alertID string) error
	Delete(ctx context.Context, ownerID, alertID string) error
}

// journal records what changed while a load was in flight so it can be replayed on top
// of the fetched list.
type journal struct {
	inserts []models.Alert
	reads   map[string]struct{}
	deletes map[string]struct{}
}

func newJournal() *journal {
	return &journal{reads: map[string]struct{}{}, deletes: map[string]struct{}{}}
}

// Reconciler holds the alerts of one owner, newest first.
type Reconciler struct {
	ownerID string
	store   Store

	mu       sync.Mutex
	alerts   []models.Alert
	reads    map[string]*Mutation
	deletes  map[string]*Mutation
	// loadGen counts started loads, appliedGen is the newest load whose fetch replaced
	// the list and errGen the newest load whose outcome loadErr holds.
	loadGen    uint64
	appliedGen uint64
	errGen     uint64
	loadErr    error
	inflight   int
	journal  *journal
	changes  chan struct{}
}

// New returns an empty reconciler for ownerID backed by store.
func New(ownerID string, store Store) *Reconciler {
	return &Reconciler{
		ownerID: ownerID,
		store:   store,
		alerts:  []models.Alert{},
		reads:   map[string]*Mutation{},
		deletes: map[string]*Mutation{},
		changes: make(chan struct{}, 1),
	}
}

// OwnerID is the user every alert in the list belongs to.
func (r *Reconciler) OwnerID() string {
	return r.ownerID
}

// Changes receives a value after the list changes. Bursts coalesce into one signal.
func (r *Reconciler) Changes() <-chan struct{} {
	return r.changes
}

// Snapshot returns a copy of the canonical list.
func (r *Reconciler) Snapshot() []models.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Groups projects the current list into date buckets.
func (r *Reconciler) Groups(p grouping.Projector) []grouping.Group {
	return p.Project(r.Snapshot())
}

// Load fetches every alert of the owner and replaces the canonical list. Rows for other
// owners and duplicate ids are dropped. On failure the list is unchanged and the error is
// a *FetchError. When loads overlap, a successful fetch is applied unless a load started
// after it has already been applied.
func (r *Reconciler) Load(ctx context.Context) ([]models.Alert, error) {
	r.mu.Lock()
	r.loadGen++
	gen := r.loadGen
	r.inflight++
	if r.journal == nil {
		r.journal = newJournal()
	}
	r.mu.Unlock()

	fetched, err := r.store.FindByOwner(ctx, r.ownerID)

	r.mu.Lock()
	defer r.mu.Unlock()
	j := r.journal
	r.inflight--
	if r.inflight == 0 {
		r.journal = nil
	}

	var fetchErr error
	if err != nil {
		fetchErr = &FetchError{OwnerID: r.ownerID, Err: err}
	}
	if gen >= r.errGen {
		r.errGen = gen
		r.loadErr = fetchErr
	}
	if fetchErr != nil {
		zap.S().Warnw("failed to load alerts", "owner_id", r.ownerID, "error", err)
		return []models.Alert{}, fetchErr
	}
	if gen < r.appliedGen {
		// a load started later has already replaced the list
		return r.snapshotLocked(), nil
	}
	r.appliedGen = gen

	next := make([]models.Alert, 0, len(fetched))
	seen := make(map[string]struct{}, len(fetched))
	for _, a := range fetched {
		if a.OwnerID != r.ownerID {
			zap.S().Warnw("dropping alert for another owner", "alert_id", a.ID, "owner_id", a.OwnerID)
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		if _, ok := j.deletes[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		next = append(next, a)
	}
	sort.SliceStable(next, func(i, k int) bool {
		return next[i].CreatedAt.After(next[k].CreatedAt)
	})
	r.alerts = next

	for _, a := range j.inserts {
		if _, ok := j.deletes[a.ID]; ok {
			continue
		}
		r.insertLocked(a)
	}
	for i := range r.alerts {
		id := r.alerts[i].ID
		_, confirmed := j.reads[id]
		_, pending := r.reads[id]
		if confirmed || pending {
			r.alerts[i].IsRead = true
		}
	}

	r.notifyLocked()
	return r.snapshotLocked(), nil
}

// LoadErr is the outcome of the most recently started load that has finished: nil after
// a success, a *FetchError after a failure. It tells an empty list apart from one that
// failed to load.
func (r *Reconciler) LoadErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErr
}

// Pending returns the unsettled mutations of an alert, mark-read first.
func (r *Reconciler) Pending(alertID string) []*Mutation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Mutation
	if m, ok := r.reads[alertID]; ok {
		out = append(out, m)
	}
	if m, ok := r.deletes[alertID]; ok {
		out = append(out, m)
	}
	return out
}

// ApplyInsert merges a feed-delivered alert into the list. It reports whether the alert
// was new. Alerts for another owner and ids already present are ignored.
func (r *Reconciler) ApplyInsert(a models.Alert) bool {
	if a.OwnerID != r.ownerID {
		zap.S().Warnw("ignoring alert for another owner", "alert_id", a.ID, "owner_id", a.OwnerID)
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.journal != nil {
		r.journal.inserts = append(r.journal.inserts, a)
	}
	if !r.insertLocked(a) {
		return false
	}
	r.notifyLocked()
	return true
}

// MarkRead flags the alert read locally, then confirms with the backend. A failed update
// reverts the flag and returns a *MutationError. If the backend no longer has the alert
// it is removed from the list, as Delete does, and the *MutationError wraps ErrNotFound.
// Marking an already read alert is a no-op and concurrent calls for the same id share one
// backend request.
func (r *Reconciler) MarkRead(ctx context.Context, alertID string) error {
	r.mu.Lock()
	if m, ok := r.reads[alertID]; ok {
		r.mu.Unlock()
		return m.Wait(ctx)
	}
	i := r.indexLocked(alertID)
	if i < 0 {
		r.mu.Unlock()
		return ErrNotFound
	}
	if r.alerts[i].IsRead {
		r.mu.Unlock()
		return nil
	}
	m := newMutation(KindMarkRead, alertID)
	r.reads[alertID] = m
	r.alerts[i].IsRead = true
	r.notifyLocked()
	r.mu.Unlock()

	err := r.store.MarkRead(ctx, r.ownerID, alertID)

	r.mu.Lock()
	delete(r.reads, alertID)
	if errors.Is(err, ErrNotFound) {
		r.removeLocked(alertID)
		r.notifyLocked()
		r.mu.Unlock()
		zap.S().Warnw("alert gone from backend, removed", "alert_id", alertID, "mutation_id", m.ID)
		return m.settle(err)
	}
	if err != nil {
		if i := r.indexLocked(alertID); i >= 0 {
			r.alerts[i].IsRead = false
		}
		r.notifyLocked()
		r.mu.Unlock()
		zap.S().Errorw("mark read failed, reverted", "alert_id", alertID, "mutation_id", m.ID, "error", err)
		return m.settle(err)
	}
	if r.journal != nil {
		r.journal.reads[alertID] = struct{}{}
	}
	r.mu.Unlock()
	return m.settle(nil)
}

// Delete removes the alert from the backend and then from the list. If the backend call
// fails the list is untouched and a *MutationError is returned. A backend that no longer
// has the row counts as success. Deleting an id that is not in the list returns
// ErrNotFound.
func (r *Reconciler) Delete(ctx context.Context, alertID string) error {
	r.mu.Lock()
	if m, ok := r.deletes[alertID]; ok {
		r.mu.Unlock()
		return m.Wait(ctx)
	}
	if r.indexLocked(alertID) < 0 {
		r.mu.Unlock()
		return ErrNotFound
	}
	m := newMutation(KindDelete, alertID)
	r.deletes[alertID] = m
	r.mu.Unlock()

	err := r.store.Delete(ctx, r.ownerID, alertID)
	if errors.Is(err, ErrNotFound) {
		err = nil
	}

	r.mu.Lock()
	delete(r.deletes, alertID)
	if err != nil {
		r.mu.Unlock()
		zap.S().Errorw("delete failed", "alert_id", alertID, "mutation_id", m.ID, "error", err)
		return m.settle(err)
	}
	r.removeLocked(alertID)
	r.notifyLocked()
	r.mu.Unlock()
	return m.settle(nil)
}

// Run applies alerts from the feed until ctx is done or the channel closes. onNew, when
// set, is called for every alert that was not already in the list.
func (r *Reconciler) Run(ctx context.Context, feed <-chan models.Alert, onNew func(models.Alert)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-feed:
			if !ok {
				return nil
			}
			if r.ApplyInsert(a) && onNew != nil {
				onNew(a)
			}
		}
	}
}

func (r *Reconciler) insertLocked(a models.Alert) bool {
	if r.indexLocked(a.ID) >= 0 {
		return false
	}
	// after every alert at least as new, so equal timestamps keep arrival order
	i := sort.Search(len(r.alerts), func(i int) bool {
		return r.alerts[i].CreatedAt.Before(a.CreatedAt)
	})
	r.alerts = append(r.alerts, models.Alert{})
	copy(r.alerts[i+1:], r.alerts[i:])
	r.alerts[i] = a
	return true
}

// removeLocked drops the alert and keeps an in-flight load from bringing it back.
func (r *Reconciler) removeLocked(id string) {
	if i := r.indexLocked(id); i >= 0 {
		r.alerts = append(r.alerts[:i], r.alerts[i+1:]...)
	}
	if r.journal != nil {
		r.journal.deletes[id] = struct{}{}
	}
}

func (r *Reconciler) indexLocked(id string) int {
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Reconciler) snapshotLocked() []models.Alert {
	out := make([]models.Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

func (r *Reconciler) notifyLocked() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}
