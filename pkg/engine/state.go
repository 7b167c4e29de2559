package engine

import (
	"sync"
	"time"

	"vibesync/pkg/api"
)

// Phase is the reconciliation phase of one (subject, viewer) entry.
type Phase int

const (
	// PhaseIdle means no mutation is in flight and state is reconciled.
	PhaseIdle Phase = iota

	// PhaseOptimistic means a local mutation has been applied and its
	// request is still in flight.
	PhaseOptimistic

	// PhaseReconciling means a server response is being committed.
	PhaseReconciling

	// PhaseRolledBack means the last mutation failed and state was restored
	// to its pre-mutation snapshot.
	PhaseRolledBack
)

// State is the reconciled interaction state for one (subject, viewer) pair.
type State struct {
	IsLiked       bool
	LikesCount    int
	CommentsCount int
	IsUpdating    bool
	Error         string
	LastUpdated   time.Time
}

// key identifies a (subject, viewer) pair in the store.
type key struct {
	SubjectID string
	ViewerID  string
}

func (k key) String() string {
	return k.SubjectID + "\x00" + k.ViewerID
}

// entry is the full per-pair record: state, comment list, bookkeeping.
type entry struct {
	state    State
	phase    Phase
	comments []api.Comment

	// gen is bumped on every mutation start; a response whose generation no
	// longer matches must not commit or roll back.
	gen uint64

	// cancel aborts the in-flight mutating request, if any.
	cancel func()

	// seeded is set once the local persistent cache has been consulted.
	seeded  bool
	seeding bool

	observers    map[int]func(State)
	nextObserver int

	// observed counts active subscribers; entries with observers are picked
	// up by the periodic resync.
	observed int
}

// Store is the in-memory state cache shared by every view of a subject.
// It is an explicit injectable object: construct one per process/session and
// hand it to the engine, so tests never leak state into each other.
type Store struct {
	mu      sync.Mutex
	entries map[key]*entry
}

// NewStore creates an empty state store.
func NewStore() *Store {
	return &Store{entries: make(map[key]*entry)}
}

// ensureLocked returns the entry for k, creating it if needed.
// Caller must hold s.mu.
func (s *Store) ensureLocked(k key) *entry {
	ent, ok := s.entries[k]
	if !ok {
		ent = &entry{observers: make(map[int]func(State))}
		s.entries[k] = ent
	}
	return ent
}

// applyLocked mutates the entry's state and advances LastUpdated, keeping it
// strictly monotonic even when the wall clock does not move forward.
// Caller must hold s.mu. Returns a copy of the new state.
func (s *Store) applyLocked(ent *entry, mutate func(*State)) State {
	mutate(&ent.state)
	now := time.Now()
	if !now.After(ent.state.LastUpdated) {
		now = ent.state.LastUpdated.Add(time.Nanosecond)
	}
	ent.state.LastUpdated = now
	return ent.state
}

// observersLocked snapshots the entry's observer callbacks.
// Caller must hold s.mu; callbacks are invoked outside the lock.
func (s *Store) observersLocked(ent *entry) []func(State) {
	if len(ent.observers) == 0 {
		return nil
	}
	fns := make([]func(State), 0, len(ent.observers))
	for _, fn := range ent.observers {
		fns = append(fns, fn)
	}
	return fns
}

// observedKeys returns the keys that have at least one active subscriber.
func (s *Store) observedKeys() []key {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []key
	for k, ent := range s.entries {
		if ent.observed > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

func maxZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
