// Package engine keeps one authoritative, race-free view of "did I like
// this, and how many likes and comments does it have" per (subject, viewer)
// pair, reconciled against the interaction service.
//
// Mutations apply optimistically and roll back to the exact pre-mutation
// snapshot on failure. The server response is always the final arbiter: a
// successful toggle commits the server's count, not the optimistic guess.
package engine

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"vibesync/pkg/api"
	"vibesync/pkg/localcache"
)

// Engine configuration defaults.
const (
	DefaultResyncInterval  = 30 * time.Second
	DefaultResyncDebounce  = 300 * time.Millisecond
	DefaultMutationTimeout = 15 * time.Second
)

// API is the slice of the interaction service the engine consumes.
// *apiclient.Client satisfies it.
type API interface {
	ToggleLike(ctx context.Context, subjectID, viewerID string) (api.LikeStatus, error)
	GetLikes(ctx context.Context, subjectID, viewerID string) (api.LikeStatus, error)
	CreateComment(ctx context.Context, subjectID, viewerID, text string) (api.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
	ListComments(ctx context.Context, subjectID string) ([]api.Comment, error)
	UpdateSubjectCounts(ctx context.Context, subjectID string, patch api.SubjectCountsPatch) error
}

// Config holds the engine's tunables.
type Config struct {
	ResyncInterval  time.Duration // how often observed subjects are resynced
	ResyncDebounce  time.Duration // collapse window for resync bursts
	MutationTimeout time.Duration // hard timeout on mutating requests
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ResyncInterval:  DefaultResyncInterval,
		ResyncDebounce:  DefaultResyncDebounce,
		MutationTimeout: DefaultMutationTimeout,
	}
}

// Engine is the reconciliation engine.
type Engine struct {
	api   API
	store *Store
	local localcache.Cache
	cfg   Config

	// refreshGroup collapses concurrent refreshes for the same pair into one
	// request; late callers wait on the first caller's result.
	refreshGroup singleflight.Group

	sched scheduler
}

// New creates an engine over the given store. A nil local cache disables
// persistence.
func New(apiClient API, store *Store, local localcache.Cache, cfg Config) *Engine {
	if store == nil {
		store = NewStore()
	}
	if local == nil {
		local = localcache.Noop{}
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = DefaultResyncInterval
	}
	if cfg.ResyncDebounce <= 0 {
		cfg.ResyncDebounce = DefaultResyncDebounce
	}
	if cfg.MutationTimeout <= 0 {
		cfg.MutationTimeout = DefaultMutationTimeout
	}

	e := &Engine{
		api:   apiClient,
		store: store,
		local: local,
		cfg:   cfg,
	}
	e.sched.init(e)
	return e
}

// State returns the current cached state for a pair. Never blocks: on first
// sight of a pair it returns the default state, seeds from the local
// persistent cache and schedules an asynchronous refresh.
func (e *Engine) State(subjectID, viewerID string) State {
	k := key{SubjectID: subjectID, ViewerID: viewerID}

	e.store.mu.Lock()
	ent := e.store.ensureLocked(k)
	if !ent.seeded && !ent.seeding {
		ent.seeding = true
		go e.seed(k)
	}
	st := ent.state
	e.store.mu.Unlock()

	return st
}

// Prime installs initial state for a pair (e.g. counts rendered with the
// subject itself) without touching the network. It only applies before the
// first server reconciliation of the pair.
func (e *Engine) Prime(subjectID, viewerID string, isLiked bool, likesCount, commentsCount int) {
	k := key{SubjectID: subjectID, ViewerID: viewerID}

	e.store.mu.Lock()
	ent := e.store.ensureLocked(k)
	if ent.seeded || ent.phase != PhaseIdle {
		e.store.mu.Unlock()
		return
	}
	st := e.store.applyLocked(ent, func(s *State) {
		s.IsLiked = isLiked
		s.LikesCount = maxZero(likesCount)
		s.CommentsCount = maxZero(commentsCount)
	})
	observers := e.store.observersLocked(ent)
	e.store.mu.Unlock()

	e.notify(observers, st)
}

// Subscribe registers a callback fired on every state change of the pair and
// immediately with the current state. Subscribing marks the subject as
// observed for periodic resync. The returned function unsubscribes.
func (e *Engine) Subscribe(subjectID, viewerID string, fn func(State)) func() {
	k := key{SubjectID: subjectID, ViewerID: viewerID}

	e.store.mu.Lock()
	ent := e.store.ensureLocked(k)
	id := ent.nextObserver
	ent.nextObserver++
	ent.observers[id] = fn
	ent.observed++
	if !ent.seeded && !ent.seeding {
		ent.seeding = true
		go e.seed(k)
	}
	st := ent.state
	e.store.mu.Unlock()

	fn(st)

	return func() {
		e.store.mu.Lock()
		if _, ok := ent.observers[id]; ok {
			delete(ent.observers, id)
			ent.observed--
		}
		e.store.mu.Unlock()
	}
}

// ToggleLike applies an optimistic like/unlike and reconciles it against the
// service. Returns false with no side effects when a mutation is already in
// flight for the pair (drop, not queue). The viewer must be authenticated.
func (e *Engine) ToggleLike(ctx context.Context, subjectID, viewerID string) (bool, error) {
	if viewerID == "" {
		return false, api.ErrUnauthenticated
	}
	k := key{SubjectID: subjectID, ViewerID: viewerID}

	e.store.mu.Lock()
	ent := e.store.ensureLocked(k)
	if ent.phase == PhaseOptimistic {
		e.store.mu.Unlock()
		log.Printf("[Engine] ToggleLike dropped: subject=%s mutation already in flight", subjectID)
		return false, nil
	}

	// Snapshot for exact rollback.
	wasLiked := ent.state.IsLiked
	prevCount := ent.state.LikesCount

	newLiked := !wasLiked
	newCount := prevCount + 1
	if wasLiked {
		newCount = maxZero(prevCount - 1)
	}

	ent.gen++
	gen := ent.gen

	// A request that blew its timeout may still be open at the transport;
	// this call supersedes it.
	if ent.cancel != nil {
		ent.cancel()
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.MutationTimeout)
	ent.cancel = cancel
	ent.phase = PhaseOptimistic

	st := e.store.applyLocked(ent, func(s *State) {
		s.IsLiked = newLiked
		s.LikesCount = newCount
		s.IsUpdating = true
		s.Error = ""
	})
	observers := e.store.observersLocked(ent)
	e.store.mu.Unlock()

	e.notify(observers, st)
	log.Printf("[Engine] ToggleLike optimistic: subject=%s liked=%t count=%d", subjectID, newLiked, newCount)

	status, err := e.api.ToggleLike(reqCtx, subjectID, viewerID)
	cancel()

	e.store.mu.Lock()
	if ent.gen != gen {
		// Superseded: a newer mutation owns the state now. No rollback.
		e.store.mu.Unlock()
		log.Printf("[Engine] ToggleLike superseded: subject=%s gen=%d", subjectID, gen)
		return false, nil
	}
	ent.cancel = nil

	if err != nil {
		ent.phase = PhaseRolledBack
		code := api.Code(err)
		st := e.store.applyLocked(ent, func(s *State) {
			s.IsLiked = wasLiked
			s.LikesCount = prevCount
			s.IsUpdating = false
			s.Error = code
		})
		observers := e.store.observersLocked(ent)
		e.store.mu.Unlock()

		e.notify(observers, st)
		e.persist(k, st)
		log.Printf("[Engine] ToggleLike FAILED, rolled back: subject=%s code=%s err=%v", subjectID, code, err)
		return false, err
	}

	ent.phase = PhaseReconciling
	st = e.store.applyLocked(ent, func(s *State) {
		// Server values win over the optimistic guess; another viewer may
		// have liked concurrently.
		s.IsLiked = status.HasLiked
		s.LikesCount = maxZero(status.Count)
		s.IsUpdating = false
		s.Error = ""
	})
	ent.phase = PhaseIdle
	ent.seeded = true
	observers = e.store.observersLocked(ent)
	e.store.mu.Unlock()

	e.notify(observers, st)
	e.persist(k, st)
	log.Printf("[Engine] ToggleLike OK: subject=%s liked=%t count=%d", subjectID, status.HasLiked, status.Count)
	return true, nil
}

// Refresh fetches the authoritative like state and overwrites local state,
// unless a mutation is in flight for the pair: a stale read must never
// clobber an optimistic update. Concurrent refreshes for the same pair are
// collapsed into one request.
func (e *Engine) Refresh(ctx context.Context, subjectID, viewerID string) error {
	k := key{SubjectID: subjectID, ViewerID: viewerID}

	_, err, _ := e.refreshGroup.Do(k.String(), func() (interface{}, error) {
		e.store.mu.Lock()
		ent := e.store.ensureLocked(k)
		if ent.phase == PhaseOptimistic {
			e.store.mu.Unlock()
			log.Printf("[Engine] Refresh skipped: subject=%s mutation in flight", subjectID)
			return nil, nil
		}
		gen := ent.gen
		e.store.mu.Unlock()

		status, err := e.api.GetLikes(ctx, subjectID, viewerID)
		if err != nil {
			return nil, err
		}

		e.store.mu.Lock()
		if ent.phase == PhaseOptimistic || ent.gen != gen {
			// A mutation started while the read was in flight; its state wins.
			e.store.mu.Unlock()
			log.Printf("[Engine] Refresh discarded (stale): subject=%s", subjectID)
			return nil, nil
		}
		st := e.store.applyLocked(ent, func(s *State) {
			s.IsLiked = status.HasLiked
			s.LikesCount = maxZero(status.Count)
			s.Error = ""
		})
		ent.seeded = true
		observers := e.store.observersLocked(ent)
		e.store.mu.Unlock()

		e.notify(observers, st)
		e.persist(k, st)
		return nil, nil
	})
	return err
}

// Start begins periodic resynchronization of observed subjects.
// Stop shuts it down; both are explicit so the engine carries no hidden
// dependency on any UI lifecycle.
func (e *Engine) Start() { e.sched.start() }

// Stop halts periodic resynchronization and waits for it to finish.
func (e *Engine) Stop() { e.sched.stop() }

// TriggerResync requests an out-of-band resync of one pair (e.g. on
// visibility or viewer change). Bursts are debounced per subject.
func (e *Engine) TriggerResync(subjectID, viewerID string) {
	e.sched.schedule(key{SubjectID: subjectID, ViewerID: viewerID})
}

// seed consults the local persistent cache once per pair, then refreshes.
func (e *Engine) seed(k key) {
	ctx := context.Background()

	cached, found, err := e.local.Load(ctx, k.SubjectID, k.ViewerID)
	if err != nil {
		log.Printf("[Engine] Local cache load failed (ignored): subject=%s err=%v", k.SubjectID, err)
	}

	e.store.mu.Lock()
	ent := e.store.ensureLocked(k)
	var st State
	var observers []func(State)
	if found && !ent.seeded && ent.phase == PhaseIdle && ent.gen == 0 {
		st = e.store.applyLocked(ent, func(s *State) {
			s.IsLiked = cached.IsLiked
			s.LikesCount = maxZero(cached.LikesCount)
			s.CommentsCount = maxZero(cached.CommentsCount)
		})
		observers = e.store.observersLocked(ent)
		log.Printf("[Engine] Seeded from local cache: subject=%s liked=%t count=%d",
			k.SubjectID, cached.IsLiked, cached.LikesCount)
	}
	ent.seeding = false
	e.store.mu.Unlock()

	if observers != nil {
		e.notify(observers, st)
	}

	// The cache is never authoritative over a live response.
	if err := e.Refresh(ctx, k.SubjectID, k.ViewerID); err != nil {
		log.Printf("[Engine] Initial refresh failed (ignored): subject=%s err=%v", k.SubjectID, err)
	}
}

// persist writes the final state to the local cache, best-effort.
func (e *Engine) persist(k key, st State) {
	err := e.local.Save(context.Background(), localcache.Entry{
		SubjectID:     k.SubjectID,
		ViewerID:      k.ViewerID,
		IsLiked:       st.IsLiked,
		LikesCount:    st.LikesCount,
		CommentsCount: st.CommentsCount,
		UpdatedAt:     st.LastUpdated,
	})
	if err != nil {
		log.Printf("[Engine] Local cache save failed (ignored): subject=%s err=%v", k.SubjectID, err)
	}
}

// notify fires observer callbacks outside any lock.
func (e *Engine) notify(observers []func(State), st State) {
	for _, fn := range observers {
		fn(st)
	}
}
