package engine

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"vibesync/pkg/api"
)

const (
	realtimeMinBackoff = time.Second
	realtimeMaxBackoff = 30 * time.Second
)

// Listener consumes the service's realtime count broadcasts and feeds them
// into the engine, so counts move without waiting for the next resync tick.
// Optional: the engine is fully functional without it.
type Listener struct {
	engine *Engine
	url    string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a listener for the service's /realtime websocket URL
// (e.g. "ws://localhost:8080/realtime").
func NewListener(e *Engine, url string) *Listener {
	return &Listener{engine: e, url: url}
}

// Start connects and begins applying broadcasts, reconnecting with capped
// backoff on any failure. Call Stop to shut down.
func (l *Listener) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(ctx)
}

// Stop disconnects and waits for the read loop to exit.
func (l *Listener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	backoff := realtimeMinBackoff
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Realtime] Dial failed, retrying in %v: url=%s err=%v", backoff, l.url, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > realtimeMaxBackoff {
				backoff = realtimeMaxBackoff
			}
			continue
		}

		log.Printf("[Realtime] Connected: url=%s", l.url)
		backoff = realtimeMinBackoff

		l.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Printf("[Realtime] Disconnected, reconnecting")
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadJSON when the listener is stopped.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var update api.CountUpdate
		if err := conn.ReadJSON(&update); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Realtime] Read failed: err=%v", err)
			}
			return
		}
		l.engine.applyCountUpdate(update)
	}
}

// applyCountUpdate pushes broadcast counts into every tracked entry for the
// subject, under the same rule as refresh: a broadcast never clobbers an
// in-flight optimistic mutation.
func (e *Engine) applyCountUpdate(update api.CountUpdate) {
	type pending struct {
		k         key
		st        State
		observers []func(State)
	}
	var updates []pending

	e.store.mu.Lock()
	for k, ent := range e.store.entries {
		if k.SubjectID != update.SubjectID || ent.phase == PhaseOptimistic {
			continue
		}
		st := e.store.applyLocked(ent, func(s *State) {
			s.LikesCount = maxZero(update.LikesCount)
			s.CommentsCount = maxZero(update.CommentsCount)
		})
		updates = append(updates, pending{k: k, st: st, observers: e.store.observersLocked(ent)})
	}
	e.store.mu.Unlock()

	for _, u := range updates {
		e.notify(u.observers, u.st)
		e.persist(u.k, u.st)
	}
}
