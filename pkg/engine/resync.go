package engine

import (
	"context"
	"log"
	"sync"
	"time"
)

// scheduler drives periodic background resynchronization of observed
// subjects. Bursts of triggers for the same pair collapse into one refresh
// through a per-pair debounce timer.
type scheduler struct {
	engine *Engine

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pending map[key]*time.Timer
}

func (s *scheduler) init(e *Engine) {
	s.engine = e
	s.pending = make(map[key]*time.Timer)
}

func (s *scheduler) start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := s.ctx
	s.mu.Unlock()

	log.Printf("[Resync] Started: interval=%v debounce=%v",
		s.engine.cfg.ResyncInterval, s.engine.cfg.ResyncDebounce)

	s.wg.Add(1)
	go s.run(ctx)
}

func (s *scheduler) stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	for k, timer := range s.pending {
		timer.Stop()
		delete(s.pending, k)
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("[Resync] Stopped")
}

func (s *scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.engine.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, k := range s.engine.store.observedKeys() {
				s.schedule(k)
			}
		}
	}
}

// schedule arms the debounce timer for a pair. An already-armed timer means
// the burst collapses: the pair will be refreshed once.
func (s *scheduler) schedule(k key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, armed := s.pending[k]; armed {
		return
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	s.pending[k] = time.AfterFunc(s.engine.cfg.ResyncDebounce, func() {
		s.mu.Lock()
		delete(s.pending, k)
		s.mu.Unlock()

		// Refresh itself skips (not queues) when a mutation is in flight,
		// and failures never surface: the previous good state stays visible.
		if err := s.engine.Refresh(ctx, k.SubjectID, k.ViewerID); err != nil {
			log.Printf("[Resync] Refresh failed (ignored): subject=%s err=%v", k.SubjectID, err)
		}
	})
}
