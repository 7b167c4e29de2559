package engine

import (
	"context"
	"testing"
	"time"

	"vibesync/pkg/api"
)

func TestTriggerResync_CollapsesBursts(t *testing.T) {
	mock := &mockAPI{
		getLikesFn: func(ctx context.Context, subjectID, viewerID string) (api.LikeStatus, error) {
			return api.LikeStatus{HasLiked: false, Count: 3}, nil
		},
	}
	e := New(mock, NewStore(), nil, Config{
		ResyncInterval:  time.Hour, // keep the periodic tick out of this test
		ResyncDebounce:  30 * time.Millisecond,
		MutationTimeout: time.Second,
	})

	// Reconcile once up front so the pair is seeded and the background seed
	// path stays quiet.
	if err := e.Refresh(context.Background(), "subject-1", "viewer-1"); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}
	_, before := mock.counts()

	// A burst of triggers within the debounce window collapses to one fetch.
	for i := 0; i < 5; i++ {
		e.TriggerResync("subject-1", "viewer-1")
	}

	time.Sleep(150 * time.Millisecond)

	_, after := mock.counts()
	if got := after - before; got != 1 {
		t.Errorf("burst of 5 triggers produced %d fetches, want 1", got)
	}
}

func TestStart_PeriodicallyResyncsObservedPairs(t *testing.T) {
	mock := &mockAPI{
		getLikesFn: func(ctx context.Context, subjectID, viewerID string) (api.LikeStatus, error) {
			return api.LikeStatus{HasLiked: true, Count: 8}, nil
		},
	}
	e := New(mock, NewStore(), nil, Config{
		ResyncInterval:  40 * time.Millisecond,
		ResyncDebounce:  5 * time.Millisecond,
		MutationTimeout: time.Second,
	})

	if err := e.Refresh(context.Background(), "subject-1", "viewer-1"); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}

	// Only observed pairs are picked up by the ticker.
	unsubscribe := e.Subscribe("subject-1", "viewer-1", func(State) {})
	defer unsubscribe()

	_, before := mock.counts()
	e.Start()
	defer e.Stop()

	time.Sleep(200 * time.Millisecond)

	_, after := mock.counts()
	if after-before < 2 {
		t.Errorf("got %d periodic fetches in 200ms at 40ms interval, want at least 2", after-before)
	}
}

func TestStop_HaltsResync(t *testing.T) {
	mock := &mockAPI{
		getLikesFn: func(ctx context.Context, subjectID, viewerID string) (api.LikeStatus, error) {
			return api.LikeStatus{}, nil
		},
	}
	e := New(mock, NewStore(), nil, Config{
		ResyncInterval:  20 * time.Millisecond,
		ResyncDebounce:  5 * time.Millisecond,
		MutationTimeout: time.Second,
	})

	if err := e.Refresh(context.Background(), "subject-1", "viewer-1"); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}
	unsubscribe := e.Subscribe("subject-1", "viewer-1", func(State) {})
	defer unsubscribe()

	e.Start()
	time.Sleep(60 * time.Millisecond)
	e.Stop()

	// Let any already-armed debounce timers drain before sampling.
	time.Sleep(30 * time.Millisecond)
	_, before := mock.counts()
	time.Sleep(100 * time.Millisecond)
	_, after := mock.counts()

	if after != before {
		t.Errorf("got %d fetches after Stop, want 0", after-before)
	}

	// Start is idempotent after Stop.
	e.Start()
	e.Stop()
}
