package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"vibesync/internal/cache"
	"vibesync/internal/queue"
	"vibesync/pkg/api"
)

// CountsProvider defines the interface for reading authoritative aggregate
// counts. This abstracts the repository layer so workers don't depend on the
// DB directly.
type CountsProvider interface {
	// GetAggregateCounts returns the current like and comment counts for a
	// subject from the source of truth.
	GetAggregateCounts(ctx context.Context, subjectID string) (likes, comments int, err error)
}

// Broadcaster pushes count updates to connected realtime clients.
type Broadcaster interface {
	Broadcast(update api.CountUpdate)
}

// Handler processes interaction events from the queue.
type Handler struct {
	countCache  cache.CountCache
	counts      CountsProvider
	broadcaster Broadcaster // Can be nil if realtime not wired
}

// NewHandler creates a new event handler.
func NewHandler(countCache cache.CountCache, counts CountsProvider) *Handler {
	return &Handler{
		countCache: countCache,
		counts:     counts,
	}
}

// SetBroadcaster sets the realtime broadcaster (optional).
func (h *Handler) SetBroadcaster(b Broadcaster) {
	h.broadcaster = b
}

// HandleEvent routes an event to the appropriate handler based on type.
// Every interaction event changes a subject's aggregates, so the work is the
// same shape: re-read authoritative counts, refresh the cache, broadcast.
func (h *Handler) HandleEvent(ctx context.Context, event queue.InteractionEvent) error {
	startTime := time.Now()

	switch event.Type {
	case queue.EventSubjectLiked, queue.EventSubjectUnliked,
		queue.EventCommentCreated, queue.EventCommentDeleted:
		if err := h.refreshCounts(ctx, event.SubjectID); err != nil {
			log.Printf("[Worker] HandleEvent FAILED: type=%s subject=%s duration=%v err=%v",
				event.Type, event.SubjectID, time.Since(startTime), err)
			return err
		}
	default:
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	log.Printf("[Worker] HandleEvent OK: type=%s subject=%s duration=%v",
		event.Type, event.SubjectID, time.Since(startTime))
	return nil
}

// refreshCounts re-reads authoritative counts, updates the count cache and
// notifies realtime subscribers.
func (h *Handler) refreshCounts(ctx context.Context, subjectID string) error {
	likes, comments, err := h.counts.GetAggregateCounts(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("get aggregate counts: %w", err)
	}

	if err := h.countCache.Set(ctx, subjectID, likes, comments); err != nil {
		// Cache failure is not fatal - next read warms it from the DB
		log.Printf("[Worker] Count cache refresh failed: subject=%s err=%v", subjectID, err)
	}

	if h.broadcaster != nil {
		h.broadcaster.Broadcast(api.CountUpdate{
			SubjectID:     subjectID,
			LikesCount:    likes,
			CommentsCount: comments,
		})
	}

	return nil
}
