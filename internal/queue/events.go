package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the interaction stream
const (
	EventSubjectLiked   = "subject_liked"
	EventSubjectUnliked = "subject_unliked"
	EventCommentCreated = "comment_created"
	EventCommentDeleted = "comment_deleted"
)

// Stream names
const (
	StreamInteractions = "stream:interactions"
)

// Consumer group name for interaction workers
const (
	ConsumerGroupInteractions = "interaction_workers"
)

// InteractionEvent represents an event published to the interaction stream.
// Workers refresh the count cache and push realtime updates from these.
type InteractionEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp when event occurred

	SubjectID string `json:"subject_id"`
	ViewerID  string `json:"viewer_id"`

	// Comment events only
	CommentID string `json:"comment_id,omitempty"`
}

// NewLikeEvent creates an event for a like toggle outcome.
func NewLikeEvent(subjectID, viewerID string, liked bool) InteractionEvent {
	eventType := EventSubjectLiked
	if !liked {
		eventType = EventSubjectUnliked
	}
	return InteractionEvent{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		SubjectID: subjectID,
		ViewerID:  viewerID,
	}
}

// NewCommentCreatedEvent creates an event for a new comment.
func NewCommentCreatedEvent(subjectID, viewerID, commentID string) InteractionEvent {
	return InteractionEvent{
		Type:      EventCommentCreated,
		Timestamp: time.Now().Unix(),
		SubjectID: subjectID,
		ViewerID:  viewerID,
		CommentID: commentID,
	}
}

// NewCommentDeletedEvent creates an event for a deleted comment.
func NewCommentDeletedEvent(subjectID, viewerID, commentID string) InteractionEvent {
	return InteractionEvent{
		Type:      EventCommentDeleted,
		Timestamp: time.Now().Unix(),
		SubjectID: subjectID,
		ViewerID:  viewerID,
		CommentID: commentID,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so the event is serialized to JSON
// in a "data" field with the type duplicated for quick filtering.
func (e InteractionEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseInteractionEvent parses an event from Redis stream message values.
func ParseInteractionEvent(values map[string]interface{}) (InteractionEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return InteractionEvent{}, fmt.Errorf("missing data field in stream message")
	}

	var event InteractionEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return InteractionEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
