// Package api holds the wire types and error taxonomy shared by the
// interaction service and its client SDK.
package api

import "time"

// Comment constraints
const (
	MaxCommentLength = 500
)

// Subject is an entity that can receive likes and comments (a vibe post).
// Subjects are created externally; this system only mutates their aggregates.
type Subject struct {
	ID            string    `db:"id" json:"id"`
	ProfileID     string    `db:"profile_id" json:"profile_id"`
	LikesCount    int       `db:"likes_count" json:"likes_count"`
	CommentsCount int       `db:"comments_count" json:"comments_count"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// LikeStatus is the authoritative like state for one (subject, viewer) pair.
type LikeStatus struct {
	HasLiked bool `json:"hasLiked"`
	Count    int  `json:"count"`
}

// Comment represents a comment on a subject.
// Optimistic is client-only: it marks a comment inserted locally that the
// server has not confirmed yet. It is never serialized.
type Comment struct {
	ID         string    `db:"id" json:"id"`
	ViewerID   string    `db:"viewer_id" json:"viewerId"`
	SubjectID  string    `db:"subject_id" json:"subjectId"`
	Text       string    `db:"text" json:"text"`
	CreatedAt  time.Time `db:"created_at" json:"timestamp"`
	Optimistic bool      `db:"-" json:"-"`
}

// ToggleLikeRequest is the body for POST /likes/toggle.
type ToggleLikeRequest struct {
	ViewerID  string    `json:"viewerId"`
	SubjectID string    `json:"subjectId"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateCommentRequest is the body for POST /comments.
type CreateCommentRequest struct {
	ViewerID  string    `json:"viewerId"`
	SubjectID string    `json:"subjectId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateSubjectRequest is the body for POST /subjects.
type CreateSubjectRequest struct {
	ProfileID string `json:"profileId"`
}

// SubjectCountsPatch is the body for PATCH /subjects/{id}.
// Fields are pointers so callers can patch one counter without touching the
// other; the full shape (both set) is the retry payload the client falls back
// to when the sparse shape is rejected.
type SubjectCountsPatch struct {
	LikesCount    *int `json:"likesCount,omitempty"`
	CommentsCount *int `json:"commentsCount,omitempty"`
}

// CommentListResponse is the response for GET /comments.
type CommentListResponse struct {
	Comments []Comment `json:"comments"`
}

// CountUpdate is the realtime broadcast pushed to websocket clients whenever
// a subject's aggregates change.
type CountUpdate struct {
	SubjectID     string `json:"subjectId"`
	LikesCount    int    `json:"likesCount"`
	CommentsCount int    `json:"commentsCount"`
}
