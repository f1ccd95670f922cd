package reconcile

import (
	"time"

	"github.com/lumen-collab/coderoom/internal/room"
)

// Broadcast event tags as the server emits them.
const (
	CodeUpdated = "UPDATE"

	CommentCreated    = "COMMENT_CREATED"
	ReplyCreated      = "REPLY_CREATED"
	CommentUpdated    = "COMMENT_UPDATED"
	CommentDeleted    = "COMMENT_DELETED"
	CommentResolved   = "COMMENT_RESOLVED"
	CommentUnresolved = "COMMENT_UNRESOLVED"

	UserJoined = "JOIN"
	UserLeft   = "LEAVE"
)

// CodeEvent is a live-code broadcast.
type CodeEvent struct {
	EventType string `json:"eventType"`
	RoomID    int64  `json:"roomId"`
	Code      string `json:"code"`
}

// SnapshotEvent announces a snapshot created by any participant.
type SnapshotEvent struct {
	RoomID   int64             `json:"roomId"`
	Snapshot snapshotEventBody `json:"snapshot"`
}

type snapshotEventBody struct {
	SnapshotID  int64  `json:"snapshotId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
	CreatedAt   string `json:"createdAt"`
}

func (b snapshotEventBody) toSnapshot() room.Snapshot {
	return room.Snapshot{
		ID:          b.SnapshotID,
		Title:       b.Title,
		Description: b.Description,
		Code:        b.Code,
		CreatedAt:   parseEventTime(b.CreatedAt),
		Comments:    []room.Comment{},
	}
}

// CommentEvent covers the whole comment lifecycle on one snapshot.
type CommentEvent struct {
	EventType  string           `json:"eventType"`
	SnapshotID int64            `json:"snapshotId"`
	CommentID  int64            `json:"commentId"`
	Comment    commentEventBody `json:"comment"`
}

type commentEventBody struct {
	CommentID       int64  `json:"commentId"`
	ParentCommentID *int64 `json:"parentCommentId"`
	Content         string `json:"content"`
	Solved          bool   `json:"solved"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func (b commentEventBody) toComment() room.Comment {
	parentID := int64(0)
	if b.ParentCommentID != nil {
		parentID = *b.ParentCommentID
	}
	return room.Comment{
		CommentID:       b.CommentID,
		ParentCommentID: parentID,
		Content:         b.Content,
		Solved:          b.Solved,
		CreatedAt:       parseEventTime(b.CreatedAt),
		UpdatedAt:       parseEventTime(b.UpdatedAt),
	}
}

// targetCommentID prefers the embedded comment body over the flat field.
func (e CommentEvent) targetCommentID() int64 {
	if e.Comment.CommentID > 0 {
		return e.Comment.CommentID
	}
	return e.CommentID
}

// VoteEvent carries no tally. It only names the ballot whose cached
// results are now stale.
type VoteEvent struct {
	VoteID     int64 `json:"voteId"`
	SnapshotID int64 `json:"snapshotId"`
}

func (e VoteEvent) ballotID() int64 {
	if e.VoteID > 0 {
		return e.VoteID
	}
	return e.SnapshotID
}

// PresenceEvent reports a participant joining or leaving the room.
type PresenceEvent struct {
	EventType string   `json:"eventType"`
	Nickname  string   `json:"nickname"`
	UserCount int      `json:"userCount"`
	Users     []string `json:"users"`
}

func parseEventTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
