package room

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRoomUUID indicates that a room uuid is empty or not a valid UUID.
	ErrInvalidRoomUUID = errors.New("room: invalid room uuid")
	// ErrInvalidRoomID indicates that a numeric room identifier is not positive.
	ErrInvalidRoomID = errors.New("room: invalid room id")
	// ErrInvalidSnapshotID indicates that a snapshot identifier is not positive.
	ErrInvalidSnapshotID = errors.New("room: invalid snapshot id")
	// ErrInvalidVoteType indicates an understanding-check vote outside the known set.
	ErrInvalidVoteType = errors.New("room: invalid vote type")
)

// UUID represents a validated public room identifier.
type UUID string

// NewUUID validates raw input and returns a room UUID.
func NewUUID(rawInput string) (UUID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRoomUUID)
	}
	if _, err := uuid.Parse(trimmed); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomUUID, trimmed)
	}
	return UUID(trimmed), nil
}

// String returns the underlying string identifier.
func (u UUID) String() string {
	return string(u)
}

// Session captures the locally cached identity of a room the user entered.
// The server stays authoritative for authorization on every mutating call;
// Authorized here only gates local behavior.
type Session struct {
	UUID         string
	RoomID       int64
	Title        string
	Authorized   bool
	LastAccessed time.Time
}

// Snapshot is an immutable, named point-in-time copy of the live buffer.
// Comment and vote side-state attached to it may still change.
type Snapshot struct {
	ID          int64
	Title       string
	Description string
	Code        string
	CreatedAt   time.Time
	Comments    []Comment
}

// Comment is a threaded Q&A entry attached to a snapshot. Roots carry
// ParentCommentID zero; replies reference their root and never nest further.
type Comment struct {
	CommentID       int64
	ParentCommentID int64
	Content         string
	Solved          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Replies         []Comment
}

// IsRoot reports whether the comment is a top-level question.
func (c Comment) IsRoot() bool {
	return c.ParentCommentID == 0
}

// VoteType enumerates understanding-check vote options.
type VoteType string

const (
	// VotePositive signals the snapshot was understood.
	VotePositive VoteType = "POSITIVE"
	// VoteNeutral signals more explanation is needed.
	VoteNeutral VoteType = "NEUTRAL"
	// VoteNegative signals the snapshot was not understood.
	VoteNegative VoteType = "NEGATIVE"
)

// ParseVoteType validates a raw vote type string.
func ParseVoteType(rawInput string) (VoteType, error) {
	switch VoteType(strings.ToUpper(strings.TrimSpace(rawInput))) {
	case VotePositive:
		return VotePositive, nil
	case VoteNeutral:
		return VoteNeutral, nil
	case VoteNegative:
		return VoteNegative, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVoteType, rawInput)
	}
}

// Tally aggregates vote counts per vote type for one snapshot.
type Tally map[VoteType]int

// Total returns the number of votes across all types.
func (t Tally) Total() int {
	total := 0
	for _, count := range t {
		total += count
	}
	return total
}

// Presence mirrors the server-published membership of a room.
type Presence struct {
	Nickname  string
	UserCount int
	Users     []string
}
