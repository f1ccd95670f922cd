package rest

import (
	"time"

	"github.com/lumen-collab/coderoom/internal/room"
)

type createRoomDTO struct {
	RoomID    int64  `json:"roomId"`
	UUID      string `json:"uuid"`
	Title     string `json:"title"`
	SharedURL string `json:"sharedUrl"`
	CreatedAt string `json:"createdAt"`
}

type enterRoomDTO struct {
	RoomID    int64  `json:"roomId"`
	UUID      string `json:"uuid"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
}

type snapshotDTO struct {
	SnapshotID  int64        `json:"snapshotId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Code        string       `json:"code"`
	CreatedAt   string       `json:"createdAt"`
	Comments    []commentDTO `json:"comments"`
}

func (dto snapshotDTO) toSnapshot() room.Snapshot {
	// The server embeds comments flat, replies keyed by parentCommentId.
	flat := make([]room.Comment, 0, len(dto.Comments))
	for _, comment := range dto.Comments {
		flat = append(flat, comment.toComment())
	}
	return room.Snapshot{
		ID:          dto.SnapshotID,
		Title:       dto.Title,
		Description: dto.Description,
		Code:        dto.Code,
		CreatedAt:   parseServerTime(dto.CreatedAt),
		Comments:    room.Organize(flat),
	}
}

type commentDTO struct {
	CommentID       int64  `json:"commentId"`
	ParentCommentID *int64 `json:"parentCommentId"`
	Content         string `json:"content"`
	Solved          bool   `json:"solved"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func (dto commentDTO) toComment() room.Comment {
	// The server sends null for roots; locally roots are parent id zero.
	parentID := int64(0)
	if dto.ParentCommentID != nil {
		parentID = *dto.ParentCommentID
	}
	return room.Comment{
		CommentID:       dto.CommentID,
		ParentCommentID: parentID,
		Content:         dto.Content,
		Solved:          dto.Solved,
		CreatedAt:       parseServerTime(dto.CreatedAt),
		UpdatedAt:       parseServerTime(dto.UpdatedAt),
	}
}

type resolveDTO struct {
	CommentID int64 `json:"commentId"`
	Solved    bool  `json:"solved"`
}

type voteResultDTO struct {
	VoteID     int64          `json:"voteId"`
	VoteCounts map[string]int `json:"voteCounts"`
}

func parseServerTime(value string) time.Time {
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
