package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumen-collab/coderoom/internal/room"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

var (
	// ErrMissingBaseURL indicates the client was constructed without an API base URL.
	ErrMissingBaseURL = errors.New("rest: base url is required")
)

// StatusError carries a non-success response from the room API, including
// the server-reported message when one was supplied.
type StatusError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rest: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("rest: status %d: %s", e.StatusCode, e.Message)
}

// IsStatus reports whether err wraps a StatusError with the given code.
func IsStatus(err error, statusCode int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == statusCode
}

// Client consumes the room service REST API. It is the hydration and
// mutation fallback beside the realtime channel; it never caches.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a Client for the given API base URL.
func NewClient(baseURL string, logger *zap.Logger) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, ErrMissingBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}, nil
}

// envelope is the uniform response wrapper used by the room API.
type envelope struct {
	Data         json.RawMessage `json:"data"`
	Message      string          `json:"message"`
	ErrorMessage string          `json:"errorMessage"`
	ErrorCode    string          `json:"errorCode"`
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("room api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var wrapped envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("room api returned non-success status",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Message:    wrapped.ErrorMessage,
			Code:       wrapped.ErrorCode,
		}
	}

	if out == nil {
		return nil
	}
	if len(wrapped.Data) == 0 {
		return fmt.Errorf("decode response: empty data payload")
	}
	if err := json.Unmarshal(wrapped.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// CreateRoom provisions a new room and returns its identity.
func (c *Client) CreateRoom(ctx context.Context, title, password string) (room.Session, string, error) {
	payload := map[string]string{"title": title, "password": password}
	var dto createRoomDTO
	if err := c.do(ctx, http.MethodPost, "/api/v1/rooms/new", payload, &dto); err != nil {
		return room.Session{}, "", err
	}
	return room.Session{
		UUID:       dto.UUID,
		RoomID:     dto.RoomID,
		Title:      dto.Title,
		Authorized: true,
	}, dto.SharedURL, nil
}

// EnterRoom exchanges the room password for the room's identity.
func (c *Client) EnterRoom(ctx context.Context, roomUUID, password string) (room.Session, error) {
	path := fmt.Sprintf("/api/v1/rooms/enter/%s?password=%s", roomUUID, url.QueryEscape(password))
	var dto enterRoomDTO
	if err := c.do(ctx, http.MethodPost, path, nil, &dto); err != nil {
		return room.Session{}, err
	}
	return room.Session{
		UUID:       roomUUID,
		RoomID:     dto.RoomID,
		Title:      dto.Title,
		Authorized: true,
	}, nil
}

// ListSnapshots fetches the full snapshot list for a room, newest first.
func (c *Client) ListSnapshots(ctx context.Context, roomUUID string) ([]room.Snapshot, error) {
	var dtos []snapshotDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/snapshots/%s/", roomUUID), nil, &dtos); err != nil {
		return nil, err
	}
	snapshots := make([]room.Snapshot, 0, len(dtos))
	for _, dto := range dtos {
		snapshots = append(snapshots, dto.toSnapshot())
	}
	return room.SortSnapshots(snapshots), nil
}

// CreateSnapshot saves a point-in-time copy of the buffer on the server.
func (c *Client) CreateSnapshot(ctx context.Context, roomUUID string, title, description, code string) (room.Snapshot, error) {
	payload := map[string]string{"title": title, "description": description, "code": code}
	var dto snapshotDTO
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/snapshots/%s", roomUUID), payload, &dto); err != nil {
		return room.Snapshot{}, err
	}
	return dto.toSnapshot(), nil
}

// ListComments fetches the flat comment list for a snapshot.
func (c *Client) ListComments(ctx context.Context, snapshotID int64) ([]room.Comment, error) {
	var dtos []commentDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/comments/%d", snapshotID), nil, &dtos); err != nil {
		return nil, err
	}
	comments := make([]room.Comment, 0, len(dtos))
	for _, dto := range dtos {
		comments = append(comments, dto.toComment())
	}
	return comments, nil
}

// CreateComment posts a root comment or a reply on a snapshot.
func (c *Client) CreateComment(ctx context.Context, snapshotID int64, content string, parentCommentID int64) (room.Comment, error) {
	payload := map[string]any{"content": content}
	if parentCommentID != 0 {
		payload["parentCommentId"] = parentCommentID
	}
	var dto commentDTO
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/comments/%d/new", snapshotID), payload, &dto); err != nil {
		return room.Comment{}, err
	}
	return dto.toComment(), nil
}

// UpdateComment replaces the content of an existing comment.
func (c *Client) UpdateComment(ctx context.Context, commentID int64, content string) (room.Comment, error) {
	var dto commentDTO
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/comments/%d", commentID), map[string]string{"content": content}, &dto); err != nil {
		return room.Comment{}, err
	}
	return dto.toComment(), nil
}

// DeleteComment removes a comment.
func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/comments/%d", commentID), nil, nil)
}

// ResolveComment marks a comment solved or unsolved.
func (c *Client) ResolveComment(ctx context.Context, commentID int64, solved bool) (bool, error) {
	var dto resolveDTO
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/comments/%d/resolve", commentID), map[string]bool{"solved": solved}, &dto); err != nil {
		return false, err
	}
	return dto.Solved, nil
}

// CastVote submits an understanding-check vote for a snapshot. The vote id
// equals the snapshot id on the wire.
func (c *Client) CastVote(ctx context.Context, snapshotID int64, voteType room.VoteType) error {
	payload := map[string]string{"voteType": string(voteType)}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/votes/%d/cast", snapshotID), payload, nil)
}

// VoteResults fetches the aggregate tally for a snapshot.
func (c *Client) VoteResults(ctx context.Context, snapshotID int64) (room.Tally, error) {
	var dto voteResultDTO
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/votes/%d/results", snapshotID), nil, &dto); err != nil {
		return nil, err
	}
	tally := make(room.Tally, len(dto.VoteCounts))
	for rawType, count := range dto.VoteCounts {
		voteType, err := room.ParseVoteType(rawType)
		if err != nil {
			c.logger.Warn("dropping unknown vote type in tally", zap.String("vote_type", rawType))
			continue
		}
		tally[voteType] = count
	}
	return tally, nil
}
