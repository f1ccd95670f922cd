package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-collab/coderoom/internal/room"
)

const defaultRefetchTimeout = 10 * time.Second

var (
	// ErrMissingState indicates the dispatcher was built without a room state.
	ErrMissingState = errors.New("reconcile: state is required")
	// ErrMissingFetcher indicates the dispatcher was built without a fetcher.
	ErrMissingFetcher = errors.New("reconcile: fetcher is required")
)

// Fetcher is the slice of the REST client the dispatcher uses to recover
// when a broadcast cannot be applied incrementally.
type Fetcher interface {
	ListSnapshots(ctx context.Context, roomUUID string) ([]room.Snapshot, error)
	ListComments(ctx context.Context, snapshotID int64) ([]room.Comment, error)
	VoteResults(ctx context.Context, snapshotID int64) (room.Tally, error)
}

// DispatcherConfig carries dispatcher construction parameters.
type DispatcherConfig struct {
	State          *State
	Fetcher        Fetcher
	Logger         *zap.Logger
	RefetchTimeout time.Duration
}

// Dispatcher decodes raw broadcast bodies and reconciles them into the
// room state. Every handler tolerates duplicates, reordering and unknown
// payloads: the worst outcome of a surprising event is a refetch.
type Dispatcher struct {
	state   *State
	fetcher Fetcher
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.RWMutex
	roomUUID room.UUID
}

// NewDispatcher validates dependencies and builds a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.State == nil {
		return nil, ErrMissingState
	}
	if cfg.Fetcher == nil {
		return nil, ErrMissingFetcher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RefetchTimeout
	if timeout <= 0 {
		timeout = defaultRefetchTimeout
	}
	return &Dispatcher{
		state:   cfg.State,
		fetcher: cfg.Fetcher,
		logger:  logger,
		timeout: timeout,
	}, nil
}

// BindRoom points refetches at the given room.
func (d *Dispatcher) BindRoom(roomUUID room.UUID) {
	d.mu.Lock()
	d.roomUUID = roomUUID
	d.mu.Unlock()
}

func (d *Dispatcher) boundRoom() room.UUID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roomUUID
}

// HandleCode applies a live-code broadcast to the buffer.
func (d *Dispatcher) HandleCode(body []byte) {
	var event CodeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		d.logger.Warn("dropping malformed code event", zap.Error(err))
		return
	}
	if event.EventType != CodeUpdated {
		d.logger.Warn("dropping code event with unknown tag", zap.String("event_type", event.EventType))
		return
	}
	if d.state.SetCode(event.Code) {
		d.logger.Debug("live code updated", zap.Int("length", len(event.Code)))
	}
}

// HandleSnapshot inserts a broadcast snapshot. Duplicates are dropped.
func (d *Dispatcher) HandleSnapshot(body []byte) {
	var event SnapshotEvent
	if err := json.Unmarshal(body, &event); err != nil {
		d.logger.Warn("dropping malformed snapshot event", zap.Error(err))
		return
	}
	snapshot := event.Snapshot.toSnapshot()
	if snapshot.ID <= 0 {
		d.logger.Warn("dropping snapshot event without id")
		return
	}
	if d.state.UpsertSnapshot(snapshot) {
		d.logger.Info("snapshot added", zap.Int64("snapshot_id", snapshot.ID), zap.String("title", snapshot.Title))
	}
}

// HandleComment applies one comment lifecycle broadcast. Events that
// cannot be applied incrementally, and events with tags this build does
// not know, fall back to refetching the snapshot's whole thread.
func (d *Dispatcher) HandleComment(body []byte) {
	var event CommentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		d.logger.Warn("dropping malformed comment event", zap.Error(err))
		return
	}
	if event.SnapshotID <= 0 {
		d.logger.Warn("dropping comment event without snapshot id", zap.String("event_type", event.EventType))
		return
	}
	if !d.state.HasSnapshot(event.SnapshotID) {
		d.refetchSnapshots()
		return
	}

	comment := event.Comment.toComment()
	commentID := event.targetCommentID()

	switch event.EventType {
	case CommentCreated:
		d.state.ApplyComment(event.SnapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
			return room.AddComment(roots, comment)
		})
	case ReplyCreated:
		_, applied := d.state.ApplyComment(event.SnapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
			return room.AddReply(roots, comment.ParentCommentID, comment)
		})
		if !applied && !d.commentKnown(event.SnapshotID, commentID) {
			// Parent never arrived; recover the full thread.
			d.refetchComments(event.SnapshotID)
		}
	case CommentUpdated:
		if !d.commentKnown(event.SnapshotID, commentID) {
			d.refetchComments(event.SnapshotID)
			return
		}
		d.state.ApplyComment(event.SnapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
			return room.UpdateComment(roots, commentID, comment.Content, comment.UpdatedAt)
		})
	case CommentDeleted:
		d.state.ApplyComment(event.SnapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
			return room.RemoveComment(roots, commentID)
		})
	case CommentResolved, CommentUnresolved:
		if !d.commentKnown(event.SnapshotID, commentID) {
			d.refetchComments(event.SnapshotID)
			return
		}
		solved := event.EventType == CommentResolved
		d.state.ApplyComment(event.SnapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
			return room.SetCommentSolved(roots, commentID, solved)
		})
	default:
		d.logger.Warn("comment event tag unknown, refetching thread",
			zap.String("event_type", event.EventType),
			zap.Int64("snapshot_id", event.SnapshotID))
		d.refetchComments(event.SnapshotID)
	}
}

// HandleVote treats the broadcast as pure cache invalidation: the body
// names the ballot, the fresh tally comes from the server. The snapshot
// list is refetched wholesale because vote broadcasts may arrive before
// the snapshot they refer to.
func (d *Dispatcher) HandleVote(body []byte) {
	var event VoteEvent
	if err := json.Unmarshal(body, &event); err != nil {
		d.logger.Warn("dropping malformed vote event", zap.Error(err))
		return
	}
	ballotID := event.ballotID()
	if ballotID <= 0 {
		d.logger.Warn("dropping vote event without ballot id")
		return
	}
	d.RefreshTally(ballotID)
	d.refetchSnapshots()
}

// HandlePresence replaces the room roster.
func (d *Dispatcher) HandlePresence(body []byte) {
	var event PresenceEvent
	if err := json.Unmarshal(body, &event); err != nil {
		d.logger.Warn("dropping malformed presence event", zap.Error(err))
		return
	}
	switch event.EventType {
	case UserJoined, UserLeft:
	default:
		d.logger.Warn("dropping presence event with unknown tag", zap.String("event_type", event.EventType))
		return
	}
	d.state.SetPresence(room.Presence{
		Nickname:  event.Nickname,
		UserCount: event.UserCount,
		Users:     event.Users,
	})
	d.logger.Debug("presence updated",
		zap.String("event_type", event.EventType),
		zap.Int("user_count", event.UserCount))
}

// RefreshTally fetches the current vote results for one ballot.
func (d *Dispatcher) RefreshTally(snapshotID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	tally, err := d.fetcher.VoteResults(ctx, snapshotID)
	if err != nil {
		d.logger.Warn("tally refresh failed", zap.Int64("snapshot_id", snapshotID), zap.Error(err))
		return
	}
	d.state.SetTally(snapshotID, tally)
}

func (d *Dispatcher) commentKnown(snapshotID, commentID int64) bool {
	if commentID <= 0 {
		return false
	}
	roots, ok := d.state.Comments(snapshotID)
	if !ok {
		return false
	}
	return room.ContainsComment(roots, commentID)
}

func (d *Dispatcher) refetchComments(snapshotID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	flat, err := d.fetcher.ListComments(ctx, snapshotID)
	if err != nil {
		d.logger.Warn("comment refetch failed", zap.Int64("snapshot_id", snapshotID), zap.Error(err))
		return
	}
	d.state.ReplaceComments(snapshotID, flat)
}

func (d *Dispatcher) refetchSnapshots() {
	roomUUID := d.boundRoom()
	if roomUUID == "" {
		d.logger.Warn("snapshot refetch skipped, no room bound")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	list, err := d.fetcher.ListSnapshots(ctx, roomUUID.String())
	if err != nil {
		d.logger.Warn("snapshot refetch failed", zap.String("room_uuid", roomUUID.String()), zap.Error(err))
		return
	}
	d.state.ReplaceSnapshots(list)
}
