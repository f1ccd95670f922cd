package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-collab/coderoom/internal/channel"
	"github.com/lumen-collab/coderoom/internal/publish"
	"github.com/lumen-collab/coderoom/internal/reconcile"
	"github.com/lumen-collab/coderoom/internal/room"
	"github.com/lumen-collab/coderoom/internal/source"
	"github.com/lumen-collab/coderoom/internal/subscription"
	"github.com/lumen-collab/coderoom/internal/version"
)

var (
	// ErrMissingGate indicates the agent was built without a session gate.
	ErrMissingGate = errors.New("agent: session gate is required")
	// ErrMissingAPI indicates the agent was built without a room API client.
	ErrMissingAPI = errors.New("agent: room api is required")
	// ErrMissingVoteLedger indicates the agent was built without a vote ledger.
	ErrMissingVoteLedger = errors.New("agent: vote ledger is required")
	// ErrMissingChannel indicates the agent was built without a realtime channel.
	ErrMissingChannel = errors.New("agent: realtime channel is required")
	// ErrMissingRegistry indicates the agent was built without a topic registry.
	ErrMissingRegistry = errors.New("agent: topic registry is required")
	// ErrMissingDispatcher indicates the agent was built without a dispatcher.
	ErrMissingDispatcher = errors.New("agent: dispatcher is required")
	// ErrMissingState indicates the agent was built without a room state.
	ErrMissingState = errors.New("agent: room state is required")
	// ErrMissingVersions indicates the agent was built without a version machine.
	ErrMissingVersions = errors.New("agent: version machine is required")
	// ErrMissingPublisher indicates the agent was built without a publisher.
	ErrMissingPublisher = errors.New("agent: publisher is required")
	// ErrMissingSource indicates the agent was built without a snapshot source.
	ErrMissingSource = errors.New("agent: snapshot source is required")

	// ErrNoActiveRoom is returned for room operations before a room is entered.
	ErrNoActiveRoom = errors.New("agent: no active room")
	// ErrReadOnlyBuffer rejects edits while a snapshot is being viewed.
	ErrReadOnlyBuffer = errors.New("agent: buffer is read-only while viewing a snapshot")
	// ErrAlreadyVoted rejects a second understanding-check vote on the same snapshot.
	ErrAlreadyVoted = errors.New("agent: vote already cast for this snapshot")
	// ErrEmptySnapshotTitle rejects snapshots without a title.
	ErrEmptySnapshotTitle = errors.New("agent: snapshot title is required")
	// ErrEmptyCommentContent rejects blank comments.
	ErrEmptyCommentContent = errors.New("agent: comment content is required")
)

// SessionGate resolves room access, exchanging a password only when the
// local access cache cannot answer.
type SessionGate interface {
	Resolve(ctx context.Context, roomUUID room.UUID, password string) (room.Session, error)
	Create(ctx context.Context, title, password string) (room.Session, string, error)
}

// RoomAPI is the REST surface the agent calls directly.
type RoomAPI interface {
	ListSnapshots(ctx context.Context, roomUUID string) ([]room.Snapshot, error)
	CreateSnapshot(ctx context.Context, roomUUID string, title, description, code string) (room.Snapshot, error)
	ListComments(ctx context.Context, snapshotID int64) ([]room.Comment, error)
	CreateComment(ctx context.Context, snapshotID int64, content string, parentCommentID int64) (room.Comment, error)
	UpdateComment(ctx context.Context, commentID int64, content string) (room.Comment, error)
	DeleteComment(ctx context.Context, commentID int64) error
	ResolveComment(ctx context.Context, commentID int64, solved bool) (bool, error)
	CastVote(ctx context.Context, snapshotID int64, voteType room.VoteType) error
	VoteResults(ctx context.Context, snapshotID int64) (room.Tally, error)
}

// VoteLedger persists which snapshots this participant already voted on.
type VoteLedger interface {
	RecordVote(roomUUID string, snapshotID int64, voteType room.VoteType) error
	Vote(roomUUID string, snapshotID int64) (room.VoteType, bool, error)
}

// Realtime is the slice of the channel the agent drives directly.
type Realtime interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() channel.State
	OnStateChange(listener func(channel.State))
}

// TopicRegistry arms and tears down a room's topic set.
type TopicRegistry interface {
	Activate(roomID int64, roomUUID room.UUID) error
	Resubscribe() error
	Teardown()
	Active() bool
}

// Config carries agent construction parameters.
type Config struct {
	Gate       SessionGate
	API        RoomAPI
	Votes      VoteLedger
	Channel    Realtime
	Registry   TopicRegistry
	Dispatcher *reconcile.Dispatcher
	State      *reconcile.State
	Versions   *version.Machine
	Publisher  *publish.Publisher
	Source     source.Source
	Nickname   string
	Logger     *zap.Logger
}

// Agent is the composition root of the synchronization layer: it owns the
// room lifecycle and exposes the operations the control API serves.
type Agent struct {
	gate       SessionGate
	api        RoomAPI
	votes      VoteLedger
	channel    Realtime
	registry   TopicRegistry
	dispatcher *reconcile.Dispatcher
	state      *reconcile.State
	versions   *version.Machine
	publisher  *publish.Publisher
	source     source.Source
	nickname   string
	logger     *zap.Logger

	mu           sync.RWMutex
	session      room.Session
	bound        bool
	cancelSource context.CancelFunc
}

// New validates dependencies and builds an Agent.
func New(cfg Config) (*Agent, error) {
	switch {
	case cfg.Gate == nil:
		return nil, ErrMissingGate
	case cfg.API == nil:
		return nil, ErrMissingAPI
	case cfg.Votes == nil:
		return nil, ErrMissingVoteLedger
	case cfg.Channel == nil:
		return nil, ErrMissingChannel
	case cfg.Registry == nil:
		return nil, ErrMissingRegistry
	case cfg.Dispatcher == nil:
		return nil, ErrMissingDispatcher
	case cfg.State == nil:
		return nil, ErrMissingState
	case cfg.Versions == nil:
		return nil, ErrMissingVersions
	case cfg.Publisher == nil:
		return nil, ErrMissingPublisher
	case cfg.Source == nil:
		return nil, ErrMissingSource
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	nickname := cfg.Nickname
	if nickname == "" {
		nickname = "coderoom-agent"
	}
	return &Agent{
		gate:       cfg.Gate,
		api:        cfg.API,
		votes:      cfg.Votes,
		channel:    cfg.Channel,
		registry:   cfg.Registry,
		dispatcher: cfg.Dispatcher,
		state:      cfg.State,
		versions:   cfg.Versions,
		publisher:  cfg.Publisher,
		source:     cfg.Source,
		nickname:   nickname,
		logger:     logger,
	}, nil
}

// Start connects the realtime channel and launches the snapshot source.
// Reconnects re-arm the active room's topics automatically.
func (a *Agent) Start(ctx context.Context) error {
	a.channel.OnStateChange(func(state channel.State) {
		if state != channel.StateConnected {
			return
		}
		if err := a.registry.Resubscribe(); err != nil && !errors.Is(err, subscription.ErrNotActive) {
			a.logger.Warn("resubscription after reconnect failed", zap.Error(err))
		}
	})

	if err := a.channel.Connect(ctx); err != nil {
		return fmt.Errorf("agent: connect channel: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.mu.Lock()
	a.cancelSource = cancel
	a.mu.Unlock()
	go func() {
		if err := a.source.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("snapshot source stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop leaves the active room and shuts the channel down.
func (a *Agent) Stop() {
	a.LeaveRoom()
	a.mu.Lock()
	cancel := a.cancelSource
	a.cancelSource = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.channel.Disconnect()
}

// EnterRoom resolves access to a room and binds the full topic set to it.
func (a *Agent) EnterRoom(ctx context.Context, rawUUID, password string) (room.Session, error) {
	roomUUID, err := room.NewUUID(rawUUID)
	if err != nil {
		return room.Session{}, err
	}
	sessionInfo, err := a.gate.Resolve(ctx, roomUUID, password)
	if err != nil {
		return room.Session{}, err
	}
	if err := a.bindRoom(ctx, sessionInfo); err != nil {
		return room.Session{}, err
	}
	return sessionInfo, nil
}

// CreateRoom provisions a new room and enters it as the creator.
func (a *Agent) CreateRoom(ctx context.Context, title, password string) (room.Session, string, error) {
	sessionInfo, sharedURL, err := a.gate.Create(ctx, title, password)
	if err != nil {
		return room.Session{}, "", err
	}
	if err := a.bindRoom(ctx, sessionInfo); err != nil {
		return room.Session{}, "", err
	}
	return sessionInfo, sharedURL, nil
}

func (a *Agent) bindRoom(ctx context.Context, sessionInfo room.Session) error {
	a.LeaveRoom()

	snapshots, err := a.api.ListSnapshots(ctx, sessionInfo.UUID)
	if err != nil {
		return fmt.Errorf("agent: hydrate snapshots: %w", err)
	}
	a.state.Reset()
	a.state.ReplaceSnapshots(snapshots)
	a.versions.Reset()
	a.dispatcher.BindRoom(room.UUID(sessionInfo.UUID))

	if err := a.registry.Activate(sessionInfo.RoomID, room.UUID(sessionInfo.UUID)); err != nil {
		// REST keeps working without live topics; the next reconnect re-arms.
		a.logger.Warn("topics not armed", zap.Int64("room_id", sessionInfo.RoomID), zap.Error(err))
	}
	a.publisher.Bind(sessionInfo.RoomID)
	a.source.Bind(room.UUID(sessionInfo.UUID))

	a.mu.Lock()
	a.session = sessionInfo
	a.bound = true
	a.mu.Unlock()

	a.publisher.AnnounceJoin(a.nickname)
	a.logger.Info("room entered",
		zap.Int64("room_id", sessionInfo.RoomID),
		zap.String("room_uuid", sessionInfo.UUID),
		zap.String("title", sessionInfo.Title))
	return nil
}

// LeaveRoom tears the active binding down. Safe to call with no room.
func (a *Agent) LeaveRoom() {
	a.mu.Lock()
	wasBound := a.bound
	a.bound = false
	a.session = room.Session{}
	a.mu.Unlock()

	if !wasBound {
		return
	}
	a.publisher.AnnounceLeave(a.nickname)
	a.registry.Teardown()
	a.publisher.Unbind()
	a.source.Bind("")
	a.dispatcher.BindRoom("")
	a.state.Reset()
	a.versions.Reset()
	a.logger.Info("room left")
}

// Session returns the active room session.
func (a *Agent) Session() (room.Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session, a.bound
}

// ConnectionState reports the realtime channel's lifecycle state.
func (a *Agent) ConnectionState() channel.State {
	return a.channel.State()
}

// Buffer returns the code the participant currently sees: the shared
// buffer while live, the pinned snapshot's code while viewing.
func (a *Agent) Buffer() string {
	if snapshotID, viewing := a.versions.ViewedSnapshot(); viewing {
		if snapshot, ok := a.state.Snapshot(snapshotID); ok {
			return snapshot.Code
		}
	}
	return a.state.Code()
}

// UpdateCode applies a local edit and pushes the full buffer to the room.
func (a *Agent) UpdateCode(code string) error {
	if _, bound := a.Session(); !bound {
		return ErrNoActiveRoom
	}
	if !a.versions.Editable() {
		return ErrReadOnlyBuffer
	}
	a.state.SetCode(code)
	a.publisher.PublishCode(code)
	return nil
}

// Snapshots returns the room's snapshot list, newest first.
func (a *Agent) Snapshots() []room.Snapshot {
	return a.state.Snapshots()
}

// CreateSnapshot freezes the live buffer under a title. The snapshot is
// added locally only once the server confirmed it; other participants
// learn about it from the broadcast.
func (a *Agent) CreateSnapshot(ctx context.Context, title, description string) (room.Snapshot, error) {
	sessionInfo, bound := a.Session()
	if !bound {
		return room.Snapshot{}, ErrNoActiveRoom
	}
	if title == "" {
		return room.Snapshot{}, ErrEmptySnapshotTitle
	}
	snapshot, err := a.api.CreateSnapshot(ctx, sessionInfo.UUID, title, description, a.state.Code())
	if err != nil {
		return room.Snapshot{}, err
	}
	a.state.UpsertSnapshot(snapshot)
	return snapshot, nil
}

// ViewSnapshot pins a snapshot; the buffer turns read-only.
func (a *Agent) ViewSnapshot(snapshotID int64) error {
	if _, bound := a.Session(); !bound {
		return ErrNoActiveRoom
	}
	return a.versions.View(snapshotID)
}

// ViewLive returns to the shared buffer.
func (a *Agent) ViewLive() error {
	if _, bound := a.Session(); !bound {
		return ErrNoActiveRoom
	}
	a.versions.Live()
	return nil
}

// OpenPanel shows the comment/vote side panel for the viewed snapshot,
// loading its current thread and tally.
func (a *Agent) OpenPanel(ctx context.Context) error {
	if _, bound := a.Session(); !bound {
		return ErrNoActiveRoom
	}
	if err := a.versions.OpenPanel(); err != nil {
		return err
	}
	snapshotID, _ := a.versions.ViewedSnapshot()
	if flat, err := a.api.ListComments(ctx, snapshotID); err == nil {
		a.state.ReplaceComments(snapshotID, flat)
	} else {
		a.logger.Warn("panel comment load failed", zap.Int64("snapshot_id", snapshotID), zap.Error(err))
	}
	if tally, err := a.api.VoteResults(ctx, snapshotID); err == nil {
		a.state.SetTally(snapshotID, tally)
	} else {
		a.logger.Warn("panel tally load failed", zap.Int64("snapshot_id", snapshotID), zap.Error(err))
	}
	return nil
}

// ClosePanel hides the side panel.
func (a *Agent) ClosePanel() {
	a.versions.ClosePanel()
}

// Comments returns the organized thread of one snapshot.
func (a *Agent) Comments(snapshotID int64) ([]room.Comment, error) {
	roots, ok := a.state.Comments(snapshotID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", room.ErrInvalidSnapshotID, snapshotID)
	}
	return roots, nil
}

// AddComment posts a root comment or a reply. The local thread changes
// only after the server confirmed the comment.
func (a *Agent) AddComment(ctx context.Context, snapshotID int64, content string, parentCommentID int64) (room.Comment, error) {
	if _, bound := a.Session(); !bound {
		return room.Comment{}, ErrNoActiveRoom
	}
	if content == "" {
		return room.Comment{}, ErrEmptyCommentContent
	}
	comment, err := a.api.CreateComment(ctx, snapshotID, content, parentCommentID)
	if err != nil {
		return room.Comment{}, err
	}
	a.applyConfirmedComment(snapshotID, comment)
	return comment, nil
}

func (a *Agent) applyConfirmedComment(snapshotID int64, comment room.Comment) {
	if comment.IsRoot() {
		a.state.ApplyComment(snapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
			return room.AddComment(roots, comment)
		})
		return
	}
	_, applied := a.state.ApplyComment(snapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
		return room.AddReply(roots, comment.ParentCommentID, comment)
	})
	if !applied {
		a.refreshComments(snapshotID)
	}
}

// EditComment replaces a comment's content.
func (a *Agent) EditComment(ctx context.Context, snapshotID, commentID int64, content string) (room.Comment, error) {
	if _, bound := a.Session(); !bound {
		return room.Comment{}, ErrNoActiveRoom
	}
	if content == "" {
		return room.Comment{}, ErrEmptyCommentContent
	}
	comment, err := a.api.UpdateComment(ctx, commentID, content)
	if err != nil {
		return room.Comment{}, err
	}
	a.state.ApplyComment(snapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
		return room.UpdateComment(roots, commentID, comment.Content, comment.UpdatedAt)
	})
	return comment, nil
}

// DeleteComment removes a comment; removing a root drops its replies.
func (a *Agent) DeleteComment(ctx context.Context, snapshotID, commentID int64) error {
	if _, bound := a.Session(); !bound {
		return ErrNoActiveRoom
	}
	if err := a.api.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	a.state.ApplyComment(snapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
		return room.RemoveComment(roots, commentID)
	})
	return nil
}

// ResolveComment toggles the solved flag of a root comment.
func (a *Agent) ResolveComment(ctx context.Context, snapshotID, commentID int64, solved bool) error {
	if _, bound := a.Session(); !bound {
		return ErrNoActiveRoom
	}
	confirmed, err := a.api.ResolveComment(ctx, commentID, solved)
	if err != nil {
		return err
	}
	a.state.ApplyComment(snapshotID, func(roots []room.Comment) ([]room.Comment, bool) {
		return room.SetCommentSolved(roots, commentID, confirmed)
	})
	return nil
}

// CastVote records one understanding-check vote per snapshot. The local
// ledger makes the check survive restarts; the server tallies.
func (a *Agent) CastVote(ctx context.Context, snapshotID int64, voteType room.VoteType) error {
	sessionInfo, bound := a.Session()
	if !bound {
		return ErrNoActiveRoom
	}
	if _, voted, err := a.votes.Vote(sessionInfo.UUID, snapshotID); err != nil {
		return fmt.Errorf("agent: read vote ledger: %w", err)
	} else if voted {
		return ErrAlreadyVoted
	}
	if err := a.api.CastVote(ctx, snapshotID, voteType); err != nil {
		return err
	}
	if err := a.votes.RecordVote(sessionInfo.UUID, snapshotID, voteType); err != nil {
		a.logger.Warn("vote ledger write failed", zap.Int64("snapshot_id", snapshotID), zap.Error(err))
	}
	a.dispatcher.RefreshTally(snapshotID)
	return nil
}

// Tally returns the cached vote results for a snapshot, fetching them on
// a cold cache.
func (a *Agent) Tally(ctx context.Context, snapshotID int64) (room.Tally, error) {
	if tally, ok := a.state.Tally(snapshotID); ok {
		return tally, nil
	}
	tally, err := a.api.VoteResults(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	a.state.SetTally(snapshotID, tally)
	return tally, nil
}

// VersionMode reports live/viewing plus the pinned snapshot id.
func (a *Agent) VersionMode() (version.Mode, int64) {
	snapshotID, _ := a.versions.ViewedSnapshot()
	return a.versions.Mode(), snapshotID
}

// PanelOpen reports whether the side panel is showing.
func (a *Agent) PanelOpen() bool {
	return a.versions.PanelOpen()
}

// Presence returns the room roster.
func (a *Agent) Presence() room.Presence {
	return a.state.Presence()
}

// SyncSnapshots installs a polled snapshot list and drops the version
// pointer back to live if its snapshot vanished.
func (a *Agent) SyncSnapshots(list []room.Snapshot) {
	a.state.ReplaceSnapshots(list)
	a.versions.Revalidate()
}

func (a *Agent) refreshComments(snapshotID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	flat, err := a.api.ListComments(ctx, snapshotID)
	if err != nil {
		a.logger.Warn("comment refresh failed", zap.Int64("snapshot_id", snapshotID), zap.Error(err))
		return
	}
	a.state.ReplaceComments(snapshotID, flat)
}
