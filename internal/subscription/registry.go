package subscription

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lumen-collab/coderoom/internal/channel"
	"github.com/lumen-collab/coderoom/internal/room"
)

var (
	// ErrMissingTransport indicates the registry was built without a channel.
	ErrMissingTransport = errors.New("subscription: transport is required")
	// ErrMissingSink indicates the registry was built without an event sink.
	ErrMissingSink = errors.New("subscription: event sink is required")
	// ErrNotActive is returned when a resubscribe is requested with no bound room.
	ErrNotActive = errors.New("subscription: no active room binding")
)

// Transport is the slice of the realtime channel the registry needs.
type Transport interface {
	Subscribe(destination string, handler channel.Handler) (string, error)
	Unsubscribe(id string)
	State() channel.State
}

// EventSink receives raw broadcast bodies, one method per room topic.
type EventSink interface {
	HandleCode(body []byte)
	HandleSnapshot(body []byte)
	HandleComment(body []byte)
	HandleVote(body []byte)
	HandlePresence(body []byte)
}

// CodeTopic is the live-code broadcast destination for a room.
func CodeTopic(roomID int64) string {
	return fmt.Sprintf("/topic/room/%d/code", roomID)
}

// SnapshotTopic is the snapshot broadcast destination for a room.
func SnapshotTopic(roomUUID room.UUID) string {
	return fmt.Sprintf("/topic/room/%s/snapshots", roomUUID)
}

// CommentTopic is the comment broadcast destination for a room.
func CommentTopic(roomUUID room.UUID) string {
	return fmt.Sprintf("/topic/room/%s/comments", roomUUID)
}

// VoteTopic is the vote broadcast destination for a room.
func VoteTopic(roomUUID room.UUID) string {
	return fmt.Sprintf("/topic/room/%s/votes", roomUUID)
}

// PresenceTopic is the join/leave broadcast destination for a room.
func PresenceTopic(roomID int64) string {
	return fmt.Sprintf("/topic/room/%d/users", roomID)
}

// RegistryConfig carries registry construction parameters.
type RegistryConfig struct {
	Transport Transport
	Sink      EventSink
	Logger    *zap.Logger
}

// Registry binds one room's topic set to the realtime channel and routes
// broadcasts to the event sink. Activate and Teardown bump a generation
// token: deliveries from a previous generation are dropped, and Teardown
// does not return while a delivery is still running.
type Registry struct {
	transport Transport
	sink      EventSink
	logger    *zap.Logger

	mu         sync.RWMutex
	generation uint64
	active     bool
	roomID     int64
	roomUUID   room.UUID
	subIDs     []string
}

// NewRegistry validates dependencies and builds a Registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Transport == nil {
		return nil, ErrMissingTransport
	}
	if cfg.Sink == nil {
		return nil, ErrMissingSink
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		transport: cfg.Transport,
		sink:      cfg.Sink,
		logger:    logger,
	}, nil
}

// Activate subscribes the full topic set for one room. A prior binding is
// torn down first, so switching rooms never leaves stale subscriptions and
// never double-applies events from the old room. When subscribing fails the
// binding stays armed with no live topics; Resubscribe recovers it once the
// channel is connected again.
func (r *Registry) Activate(roomID int64, roomUUID room.UUID) error {
	r.Teardown()

	r.mu.Lock()
	r.generation++
	generation := r.generation
	r.active = true
	r.roomID = roomID
	r.roomUUID = roomUUID
	r.mu.Unlock()

	return r.subscribeAll(generation, roomID, roomUUID)
}

// Resubscribe re-arms the current binding on a fresh connection. The broker
// forgot the previous session's subscriptions, so the old ids are dropped
// without unsubscribe frames.
func (r *Registry) Resubscribe() error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return ErrNotActive
	}
	r.generation++
	generation := r.generation
	roomID := r.roomID
	roomUUID := r.roomUUID
	r.subIDs = nil
	r.mu.Unlock()

	return r.subscribeAll(generation, roomID, roomUUID)
}

// Teardown cancels the active binding. It is synchronous: once it returns,
// no handler for the old binding is running and none will run again.
func (r *Registry) Teardown() {
	// Taking the write lock waits out in-flight deliveries, which hold the
	// read lock for the duration of the sink call.
	r.mu.Lock()
	if !r.active && len(r.subIDs) == 0 {
		r.mu.Unlock()
		return
	}
	r.generation++
	r.active = false
	ids := r.subIDs
	r.subIDs = nil
	r.mu.Unlock()

	for _, id := range ids {
		r.transport.Unsubscribe(id)
	}
}

// Active reports whether a room binding is currently armed.
func (r *Registry) Active() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *Registry) subscribeAll(generation uint64, roomID int64, roomUUID room.UUID) error {
	bindings := []struct {
		destination string
		deliver     func([]byte)
	}{
		{CodeTopic(roomID), r.sink.HandleCode},
		{SnapshotTopic(roomUUID), r.sink.HandleSnapshot},
		{CommentTopic(roomUUID), r.sink.HandleComment},
		{VoteTopic(roomUUID), r.sink.HandleVote},
		{PresenceTopic(roomID), r.sink.HandlePresence},
	}

	for _, binding := range bindings {
		deliver := binding.deliver
		id, err := r.transport.Subscribe(binding.destination, func(_ string, body []byte) {
			r.deliver(generation, deliver, body)
		})
		if err != nil {
			r.retract(generation)
			return fmt.Errorf("subscription: subscribe %s: %w", binding.destination, err)
		}
		r.mu.Lock()
		if r.generation != generation {
			// Torn down while we were subscribing.
			r.mu.Unlock()
			r.transport.Unsubscribe(id)
			return ErrNotActive
		}
		r.subIDs = append(r.subIDs, id)
		r.mu.Unlock()
		r.logger.Debug("topic armed", zap.String("destination", binding.destination))
	}
	return nil
}

// retract drops a partially armed topic set but keeps the room binding, so
// the next connected transition can re-arm it via Resubscribe. Subscribing
// typically fails because the channel is down; forgetting the room here
// would make the failure permanent.
func (r *Registry) retract(generation uint64) {
	r.mu.Lock()
	if r.generation != generation {
		// Torn down or rebound while we were subscribing.
		r.mu.Unlock()
		return
	}
	r.generation++
	ids := r.subIDs
	r.subIDs = nil
	r.mu.Unlock()

	for _, id := range ids {
		r.transport.Unsubscribe(id)
	}
}

// deliver runs one sink call under the read lock so Teardown blocks until
// it finishes, and drops deliveries whose generation is no longer current.
func (r *Registry) deliver(generation uint64, sink func([]byte), body []byte) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.active || r.generation != generation {
		return
	}
	sink(body)
}
