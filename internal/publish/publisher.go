package publish

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/lumen-collab/coderoom/internal/channel"
)

// Application destinations the broker routes to the room's server side.
const (
	DestUpdateCode = "/app/update.code"
	DestJoinRoom   = "/app/join.room"
	DestLeaveRoom  = "/app/leave.room"
)

var (
	// ErrMissingTransport indicates the publisher was built without a channel.
	ErrMissingTransport = errors.New("publish: transport is required")
	// ErrMissingGuard indicates the publisher was built without an edit guard.
	ErrMissingGuard = errors.New("publish: edit guard is required")
)

// Transport is the slice of the realtime channel the publisher needs.
type Transport interface {
	Send(destination string, body any) error
	State() channel.State
}

// EditGuard says whether the local buffer is currently writable. Edits
// made while inspecting a snapshot must never reach the wire.
type EditGuard interface {
	Editable() bool
}

// PublisherConfig carries publisher construction parameters.
type PublisherConfig struct {
	Transport Transport
	Guard     EditGuard
	Logger    *zap.Logger
}

// Publisher pushes local buffer edits to the room. A publish that cannot
// go out right now is dropped, not queued: the next keystroke carries the
// full buffer anyway.
type Publisher struct {
	transport Transport
	guard     EditGuard
	logger    *zap.Logger

	mu     sync.RWMutex
	roomID int64
	bound  bool
}

// NewPublisher validates dependencies and builds a Publisher.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Transport == nil {
		return nil, ErrMissingTransport
	}
	if cfg.Guard == nil {
		return nil, ErrMissingGuard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		transport: cfg.Transport,
		guard:     cfg.Guard,
		logger:    logger,
	}, nil
}

// Bind authorizes outbound publishes for one room.
func (p *Publisher) Bind(roomID int64) {
	p.mu.Lock()
	p.roomID = roomID
	p.bound = true
	p.mu.Unlock()
}

// Unbind stops all outbound publishes.
func (p *Publisher) Unbind() {
	p.mu.Lock()
	p.bound = false
	p.roomID = 0
	p.mu.Unlock()
}

func (p *Publisher) binding() (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roomID, p.bound
}

// PublishCode sends the full buffer to the room. It reports whether the
// edit actually went out; a dropped publish is logged, never an error.
func (p *Publisher) PublishCode(code string) bool {
	roomID, bound := p.binding()
	if !bound {
		p.logger.Debug("publish dropped, no room bound")
		return false
	}
	if !p.guard.Editable() {
		p.logger.Debug("publish dropped, buffer not editable", zap.Int64("room_id", roomID))
		return false
	}
	if p.transport.State() != channel.StateConnected {
		p.logger.Debug("publish dropped, channel not connected", zap.Int64("room_id", roomID))
		return false
	}
	if err := p.transport.Send(DestUpdateCode, codePayload{RoomID: roomID, Code: code}); err != nil {
		p.logger.Warn("publish failed", zap.Int64("room_id", roomID), zap.Error(err))
		return false
	}
	return true
}

// AnnounceJoin tells the room a participant arrived.
func (p *Publisher) AnnounceJoin(nickname string) {
	p.announce(DestJoinRoom, nickname)
}

// AnnounceLeave tells the room a participant is going away.
func (p *Publisher) AnnounceLeave(nickname string) {
	p.announce(DestLeaveRoom, nickname)
}

func (p *Publisher) announce(destination, nickname string) {
	roomID, bound := p.binding()
	if !bound || p.transport.State() != channel.StateConnected {
		p.logger.Debug("announce dropped", zap.String("destination", destination))
		return
	}
	if err := p.transport.Send(destination, presencePayload{RoomID: roomID, Nickname: nickname}); err != nil {
		p.logger.Warn("announce failed", zap.String("destination", destination), zap.Error(err))
	}
}

type codePayload struct {
	RoomID int64  `json:"roomId"`
	Code   string `json:"code"`
}

type presencePayload struct {
	RoomID   int64  `json:"roomId"`
	Nickname string `json:"nickname"`
}
