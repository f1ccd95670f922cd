package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumen-collab/coderoom/internal/room"
	"go.uber.org/zap"
)

var (
	// ErrMissingStore indicates the gate was built without the local store.
	ErrMissingStore = errors.New("session gate: access store required")
	// ErrMissingRoomAPI indicates the gate was built without the REST collaborator.
	ErrMissingRoomAPI = errors.New("session gate: room api required")
	// ErrNotAuthorized is returned when no authorized record exists and no
	// password was supplied.
	ErrNotAuthorized = errors.New("session gate: room access not authorized")
	// ErrEnterRejected wraps a failed password exchange.
	ErrEnterRejected = errors.New("session gate: room entry rejected")
)

// RoomAPI is the slice of the REST collaborator the gate needs.
type RoomAPI interface {
	EnterRoom(ctx context.Context, roomUUID, password string) (room.Session, error)
	CreateRoom(ctx context.Context, title, password string) (room.Session, string, error)
}

// AccessStore persists per-room access records between runs.
type AccessStore interface {
	SaveRoomAccess(session room.Session) error
	RoomAccess(uuid string) (room.Session, bool, error)
}

// Gate resolves room identity and local authorization. The server stays
// authoritative: a cached authorized record only skips the password prompt,
// it never bypasses server-side checks on mutating calls.
type Gate struct {
	store  AccessStore
	api    RoomAPI
	logger *zap.Logger
}

// GateConfig carries the gate's dependencies.
type GateConfig struct {
	Store  AccessStore
	API    RoomAPI
	Logger *zap.Logger
}

// NewGate constructs a Gate with the provided configuration.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Store == nil {
		return nil, ErrMissingStore
	}
	if cfg.API == nil {
		return nil, ErrMissingRoomAPI
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: cfg.Store, api: cfg.API, logger: logger}, nil
}

// CheckAccess returns the cached session for a room when an authorized
// record exists. A missing or unauthorized record means the caller must
// collect a password and call Enter.
func (g *Gate) CheckAccess(roomUUID room.UUID) (room.Session, bool, error) {
	cached, found, err := g.store.RoomAccess(roomUUID.String())
	if err != nil {
		return room.Session{}, false, fmt.Errorf("session gate: read access record: %w", err)
	}
	if !found || !cached.Authorized {
		return room.Session{}, false, nil
	}
	return cached, true, nil
}

// Enter exchanges the password for the room identity and persists an
// authorized access record. On rejection no record is written and the
// local state stays unauthorized.
func (g *Gate) Enter(ctx context.Context, roomUUID room.UUID, password string) (room.Session, error) {
	entered, err := g.api.EnterRoom(ctx, roomUUID.String(), password)
	if err != nil {
		g.logger.Warn("room entry rejected", zap.String("room_uuid", roomUUID.String()), zap.Error(err))
		return room.Session{}, fmt.Errorf("%w: %w", ErrEnterRejected, err)
	}
	entered.UUID = roomUUID.String()
	entered.Authorized = true
	if err := g.store.SaveRoomAccess(entered); err != nil {
		return room.Session{}, fmt.Errorf("session gate: persist access record: %w", err)
	}
	g.logger.Info("room entered",
		zap.String("room_uuid", entered.UUID),
		zap.Int64("room_id", entered.RoomID))
	return entered, nil
}

// Resolve returns an authorized session for the room, entering with the
// password if no authorized record is cached. An empty password with no
// cached record fails with ErrNotAuthorized.
func (g *Gate) Resolve(ctx context.Context, roomUUID room.UUID, password string) (room.Session, error) {
	cached, authorized, err := g.CheckAccess(roomUUID)
	if err != nil {
		return room.Session{}, err
	}
	if authorized {
		// Refresh the access stamp so recently used rooms sort first.
		if err := g.store.SaveRoomAccess(cached); err != nil {
			g.logger.Warn("failed to refresh access stamp", zap.Error(err))
		}
		return cached, nil
	}
	if password == "" {
		return room.Session{}, ErrNotAuthorized
	}
	return g.Enter(ctx, roomUUID, password)
}

// Create provisions a new room and records the creator as authorized.
func (g *Gate) Create(ctx context.Context, title, password string) (room.Session, string, error) {
	created, sharedURL, err := g.api.CreateRoom(ctx, title, password)
	if err != nil {
		return room.Session{}, "", fmt.Errorf("session gate: create room: %w", err)
	}
	created.Authorized = true
	if err := g.store.SaveRoomAccess(created); err != nil {
		return room.Session{}, "", fmt.Errorf("session gate: persist access record: %w", err)
	}
	g.logger.Info("room created",
		zap.String("room_uuid", created.UUID),
		zap.Int64("room_id", created.RoomID))
	return created, sharedURL, nil
}
