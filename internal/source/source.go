package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumen-collab/coderoom/internal/config"
	"github.com/lumen-collab/coderoom/internal/room"
)

var (
	// ErrMissingLister indicates a poll source was built without a snapshot lister.
	ErrMissingLister = errors.New("source: snapshot lister is required")
	// ErrMissingSink indicates a poll source was built without a sink.
	ErrMissingSink = errors.New("source: sink is required")
)

// Lister fetches the full snapshot list of a room.
type Lister interface {
	ListSnapshots(ctx context.Context, roomUUID string) ([]room.Snapshot, error)
}

// Sink receives a freshly fetched snapshot list.
type Sink interface {
	SyncSnapshots(list []room.Snapshot)
}

// Source keeps the local snapshot list in step with the server. The push
// backend trusts broker broadcasts; the poll backend asks the server on a
// timer for deployments without a reachable broker topic.
type Source interface {
	// Run blocks until the context is cancelled.
	Run(ctx context.Context) error
	// Bind points the source at a room. Unbinding uses an empty uuid.
	Bind(roomUUID room.UUID)
}

// Config carries source construction parameters.
type Config struct {
	Mode         config.SnapshotSourceMode
	Lister       Lister
	Sink         Sink
	PollInterval time.Duration
	Logger       *zap.Logger
}

// New selects the backend for the configured mode.
func New(cfg Config) (Source, error) {
	switch cfg.Mode {
	case config.SnapshotSourcePush:
		return &pushSource{}, nil
	case config.SnapshotSourcePoll:
		return newPollSource(cfg)
	default:
		return nil, fmt.Errorf("source: unknown mode %q", cfg.Mode)
	}
}

// pushSource is deliberately inert: snapshot broadcasts arrive through
// the realtime channel and are reconciled there.
type pushSource struct{}

func (s *pushSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *pushSource) Bind(room.UUID) {}

type pollSource struct {
	lister   Lister
	sink     Sink
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	roomUUID room.UUID
}

func newPollSource(cfg Config) (*pollSource, error) {
	if cfg.Lister == nil {
		return nil, ErrMissingLister
	}
	if cfg.Sink == nil {
		return nil, ErrMissingSink
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pollSource{
		lister:   cfg.Lister,
		sink:     cfg.Sink,
		interval: interval,
		logger:   logger,
	}, nil
}

func (s *pollSource) Bind(roomUUID room.UUID) {
	s.mu.Lock()
	s.roomUUID = roomUUID
	s.mu.Unlock()
}

func (s *pollSource) bound() room.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomUUID
}

func (s *pollSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *pollSource) syncOnce(ctx context.Context) {
	roomUUID := s.bound()
	if roomUUID == "" {
		return
	}
	fetchCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	list, err := s.lister.ListSnapshots(fetchCtx, roomUUID.String())
	if err != nil {
		s.logger.Warn("snapshot poll failed", zap.String("room_uuid", roomUUID.String()), zap.Error(err))
		return
	}
	s.sink.SyncSnapshots(list)
	s.logger.Debug("snapshot poll applied", zap.Int("count", len(list)))
}
