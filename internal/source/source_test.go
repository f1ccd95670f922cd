package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lumen-collab/coderoom/internal/config"
	"github.com/lumen-collab/coderoom/internal/room"
)

const testRoomUUID = room.UUID("3b241101-e2bb-4255-8caf-4136c566a962")

type fakeLister struct {
	mu    sync.Mutex
	list  []room.Snapshot
	err   error
	calls int
	rooms []string
}

func (f *fakeLister) ListSnapshots(_ context.Context, roomUUID string) ([]room.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.rooms = append(f.rooms, roomUUID)
	return f.list, f.err
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSink struct {
	mu     sync.Mutex
	synced [][]room.Snapshot
}

func (f *fakeSink) SyncSnapshots(list []room.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, list)
}

func (f *fakeSink) syncCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.synced)
}

func TestNewSelectsBackend(t *testing.T) {
	if _, err := New(Config{Mode: config.SnapshotSourcePush}); err != nil {
		t.Fatalf("push source must need no collaborators: %v", err)
	}
	if _, err := New(Config{Mode: config.SnapshotSourcePoll, Sink: &fakeSink{}}); err != ErrMissingLister {
		t.Fatalf("expected ErrMissingLister, got %v", err)
	}
	if _, err := New(Config{Mode: config.SnapshotSourcePoll, Lister: &fakeLister{}}); err != ErrMissingSink {
		t.Fatalf("expected ErrMissingSink, got %v", err)
	}
	if _, err := New(Config{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("unknown mode must be rejected")
	}
}

func TestPushSourceWaitsForCancellation(t *testing.T) {
	src, err := New(Config{Mode: config.SnapshotSourcePush})
	if err != nil {
		t.Fatalf("failed to build push source: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	cancel()
	select {
	case runErr := <-done:
		if !errors.Is(runErr, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", runErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("push source never stopped")
	}
}

func TestPollSourceSyncsBoundRoom(t *testing.T) {
	lister := &fakeLister{list: []room.Snapshot{{ID: 1, Title: "first"}}}
	sink := &fakeSink{}
	src, err := New(Config{
		Mode:         config.SnapshotSourcePoll,
		Lister:       lister,
		Sink:         sink,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build poll source: %v", err)
	}
	src.Bind(testRoomUUID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for sink.syncCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.syncCount() == 0 {
		t.Fatalf("poll source never synced")
	}

	lister.mu.Lock()
	targeted := lister.rooms[0]
	lister.mu.Unlock()
	if targeted != testRoomUUID.String() {
		t.Fatalf("poll must target the bound room, got %q", targeted)
	}
}

func TestPollSourceIdlesWithoutBinding(t *testing.T) {
	lister := &fakeLister{}
	sink := &fakeSink{}
	src, err := New(Config{
		Mode:         config.SnapshotSourcePoll,
		Lister:       lister,
		Sink:         sink,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build poll source: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx) }()

	time.Sleep(60 * time.Millisecond)
	if lister.callCount() != 0 {
		t.Fatalf("unbound poll source must not fetch, got %d calls", lister.callCount())
	}
}

func TestPollSourceKeepsTickingAfterFetchError(t *testing.T) {
	lister := &fakeLister{err: errors.New("api down")}
	sink := &fakeSink{}
	src, err := New(Config{
		Mode:         config.SnapshotSourcePoll,
		Lister:       lister,
		Sink:         sink,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build poll source: %v", err)
	}
	src.Bind(testRoomUUID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for lister.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if lister.callCount() < 2 {
		t.Fatalf("poll source must survive fetch errors")
	}
	if sink.syncCount() != 0 {
		t.Fatalf("failed fetches must not reach the sink")
	}
}
