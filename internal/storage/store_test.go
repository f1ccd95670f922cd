package storage

import (
	"path/filepath"
	"testing"

	"github.com/lumen-collab/coderoom/internal/room"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "coderoom-test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Fatalf("expected empty path to be rejected")
	}
}

func TestSaveAndLookupRoomAccess(t *testing.T) {
	store := openTestStore(t)

	session := room.Session{
		UUID:       "b2a1e6de-9317-4f32-8e2c-0a9b6a1af001",
		RoomID:     12,
		Title:      "algorithms study",
		Authorized: true,
	}
	if err := store.SaveRoomAccess(session); err != nil {
		t.Fatalf("failed to save access record: %v", err)
	}

	loaded, found, err := store.RoomAccess(session.UUID)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !found {
		t.Fatalf("expected record to exist")
	}
	if loaded.RoomID != 12 || loaded.Title != "algorithms study" || !loaded.Authorized {
		t.Fatalf("unexpected record: %+v", loaded)
	}
	if loaded.LastAccessed.IsZero() {
		t.Fatalf("last access time must be stamped")
	}

	hasAccess, err := store.HasAccess(session.UUID)
	if err != nil || !hasAccess {
		t.Fatalf("expected authorized access, got %v err=%v", hasAccess, err)
	}
}

func TestRoomAccessOverwrite(t *testing.T) {
	store := openTestStore(t)
	uuid := "b2a1e6de-9317-4f32-8e2c-0a9b6a1af002"

	if err := store.SaveRoomAccess(room.Session{UUID: uuid, RoomID: 1, Title: "old", Authorized: false}); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := store.SaveRoomAccess(room.Session{UUID: uuid, RoomID: 1, Title: "new", Authorized: true}); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, _, err := store.RoomAccess(uuid)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if loaded.Title != "new" || !loaded.Authorized {
		t.Fatalf("record was not overwritten: %+v", loaded)
	}
}

func TestHasAccessForUnknownRoom(t *testing.T) {
	store := openTestStore(t)

	hasAccess, err := store.HasAccess("b2a1e6de-9317-4f32-8e2c-0a9b6a1af003")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if hasAccess {
		t.Fatalf("unknown room must not report access")
	}
}

func TestVoteMarkerIdempotency(t *testing.T) {
	store := openTestStore(t)
	uuid := "b2a1e6de-9317-4f32-8e2c-0a9b6a1af004"

	if _, voted, err := store.Vote(uuid, 42); err != nil || voted {
		t.Fatalf("expected no marker before cast, voted=%v err=%v", voted, err)
	}

	if err := store.RecordVote(uuid, 42, room.VotePositive); err != nil {
		t.Fatalf("first record failed: %v", err)
	}
	// A second marker for the same pair must not replace the first.
	if err := store.RecordVote(uuid, 42, room.VoteNegative); err != nil {
		t.Fatalf("duplicate record failed: %v", err)
	}

	voteType, voted, err := store.Vote(uuid, 42)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if !voted || voteType != room.VotePositive {
		t.Fatalf("unexpected marker: voted=%v type=%q", voted, voteType)
	}
}
