package reconcile

import (
	"sync"

	"github.com/lumen-collab/coderoom/internal/room"
)

// State is the canonical in-memory picture of one room: live code, the
// snapshot list with comment threads, vote tallies and presence. All
// mutations are idempotent so replayed broadcasts converge instead of
// corrupting the picture.
type State struct {
	mu        sync.RWMutex
	code      string
	snapshots []room.Snapshot
	tallies   map[int64]room.Tally
	presence  room.Presence
}

// NewState builds an empty room picture.
func NewState() *State {
	return &State{tallies: make(map[int64]room.Tally)}
}

// Reset clears everything. Used when the agent switches rooms.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = ""
	s.snapshots = nil
	s.tallies = make(map[int64]room.Tally)
	s.presence = room.Presence{}
}

// Code returns the live buffer.
func (s *State) Code() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code
}

// SetCode replaces the live buffer. Last writer wins; setting the value
// the buffer already holds reports no change.
func (s *State) SetCode(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.code == code {
		return false
	}
	s.code = code
	return true
}

// Snapshots returns a copy of the snapshot list, newest first.
func (s *State) Snapshots() []room.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]room.Snapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// ReplaceSnapshots installs a freshly fetched list, sorted newest first.
// Comment lists are organized into the two-level thread shape on the way
// in, so a hydrated snapshot never carries replies at top level.
func (s *State) ReplaceSnapshots(list []room.Snapshot) {
	sorted := room.SortSnapshots(list)
	for i := range sorted {
		sorted[i].Comments = room.Organize(sorted[i].Comments)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = sorted
}

// UpsertSnapshot inserts a broadcast snapshot at the head of the list.
// A snapshot already present by id is left untouched.
func (s *State) UpsertSnapshot(snapshot room.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, changed := room.InsertSnapshot(s.snapshots, snapshot)
	s.snapshots = next
	return changed
}

// Snapshot looks a snapshot up by its stable id.
func (s *State) Snapshot(snapshotID int64) (room.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return room.FindSnapshot(s.snapshots, snapshotID)
}

// HasSnapshot reports whether the id names a known snapshot.
func (s *State) HasSnapshot(snapshotID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return room.SnapshotIndex(s.snapshots, snapshotID) >= 0
}

// ApplyComment runs one thread mutation against a snapshot's comments.
// It reports false when the snapshot is unknown or the mutation was a
// no-op, so callers can decide whether a refetch is warranted.
func (s *State) ApplyComment(snapshotID int64, mutate func([]room.Comment) ([]room.Comment, bool)) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := room.SnapshotIndex(s.snapshots, snapshotID)
	if index < 0 {
		return false, false
	}
	next, changed := mutate(s.snapshots[index].Comments)
	if changed {
		s.snapshots[index].Comments = next
	}
	return true, changed
}

// ReplaceComments installs a freshly fetched flat comment list for one
// snapshot, organized into the two-level thread shape.
func (s *State) ReplaceComments(snapshotID int64, flat []room.Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := room.SnapshotIndex(s.snapshots, snapshotID)
	if index < 0 {
		return false
	}
	s.snapshots[index].Comments = room.Organize(flat)
	return true
}

// Comments returns the thread of one snapshot.
func (s *State) Comments(snapshotID int64) ([]room.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := room.FindSnapshot(s.snapshots, snapshotID)
	if !ok {
		return nil, false
	}
	return snapshot.Comments, true
}

// SetTally caches the vote results for one ballot.
func (s *State) SetTally(snapshotID int64, tally room.Tally) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tallies[snapshotID] = tally
}

// Tally returns the cached vote results for one ballot.
func (s *State) Tally(snapshotID int64) (room.Tally, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tally, ok := s.tallies[snapshotID]
	return tally, ok
}

// SetPresence replaces the room roster.
func (s *State) SetPresence(presence room.Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence = presence
}

// Presence returns the room roster.
func (s *State) Presence() room.Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence
}
