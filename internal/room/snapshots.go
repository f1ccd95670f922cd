package room

import "sort"

// InsertSnapshot places a snapshot at the head of the list unless an entry
// with the same id already exists. Insertion is idempotent by id so repeated
// channel deliveries converge to one entry.
func InsertSnapshot(list []Snapshot, snapshot Snapshot) ([]Snapshot, bool) {
	if snapshot.ID <= 0 {
		return list, false
	}
	for _, existing := range list {
		if existing.ID == snapshot.ID {
			return list, false
		}
	}
	out := make([]Snapshot, 0, len(list)+1)
	out = append(out, snapshot)
	out = append(out, list...)
	return out, true
}

// SortSnapshots orders a list newest-first by creation time, ties broken by
// descending id.
func SortSnapshots(list []Snapshot) []Snapshot {
	out := make([]Snapshot, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// FindSnapshot returns the snapshot with the given id and whether it exists.
func FindSnapshot(list []Snapshot, snapshotID int64) (Snapshot, bool) {
	for _, snapshot := range list {
		if snapshot.ID == snapshotID {
			return snapshot, true
		}
	}
	return Snapshot{}, false
}

// SnapshotIndex resolves a snapshot id to its position in the list,
// returning -1 when absent. Consumers resolve ids to indexes only at read
// time; the id is the stable reference.
func SnapshotIndex(list []Snapshot, snapshotID int64) int {
	for i, snapshot := range list {
		if snapshot.ID == snapshotID {
			return i
		}
	}
	return -1
}
