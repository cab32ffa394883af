package filemeta

import (
	"math"
	"sort"
)

// Snapshot ID conventions shared with the snapshot manager.
const (
	// CurrentStateID marks a query against the live file state rather
	// than any snapshot.
	CurrentStateID = math.MaxInt32 - 1

	// NoSnapshotID means "no snapshot": the file is not visible from any
	// snapshot, or a diff list is empty.
	NoSnapshotID = -1
)

// FileDiff captures a file's pre-mutation state as of one snapshot: the
// file size and replication factor, plus the block ID list when the
// mutation could change which blocks exist (truncation).
type FileDiff struct {
	// SnapshotID is the snapshot generation this diff belongs to.
	SnapshotID int `json:"snapshot_id"`

	// FileSize is the file length at the time the diff was recorded.
	FileSize uint64 `json:"file_size"`

	// Replication is the file replication factor at record time. Used to
	// bill retained blocks at the highest replication they ever had.
	Replication uint16 `json:"replication"`

	// Blocks is the captured block ID sub-sequence, nil when the mutation
	// could not change block membership (simple metadata edits).
	Blocks []uint64 `json:"blocks,omitempty"`
}

// FileDiffList is an ordered-by-snapshot-ID sequence of file diffs.
type FileDiffList struct {
	Items []FileDiff `json:"items"`
}

// Len is the number of recorded diffs.
func (l *FileDiffList) Len() int {
	return len(l.Items)
}

// Last returns the most recent diff, or nil when empty.
func (l *FileDiffList) Last() *FileDiff {
	if len(l.Items) == 0 {
		return nil
	}
	return &l.Items[len(l.Items)-1]
}

// LastSnapshotID is the snapshot ID of the most recent diff, or
// NoSnapshotID when empty.
func (l *FileDiffList) LastSnapshotID() int {
	if last := l.Last(); last != nil {
		return last.SnapshotID
	}
	return NoSnapshotID
}

// floorIndex returns the index of the diff with the largest snapshot ID
// <= snapshotID, or -1 if every diff is newer.
func (l *FileDiffList) floorIndex(snapshotID int) int {
	i := sort.Search(len(l.Items), func(i int) bool {
		return l.Items[i].SnapshotID > snapshotID
	})
	return i - 1
}

// DiffByID returns the diff recorded for exactly snapshotID, or nil.
func (l *FileDiffList) DiffByID(snapshotID int) *FileDiff {
	i := l.floorIndex(snapshotID)
	if i >= 0 && l.Items[i].SnapshotID == snapshotID {
		return &l.Items[i]
	}
	return nil
}

// FloorSnapshotID returns the largest recorded snapshot ID <= snapshotID,
// or NoSnapshotID when none qualifies.
func (l *FileDiffList) FloorSnapshotID(snapshotID int) int {
	i := l.floorIndex(snapshotID)
	if i < 0 {
		return NoSnapshotID
	}
	return l.Items[i].SnapshotID
}

// FindEarlierSnapshotBlocks returns the block list captured by the newest
// diff at or before snapshotID that recorded one, searching backward.
// Returns nil when no earlier diff captured blocks, or when querying the
// current state.
func (l *FileDiffList) FindEarlierSnapshotBlocks(snapshotID int) []uint64 {
	if snapshotID == CurrentStateID || snapshotID == NoSnapshotID {
		return nil
	}
	for i := l.floorIndex(snapshotID); i >= 0; i-- {
		if l.Items[i].Blocks != nil {
			return l.Items[i].Blocks
		}
	}
	return nil
}

// FindLaterSnapshotBlocks returns the block list captured by the oldest
// diff strictly after snapshotID that recorded one, searching forward.
func (l *FileDiffList) FindLaterSnapshotBlocks(snapshotID int) []uint64 {
	for i := l.floorIndex(snapshotID) + 1; i < len(l.Items); i++ {
		if l.Items[i].Blocks != nil {
			return l.Items[i].Blocks
		}
	}
	return nil
}

// addDiff inserts a diff keeping ascending snapshot-ID order. Diffs are
// normally appended (snapshot IDs only grow), so this is effectively an
// append with a safety sort for out-of-order restores.
func (l *FileDiffList) addDiff(d FileDiff) {
	l.Items = append(l.Items, d)
	if len(l.Items) > 1 && l.Items[len(l.Items)-2].SnapshotID > d.SnapshotID {
		sort.Slice(l.Items, func(i, j int) bool {
			return l.Items[i].SnapshotID < l.Items[j].SnapshotID
		})
	}
}

// removeDiff deletes the diff for snapshotID, if present, and returns it.
// Used when a snapshot is deleted and its captured state reclaimed.
func (l *FileDiffList) removeDiff(snapshotID int) *FileDiff {
	i := l.floorIndex(snapshotID)
	if i < 0 || l.Items[i].SnapshotID != snapshotID {
		return nil
	}
	removed := l.Items[i]
	l.Items = append(l.Items[:i], l.Items[i+1:]...)
	return &removed
}

// SnapshotFeature is the side-car state of a file that has been captured by
// at least one snapshot. It is attached lazily, at most once, on the first
// mutation of a file visible from an existing snapshot, and lives until the
// file is destroyed or all of its diffs are reclaimed.
type SnapshotFeature struct {
	// Diffs is the ordered diff list.
	Diffs FileDiffList `json:"diffs"`

	// CurrentFileDeleted is set when the live file has been deleted but
	// the entry is kept alive because snapshots still reference it.
	CurrentFileDeleted bool `json:"current_file_deleted,omitempty"`
}

// IsCurrentFileDeleted reports whether only snapshots keep this file alive.
func (sf *SnapshotFeature) IsCurrentFileDeleted() bool {
	return sf.CurrentFileDeleted
}

// DeleteCurrentFile marks the live file as deleted while snapshots still
// reference it.
func (sf *SnapshotFeature) DeleteCurrentFile() {
	sf.CurrentFileDeleted = true
}

// MaxBlockRepInDiffs is the highest replication factor recorded across all
// diffs, excluding the given one (pass nil to consider all). Returns 0 when
// no diff qualifies.
func (sf *SnapshotFeature) MaxBlockRepInDiffs(exclude *FileDiff) uint16 {
	var max uint16
	for i := range sf.Diffs.Items {
		d := &sf.Diffs.Items[i]
		if exclude != nil && d.SnapshotID == exclude.SnapshotID {
			continue
		}
		if d.Replication > max {
			max = d.Replication
		}
	}
	return max
}

// Clone returns a deep copy of the feature.
func (sf *SnapshotFeature) Clone() *SnapshotFeature {
	if sf == nil {
		return nil
	}
	out := &SnapshotFeature{CurrentFileDeleted: sf.CurrentFileDeleted}
	out.Diffs.Items = make([]FileDiff, len(sf.Diffs.Items))
	copy(out.Diffs.Items, sf.Diffs.Items)
	for i := range out.Diffs.Items {
		if sf.Diffs.Items[i].Blocks != nil {
			blocks := make([]uint64, len(sf.Diffs.Items[i].Blocks))
			copy(blocks, sf.Diffs.Items[i].Blocks)
			out.Diffs.Items[i].Blocks = blocks
		}
	}
	return out
}
