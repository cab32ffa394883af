package filemeta

import (
	"context"
	"fmt"

	"github.com/marmos91/dittometa/internal/logger"
)

// ============================================================================
// Snapshot Diff Integration
// ============================================================================

// AddSnapshotFeature attaches an empty snapshot feature to the file.
// Fails when one is already attached: a file is captured at most once.
func (e *Engine) AddSnapshotFeature(ctx context.Context, f *FileMeta) (*SnapshotFeature, error) {
	if f.IsWithSnapshot() {
		return nil, errInvalidStatef(f.ID, "snapshot feature is already attached")
	}
	f.Snapshot = &SnapshotFeature{}
	if err := e.store.PutFile(ctx, f); err != nil {
		f.Snapshot = nil
		return nil, fmt.Errorf("persisting file %d: %w", f.ID, err)
	}
	return f.Snapshot, nil
}

// RecordModification captures the file's pre-mutation state in a snapshot
// diff before a mutation proceeds. Call it at the top of every mutating
// operation, passing the latest snapshot ID covering the file.
//
// No-op when no snapshot covers the file (CurrentStateID or NoSnapshotID),
// or when a diff for that snapshot already exists: only the state at
// snapshot time matters, and the first mutation after the snapshot already
// captured it. The snapshot feature is attached lazily on first use.
//
// withBlocks asks for the block ID list to be captured too; pass true for
// mutations that can change block membership (truncation), false for plain
// metadata edits.
func (e *Engine) RecordModification(ctx context.Context, f *FileMeta, latestSnapshotID int, withBlocks bool) error {
	if latestSnapshotID == CurrentStateID || latestSnapshotID == NoSnapshotID {
		return nil
	}
	if f.Snapshot == nil {
		f.Snapshot = &SnapshotFeature{}
	}
	if f.Snapshot.Diffs.DiffByID(latestSnapshotID) != nil {
		return nil
	}

	size, err := e.computeFileSize(ctx, f, true, false)
	if err != nil {
		return err
	}
	h, err := e.Header(ctx, f)
	if err != nil {
		return err
	}
	diff := FileDiff{
		SnapshotID:  latestSnapshotID,
		FileSize:    size,
		Replication: h.Replication(),
	}
	if withBlocks {
		ids, err := e.store.BlockIDs(ctx, f.ID)
		if err != nil {
			return err
		}
		diff.Blocks = ids
	}
	f.Snapshot.Diffs.addDiff(diff)

	if err := e.store.PutFile(ctx, f); err != nil {
		f.Snapshot.Diffs.removeDiff(latestSnapshotID)
		return fmt.Errorf("persisting file %d: %w", f.ID, err)
	}
	logger.Debug("file %d: recorded diff for snapshot %d (size=%d, repl=%d, blocks=%t)",
		f.ID, latestSnapshotID, size, diff.Replication, withBlocks)
	e.metrics.IncDiffsRecorded()
	return nil
}

// ComputeFileSizeAt is the file's size as visible from snapshotID: the
// recorded diff size when that exact snapshot captured one, the live size
// otherwise. Pass CurrentStateID for the live size (last block included at
// its actual length).
func (e *Engine) ComputeFileSizeAt(ctx context.Context, f *FileMeta, snapshotID int) (uint64, error) {
	if snapshotID != CurrentStateID && f.Snapshot != nil {
		if diff := f.Snapshot.Diffs.DiffByID(snapshotID); diff != nil {
			return diff.FileSize, nil
		}
	}
	return e.computeFileSize(ctx, f, true, false)
}

// BlocksAt is the file's block ID sequence as visible from snapshotID.
//
// Resolution order: the block list captured by that exact snapshot's diff;
// otherwise the live list, unless the live file has been deleted, in which
// case the nearest later snapshot that captured blocks answers (falling
// back to whatever list is still stored).
func (e *Engine) BlocksAt(ctx context.Context, f *FileMeta, snapshotID int) ([]uint64, error) {
	if snapshotID != CurrentStateID && f.Snapshot != nil {
		if diff := f.Snapshot.Diffs.DiffByID(snapshotID); diff != nil && diff.Blocks != nil {
			return diff.Blocks, nil
		}
		if f.Snapshot.IsCurrentFileDeleted() {
			if blocks := f.Snapshot.Diffs.FindLaterSnapshotBlocks(snapshotID); blocks != nil {
				return blocks, nil
			}
		}
	}
	return e.store.BlockIDs(ctx, f.ID)
}

// SnapshotBlocksToRetain returns, as a set, the block IDs that snapshotID
// still references and which therefore must survive a truncation of the
// live file. Nil when no snapshot state covers the file.
func (e *Engine) SnapshotBlocksToRetain(f *FileMeta, snapshotID int) map[uint64]struct{} {
	if f.Snapshot == nil {
		return nil
	}
	blocks := f.Snapshot.Diffs.FindEarlierSnapshotBlocks(snapshotID)
	if blocks == nil {
		return nil
	}
	retain := make(map[uint64]struct{}, len(blocks))
	for _, id := range blocks {
		retain[id] = struct{}{}
	}
	return retain
}

// IsBlockInLatestSnapshot reports whether the latest snapshot covering the
// file still references the block.
func (e *Engine) IsBlockInLatestSnapshot(f *FileMeta, blockID uint64) bool {
	if f.Snapshot == nil || f.Snapshot.Diffs.Len() == 0 {
		return false
	}
	blocks := f.Snapshot.Diffs.FindEarlierSnapshotBlocks(f.Snapshot.Diffs.LastSnapshotID())
	for _, id := range blocks {
		if id == blockID {
			return true
		}
	}
	return false
}

// CollectBlocksBeyondSnapshot shortens the live block sequence to its
// common prefix with snapshotBlocks and collects the removed blocks,
// skipping any still referenced by the snapshot. Used when reclaiming a
// deleted file whose latest snapshot captured a block list.
func (e *Engine) CollectBlocksBeyondSnapshot(ctx context.Context, f *FileMeta, snapshotBlocks []uint64, collected *CollectedBlocks) error {
	if snapshotBlocks == nil {
		return nil
	}
	ids, err := e.store.BlockIDs(ctx, f.ID)
	if err != nil {
		return err
	}
	n := 0
	for n < len(ids) && n < len(snapshotBlocks) && ids[n] == snapshotBlocks[n] {
		n++
	}
	if n == len(ids) {
		return nil
	}
	if err := e.TruncateBlocks(ctx, f, n); err != nil {
		return err
	}
	retained := make(map[uint64]struct{}, len(snapshotBlocks))
	for _, id := range snapshotBlocks {
		retained[id] = struct{}{}
	}
	for ; n < len(ids); n++ {
		if _, ok := retained[ids[n]]; !ok {
			collected.Add(ids[n])
		}
	}
	e.metrics.AddBlocksCollected(collected.Len())
	return nil
}
