package filemeta

import (
	"context"
	"fmt"

	"github.com/marmos91/dittometa/pkg/storagepolicy"
)

// ============================================================================
// Quota Counts
// ============================================================================

// QuotaCounts aggregates namespace and storage-space consumption. Values
// are signed so the same type carries absolute usage and deltas.
type QuotaCounts struct {
	// NameSpace counts namespace entries (a file is 1).
	NameSpace int64

	// StorageSpace is replicated bytes: raw bytes multiplied by the
	// replication factor for contiguous files, actual group consumption
	// for striped files.
	StorageSpace int64

	// TypeSpaces attributes raw (un-replicated) bytes per storage type,
	// for types that participate in type quotas. Nil until first use.
	TypeSpaces map[storagepolicy.StorageType]int64
}

// AddNameSpace adds to the namespace count.
func (q *QuotaCounts) AddNameSpace(n int64) {
	q.NameSpace += n
}

// AddStorageSpace adds to the storage-space count.
func (q *QuotaCounts) AddStorageSpace(n int64) {
	q.StorageSpace += n
}

// AddTypeSpace adds to one storage type's count.
func (q *QuotaCounts) AddTypeSpace(t storagepolicy.StorageType, n int64) {
	if q.TypeSpaces == nil {
		q.TypeSpaces = make(map[storagepolicy.StorageType]int64)
	}
	q.TypeSpaces[t] += n
}

// Add merges another count into this one.
func (q *QuotaCounts) Add(other QuotaCounts) {
	q.NameSpace += other.NameSpace
	q.StorageSpace += other.StorageSpace
	for t, n := range other.TypeSpaces {
		q.AddTypeSpace(t, n)
	}
}

// ============================================================================
// File Size
// ============================================================================

// ComputeFileSize is the file's live byte length, counting the last block
// at its actual recorded length even while under construction.
func (e *Engine) ComputeFileSize(ctx context.Context, f *FileMeta) (uint64, error) {
	return e.computeFileSize(ctx, f, true, false)
}

// ComputeFileSizeWithOptions computes the file's live byte length with
// explicit handling of a non-complete last block: excluded entirely when
// includesLastUC is false, counted at the file's preferred block size
// (times the data unit count for striped groups) when usePreferredForLastUC
// is set, counted at its actual length otherwise. Complete last blocks
// always count at their actual length.
func (e *Engine) ComputeFileSizeWithOptions(ctx context.Context, f *FileMeta, includesLastUC, usePreferredForLastUC bool) (uint64, error) {
	return e.computeFileSize(ctx, f, includesLastUC, usePreferredForLastUC)
}

func (e *Engine) computeFileSize(ctx context.Context, f *FileMeta, includesLastUC, usePreferredForLastUC bool) (uint64, error) {
	n, err := e.store.NumBlocks(ctx, f.ID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	last, err := e.LastBlock(ctx, f)
	if err != nil {
		return 0, err
	}
	size := last.NumBytes
	if !last.IsComplete() {
		switch {
		case !includesLastUC:
			size = 0
		case usePreferredForLastUC:
			h, err := e.Header(ctx, f)
			if err != nil {
				return 0, err
			}
			size = h.PreferredBlockSize()
			if last.Striped {
				size *= uint64(last.DataUnits)
			}
		}
	}

	head, err := e.store.TotalNumBytes(ctx, f.ID, n-1)
	if err != nil {
		return 0, err
	}
	return head + size, nil
}

// ============================================================================
// Storage Space Consumption
// ============================================================================

// StoragespaceConsumed is the storage space the file occupies right now,
// dispatching on the file's layout. policy may be nil to skip per-type
// attribution.
func (e *Engine) StoragespaceConsumed(ctx context.Context, f *FileMeta, policy *storagepolicy.Policy) (QuotaCounts, error) {
	h, err := e.Header(ctx, f)
	if err != nil {
		return QuotaCounts{}, err
	}
	if h.IsStriped() {
		return e.storagespaceConsumedStriped(ctx, f, h)
	}
	return e.storagespaceConsumedContiguous(ctx, f, h, policy)
}

// storagespaceConsumedContiguous bills the union of the live block sequence
// and every block list captured in snapshot diffs, each distinct block once,
// at the file's preferred block replication. Incomplete blocks are billed a
// full preferred block size.
func (e *Engine) storagespaceConsumedContiguous(ctx context.Context, f *FileMeta, h Header, policy *storagepolicy.Policy) (QuotaCounts, error) {
	ids, err := e.store.BlockIDs(ctx, f.ID)
	if err != nil {
		return QuotaCounts{}, err
	}
	distinct := NewCollectedBlocks()
	for _, id := range ids {
		distinct.Add(id)
	}
	if f.Snapshot != nil {
		for i := range f.Snapshot.Diffs.Items {
			for _, id := range f.Snapshot.Diffs.Items[i].Blocks {
				distinct.Add(id)
			}
		}
	}

	replication, err := e.PreferredBlockReplication(ctx, f)
	if err != nil {
		return QuotaCounts{}, err
	}

	var counts QuotaCounts
	for _, id := range distinct.IDs() {
		b, err := e.blocks.Block(ctx, id)
		if err != nil {
			return QuotaCounts{}, fmt.Errorf("resolving block %d of file %d: %w", id, f.ID, err)
		}
		blockSize := b.NumBytes
		if !b.IsComplete() {
			blockSize = h.PreferredBlockSize()
		}
		counts.AddStorageSpace(int64(blockSize) * int64(replication))
		if policy != nil {
			for _, t := range policy.ChooseStorageTypes(replication) {
				if t.SupportsTypeQuota() {
					counts.AddTypeSpace(t, int64(blockSize))
				}
			}
		}
	}
	return counts, nil
}

// storagespaceConsumedStriped bills each block group at its recorded
// consumption when complete, a full preferred block size per unit
// otherwise. No replication multiplier applies and no per-type attribution
// is made.
func (e *Engine) storagespaceConsumedStriped(ctx context.Context, f *FileMeta, h Header) (QuotaCounts, error) {
	blocks, err := e.Blocks(ctx, f)
	if err != nil {
		return QuotaCounts{}, err
	}
	var counts QuotaCounts
	for _, b := range blocks {
		if !b.Striped {
			return QuotaCounts{}, errInvariantf(f.ID, "contiguous block %d in striped file", b.ID)
		}
		blockSize := b.ConsumedBytes
		if !b.IsComplete() {
			blockSize = h.PreferredBlockSize() * uint64(b.TotalUnits())
		}
		counts.AddStorageSpace(int64(blockSize))
	}
	return counts, nil
}

// ============================================================================
// Quota Usage
// ============================================================================

// ComputeQuotaUsage is the file's total quota charge: one namespace entry
// plus storage space, scoped to lastSnapshotID when the file is being
// removed together with snapshots up to that ID. Pass CurrentStateID for
// full current usage. policyID 0 skips per-type attribution; unknown policy
// IDs fail.
func (e *Engine) ComputeQuotaUsage(ctx context.Context, f *FileMeta, policyID uint8, lastSnapshotID int) (QuotaCounts, error) {
	counts := QuotaCounts{NameSpace: 1}
	e.metrics.IncQuotaComputations()

	var policy *storagepolicy.Policy
	if policyID != storagepolicy.PolicyIDUnspecified {
		var err error
		policy, err = e.policies.Policy(policyID)
		if err != nil {
			return QuotaCounts{}, err
		}
	}

	// An attached feature with no diffs yet is current state too.
	sf := f.Snapshot
	if sf == nil || sf.Diffs.Len() == 0 || lastSnapshotID == CurrentStateID ||
		sf.Diffs.LastSnapshotID() == CurrentStateID {
		consumed, err := e.StoragespaceConsumed(ctx, f, policy)
		if err != nil {
			return QuotaCounts{}, err
		}
		counts.Add(consumed)
		return counts, nil
	}

	h, err := e.Header(ctx, f)
	if err != nil {
		return QuotaCounts{}, err
	}
	if h.IsStriped() {
		consumed, err := e.storagespaceConsumedStriped(ctx, f, h)
		if err != nil {
			return QuotaCounts{}, err
		}
		counts.Add(consumed)
		return counts, nil
	}

	var size uint64
	var replication uint16
	if sf.Diffs.LastSnapshotID() < lastSnapshotID {
		size, err = e.computeFileSize(ctx, f, true, false)
		if err != nil {
			return QuotaCounts{}, err
		}
		replication = h.Replication()
	} else {
		sid := sf.Diffs.FloorSnapshotID(lastSnapshotID)
		size, err = e.ComputeFileSizeAt(ctx, f, sid)
		if err != nil {
			return QuotaCounts{}, err
		}
		replication, err = e.FileReplication(ctx, f, sid)
		if err != nil {
			return QuotaCounts{}, err
		}
	}

	counts.AddStorageSpace(int64(size) * int64(replication))
	if policy != nil {
		for _, t := range policy.ChooseStorageTypes(replication) {
			if t.SupportsTypeQuota() {
				counts.AddTypeSpace(t, int64(size))
			}
		}
	}
	return counts, nil
}

// ComputeQuotaDeltaForTruncate is the (non-positive) storage-space change a
// truncation to newLength would cause, without mutating anything.
//
// Walking the block sequence from the tail while the cumulative size still
// exceeds newLength: a fully dropped block releases its recorded length; the
// block straddling the new boundary is billed forward a full preferred block
// (truncate recovery copies it), so it releases its length minus one
// preferred block size. A block still referenced at the same position by the
// latest snapshot's captured list releases nothing.
func (e *Engine) ComputeQuotaDeltaForTruncate(ctx context.Context, f *FileMeta, newLength uint64, policy *storagepolicy.Policy) (QuotaCounts, error) {
	blocks, err := e.Blocks(ctx, f)
	if err != nil {
		return QuotaCounts{}, err
	}
	var delta QuotaCounts
	if len(blocks) == 0 {
		return delta, nil
	}

	var size uint64
	for _, b := range blocks {
		size += b.NumBytes
	}

	var snapshotBlocks []uint64
	if f.Snapshot != nil {
		if last := f.Snapshot.Diffs.Last(); last != nil {
			snapshotBlocks = last.Blocks
		}
	}

	h, err := e.Header(ctx, f)
	if err != nil {
		return QuotaCounts{}, err
	}
	replication, err := e.PreferredBlockReplication(ctx, f)
	if err != nil {
		return QuotaCounts{}, err
	}

	for i := len(blocks) - 1; i >= 0 && size > newLength; i-- {
		b := blocks[i]
		var truncatedBytes int64
		if size-newLength < b.NumBytes {
			truncatedBytes = int64(b.NumBytes) - int64(h.PreferredBlockSize())
		} else {
			truncatedBytes = int64(b.NumBytes)
		}
		if snapshotBlocks != nil && i < len(snapshotBlocks) && b.ID == snapshotBlocks[i] {
			truncatedBytes -= int64(b.NumBytes)
		}
		delta.AddStorageSpace(-truncatedBytes * int64(replication))
		if policy != nil {
			for _, t := range policy.ChooseStorageTypes(replication) {
				if t.SupportsTypeQuota() {
					delta.AddTypeSpace(t, -truncatedBytes)
				}
			}
		}
		size -= b.NumBytes
	}
	return delta, nil
}

// ============================================================================
// Block Reclamation
// ============================================================================

// CollectBlocksBeyondMax shortens the file's block sequence to the minimal
// prefix whose cumulative size reaches max, collecting removed blocks for
// deletion unless toRetain still references them. Returns the number of
// blocks kept.
func (e *Engine) CollectBlocksBeyondMax(ctx context.Context, f *FileMeta, max uint64, collected *CollectedBlocks, toRetain map[uint64]struct{}) (int, error) {
	blocks, err := e.Blocks(ctx, f)
	if err != nil {
		return 0, err
	}
	if len(blocks) == 0 {
		return 0, nil
	}

	n := 0
	var size uint64
	for ; n < len(blocks) && max > size; n++ {
		size += blocks[n].NumBytes
	}
	if n >= len(blocks) {
		return n, nil
	}

	if err := e.TruncateBlocks(ctx, f, n); err != nil {
		return 0, err
	}
	kept := n
	for ; n < len(blocks); n++ {
		if _, retained := toRetain[blocks[n].ID]; !retained {
			collected.Add(blocks[n].ID)
		}
	}
	e.metrics.AddBlocksCollected(collected.Len())
	return kept, nil
}

// CollectBlocksAndClear reclaims a file whose live copy has been deleted
// while snapshots may still reference it. With no diffs remaining the file
// is fully destroyed; otherwise the live sequence is cut back to what the
// latest snapshot still sees and the remainder collected.
func (e *Engine) CollectBlocksAndClear(ctx context.Context, f *FileMeta, collected *CollectedBlocks) error {
	sf := f.Snapshot
	if sf == nil || (sf.IsCurrentFileDeleted() && sf.Diffs.Len() == 0) {
		return e.ClearFile(ctx, f, collected)
	}

	var max uint64
	last := sf.Diffs.Last()
	if sf.IsCurrentFileDeleted() {
		if last != nil {
			max = last.FileSize
		}
	} else {
		var err error
		max, err = e.computeFileSize(ctx, f, true, false)
		if err != nil {
			return err
		}
	}

	var snapshotBlocks []uint64
	if last != nil {
		snapshotBlocks = last.Blocks
	}
	if snapshotBlocks == nil {
		_, err := e.CollectBlocksBeyondMax(ctx, f, max, collected, nil)
		return err
	}
	return e.CollectBlocksBeyondSnapshot(ctx, f, snapshotBlocks, collected)
}

// DestroyAndCollectBlocks removes the file entirely: every distinct block
// it references, live or captured in any snapshot diff, is collected, and
// all of its records are deleted from the store.
func (e *Engine) DestroyAndCollectBlocks(ctx context.Context, f *FileMeta, collected *CollectedBlocks) error {
	if f.Snapshot != nil {
		for i := range f.Snapshot.Diffs.Items {
			for _, id := range f.Snapshot.Diffs.Items[i].Blocks {
				collected.Add(id)
			}
		}
	}
	return e.ClearFile(ctx, f, collected)
}

// ClearFile collects the file's live blocks and deletes its file entry,
// header, and block sequence from the store.
func (e *Engine) ClearFile(ctx context.Context, f *FileMeta, collected *CollectedBlocks) error {
	ids, err := e.store.BlockIDs(ctx, f.ID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		collected.Add(id)
	}
	if err := e.store.TruncateBlockIDs(ctx, f.ID, 0); err != nil {
		return err
	}
	if err := e.store.DeleteFile(ctx, f.ID); err != nil {
		return err
	}
	e.metrics.AddBlocksCollected(collected.Len())
	return nil
}

// ============================================================================
// Content Summary
// ============================================================================

// ContentSummary aggregates the externally visible usage of a file.
type ContentSummary struct {
	// Length is the file's byte length.
	Length uint64

	// FileCount is always 1 for a single file.
	FileCount int64

	// BlockCount is the length of the block sequence.
	BlockCount int64

	// SpaceConsumed is the replicated storage space.
	SpaceConsumed int64

	// TypeSpaces attributes raw bytes per storage type.
	TypeSpaces map[storagepolicy.StorageType]int64
}

// ComputeContentSummary builds the file's content summary. policyID 0 skips
// per-type attribution.
func (e *Engine) ComputeContentSummary(ctx context.Context, f *FileMeta, policyID uint8) (*ContentSummary, error) {
	length, err := e.ComputeFileSize(ctx, f)
	if err != nil {
		return nil, err
	}
	n, err := e.store.NumBlocks(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	var policy *storagepolicy.Policy
	if policyID != storagepolicy.PolicyIDUnspecified {
		policy, err = e.policies.Policy(policyID)
		if err != nil {
			return nil, err
		}
	}
	consumed, err := e.StoragespaceConsumed(ctx, f, policy)
	if err != nil {
		return nil, err
	}
	return &ContentSummary{
		Length:        length,
		FileCount:     1,
		BlockCount:    int64(n),
		SpaceConsumed: consumed.StorageSpace,
		TypeSpaces:    consumed.TypeSpaces,
	}, nil
}
