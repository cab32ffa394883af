package filemeta_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittometa/pkg/filemeta"
	"github.com/marmos91/dittometa/pkg/storagepolicy"
)

func TestEngine_ComputeFileSizeWithOptions(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, f, 1, 100, 3)
	require.NoError(t, engine.AddBlock(ctx, f, &filemeta.BlockInfo{
		ID: 2, NumBytes: 50, State: filemeta.BlockUnderConstruction, Replication: 3,
	}))

	excluded, err := engine.ComputeFileSizeWithOptions(ctx, f, false, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), excluded)

	actual, err := engine.ComputeFileSizeWithOptions(ctx, f, true, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), actual)

	preferred, err := engine.ComputeFileSizeWithOptions(ctx, f, true, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(100+(1<<20)), preferred)

	// The three variants are monotonically non-decreasing.
	assert.LessOrEqual(t, excluded, actual)
	assert.LessOrEqual(t, actual, preferred)

	// ComputeFileSize is the include-at-actual-length variant.
	full, err := engine.ComputeFileSize(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, actual, full)
}

func TestEngine_ComputeFileSizeStripedLastUC(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createStripedFile(t, engine)
	require.NoError(t, engine.AddBlock(ctx, f, &filemeta.BlockInfo{
		ID: 1, NumBytes: 100, State: filemeta.BlockUnderConstruction,
		Striped: true, DataUnits: 6, ParityUnits: 3,
	}))

	// The preferred estimate for a striped group spans all data units.
	size, err := engine.ComputeFileSizeWithOptions(ctx, f, true, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(6<<20), size)
}

func TestEngine_ComputeFileSizeEmpty(t *testing.T) {
	engine, _ := newTestEngine(t)

	f := createContiguousFile(t, engine, 3)
	size, err := engine.ComputeFileSize(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), size)
}

func TestEngine_StoragespaceConsumedContiguous(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, f, 1, 100, 3)
	addCompleteBlock(t, engine, f, 2, 200, 3)

	counts, err := engine.StoragespaceConsumed(ctx, f, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(300*3), counts.StorageSpace)
	assert.Empty(t, counts.TypeSpaces)
}

func TestEngine_StoragespaceConsumedDeduplicatesSnapshotBlocks(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, f, 1, 100, 3)
	addCompleteBlock(t, engine, f, 2, 100, 3)

	// Snapshot captured [1 2]; the live file then truncates away 2 and
	// appends 3, so live is [1 3].
	require.NoError(t, engine.RecordModification(ctx, f, 1, true))
	require.NoError(t, store.TruncateBlockIDs(ctx, f.ID, 1))
	addCompleteBlock(t, engine, f, 3, 100, 3)

	// Blocks 1, 2 and 3 are each billed exactly once.
	counts, err := engine.StoragespaceConsumed(ctx, f, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3*100*3), counts.StorageSpace)
}

func TestEngine_StoragespaceConsumedTypeAttribution(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, f, 1, 100, 3)

	suite := storagepolicy.DefaultSuite()
	oneSSD, err := suite.Policy(storagepolicy.PolicyIDOneSSD)
	require.NoError(t, err)

	counts, err := engine.StoragespaceConsumed(ctx, f, oneSSD)
	require.NoError(t, err)
	assert.Equal(t, int64(300), counts.StorageSpace)
	assert.Equal(t, int64(100), counts.TypeSpaces[storagepolicy.SSD])
	assert.Equal(t, int64(200), counts.TypeSpaces[storagepolicy.Disk])
}

func TestEngine_StoragespaceConsumedStriped(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createStripedFile(t, engine)
	require.NoError(t, engine.AddBlock(ctx, f, &filemeta.BlockInfo{
		ID: 1, NumBytes: 6 << 20, State: filemeta.BlockComplete,
		Striped: true, DataUnits: 6, ParityUnits: 3, ConsumedBytes: 9 << 20,
	}))
	require.NoError(t, engine.AddBlock(ctx, f, &filemeta.BlockInfo{
		ID: 2, NumBytes: 100, State: filemeta.BlockUnderConstruction,
		Striped: true, DataUnits: 6, ParityUnits: 3,
	}))

	counts, err := engine.StoragespaceConsumed(ctx, f, nil)
	require.NoError(t, err)

	// Complete group: recorded consumption. Incomplete group: a full
	// preferred block per unit. No replication multiplier either way.
	assert.Equal(t, int64(9<<20)+int64(9<<20), counts.StorageSpace)
	assert.Empty(t, counts.TypeSpaces)
}

func TestEngine_ComputeQuotaUsage(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, f, 1, 100, 3)

	counts, err := engine.ComputeQuotaUsage(ctx, f, storagepolicy.PolicyIDUnspecified, filemeta.CurrentStateID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.NameSpace)
	assert.Equal(t, int64(300), counts.StorageSpace)

	_, err = engine.ComputeQuotaUsage(ctx, f, 3, filemeta.CurrentStateID)
	require.Error(t, err, "unknown storage policy id must fail")
}

func TestEngine_ComputeQuotaUsageWithEmptyDiffList(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.CreateFile(ctx, filemeta.CreateFileOptions{
		Name:               "captured.bin",
		BlockType:          filemeta.BlockTypeContiguous,
		Replication:        uint16Ptr(3),
		PreferredBlockSize: 100,
	})
	require.NoError(t, err)
	addCompleteBlock(t, engine, f, 1, 100, 3)
	require.NoError(t, engine.AddBlock(ctx, f, &filemeta.BlockInfo{
		ID: 2, NumBytes: 50, State: filemeta.BlockUnderConstruction, Replication: 3,
	}))

	_, err = engine.AddSnapshotFeature(ctx, f)
	require.NoError(t, err)

	// An attached feature with no diffs yet is current state: full
	// consumption, with the incomplete block billed a whole preferred
	// block rather than its actual 50 bytes.
	counts, err := engine.ComputeQuotaUsage(ctx, f, storagepolicy.PolicyIDUnspecified, 5)
	require.NoError(t, err)
	assert.Equal(t, int64((100+100)*3), counts.StorageSpace)
}

func TestEngine_ComputeQuotaUsageScopedToSnapshot(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, f, 1, 100, 3)

	// Snapshot 2 captured size 100 at replication 3; the file then grows
	// and drops to replication 2.
	require.NoError(t, engine.SetFileReplication(ctx, f, 2, 2))
	addCompleteBlock(t, engine, f, 2, 100, 2)

	// Scoped at snapshot 2: the captured state is billed.
	counts, err := engine.ComputeQuotaUsage(ctx, f, storagepolicy.PolicyIDUnspecified, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(100*3), counts.StorageSpace)

	// Scoped past the last diff: live size at live replication.
	counts, err = engine.ComputeQuotaUsage(ctx, f, storagepolicy.PolicyIDUnspecified, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(200*2), counts.StorageSpace)
}

func TestEngine_ComputeQuotaDeltaForTruncate(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.CreateFile(ctx, filemeta.CreateFileOptions{
		Name:               "truncate.bin",
		BlockType:          filemeta.BlockTypeContiguous,
		Replication:        uint16Ptr(3),
		PreferredBlockSize: 100,
	})
	require.NoError(t, err)
	for id := uint64(1); id <= 3; id++ {
		addCompleteBlock(t, engine, f, id, 100, 3)
	}

	// Truncating 300 -> 150: block 3 is fully released, block 2 straddles
	// the boundary and is billed forward a full preferred block.
	delta, err := engine.ComputeQuotaDeltaForTruncate(ctx, f, 150, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-300), delta.StorageSpace)

	// Truncating to length 0 releases everything.
	delta, err = engine.ComputeQuotaDeltaForTruncate(ctx, f, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(-900), delta.StorageSpace)

	// No-op truncation.
	delta, err = engine.ComputeQuotaDeltaForTruncate(ctx, f, 300, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), delta.StorageSpace)
}

func TestEngine_ComputeQuotaDeltaForTruncateWithSnapshotBlocks(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f, err := engine.CreateFile(ctx, filemeta.CreateFileOptions{
		Name:               "truncate.bin",
		BlockType:          filemeta.BlockTypeContiguous,
		Replication:        uint16Ptr(3),
		PreferredBlockSize: 100,
	})
	require.NoError(t, err)
	for id := uint64(1); id <= 3; id++ {
		addCompleteBlock(t, engine, f, id, 100, 3)
	}
	require.NoError(t, engine.RecordModification(ctx, f, 1, true))

	// Blocks still captured by the snapshot release nothing; the
	// straddling block is billed forward on top of its retained copy.
	delta, err := engine.ComputeQuotaDeltaForTruncate(ctx, f, 150, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(300), delta.StorageSpace)
}

func TestEngine_ComputeContentSummary(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, f, 1, 100, 3)
	addCompleteBlock(t, engine, f, 2, 60, 3)

	summary, err := engine.ComputeContentSummary(ctx, f, storagepolicy.PolicyIDHot)
	require.NoError(t, err)
	assert.Equal(t, uint64(160), summary.Length)
	assert.Equal(t, int64(1), summary.FileCount)
	assert.Equal(t, int64(2), summary.BlockCount)
	assert.Equal(t, int64(160*3), summary.SpaceConsumed)
	assert.Equal(t, int64(160*3), summary.TypeSpaces[storagepolicy.Disk])
}
