package filemeta_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittometa/pkg/filemeta"
)

func TestEngine_AddBlockAndAccessors(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)

	last, err := engine.LastBlock(ctx, f)
	require.NoError(t, err)
	assert.Nil(t, last)

	addCompleteBlock(t, engine, f, 101, 1<<20, 3)
	addCompleteBlock(t, engine, f, 102, 512, 3)

	n, err := engine.NumBlocks(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	last, err = engine.LastBlock(ctx, f)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, uint64(102), last.ID)

	penultimate, err := engine.PenultimateBlock(ctx, f)
	require.NoError(t, err)
	require.NotNil(t, penultimate)
	assert.Equal(t, uint64(101), penultimate.ID)

	ids, err := store.BlockIDs(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{101, 102}, ids)
}

func TestEngine_AddBlockLayoutMismatch(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	contiguous := createContiguousFile(t, engine, 3)
	err := engine.AddBlock(ctx, contiguous, &filemeta.BlockInfo{
		ID: 201, NumBytes: 100, State: filemeta.BlockComplete, Striped: true,
	})
	require.Error(t, err)
	code, ok := filemeta.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, filemeta.ErrInvalidArgument, code)

	striped := createStripedFile(t, engine)
	err = engine.AddBlock(ctx, striped, &filemeta.BlockInfo{
		ID: 202, NumBytes: 100, State: filemeta.BlockComplete,
	})
	require.Error(t, err)
}

func TestEngine_SetBlock(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, f, 1, 100, 3)

	// A layout mismatch is rejected before anything is written.
	err := engine.SetBlock(ctx, f, 0, &filemeta.BlockInfo{
		ID: 2, NumBytes: 100, State: filemeta.BlockComplete, Striped: true,
	})
	require.Error(t, err)
	code, ok := filemeta.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, filemeta.ErrInvalidArgument, code)

	ids, err := store.BlockIDs(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids)

	require.NoError(t, engine.SetBlock(ctx, f, 0, &filemeta.BlockInfo{
		ID: 3, NumBytes: 100, State: filemeta.BlockComplete, Replication: 3,
	}))
	ids, err = store.BlockIDs(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, ids)
}

func TestEngine_RemoveLastBlock(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, f, 101, 100, 3)

	// A complete file refuses the operation outright.
	_, err := engine.RemoveLastBlock(ctx, f, 101)
	require.Error(t, err)

	require.NoError(t, engine.ToUnderConstruction(ctx, f, "client-1", "host-a"))
	addCompleteBlock(t, engine, f, 102, 50, 3)

	// Stale expectations are a no-op, not an error.
	removed, err := engine.RemoveLastBlock(ctx, f, 999)
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = engine.RemoveLastBlock(ctx, f, 102)
	require.NoError(t, err)
	assert.True(t, removed)

	n, err := engine.NumBlocks(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_TruncateBlocks(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	for id := uint64(1); id <= 3; id++ {
		addCompleteBlock(t, engine, f, id, 100, 3)
	}

	require.NoError(t, engine.TruncateBlocks(ctx, f, 1))
	ids, err := store.BlockIDs(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, ids)

	require.Error(t, engine.TruncateBlocks(ctx, f, 5))
}

func TestEngine_ConcatBlocks(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	dst := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, dst, 1, 100, 3)
	addCompleteBlock(t, engine, dst, 2, 100, 3)

	src := createContiguousFile(t, engine, 2)
	addCompleteBlock(t, engine, src, 3, 100, 2)

	require.NoError(t, engine.ConcatBlocks(ctx, dst, src))

	ids, err := store.BlockIDs(ctx, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	srcIDs, err := store.BlockIDs(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, srcIDs)

	// The moved block converges to the destination's replication factor.
	moved, err := store.GetBlock(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), moved.Replication)
}

func TestEngine_ConcatBlocksSourceHigherReplication(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	dst := createContiguousFile(t, engine, 2)
	addCompleteBlock(t, engine, dst, 1, 100, 2)

	src := createContiguousFile(t, engine, 3)
	addCompleteBlock(t, engine, src, 2, 100, 3)

	require.NoError(t, engine.ConcatBlocks(ctx, dst, src))

	// Convergence follows the destination in both directions: a source
	// block with a higher factor is re-replicated down.
	moved, err := store.GetBlock(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), moved.Replication)
}

func TestEngine_ConcatBlocksRejectsStriped(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	dst := createContiguousFile(t, engine, 3)
	striped := createStripedFile(t, engine)

	require.Error(t, engine.ConcatBlocks(ctx, dst, striped))
	require.Error(t, engine.ConcatBlocks(ctx, striped, dst))
}

func TestEngine_UnderConstructionLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	require.NoError(t, engine.ToUnderConstruction(ctx, f, "client-1", "host-a"))
	assert.True(t, f.IsUnderConstruction())
	assert.NotEmpty(t, f.UC.LeaseID)

	// Double open fails.
	err := engine.ToUnderConstruction(ctx, f, "client-2", "host-b")
	require.Error(t, err)
	code, ok := filemeta.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, filemeta.ErrInvalidState, code)

	addCompleteBlock(t, engine, f, 101, 100, 3)
	mtime := time.Now()
	require.NoError(t, engine.ToCompleteFile(ctx, f, mtime))
	assert.False(t, f.IsUnderConstruction())
	assert.Equal(t, mtime, f.ModificationTime)

	// Finalizing twice fails.
	require.Error(t, engine.ToCompleteFile(ctx, f, mtime))
}

func TestEngine_ToCompleteFileCommittedTail(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	require.NoError(t, engine.ToUnderConstruction(ctx, f, "client-1", "host-a"))
	addCompleteBlock(t, engine, f, 101, 100, 3)
	require.NoError(t, engine.AddBlock(ctx, f, &filemeta.BlockInfo{
		ID: 102, NumBytes: 50, State: filemeta.BlockCommitted,
		Replication: 3, ExpectedLocations: 2,
	}))

	// One committed trailing block with locations above the minimum is
	// acceptable.
	require.NoError(t, engine.ToCompleteFile(ctx, f, time.Now()))
}

func TestEngine_ToCompleteFileInsufficientLocations(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)
	require.NoError(t, engine.ToUnderConstruction(ctx, f, "client-1", "host-a"))
	require.NoError(t, engine.AddBlock(ctx, f, &filemeta.BlockInfo{
		ID: 101, NumBytes: 50, State: filemeta.BlockCommitted,
		Replication: 3, ExpectedLocations: 1,
	}))

	err := engine.ToCompleteFile(ctx, f, time.Now())
	require.Error(t, err)
	code, ok := filemeta.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, filemeta.ErrInvariantViolation, code)
	assert.True(t, f.IsUnderConstruction())
}

func TestEngine_ConvertLastBlockToUC(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	f := createContiguousFile(t, engine, 3)

	// Complete files cannot reopen blocks.
	_, err := engine.ConvertLastBlockToUC(ctx, f, []string{"dn1"})
	require.Error(t, err)

	require.NoError(t, engine.ToUnderConstruction(ctx, f, "client-1", "host-a"))

	// Neither can empty ones.
	_, err = engine.ConvertLastBlockToUC(ctx, f, []string{"dn1"})
	require.Error(t, err)

	addCompleteBlock(t, engine, f, 101, 100, 3)
	b, err := engine.ConvertLastBlockToUC(ctx, f, []string{"dn1", "dn2"})
	require.NoError(t, err)
	assert.Equal(t, filemeta.BlockUnderConstruction, b.State)
	assert.Equal(t, 2, b.ExpectedLocations)
}
