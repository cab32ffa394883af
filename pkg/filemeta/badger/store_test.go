package badger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittometa/pkg/filemeta"
	"github.com/marmos91/dittometa/pkg/filemeta/badger"
)

func newTestStore(t *testing.T) *badger.BadgerStore {
	t.Helper()

	store, err := badger.NewBadgerStore(context.Background(), badger.BadgerStoreConfig{
		DBPath: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestBadgerStore_FileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	f := &filemeta.FileMeta{
		ID:               42,
		Name:             "data.bin",
		Mode:             0644,
		ModificationTime: time.Now().UTC(),
		AccessTime:       time.Now().UTC(),
		UC: &filemeta.UnderConstructionFeature{
			ClientName: "client-1", ClientMachine: "host-a", LeaseID: "lease-1",
		},
	}
	require.NoError(t, store.PutFile(ctx, f))

	loaded, err := store.GetFile(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "data.bin", loaded.Name)
	require.NotNil(t, loaded.UC)
	assert.Equal(t, "client-1", loaded.UC.ClientName)

	require.NoError(t, store.DeleteFile(ctx, 42))
	_, err = store.GetFile(ctx, 42)
	require.Error(t, err)
	code, ok := filemeta.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, filemeta.ErrNotFound, code)
}

func TestBadgerStore_SnapshotFeatureRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	f := &filemeta.FileMeta{ID: 7, Name: "snap.bin"}
	f.Snapshot = &filemeta.SnapshotFeature{CurrentFileDeleted: true}
	f.Snapshot.Diffs.Items = []filemeta.FileDiff{
		{SnapshotID: 1, FileSize: 100, Replication: 3, Blocks: []uint64{1, 2}},
		{SnapshotID: 4, FileSize: 200, Replication: 2},
	}
	require.NoError(t, store.PutFile(ctx, f))

	loaded, err := store.GetFile(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, loaded.Snapshot)
	assert.True(t, loaded.Snapshot.CurrentFileDeleted)
	require.Equal(t, 2, loaded.Snapshot.Diffs.Len())
	assert.Equal(t, []uint64{1, 2}, loaded.Snapshot.Diffs.DiffByID(1).Blocks)
	assert.Nil(t, loaded.Snapshot.Diffs.DiffByID(4).Blocks)
}

func TestBadgerStore_HeaderRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetHeader(ctx, 1)
	require.Error(t, err)

	require.NoError(t, store.SetHeader(ctx, 1, filemeta.Header(0x700000000BADF00D)))
	h, err := store.GetHeader(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, filemeta.Header(0x700000000BADF00D), h)
}

func TestBadgerStore_BlockSequence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.BlockIDs(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, store.AppendBlockID(ctx, 1, 10))
	require.NoError(t, store.AppendBlockID(ctx, 1, 11))
	require.NoError(t, store.AppendBlockID(ctx, 1, 12))

	n, err := store.NumBlocks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	id, err := store.BlockIDAt(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)

	require.NoError(t, store.SetBlockIDAt(ctx, 1, 0, 99))
	require.NoError(t, store.RemoveLastBlockID(ctx, 1))
	ids, err = store.BlockIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{99, 11}, ids)

	require.NoError(t, store.TruncateBlockIDs(ctx, 1, 0))
	n, err = store.NumBlocks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.Error(t, store.RemoveLastBlockID(ctx, 1))
}

func TestBadgerStore_ReassignBlockIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendBlockID(ctx, 1, 10))
	require.NoError(t, store.AppendBlockID(ctx, 2, 20))
	require.NoError(t, store.AppendBlockID(ctx, 2, 21))

	require.NoError(t, store.ReassignBlockIDs(ctx, 1, 2))

	ids, err := store.BlockIDs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 20, 21}, ids)

	srcIDs, err := store.BlockIDs(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, srcIDs)
}

func TestBadgerStore_BlocksAndTotals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutBlock(ctx, &filemeta.BlockInfo{
		ID: 10, NumBytes: 100, State: filemeta.BlockComplete, Replication: 3,
	}))
	require.NoError(t, store.PutBlock(ctx, &filemeta.BlockInfo{
		ID: 11, NumBytes: 50, State: filemeta.BlockCommitted, ExpectedLocations: 2,
	}))
	require.NoError(t, store.AppendBlockID(ctx, 1, 10))
	require.NoError(t, store.AppendBlockID(ctx, 1, 11))

	b, err := store.GetBlock(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, filemeta.BlockCommitted, b.State)
	assert.Equal(t, 2, b.ExpectedLocations)

	total, err := store.TotalNumBytes(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), total)

	require.NoError(t, store.DeleteBlock(ctx, 11))
	_, err = store.GetBlock(ctx, 11)
	require.Error(t, err)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := badger.NewBadgerStore(ctx, badger.BadgerStoreConfig{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, store.PutFile(ctx, &filemeta.FileMeta{ID: 5, Name: "keep.bin"}))
	require.NoError(t, store.SetHeader(ctx, 5, filemeta.Header(123)))
	require.NoError(t, store.Close())

	reopened, err := badger.NewBadgerStore(ctx, badger.BadgerStoreConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()

	f, err := reopened.GetFile(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "keep.bin", f.Name)

	h, err := reopened.GetHeader(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, filemeta.Header(123), h)
}

func TestBadgerStore_Healthcheck(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Healthcheck(context.Background()))
}
