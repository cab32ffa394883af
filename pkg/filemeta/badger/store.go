// Package badger provides a BadgerDB-backed implementation of the metadata
// store: a persistent embedded key-value database suitable for deployments
// where file metadata must survive restarts.
package badger

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/dittometa/pkg/filemeta"
)

// BadgerStore implements filemeta.Store using BadgerDB.
//
// Thread safety comes from BadgerDB's transactional MVCC: reads run in View
// transactions, mutations in Update transactions. Sequence read-modify-write
// operations run inside a single Update transaction so they are atomic.
//
// See keys.go for the key namespace schema and serialization.go for the
// on-disk encodings.
type BadgerStore struct {
	db *badger.DB
}

// compile-time interface check
var _ filemeta.Store = (*BadgerStore)(nil)

// BadgerStoreConfig contains configuration for creating a BadgerDB metadata
// store.
type BadgerStoreConfig struct {
	// DBPath is the directory where BadgerDB will store its files.
	DBPath string `mapstructure:"db_path"`

	// BadgerOptions allows full customization of BadgerDB behavior.
	// If nil, defaults tuned for a metadata workload are used.
	BadgerOptions *badger.Options

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 256).
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 128).
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewBadgerStore opens (creating if necessary) a BadgerDB database at the
// configured path and returns a store ready for use.
func NewBadgerStore(ctx context.Context, config BadgerStoreConfig) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.BadgerOptions != nil {
		opts = *config.BadgerOptions
	} else {
		// Metadata records are small and reads dominate; skip compression
		// and lean on the caches instead.
		opts = badger.DefaultOptions(config.DBPath)
		opts = opts.WithLoggingLevel(badger.WARNING)
		opts = opts.WithCompression(options.None)

		blockCacheMB := config.BlockCacheSizeMB
		if blockCacheMB == 0 {
			blockCacheMB = 256
		}
		indexCacheMB := config.IndexCacheSizeMB
		if indexCacheMB == 0 {
			indexCacheMB = 128
		}
		opts = opts.WithBlockCacheSize(blockCacheMB << 20)
		opts = opts.WithIndexCacheSize(indexCacheMB << 20)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}
	return &BadgerStore{db: db}, nil
}

// ============================================================================
// File Entries
// ============================================================================

// PutFile creates or replaces a file entry.
func (s *BadgerStore) PutFile(ctx context.Context, f *filemeta.FileMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bytes, err := encodeFileMeta(f)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyFile(f.ID), bytes)
	})
}

// GetFile retrieves a file entry by ID.
func (s *BadgerStore) GetFile(ctx context.Context, fileID uint64) (*filemeta.FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var f *filemeta.FileMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyFile(fileID))
		if err == badger.ErrKeyNotFound {
			return &filemeta.MetaError{
				Code:    filemeta.ErrNotFound,
				Message: "file not found",
				FileID:  fileID,
			}
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			f, err = decodeFileMeta(val)
			return err
		})
	})
	return f, err
}

// DeleteFile removes a file entry and its header record.
func (s *BadgerStore) DeleteFile(ctx context.Context, fileID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyFile(fileID)); err == badger.ErrKeyNotFound {
			return &filemeta.MetaError{
				Code:    filemeta.ErrNotFound,
				Message: "file not found",
				FileID:  fileID,
			}
		} else if err != nil {
			return err
		}
		if err := txn.Delete(keyFile(fileID)); err != nil {
			return err
		}
		return txn.Delete(keyHeader(fileID))
	})
}

// ============================================================================
// Packed Headers
// ============================================================================

// GetHeader reads the packed header of a file.
func (s *BadgerStore) GetHeader(ctx context.Context, fileID uint64) (filemeta.Header, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var h filemeta.Header
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyHeader(fileID))
		if err == badger.ErrKeyNotFound {
			return &filemeta.MetaError{
				Code:    filemeta.ErrNotFound,
				Message: "header not found",
				FileID:  fileID,
			}
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			h, err = decodeHeader(val)
			return err
		})
	})
	return h, err
}

// SetHeader writes the packed header of a file.
func (s *BadgerStore) SetHeader(ctx context.Context, fileID uint64, h filemeta.Header) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyHeader(fileID), encodeHeader(h))
	})
}

// ============================================================================
// Block Sequences
// ============================================================================

// readBlockIDs loads a file's block sequence inside a transaction. A
// missing record is an empty sequence.
func readBlockIDs(txn *badger.Txn, fileID uint64) ([]uint64, error) {
	item, err := txn.Get(keyBlockList(fileID))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []uint64
	err = item.Value(func(val []byte) error {
		ids, err = decodeBlockIDs(val)
		return err
	})
	return ids, err
}

func writeBlockIDs(txn *badger.Txn, fileID uint64, ids []uint64) error {
	if len(ids) == 0 {
		err := txn.Delete(keyBlockList(fileID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	}
	return txn.Set(keyBlockList(fileID), encodeBlockIDs(ids))
}

// BlockIDs returns the file's ordered block ID sequence.
func (s *BadgerStore) BlockIDs(ctx context.Context, fileID uint64) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ids []uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ids, err = readBlockIDs(txn, fileID)
		return err
	})
	if ids == nil {
		ids = []uint64{}
	}
	return ids, err
}

// NumBlocks is the length of the file's block sequence.
func (s *BadgerStore) NumBlocks(ctx context.Context, fileID uint64) (int, error) {
	ids, err := s.BlockIDs(ctx, fileID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// BlockIDAt returns the block ID at position index.
func (s *BadgerStore) BlockIDAt(ctx context.Context, fileID uint64, index int) (uint64, error) {
	ids, err := s.BlockIDs(ctx, fileID)
	if err != nil {
		return 0, err
	}
	if index < 0 || index >= len(ids) {
		return 0, &filemeta.MetaError{
			Code:    filemeta.ErrInvalidArgument,
			Message: "block index out of range",
			FileID:  fileID,
		}
	}
	return ids[index], nil
}

// AppendBlockID appends a block ID to the tail of the sequence.
func (s *BadgerStore) AppendBlockID(ctx context.Context, fileID uint64, blockID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		ids, err := readBlockIDs(txn, fileID)
		if err != nil {
			return err
		}
		return writeBlockIDs(txn, fileID, append(ids, blockID))
	})
}

// SetBlockIDAt replaces the block ID at position index.
func (s *BadgerStore) SetBlockIDAt(ctx context.Context, fileID uint64, index int, blockID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		ids, err := readBlockIDs(txn, fileID)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(ids) {
			return &filemeta.MetaError{
				Code:    filemeta.ErrInvalidArgument,
				Message: "block index out of range",
				FileID:  fileID,
			}
		}
		ids[index] = blockID
		return writeBlockIDs(txn, fileID, ids)
	})
}

// RemoveLastBlockID drops the tail entry of the sequence.
func (s *BadgerStore) RemoveLastBlockID(ctx context.Context, fileID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		ids, err := readBlockIDs(txn, fileID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return &filemeta.MetaError{
				Code:    filemeta.ErrInvalidState,
				Message: "block sequence is empty",
				FileID:  fileID,
			}
		}
		return writeBlockIDs(txn, fileID, ids[:len(ids)-1])
	})
}

// TruncateBlockIDs shortens the sequence to its first n entries.
func (s *BadgerStore) TruncateBlockIDs(ctx context.Context, fileID uint64, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		ids, err := readBlockIDs(txn, fileID)
		if err != nil {
			return err
		}
		if n < 0 || n > len(ids) {
			return &filemeta.MetaError{
				Code:    filemeta.ErrInvalidArgument,
				Message: "truncation length out of range",
				FileID:  fileID,
			}
		}
		return writeBlockIDs(txn, fileID, ids[:n])
	})
}

// ReassignBlockIDs appends the sources' sequences to the destination and
// clears the sources, inside a single transaction so the move is atomic.
func (s *BadgerStore) ReassignBlockIDs(ctx context.Context, dstFileID uint64, srcFileIDs ...uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		dst, err := readBlockIDs(txn, dstFileID)
		if err != nil {
			return err
		}
		for _, src := range srcFileIDs {
			ids, err := readBlockIDs(txn, src)
			if err != nil {
				return err
			}
			dst = append(dst, ids...)
			if err := writeBlockIDs(txn, src, nil); err != nil {
				return err
			}
		}
		return writeBlockIDs(txn, dstFileID, dst)
	})
}

// TotalNumBytes sums NumBytes over the first n blocks of the sequence.
func (s *BadgerStore) TotalNumBytes(ctx context.Context, fileID uint64, n int) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var total uint64
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := readBlockIDs(txn, fileID)
		if err != nil {
			return err
		}
		if n < 0 || n > len(ids) {
			return &filemeta.MetaError{
				Code:    filemeta.ErrInvalidArgument,
				Message: "prefix length out of range",
				FileID:  fileID,
			}
		}
		for _, id := range ids[:n] {
			b, err := readBlock(txn, id)
			if err != nil {
				return err
			}
			total += b.NumBytes
		}
		return nil
	})
	return total, err
}

// ============================================================================
// Block Descriptors
// ============================================================================

func readBlock(txn *badger.Txn, blockID uint64) (*filemeta.BlockInfo, error) {
	item, err := txn.Get(keyBlock(blockID))
	if err == badger.ErrKeyNotFound {
		return nil, &filemeta.MetaError{
			Code:    filemeta.ErrNotFound,
			Message: "block not found",
		}
	}
	if err != nil {
		return nil, err
	}
	var b *filemeta.BlockInfo
	err = item.Value(func(val []byte) error {
		b, err = decodeBlockInfo(val)
		return err
	})
	return b, err
}

// PutBlock creates or replaces a block descriptor.
func (s *BadgerStore) PutBlock(ctx context.Context, b *filemeta.BlockInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bytes, err := encodeBlockInfo(b)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyBlock(b.ID), bytes)
	})
}

// GetBlock retrieves a block descriptor by ID.
func (s *BadgerStore) GetBlock(ctx context.Context, blockID uint64) (*filemeta.BlockInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var b *filemeta.BlockInfo
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		b, err = readBlock(txn, blockID)
		return err
	})
	return b, err
}

// DeleteBlock removes a block descriptor.
func (s *BadgerStore) DeleteBlock(ctx context.Context, blockID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(keyBlock(blockID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// ============================================================================
// Lifecycle
// ============================================================================

// Healthcheck verifies the database is open and readable.
func (s *BadgerStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return fmt.Errorf("badger database is closed")
	}
	return s.db.View(func(txn *badger.Txn) error { return nil })
}

// Close closes the BadgerDB database and releases all resources.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
