package filemeta

import "context"

// ============================================================================
// Store Interface
// ============================================================================

// Store is the persistent metadata store backing the engine: file entries,
// packed headers, per-file ordered block ID sequences, and block
// descriptors.
//
// Implementations must be safe for concurrent use. Every method honors
// context cancellation. Missing entities surface as *MetaError with
// ErrNotFound; infrastructure failures surface as wrapped plain errors.
type Store interface {
	// ------------------------------------------------------------------
	// File entries
	// ------------------------------------------------------------------

	// PutFile creates or replaces a file entry.
	PutFile(ctx context.Context, f *FileMeta) error

	// GetFile retrieves a file entry by ID.
	GetFile(ctx context.Context, fileID uint64) (*FileMeta, error)

	// DeleteFile removes a file entry. Headers and block lists are
	// separate records and must be cleaned up by the caller.
	DeleteFile(ctx context.Context, fileID uint64) error

	// ------------------------------------------------------------------
	// Packed headers
	// ------------------------------------------------------------------

	// GetHeader reads the packed 64-bit header of a file.
	GetHeader(ctx context.Context, fileID uint64) (Header, error)

	// SetHeader writes the packed header of a file.
	SetHeader(ctx context.Context, fileID uint64, h Header) error

	// ------------------------------------------------------------------
	// Block sequences
	// ------------------------------------------------------------------

	// BlockIDs returns the file's ordered block ID sequence. The returned
	// slice is a copy. A file with no blocks yields an empty slice, not
	// an error.
	BlockIDs(ctx context.Context, fileID uint64) ([]uint64, error)

	// NumBlocks is the length of the file's block sequence.
	NumBlocks(ctx context.Context, fileID uint64) (int, error)

	// BlockIDAt returns the block ID at position index.
	// Returns ErrInvalidArgument when index is out of range.
	BlockIDAt(ctx context.Context, fileID uint64, index int) (uint64, error)

	// AppendBlockID appends a block ID to the tail of the sequence.
	AppendBlockID(ctx context.Context, fileID uint64, blockID uint64) error

	// SetBlockIDAt replaces the block ID at position index.
	SetBlockIDAt(ctx context.Context, fileID uint64, index int, blockID uint64) error

	// RemoveLastBlockID drops the tail entry of the sequence.
	// Returns ErrInvalidState when the sequence is empty.
	RemoveLastBlockID(ctx context.Context, fileID uint64) error

	// TruncateBlockIDs shortens the sequence to its first n entries.
	// Returns ErrInvalidArgument when n exceeds the current length.
	TruncateBlockIDs(ctx context.Context, fileID uint64, n int) error

	// ReassignBlockIDs appends the full sequence of each source file, in
	// order, to the tail of the destination's sequence and clears the
	// sources. All-or-nothing: on error no sequence is modified.
	ReassignBlockIDs(ctx context.Context, dstFileID uint64, srcFileIDs ...uint64) error

	// TotalNumBytes sums NumBytes over the descriptors of the first n
	// blocks of the file's sequence.
	TotalNumBytes(ctx context.Context, fileID uint64, n int) (uint64, error)

	// ------------------------------------------------------------------
	// Block descriptors
	// ------------------------------------------------------------------

	// PutBlock creates or replaces a block descriptor.
	PutBlock(ctx context.Context, b *BlockInfo) error

	// GetBlock retrieves a block descriptor by ID.
	GetBlock(ctx context.Context, blockID uint64) (*BlockInfo, error)

	// DeleteBlock removes a block descriptor.
	DeleteBlock(ctx context.Context, blockID uint64) error

	// ------------------------------------------------------------------
	// Lifecycle
	// ------------------------------------------------------------------

	// Healthcheck verifies the store is reachable and operational.
	Healthcheck(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
