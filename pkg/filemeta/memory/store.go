// Package memory provides an in-memory implementation of the metadata
// store, suitable for tests and single-process deployments where
// durability is not required.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/dittometa/pkg/filemeta"
)

// MemoryStore is a map-backed metadata store. All methods are safe for
// concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	files      map[uint64]*filemeta.FileMeta
	headers    map[uint64]filemeta.Header
	blockLists map[uint64][]uint64
	blocks     map[uint64]*filemeta.BlockInfo
}

// compile-time interface check
var _ filemeta.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:      make(map[uint64]*filemeta.FileMeta),
		headers:    make(map[uint64]filemeta.Header),
		blockLists: make(map[uint64][]uint64),
		blocks:     make(map[uint64]*filemeta.BlockInfo),
	}
}

// ============================================================================
// File Entries
// ============================================================================

// PutFile creates or replaces a file entry.
func (s *MemoryStore) PutFile(ctx context.Context, f *filemeta.FileMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files[f.ID] = f.Clone()
	return nil
}

// GetFile retrieves a file entry by ID.
func (s *MemoryStore) GetFile(ctx context.Context, fileID uint64) (*filemeta.FileMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileID]
	if !ok {
		return nil, &filemeta.MetaError{
			Code:    filemeta.ErrNotFound,
			Message: "file not found",
			FileID:  fileID,
		}
	}
	return f.Clone(), nil
}

// DeleteFile removes a file entry.
func (s *MemoryStore) DeleteFile(ctx context.Context, fileID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[fileID]; !ok {
		return &filemeta.MetaError{
			Code:    filemeta.ErrNotFound,
			Message: "file not found",
			FileID:  fileID,
		}
	}
	delete(s.files, fileID)
	delete(s.headers, fileID)
	return nil
}

// ============================================================================
// Packed Headers
// ============================================================================

// GetHeader reads the packed header of a file.
func (s *MemoryStore) GetHeader(ctx context.Context, fileID uint64) (filemeta.Header, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.headers[fileID]
	if !ok {
		return 0, &filemeta.MetaError{
			Code:    filemeta.ErrNotFound,
			Message: "header not found",
			FileID:  fileID,
		}
	}
	return h, nil
}

// SetHeader writes the packed header of a file.
func (s *MemoryStore) SetHeader(ctx context.Context, fileID uint64, h filemeta.Header) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.headers[fileID] = h
	return nil
}

// ============================================================================
// Block Sequences
// ============================================================================

// BlockIDs returns a copy of the file's ordered block ID sequence.
func (s *MemoryStore) BlockIDs(ctx context.Context, fileID uint64) ([]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.blockLists[fileID]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out, nil
}

// NumBlocks is the length of the file's block sequence.
func (s *MemoryStore) NumBlocks(ctx context.Context, fileID uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.blockLists[fileID]), nil
}

// BlockIDAt returns the block ID at position index.
func (s *MemoryStore) BlockIDAt(ctx context.Context, fileID uint64, index int) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.blockLists[fileID]
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
func (s *MemoryStore) AppendBlockID(ctx context.Context, fileID uint64, blockID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blockLists[fileID] = append(s.blockLists[fileID], blockID)
	return nil
}

// SetBlockIDAt replaces the block ID at position index.
func (s *MemoryStore) SetBlockIDAt(ctx context.Context, fileID uint64, index int, blockID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.blockLists[fileID]
	if index < 0 || index >= len(ids) {
		return &filemeta.MetaError{
			Code:    filemeta.ErrInvalidArgument,
			Message: "block index out of range",
			FileID:  fileID,
		}
	}
	ids[index] = blockID
	return nil
}

// RemoveLastBlockID drops the tail entry of the sequence.
func (s *MemoryStore) RemoveLastBlockID(ctx context.Context, fileID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.blockLists[fileID]
	if len(ids) == 0 {
		return &filemeta.MetaError{
			Code:    filemeta.ErrInvalidState,
			Message: "block sequence is empty",
			FileID:  fileID,
		}
	}
	s.blockLists[fileID] = ids[:len(ids)-1]
	return nil
}

// TruncateBlockIDs shortens the sequence to its first n entries.
func (s *MemoryStore) TruncateBlockIDs(ctx context.Context, fileID uint64, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.blockLists[fileID]
	if n < 0 || n > len(ids) {
		return &filemeta.MetaError{
			Code:    filemeta.ErrInvalidArgument,
			Message: "truncation length out of range",
			FileID:  fileID,
		}
	}
	s.blockLists[fileID] = ids[:n]
	return nil
}

// ReassignBlockIDs appends the sources' sequences to the destination and
// clears the sources, under a single lock so the move is atomic.
func (s *MemoryStore) ReassignBlockIDs(ctx context.Context, dstFileID uint64, srcFileIDs ...uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.blockLists[dstFileID]
	for _, src := range srcFileIDs {
		dst = append(dst, s.blockLists[src]...)
		s.blockLists[src] = nil
	}
	s.blockLists[dstFileID] = dst
	return nil
}

// TotalNumBytes sums NumBytes over the first n blocks of the sequence.
func (s *MemoryStore) TotalNumBytes(ctx context.Context, fileID uint64, n int) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.blockLists[fileID]
	if n < 0 || n > len(ids) {
		return 0, &filemeta.MetaError{
			Code:    filemeta.ErrInvalidArgument,
			Message: "prefix length out of range",
			FileID:  fileID,
		}
	}
	var total uint64
	for _, id := range ids[:n] {
		b, ok := s.blocks[id]
		if !ok {
			return 0, &filemeta.MetaError{
				Code:    filemeta.ErrNotFound,
				Message: "block not found",
				FileID:  fileID,
			}
		}
		total += b.NumBytes
	}
	return total, nil
}

// ============================================================================
// Block Descriptors
// ============================================================================

// PutBlock creates or replaces a block descriptor.
func (s *MemoryStore) PutBlock(ctx context.Context, b *filemeta.BlockInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *b
	s.blocks[b.ID] = &clone
	return nil
}

// GetBlock retrieves a block descriptor by ID.
func (s *MemoryStore) GetBlock(ctx context.Context, blockID uint64) (*filemeta.BlockInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[blockID]
	if !ok {
		return nil, &filemeta.MetaError{
			Code:    filemeta.ErrNotFound,
			Message: "block not found",
		}
	}
	clone := *b
	return &clone, nil
}

// DeleteBlock removes a block descriptor.
func (s *MemoryStore) DeleteBlock(ctx context.Context, blockID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocks, blockID)
	return nil
}

// ============================================================================
// Lifecycle
// ============================================================================

// Healthcheck always succeeds for the in-memory store.
func (s *MemoryStore) Healthcheck(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
