package filemeta

import (
	"context"
	"fmt"

	"github.com/marmos91/dittometa/internal/logger"
)

// ============================================================================
// Block Sequence Operations
// ============================================================================

// Blocks resolves the file's ordered block sequence to full descriptors.
func (e *Engine) Blocks(ctx context.Context, f *FileMeta) ([]*BlockInfo, error) {
	ids, err := e.store.BlockIDs(ctx, f.ID)
	if err != nil {
		return nil, fmt.Errorf("loading block sequence of file %d: %w", f.ID, err)
	}
	out := make([]*BlockInfo, len(ids))
	for i, id := range ids {
		b, err := e.blocks.Block(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolving block %d of file %d: %w", id, f.ID, err)
		}
		out[i] = b
	}
	return out, nil
}

// NumBlocks is the length of the file's block sequence.
func (e *Engine) NumBlocks(ctx context.Context, f *FileMeta) (int, error) {
	return e.store.NumBlocks(ctx, f.ID)
}

// LastBlock returns the descriptor of the file's last block, or nil when
// the file has no blocks.
func (e *Engine) LastBlock(ctx context.Context, f *FileMeta) (*BlockInfo, error) {
	return e.blockFromTail(ctx, f, 1)
}

// PenultimateBlock returns the descriptor of the second-to-last block, or
// nil when the file has fewer than two blocks.
func (e *Engine) PenultimateBlock(ctx context.Context, f *FileMeta) (*BlockInfo, error) {
	return e.blockFromTail(ctx, f, 2)
}

func (e *Engine) blockFromTail(ctx context.Context, f *FileMeta, fromEnd int) (*BlockInfo, error) {
	n, err := e.store.NumBlocks(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if n < fromEnd {
		return nil, nil
	}
	id, err := e.store.BlockIDAt(ctx, f.ID, n-fromEnd)
	if err != nil {
		return nil, err
	}
	return e.blocks.Block(ctx, id)
}

// AddBlock appends a block to the tail of the file's sequence, persisting
// the descriptor first. The block's layout must match the file's: a striped
// block never joins a contiguous file and vice versa.
func (e *Engine) AddBlock(ctx context.Context, f *FileMeta, b *BlockInfo) error {
	h, err := e.Header(ctx, f)
	if err != nil {
		return err
	}
	if b.Striped != h.IsStriped() {
		return errInvalidArgf("block %d layout (striped=%t) does not match file %d layout (striped=%t)",
			b.ID, b.Striped, f.ID, h.IsStriped())
	}
	if err := e.store.PutBlock(ctx, b); err != nil {
		return fmt.Errorf("persisting block %d: %w", b.ID, err)
	}
	if err := e.store.AppendBlockID(ctx, f.ID, b.ID); err != nil {
		return fmt.Errorf("appending block %d to file %d: %w", b.ID, f.ID, err)
	}
	e.metrics.IncBlocksAdded()
	return nil
}

// SetBlock replaces the block at position index with a new descriptor.
// Used when a block is re-registered after recovery. The replacement's
// layout must match the file's, same as AddBlock.
func (e *Engine) SetBlock(ctx context.Context, f *FileMeta, index int, b *BlockInfo) error {
	h, err := e.Header(ctx, f)
	if err != nil {
		return err
	}
	if b.Striped != h.IsStriped() {
		return errInvalidArgf("block %d layout (striped=%t) does not match file %d layout (striped=%t)",
			b.ID, b.Striped, f.ID, h.IsStriped())
	}
	if err := e.store.PutBlock(ctx, b); err != nil {
		return fmt.Errorf("persisting block %d: %w", b.ID, err)
	}
	return e.store.SetBlockIDAt(ctx, f.ID, index, b.ID)
}

// RemoveLastBlock drops the file's last block if it matches expectedID,
// scheduling it for reclamation. Only an under-construction file may drop
// its tail block (client-abandoned block retry).
//
// Returns false without error when the file has no blocks or the tail does
// not match: the caller's view was stale, nothing was changed.
func (e *Engine) RemoveLastBlock(ctx context.Context, f *FileMeta, expectedID uint64) (bool, error) {
	if !f.IsUnderConstruction() {
		return false, errInvalidStatef(f.ID, "cannot remove last block: file is not under construction")
	}
	last, err := e.LastBlock(ctx, f)
	if err != nil {
		return false, err
	}
	if last == nil || last.ID != expectedID {
		return false, nil
	}
	if err := e.store.RemoveLastBlockID(ctx, f.ID); err != nil {
		return false, err
	}
	if err := e.blocks.MarkDeleted(ctx, last.ID); err != nil {
		return false, fmt.Errorf("scheduling block %d for deletion: %w", last.ID, err)
	}
	return true, nil
}

// TruncateBlocks shortens the file's block sequence to its first n blocks.
// The dropped blocks are not collected here; reclamation paths decide which
// of them are still referenced by snapshots.
func (e *Engine) TruncateBlocks(ctx context.Context, f *FileMeta, n int) error {
	if err := e.store.TruncateBlockIDs(ctx, f.ID, n); err != nil {
		return fmt.Errorf("truncating block sequence of file %d: %w", f.ID, err)
	}
	e.metrics.IncTruncations()
	return nil
}

// ConcatBlocks appends the block sequences of the source files, in argument
// order, to the tail of dst, leaving every source empty. All files must be
// contiguous; striped files cannot take part in concatenation.
//
// Source blocks whose replication differs from dst's preferred block
// replication are handed to the block manager for re-replication, so the
// merged sequence converges to a uniform factor.
func (e *Engine) ConcatBlocks(ctx context.Context, dst *FileMeta, srcs ...*FileMeta) error {
	dstHeader, err := e.Header(ctx, dst)
	if err != nil {
		return err
	}
	if dstHeader.IsStriped() {
		return errInvalidStatef(dst.ID, "cannot concat onto a striped file")
	}

	var movedIDs []uint64
	srcFileIDs := make([]uint64, 0, len(srcs))
	for _, src := range srcs {
		srcHeader, err := e.Header(ctx, src)
		if err != nil {
			return err
		}
		if srcHeader.IsStriped() {
			return errInvalidStatef(src.ID, "cannot concat a striped file")
		}
		ids, err := e.store.BlockIDs(ctx, src.ID)
		if err != nil {
			return err
		}
		movedIDs = append(movedIDs, ids...)
		srcFileIDs = append(srcFileIDs, src.ID)
	}

	if err := e.store.ReassignBlockIDs(ctx, dst.ID, srcFileIDs...); err != nil {
		return fmt.Errorf("reassigning blocks to file %d: %w", dst.ID, err)
	}

	targetRepl, err := e.PreferredBlockReplication(ctx, dst)
	if err != nil {
		return err
	}
	for _, id := range movedIDs {
		b, err := e.blocks.Block(ctx, id)
		if err != nil {
			return err
		}
		if b.Replication != targetRepl {
			if err := e.blocks.SetReplication(ctx, b.Replication, targetRepl, id); err != nil {
				return fmt.Errorf("re-replicating block %d: %w", id, err)
			}
		}
	}

	logger.Debug("concatenated %d blocks from %d files onto file %d", len(movedIDs), len(srcs), dst.ID)
	return nil
}

// ConvertLastBlockToUC reopens the file's last block for append with the
// given target locations. The file must be under construction and must have
// at least one block.
func (e *Engine) ConvertLastBlockToUC(ctx context.Context, f *FileMeta, targets []string) (*BlockInfo, error) {
	if !f.IsUnderConstruction() {
		return nil, errInvalidStatef(f.ID, "cannot reopen last block: file is not under construction")
	}
	last, err := e.LastBlock(ctx, f)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, errInvalidStatef(f.ID, "cannot reopen last block: file has no blocks")
	}
	if err := e.blocks.ConvertToUnderConstruction(ctx, last.ID, targets); err != nil {
		return nil, fmt.Errorf("reopening block %d: %w", last.ID, err)
	}
	return e.blocks.Block(ctx, last.ID)
}
