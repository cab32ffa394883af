package filemeta

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittometa/internal/logger"
)

// ============================================================================
// Under-Construction Lifecycle
// ============================================================================

// ToUnderConstruction opens the file for writing on behalf of a client,
// attaching the under-construction feature with a freshly minted lease ID.
// Fails when the file is already under construction.
func (e *Engine) ToUnderConstruction(ctx context.Context, f *FileMeta, clientName, clientMachine string) error {
	if f.IsUnderConstruction() {
		return errInvalidStatef(f.ID, "file is already under construction by client %q", f.UC.ClientName)
	}
	f.UC = &UnderConstructionFeature{
		ClientName:    clientName,
		ClientMachine: clientMachine,
		LeaseID:       uuid.NewString(),
	}
	if err := e.store.PutFile(ctx, f); err != nil {
		f.UC = nil
		return fmt.Errorf("persisting file %d: %w", f.ID, err)
	}
	logger.Debug("file %d opened for write by %s@%s (lease %s)",
		f.ID, clientName, clientMachine, f.UC.LeaseID)
	return nil
}

// ToCompleteFile finalizes an under-construction file: every block must
// pass the completeness check, the feature is detached, and the
// modification time is stamped. Fails when the file is not under
// construction; a failed completeness check is an invariant violation, as
// the commit pipeline upstream must not finalize such a file.
func (e *Engine) ToCompleteFile(ctx context.Context, f *FileMeta, mtime time.Time) error {
	if !f.IsUnderConstruction() {
		return errInvalidStatef(f.ID, "cannot finalize: file is not under construction")
	}
	blocks, err := e.Blocks(ctx, f)
	if err != nil {
		return err
	}
	for i := range blocks {
		if err := CheckBlockComplete(blocks, i, e.numCommittedAllowed, e.minReplication); err != nil {
			return errInvariantf(f.ID, "cannot finalize: %v", err)
		}
	}

	uc := f.UC
	f.UC = nil
	f.ModificationTime = mtime
	if err := e.store.PutFile(ctx, f); err != nil {
		f.UC = uc
		return fmt.Errorf("persisting file %d: %w", f.ID, err)
	}
	logger.Debug("file %d finalized (%d blocks)", f.ID, len(blocks))
	e.metrics.IncFilesFinalized()
	return nil
}

// CheckBlockComplete verifies that the block at position i may belong to a
// finalized file.
//
// Every block must be in the complete state, with one relaxation: each of
// the last numCommittedAllowed contiguous blocks may instead be committed,
// provided its expected location count exceeds minReplication. Striped
// blocks get no relaxation.
func CheckBlockComplete(blocks []*BlockInfo, i, numCommittedAllowed int, minReplication uint16) error {
	b := blocks[i]
	if b.State == BlockComplete {
		return nil
	}
	if b.Striped || i < len(blocks)-numCommittedAllowed {
		return fmt.Errorf("unexpected state of block %s: %s is not COMPLETE", b, b.State)
	}
	if b.State != BlockCommitted {
		return fmt.Errorf("unexpected state of block %s: %s is neither COMPLETE nor COMMITTED", b, b.State)
	}
	if b.ExpectedLocations <= int(minReplication) {
		return fmt.Errorf("block %s is COMMITTED but has %d expected locations, needs more than %d",
			b, b.ExpectedLocations, minReplication)
	}
	return nil
}
