// Package blockmap implements the block-management side of the metadata
// service: ownership of block descriptors and the replication and
// reclamation requests the file engine issues against them.
package blockmap

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/dittometa/internal/logger"
	"github.com/marmos91/dittometa/pkg/filemeta"
)

// Manager is the store-backed block manager. It serializes descriptor
// mutations; reads go straight to the store.
type Manager struct {
	mu    sync.Mutex
	store filemeta.Store
}

// NewManager builds a block manager over the given store.
func NewManager(store filemeta.Store) *Manager {
	return &Manager{store: store}
}

// compile-time interface check
var _ filemeta.BlockManager = (*Manager)(nil)

// Register persists a new block descriptor.
func (m *Manager) Register(ctx context.Context, b *filemeta.BlockInfo) error {
	return m.store.PutBlock(ctx, b)
}

// Block returns the descriptor for a block ID.
func (m *Manager) Block(ctx context.Context, id uint64) (*filemeta.BlockInfo, error) {
	return m.store.GetBlock(ctx, id)
}

// SetReplication records a block's new replication factor. The physical
// re-replication across data nodes happens asynchronously on the data path.
func (m *Manager) SetReplication(ctx context.Context, oldRepl, newRepl uint16, blockID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.store.GetBlock(ctx, blockID)
	if err != nil {
		return err
	}
	if b.Replication != oldRepl {
		logger.Warn("block %d replication is %d, caller expected %d", blockID, b.Replication, oldRepl)
	}
	b.Replication = newRepl
	if err := m.store.PutBlock(ctx, b); err != nil {
		return fmt.Errorf("persisting block %d: %w", blockID, err)
	}
	logger.Debug("block %d replication %d -> %d", blockID, oldRepl, newRepl)
	return nil
}

// MarkDeleted schedules a block for physical reclamation.
func (m *Manager) MarkDeleted(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.store.GetBlock(ctx, id)
	if err != nil {
		return err
	}
	if b.Deleted {
		return nil
	}
	b.Deleted = true
	if err := m.store.PutBlock(ctx, b); err != nil {
		return fmt.Errorf("persisting block %d: %w", id, err)
	}
	logger.Debug("block %d scheduled for deletion", id)
	return nil
}

// ConvertToUnderConstruction reopens a block for append with the given
// target locations.
func (m *Manager) ConvertToUnderConstruction(ctx context.Context, id uint64, targets []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.store.GetBlock(ctx, id)
	if err != nil {
		return err
	}
	b.State = filemeta.BlockUnderConstruction
	b.ExpectedLocations = len(targets)
	if err := m.store.PutBlock(ctx, b); err != nil {
		return fmt.Errorf("persisting block %d: %w", id, err)
	}
	logger.Debug("block %d reopened for append with %d targets", id, len(targets))
	return nil
}
