package filemeta

import (
	"context"
	"fmt"
)

// BlockUCState is the construction state of a single block.
type BlockUCState int

const (
	// BlockComplete is the terminal, normal state: the block is finalized
	// and its replica count confirmed.
	BlockComplete BlockUCState = iota

	// BlockCommitted is transitional: the client has stopped writing but
	// the replica count is not yet confirmed.
	BlockCommitted

	// BlockUnderConstruction means the block is actively open for append.
	BlockUnderConstruction
)

func (s BlockUCState) String() string {
	switch s {
	case BlockComplete:
		return "COMPLETE"
	case BlockCommitted:
		return "COMMITTED"
	case BlockUnderConstruction:
		return "UNDER_CONSTRUCTION"
	default:
		return fmt.Sprintf("BlockUCState(%d)", int(s))
	}
}

// BlockInfo is the descriptor of one data block, owned by the
// block-management subsystem and referenced by ID from file block
// sequences.
type BlockInfo struct {
	// ID is the cluster-unique block identifier.
	ID uint64 `json:"id"`

	// NumBytes is the byte length of the block as currently recorded.
	NumBytes uint64 `json:"num_bytes"`

	// State is the block's construction state.
	State BlockUCState `json:"state"`

	// Striped tags erasure-coded block groups.
	Striped bool `json:"striped"`

	// Replication is the block's individual replication factor
	// (contiguous blocks only).
	Replication uint16 `json:"replication"`

	// DataUnits and ParityUnits are the block group geometry of a striped
	// block (zero for contiguous blocks).
	DataUnits   uint8 `json:"data_units,omitempty"`
	ParityUnits uint8 `json:"parity_units,omitempty"`

	// ConsumedBytes is the actual space consumed by a complete striped
	// block group: the sum of its constituent unit sizes.
	ConsumedBytes uint64 `json:"consumed_bytes,omitempty"`

	// ExpectedLocations is the number of data-node locations currently
	// expected to hold a replica while the block is under construction.
	ExpectedLocations int `json:"expected_locations,omitempty"`

	// Deleted marks the block as scheduled for reclamation.
	Deleted bool `json:"deleted,omitempty"`
}

// IsComplete reports whether the block reached its terminal state.
func (b *BlockInfo) IsComplete() bool {
	return b.State == BlockComplete
}

// TotalUnits is the full block group width of a striped block
// (data + parity).
func (b *BlockInfo) TotalUnits() uint16 {
	return uint16(b.DataUnits) + uint16(b.ParityUnits)
}

func (b *BlockInfo) String() string {
	return fmt.Sprintf("blk_%d{bytes=%d, state=%s}", b.ID, b.NumBytes, b.State)
}

// BlockManager is the block-management collaborator: the subsystem that
// owns block descriptors and the physical placement of their replicas.
//
// The metadata engine never mutates descriptors directly; replication
// changes and deletions are requests to this collaborator.
type BlockManager interface {
	// Block returns the descriptor for a block ID.
	// Returns a *MetaError with ErrNotFound if the block is unknown.
	Block(ctx context.Context, id uint64) (*BlockInfo, error)

	// SetReplication asks the subsystem to re-replicate a block from
	// oldRepl to newRepl copies.
	SetReplication(ctx context.Context, oldRepl, newRepl uint16, blockID uint64) error

	// MarkDeleted schedules a block for physical reclamation.
	MarkDeleted(ctx context.Context, id uint64) error

	// ConvertToUnderConstruction reopens a block for append with the
	// given set of target locations.
	ConvertToUnderConstruction(ctx context.Context, id uint64, targets []string) error
}

// CollectedBlocks accumulates block IDs scheduled for deletion during
// truncation or file destruction. IDs are deduplicated; insertion order is
// preserved.
type CollectedBlocks struct {
	ids  []uint64
	seen map[uint64]struct{}
}

// NewCollectedBlocks returns an empty collection.
func NewCollectedBlocks() *CollectedBlocks {
	return &CollectedBlocks{seen: make(map[uint64]struct{})}
}

// Add records a block for deletion. Duplicates are ignored.
func (c *CollectedBlocks) Add(id uint64) {
	if _, ok := c.seen[id]; ok {
		return
	}
	c.seen[id] = struct{}{}
	c.ids = append(c.ids, id)
}

// Contains reports whether the block is already collected.
func (c *CollectedBlocks) Contains(id uint64) bool {
	_, ok := c.seen[id]
	return ok
}

// IDs returns the collected block IDs in insertion order.
func (c *CollectedBlocks) IDs() []uint64 {
	return c.ids
}

// Len is the number of collected blocks.
func (c *CollectedBlocks) Len() int {
	return len(c.ids)
}
