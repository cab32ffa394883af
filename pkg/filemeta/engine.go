// Package filemeta implements the per-file metadata engine: the packed
// header codec, the ordered block sequence, the under-construction
// lifecycle, snapshot diff integration, and size/quota accounting.
package filemeta

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/marmos91/dittometa/internal/logger"
	"github.com/marmos91/dittometa/pkg/ecpolicy"
	"github.com/marmos91/dittometa/pkg/metrics"
	"github.com/marmos91/dittometa/pkg/storagepolicy"
)

// ============================================================================
// Engine
// ============================================================================

// Engine coordinates all file-metadata operations against a Store and the
// block-management collaborator.
//
// The engine itself is stateless: all durable state lives in the store, and
// the caller (the namespace layer) serializes mutations per file. Reads are
// safe to run concurrently with each other.
type Engine struct {
	store    Store
	blocks   BlockManager
	ec       *ecpolicy.Registry
	policies *storagepolicy.Suite
	ids      *snowflake.Node
	metrics  *metrics.EngineMetrics

	minReplication      uint16
	numCommittedAllowed int
}

// EngineConfig carries the engine's collaborators and tunables.
type EngineConfig struct {
	// Store is the persistent metadata store. Required.
	Store Store

	// Blocks is the block-management collaborator. Required.
	Blocks BlockManager

	// ECPolicies resolves erasure-coding policy IDs. Defaults to the
	// built-in registry when nil.
	ECPolicies *ecpolicy.Registry

	// StoragePolicies resolves storage policy IDs. Defaults to the
	// built-in suite when nil.
	StoragePolicies *storagepolicy.Suite

	// NodeID seeds the snowflake ID generator for new file IDs. Must be
	// unique per engine instance in a cluster.
	NodeID int64

	// MinReplication is the replica threshold a committed trailing block
	// must exceed for a file to be finalized.
	MinReplication uint16

	// NumCommittedAllowed is how many trailing blocks may still be in the
	// committed state when a file is finalized.
	NumCommittedAllowed int

	// Metrics receives engine counters. Optional.
	Metrics *metrics.EngineMetrics
}

// NewEngine builds an engine from its configuration.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if cfg.Blocks == nil {
		return nil, fmt.Errorf("engine: block manager is required")
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("engine: creating id generator: %w", err)
	}
	ec := cfg.ECPolicies
	if ec == nil {
		ec = ecpolicy.NewRegistry()
	}
	policies := cfg.StoragePolicies
	if policies == nil {
		policies = storagepolicy.DefaultSuite()
	}
	return &Engine{
		store:               cfg.Store,
		blocks:              cfg.Blocks,
		ec:                  ec,
		policies:            policies,
		ids:                 node,
		metrics:             cfg.Metrics,
		minReplication:      cfg.MinReplication,
		numCommittedAllowed: cfg.NumCommittedAllowed,
	}, nil
}

// NextID mints a cluster-unique ID for a new file or block.
func (e *Engine) NextID() uint64 {
	return uint64(e.ids.Generate().Int64())
}

// ============================================================================
// File Creation and Retrieval
// ============================================================================

// CreateFileOptions carries everything needed to create a file entry.
type CreateFileOptions struct {
	Name string
	Mode uint32
	UID  uint32
	GID  uint32

	// BlockType selects the layout; it is immutable for the file's
	// lifetime.
	BlockType BlockType

	// Replication applies to contiguous files only.
	Replication *uint16

	// ECPolicyID applies to striped files only.
	ECPolicyID *uint8

	// PreferredBlockSize is the byte target for new blocks. Zero is
	// coerced to the minimum encodable size.
	PreferredBlockSize uint64

	// StoragePolicyID is the local storage policy (0 = unspecified).
	StoragePolicyID uint8
}

// CreateFile mints a new complete file entry with an empty block sequence
// and persists it together with its packed header.
func (e *Engine) CreateFile(ctx context.Context, opts CreateFileOptions) (*FileMeta, error) {
	header, err := EncodeHeader(
		opts.BlockType, opts.Replication, opts.ECPolicyID,
		opts.PreferredBlockSize, opts.StoragePolicyID, e.ec,
	)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	f := &FileMeta{
		ID:               e.NextID(),
		Name:             opts.Name,
		Mode:             opts.Mode,
		UID:              opts.UID,
		GID:              opts.GID,
		ModificationTime: now,
		AccessTime:       now,
	}

	if err := e.store.PutFile(ctx, f); err != nil {
		return nil, fmt.Errorf("persisting file %d: %w", f.ID, err)
	}
	if err := e.store.SetHeader(ctx, f.ID, header); err != nil {
		return nil, fmt.Errorf("persisting header of file %d: %w", f.ID, err)
	}
	f.setCachedHeader(header)

	logger.Debug("created file %d (%s): %s", f.ID, f.Name, header)
	e.metrics.IncFilesCreated()
	return f, nil
}

// GetFile retrieves a file entry by ID.
func (e *Engine) GetFile(ctx context.Context, fileID uint64) (*FileMeta, error) {
	return e.store.GetFile(ctx, fileID)
}

// ============================================================================
// Header Operations
// ============================================================================

// Header returns the file's packed header, loading it from the store on
// first access and caching it on the entry afterwards.
func (e *Engine) Header(ctx context.Context, f *FileMeta) (Header, error) {
	if f.headerLoaded {
		return f.header, nil
	}
	h, err := e.store.GetHeader(ctx, f.ID)
	if err != nil {
		return 0, fmt.Errorf("loading header of file %d: %w", f.ID, err)
	}
	f.setCachedHeader(h)
	return h, nil
}

// setHeader persists a rewritten header and refreshes the cache.
func (e *Engine) setHeader(ctx context.Context, f *FileMeta, h Header) error {
	if err := e.store.SetHeader(ctx, f.ID, h); err != nil {
		f.invalidateHeader()
		return fmt.Errorf("persisting header of file %d: %w", f.ID, err)
	}
	f.setCachedHeader(h)
	return nil
}

// FileReplication is the file's replication factor as of snapshotID. Pass
// CurrentStateID for the live value. A snapshot query answers from the diff
// recorded at or before that snapshot; absent one, the live value applies.
// Striped files always report DefaultReplForStripedBlocks.
func (e *Engine) FileReplication(ctx context.Context, f *FileMeta, snapshotID int) (uint16, error) {
	if snapshotID != CurrentStateID && f.Snapshot != nil {
		if i := f.Snapshot.Diffs.floorIndex(snapshotID); i >= 0 {
			return f.Snapshot.Diffs.Items[i].Replication, nil
		}
	}
	h, err := e.Header(ctx, f)
	if err != nil {
		return 0, err
	}
	return h.Replication(), nil
}

// PreferredBlockReplication is the replication factor the file's retained
// blocks should be billed and replicated at: the maximum of the live factor
// and every factor recorded in snapshot diffs. When the live file has been
// deleted and only snapshots keep it alive, only the diff maximum counts.
// For striped files the result is the full block group width.
func (e *Engine) PreferredBlockReplication(ctx context.Context, f *FileMeta) (uint16, error) {
	h, err := e.Header(ctx, f)
	if err != nil {
		return 0, err
	}
	max := h.Replication()
	if sf := f.Snapshot; sf != nil {
		maxInSnapshot := sf.MaxBlockRepInDiffs(nil)
		if sf.IsCurrentFileDeleted() {
			max = maxInSnapshot
		} else if maxInSnapshot > max {
			max = maxInSnapshot
		}
	}
	if !h.IsStriped() {
		return max, nil
	}
	policy, err := e.ec.ByID(h.ECPolicyID())
	if err != nil {
		return 0, errInvariantf(f.ID, "striped file carries unresolvable EC policy 0x%02x", h.ECPolicyID())
	}
	return policy.TotalUnits(), nil
}

// SetFileReplication rewrites the replication factor of a contiguous file.
// A snapshot diff is recorded first, so the pre-change factor stays
// attributable to earlier snapshots.
func (e *Engine) SetFileReplication(ctx context.Context, f *FileMeta, replication uint16, latestSnapshotID int) error {
	if replication > MaxRedundancy {
		return errInvalidArgf("replication %d exceeds maximum %d", replication, MaxRedundancy)
	}
	h, err := e.Header(ctx, f)
	if err != nil {
		return err
	}
	if h.IsStriped() {
		return errInvalidStatef(f.ID, "cannot set replication on a striped file")
	}
	if err := e.RecordModification(ctx, f, latestSnapshotID, false); err != nil {
		return err
	}
	return e.setHeader(ctx, f, h.withReplication(replication))
}

// SetStoragePolicyID rewrites the file's local storage policy, recording a
// snapshot diff first.
func (e *Engine) SetStoragePolicyID(ctx context.Context, f *FileMeta, storagePolicyID uint8, latestSnapshotID int) error {
	if storagePolicyID > MaxStoragePolicyID {
		return errInvalidArgf("storage policy id %d exceeds maximum %d", storagePolicyID, MaxStoragePolicyID)
	}
	h, err := e.Header(ctx, f)
	if err != nil {
		return err
	}
	if err := e.RecordModification(ctx, f, latestSnapshotID, false); err != nil {
		return err
	}
	return e.setHeader(ctx, f, h.withStoragePolicyID(storagePolicyID))
}

// StoragePolicyID is the file's effective local storage policy. A striped
// file whose stored policy is unsuitable for striped layouts reports
// unspecified instead.
func (e *Engine) StoragePolicyID(ctx context.Context, f *FileMeta) (uint8, error) {
	h, err := e.Header(ctx, f)
	if err != nil {
		return 0, err
	}
	id := h.StoragePolicyID()
	if h.IsStriped() && !ecpolicy.StoragePolicySuitableForStriped(id) {
		return storagepolicy.PolicyIDUnspecified, nil
	}
	return id, nil
}

// ECPolicyID is the file's erasure-coding policy ID; contiguous files
// report the replication sentinel.
func (e *Engine) ECPolicyID(ctx context.Context, f *FileMeta) (uint8, error) {
	h, err := e.Header(ctx, f)
	if err != nil {
		return 0, err
	}
	if !h.IsStriped() {
		return ecpolicy.ReplicationPolicyID, nil
	}
	return h.ECPolicyID(), nil
}

// IsStriped reports whether the file uses the erasure-coded layout.
func (e *Engine) IsStriped(ctx context.Context, f *FileMeta) (bool, error) {
	h, err := e.Header(ctx, f)
	if err != nil {
		return false, err
	}
	return h.IsStriped(), nil
}

// PreferredBlockSize is the byte target size for new blocks of the file.
func (e *Engine) PreferredBlockSize(ctx context.Context, f *FileMeta) (uint64, error) {
	h, err := e.Header(ctx, f)
	if err != nil {
		return 0, err
	}
	return h.PreferredBlockSize(), nil
}
