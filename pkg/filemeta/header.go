package filemeta

import (
	"fmt"

	"github.com/marmos91/dittometa/pkg/ecpolicy"
)

// BlockType is the block layout variant of a file: simple replication or
// erasure-coded striping. Every block added to a file must share the file's
// block type.
type BlockType int

const (
	// BlockTypeContiguous is the replicated layout: each block is stored
	// whole on `replication` data nodes.
	BlockTypeContiguous BlockType = iota

	// BlockTypeStriped is the erasure-coded layout: each block is a block
	// group striped across data+parity units.
	BlockTypeStriped
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeContiguous:
		return "CONTIGUOUS"
	case BlockTypeStriped:
		return "STRIPED"
	default:
		return fmt.Sprintf("BlockType(%d)", int(t))
	}
}

// Header is the packed 64-bit file header. It is part of the durable
// on-disk contract shared with every subsystem that reads file metadata;
// any change to field widths or bit order is a breaking format change.
//
// Bit format:
//
//	[4-bit storagePolicyID][12-bit layout+redundancy][48-bit preferredBlockSize]
//
// The layout+redundancy section uses its highest bit to distinguish
// replicated from erasure-coded layouts. For replicated blocks the tail
// 11 bits store the replication factor; for erasure-coded blocks they store
// the EC policy ID:
//
//	+---------------+-------------------------------+
//	|     1 bit     |             11 bit            |
//	+---------------+-------------------------------+
//	| Replica or EC |Replica factor or EC policy ID |
//	+---------------+-------------------------------+
//
// All bit manipulation is confined to this file; the rest of the engine
// works with the decoded accessors.
type Header uint64

const (
	preferredBlockSizeBits   = 48
	layoutRedundancyBits     = 12
	storagePolicyBits        = 4
	layoutRedundancyShift    = preferredBlockSizeBits
	storagePolicyShift       = preferredBlockSizeBits + layoutRedundancyBits
	preferredBlockSizeMask   = (uint64(1) << preferredBlockSizeBits) - 1
	layoutRedundancyMask     = (uint64(1) << layoutRedundancyBits) - 1
	storagePolicyMask        = (uint64(1) << storagePolicyBits) - 1
	blockTypeMaskStriped     = uint64(1) << 11
	minPreferredBlockSize    = uint64(1)

	// MaxRedundancy bounds both the replication factor and the EC policy
	// ID: whichever occupies the tail 11 bits.
	MaxRedundancy = (1 << 11) - 1

	// MaxPreferredBlockSize is the largest encodable preferred block size.
	MaxPreferredBlockSize = (uint64(1) << preferredBlockSizeBits) - 1

	// MaxStoragePolicyID is the largest encodable storage policy ID.
	MaxStoragePolicyID = uint8((1 << storagePolicyBits) - 1)
)

// DefaultReplForStripedBlocks is the effective replication factor reported
// for erasure-coded files, so accounting that treats all files uniformly
// sees EC files as single-copy.
const DefaultReplForStripedBlocks uint16 = 1

// blockLayoutRedundancy validates and packs the 12-bit layout+redundancy
// section. All violations are caller errors.
func blockLayoutRedundancy(
	blockType BlockType,
	replication *uint16,
	ecPolicyID *uint8,
	registry *ecpolicy.Registry,
) (uint64, error) {
	ecID := ecpolicy.ReplicationPolicyID
	if ecPolicyID != nil {
		ecID = *ecPolicyID
	}
	layoutRedundancy := uint64(ecID)

	switch blockType {
	case BlockTypeStriped:
		if replication != nil {
			return 0, errInvalidArgf("illegal replication for STRIPED block type")
		}
		if ecID == ecpolicy.ReplicationPolicyID {
			return 0, errInvalidArgf("illegal REPLICATION policy for STRIPED block type")
		}
		if _, err := registry.ByID(ecID); err != nil {
			return 0, errInvalidArgf("could not find EC policy with ID 0x%02x", ecID)
		}
		layoutRedundancy |= blockTypeMaskStriped

	case BlockTypeContiguous:
		if ecID != ecpolicy.ReplicationPolicyID {
			return 0, errInvalidArgf("illegal EC policy 0x%02x for CONTIGUOUS block type", ecID)
		}
		if replication == nil || *replication > MaxRedundancy {
			return 0, errInvalidArgf("invalid replication value %v", replication)
		}
		layoutRedundancy |= uint64(*replication)

	default:
		return 0, errInvalidArgf("unknown block type: %v", blockType)
	}

	return layoutRedundancy, nil
}

// EncodeHeader packs a file header.
//
// Exactly one of replication / ecPolicyID applies, selected by blockType:
// contiguous files take a replication factor in [0, 2047] and must leave
// ecPolicyID nil or set to the replication sentinel; striped files take an
// EC policy ID resolvable against registry and must leave replication nil.
//
// A preferredBlockSize of 0 is coerced to the minimum (1): the literal
// value 0 is never stored.
func EncodeHeader(
	blockType BlockType,
	replication *uint16,
	ecPolicyID *uint8,
	preferredBlockSize uint64,
	storagePolicyID uint8,
	registry *ecpolicy.Registry,
) (Header, error) {
	layoutRedundancy, err := blockLayoutRedundancy(blockType, replication, ecPolicyID, registry)
	if err != nil {
		return 0, err
	}
	if preferredBlockSize > MaxPreferredBlockSize {
		return 0, errInvalidArgf("preferred block size %d exceeds maximum %d",
			preferredBlockSize, MaxPreferredBlockSize)
	}
	if storagePolicyID > MaxStoragePolicyID {
		return 0, errInvalidArgf("storage policy id %d exceeds maximum %d",
			storagePolicyID, MaxStoragePolicyID)
	}
	if preferredBlockSize == 0 {
		preferredBlockSize = minPreferredBlockSize
	}

	h := preferredBlockSize & preferredBlockSizeMask
	h |= (layoutRedundancy & layoutRedundancyMask) << layoutRedundancyShift
	h |= (uint64(storagePolicyID) & storagePolicyMask) << storagePolicyShift
	return Header(h), nil
}

// PreferredBlockSize is the byte target size for new blocks of the file.
func (h Header) PreferredBlockSize() uint64 {
	return uint64(h) & preferredBlockSizeMask
}

// StoragePolicyID is the file's local storage policy ID (0 = unspecified).
func (h Header) StoragePolicyID() uint8 {
	return uint8((uint64(h) >> storagePolicyShift) & storagePolicyMask)
}

func (h Header) layoutRedundancy() uint64 {
	return (uint64(h) >> layoutRedundancyShift) & layoutRedundancyMask
}

// IsStriped reports whether the file uses the erasure-coded layout.
func (h Header) IsStriped() bool {
	return h.layoutRedundancy()&blockTypeMaskStriped != 0
}

// BlockType is the layout variant encoded in the header.
func (h Header) BlockType() BlockType {
	if h.IsStriped() {
		return BlockTypeStriped
	}
	return BlockTypeContiguous
}

// Replication is the file's replication factor. Erasure-coded files report
// DefaultReplForStripedBlocks so uniform accounting sees them as
// single-copy.
func (h Header) Replication() uint16 {
	if h.IsStriped() {
		return DefaultReplForStripedBlocks
	}
	return uint16(h.layoutRedundancy() & MaxRedundancy)
}

// ECPolicyID is the erasure-coding policy ID of a striped header. Reading
// it on a contiguous header is not meaningful: the same bits hold the
// replication factor there.
func (h Header) ECPolicyID() uint8 {
	return uint8(h.layoutRedundancy() & 0xff)
}

// withReplication returns a copy of the header with the replication factor
// replaced, preserving the striped flag and all other fields.
func (h Header) withReplication(replication uint16) Header {
	layoutRedundancy := h.layoutRedundancy()
	layoutRedundancy = (layoutRedundancy &^ uint64(MaxRedundancy)) | uint64(replication)
	raw := (uint64(h) &^ (layoutRedundancyMask << layoutRedundancyShift)) |
		(layoutRedundancy&layoutRedundancyMask)<<layoutRedundancyShift
	return Header(raw)
}

// withStoragePolicyID returns a copy of the header with the storage policy
// ID replaced.
func (h Header) withStoragePolicyID(storagePolicyID uint8) Header {
	raw := (uint64(h) &^ (storagePolicyMask << storagePolicyShift)) |
		(uint64(storagePolicyID)&storagePolicyMask)<<storagePolicyShift
	return Header(raw)
}

func (h Header) String() string {
	if h.IsStriped() {
		return fmt.Sprintf("Header{striped, ec=0x%02x, blocksize=%d, policy=%d}",
			h.ECPolicyID(), h.PreferredBlockSize(), h.StoragePolicyID())
	}
	return fmt.Sprintf("Header{contiguous, repl=%d, blocksize=%d, policy=%d}",
		h.Replication(), h.PreferredBlockSize(), h.StoragePolicyID())
}
