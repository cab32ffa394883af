package badger

import (
	"encoding/binary"
)

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so prefixed keys organize the different
// record types into logical namespaces. This prevents collisions, keeps the
// database self-documenting, and leaves room for future record types.
//
// File and block IDs are encoded as 8-byte big-endian so keys within a
// namespace sort numerically.
//
// Data Type          Prefix   Key Format        Value Type
// =============================================================================
// File Entries       "f:"     f:<fileID>        FileMeta (JSON)
// Packed Headers     "h:"     h:<fileID>        uint64 (8-byte big-endian)
// Block Sequences    "bl:"    bl:<fileID>       []uint64 (8 bytes per ID)
// Block Descriptors  "blk:"   blk:<blockID>     BlockInfo (JSON)
//
// The packed header is stored as its raw 8 bytes rather than JSON: it is
// already a fixed-width external format and round-tripping it through text
// would only add failure modes.

const (
	prefixFile      = "f:"
	prefixHeader    = "h:"
	prefixBlockList = "bl:"
	prefixBlock     = "blk:"
)

func appendID(prefix string, id uint64) []byte {
	key := make([]byte, len(prefix), len(prefix)+8)
	copy(key, prefix)
	return binary.BigEndian.AppendUint64(key, id)
}

// keyFile generates the key for a file entry.
func keyFile(fileID uint64) []byte {
	return appendID(prefixFile, fileID)
}

// keyHeader generates the key for a file's packed header.
func keyHeader(fileID uint64) []byte {
	return appendID(prefixHeader, fileID)
}

// keyBlockList generates the key for a file's block ID sequence.
func keyBlockList(fileID uint64) []byte {
	return appendID(prefixBlockList, fileID)
}

// keyBlock generates the key for a block descriptor.
func keyBlock(blockID uint64) []byte {
	return appendID(prefixBlock, blockID)
}
