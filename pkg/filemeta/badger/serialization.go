package badger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/marmos91/dittometa/pkg/filemeta"
)

// Serialization Strategy
// ======================
//
// Complex records (file entries, block descriptors) are stored as JSON:
// human-readable, easy to debug, and tolerant of schema evolution. Simple
// fixed-width records (packed headers, block ID sequences) are stored as
// raw big-endian bytes: compact and with no parsing ambiguity.

// encodeFileMeta serializes a file entry to JSON bytes.
func encodeFileMeta(f *filemeta.FileMeta) ([]byte, error) {
	bytes, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file entry: %w", err)
	}
	return bytes, nil
}

// decodeFileMeta deserializes a file entry from JSON bytes.
func decodeFileMeta(bytes []byte) (*filemeta.FileMeta, error) {
	var f filemeta.FileMeta
	if err := json.Unmarshal(bytes, &f); err != nil {
		return nil, fmt.Errorf("failed to decode file entry: %w", err)
	}
	return &f, nil
}

// encodeBlockInfo serializes a block descriptor to JSON bytes.
func encodeBlockInfo(b *filemeta.BlockInfo) ([]byte, error) {
	bytes, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode block descriptor: %w", err)
	}
	return bytes, nil
}

// decodeBlockInfo deserializes a block descriptor from JSON bytes.
func decodeBlockInfo(bytes []byte) (*filemeta.BlockInfo, error) {
	var b filemeta.BlockInfo
	if err := json.Unmarshal(bytes, &b); err != nil {
		return nil, fmt.Errorf("failed to decode block descriptor: %w", err)
	}
	return &b, nil
}

// encodeHeader serializes a packed header to its raw 8 bytes.
func encodeHeader(h filemeta.Header) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(h))
}

// decodeHeader deserializes a packed header from its raw 8 bytes.
func decodeHeader(bytes []byte) (filemeta.Header, error) {
	if len(bytes) != 8 {
		return 0, fmt.Errorf("failed to decode header: expected 8 bytes, got %d", len(bytes))
	}
	return filemeta.Header(binary.BigEndian.Uint64(bytes)), nil
}

// encodeBlockIDs serializes a block ID sequence as concatenated 8-byte
// big-endian IDs.
func encodeBlockIDs(ids []uint64) []byte {
	out := make([]byte, 0, len(ids)*8)
	for _, id := range ids {
		out = binary.BigEndian.AppendUint64(out, id)
	}
	return out
}

// decodeBlockIDs deserializes a block ID sequence.
func decodeBlockIDs(bytes []byte) ([]uint64, error) {
	if len(bytes)%8 != 0 {
		return nil, fmt.Errorf("failed to decode block sequence: length %d is not a multiple of 8", len(bytes))
	}
	ids := make([]uint64, 0, len(bytes)/8)
	for i := 0; i < len(bytes); i += 8 {
		ids = append(ids, binary.BigEndian.Uint64(bytes[i:i+8]))
	}
	return ids, nil
}
