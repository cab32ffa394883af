package filemeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittometa/pkg/ecpolicy"
)

func uint16Ptr(v uint16) *uint16 { return &v }
func uint8Ptr(v uint8) *uint8    { return &v }

func TestEncodeHeader_ContiguousRoundTrip(t *testing.T) {
	registry := ecpolicy.NewRegistry()

	h, err := EncodeHeader(BlockTypeContiguous, uint16Ptr(3), nil, 128<<20, 7, registry)
	require.NoError(t, err)

	assert.Equal(t, BlockTypeContiguous, h.BlockType())
	assert.False(t, h.IsStriped())
	assert.Equal(t, uint16(3), h.Replication())
	assert.Equal(t, uint64(128<<20), h.PreferredBlockSize())
	assert.Equal(t, uint8(7), h.StoragePolicyID())
}

func TestEncodeHeader_StripedRoundTrip(t *testing.T) {
	registry := ecpolicy.NewRegistry()

	h, err := EncodeHeader(BlockTypeStriped, nil, uint8Ptr(ecpolicy.PolicyIDRS63), 64<<20, 12, registry)
	require.NoError(t, err)

	assert.Equal(t, BlockTypeStriped, h.BlockType())
	assert.True(t, h.IsStriped())
	assert.Equal(t, ecpolicy.PolicyIDRS63, h.ECPolicyID())
	assert.Equal(t, uint64(64<<20), h.PreferredBlockSize())
	assert.Equal(t, uint8(12), h.StoragePolicyID())

	// Striped files report the uniform single-copy replication factor.
	assert.Equal(t, DefaultReplForStripedBlocks, h.Replication())
}

func TestEncodeHeader_BoundaryValues(t *testing.T) {
	registry := ecpolicy.NewRegistry()

	h, err := EncodeHeader(BlockTypeContiguous, uint16Ptr(MaxRedundancy), nil,
		MaxPreferredBlockSize, MaxStoragePolicyID, registry)
	require.NoError(t, err)

	assert.Equal(t, uint16(MaxRedundancy), h.Replication())
	assert.Equal(t, uint64(MaxPreferredBlockSize), h.PreferredBlockSize())
	assert.Equal(t, MaxStoragePolicyID, h.StoragePolicyID())

	// Replication 0 is a legal stored value.
	h, err = EncodeHeader(BlockTypeContiguous, uint16Ptr(0), nil, 1, 0, registry)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), h.Replication())
}

func TestEncodeHeader_ZeroBlockSizeCoercedToMinimum(t *testing.T) {
	registry := ecpolicy.NewRegistry()

	h, err := EncodeHeader(BlockTypeContiguous, uint16Ptr(3), nil, 0, 0, registry)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.PreferredBlockSize())
}

func TestEncodeHeader_Rejections(t *testing.T) {
	registry := ecpolicy.NewRegistry()

	tests := []struct {
		name               string
		blockType          BlockType
		replication        *uint16
		ecPolicyID         *uint8
		preferredBlockSize uint64
		storagePolicyID    uint8
	}{
		{
			name:        "striped with replication",
			blockType:   BlockTypeStriped,
			replication: uint16Ptr(3),
			ecPolicyID:  uint8Ptr(ecpolicy.PolicyIDRS63),
		},
		{
			name:       "striped with replication sentinel",
			blockType:  BlockTypeStriped,
			ecPolicyID: uint8Ptr(ecpolicy.ReplicationPolicyID),
		},
		{
			name:      "striped without EC policy",
			blockType: BlockTypeStriped,
		},
		{
			name:       "striped with unknown EC policy",
			blockType:  BlockTypeStriped,
			ecPolicyID: uint8Ptr(0x7f),
		},
		{
			name:        "contiguous with EC policy",
			blockType:   BlockTypeContiguous,
			replication: uint16Ptr(3),
			ecPolicyID:  uint8Ptr(ecpolicy.PolicyIDRS63),
		},
		{
			name:      "contiguous without replication",
			blockType: BlockTypeContiguous,
		},
		{
			name:        "replication above maximum",
			blockType:   BlockTypeContiguous,
			replication: uint16Ptr(MaxRedundancy + 1),
		},
		{
			name:               "preferred block size above maximum",
			blockType:          BlockTypeContiguous,
			replication:        uint16Ptr(3),
			preferredBlockSize: MaxPreferredBlockSize + 1,
		},
		{
			name:            "storage policy above maximum",
			blockType:       BlockTypeContiguous,
			replication:     uint16Ptr(3),
			storagePolicyID: MaxStoragePolicyID + 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeHeader(tt.blockType, tt.replication, tt.ecPolicyID,
				tt.preferredBlockSize, tt.storagePolicyID, registry)
			require.Error(t, err)

			code, ok := CodeOf(err)
			require.True(t, ok)
			assert.Equal(t, ErrInvalidArgument, code)
		})
	}
}

func TestHeader_WithReplication(t *testing.T) {
	registry := ecpolicy.NewRegistry()

	h, err := EncodeHeader(BlockTypeContiguous, uint16Ptr(3), nil, 128<<20, 7, registry)
	require.NoError(t, err)

	rewritten := h.withReplication(11)
	assert.Equal(t, uint16(11), rewritten.Replication())
	assert.Equal(t, uint64(128<<20), rewritten.PreferredBlockSize())
	assert.Equal(t, uint8(7), rewritten.StoragePolicyID())
	assert.False(t, rewritten.IsStriped())

	// Original is unchanged.
	assert.Equal(t, uint16(3), h.Replication())
}

func TestHeader_WithStoragePolicyID(t *testing.T) {
	registry := ecpolicy.NewRegistry()

	h, err := EncodeHeader(BlockTypeStriped, nil, uint8Ptr(ecpolicy.PolicyIDRS32), 64<<20, 7, registry)
	require.NoError(t, err)

	rewritten := h.withStoragePolicyID(12)
	assert.Equal(t, uint8(12), rewritten.StoragePolicyID())
	assert.True(t, rewritten.IsStriped())
	assert.Equal(t, ecpolicy.PolicyIDRS32, rewritten.ECPolicyID())
	assert.Equal(t, uint64(64<<20), rewritten.PreferredBlockSize())
}

func TestCheckBlockComplete(t *testing.T) {
	complete := func(id uint64) *BlockInfo {
		return &BlockInfo{ID: id, NumBytes: 100, State: BlockComplete}
	}
	committed := func(id uint64, locations int) *BlockInfo {
		return &BlockInfo{ID: id, NumBytes: 100, State: BlockCommitted, ExpectedLocations: locations}
	}

	t.Run("all complete", func(t *testing.T) {
		blocks := []*BlockInfo{complete(1), complete(2)}
		for i := range blocks {
			require.NoError(t, CheckBlockComplete(blocks, i, 1, 1))
		}
	})

	t.Run("trailing committed with enough locations", func(t *testing.T) {
		blocks := []*BlockInfo{complete(1), committed(2, 2)}
		require.NoError(t, CheckBlockComplete(blocks, 1, 1, 1))
	})

	t.Run("trailing committed with too few locations", func(t *testing.T) {
		blocks := []*BlockInfo{complete(1), committed(2, 1)}
		require.Error(t, CheckBlockComplete(blocks, 1, 1, 1))
	})

	t.Run("committed outside the allowed tail", func(t *testing.T) {
		blocks := []*BlockInfo{committed(1, 5), complete(2)}
		require.Error(t, CheckBlockComplete(blocks, 0, 1, 1))
	})

	t.Run("two committed allowed in tail", func(t *testing.T) {
		blocks := []*BlockInfo{complete(1), committed(2, 5), committed(3, 5)}
		for i := range blocks {
			require.NoError(t, CheckBlockComplete(blocks, i, 2, 1))
		}
	})

	t.Run("under construction never passes", func(t *testing.T) {
		blocks := []*BlockInfo{{ID: 1, State: BlockUnderConstruction, ExpectedLocations: 5}}
		require.Error(t, CheckBlockComplete(blocks, 0, 1, 1))
	})

	t.Run("striped committed never passes", func(t *testing.T) {
		blocks := []*BlockInfo{{ID: 1, State: BlockCommitted, Striped: true, ExpectedLocations: 9}}
		require.Error(t, CheckBlockComplete(blocks, 0, 1, 1))
	})
}
