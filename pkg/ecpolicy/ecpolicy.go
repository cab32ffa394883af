// Package ecpolicy implements the erasure-coding policy registry: the
// cluster-wide table that resolves the 11-bit EC policy ID carried in a
// striped file's header to its data/parity unit geometry.
//
// The registry only describes policies; erasure encode/decode of block bytes
// happens on the data path and is out of scope here.
package ecpolicy

import (
	"errors"
	"fmt"

	"github.com/marmos91/dittometa/pkg/storagepolicy"
)

// ReplicationPolicyID is the sentinel meaning "not erasure coded".
//
// A contiguous file's header always carries this value in the redundancy
// payload position; a striped file must never carry it.
const ReplicationPolicyID uint8 = 0

// Built-in system policy IDs.
const (
	PolicyIDRS63       uint8 = 1
	PolicyIDRS32       uint8 = 2
	PolicyIDRSLegacy63 uint8 = 3
	PolicyIDXOR21      uint8 = 4
	PolicyIDRS104      uint8 = 5
)

// ErrUnknownPolicy is returned when a policy ID does not resolve.
var ErrUnknownPolicy = errors.New("unknown erasure coding policy")

// Policy describes one erasure-coding scheme.
type Policy struct {
	// ID is the numeric policy identifier stored in file headers.
	ID uint8

	// Name is the canonical policy name (e.g. "RS-6-3-1024k").
	Name string

	// DataUnits is the number of data units per block group.
	DataUnits uint8

	// ParityUnits is the number of parity units per block group.
	ParityUnits uint8

	// CellSize is the striping cell size in bytes.
	CellSize uint32
}

// TotalUnits is the full block group width (data + parity).
func (p *Policy) TotalUnits() uint16 {
	return uint16(p.DataUnits) + uint16(p.ParityUnits)
}

func (p *Policy) String() string {
	return fmt.Sprintf("%s(id=%d, %d+%d)", p.Name, p.ID, p.DataUnits, p.ParityUnits)
}

// Registry resolves EC policy IDs. Immutable after construction and safe
// for concurrent reads.
type Registry struct {
	byID map[uint8]*Policy
}

// NewRegistry returns a registry holding the built-in system policies.
func NewRegistry() *Registry {
	byID := make(map[uint8]*Policy)
	for _, p := range []*Policy{
		{ID: PolicyIDRS63, Name: "RS-6-3-1024k", DataUnits: 6, ParityUnits: 3, CellSize: 1 << 20},
		{ID: PolicyIDRS32, Name: "RS-3-2-1024k", DataUnits: 3, ParityUnits: 2, CellSize: 1 << 20},
		{ID: PolicyIDRSLegacy63, Name: "RS-LEGACY-6-3-1024k", DataUnits: 6, ParityUnits: 3, CellSize: 1 << 20},
		{ID: PolicyIDXOR21, Name: "XOR-2-1-1024k", DataUnits: 2, ParityUnits: 1, CellSize: 1 << 20},
		{ID: PolicyIDRS104, Name: "RS-10-4-1024k", DataUnits: 10, ParityUnits: 4, CellSize: 1 << 20},
	} {
		byID[p.ID] = p
	}
	return &Registry{byID: byID}
}

// ByID resolves a policy ID.
//
// Returns ErrUnknownPolicy (wrapped) when the ID is not registered. The
// replication sentinel never resolves: it is not an erasure-coding policy.
func (r *Registry) ByID(id uint8) (*Policy, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id 0x%02x", ErrUnknownPolicy, id)
	}
	return p, nil
}

// StoragePolicySuitableForStriped reports whether a storage policy may be
// applied to a striped file. Striped layouts only support uniform
// placement policies; anything else is treated as unspecified by callers.
func StoragePolicySuitableForStriped(storagePolicyID uint8) bool {
	switch storagePolicyID {
	case storagepolicy.PolicyIDHot,
		storagepolicy.PolicyIDCold,
		storagepolicy.PolicyIDAllSSD:
		return true
	default:
		return false
	}
}
