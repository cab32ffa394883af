// Package storagepolicy implements the cluster-wide storage policy suite:
// the table mapping a file's 4-bit storage policy ID to the ordered list of
// physical storage types its replicas should be billed against.
package storagepolicy

import (
	"errors"
	"fmt"
)

// StorageType identifies a class of physical storage on a data-serving node.
type StorageType int

const (
	// RAMDisk is transient memory-backed storage. It does not participate
	// in storage-type quota accounting.
	RAMDisk StorageType = iota

	// SSD is flash storage.
	SSD

	// Disk is spinning disk storage, the default for most policies.
	Disk

	// Archive is high-density, low-compute storage for cold data.
	Archive
)

func (t StorageType) String() string {
	switch t {
	case RAMDisk:
		return "RAM_DISK"
	case SSD:
		return "SSD"
	case Disk:
		return "DISK"
	case Archive:
		return "ARCHIVE"
	default:
		return fmt.Sprintf("StorageType(%d)", int(t))
	}
}

// SupportsTypeQuota reports whether space placed on this storage type is
// counted against per-type quotas. Transient storage is exempt.
func (t StorageType) SupportsTypeQuota() bool {
	return t != RAMDisk
}

// Well-known policy IDs. The ID is stored in the 4-bit storage policy field
// of the packed file header, so all values must fit in [0, 15].
const (
	// PolicyIDUnspecified means the file inherits whatever policy the
	// namespace assigns; quota accounting skips per-type attribution.
	PolicyIDUnspecified uint8 = 0

	PolicyIDCold        uint8 = 2
	PolicyIDWarm        uint8 = 5
	PolicyIDHot         uint8 = 7
	PolicyIDOneSSD      uint8 = 10
	PolicyIDAllSSD      uint8 = 12
	PolicyIDLazyPersist uint8 = 15
)

// ErrUnknownPolicy is returned when a policy ID does not resolve against
// the suite.
var ErrUnknownPolicy = errors.New("unknown storage policy")

// Policy describes one storage policy: the ordered storage types that
// replicas of a block should occupy.
//
// The first len(types)-1 replicas take one entry each, in order; every
// remaining replica falls onto the last entry. A HOT file with replication 3
// yields [DISK DISK DISK]; a ONE_SSD file yields [SSD DISK DISK].
type Policy struct {
	// ID is the numeric policy identifier (fits in 4 bits).
	ID uint8

	// Name is the human-readable policy name (e.g. "HOT").
	Name string

	// types is the ordered preference list; the last entry absorbs all
	// remaining replicas.
	types []StorageType
}

// ChooseStorageTypes returns one storage type per replica.
//
// Returns an empty slice for replication 0 (a file explicitly constructed
// with no replicas consumes no typed space).
func (p *Policy) ChooseStorageTypes(replication uint16) []StorageType {
	chosen := make([]StorageType, 0, replication)
	for i := 0; i < int(replication); i++ {
		if i < len(p.types)-1 {
			chosen = append(chosen, p.types[i])
		} else {
			chosen = append(chosen, p.types[len(p.types)-1])
		}
	}
	return chosen
}

func (p *Policy) String() string {
	return fmt.Sprintf("%s(%d)", p.Name, p.ID)
}

// Suite is the lookup table of storage policies, keyed by policy ID.
//
// The suite is immutable after construction and safe for concurrent reads.
type Suite struct {
	policies map[uint8]*Policy
}

// DefaultSuite returns the suite of built-in policies.
func DefaultSuite() *Suite {
	byID := make(map[uint8]*Policy)
	for _, p := range []*Policy{
		{ID: PolicyIDCold, Name: "COLD", types: []StorageType{Archive}},
		{ID: PolicyIDWarm, Name: "WARM", types: []StorageType{Disk, Archive}},
		{ID: PolicyIDHot, Name: "HOT", types: []StorageType{Disk}},
		{ID: PolicyIDOneSSD, Name: "ONE_SSD", types: []StorageType{SSD, Disk}},
		{ID: PolicyIDAllSSD, Name: "ALL_SSD", types: []StorageType{SSD}},
		{ID: PolicyIDLazyPersist, Name: "LAZY_PERSIST", types: []StorageType{RAMDisk, Disk}},
	} {
		byID[p.ID] = p
	}
	return &Suite{policies: byID}
}

// Policy resolves a policy ID.
//
// Returns ErrUnknownPolicy (wrapped) if the ID is not in the suite;
// PolicyIDUnspecified is never in the suite by definition.
func (s *Suite) Policy(id uint8) (*Policy, error) {
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownPolicy, id)
	}
	return p, nil
}
