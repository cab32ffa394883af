package filemeta

import (
	"time"
)

// UnderConstructionFeature is the side-car state attached to a file while a
// client holds it open for writing. Its presence is what makes a file
// "under construction"; detaching it finalizes the file.
type UnderConstructionFeature struct {
	// ClientName identifies the writing client (lease holder).
	ClientName string `json:"client_name"`

	// ClientMachine is the address the lease was taken from.
	ClientMachine string `json:"client_machine"`

	// LeaseID is the unique ID minted for this construction session.
	LeaseID string `json:"lease_id"`
}

// FileMeta is a single file entry in the metadata service: identity,
// ownership, timestamps, the packed header, and the optional
// under-construction and snapshot side-car features.
//
// The ordered block sequence of the file lives in the metadata store, keyed
// by the file ID; FileMeta itself never holds block descriptors. The packed
// header is likewise store-resident and cached here on first access
// (invalidated on every header mutation).
//
// FileMeta is a passive data structure: all operations on it go through the
// Engine, and the caller serializes mutations (single-writer discipline).
type FileMeta struct {
	// ID is the stable numeric identity of the file.
	ID uint64 `json:"id"`

	// Name is the file's name within its parent directory.
	Name string `json:"name"`

	// Mode holds the permission bits.
	Mode uint32 `json:"mode"`

	// UID and GID identify the owner.
	UID uint32 `json:"uid"`
	GID uint32 `json:"gid"`

	// ModificationTime and AccessTime are the file timestamps.
	ModificationTime time.Time `json:"mtime"`
	AccessTime       time.Time `json:"atime"`

	// UC is the under-construction feature; nil when the file is complete.
	UC *UnderConstructionFeature `json:"uc,omitempty"`

	// Snapshot is the snapshot feature, attached lazily the first time the
	// file is modified while visible in an existing snapshot; nil before
	// that.
	Snapshot *SnapshotFeature `json:"snapshot,omitempty"`

	// header caches the packed header read from the store. Runtime-only:
	// never serialized; invalidated whenever the header is rewritten.
	header       Header
	headerLoaded bool
}

// IsUnderConstruction reports whether the file is still being written.
func (f *FileMeta) IsUnderConstruction() bool {
	return f.UC != nil
}

// IsWithSnapshot reports whether the snapshot feature is attached.
func (f *FileMeta) IsWithSnapshot() bool {
	return f.Snapshot != nil
}

// Diffs returns the file's snapshot diff list, or nil if the snapshot
// feature is not attached.
func (f *FileMeta) Diffs() *FileDiffList {
	if f.Snapshot == nil {
		return nil
	}
	return &f.Snapshot.Diffs
}

// setCachedHeader stores the packed header in the runtime cache.
func (f *FileMeta) setCachedHeader(h Header) {
	f.header = h
	f.headerLoaded = true
}

// invalidateHeader drops the cached header so the next read goes back to
// the store.
func (f *FileMeta) invalidateHeader() {
	f.header = 0
	f.headerLoaded = false
}

// Clone returns a deep copy of the file entry (cache state included).
// Stores use this to avoid aliasing between callers and persisted state.
func (f *FileMeta) Clone() *FileMeta {
	if f == nil {
		return nil
	}
	out := *f
	if f.UC != nil {
		uc := *f.UC
		out.UC = &uc
	}
	if f.Snapshot != nil {
		out.Snapshot = f.Snapshot.Clone()
	}
	return &out
}
