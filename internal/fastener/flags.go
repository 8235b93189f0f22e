package fastener

import "sync/atomic"

// UID identifies a Model or Trait for its whole lifetime. UIDs are uint32 so
// they can be stored directly in roaring bitmaps.
type UID uint32

var uidCounter atomic.Uint32

// NextUID returns a fresh, never reused UID. Zero is never returned.
func NextUID() UID {
	return UID(uidCounter.Add(1))
}

// Flags is the lifecycle bitset of a fastener.
type Flags uint32

const (
	Mounted Flags = 1 << iota
	Decoherent
	Derived
	Inherits
	Consuming
)

// Affinity arbitrates between inherited and explicitly written values.
// A write is accepted only when its affinity is at least the fastener's.
type Affinity uint8

const (
	Transient Affinity = iota
	Inherited
	Intrinsic
	Extrinsic
)

func (a Affinity) String() string {
	switch a {
	case Transient:
		return "transient"
	case Inherited:
		return "inherited"
	case Intrinsic:
		return "intrinsic"
	case Extrinsic:
		return "extrinsic"
	default:
		return "unknown"
	}
}

// UpdateFlags is the bitset an owner hands to its update scheduler.
type UpdateFlags uint32

const (
	// NeedsRecohere marks an owner with decoherent fasteners.
	NeedsRecohere UpdateFlags = 1 << iota
	// NeedsMutation is reserved for hosts that run a separate mutate phase.
	NeedsMutation
)
