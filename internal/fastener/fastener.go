// Package fastener implements named, typed edges declared on tree owners:
// their lifecycle, inlet/outlet derivation and lazy decohere/recohere protocol.
package fastener

import (
	"log/slog"
)

// Owner is the context a fastener is declared on. Models and traits are the
// owners in practice; the interface is what the derivation protocol needs.
type Owner interface {
	UID() UID
	Key() string
	Fasteners() *Registry
	Mounted() bool
	Consuming() bool
	// InletFor resolves the ancestor fastener f should derive from, or nil.
	InletFor(f Fastener) Fastener
	// DecohereFastener queues f for the owner's next update pass.
	DecohereFastener(f Fastener)
	RequireUpdate(flags UpdateFlags)
	Logger() *slog.Logger
}

// Fastener is implemented by every type embedding Base.
type Fastener interface {
	Name() string
	Owner() Owner
	Flags() Flags
	Affinity() Affinity
	Mounted() bool
	Derived() bool
	Decoherent() bool
	Inherits() bool
	Inlet() Fastener
	Outlets() []Fastener
	Mount()
	Unmount()
	BindInlet()
	UnbindInlet()
	Decohere()
	Recohere(t int64)
	DecohereOutlets()

	base() *Base
}

// Deriver is implemented by fasteners that can mirror an inlet.
type Deriver interface {
	// AcceptsInlet reports whether inlet has the same kind as the receiver.
	AcceptsInlet(inlet Fastener) bool
	// DeriveFrom copies inlet's current state into the receiver.
	DeriveFrom(inlet Fastener)
}

// MountHook is implemented by fasteners that act on mount and unmount.
type MountHook interface {
	OnMount()
	OnUnmount()
}

// ConsumeHook is implemented by fasteners whose targets are consumed while
// the owner is consuming.
type ConsumeHook interface {
	StartConsuming()
	StopConsuming()
}

// Accepts reports whether f may derive from candidate.
func Accepts(f, candidate Fastener) bool {
	if f == nil || candidate == nil || f == candidate {
		return false
	}
	d, ok := f.(Deriver)
	return ok && d.AcceptsInlet(candidate)
}

// Lookup returns the fastener called name on owner, typed as F.
func Lookup[F Fastener](owner Owner, name string) (F, bool) {
	var zero F
	if owner == nil {
		return zero, false
	}
	f, ok := owner.Fasteners().GetLazy(name).(F)
	return f, ok
}

// Slot indexes a fastener inside its owner's Registry.
type Slot int32

const noSlot Slot = -1

// Handle is an index-based reference to a fastener: the owner plus the slot
// the fastener occupies in the owner's registry.
type Handle struct {
	owner Owner
	slot  Slot
}

// Valid reports whether h refers to a slot.
func (h Handle) Valid() bool {
	return h.owner != nil && h.slot >= 0
}

// Fastener resolves h, or returns nil for the zero Handle.
func (h Handle) Fastener() Fastener {
	if !h.Valid() {
		return nil
	}
	return h.owner.Fasteners().At(h.slot)
}

// Option configures a fastener at construction.
type Option func(*Base)

// WithAffinity sets the initial affinity.
func WithAffinity(a Affinity) Option {
	return func(b *Base) { b.affinity = a }
}

// WithInherits makes the fastener bind an inlet when mounted.
func WithInherits(inherits bool) Option {
	return func(b *Base) {
		if inherits {
			b.flags |= Inherits
		} else {
			b.flags &^= Inherits
		}
	}
}

// OnRecohere registers a hook run once per recompute.
func OnRecohere(fn func(f Fastener, t int64)) Option {
	return func(b *Base) { b.onRecohere = fn }
}

// Base carries the state shared by all fasteners. Concrete fasteners embed
// it and call Init from their constructor.
type Base struct {
	self       Fastener
	owner      Owner
	name       string
	slot       Slot
	flags      Flags
	affinity   Affinity
	inlet      Handle
	outlets    []Handle
	onRecohere func(Fastener, int64)
}

// Init binds the base to its concrete fastener and owner. The owner is fixed
// for the fastener's lifetime.
func (b *Base) Init(self Fastener, owner Owner, name string, opts ...Option) {
	if b.owner != nil {
		panic("fastener: " + name + " initialized twice")
	}
	b.self = self
	b.owner = owner
	b.name = name
	b.slot = noSlot
	for _, opt := range opts {
		opt(b)
	}
}

func (b *Base) base() *Base { return b }

func (b *Base) Name() string       { return b.name }
func (b *Base) Owner() Owner       { return b.owner }
func (b *Base) Flags() Flags       { return b.flags }
func (b *Base) Affinity() Affinity { return b.affinity }
func (b *Base) Slot() Slot         { return b.slot }
func (b *Base) Mounted() bool      { return b.flags&Mounted != 0 }
func (b *Base) Derived() bool      { return b.flags&Derived != 0 }
func (b *Base) Decoherent() bool   { return b.flags&Decoherent != 0 }
func (b *Base) Inherits() bool     { return b.flags&Inherits != 0 }

// Handle returns the index-based reference to this fastener.
func (b *Base) Handle() Handle {
	return Handle{owner: b.owner, slot: b.slot}
}

func (b *Base) logger() *slog.Logger {
	return b.owner.Logger().With("fastener", b.name, "owner", b.owner.Key())
}

// Inlet returns the fastener this one derives from, if bound.
func (b *Base) Inlet() Fastener {
	return b.inlet.Fastener()
}

// Outlets returns the fasteners bound to this one as their inlet.
func (b *Base) Outlets() []Fastener {
	out := make([]Fastener, 0, len(b.outlets))
	for _, h := range b.outlets {
		if f := h.Fastener(); f != nil {
			out = append(out, f)
		}
	}
	return out
}

// Mount binds the inlet when inheriting and runs the mount hook.
func (b *Base) Mount() {
	if b.flags&Mounted != 0 {
		return
	}
	b.flags |= Mounted
	if b.flags&Inherits != 0 {
		b.self.BindInlet()
	}
	if h, ok := b.self.(MountHook); ok {
		h.OnMount()
	}
}

// Unmount runs the unmount hook, then severs the inlet and every outlet.
func (b *Base) Unmount() {
	if b.flags&Mounted == 0 {
		return
	}
	if h, ok := b.self.(MountHook); ok {
		h.OnUnmount()
	}
	b.self.UnbindInlet()
	for _, o := range b.Outlets() {
		o.UnbindInlet()
	}
	b.flags &^= Mounted
}

// BindInlet resolves a same-named ancestor fastener through the owner and
// links this fastener as one of its outlets. Resolution happens only here.
func (b *Base) BindInlet() {
	if b.inlet.Valid() || b.slot == noSlot {
		return
	}
	inlet := b.owner.InletFor(b.self)
	if inlet == nil {
		return
	}
	ib := inlet.base()
	if ib.slot == noSlot {
		return
	}
	b.inlet = ib.Handle()
	ib.outlets = append(ib.outlets, b.Handle())
	b.logger().Debug("bound inlet", "inlet_owner", inlet.Owner().Key())
	b.updateDerived()
}

// UnbindInlet severs the inlet link in both directions.
func (b *Base) UnbindInlet() {
	inlet := b.inlet.Fastener()
	if inlet == nil {
		b.inlet = Handle{}
		return
	}
	ib := inlet.base()
	self := b.Handle()
	for i, h := range ib.outlets {
		if h == self {
			ib.outlets = append(ib.outlets[:i], ib.outlets[i+1:]...)
			break
		}
	}
	b.inlet = Handle{}
	b.logger().Debug("unbound inlet")
	b.updateDerived()
}

// SetInherits toggles inlet binding. Enabling it on a mounted fastener
// resolves the inlet immediately.
func (b *Base) SetInherits(inherits bool) {
	if inherits {
		b.flags |= Inherits
		if b.flags&Mounted != 0 {
			b.self.BindInlet()
		}
		return
	}
	b.flags &^= Inherits
	b.self.UnbindInlet()
}

// SetAffinity replaces the affinity and re-evaluates whether the fastener
// is derived.
func (b *Base) SetAffinity(a Affinity) {
	if a == b.affinity {
		return
	}
	b.affinity = a
	b.updateDerived()
}

// MinAffinity raises the affinity to a if a is higher, and reports whether a
// write at affinity a is allowed.
func (b *Base) MinAffinity(a Affinity) bool {
	if a > b.affinity {
		b.SetAffinity(a)
	}
	return a >= b.affinity
}

// SetAuto with true hands control back to the inlet; with false it pins the
// current value at intrinsic affinity.
func (b *Base) SetAuto(auto bool) {
	if auto {
		b.SetAffinity(Inherited)
	} else {
		b.SetAffinity(Intrinsic)
	}
}

func (b *Base) updateDerived() {
	derived := b.inlet.Valid() && b.affinity <= Inherited
	if derived == (b.flags&Derived != 0) {
		return
	}
	if derived {
		b.flags |= Derived
		b.self.Decohere()
	} else {
		b.flags &^= Derived
	}
}

// Decohere marks the fastener stale and queues it on its owner. Repeated
// calls before the next recohere are no-ops.
func (b *Base) Decohere() {
	if b.flags&Decoherent != 0 {
		return
	}
	b.flags |= Decoherent
	b.owner.DecohereFastener(b.self)
}

// Recohere recomputes a decoherent fastener. A derived fastener whose inlet
// is still pending re-queues itself instead of pulling a stale value.
func (b *Base) Recohere(t int64) {
	if b.flags&Decoherent == 0 {
		return
	}
	b.flags &^= Decoherent
	if b.flags&Derived != 0 {
		inlet := b.inlet.Fastener()
		if inlet != nil && inlet.Decoherent() {
			b.logger().Debug("inlet pending, requeued")
			b.self.Decohere()
			return
		}
		if d, ok := b.self.(Deriver); ok && inlet != nil {
			d.DeriveFrom(inlet)
		}
	}
	if b.onRecohere != nil {
		b.onRecohere(b.self, t)
	}
}

// DecohereOutlets propagates a change downstream. An outlet that is not
// derived is promoted when this fastener's affinity, capped at intrinsic,
// dominates the outlet's.
func (b *Base) DecohereOutlets() {
	capped := min(b.affinity, Intrinsic)
	for _, o := range b.Outlets() {
		ob := o.base()
		if ob.flags&Derived == 0 {
			if capped >= ob.affinity {
				ob.affinity = Inherited
				ob.updateDerived()
			}
			continue
		}
		o.Decohere()
	}
}
