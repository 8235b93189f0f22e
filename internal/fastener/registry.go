package fastener

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"
)

// Descriptor declares a fastener on an owner class: its name, kind and the
// factory that instantiates it for a concrete owner.
type Descriptor struct {
	Name string
	Kind string
	// Lazy descriptors are instantiated on first GetLazy instead of at
	// owner construction.
	Lazy bool
	New  func(owner Owner) Fastener
}

// Registry is an owner's fastener context: the arena of fastener slots, the
// name index and the set of decoherent slots awaiting the next pass.
type Registry struct {
	owner      Owner
	slots      []Fastener
	names      map[string]Slot
	lazy       map[string]Descriptor
	decoherent *roaring.Bitmap
}

// NewRegistry returns an empty registry for owner.
func NewRegistry(owner Owner) *Registry {
	return &Registry{
		owner:      owner,
		names:      make(map[string]Slot),
		lazy:       make(map[string]Descriptor),
		decoherent: roaring.New(),
	}
}

// Declare instantiates eager descriptors and records lazy ones.
func (r *Registry) Declare(descriptors ...Descriptor) error {
	for _, d := range descriptors {
		if d.New == nil {
			return fmt.Errorf("declare %s: descriptor has no factory", d.Name)
		}
		if d.Lazy {
			r.lazy[d.Name] = d
			continue
		}
		if err := r.Set(d.New(r.owner)); err != nil {
			return fmt.Errorf("declare %s: %w", d.Name, err)
		}
	}
	return nil
}

// Has reports whether a fastener called name exists or is declared lazily.
func (r *Registry) Has(name string) bool {
	if _, ok := r.names[name]; ok {
		return true
	}
	_, ok := r.lazy[name]
	return ok
}

// Get returns the instantiated fastener called name, or nil.
func (r *Registry) Get(name string) Fastener {
	s, ok := r.names[name]
	if !ok {
		return nil
	}
	return r.slots[s]
}

// GetLazy returns the fastener called name, instantiating a lazy descriptor
// on first use.
func (r *Registry) GetLazy(name string) Fastener {
	if f := r.Get(name); f != nil {
		return f
	}
	d, ok := r.lazy[name]
	if !ok {
		return nil
	}
	delete(r.lazy, name)
	f := d.New(r.owner)
	if err := r.Set(f); err != nil {
		r.owner.Logger().Error("lazy fastener rejected", "fastener", name, "error", err)
		return nil
	}
	return f
}

// Set installs f under its name. A fastener already registered under that
// name is unmounted and its slot reused. f is mounted, and starts consuming,
// to match the owner's current state.
func (r *Registry) Set(f Fastener) error {
	if f.Owner() != r.owner {
		return fmt.Errorf("set %s: %w", f.Name(), ErrForeignOwner)
	}
	b := f.base()
	if s, ok := r.names[f.Name()]; ok {
		old := r.slots[s]
		if old == f {
			return nil
		}
		if h, ok := old.(ConsumeHook); ok && r.owner.Consuming() {
			h.StopConsuming()
		}
		old.Unmount()
		r.decoherent.Remove(uint32(s))
		old.base().slot = noSlot
		r.slots[s] = f
		b.slot = s
	} else {
		b.slot = Slot(len(r.slots))
		r.slots = append(r.slots, f)
		r.names[f.Name()] = b.slot
	}
	delete(r.lazy, f.Name())
	if b.flags&Decoherent != 0 {
		r.owner.DecohereFastener(f)
	}
	if r.owner.Mounted() {
		f.Mount()
	}
	if h, ok := f.(ConsumeHook); ok && r.owner.Consuming() {
		h.StartConsuming()
	}
	return nil
}

// At returns the fastener occupying slot s, or nil.
func (r *Registry) At(s Slot) Fastener {
	if s < 0 || int(s) >= len(r.slots) {
		return nil
	}
	return r.slots[s]
}

// Len returns the number of instantiated fasteners.
func (r *Registry) Len() int {
	return len(r.slots)
}

// Each calls fn for every instantiated fastener in slot order. Fasteners
// added by fn are not visited.
func (r *Registry) Each(fn func(Fastener)) {
	n := len(r.slots)
	for i := 0; i < n; i++ {
		fn(r.slots[i])
	}
}

// Mount mounts every fastener in slot order.
func (r *Registry) Mount() {
	r.Each(func(f Fastener) { f.Mount() })
}

// Unmount unmounts every fastener in reverse slot order.
func (r *Registry) Unmount() {
	for i := len(r.slots) - 1; i >= 0; i-- {
		r.slots[i].Unmount()
	}
}

// StartConsuming forwards to every ConsumeHook fastener.
func (r *Registry) StartConsuming() {
	r.Each(func(f Fastener) {
		if h, ok := f.(ConsumeHook); ok {
			h.StartConsuming()
		}
	})
}

// StopConsuming forwards to every ConsumeHook fastener.
func (r *Registry) StopConsuming() {
	r.Each(func(f Fastener) {
		if h, ok := f.(ConsumeHook); ok {
			h.StopConsuming()
		}
	})
}

// Decohere adds f to the decoherent set and reports whether it was newly
// added.
func (r *Registry) Decohere(f Fastener) bool {
	s := f.base().slot
	if s == noSlot || r.At(s) != f {
		return false
	}
	return r.decoherent.CheckedAdd(uint32(s))
}

// Pending reports whether any fastener awaits recoherence.
func (r *Registry) Pending() bool {
	return !r.decoherent.IsEmpty()
}

// Recohere flushes the decoherent set in slot order and returns how many
// fasteners were visited. Fasteners decohered during the flush are queued
// for the next pass.
func (r *Registry) Recohere(t int64) int {
	if r.decoherent.IsEmpty() {
		return 0
	}
	pending := r.decoherent
	r.decoherent = roaring.New()
	n := 0
	it := pending.Iterator()
	for it.HasNext() {
		if f := r.At(Slot(it.Next())); f != nil {
			f.Recohere(t)
			n++
		}
	}
	return n
}
