package relation

import (
	"github.com/agentic-research/fastener/internal/fastener"
	"github.com/agentic-research/fastener/internal/model"
)

// Ref is a relation holding at most one target.
type Ref[T model.Node] struct {
	engine[T]
	target  T
	present bool
}

// NewRef returns a ref relation declared on owner.
func NewRef[T model.Node](owner fastener.Owner, name string, cfg Config[T]) *Ref[T] {
	r := &Ref[T]{}
	r.cfg = cfg
	r.Init(r, owner, name, cfg.options()...)
	return r
}

// RefDescriptor declares a ref relation on an owner class.
func RefDescriptor[T model.Node](name string, cfg Config[T]) fastener.Descriptor {
	return fastener.Descriptor{
		Name: name,
		Kind: "ref",
		New: func(owner fastener.Owner) fastener.Fastener {
			return NewRef(owner, name, cfg)
		},
	}
}

// Target returns the target, or the zero T.
func (r *Ref[T]) Target() T {
	return r.target
}

// HasTarget reports whether a target is attached.
func (r *Ref[T]) HasTarget() bool {
	return r.present
}

// GetTarget returns the target or an *fastener.AbsentError naming the ref.
func (r *Ref[T]) GetTarget() (T, error) {
	if !r.present {
		var zero T
		return zero, &fastener.AbsentError{Fastener: r.Name()}
	}
	return r.target, nil
}

// TargetOr returns the target, or def when absent.
func (r *Ref[T]) TargetOr(def T) T {
	if !r.present {
		return def
	}
	return r.target
}

// Attach adopts t without touching the tree and returns it. A previous
// target is detached first. Attaching the zero T detaches.
func (r *Ref[T]) Attach(t T) T {
	r.attach(t)
	return r.target
}

// Detach releases the target without touching the tree and returns it.
func (r *Ref[T]) Detach() T {
	return r.detach()
}

// SetTarget attaches t at extrinsic affinity and returns the previous
// target.
func (r *Ref[T]) SetTarget(t T) T {
	old := r.target
	r.SetTargetWithAffinity(t, fastener.Extrinsic)
	return old
}

// SetTargetWithAffinity attaches t if a dominates the ref's affinity.
func (r *Ref[T]) SetTargetWithAffinity(t T, a fastener.Affinity) bool {
	if !r.MinAffinity(a) {
		return false
	}
	r.attach(t)
	return true
}

// ClearTarget explicitly detaches the target.
func (r *Ref[T]) ClearTarget() {
	var zero T
	r.SetTargetWithAffinity(zero, fastener.Extrinsic)
}

func (r *Ref[T]) attach(t T) {
	if isZero(t) {
		r.detach()
		return
	}
	if r.present && same(r.target, t) {
		return
	}
	r.detach()
	r.willAttach(t)
	r.target, r.present = t, true
	r.didAttach(r, t)
	r.DecohereOutlets()
}

func (r *Ref[T]) detach() T {
	var zero T
	if !r.present {
		return zero
	}
	old := r.target
	r.willDetach(r, old)
	r.target, r.present = zero, false
	r.didDetach(old)
	r.DecohereOutlets()
	return old
}

// Insert attaches t and inserts it into the owning model under key. A
// different current target is deleted first. Nothing changes when the
// insert would fail.
func (r *Ref[T]) Insert(t T, key string) error {
	m, err := r.ownerModel()
	if err != nil {
		return err
	}
	var replacing model.Node
	if r.present && !same(r.target, t) {
		replacing = r.target
	}
	if err := checkInsert(m, t, replacing, key); err != nil {
		return err
	}
	if replacing != nil {
		r.Delete()
	}
	if err := rekey(t, key); err != nil {
		return err
	}
	r.attach(t)
	if inModel(t, m) {
		return nil
	}
	if err := insertNode(m, t, nil); err != nil {
		r.detach()
		return err
	}
	return nil
}

// Remove takes the target out of the tree and returns it. The ref keeps it
// unless a binding detaches it.
func (r *Ref[T]) Remove() T {
	if !r.present {
		var zero T
		return zero
	}
	t := r.target
	t.Remove()
	return t
}

// Delete detaches the target and removes it from the tree.
func (r *Ref[T]) Delete() T {
	t := r.detach()
	if !isZero(t) {
		t.Remove()
	}
	return t
}

// Create builds a new target without attaching it.
func (r *Ref[T]) Create() (T, error) {
	return r.create()
}

// InsertNew creates a target and inserts it under key.
func (r *Ref[T]) InsertNew(key string) (T, error) {
	t, err := r.create()
	if err != nil {
		return t, err
	}
	if err := r.Insert(t, key); err != nil {
		return t, err
	}
	return t, nil
}

func (r *Ref[T]) bind(n model.Node) {
	if !r.cfg.Binds || r.present {
		return
	}
	if t, ok := r.cfg.detect(n); ok {
		r.attach(t)
	}
}

func (r *Ref[T]) unbind(n model.Node) {
	if !r.cfg.Binds || !r.present || r.target.UID() != n.UID() {
		return
	}
	r.detach()
}

func (r *Ref[T]) BindChild(child, _ *model.Model) { r.bind(child) }
func (r *Ref[T]) UnbindChild(child *model.Model)  { r.unbind(child) }
func (r *Ref[T]) BindTrait(trait, _ *model.Trait) { r.bind(trait) }
func (r *Ref[T]) UnbindTrait(trait *model.Trait)  { r.unbind(trait) }

// OnMount binds the ref against the model's existing children and traits.
func (r *Ref[T]) OnMount() {
	if r.cfg.Binds {
		r.eachCandidate(r.bind)
	}
}

func (r *Ref[T]) OnUnmount() {}

func (r *Ref[T]) StartConsuming() {
	if !r.cfg.Consumes || r.consuming {
		return
	}
	r.consuming = true
	if r.present {
		r.target.Consume(r)
	}
}

func (r *Ref[T]) StopConsuming() {
	if !r.consuming {
		return
	}
	r.consuming = false
	if r.present {
		r.target.Unconsume(r)
	}
}

// AcceptsInlet reports whether inlet is a ref of the same target type.
func (r *Ref[T]) AcceptsInlet(inlet fastener.Fastener) bool {
	_, ok := inlet.(*Ref[T])
	return ok
}

// DeriveFrom mirrors the inlet's target.
func (r *Ref[T]) DeriveFrom(inlet fastener.Fastener) {
	src, ok := inlet.(*Ref[T])
	if !ok {
		return
	}
	if src.present {
		r.attach(src.target)
	} else {
		r.detach()
	}
}
