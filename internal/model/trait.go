package model

import (
	"fmt"
	"log/slog"

	"github.com/agentic-research/fastener/internal/fastener"
)

// Trait is a behaviour attached to at most one model. Traits declare
// fasteners like models do, but own no children.
type Trait struct {
	core
	model      *Model
	prev, next *Trait
}

// NewTrait returns a detached trait declaring class's fasteners.
func NewTrait(class *Class, opts ...Option) *Trait {
	t := &Trait{}
	t.init(t, class, opts)
	return t
}

func (t *Trait) Model() *Model         { return t.model }
func (t *Trait) NextTrait() *Trait     { return t.next }
func (t *Trait) PreviousTrait() *Trait { return t.prev }

// Logger returns the trait's logger, falling back to its model's.
func (t *Trait) Logger() *slog.Logger {
	if t.logger != nil {
		return t.logger
	}
	if t.model != nil {
		return t.model.Logger()
	}
	return slog.Default()
}

// SetKey renames a detached trait.
func (t *Trait) SetKey(key string) error {
	if t.model != nil {
		return fmt.Errorf("set key %q: %w", key, ErrAttached)
	}
	t.key = key
	return nil
}

// Remove detaches t from its model.
func (t *Trait) Remove() {
	if t.model != nil {
		t.model.RemoveTrait(t)
	}
}

// Mount mounts a detached trait.
func (t *Trait) Mount() error {
	if t.model != nil {
		return fmt.Errorf("mount trait %s: %w", t.autoKey(), ErrAttached)
	}
	if t.Mounted() {
		return fmt.Errorf("mount trait %s: %w", t.autoKey(), ErrAlreadyMounted)
	}
	t.mountTree()
	return nil
}

// Unmount unmounts a detached trait.
func (t *Trait) Unmount() error {
	if t.model != nil {
		return fmt.Errorf("unmount trait %s: %w", t.autoKey(), ErrAttached)
	}
	if !t.Mounted() {
		return fmt.Errorf("unmount trait %s: %w", t.autoKey(), ErrNotMounted)
	}
	t.unmountTree()
	return nil
}

func (t *Trait) mountTree() {
	t.mountCore()
	t.mountDone()
}

func (t *Trait) unmountTree() {
	t.unmountBegin()
	t.unmountCore()
}

// attachModel binds the trait's own relations against its new model's
// existing children and sibling traits.
func (t *Trait) attachModel() {
	m := t.model
	for c := m.firstChild; c != nil; c = c.next {
		eachBinder(t.fasteners, func(b ChildBinder) { b.BindChild(c, nil) })
	}
	for tr := m.firstTrait; tr != nil; tr = tr.next {
		if tr != t {
			eachBinder(t.fasteners, func(b TraitBinder) { b.BindTrait(tr, nil) })
		}
	}
}

func (t *Trait) detachModel() {
	m := t.model
	for c := m.lastChild; c != nil; c = c.prev {
		eachBinder(t.fasteners, func(b ChildBinder) { b.UnbindChild(c) })
	}
	for tr := m.lastTrait; tr != nil; tr = tr.prev {
		if tr != t {
			eachBinder(t.fasteners, func(b TraitBinder) { b.UnbindTrait(tr) })
		}
	}
}

// InletFor resolves f through traits of the same class on the model's
// ancestors, nearest ancestor first and in trait order.
func (t *Trait) InletFor(f fastener.Fastener) fastener.Fastener {
	if t.model == nil {
		return nil
	}
	for p := t.model.parent; p != nil; p = p.parent {
		for tr := p.firstTrait; tr != nil; tr = tr.next {
			if tr.class != t.class {
				continue
			}
			if c := tr.fasteners.GetLazy(f.Name()); fastener.Accepts(f, c) {
				return c
			}
		}
	}
	return nil
}

// RequireUpdate records flags on t and forwards them to its model.
func (t *Trait) RequireUpdate(flags fastener.UpdateFlags) {
	t.update |= flags
	if t.model != nil {
		t.model.requireTraitUpdate(flags)
	}
}

// RecohereFasteners flushes a detached trait's decoherent fasteners.
// Attached traits are flushed by their model.
func (t *Trait) RecohereFasteners(now int64) int {
	t.update = 0
	return t.fasteners.Recohere(now)
}
