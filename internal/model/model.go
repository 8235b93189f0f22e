package model

import (
	"fmt"
	"log/slog"

	"github.com/agentic-research/fastener/internal/fastener"
)

// Model is a node of the ownership tree. A model owns its children and its
// traits; the parent link is a back-reference.
type Model struct {
	core

	parent     *Model
	prev, next *Model
	firstChild *Model
	lastChild  *Model
	children   map[string]*Model
	childCount int

	firstTrait *Trait
	lastTrait  *Trait
	traits     map[string]*Trait
	traitCount int

	host        UpdateHost
	recohering  bool
	traitUpdate fastener.UpdateFlags
	// subtree accumulates update flags of this model and its descendants.
	subtree fastener.UpdateFlags
}

// New returns an unmounted model declaring class's fasteners. class may be
// nil.
func New(class *Class, opts ...Option) *Model {
	m := &Model{
		children: make(map[string]*Model),
		traits:   make(map[string]*Trait),
	}
	m.init(m, class, opts)
	return m
}

func (m *Model) Parent() *Model          { return m.parent }
func (m *Model) FirstChild() *Model      { return m.firstChild }
func (m *Model) LastChild() *Model       { return m.lastChild }
func (m *Model) NextSibling() *Model     { return m.next }
func (m *Model) PreviousSibling() *Model { return m.prev }
func (m *Model) ChildCount() int         { return m.childCount }
func (m *Model) FirstTrait() *Trait      { return m.firstTrait }
func (m *Model) LastTrait() *Trait       { return m.lastTrait }
func (m *Model) TraitCount() int         { return m.traitCount }

// Root returns the topmost ancestor, or m itself.
func (m *Model) Root() *Model {
	r := m
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Logger returns the model's logger, falling back to its parent's and then
// to slog.Default.
func (m *Model) Logger() *slog.Logger {
	for n := m; n != nil; n = n.parent {
		if n.logger != nil {
			return n.logger
		}
	}
	return slog.Default()
}

// Children returns the children in sibling order.
func (m *Model) Children() []*Model {
	out := make([]*Model, 0, m.childCount)
	for c := m.firstChild; c != nil; c = c.next {
		out = append(out, c)
	}
	return out
}

// GetChild returns the child with key, or nil.
func (m *Model) GetChild(key string) *Model {
	return m.children[key]
}

// AppendChild inserts child at the tail.
func (m *Model) AppendChild(child *Model, key string) error {
	return m.InsertChild(child, nil, key)
}

// InsertChild inserts child before target, or at the tail when target is
// nil. An empty key keeps the child's key or generates one. A child attached
// elsewhere is removed from its old parent first.
func (m *Model) InsertChild(child, target *Model, key string) error {
	for p := m; p != nil; p = p.parent {
		if p == child {
			return fmt.Errorf("insert %s under %s: %w", child.autoKey(), m.autoKey(), ErrCycle)
		}
	}
	if target == child {
		target = child.next
	}
	if target != nil && target.parent != m {
		return fmt.Errorf("insert %s before %s: %w", child.autoKey(), target.autoKey(), ErrNotChild)
	}
	if key == "" {
		key = child.autoKey()
	}
	if existing := m.children[key]; existing != nil && existing != child {
		return fmt.Errorf("insert %q: %w", key, ErrKeyCollision)
	}
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}

	child.flags |= flagInserting
	defer func() { child.flags &^= flagInserting }()
	m.eachObserver(func(o any) {
		if co, ok := o.(ChildObserver); ok {
			co.WillInsertChild(m, child)
		}
	})

	child.key = key
	m.linkChild(child, target)

	m.bindChild(child, target)
	if child.subtree != 0 {
		m.propagate(child.subtree)
	}
	if m.Mounted() {
		child.mountTree()
	}
	m.eachObserver(func(o any) {
		if co, ok := o.(ChildObserver); ok {
			co.DidInsertChild(m, child)
		}
	})
	return nil
}

func (m *Model) linkChild(child, target *Model) {
	child.parent = m
	if target == nil {
		child.prev = m.lastChild
		if m.lastChild != nil {
			m.lastChild.next = child
		} else {
			m.firstChild = child
		}
		m.lastChild = child
	} else {
		child.prev = target.prev
		child.next = target
		if target.prev != nil {
			target.prev.next = child
		} else {
			m.firstChild = child
		}
		target.prev = child
	}
	m.children[child.key] = child
	m.childCount++
}

func (m *Model) unlinkChild(child *Model) {
	if child.prev != nil {
		child.prev.next = child.next
	} else {
		m.firstChild = child.next
	}
	if child.next != nil {
		child.next.prev = child.prev
	} else {
		m.lastChild = child.prev
	}
	child.prev, child.next, child.parent = nil, nil, nil
	delete(m.children, child.key)
	m.childCount--
}

// bindChild runs the binding protocol for child on the model's fasteners
// and on every trait's fasteners.
func (m *Model) bindChild(child, target *Model) {
	eachBinder(m.fasteners, func(b ChildBinder) { b.BindChild(child, target) })
	for t := m.firstTrait; t != nil; t = t.next {
		eachBinder(t.fasteners, func(b ChildBinder) { b.BindChild(child, target) })
	}
}

func (m *Model) unbindChild(child *Model) {
	eachBinder(m.fasteners, func(b ChildBinder) { b.UnbindChild(child) })
	for t := m.firstTrait; t != nil; t = t.next {
		eachBinder(t.fasteners, func(b ChildBinder) { b.UnbindChild(child) })
	}
}

// RemoveChild detaches child and returns it, or returns nil if child is not
// a child of m. A mounted child is unmounted first.
func (m *Model) RemoveChild(child *Model) *Model {
	if child == nil || child.parent != m {
		return nil
	}
	child.flags |= flagRemoving
	defer func() { child.flags &^= flagRemoving }()
	m.eachObserver(func(o any) {
		if co, ok := o.(ChildObserver); ok {
			co.WillRemoveChild(m, child)
		}
	})
	if child.Mounted() {
		child.unmountTree()
	}
	m.unbindChild(child)
	m.unlinkChild(child)
	m.eachObserver(func(o any) {
		if co, ok := o.(ChildObserver); ok {
			co.DidRemoveChild(m, child)
		}
	})
	return child
}

// RemoveChildKey removes the child with key.
func (m *Model) RemoveChildKey(key string) *Model {
	return m.RemoveChild(m.children[key])
}

// SetKey renames a detached model.
func (m *Model) SetKey(key string) error {
	if m.parent != nil {
		return fmt.Errorf("set key %q: %w", key, ErrAttached)
	}
	m.key = key
	return nil
}

// Remove detaches m from its parent.
func (m *Model) Remove() {
	if m.parent != nil {
		m.parent.RemoveChild(m)
	}
}

// Traits returns the traits in trait order.
func (m *Model) Traits() []*Trait {
	out := make([]*Trait, 0, m.traitCount)
	for t := m.firstTrait; t != nil; t = t.next {
		out = append(out, t)
	}
	return out
}

// GetTrait returns the trait with key, or nil.
func (m *Model) GetTrait(key string) *Trait {
	return m.traits[key]
}

// FindTrait returns the first trait of class, or nil.
func (m *Model) FindTrait(class *Class) *Trait {
	for t := m.firstTrait; t != nil; t = t.next {
		if t.class == class {
			return t
		}
	}
	return nil
}

// AppendTrait inserts trait at the tail of the trait list.
func (m *Model) AppendTrait(trait *Trait, key string) error {
	return m.InsertTrait(trait, nil, key)
}

// InsertTrait inserts trait before target, or at the tail when target is
// nil. Keys follow the same rules as InsertChild.
func (m *Model) InsertTrait(trait, target *Trait, key string) error {
	if target == trait {
		target = trait.next
	}
	if target != nil && target.model != m {
		return fmt.Errorf("insert trait %s before %s: %w", trait.autoKey(), target.autoKey(), ErrNotChild)
	}
	if key == "" {
		key = trait.autoKey()
	}
	if existing := m.traits[key]; existing != nil && existing != trait {
		return fmt.Errorf("insert trait %q: %w", key, ErrKeyCollision)
	}
	if trait.model != nil {
		trait.model.RemoveTrait(trait)
	}

	trait.flags |= flagInserting
	defer func() { trait.flags &^= flagInserting }()
	m.eachObserver(func(o any) {
		if to, ok := o.(TraitObserver); ok {
			to.WillInsertTrait(m, trait)
		}
	})

	trait.key = key
	m.linkTrait(trait, target)

	eachBinder(m.fasteners, func(b TraitBinder) { b.BindTrait(trait, target) })
	for t := m.firstTrait; t != nil; t = t.next {
		if t != trait {
			eachBinder(t.fasteners, func(b TraitBinder) { b.BindTrait(trait, target) })
		}
	}
	trait.attachModel()

	if trait.update != 0 {
		m.traitUpdate |= trait.update
		m.propagate(trait.update)
	}
	if m.Mounted() {
		trait.mountTree()
	}
	m.eachObserver(func(o any) {
		if to, ok := o.(TraitObserver); ok {
			to.DidInsertTrait(m, trait)
		}
	})
	return nil
}

func (m *Model) linkTrait(trait, target *Trait) {
	trait.model = m
	if target == nil {
		trait.prev = m.lastTrait
		if m.lastTrait != nil {
			m.lastTrait.next = trait
		} else {
			m.firstTrait = trait
		}
		m.lastTrait = trait
	} else {
		trait.prev = target.prev
		trait.next = target
		if target.prev != nil {
			target.prev.next = trait
		} else {
			m.firstTrait = trait
		}
		target.prev = trait
	}
	m.traits[trait.key] = trait
	m.traitCount++
}

func (m *Model) unlinkTrait(trait *Trait) {
	if trait.prev != nil {
		trait.prev.next = trait.next
	} else {
		m.firstTrait = trait.next
	}
	if trait.next != nil {
		trait.next.prev = trait.prev
	} else {
		m.lastTrait = trait.prev
	}
	trait.prev, trait.next, trait.model = nil, nil, nil
	delete(m.traits, trait.key)
	m.traitCount--
}

// RemoveTrait detaches trait and returns it, or nil if trait does not belong
// to m.
func (m *Model) RemoveTrait(trait *Trait) *Trait {
	if trait == nil || trait.model != m {
		return nil
	}
	trait.flags |= flagRemoving
	defer func() { trait.flags &^= flagRemoving }()
	m.eachObserver(func(o any) {
		if to, ok := o.(TraitObserver); ok {
			to.WillRemoveTrait(m, trait)
		}
	})
	if trait.Mounted() {
		trait.unmountTree()
	}
	eachBinder(m.fasteners, func(b TraitBinder) { b.UnbindTrait(trait) })
	for t := m.firstTrait; t != nil; t = t.next {
		if t != trait {
			eachBinder(t.fasteners, func(b TraitBinder) { b.UnbindTrait(trait) })
		}
	}
	trait.detachModel()
	m.unlinkTrait(trait)
	m.eachObserver(func(o any) {
		if to, ok := o.(TraitObserver); ok {
			to.DidRemoveTrait(m, trait)
		}
	})
	return trait
}

// RemoveTraitKey removes the trait with key.
func (m *Model) RemoveTraitKey(key string) *Trait {
	return m.RemoveTrait(m.traits[key])
}

// Mount mounts a root model and its whole subtree.
func (m *Model) Mount() error {
	if m.parent != nil {
		return fmt.Errorf("mount %s: %w", m.autoKey(), ErrAttached)
	}
	if m.Mounted() {
		return fmt.Errorf("mount %s: %w", m.autoKey(), ErrAlreadyMounted)
	}
	m.mountTree()
	return nil
}

// Unmount unmounts a root model and its whole subtree.
func (m *Model) Unmount() error {
	if m.parent != nil {
		return fmt.Errorf("unmount %s: %w", m.autoKey(), ErrAttached)
	}
	if !m.Mounted() {
		return fmt.Errorf("unmount %s: %w", m.autoKey(), ErrNotMounted)
	}
	m.unmountTree()
	return nil
}

// mountTree mounts the model's fasteners, then its traits, then its
// children, so descendants can bind inlets against mounted ancestors.
func (m *Model) mountTree() {
	m.mountCore()
	for t := m.firstTrait; t != nil; t = t.next {
		t.mountTree()
	}
	for c := m.firstChild; c != nil; c = c.next {
		c.mountTree()
	}
	m.mountDone()
}

func (m *Model) unmountTree() {
	m.unmountBegin()
	for c := m.lastChild; c != nil; c = c.prev {
		c.unmountTree()
	}
	for t := m.lastTrait; t != nil; t = t.prev {
		t.unmountTree()
	}
	m.unmountCore()
}

// InletFor resolves the nearest ancestor fastener with f's name that f
// accepts as its inlet.
func (m *Model) InletFor(f fastener.Fastener) fastener.Fastener {
	for p := m.parent; p != nil; p = p.parent {
		if c := p.fasteners.GetLazy(f.Name()); fastener.Accepts(f, c) {
			return c
		}
	}
	return nil
}

// SetUpdateHost installs the scheduler that receives update requests from
// this root.
func (m *Model) SetUpdateHost(h UpdateHost) {
	m.host = h
}

// RequireUpdate records flags on m and propagates them towards the root. A
// mounted root forwards the request to its update host.
func (m *Model) RequireUpdate(flags fastener.UpdateFlags) {
	m.update |= flags
	m.propagate(flags)
}

func (m *Model) requireTraitUpdate(flags fastener.UpdateFlags) {
	m.traitUpdate |= flags
	m.propagate(flags)
}

func (m *Model) propagate(flags fastener.UpdateFlags) {
	n := m
	for {
		n.subtree |= flags
		if n.parent == nil {
			break
		}
		n = n.parent
	}
	if n.Mounted() && n.host != nil && !n.recohering {
		n.host.RequireUpdate(n, flags)
	}
}

// NeedsUpdate reports whether m or a descendant has pending update flags.
func (m *Model) NeedsUpdate() bool {
	return m.subtree != 0
}

// RecohereFasteners flushes decoherent fasteners top-down: the model's own,
// then its traits', then flagged children. It returns the number of
// fasteners recohered. Work queued below a fastener during the same flush
// is picked up by it; only what remains afterwards is requested from the
// update host.
func (m *Model) RecohereFasteners(t int64) int {
	if m.parent != nil || m.recohering {
		return m.recohere(t)
	}
	m.recohering = true
	n := m.recohere(t)
	m.recohering = false
	if m.subtree != 0 && m.Mounted() && m.host != nil {
		m.host.RequireUpdate(m, m.subtree)
	}
	return n
}

func (m *Model) recohere(t int64) int {
	if m.subtree == 0 {
		return 0
	}
	m.subtree = 0
	n := 0
	if m.update != 0 {
		m.update = 0
		n += m.fasteners.Recohere(t)
	}
	if m.traitUpdate != 0 {
		m.traitUpdate = 0
		for tr := m.firstTrait; tr != nil; tr = tr.next {
			if tr.update != 0 {
				tr.update = 0
				n += tr.fasteners.Recohere(t)
			}
		}
	}
	var rest fastener.UpdateFlags
	for c := m.firstChild; c != nil; c = c.next {
		if c.subtree != 0 {
			n += c.recohere(t)
		}
		rest |= c.subtree
	}
	m.subtree = rest | m.update | m.traitUpdate
	return n
}
