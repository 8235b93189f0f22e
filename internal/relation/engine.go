// Package relation implements fasteners that target models and traits: Ref
// holds at most one target, Set holds a collection keyed by target UID. Both
// are driven by one engine configured with a Config.
package relation

import (
	"fmt"

	"github.com/agentic-research/fastener/internal/fastener"
	"github.com/agentic-research/fastener/internal/model"
)

// engine carries the behaviour Ref and Set share: detection, the attach and
// detach hook sequences, consumption and tree mutation.
type engine[T model.Node] struct {
	fastener.Base
	cfg       Config[T]
	consuming bool
}

// Config returns the relation's configuration.
func (e *engine[T]) Config() Config[T] {
	return e.cfg
}

func (e *engine[T]) observer(rel any) any {
	if e.cfg.Observer != nil {
		return e.cfg.Observer
	}
	return rel
}

func (e *engine[T]) node() model.Node {
	n, _ := e.Owner().(model.Node)
	return n
}

// ownerModel is the model the relation mutates: the owner itself, or the
// model a trait owner is attached to.
func (e *engine[T]) ownerModel() (*model.Model, error) {
	switch o := e.Owner().(type) {
	case *model.Model:
		return o, nil
	case *model.Trait:
		if m := o.Model(); m != nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", e.Name(), ErrNoModel)
}

// willAttach and didAttach bracket the storage update of an attach; rel is
// the concrete relation registered on the target.
func (e *engine[T]) willAttach(t T) {
	call(e.cfg.WillAttach, t)
}

func (e *engine[T]) didAttach(rel any, t T) {
	if e.cfg.Observes {
		t.Observe(e.observer(rel))
	}
	if e.consuming {
		t.Consume(rel)
	}
	call(e.cfg.Init, t)
	call(e.cfg.DidAttach, t)
	e.Owner().Logger().Debug("attached", "relation", e.Name(), "target", t.Key())
}

func (e *engine[T]) willDetach(rel any, t T) {
	call(e.cfg.WillDetach, t)
	if e.consuming {
		t.Unconsume(rel)
	}
	if e.cfg.Observes {
		t.Unobserve(e.observer(rel))
	}
}

func (e *engine[T]) didDetach(t T) {
	call(e.cfg.Deinit, t)
	call(e.cfg.DidDetach, t)
	e.Owner().Logger().Debug("detached", "relation", e.Name(), "target", t.Key())
}

// create builds a fresh target from the factory or the configured class.
func (e *engine[T]) create() (T, error) {
	var zero T
	if e.cfg.Create != nil {
		return e.cfg.Create(), nil
	}
	if e.cfg.Class != nil {
		switch any(zero).(type) {
		case *model.Model:
			return any(model.New(e.cfg.Class)).(T), nil
		case *model.Trait:
			return any(model.NewTrait(e.cfg.Class)).(T), nil
		}
	}
	return zero, fmt.Errorf("create %s: %w", e.Name(), ErrNoFactory)
}

// eachCandidate visits the owning model's children and traits, skipping
// the owner itself.
func (e *engine[T]) eachCandidate(fn func(n model.Node)) {
	m, err := e.ownerModel()
	if err != nil {
		return
	}
	self := e.node()
	for c := m.FirstChild(); c != nil; c = c.NextSibling() {
		fn(c)
	}
	for t := m.FirstTrait(); t != nil; t = t.NextTrait() {
		if model.Node(t) != self {
			fn(t)
		}
	}
}

// insertNode places t in m before the tree node before, or at the tail.
func insertNode[T model.Node](m *model.Model, t T, before model.Node) error {
	switch n := any(t).(type) {
	case *model.Model:
		bm, _ := before.(*model.Model)
		return m.InsertChild(n, bm, "")
	case *model.Trait:
		bt, _ := before.(*model.Trait)
		return m.InsertTrait(n, bt, "")
	}
	return fmt.Errorf("insert %s: %w", t.Key(), ErrNotInsertable)
}

// rekey renames t before insertion. An attached node is removed first.
func rekey(t model.Node, key string) error {
	if key == "" || t.Key() == key {
		return nil
	}
	t.Remove()
	return t.SetKey(key)
}

// checkInsert reports the error inserting n into m under key would fail
// with, before anything is detached. The key may be held by replacing,
// which the caller deletes first.
func checkInsert(m *model.Model, n, replacing model.Node, key string) error {
	if key == "" {
		key = n.Key()
	}
	var existing model.Node
	switch v := n.(type) {
	case *model.Model:
		for p := m; p != nil; p = p.Parent() {
			if p == v {
				return fmt.Errorf("insert %s under %s: %w", key, m.Key(), model.ErrCycle)
			}
		}
		if c := m.GetChild(key); c != nil {
			existing = c
		}
	case *model.Trait:
		if tr := m.GetTrait(key); tr != nil {
			existing = tr
		}
	default:
		return fmt.Errorf("insert %s: %w", key, ErrNotInsertable)
	}
	if key == "" || existing == nil || existing.UID() == n.UID() {
		return nil
	}
	if replacing != nil && existing.UID() == replacing.UID() {
		return nil
	}
	return fmt.Errorf("insert %q: %w", key, model.ErrKeyCollision)
}

// inModel reports whether n is a child or trait of m.
func inModel(n model.Node, m *model.Model) bool {
	switch v := n.(type) {
	case *model.Model:
		return v.Parent() == m
	case *model.Trait:
		return v.Model() == m
	}
	return false
}

func isZero[T model.Node](t T) bool {
	var zero T
	return any(t) == any(zero)
}

func same[T model.Node](a, b T) bool {
	if isZero(a) || isZero(b) {
		return isZero(a) && isZero(b)
	}
	return a.UID() == b.UID()
}
