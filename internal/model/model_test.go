package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/fastener/internal/fastener"
)

// recorder is a binder fastener that logs binding events.
type recorder struct {
	fastener.Base
	events []string
}

func recorderDescriptor(name string) fastener.Descriptor {
	return fastener.Descriptor{Name: name, Kind: "recorder", New: func(owner fastener.Owner) fastener.Fastener {
		r := &recorder{}
		r.Init(r, owner, name)
		return r
	}}
}

func (r *recorder) BindChild(child, _ *Model) { r.events = append(r.events, "+child:"+child.Key()) }
func (r *recorder) UnbindChild(child *Model)  { r.events = append(r.events, "-child:"+child.Key()) }
func (r *recorder) BindTrait(t, _ *Trait)     { r.events = append(r.events, "+trait:"+t.Key()) }
func (r *recorder) UnbindTrait(t *Trait)      { r.events = append(r.events, "-trait:"+t.Key()) }

type hostFunc func(root *Model, flags fastener.UpdateFlags)

func (f hostFunc) RequireUpdate(root *Model, flags fastener.UpdateFlags) { f(root, flags) }

func recorderOf(t *testing.T, n Node) *recorder {
	t.Helper()
	r, ok := fastener.Lookup[*recorder](n, "rec")
	require.True(t, ok)
	return r
}

func TestInsertChild_Keys(t *testing.T) {
	p := New(nil)
	a := New(nil)
	require.NoError(t, p.AppendChild(a, ""))
	assert.Equal(t, fmt.Sprintf("$%d", a.UID()), a.Key())
	assert.Same(t, a, p.GetChild(a.Key()))

	b := New(nil)
	err := p.AppendChild(b, a.Key())
	require.ErrorIs(t, err, ErrKeyCollision)
	assert.Nil(t, b.Parent())

	require.NoError(t, p.InsertChild(b, a, "b"))
	assert.Equal(t, []*Model{b, a}, p.Children())
	assert.Same(t, a, b.NextSibling())
	assert.Same(t, b, a.PreviousSibling())

	err = p.InsertChild(New(nil), New(nil), "")
	require.ErrorIs(t, err, ErrNotChild)

	require.ErrorIs(t, a.AppendChild(p, ""), ErrCycle)
	require.ErrorIs(t, p.AppendChild(p, ""), ErrCycle)

	q := New(nil)
	key := a.Key()
	require.NoError(t, q.AppendChild(a, ""))
	assert.Same(t, q, a.Parent())
	assert.Equal(t, key, a.Key())
	assert.Equal(t, 1, p.ChildCount())
	assert.Nil(t, p.GetChild(key))

	assert.Nil(t, p.RemoveChildKey("missing"))
	assert.Same(t, b, p.RemoveChildKey("b"))
	assert.Zero(t, p.ChildCount())
	assert.Nil(t, p.FirstChild())
	assert.Nil(t, p.LastChild())
}

func TestMount_Idempotency(t *testing.T) {
	root := New(nil)
	child := New(nil)
	require.NoError(t, root.AppendChild(child, "child"))

	require.ErrorIs(t, child.Mount(), ErrAttached)
	require.NoError(t, root.Mount())
	assert.True(t, child.Mounted())
	require.ErrorIs(t, root.Mount(), ErrAlreadyMounted)

	late := New(nil)
	require.NoError(t, root.AppendChild(late, "late"))
	assert.True(t, late.Mounted(), "inserting under a mounted parent mounts")
	root.RemoveChild(late)
	assert.False(t, late.Mounted(), "removal unmounts")

	require.NoError(t, root.Unmount())
	assert.False(t, child.Mounted())
	require.ErrorIs(t, root.Unmount(), ErrNotMounted)

	tr := NewTrait(nil)
	require.NoError(t, tr.Mount())
	require.ErrorIs(t, tr.Mount(), ErrAlreadyMounted)
	require.NoError(t, tr.Unmount())
	require.ErrorIs(t, tr.Unmount(), ErrNotMounted)
}

func TestMount_Order(t *testing.T) {
	var events []string
	obs := &ObserverFuncs{
		OnWillMount:   func(n Node) { events = append(events, "will-mount:"+n.Key()) },
		OnDidMount:    func(n Node) { events = append(events, "did-mount:"+n.Key()) },
		OnWillUnmount: func(n Node) { events = append(events, "will-unmount:"+n.Key()) },
		OnDidUnmount:  func(n Node) { events = append(events, "did-unmount:"+n.Key()) },
	}
	root := New(nil, WithKey("root"))
	child := New(nil)
	tr := NewTrait(nil)
	require.NoError(t, root.AppendChild(child, "child"))
	require.NoError(t, root.AppendTrait(tr, "trait"))
	for _, n := range []Node{root, child, tr} {
		n.Observe(obs)
		n.Observe(obs)
	}

	require.NoError(t, root.Mount())
	assert.Equal(t, []string{
		"will-mount:root",
		"will-mount:trait", "did-mount:trait",
		"will-mount:child", "did-mount:child",
		"did-mount:root",
	}, events)

	events = nil
	require.NoError(t, root.Unmount())
	assert.Equal(t, []string{
		"will-unmount:root",
		"will-unmount:child", "did-unmount:child",
		"will-unmount:trait", "did-unmount:trait",
		"did-unmount:root",
	}, events)

	events = nil
	root.Unobserve(obs)
	require.NoError(t, root.Mount())
	assert.NotContains(t, events, "will-mount:root")
}

func TestChildObserver(t *testing.T) {
	var events []string
	obs := &ObserverFuncs{
		OnWillInsertChild: func(_, c *Model) { events = append(events, "will-insert:"+c.Key()) },
		OnDidInsertChild: func(_, c *Model) {
			assert.True(t, c.Inserting())
			events = append(events, "did-insert:"+c.Key())
		},
		OnWillRemoveChild: func(_, c *Model) {
			assert.True(t, c.Removing())
			events = append(events, "will-remove:"+c.Key())
		},
		OnDidRemoveChild: func(_, c *Model) { events = append(events, "did-remove:"+c.Key()) },
	}
	p := New(nil)
	p.Observe(obs)
	c := New(nil, WithKey("c"))
	require.NoError(t, p.AppendChild(c, ""))
	assert.False(t, c.Inserting())
	c.Remove()
	assert.Nil(t, c.Parent())
	assert.Equal(t, []string{"will-insert:c", "did-insert:c", "will-remove:c", "did-remove:c"}, events)
}

func TestBindingDispatch(t *testing.T) {
	cls := NewClass("Host", recorderDescriptor("rec"))
	m := New(cls)
	tr := NewTrait(cls)
	require.NoError(t, m.AppendTrait(tr, "tr"))

	child := New(nil, WithKey("a"))
	require.NoError(t, m.AppendChild(child, ""))
	other := NewTrait(nil, WithKey("x"))
	require.NoError(t, m.AppendTrait(other, ""))

	late := NewTrait(cls)
	require.NoError(t, m.AppendTrait(late, "late"))
	assert.Equal(t, []string{"+child:a", "+trait:tr", "+trait:x"}, recorderOf(t, late).events)

	m.RemoveChild(child)
	m.RemoveTrait(tr)

	assert.Equal(t, []string{
		"+trait:tr", "+child:a", "+trait:x", "+trait:late", "-child:a", "-trait:tr",
	}, recorderOf(t, m).events)
	assert.Equal(t, []string{
		"+child:a", "+trait:x", "+trait:late", "-child:a", "-trait:late", "-trait:x",
	}, recorderOf(t, tr).events)
	assert.Nil(t, tr.Model())
	assert.Equal(t, []*Trait{other, late}, m.Traits())
}

func TestInsertTrait_Keys(t *testing.T) {
	m := New(nil)
	a := NewTrait(nil, WithKey("a"))
	b := NewTrait(nil)
	require.NoError(t, m.AppendTrait(a, ""))
	require.ErrorIs(t, m.AppendTrait(b, "a"), ErrKeyCollision)
	require.NoError(t, m.InsertTrait(b, a, ""))
	assert.Equal(t, []*Trait{b, a}, m.Traits())
	assert.Same(t, a, b.NextTrait())
	assert.Same(t, b, a.PreviousTrait())
	require.ErrorIs(t, m.InsertTrait(NewTrait(nil), NewTrait(nil), ""), ErrNotChild)

	n := New(nil)
	require.NoError(t, n.AppendTrait(a, ""))
	assert.Same(t, n, a.Model())
	assert.Equal(t, 1, m.TraitCount())
	assert.Nil(t, m.GetTrait("a"))
	assert.Same(t, a, n.GetTrait("a"))
	assert.Same(t, b, m.RemoveTraitKey(b.Key()))
	assert.Nil(t, m.RemoveTrait(b))
}

func TestConsumption(t *testing.T) {
	consumer := &struct{ name string }{"c"}
	m := New(nil)
	m.Consume(consumer)
	m.Consume(consumer)
	assert.Len(t, m.Consumers(), 1)
	assert.False(t, m.Consuming(), "unmounted owners do not consume")

	require.NoError(t, m.Mount())
	assert.True(t, m.Consuming())
	require.NoError(t, m.Unmount())
	assert.False(t, m.Consuming())
	require.NoError(t, m.Mount())
	assert.True(t, m.Consuming())
	m.Unconsume(consumer)
	assert.False(t, m.Consuming())
	assert.Empty(t, m.Consumers())
}

func TestConsumption_TraitConsumesModel(t *testing.T) {
	var started, stopped int
	m := New(nil)
	m.Observe(&ObserverFuncs{
		OnDidStartConsuming: func(Node) { started++ },
		OnDidStopConsuming:  func(Node) { stopped++ },
	})
	tr := NewTrait(nil)
	require.NoError(t, m.AppendTrait(tr, "t"))
	require.NoError(t, m.Mount())

	consumer := &struct{}{}
	tr.Consume(consumer)
	assert.True(t, tr.Consuming())
	assert.True(t, m.Consuming())
	require.Len(t, m.Consumers(), 1)
	assert.Same(t, tr, m.Consumers()[0])

	tr.Unconsume(consumer)
	assert.False(t, m.Consuming())
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, stopped)
}

func TestPropertyInheritance_AcrossModels(t *testing.T) {
	box := NewClass("Box", fastener.PropertyDescriptor("color", "", fastener.WithInherits(true)))
	root := New(box)
	child := New(box)
	require.NoError(t, root.AppendChild(child, "child"))

	requests := 0
	root.SetUpdateHost(hostFunc(func(r *Model, flags fastener.UpdateFlags) {
		assert.Same(t, root, r)
		assert.NotZero(t, flags&fastener.NeedsRecohere)
		requests++
	}))
	require.NoError(t, root.Mount())
	assert.NotZero(t, requests)

	rootColor, ok := fastener.Lookup[*fastener.Property[string]](root, "color")
	require.True(t, ok)
	childColor, ok := fastener.Lookup[*fastener.Property[string]](child, "color")
	require.True(t, ok)
	require.Same(t, rootColor, childColor.Inlet())
	assert.Nil(t, rootColor.Inlet())

	rootColor.Set("red")
	assert.True(t, root.NeedsUpdate())
	assert.Equal(t, 1, root.RecohereFasteners(1))
	assert.Equal(t, "red", childColor.Get())
	assert.False(t, root.NeedsUpdate())

	rootColor.Set("blue")
	root.RecohereFasteners(2)
	assert.Equal(t, "blue", childColor.Get())

	childColor.Set("green")
	rootColor.Set("pink")
	root.RecohereFasteners(3)
	assert.Equal(t, "green", childColor.Get())

	childColor.SetAuto(true)
	root.RecohereFasteners(4)
	assert.Equal(t, "pink", childColor.Get())
}

func TestRecohereFasteners_SettlesChainInOnePass(t *testing.T) {
	box := NewClass("Box", fastener.PropertyDescriptor("color", "", fastener.WithInherits(true)))
	root, mid, leaf := New(box), New(box), New(box)
	require.NoError(t, root.AppendChild(mid, "mid"))
	require.NoError(t, mid.AppendChild(leaf, "leaf"))
	requests := 0
	root.SetUpdateHost(hostFunc(func(*Model, fastener.UpdateFlags) { requests++ }))
	require.NoError(t, root.Mount())
	root.RecohereFasteners(1)
	require.False(t, root.NeedsUpdate())

	rootColor, _ := fastener.Lookup[*fastener.Property[string]](root, "color")
	leafColor, _ := fastener.Lookup[*fastener.Property[string]](leaf, "color")
	requests = 0
	rootColor.Set("red")
	assert.Equal(t, 1, requests)

	assert.Equal(t, 2, root.RecohereFasteners(2))
	assert.Equal(t, "red", leafColor.Get())
	assert.False(t, root.NeedsUpdate())
	assert.Equal(t, 1, requests, "work picked up in the same flush is not re-requested")
}

func TestRecohereFasteners_RequestsRemainingWork(t *testing.T) {
	root := New(nil)
	var hosted []fastener.UpdateFlags
	root.SetUpdateHost(hostFunc(func(_ *Model, flags fastener.UpdateFlags) { hosted = append(hosted, flags) }))
	spin := fastener.NewProperty(root, "spin", 0, fastener.OnRecohere(func(f fastener.Fastener, _ int64) {
		f.Decohere()
	}))
	require.NoError(t, root.Fasteners().Set(spin))
	require.NoError(t, root.Mount())
	spin.Decohere()
	hosted = nil

	assert.Equal(t, 1, root.RecohereFasteners(1))
	assert.True(t, root.NeedsUpdate())
	require.Len(t, hosted, 1, "requeued once the flush ends")
	assert.NotZero(t, hosted[0]&fastener.NeedsRecohere)
}

func TestTraitInlet_SameClassOnAncestor(t *testing.T) {
	sizing := NewClass("Sizing", fastener.PropertyDescriptor("size", 0, fastener.WithInherits(true)))
	other := NewClass("Other", fastener.PropertyDescriptor("size", 0))

	root := New(nil)
	decoy := NewTrait(other)
	top := NewTrait(sizing)
	require.NoError(t, root.AppendTrait(decoy, "decoy"))
	require.NoError(t, root.AppendTrait(top, "top"))
	mid := New(nil)
	require.NoError(t, root.AppendChild(mid, "mid"))
	leaf := New(nil)
	require.NoError(t, mid.AppendChild(leaf, "leaf"))
	bottom := NewTrait(sizing)
	require.NoError(t, leaf.AppendTrait(bottom, "bottom"))
	require.NoError(t, root.Mount())

	topSize, _ := fastener.Lookup[*fastener.Property[int]](top, "size")
	bottomSize, _ := fastener.Lookup[*fastener.Property[int]](bottom, "size")
	require.Same(t, topSize, bottomSize.Inlet())

	topSize.Set(12)
	root.RecohereFasteners(1)
	assert.Equal(t, 12, bottomSize.Get())
	assert.Zero(t, bottom.UpdateFlags())
}

func TestClassRegistry(t *testing.T) {
	r := NewClassRegistry()
	require.NoError(t, r.Register(NewClass("B")))
	require.NoError(t, r.Register(NewClass("A")))
	require.ErrorIs(t, r.Register(NewClass("A")), ErrDuplicateClass)
	assert.Equal(t, []string{"A", "B"}, r.Names())
	c, ok := r.Lookup("B")
	require.True(t, ok)
	assert.Equal(t, "B", c.String())

	assert.Panics(t, func() {
		DefineClass("model_test.Defined")
		DefineClass("model_test.Defined")
	})
	_, ok = DefaultClasses.Lookup("model_test.Defined")
	assert.True(t, ok)
}
