package relation

import (
	"slices"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/fastener/internal/fastener"
	"github.com/agentic-research/fastener/internal/model"
)

// Set is a relation holding targets keyed by UID. A target is held at most
// once; membership is indexed by a roaring bitmap of UIDs.
type Set[T model.Node] struct {
	engine[T]
	targets map[fastener.UID]T
	order   []T
	index   *roaring.Bitmap
}

// NewSet returns a set relation declared on owner.
func NewSet[T model.Node](owner fastener.Owner, name string, cfg Config[T]) *Set[T] {
	s := &Set[T]{
		targets: make(map[fastener.UID]T),
		index:   roaring.New(),
	}
	s.cfg = cfg
	s.Init(s, owner, name, cfg.options()...)
	return s
}

// SetDescriptor declares a set relation on an owner class.
func SetDescriptor[T model.Node](name string, cfg Config[T]) fastener.Descriptor {
	return fastener.Descriptor{
		Name: name,
		Kind: "set",
		New: func(owner fastener.Owner) fastener.Fastener {
			return NewSet(owner, name, cfg)
		},
	}
}

// Has reports whether t is a member.
func (s *Set[T]) Has(t T) bool {
	return !isZero(t) && s.index.Contains(uint32(t.UID()))
}

// Get returns the member with uid.
func (s *Set[T]) Get(uid fastener.UID) (T, bool) {
	t, ok := s.targets[uid]
	return t, ok
}

// Count returns the number of members.
func (s *Set[T]) Count() int {
	return len(s.order)
}

// Targets returns the members in set order.
func (s *Set[T]) Targets() []T {
	return slices.Clone(s.order)
}

// Members returns a copy of the UID index.
func (s *Set[T]) Members() *roaring.Bitmap {
	return s.index.Clone()
}

// Attach adopts t without touching the tree. If t is already a member the
// existing member is returned unchanged.
func (s *Set[T]) Attach(t T) T {
	var zero T
	return s.attach(t, zero)
}

// AttachBefore adopts t ahead of the member before. Sorted sets ignore the
// position.
func (s *Set[T]) AttachBefore(t, before T) T {
	return s.attach(t, before)
}

// Add explicitly attaches t, raising the set's affinity so inlet changes no
// longer override it.
func (s *Set[T]) Add(t T) T {
	s.MinAffinity(fastener.Extrinsic)
	return s.Attach(t)
}

// Detach releases t without touching the tree. It returns the removed
// member, or the zero T if t was not held.
func (s *Set[T]) Detach(t T) T {
	if isZero(t) {
		return t
	}
	return s.detach(t.UID())
}

// DetachAll releases every member in reverse order.
func (s *Set[T]) DetachAll() {
	for len(s.order) > 0 {
		s.detach(s.order[len(s.order)-1].UID())
	}
}

func (s *Set[T]) attach(t, before T) T {
	if isZero(t) {
		return t
	}
	if existing, ok := s.targets[t.UID()]; ok {
		return existing
	}
	s.willAttach(t)
	s.targets[t.UID()] = t
	s.index.Add(uint32(t.UID()))
	s.order = slices.Insert(s.order, s.position(t, before), t)
	s.didAttach(s, t)
	s.DecohereOutlets()
	return t
}

func (s *Set[T]) position(t, before T) int {
	if s.cfg.Sorted {
		if i := slices.IndexFunc(s.order, func(x T) bool { return s.cfg.compare(t, x) < 0 }); i >= 0 {
			return i
		}
		return len(s.order)
	}
	if !isZero(before) {
		if i := s.indexOf(before.UID()); i >= 0 {
			return i
		}
	}
	return len(s.order)
}

func (s *Set[T]) indexOf(uid fastener.UID) int {
	return slices.IndexFunc(s.order, func(x T) bool { return x.UID() == uid })
}

func (s *Set[T]) detach(uid fastener.UID) T {
	var zero T
	t, ok := s.targets[uid]
	if !ok {
		return zero
	}
	s.willDetach(s, t)
	delete(s.targets, uid)
	s.index.Remove(uint32(uid))
	if i := s.indexOf(uid); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	s.didDetach(t)
	s.DecohereOutlets()
	return t
}

// Insert attaches t and inserts it into the owning model under key. Sorted
// sets place the tree node before the next greater member in the same
// model. Nothing changes when the insert would fail.
func (s *Set[T]) Insert(t T, key string) error {
	m, err := s.ownerModel()
	if err != nil {
		return err
	}
	if err := checkInsert(m, t, nil, key); err != nil {
		return err
	}
	member := s.Has(t)
	if err := rekey(t, key); err != nil {
		return err
	}
	var zero T
	s.attach(t, zero)
	if inModel(t, m) {
		return nil
	}
	var before model.Node
	if s.cfg.Sorted {
		before = s.successor(t, m)
	}
	if err := insertNode(m, t, before); err != nil {
		if !member {
			s.detach(t.UID())
		}
		return err
	}
	return nil
}

// successor returns the member after t in set order that lives in m.
func (s *Set[T]) successor(t T, m *model.Model) model.Node {
	i := s.indexOf(t.UID())
	if i < 0 {
		return nil
	}
	for _, x := range s.order[i+1:] {
		if inModel(x, m) {
			return x
		}
	}
	return nil
}

// Remove takes t out of the tree and returns it. The set keeps it unless a
// binding detaches it.
func (s *Set[T]) Remove(t T) T {
	var zero T
	if !s.Has(t) {
		return zero
	}
	t.Remove()
	return t
}

// Delete detaches t and removes it from the tree.
func (s *Set[T]) Delete(t T) T {
	t = s.Detach(t)
	if !isZero(t) {
		t.Remove()
	}
	return t
}

// DeleteAll deletes every member in reverse order.
func (s *Set[T]) DeleteAll() {
	for len(s.order) > 0 {
		s.Delete(s.order[len(s.order)-1])
	}
}

// Create builds a new target without attaching it.
func (s *Set[T]) Create() (T, error) {
	return s.create()
}

// InsertNew creates a target and inserts it under key.
func (s *Set[T]) InsertNew(key string) (T, error) {
	t, err := s.create()
	if err != nil {
		return t, err
	}
	if err := s.Insert(t, key); err != nil {
		return t, err
	}
	return t, nil
}

func (s *Set[T]) bind(n model.Node) {
	if !s.cfg.Binds {
		return
	}
	t, ok := s.cfg.detect(n)
	if !ok {
		return
	}
	var before T
	if s.cfg.Ordered {
		before = s.treeSuccessor(n)
	}
	s.attach(t, before)
}

// treeSuccessor returns the first member following n in tree order.
func (s *Set[T]) treeSuccessor(n model.Node) T {
	var zero T
	switch v := n.(type) {
	case *model.Model:
		for x := v.NextSibling(); x != nil; x = x.NextSibling() {
			if t, ok := s.targets[x.UID()]; ok {
				return t
			}
		}
	case *model.Trait:
		for x := v.NextTrait(); x != nil; x = x.NextTrait() {
			if t, ok := s.targets[x.UID()]; ok {
				return t
			}
		}
	}
	return zero
}

func (s *Set[T]) unbind(n model.Node) {
	if s.cfg.Binds {
		s.detach(n.UID())
	}
}

func (s *Set[T]) BindChild(child, _ *model.Model) { s.bind(child) }
func (s *Set[T]) UnbindChild(child *model.Model)  { s.unbind(child) }
func (s *Set[T]) BindTrait(trait, _ *model.Trait) { s.bind(trait) }
func (s *Set[T]) UnbindTrait(trait *model.Trait)  { s.unbind(trait) }

// OnMount binds the set against the model's existing children and traits.
func (s *Set[T]) OnMount() {
	if s.cfg.Binds {
		s.eachCandidate(s.bind)
	}
}

func (s *Set[T]) OnUnmount() {}

func (s *Set[T]) StartConsuming() {
	if !s.cfg.Consumes || s.consuming {
		return
	}
	s.consuming = true
	for _, t := range s.order {
		t.Consume(s)
	}
}

func (s *Set[T]) StopConsuming() {
	if !s.consuming {
		return
	}
	s.consuming = false
	for _, t := range s.order {
		t.Unconsume(s)
	}
}

// AcceptsInlet reports whether inlet is a set of the same target type.
func (s *Set[T]) AcceptsInlet(inlet fastener.Fastener) bool {
	_, ok := inlet.(*Set[T])
	return ok
}

// DeriveFrom mirrors the inlet's membership: members the inlet lacks are
// detached, members only the inlet holds are attached in inlet order.
func (s *Set[T]) DeriveFrom(inlet fastener.Fastener) {
	src, ok := inlet.(*Set[T])
	if !ok {
		return
	}
	stale := roaring.AndNot(s.index, src.index)
	it := stale.Iterator()
	for it.HasNext() {
		s.detach(fastener.UID(it.Next()))
	}
	fresh := roaring.AndNot(src.index, s.index)
	if fresh.IsEmpty() {
		return
	}
	var zero T
	for _, t := range src.order {
		if fresh.Contains(uint32(t.UID())) {
			s.attach(t, zero)
		}
	}
}
