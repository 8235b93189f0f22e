package fastener

// Property is a value fastener. Explicit writes raise its affinity; while
// derived it mirrors the same-named property of an ancestor owner.
type Property[T any] struct {
	Base
	value    T
	equal    func(a, b T) bool
	onChange []func(old, new T)
}

// NewProperty returns a property compared with ==.
func NewProperty[T comparable](owner Owner, name string, initial T, opts ...Option) *Property[T] {
	return NewPropertyFunc(owner, name, initial, func(a, b T) bool { return a == b }, opts...)
}

// NewPropertyFunc returns a property compared with equal.
func NewPropertyFunc[T any](owner Owner, name string, initial T, equal func(a, b T) bool, opts ...Option) *Property[T] {
	p := &Property[T]{value: initial, equal: equal}
	p.Init(p, owner, name, opts...)
	return p
}

// PropertyDescriptor declares a comparable property on an owner class.
func PropertyDescriptor[T comparable](name string, initial T, opts ...Option) Descriptor {
	return Descriptor{
		Name: name,
		Kind: "property",
		New: func(owner Owner) Fastener {
			return NewProperty(owner, name, initial, opts...)
		},
	}
}

// Get returns the current value.
func (p *Property[T]) Get() T {
	return p.value
}

// Set writes v at extrinsic affinity.
func (p *Property[T]) Set(v T) {
	p.SetWithAffinity(v, Extrinsic)
}

// SetWithAffinity writes v if a dominates the current affinity and reports
// whether the write was accepted.
func (p *Property[T]) SetWithAffinity(v T, a Affinity) bool {
	if !p.MinAffinity(a) {
		return false
	}
	p.setValue(v)
	return true
}

// OnChange registers fn to run after every value change.
func (p *Property[T]) OnChange(fn func(old, new T)) {
	p.onChange = append(p.onChange, fn)
}

func (p *Property[T]) setValue(v T) {
	if p.equal(p.value, v) {
		return
	}
	old := p.value
	p.value = v
	for _, fn := range p.onChange {
		fn(old, v)
	}
	p.DecohereOutlets()
}

// AcceptsInlet reports whether inlet is a property of the same value type.
func (p *Property[T]) AcceptsInlet(inlet Fastener) bool {
	_, ok := inlet.(*Property[T])
	return ok
}

// DeriveFrom copies the inlet's value without raising affinity.
func (p *Property[T]) DeriveFrom(inlet Fastener) {
	if src, ok := inlet.(*Property[T]); ok {
		p.setValue(src.value)
	}
}
