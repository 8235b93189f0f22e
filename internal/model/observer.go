package model

// Observers are registered with Observe and dispatched by type assertion:
// implement only the interfaces you need.

type MountObserver interface {
	WillMount(n Node)
	DidMount(n Node)
}

type UnmountObserver interface {
	WillUnmount(n Node)
	DidUnmount(n Node)
}

type ChildObserver interface {
	WillInsertChild(parent, child *Model)
	DidInsertChild(parent, child *Model)
	WillRemoveChild(parent, child *Model)
	DidRemoveChild(parent, child *Model)
}

type TraitObserver interface {
	WillInsertTrait(m *Model, t *Trait)
	DidInsertTrait(m *Model, t *Trait)
	WillRemoveTrait(m *Model, t *Trait)
	DidRemoveTrait(m *Model, t *Trait)
}

type ConsumeObserver interface {
	DidStartConsuming(n Node)
	DidStopConsuming(n Node)
}

// ObserverFuncs implements every observer interface with optional funcs.
// Register a pointer so Unobserve can find it again.
type ObserverFuncs struct {
	OnWillMount         func(n Node)
	OnDidMount          func(n Node)
	OnWillUnmount       func(n Node)
	OnDidUnmount        func(n Node)
	OnWillInsertChild   func(parent, child *Model)
	OnDidInsertChild    func(parent, child *Model)
	OnWillRemoveChild   func(parent, child *Model)
	OnDidRemoveChild    func(parent, child *Model)
	OnWillInsertTrait   func(m *Model, t *Trait)
	OnDidInsertTrait    func(m *Model, t *Trait)
	OnWillRemoveTrait   func(m *Model, t *Trait)
	OnDidRemoveTrait    func(m *Model, t *Trait)
	OnDidStartConsuming func(n Node)
	OnDidStopConsuming  func(n Node)
}

func (o *ObserverFuncs) WillMount(n Node) {
	if o.OnWillMount != nil {
		o.OnWillMount(n)
	}
}

func (o *ObserverFuncs) DidMount(n Node) {
	if o.OnDidMount != nil {
		o.OnDidMount(n)
	}
}

func (o *ObserverFuncs) WillUnmount(n Node) {
	if o.OnWillUnmount != nil {
		o.OnWillUnmount(n)
	}
}

func (o *ObserverFuncs) DidUnmount(n Node) {
	if o.OnDidUnmount != nil {
		o.OnDidUnmount(n)
	}
}

func (o *ObserverFuncs) WillInsertChild(parent, child *Model) {
	if o.OnWillInsertChild != nil {
		o.OnWillInsertChild(parent, child)
	}
}

func (o *ObserverFuncs) DidInsertChild(parent, child *Model) {
	if o.OnDidInsertChild != nil {
		o.OnDidInsertChild(parent, child)
	}
}

func (o *ObserverFuncs) WillRemoveChild(parent, child *Model) {
	if o.OnWillRemoveChild != nil {
		o.OnWillRemoveChild(parent, child)
	}
}

func (o *ObserverFuncs) DidRemoveChild(parent, child *Model) {
	if o.OnDidRemoveChild != nil {
		o.OnDidRemoveChild(parent, child)
	}
}

func (o *ObserverFuncs) WillInsertTrait(m *Model, t *Trait) {
	if o.OnWillInsertTrait != nil {
		o.OnWillInsertTrait(m, t)
	}
}

func (o *ObserverFuncs) DidInsertTrait(m *Model, t *Trait) {
	if o.OnDidInsertTrait != nil {
		o.OnDidInsertTrait(m, t)
	}
}

func (o *ObserverFuncs) WillRemoveTrait(m *Model, t *Trait) {
	if o.OnWillRemoveTrait != nil {
		o.OnWillRemoveTrait(m, t)
	}
}

func (o *ObserverFuncs) DidRemoveTrait(m *Model, t *Trait) {
	if o.OnDidRemoveTrait != nil {
		o.OnDidRemoveTrait(m, t)
	}
}

func (o *ObserverFuncs) DidStartConsuming(n Node) {
	if o.OnDidStartConsuming != nil {
		o.OnDidStartConsuming(n)
	}
}

func (o *ObserverFuncs) DidStopConsuming(n Node) {
	if o.OnDidStopConsuming != nil {
		o.OnDidStopConsuming(n)
	}
}
