// Package model implements the Model and Trait ownership trees that
// fasteners are declared on: tree mutation, mount and consume lifecycles,
// binding dispatch and update-flag propagation.
package model

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/agentic-research/fastener/internal/fastener"
)

// Node is implemented by *Model and *Trait.
type Node interface {
	fastener.Owner
	Class() *Class
	Observe(observer any)
	Unobserve(observer any)
	// Consume registers consumer. Consumers are compared by identity, so
	// pass pointers.
	Consume(consumer any)
	Unconsume(consumer any)
	Consumers() []any
	// SetKey renames a detached node.
	SetKey(key string) error
	// Remove detaches the node from its parent or model.
	Remove()
}

// UpdateHost schedules update passes for mounted roots.
type UpdateHost interface {
	RequireUpdate(root *Model, flags fastener.UpdateFlags)
}

// ChildBinder is implemented by fasteners that track a model's children.
// target is the child's next sibling at insertion time, or nil.
type ChildBinder interface {
	BindChild(child, target *Model)
	UnbindChild(child *Model)
}

// TraitBinder is implemented by fasteners that track a model's traits.
type TraitBinder interface {
	BindTrait(trait, target *Trait)
	UnbindTrait(trait *Trait)
}

type nodeFlags uint8

const (
	flagMounted nodeFlags = 1 << iota
	flagConsuming
	flagInserting
	flagRemoving
)

// Option configures a model or trait at construction.
type Option func(*core)

// WithKey sets the initial key.
func WithKey(key string) Option {
	return func(c *core) { c.key = key }
}

// WithLogger sets the node's logger. Nodes without one use their parent's.
func WithLogger(l *slog.Logger) Option {
	return func(c *core) { c.logger = l }
}

// core is the state shared by models and traits.
type core struct {
	self      Node
	uid       fastener.UID
	key       string
	class     *Class
	flags     nodeFlags
	fasteners *fastener.Registry
	observers []any
	consumers []any
	logger    *slog.Logger
	update    fastener.UpdateFlags
}

func (c *core) init(self Node, class *Class, opts []Option) {
	c.self = self
	c.uid = fastener.NextUID()
	c.class = class
	for _, opt := range opts {
		opt(c)
	}
	c.fasteners = fastener.NewRegistry(self)
	if class == nil {
		return
	}
	if err := c.fasteners.Declare(class.Fasteners...); err != nil {
		panic(fmt.Sprintf("model: class %s: %v", class.Name, err))
	}
}

func (c *core) UID() fastener.UID                 { return c.uid }
func (c *core) Key() string                       { return c.key }
func (c *core) Class() *Class                     { return c.class }
func (c *core) Fasteners() *fastener.Registry     { return c.fasteners }
func (c *core) Mounted() bool                     { return c.flags&flagMounted != 0 }
func (c *core) Consuming() bool                   { return c.flags&flagConsuming != 0 }
func (c *core) Inserting() bool                   { return c.flags&flagInserting != 0 }
func (c *core) Removing() bool                    { return c.flags&flagRemoving != 0 }
func (c *core) UpdateFlags() fastener.UpdateFlags { return c.update }

// Fastener returns the fastener called name, instantiating it if lazy.
func (c *core) Fastener(name string) fastener.Fastener {
	return c.fasteners.GetLazy(name)
}

func (c *core) autoKey() string {
	if c.key != "" {
		return c.key
	}
	return fmt.Sprintf("$%d", c.uid)
}

// DecohereFastener queues f and requests a recohere pass.
func (c *core) DecohereFastener(f fastener.Fastener) {
	if c.fasteners.Decohere(f) {
		c.self.RequireUpdate(fastener.NeedsRecohere)
	}
}

func (c *core) Observe(observer any) {
	if slices.Contains(c.observers, observer) {
		return
	}
	c.observers = append(c.observers, observer)
}

func (c *core) Unobserve(observer any) {
	if i := slices.Index(c.observers, observer); i >= 0 {
		c.observers = slices.Delete(c.observers, i, i+1)
	}
}

// eachObserver iterates a snapshot so observers may unregister themselves.
func (c *core) eachObserver(fn func(o any)) {
	for _, o := range slices.Clone(c.observers) {
		fn(o)
	}
}

func (c *core) Consumers() []any {
	return slices.Clone(c.consumers)
}

func (c *core) Consume(consumer any) {
	if slices.Contains(c.consumers, consumer) {
		return
	}
	c.consumers = append(c.consumers, consumer)
	if len(c.consumers) == 1 && c.Mounted() {
		c.startConsuming()
	}
}

func (c *core) Unconsume(consumer any) {
	i := slices.Index(c.consumers, consumer)
	if i < 0 {
		return
	}
	c.consumers = slices.Delete(c.consumers, i, i+1)
	if len(c.consumers) == 0 {
		c.stopConsuming()
	}
}

func (c *core) startConsuming() {
	if c.flags&flagConsuming != 0 {
		return
	}
	c.flags |= flagConsuming
	c.fasteners.StartConsuming()
	if t, ok := c.self.(*Trait); ok && t.model != nil {
		t.model.Consume(t)
	}
	c.eachObserver(func(o any) {
		if co, ok := o.(ConsumeObserver); ok {
			co.DidStartConsuming(c.self)
		}
	})
}

func (c *core) stopConsuming() {
	if c.flags&flagConsuming == 0 {
		return
	}
	c.flags &^= flagConsuming
	c.fasteners.StopConsuming()
	if t, ok := c.self.(*Trait); ok && t.model != nil {
		t.model.Unconsume(t)
	}
	c.eachObserver(func(o any) {
		if co, ok := o.(ConsumeObserver); ok {
			co.DidStopConsuming(c.self)
		}
	})
}

// mountCore runs the shared first half of a mount: flag, observers, pending
// work and fasteners.
func (c *core) mountCore() {
	c.flags |= flagMounted
	c.eachObserver(func(o any) {
		if mo, ok := o.(MountObserver); ok {
			mo.WillMount(c.self)
		}
	})
	flags := c.update
	if c.fasteners.Pending() {
		flags |= fastener.NeedsRecohere
	}
	if flags != 0 {
		c.self.RequireUpdate(flags)
	}
	c.fasteners.Mount()
}

func (c *core) mountDone() {
	if len(c.consumers) > 0 {
		c.startConsuming()
	}
	c.eachObserver(func(o any) {
		if mo, ok := o.(MountObserver); ok {
			mo.DidMount(c.self)
		}
	})
	c.self.Logger().Debug("mounted", "key", c.key, "uid", c.uid)
}

func (c *core) unmountBegin() {
	c.eachObserver(func(o any) {
		if uo, ok := o.(UnmountObserver); ok {
			uo.WillUnmount(c.self)
		}
	})
	c.stopConsuming()
}

func (c *core) unmountCore() {
	c.fasteners.Unmount()
	c.flags &^= flagMounted
	c.eachObserver(func(o any) {
		if uo, ok := o.(UnmountObserver); ok {
			uo.DidUnmount(c.self)
		}
	})
	c.self.Logger().Debug("unmounted", "key", c.key, "uid", c.uid)
}

// eachBinder calls fn for every fastener of reg implementing B.
func eachBinder[B any](reg *fastener.Registry, fn func(B)) {
	reg.Each(func(f fastener.Fastener) {
		if b, ok := f.(B); ok {
			fn(b)
		}
	})
}
