package model

import (
	"fmt"
	"slices"
	"sync"

	"github.com/agentic-research/fastener/internal/fastener"
)

// Class is the static shape of a model or trait: its name and the fasteners
// every instance declares.
type Class struct {
	Name      string
	Fasteners []fastener.Descriptor
}

// NewClass returns a class declaring descriptors.
func NewClass(name string, descriptors ...fastener.Descriptor) *Class {
	return &Class{Name: name, Fasteners: descriptors}
}

func (c *Class) String() string {
	if c == nil {
		return "<anonymous>"
	}
	return c.Name
}

// Descriptor returns the declared descriptor called name.
func (c *Class) Descriptor(name string) (fastener.Descriptor, bool) {
	if c == nil {
		return fastener.Descriptor{}, false
	}
	for _, d := range c.Fasteners {
		if d.Name == name {
			return d, true
		}
	}
	return fastener.Descriptor{}, false
}

// ClassRegistry maps class names to classes. It is safe for concurrent use
// so classes can be defined from package init functions.
type ClassRegistry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassRegistry returns an empty registry.
func NewClassRegistry() *ClassRegistry {
	return &ClassRegistry{classes: make(map[string]*Class)}
}

// DefaultClasses is the registry used by DefineClass.
var DefaultClasses = NewClassRegistry()

// Register adds c. Names are unique.
func (r *ClassRegistry) Register(c *Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[c.Name]; ok {
		return fmt.Errorf("register %s: %w", c.Name, ErrDuplicateClass)
	}
	r.classes[c.Name] = c
	return nil
}

// Lookup returns the class called name.
func (r *ClassRegistry) Lookup(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Names returns the registered class names in sorted order.
func (r *ClassRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefineClass registers a class in DefaultClasses. It panics if the name is
// taken.
func DefineClass(name string, descriptors ...fastener.Descriptor) *Class {
	c := NewClass(name, descriptors...)
	if err := DefaultClasses.Register(c); err != nil {
		panic(err)
	}
	return c
}
