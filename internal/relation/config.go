package relation

import (
	"strings"

	"github.com/agentic-research/fastener/internal/fastener"
	"github.com/agentic-research/fastener/internal/model"
)

// Config is the data-driven shape of a relation. The zero value is a plain
// relation that neither binds, observes nor consumes.
type Config[T model.Node] struct {
	// Binds attaches matching children and traits of the owning model as
	// they are inserted, and detaches them on removal.
	Binds bool
	// Observes registers Observer, or the relation itself, on every target.
	Observes bool
	Observer any
	// Consumes makes the relation a consumer of its targets while the owner
	// is consuming.
	Consumes bool
	// Inherits binds the same-named relation of an ancestor as inlet.
	Inherits bool
	Affinity fastener.Affinity

	// Key and Class narrow the default detection.
	Key   string
	Class *model.Class
	// Detect replaces the default detection.
	Detect func(candidate model.Node) (T, bool)
	// Create builds a new target for InsertNew.
	Create func() T

	// Sorted keeps targets in Compare order; Compare defaults to key order.
	Sorted  bool
	Compare func(a, b T) int
	// Ordered keeps bound targets in tree order.
	Ordered bool

	WillAttach func(target T)
	DidAttach  func(target T)
	WillDetach func(target T)
	DidDetach  func(target T)
	// Init runs after a target is attached and registered, Deinit after it
	// is unregistered.
	Init   func(target T)
	Deinit func(target T)
}

func (c *Config[T]) options() []fastener.Option {
	return []fastener.Option{
		fastener.WithInherits(c.Inherits),
		fastener.WithAffinity(c.Affinity),
	}
}

func (c *Config[T]) compare(a, b T) int {
	if c.Compare != nil {
		return c.Compare(a, b)
	}
	return strings.Compare(a.Key(), b.Key())
}

// detect coerces candidate to T when it matches the configured key and
// class.
func (c *Config[T]) detect(candidate model.Node) (T, bool) {
	if c.Detect != nil {
		return c.Detect(candidate)
	}
	t, ok := candidate.(T)
	if !ok {
		return t, false
	}
	if c.Class != nil && t.Class() != c.Class {
		return t, false
	}
	if c.Key != "" && t.Key() != c.Key {
		return t, false
	}
	return t, true
}

func call[T any](fn func(T), t T) {
	if fn != nil {
		fn(t)
	}
}
