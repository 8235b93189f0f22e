package model

import "errors"

var (
	// ErrKeyCollision is returned when a key is already used by a live sibling.
	ErrKeyCollision = errors.New("key already in use")
	// ErrCycle is returned when a model would become its own descendant.
	ErrCycle = errors.New("insertion would create a cycle")
	// ErrNotChild is returned when an insertion target is not a child of the
	// receiver.
	ErrNotChild = errors.New("target is not a child")
	// ErrAlreadyMounted is returned by Mount on a mounted node.
	ErrAlreadyMounted = errors.New("already mounted")
	// ErrNotMounted is returned by Unmount on an unmounted node.
	ErrNotMounted = errors.New("not mounted")
	// ErrAttached is returned by Mount and Unmount on a node that has a
	// parent; attached nodes follow their parent's mount state.
	ErrAttached = errors.New("node is attached to a parent")
	// ErrDuplicateClass is returned when a class name is registered twice.
	ErrDuplicateClass = errors.New("class already defined")
)
