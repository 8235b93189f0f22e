package relation

import "errors"

var (
	// ErrNoModel is returned when a relation must mutate the tree but its
	// owner has no model to insert into.
	ErrNoModel = errors.New("relation has no owning model")
	// ErrNoFactory is returned by Create when neither a factory nor a class
	// is configured.
	ErrNoFactory = errors.New("relation has no factory")
	// ErrNotInsertable is returned when a target is neither a model nor a
	// trait and so has no place in the tree.
	ErrNotInsertable = errors.New("target cannot be inserted into a model")
)
