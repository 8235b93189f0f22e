package fastener

import (
	"errors"
	"fmt"
)

var (
	// ErrAbsent is matched by every AbsentError.
	ErrAbsent = errors.New("fastener value absent")
	// ErrForeignOwner is returned when a fastener is registered on an owner it
	// was not constructed for.
	ErrForeignOwner = errors.New("fastener belongs to another owner")
)

// AbsentError is returned by non-null-asserting accessors when the fastener
// holds no value.
type AbsentError struct {
	Fastener string
}

func (e *AbsentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Fastener, ErrAbsent.Error())
}

func (e *AbsentError) Is(target error) bool {
	return target == ErrAbsent
}
