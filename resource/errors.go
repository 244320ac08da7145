package resource

import (
	"fmt"

	"github.com/pkg/errors"
)

// NotFoundError is returned when a name has no binding.
type NotFoundError struct {
	Name Name
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource %q not found", e.Name)
}

// NewNotFoundError is used when a resource is not found.
func NewNotFoundError(name Name) error {
	return &NotFoundError{Name: name}
}

// IsNotFoundError returns whether err is, or wraps, a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// TypeError is returned when a binding exists but does not implement the requested interface.
type TypeError struct {
	Name     Name
	Expected string
	Actual   Resource
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("resource %q should be an implementation of %s but it was a %T", e.Name, e.Expected, e.Actual)
}

// TypeError constructor; T is the expected interface.
func newTypeError[T any](name Name, actual Resource) error {
	return &TypeError{Name: name, Expected: fmt.Sprintf("%T", (*T)(nil))[1:], Actual: actual}
}
