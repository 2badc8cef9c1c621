package telehealth

import (
	"errors"
	"fmt"
)

// Domain error kinds. Handlers translate these to HTTP statuses with
// errors.Is; services wrap them with context.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrDependencyFailure  = errors.New("dependency failure")
)

// CapacityError reports the participant cap that was hit.
type CapacityError struct {
	Max int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("Maximum participants (%d) reached", e.Max)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}
