package mesh

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition marks caller bugs: invalid dimensions or ordinals,
	// malformed vertex lists, double insertion of a cell index.
	ErrPrecondition = errors.New("mesh: precondition violated")
	// ErrInternal marks a structure that is no longer self-consistent, such
	// as a side acquiring a third claimant.
	ErrInternal = errors.New("mesh: internal inconsistency")
)

// NoIndex is the sentinel returned by lookups that find nothing.
const NoIndex = -1

func preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

func internalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}
