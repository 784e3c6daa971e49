package memory

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no active record exists for an id.
var ErrNotFound = errors.New("memory not found")

// ValidationError rejects a write before anything reaches the log:
// empty text, over-length text, a log-tier record, or journal-only
// signal content.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "memory validation failed: " + e.Reason
}

// PIIError rejects a write whose text tripped the PII guard. The
// offending text is never included in the error, only the violation
// labels.
type PIIError struct {
	Violations []string
}

func (e *PIIError) Error() string {
	return "pii detected, memory blocked: " + strings.Join(e.Violations, "; ")
}

// DuplicateError rejects a write that is too similar to an existing
// active record in the same scope.
type DuplicateError struct {
	ExistingID string
	Score      float64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("near-duplicate of memory %s (similarity %.2f)", e.ExistingID, e.Score)
}

// CapacityError rejects a genuinely new record once the active-record
// ceiling is reached.
type CapacityError struct {
	Active  int
	Ceiling int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("vault full: %d/%d active memories; delete or compact first", e.Active, e.Ceiling)
}
