package resource

import "fmt"

// ErrBudgetExceeded is returned when a single reservation is larger than the
// configured budget and could never be satisfied.
type ErrBudgetExceeded struct {
	Requested int64
	Limit     int64
}

func (e *ErrBudgetExceeded) Error() string {
	return fmt.Sprintf("resource: reservation of %d bytes exceeds budget of %d bytes", e.Requested, e.Limit)
}
