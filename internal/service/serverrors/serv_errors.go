package serverrors

import (
	"errors"
	"fmt"
)

var ErrSyncAlreadyRunning = errors.New("a sync pass is already in flight")

// PersistenceError is a per-entity store failure. It is recorded in the run
// report and never aborts the rest of the pass.
type PersistenceError struct {
	Title string
	Cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %q: %v", e.Title, e.Cause)
}

func (e *PersistenceError) Unwrap() error { return e.Cause }
