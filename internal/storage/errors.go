package storage

import "fmt"

// BackendError marks a store-side failure that survived the executor's
// retry and degradation ladder. It wraps the underlying driver error.
type BackendError struct {
	Backend string
	Table   string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: table %s: %v", e.Backend, e.Table, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
