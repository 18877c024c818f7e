package searchindex

import (
	"errors"
	"fmt"
)

var (
	ErrNotIndexed        = errors.New("resource is not indexed")
	ErrJobNotFound       = errors.New("reindex job not found")
	ErrJobRunning        = errors.New("a reindex job is already running")
	ErrInvalidTransition = errors.New("invalid index state transition")
)

// PersistenceError reports a storage failure while reading or writing the
// derived records of one resource. The resource's previous records are left
// intact.
type PersistenceError struct {
	Op           string
	ResourceType string
	ResourceID   string
	Err          error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.ResourceType, e.ResourceID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
