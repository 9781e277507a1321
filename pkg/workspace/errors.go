package workspace

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("workspace already exists")
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrInvalidID        = errors.New("invalid workspace id")
)

// PersistenceError wraps an I/O or encoding failure while loading or
// saving a workspace. The store never retries these.
type PersistenceError struct {
	Op   string // "load", "save", "write_report", "delete"
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("workspace %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
