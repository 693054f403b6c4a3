package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all backends
var (
	ErrConflict           = errors.New("unique constraint violation")
	ErrNotFound           = errors.New("record not found")
	ErrCollectionExists   = errors.New("collection already exists")
	ErrCollectionNotFound = errors.New("collection not found")
)

// ProvisionError reports a failed provision or destroy of a tenant collection.
type ProvisionError struct {
	Op         string // "provision" or "destroy"
	Collection string
	Err        error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("%s collection %q: %v", e.Op, e.Collection, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// RenameError reports a failed tenant collection rename.
type RenameError struct {
	From string
	To   string
	Err  error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("rename collection %q to %q: %v", e.From, e.To, e.Err)
}

func (e *RenameError) Unwrap() error { return e.Err }
