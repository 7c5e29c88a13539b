package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// StorageError reports a failure of the local store: the file could not be
// opened, read, or written, or its schema is unusable. It is fatal for the
// invocation that hit it.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// MergeError reports a snapshot that could not be merged. The target store is
// left unchanged.
type MergeError struct {
	Path string
	Err  error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge %s: %v", e.Path, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// IsStorageError returns true if err wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsMergeError returns true if err wraps a MergeError.
func IsMergeError(err error) bool {
	var me *MergeError
	return errors.As(err, &me)
}

// IsBusy returns true if err was caused by the busy timeout expiring on a
// locked database.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
