package leadlag

import "fmt"

// GroupNotFoundError indicates that a requested group does not exist in
// storage.
type GroupNotFoundError struct {
	Key GroupKey
}

func (e *GroupNotFoundError) Error() string {
	return fmt.Sprintf("group not found: %s", e.Key)
}

// NewGroupNotFoundError creates a new GroupNotFoundError.
func NewGroupNotFoundError(key GroupKey) *GroupNotFoundError {
	return &GroupNotFoundError{Key: key}
}

// StorageError wraps errors from the underlying storage backend.
type StorageError struct {
	Operation string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("leadlag storage error during %s: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(operation string, err error) *StorageError {
	return &StorageError{Operation: operation, Err: err}
}

// VersionMismatchError indicates an optimistic-locking conflict: two
// replicas attempted to update the same group concurrently.
type VersionMismatchError struct {
	Key             GroupKey
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("version mismatch for group %s: expected %d, got %d (concurrent update)",
		e.Key, e.ExpectedVersion, e.ActualVersion)
}

// NewVersionMismatchError creates a new VersionMismatchError.
func NewVersionMismatchError(key GroupKey, expected, actual int64) *VersionMismatchError {
	return &VersionMismatchError{Key: key, ExpectedVersion: expected, ActualVersion: actual}
}
