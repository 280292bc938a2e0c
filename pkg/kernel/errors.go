package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMesh reports malformed mesh buffers: face indices out of
	// range, or buffers whose lengths disagree.
	ErrInvalidMesh = errors.New("invalid mesh")

	// ErrKernelFailure reports an internal failure inside a kernel
	// operation (out of memory, numerical degeneracy, unknown handle).
	ErrKernelFailure = errors.New("kernel failure")
)

// FailureError is a kernel failure attributed to one operation.
type FailureError struct {
	Op  string
	Err error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("kernel: %s: %v", e.Op, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// Is reports ErrKernelFailure so callers can match any failure.
func (e *FailureError) Is(target error) bool {
	return target == ErrKernelFailure
}

// Failure wraps err as a kernel failure of op. Errors that already are
// failures, or that report ErrInvalidMesh, are returned unchanged.
func Failure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrKernelFailure) || errors.Is(err, ErrInvalidMesh) {
		return err
	}
	return &FailureError{Op: op, Err: err}
}

// InvalidMeshf returns an error matching ErrInvalidMesh.
func InvalidMeshf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMesh, fmt.Sprintf(format, args...))
}
