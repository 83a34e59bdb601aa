package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrSurfaceOutOfDate reports a swapchain that no longer matches its surface. It is never
	// surfaced to the application, the frame loop turns it into a pending resize.
	ErrSurfaceOutOfDate = errors.New("surface out of date")
	ErrFenceTimeout     = errors.New("fence wait timed out")
	ErrDeviceHung       = errors.New("device stopped signalling fences")
	ErrDeviceLost       = errors.New("device lost")

	ErrPoolOutOfMemory = errors.New("descriptor pool out of memory")
	ErrFragmentedPool  = errors.New("descriptor pool fragmented")

	ErrCompileFailed = errors.New("shader compilation failed")
	ErrInvalidSPIRV  = errors.New("invalid SPIR-V module")

	ErrNotInitialized = errors.New("not initialized")
	ErrUnknown        = errors.New("unknown")
)

// IsPoolExhausted reports whether err is one of the two descriptor pool errors a fresh pool
// can recover from.
func IsPoolExhausted(err error) bool {
	return errors.Is(err, ErrPoolOutOfMemory) || errors.Is(err, ErrFragmentedPool)
}
