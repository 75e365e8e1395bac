package suballoc

import "errors"

var (
	// ErrOutOfRange indicates a request larger than the whole managed range.
	// Never retried.
	ErrOutOfRange = errors.New("suballoc: size exceeds managed range")

	// ErrNoSpace indicates that the range is currently too full. Alloc waits
	// instead of returning it; only TryAlloc surfaces it.
	ErrNoSpace = errors.New("suballoc: no space")

	// ErrInterrupted indicates that an interruptible allocation was cancelled
	// while waiting. No state was changed.
	ErrInterrupted = errors.New("suballoc: interrupted")

	// ErrAllocationFailed indicates that the range manager failed for a
	// reason other than lack of space.
	ErrAllocationFailed = errors.New("suballoc: allocation failed")

	// ErrBadArgument indicates an invalid size, alignment or backing buffer.
	ErrBadArgument = errors.New("suballoc: bad argument")

	// ErrLeaked indicates Close was called with suballocations still live.
	ErrLeaked = errors.New("suballoc: suballocations still live")

	// ErrClosed indicates use of a closed manager.
	ErrClosed = errors.New("suballoc: closed")
)
