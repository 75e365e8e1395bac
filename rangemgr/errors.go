package rangemgr

import "errors"

var (
	// ErrNoSpace indicates that no free block can hold the request at the
	// requested alignment.
	ErrNoSpace = errors.New("rangemgr: no free block large enough")

	// ErrBadSize indicates a zero-sized request.
	ErrBadSize = errors.New("rangemgr: size must be > 0")

	// ErrBadAlign indicates a zero alignment.
	ErrBadAlign = errors.New("rangemgr: alignment must be > 0")

	// ErrBadNode indicates a node that is not currently allocated from this manager.
	ErrBadNode = errors.New("rangemgr: node not allocated from this manager")

	// ErrNotEmpty indicates Close was called while nodes are still allocated.
	ErrNotEmpty = errors.New("rangemgr: nodes still allocated")
)
