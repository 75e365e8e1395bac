//go:build !unix

package aperture

import (
	"fmt"
	"os"
)

// Map allocates a heap region when mmap is not available.
func Map(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("aperture: invalid size %d", size)
	}
	return make([]byte, size), func() error { return nil }, nil
}

// MapFile reads the file into memory when mmap is not available. Writes are
// persisted on cleanup.
func MapFile(path string, size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("aperture: invalid size %d", size)
	}
	data := make([]byte, size)
	if existing, err := os.ReadFile(path); err == nil {
		copy(data, existing)
	} else if !os.IsNotExist(err) {
		return nil, nil, err
	}
	cleanup := func() error {
		return os.WriteFile(path, data, 0o600)
	}
	return data, cleanup, nil
}

// Sync is a no-op when mmap is not available.
func Sync(data []byte) error { return nil }
