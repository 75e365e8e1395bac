// Package aperture provides backing memory for an allocator's address space.
//
// On unix platforms regions are memory-mapped with golang.org/x/sys/unix:
// Map creates an anonymous private mapping, MapFile a shared file-backed one.
// Other platforms fall back to heap slices. Every successful call returns a
// cleanup function that unmaps the region; calling it twice is harmless.
package aperture
