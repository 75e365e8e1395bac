//go:build !debug

package debug

// Log is a no-op unless built with the debug tag.
func Log(msg any) {}
