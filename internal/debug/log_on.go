//go:build debug

package debug

import (
	"log"
	"os"
)

var (
	debug = log.New(os.Stderr, "[D] ", log.LstdFlags)
)

// Log writes msg to stderr with the "[D]" prefix.
func Log(msg any) {
	debug.Output(1, getStringValue(msg))
}
