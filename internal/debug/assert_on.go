//go:build assert

package debug

// Enabled reports whether assertions are compiled in.
const Enabled = true

// Assert will panic with msg if cond is false.
//
// msg must be a string, func() string or fmt.Stringer.
func Assert(cond bool, msg any) {
	if !cond {
		panic(getStringValue(msg))
	}
}
