// Command subactl exercises the fenced suballocator: stress runs, the
// reference blocking scenario, and state dumps.
package main

func main() {
	execute()
}
