//go:build !debug

package debug

// Debug controls collection of full stack traces and internal assertions.
// It is false unless the build uses the "debug" tag.
const Debug = false

// Assert does nothing in release builds.
func Assert(condition bool, message ...string) {}
