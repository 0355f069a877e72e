package proxy

import (
	"fmt"
	"os"
	"testing"
)

// TestMain lets this test binary stand in for the real codejail binary
// when Channel.spawn calls os.Executable() and re-invokes itself as
// `proxy-helper <log-level>` -- in a test binary that resolves to this
// very binary, which has no cobra command tree of its own.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == "proxy-helper" {
		if err := RunHelper(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}
