//go:build integration

package jail

import (
	"fmt"
	"os"
	"testing"

	"github.com/ehrlich-b/codejail/internal/proxy"
	"github.com/ehrlich-b/codejail/internal/runner"
)

// TestMain lets this test binary stand in for the real codejail binary: the
// rlimit trampoline and the proxy channel both re-invoke os.Executable(),
// which resolves to this very test binary when Execute is driven from an
// integration test rather than from cmd/codejail.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case runner.RlimitInitSubcommand:
			if err := runner.RunRlimitInit(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			os.Exit(0)
		case "proxy-helper":
			if err := proxy.RunHelper(os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			os.Exit(0)
		}
	}
	os.Exit(m.Run())
}
