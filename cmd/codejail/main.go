package main

import (
	"fmt"
	"os"

	"github.com/ehrlich-b/codejail/internal/logger"
	"github.com/ehrlich-b/codejail/internal/runner"
	"github.com/spf13/cobra"
)

func main() {
	// Intercepted before cobra ever sees argv: the rlimit-init trampoline
	// re-execs this same binary with an opaque target argv following "--"
	// that may itself contain flags indistinguishable from this command
	// tree's own, so it can't be routed through cobra. See
	// internal/runner/rlimitinit.go.
	if len(os.Args) > 1 && os.Args[1] == runner.RlimitInitSubcommand {
		if err := runner.RunRlimitInit(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	var logLevel string
	var logFile string

	root := &cobra.Command{
		Use:   "codejail",
		Short: "codejail — runs untrusted code in a disposable, resource-limited sandbox",
		Long:  "Stages a scratch sandbox directory, runs a command as a low-privilege OS user under kernel rlimits, and supervises it with a wall-clock watchdog.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "proxy-helper" {
				return nil
			}
			return logger.Init(logLevel, logFile)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "optional file to additionally log to")

	root.AddCommand(
		runCmd(),
		evalCmd(),
		historyCmd(),
		proxyHelperCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
