package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ehrlich-b/codejail/internal/jail"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func runCmd() *cobra.Command {
	var flags commonFlags
	var command string
	var codePath string
	var overridesKey string
	var argv []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a command inside the sandbox",
		Long:  "Stages a sandbox directory, writes the given code (or none) into it, and runs the configured command under its resource limits.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if command == "" {
				return fmt.Errorf("codejail: --command is required")
			}
			argv = args

			code, err := readCode(codePath)
			if err != nil {
				return err
			}

			slug := flags.slug
			if slug == "" {
				slug = uuid.NewString()
			}

			executor, store, err := flags.buildExecutor()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			req := jail.JobRequest{
				Command:      command,
				Code:         code,
				Argv:         argv,
				OverridesKey: overridesKey,
				Slug:         slug,
			}

			result, err := executor.Execute(context.Background(), req)
			if err != nil {
				return err
			}

			os.Stdout.Write(result.Stdout)
			os.Stderr.Write(result.Stderr)
			if result.Status != 0 {
				os.Exit(exitCodeFor(result.Status))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&command, "command", "", "registered command name to run, e.g. python")
	cmd.Flags().StringVar(&codePath, "code", "", "path to a file containing code to run (- for stdin, omit for none)")
	cmd.Flags().StringVar(&overridesKey, "context", "", "overrides context key to apply on top of the defaults")
	return cmd
}

// readCode reads the --code argument: a literal "-" means stdin, empty
// means no inline code, anything else is a file path.
func readCode(path string) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		if term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "codejail: reading code from stdin, press ctrl-D when done")
		}
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(path)
	}
}

// exitCodeFor maps a runner.Result.Status onto a shell exit code: positive
// statuses pass through, negative ones (signal kills) become 128+signal per
// POSIX convention.
func exitCodeFor(status int) int {
	if status < 0 {
		return 128 - status
	}
	return status
}
