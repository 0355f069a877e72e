package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ehrlich-b/codejail/internal/jail"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func evalCmd() *cobra.Command {
	var flags commonFlags
	var command string
	var codePath string
	var globalsPath string
	var overridesKey string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate an expression against a seeded globals namespace",
		Long:  "Runs code through the command's driver template, seeding a globals namespace and printing the resulting namespace as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if command == "" {
				return fmt.Errorf("codejail: --command is required")
			}

			code, err := readCode(codePath)
			if err != nil {
				return err
			}

			globalsIn, err := readGlobals(globalsPath)
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

			out, err := executor.Evaluate(context.Background(), command, string(code), globalsIn, jail.JobRequest{
				OverridesKey: overridesKey,
				Slug:         slug,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&command, "command", "", "registered command name with a driver template, e.g. python")
	cmd.Flags().StringVar(&codePath, "code", "-", "path to the code to evaluate (- for stdin)")
	cmd.Flags().StringVar(&globalsPath, "globals", "", "path to a JSON object seeding the globals namespace")
	cmd.Flags().StringVar(&overridesKey, "context", "", "overrides context key to apply on top of the defaults")
	return cmd
}

func readGlobals(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codejail: read globals %s: %w", path, err)
	}
	var globals map[string]any
	if err := json.Unmarshal(data, &globals); err != nil {
		return nil, fmt.Errorf("codejail: parse globals %s: %w", path, err)
	}
	return globals, nil
}
