package main

import (
	"fmt"

	"github.com/ehrlich-b/codejail/internal/config"
	"github.com/ehrlich-b/codejail/internal/history"
	"github.com/ehrlich-b/codejail/internal/jail"
	"github.com/ehrlich-b/codejail/internal/logger"
	"github.com/spf13/cobra"
)

// commonFlags are shared by run and eval: where the config lives and where
// (if anywhere) to record job history.
type commonFlags struct {
	configPath  string
	historyPath string
	slug        string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "path to a codejail YAML config file (required)")
	cmd.Flags().StringVar(&f.historyPath, "history", "", "optional SQLite path to record this job's outcome")
	cmd.Flags().StringVar(&f.slug, "slug", "", "correlation id for this job's log lines (default: random)")
}

// buildExecutor loads the configured commands/limits and wires an Executor,
// optionally backed by a history store. The caller owns closing the
// returned history.Store (nil if none was requested).
func (f *commonFlags) buildExecutor() (*jail.Executor, history.Store, error) {
	if f.configPath == "" {
		return nil, nil, fmt.Errorf("codejail: --config is required")
	}

	cfg, err := config.LoadFile(f.configPath, logger.Log)
	if err != nil {
		return nil, nil, err
	}

	opts := []jail.Option{jail.WithLogger(logger.Log)}

	var store history.Store
	if f.historyPath != "" {
		s, err := history.Open(f.historyPath)
		if err != nil {
			return nil, nil, err
		}
		store = s
		opts = append(opts, jail.WithHistory(s))
	}

	return jail.New(cfg, opts...), store, nil
}
