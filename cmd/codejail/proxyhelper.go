package main

import (
	"github.com/ehrlich-b/codejail/internal/proxy"
	"github.com/spf13/cobra"
)

// proxyHelperCmd is hidden: the jail orchestrator spawns it on its own
// behalf (see internal/proxy), a human never types it directly.
func proxyHelperCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "proxy-helper [log-level]",
		Hidden: true,
		Args:   cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return proxy.RunHelper(args)
		},
	}
	return cmd
}
