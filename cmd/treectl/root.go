package main

import (
	"github.com/spf13/cobra"

	"github.com/croftja/treebus/internal/logging"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "treectl",
		Short: "treebus demo and inspection tool",
		Long: `treectl exercises a treebus node tree over the in-process router:
two peers on separate sessions exchanging calls and events through
their hierarchical addresses.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
		},
	}
	cmd.AddCommand(newDemoCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}
