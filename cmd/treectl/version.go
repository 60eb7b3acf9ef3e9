package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "0.1.0-dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the treectl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("treectl %s\n", version)
		},
	}
}
