package main

import (
	"fmt"

	"github.com/prometheus/common/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), version.Info())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.Print(appName))
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print a single line")
	return cmd
}
