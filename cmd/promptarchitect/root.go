package main

import (
	"github.com/spf13/cobra"

	"promptarchitect/pkg/logx"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	projectDir string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Engineer production-grade prompts",
		Long: `promptarchitect turns a plain objective into an engineered prompt.

Each run makes three model calls:
  1. draft a prompt from the objective, context, target model and techniques
  2. score the draft against 35 quality criteria
  3. refine the draft using the scores and suggestions

Use 'serve' for the web UI, 'tui' for the terminal UI or 'run' for a one-shot run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if flags.debug {
				logx.SetDebug(true)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flags.projectDir, "project-dir", ".", "Project directory holding .promptarchitect/")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newServeCmd(flags),
		newTUICmd(flags),
		newRunCmd(flags),
		newOptionsCmd(),
		newHistoryCmd(flags),
		newSecretsCmd(flags),
		newVersionCmd(),
	)
	return cmd
}
