package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/logx"
	"promptarchitect/pkg/tui"
)

const tuiLogFilename = "tui.log"

func newTUICmd(flags *globalFlags) *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Start the terminal UI",
		Long: `Start the interactive terminal UI.

Logs go to .promptarchitect/tui.log while the UI owns the terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logPath := filepath.Join(flags.projectDir, config.ProjectConfigDir, tuiLogFilename)
			if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			defer func() { _ = logFile.Close() }()
			logx.SetOutput(logFile)
			defer logx.SetOutput(os.Stderr)

			cfg, err := loadProject(flags.projectDir)
			if err != nil {
				return err
			}
			s, err := buildStack(cfg, stackOptions{journal: true})
			if err != nil {
				return err
			}
			defer s.Close()

			var opts []tui.Option
			if style != "" {
				opts = append(opts, tui.WithGlamourStyle(style))
			}
			err = tui.Run(ctx, s.controller, opts...)
			drain(s)
			return err
		},
	}

	cmd.Flags().StringVar(&style, "style", "", "Markdown style: auto, dark, light, notty")
	return cmd
}
