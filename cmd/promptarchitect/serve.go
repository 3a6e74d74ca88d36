package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"promptarchitect/pkg/instructions"
	"promptarchitect/pkg/orchestrator"
	"promptarchitect/pkg/webui"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		Long: `Start the web UI and, when enabled in config, the /metrics endpoint and run journal.

Set PROMPTARCHITECT_PASSWORD to protect the UI with basic auth (username: promptarchitect).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, flags.projectDir, host, port)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")
	return cmd
}

func runServe(ctx context.Context, projectDir, host string, port int) error {
	cfg, err := loadProject(projectDir)
	if err != nil {
		return err
	}
	if host == "" {
		host = cfg.WebUI.Host
	}
	if port == 0 {
		port = cfg.WebUI.Port
	}

	s, err := buildStack(cfg, stackOptions{metrics: true, journal: true})
	if err != nil {
		return err
	}
	defer s.Close()

	server := webui.NewServer(s.controller, projectDir, cfg.WebUI.SubmitsPerMinute)
	if s.registry != nil {
		server.SetGatherer(s.registry)
	}
	if s.journal != nil {
		server.SetHistory(s.journal)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.StartServer(gctx, host, port)
	})

	if cfg.Instructions.Watch && s.instructions.Path() != "" {
		watcher, err := instructions.NewWatcher(s.instructions, nil)
		if err != nil {
			s.logger.Warn("Instruction hot reload disabled: %v", err)
		} else {
			defer func() { _ = watcher.Close() }()
			g.Go(func() error {
				return watcher.Run(gctx)
			})
			s.logger.Info("👀 Watching %s for instruction changes", s.instructions.Path())
		}
	}

	err = g.Wait()
	drain(s)
	return err
}

// drain cancels an in-flight run and waits for it to be recorded.
func drain(s *stack) {
	if err := s.controller.Cancel(); err != nil && !errors.Is(err, orchestrator.ErrNotRunning) {
		s.logger.Warn("Cancel on shutdown failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.controller.Wait(ctx); err != nil {
		s.logger.Warn("Run still in flight at shutdown: %v", err)
		return
	}
	s.logger.Info("👋 Shutdown complete")
}
