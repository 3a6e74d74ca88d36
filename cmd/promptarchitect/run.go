package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"promptarchitect/pkg/orchestrator"
	"promptarchitect/pkg/prompt"
)

// Output formats for the run command.
const (
	formatMarkdown = "markdown"
	formatJSON     = "json"
	formatPrompt   = "prompt"
)

const snapshotBuffer = 8

// clipboardWriteAll is a package-level variable to allow mocking in tests.
//
//nolint:gochecknoglobals // Swapped in tests
var clipboardWriteAll = clipboard.WriteAll

type runFlags struct {
	objective  string
	context    string
	target     string
	format     string
	techniques []string
	copy       bool
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Engineer one prompt and print the result",
		Long: `Run the pipeline once and print the result to stdout.

Progress is written to stderr. The command exits non-zero when the run fails.

Example:
  promptarchitect run --objective "Create a creative writing assistant for sci-fi authors" \
    --target claude --technique few_shot --technique role_playing`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			req, err := rf.request()
			if err != nil {
				return err
			}
			if err := checkFormat(rf.format); err != nil {
				return err
			}

			cfg, err := loadProject(flags.projectDir)
			if err != nil {
				return err
			}
			s, err := buildStack(cfg, stackOptions{journal: true})
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := runOnce(ctx, s.controller, req, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := writeResult(cmd.OutOrStdout(), result, rf.format); err != nil {
				return err
			}
			if rf.copy {
				if err := clipboardWriteAll(result.EngineeredPrompt); err != nil {
					return fmt.Errorf("failed to copy prompt: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "📋 Copied prompt to clipboard")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&rf.objective, "objective", "o", "", "What the prompt should accomplish (required)")
	cmd.Flags().StringVarP(&rf.context, "context", "c", "", "Audience, constraints or examples")
	cmd.Flags().StringVarP(&rf.target, "target", "t", prompt.TargetGeneric.String(), "Target model: claude, gpt, gemini, open_source, generic")
	cmd.Flags().StringArrayVar(&rf.techniques, "technique", nil, "Technique to apply (repeatable); see 'options'")
	cmd.Flags().StringVarP(&rf.format, "format", "f", formatMarkdown, "Output format: markdown, json, prompt")
	cmd.Flags().BoolVar(&rf.copy, "copy", false, "Copy the engineered prompt to the clipboard")
	_ = cmd.MarkFlagRequired("objective")
	return cmd
}

func (rf *runFlags) request() (prompt.Request, error) {
	target, err := prompt.ParseModelTarget(rf.target)
	if err != nil {
		return prompt.Request{}, err
	}
	req := prompt.Request{Objective: rf.objective, Context: rf.context, Target: target}
	for _, name := range rf.techniques {
		t, err := prompt.ParseTechnique(name)
		if err != nil {
			return prompt.Request{}, err
		}
		if !req.HasTechnique(t) {
			req.ToggleTechnique(t)
		}
	}
	if err := req.Validate(); err != nil {
		return prompt.Request{}, err
	}
	return req, nil
}

func checkFormat(format string) error {
	switch format {
	case formatMarkdown, formatJSON, formatPrompt:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want markdown, json or prompt)", format)
	}
}

// runOnce runs req to completion, reporting each checkpoint on progress.
func runOnce(ctx context.Context, controller *orchestrator.Controller, req prompt.Request, progress io.Writer) (*prompt.Result, error) {
	snapshots, unsubscribe := controller.Subscribe(snapshotBuffer)
	reported := make(chan struct{})
	go func() {
		defer close(reported)
		last := -1
		for snap := range snapshots {
			if snap.Phase != orchestrator.PhaseRunning || snap.Progress == last {
				continue
			}
			last = snap.Progress
			fmt.Fprintf(progress, "[%3d%%] %s\n", snap.Progress, snap.Status)
		}
	}()

	result, err := controller.Run(ctx, req)
	unsubscribe()
	<-reported
	if err != nil {
		return nil, fmt.Errorf("run failed: %w", err)
	}
	return result, nil
}

func writeResult(w io.Writer, result *prompt.Result, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case formatPrompt:
		_, err := fmt.Fprintln(w, result.EngineeredPrompt)
		return err
	default:
		_, err := fmt.Fprint(w, result.Markdown())
		return err
	}
}
