package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/journal"
	"promptarchitect/pkg/prompt"
)

var errJournalDisabled = errors.New("run journal is disabled (set journal.enabled in config)")

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "List recent runs from the journal",
		Long:  `List recent runs, newest first. With a run id, print that run only.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadConfig(flags.projectDir); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg, err := config.GetConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return errJournalDisabled
			}
			j, err := journal.Open(config.JournalPath(&cfg))
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			var entries []journal.Entry
			if len(args) == 1 {
				e, err := j.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				entries = []journal.Entry{e}
			} else {
				if limit < 1 {
					return fmt.Errorf("--limit must be at least 1")
				}
				entries, err = j.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
			}
			return writeHistory(cmd.OutOrStdout(), entries, asJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", journal.DefaultListLimit, "Maximum number of runs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func writeHistory(w io.Writer, entries []journal.Entry, asJSON bool) error {
	if asJSON {
		if entries == nil {
			entries = []journal.Entry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tSCORE\tTARGET\tMODEL\tOBJECTIVE")
	for i := range entries {
		e := &entries[i]
		score := "-"
		if e.TotalScore != nil {
			score = fmt.Sprintf("%d/%d", *e.TotalScore, prompt.MaxTotal)
		}
		status := e.Status
		if e.Error != "" {
			status += " (" + truncate(e.Error, 40) + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), status, score, e.Target, e.Model, truncate(e.Objective, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
