package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"promptarchitect/pkg/prompt"
)

type optionEntry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type optionsListing struct {
	Targets    []optionEntry `json:"targets"`
	Techniques []optionEntry `json:"techniques"`
}

func newOptionsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "options",
		Short: "List target models and techniques",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeOptions(cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func listOptions() optionsListing {
	var l optionsListing
	for _, t := range prompt.AllTargets {
		l.Targets = append(l.Targets, optionEntry{Key: t.String(), Label: t.Label()})
	}
	for _, t := range prompt.AllTechniques {
		l.Techniques = append(l.Techniques, optionEntry{Key: t.String(), Label: t.Label()})
	}
	return l
}

func writeOptions(w io.Writer, asJSON bool) error {
	l := listOptions()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGETS (--target)\t")
	for _, o := range l.Targets {
		fmt.Fprintf(tw, "  %s\t%s\n", o.Key, o.Label)
	}
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "TECHNIQUES (--technique)\t")
	for _, o := range l.Techniques {
		fmt.Fprintf(tw, "  %s\t%s\n", o.Key, o.Label)
	}
	return tw.Flush()
}
