package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/harun/deskpilot/pkg/transcript"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List journaled runs, or show the results of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "number of runs to list")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := transcript.Open(transcript.Config{DBPath: cfg.Transcript.Path, Logger: zerolog.Nop()})
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 0 {
		runs, err := store.Runs(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		return printRuns(out, runs)
	}

	run, err := store.GetRun(cmd.Context(), args[0])
	if errors.Is(err, transcript.ErrRunNotFound) {
		return fmt.Errorf("run %s not found", args[0])
	}
	if err != nil {
		return err
	}
	entries, err := store.Results(cmd.Context(), run.ID)
	if err != nil {
		return err
	}
	return printEntries(out, run, entries)
}

func printRuns(w io.Writer, runs []transcript.Run) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tGOAL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.StartedAt.Format(time.DateTime), r.Status, r.Goal)
	}
	return tw.Flush()
}

func printEntries(w io.Writer, run *transcript.Run, entries []transcript.Entry) error {
	fmt.Fprintf(w, "Run %s (%s): %s\n", run.ID, run.Status, run.Goal)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tITER\tKIND\tDETAIL")
	for _, e := range entries {
		detail := e.Text
		switch {
		case e.ToolName != "":
			detail = e.ToolName + " " + e.ToolArgs
		case e.Error != "":
			detail = e.Error
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", e.Seq, e.Iteration, e.Kind, detail)
	}
	return tw.Flush()
}
