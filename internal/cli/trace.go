package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vcav-io/website/internal/store"
	"github.com/vcav-io/website/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Scenario string // filter for run listing
	Kind     string // filter for one run's events
}

// RunTrace is one run's events.
type RunTrace struct {
	Run    store.Run     `json:"run"`
	Events []trace.Event `json:"events"`
	Stats  TraceStats    `json:"stats"`
}

// TraceStats counts a run's events by kind.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByKind      map[string]int `json:"by_kind"`
	LastSeq     int64          `json:"last_seq"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Inspect recorded runs",
		Long: `List the runs recorded in a database, or print one run's trace.

Without a run ID, lists runs oldest first. With a run ID, prints the
trace in the same format the golden files use.

Examples:
  vcavdemo trace --db runs.db
  vcavdemo trace --db runs.db --scenario handshake
  vcavdemo trace --db runs.db 0192f1c2-... --kind card
  vcavdemo trace --db runs.db 0192f1c2-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runShowTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "list only runs of this scenario")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "print only events of this kind")

	return cmd
}

func openStore(path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), opts.Scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(runs)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(w, "%-4s  %-36s  %-16s  %-8s  %6s  %s\n", "SEQ", "RUN", "SCENARIO", "DONE", "EVENTS", "CREATED")
	for _, r := range runs {
		done := "no"
		if r.Completed {
			done = "yes"
		}
		fmt.Fprintf(w, "%-4d  %-36s  %-16s  %-8s  %6d  %s\n",
			r.Seq, r.ID, r.ScenarioID, done, r.Events, r.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func runShowTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	rt, err := loadRunTrace(cmd.Context(), st, runID, trace.Kind(opts.Kind))
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			formatter.Error(ErrCodeNotFound, "run not found: "+runID, nil)
			return WrapExitError(ExitCommandError, "run not found", err)
		}
		formatter.Error(ErrCodeStore, "failed to read run "+runID, err.Error())
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if formatter.JSON() {
		return formatter.Success(rt)
	}
	printRunTrace(cmd.OutOrStdout(), rt)
	return nil
}

func loadRunTrace(ctx context.Context, st *store.Store, runID string, kind trace.Kind) (RunTrace, error) {
	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return RunTrace{}, err
	}
	events, err := st.ReadEvents(ctx, runID)
	if err != nil {
		return RunTrace{}, err
	}
	last, err := st.LastSeq(ctx, runID)
	if err != nil {
		return RunTrace{}, err
	}

	stats := TraceStats{ByKind: make(map[string]int), LastSeq: last}
	filtered := make([]trace.Event, 0, len(events))
	for _, ev := range events {
		stats.TotalEvents++
		stats.ByKind[string(ev.Kind)]++
		if kind == "" || ev.Kind == kind {
			filtered = append(filtered, ev)
		}
	}
	return RunTrace{Run: run, Events: filtered, Stats: stats}, nil
}

func printRunTrace(w io.Writer, rt RunTrace) {
	status := "incomplete"
	if rt.Run.Completed {
		status = "complete"
	}
	fmt.Fprintf(w, "Run %s (#%d) %s, %s, %s\n", rt.Run.ID, rt.Run.Seq, rt.Run.ScenarioID, rt.Run.Duration, status)
	if rt.Run.Digest != "" {
		fmt.Fprintf(w, "digest %s\n", rt.Run.Digest)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, trace.Format(rt.Events))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d events", rt.Stats.TotalEvents)
	if len(rt.Events) != rt.Stats.TotalEvents {
		fmt.Fprintf(w, " (%d shown)", len(rt.Events))
	}
	fmt.Fprintln(w)
}
