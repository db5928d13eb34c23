package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vcav-io/website/internal/clock"
	"github.com/vcav-io/website/internal/engine"
	"github.com/vcav-io/website/internal/scenario"
	"github.com/vcav-io/website/internal/store"
	"github.com/vcav-io/website/internal/trace"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Database string
	Speed    float64
	Typing   bool // print every reveal step, not just finished messages
}

// PlayResult is the play command's JSON payload.
type PlayResult struct {
	Scenario string        `json:"scenario"`
	RunID    string        `json:"run_id,omitempty"`
	WallMS   int64         `json:"wall_ms"`
	Events   []trace.Event `json:"events"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <scenario>",
		Short: "Play a scenario in the terminal",
		Long: `Play a scenario in real time, printing each chat message, phase
change, card and signal as it appears.

--speed scales wall time: 2 plays twice as fast. --db records the trace
into a SQLite database for later inspection with the trace command.

Examples:
  vcavdemo play testdata/scenarios/handshake.yaml
  vcavdemo play testdata/scenarios/handshake.yaml --speed 4 --db runs.db
  vcavdemo play testdata/scenarios/handshake.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the trace into this SQLite database")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 1, "playback speed multiplier")
	cmd.Flags().BoolVar(&opts.Typing, "typing", false, "print every typing step")

	return cmd
}

func runPlay(opts *PlayOptions, path string, cmd *cobra.Command) error {
	if opts.Speed <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("speed must be positive, got %g", opts.Speed))
	}
	logger := opts.Logger()

	scn, err := scenario.Load(path)
	if err != nil {
		return scenarioLoadError(path, err)
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		out = io.Discard
	}

	loop := clock.NewLoop(clock.WithLoopLogger(logger))
	host := clock.Scaled(loop, opts.Speed)
	rec := trace.NewRecorder(host.Now)
	term := &terminal{w: out, typing: opts.Typing, done: loop.Stop}

	eng, err := engine.New(scn, host, engine.Renderers{rec, term},
		engine.WithLogger(logger),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid scenario "+path, err)
	}
	term.eng = eng

	fmt.Fprintf(out, "▶ %s (%s at %gx)\n", scn.ID, scn.Duration, opts.Speed)

	start := time.Now()
	loop.Post(eng.Play)
	if err := loop.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return NewExitError(ExitFailure, fmt.Sprintf("playback interrupted at %s", eng.State().Elapsed))
		}
		return WrapExitError(ExitCommandError, "playback failed", err)
	}
	wall := time.Since(start)

	result := PlayResult{
		Scenario: scn.ID,
		WallMS:   wall.Milliseconds(),
		Events:   rec.Events(),
	}
	if st != nil {
		runID, err := recordRun(cmd.Context(), st, scn, result.Events)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		result.RunID = runID
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr()).Success(result)
	}
	fmt.Fprintf(out, "■ done in %s", wall.Round(time.Millisecond))
	if result.RunID != "" {
		fmt.Fprintf(out, " (run %s)", result.RunID)
	}
	fmt.Fprintln(out)
	return nil
}

// recordRun writes a finished playback to the store.
func recordRun(ctx context.Context, st *store.Store, scn *scenario.Scenario, events []trace.Event) (string, error) {
	runID, err := st.CreateRun(ctx, scn.ID, scn.Duration)
	if err != nil {
		return "", err
	}
	if err := st.WriteEvents(ctx, runID, events); err != nil {
		return "", err
	}
	if err := st.MarkComplete(ctx, runID); err != nil {
		return "", err
	}
	return runID, nil
}

// terminal prints engine callbacks as plain lines stamped with playback
// time.
type terminal struct {
	engine.NopRenderer

	w      io.Writer
	eng    *engine.Engine
	typing bool
	done   func()
}

func (t *terminal) line(label, format string, args ...any) {
	var at time.Duration
	if t.eng != nil {
		at = t.eng.State().Elapsed
	}
	fmt.Fprintf(t.w, "%8.3fs  %-9s %s\n", at.Seconds(), label, fmt.Sprintf(format, args...))
}

func (t *terminal) PhaseChanged(p scenario.Phase) {
	t.line("phase", "%s", p)
}

func (t *terminal) ChatReveal(msg *scenario.ChatMessage, revealed, total int) {
	if t.typing && revealed < total {
		t.line("typing", "%-5s %s…", msg.Side, string([]rune(msg.Text)[:revealed]))
	}
}

func (t *terminal) ChatRevealComplete(msg *scenario.ChatMessage) {
	t.line("chat", "%-5s %s (%s): %s", msg.Side, msg.Name, msg.Role, msg.Text)
}

func (t *terminal) CardRevealed(card *scenario.ProtocolCard) {
	head := card.ID
	if card.Title != "" {
		head += " " + card.Title
	}
	if card.Error {
		head += " [error]"
	}
	t.line("card", "%s", head)
	t.lines(card.Lines)
	if card.Status != nil {
		mark := "✓"
		if !card.Status.OK {
			mark = "✗"
		}
		t.indent("%s %s", mark, card.Status.Text)
		if card.Status.Note != "" {
			t.indent("  %s", card.Status.Note)
		}
	}
}

func (t *terminal) SubCardRevealed(card *scenario.ProtocolCard, sub *scenario.SubCard) {
	t.line("sub-card", "%s +%dms", card.ID, sub.At.Milliseconds())
	t.lines(sub.Lines)
}

func (t *terminal) Signal(payload string) {
	t.line("signal", "%s", payload)
}

func (t *terminal) Complete() {
	t.line("complete", "")
	if t.done != nil {
		t.done()
	}
}

func (t *terminal) indent(format string, args ...any) {
	fmt.Fprintf(t.w, "%21s%s\n", "", fmt.Sprintf(format, args...))
}

func (t *terminal) lines(lines []scenario.Line) {
	for _, l := range lines {
		switch l.Kind {
		case scenario.LineKV:
			t.indent("%s: %s", l.Key, l.Value)
		case scenario.LineBlank:
			fmt.Fprintln(t.w)
		case scenario.LineHeading:
			t.indent("%s", strings.ToUpper(l.Text))
		case scenario.LineComment:
			t.indent("# %s", l.Text)
		case scenario.LineBullet:
			t.indent("• %s", l.Text)
		case scenario.LineOK:
			t.indent("✓ %s", l.Text)
		case scenario.LineError:
			t.indent("✗ %s", l.Text)
		default:
			t.indent("%s", l.Text)
		}
	}
}
