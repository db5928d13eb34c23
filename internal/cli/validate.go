package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vcav-io/website/internal/scenario"
)

// ValidationResult is the validate command's JSON payload.
type ValidationResult struct {
	Valid      bool           `json:"valid"`
	ID         string         `json:"id,omitempty"`
	Title      string         `json:"title,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Events     int            `json:"events"`
	Counts     map[string]int `json:"counts,omitempty"`
	Field      string         `json:"field,omitempty"`
	Message    string         `json:"message,omitempty"`
}

func (r ValidationResult) String() string {
	if !r.Valid {
		return fmt.Sprintf("✗ %s: %s", r.Field, r.Message)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "✓ %s", r.ID)
	if r.Title != "" {
		fmt.Fprintf(&b, " (%s)", r.Title)
	}
	fmt.Fprintf(&b, ": %d events over %dms", r.Events, r.DurationMS)
	for _, kind := range []scenario.EventKind{scenario.KindChat, scenario.KindPhase, scenario.KindCard, scenario.KindSignal} {
		fmt.Fprintf(&b, "\n  %-7s %d", kind, r.Counts[string(kind)])
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario>",
		Short: "Load and validate a scenario",
		Long: `Load a YAML or CUE scenario and check it the way the engine would
before playback: offsets non-negative, kinds and phases known, chat keys
unique.

Exit codes:
  0 - Scenario is valid
  1 - Scenario is invalid
  2 - Command error (file not found, unsupported extension)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	scn, err := scenario.Load(path)
	if err != nil {
		exitErr := scenarioLoadError(path, err)
		if exitErr.Code != ExitFailure {
			formatter.Error(ErrCodeNotFound, exitErr.Error(), nil)
			return exitErr
		}

		result := ValidationResult{Field: "scenario", Message: err.Error()}
		var ve *scenario.ValidationError
		if errors.As(err, &ve) {
			result.Field, result.Message = ve.Field, ve.Message
		}
		if formatter.JSON() {
			formatter.Error(ErrCodeInvalidScenario, result.Message, result)
		} else {
			formatter.Success(result)
		}
		return exitErr
	}
	formatter.VerboseLog("Loaded %s from %s", scn.ID, path)

	counts := make(map[string]int)
	for _, ev := range scn.Events {
		counts[string(ev.Kind())]++
	}
	return formatter.Success(ValidationResult{
		Valid:      true,
		ID:         scn.ID,
		Title:      scn.Title,
		DurationMS: scn.Duration.Milliseconds(),
		Events:     len(scn.Events),
		Counts:     counts,
	})
}
