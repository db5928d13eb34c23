package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vcav-io/website/internal/harness"
	"github.com/vcav-io/website/internal/store"
	"github.com/vcav-io/website/internal/trace"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // suite filter (glob pattern on the file name)
	Database string
}

// SuiteResult holds the result of a single suite.
type SuiteResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	HostMS int64    `json:"host_ms,omitempty"`
	Digest string   `json:"digest,omitempty"`
	RunID  string   `json:"run_id,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Suites []SuiteResult `json:"suites"`
	Passed int           `json:"passed"`
	Failed int           `json:"failed"`
	Total  int           `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <suite-file-or-dir>...",
		Short: "Run conformance suites",
		Long: `Run harness suites on a virtual clock and check their assertions.

Each suite plays its scenario with zero jitter. When a golden file
exists beside the suites directory (../golden/<name>.golden) the trace
must also match it byte for byte.

Exit codes:
  0 - All suites passed
  1 - One or more suites failed
  2 - Command error (invalid paths, etc.)

Examples:
  vcavdemo test testdata/suites
  vcavdemo test testdata/suites --filter "mini-*"
  vcavdemo test internal/harness/testdata/suites --update
  vcavdemo test testdata/suites/handshake.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter suites by glob pattern")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record every suite trace into this SQLite database")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	var files []string
	for _, p := range paths {
		found, err := findSuiteFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find suites", err)
		}
		files = append(files, found...)
	}

	runOpts := []harness.RunOption{harness.WithLogger(opts.Logger())}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		runOpts = append(runOpts, harness.WithStore(st))
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Suites: []SuiteResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No suites found.")
		return nil
	}

	result := TestResult{
		Suites: make([]SuiteResult, 0, len(files)),
		Total:  len(files),
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Format == "json" {
		w = io.Discard
	}

	for _, file := range files {
		sr := runSuite(file, opts, runOpts)
		printSuiteResult(w, sr)

		result.Suites = append(result.Suites, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findSuiteFiles returns path itself when it is a file, or every YAML file
// beneath it when it is a directory.
func findSuiteFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("suite path not found: %s", path)
		}
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})
	return files, err
}

func runSuite(file string, opts *TestOptions, runOpts []harness.RunOption) SuiteResult {
	sr := SuiteResult{Name: filepath.Base(file), File: file}

	suite, result, err := harness.RunFile(file, runOpts...)
	if suite != nil {
		sr.Name = suite.Name
	}
	if err != nil {
		sr.Errors = []string{err.Error()}
		return sr
	}
	sr.HostMS = result.HostMS
	sr.Digest = result.Digest
	sr.RunID = result.RunID
	sr.Errors = result.Errors

	golden := goldenFilePath(file, suite.Name)
	formatted := []byte(trace.Format(result.Trace))

	if opts.Update {
		if err := os.MkdirAll(filepath.Dir(golden), 0755); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to create golden directory: %v", err))
			return sr
		}
		if err := os.WriteFile(golden, formatted, 0644); err != nil {
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to write golden file: %v", err))
			return sr
		}
	} else if want, err := os.ReadFile(golden); err == nil {
		if string(want) != string(formatted) {
			sr.Errors = append(sr.Errors, "trace does not match golden file "+golden+" (run with --update to regenerate)")
		}
	} else if !os.IsNotExist(err) {
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

// goldenFilePath returns <suites>/../golden/<name>.golden, the layout the
// harness package's own golden tests use.
func goldenFilePath(suiteFile, name string) string {
	suitesDir := filepath.Dir(suiteFile)
	return filepath.Join(filepath.Dir(suitesDir), "golden", name+".golden")
}

func printSuiteResult(w io.Writer, sr SuiteResult) {
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s (%dms)\n", sr.Name, sr.HostMS)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeInvalidSuite,
			Message: fmt.Sprintf("%d suite(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d suite(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d suite(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All suites passed")
	return nil
}
