package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/vcav-io/website/internal/trace"
)

// RunWithGolden runs a suite and compares its trace against
// testdata/golden/{suite.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can make further assertions. Test failure
// (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, suite *Suite) (*Result, error) {
	t.Helper()

	result, err := Run(suite)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, suite.Name, result)
	return result, nil
}

// AssertGolden compares a result's trace against a golden file without
// re-running the suite.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(trace.Format(result.Trace)))
}
