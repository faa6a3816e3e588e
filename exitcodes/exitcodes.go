// Package exitcodes defines the exit codes used by pwbox.
package exitcodes

import "github.com/perfgo/pwbox/model"

// Exit code constants used by the run command:
//
// * Success (0): the run produced a report and no test failed
// * TestFailure (1): one or more tests failed, no report was produced, or
//   the test process failed without running any test
// * RuntimeErr (2): the run stopped before tests could be evaluated
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures
	RuntimeErr  = 2 // Provisioning, build or container errors
)

// FromRun returns the exit code describing a finished run.
func FromRun(run *model.Run) int {
	switch {
	case run.Status == model.RunStatusError:
		return RuntimeErr
	case run.Status == model.RunStatusNoReport, run.Status == model.RunStatusNoTests, run.Summary.Failed > 0:
		return TestFailure
	}
	return Success
}
