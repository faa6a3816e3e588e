// Package report reduces the structured pytest report written inside the
// container to a pass/fail summary.
package report

import (
	"encoding/json"
	"os"

	"github.com/perfgo/pwbox/model"
)

const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
)

type testCase struct {
	NodeID  string `json:"nodeid"`
	Outcome string `json:"outcome"`
}

type document struct {
	Tests []testCase `json:"tests"`
}

// Read parses the report at path. The second return value is false when the
// report is missing or unreadable, in which case the summary is all zero.
func Read(path string) (model.ResultSummary, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ResultSummary{}, false
	}
	return Parse(data)
}

// Parse summarizes a report document. Outcomes other than passed and failed
// (skipped, error, xfail, ...) only count towards the total.
func Parse(data []byte) (model.ResultSummary, bool) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.ResultSummary{}, false
	}

	summary := model.ResultSummary{Total: len(doc.Tests)}
	for _, tc := range doc.Tests {
		switch tc.Outcome {
		case OutcomePassed:
			summary.Passed++
		case OutcomeFailed:
			summary.Failed++
		}
	}
	return summary, true
}
