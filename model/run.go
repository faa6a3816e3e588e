package model

import "time"

// RunStatus describes how a run ended.
type RunStatus string

const (
	// RunStatusSucceeded means the container ran and produced a structured report.
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusNoReport means the container ran but left no readable report behind.
	RunStatusNoReport RunStatus = "no_report"
	// RunStatusNoTests means the report lists no tests although the test
	// process exited non-zero, typically a collection error.
	RunStatusNoTests RunStatus = "no_tests"
	// RunStatusError means the pipeline stopped before results could be parsed.
	RunStatusError RunStatus = "error"
)

// Run represents a single containerized execution of a test script.
type Run struct {
	// Unique ID for this run (12 lowercase hex chars, safe for paths and image labels)
	ID string `json:"id"`
	// Timestamp when the run was requested
	Timestamp time.Time `json:"timestamp"`
	// Workspace directory owned by this run
	Workspace string `json:"workspace"`
	// Duration of the whole pipeline
	Duration time.Duration `json:"duration"`
	// Final status of the run
	Status RunStatus `json:"status"`
	// Error message, set when Status is RunStatusError
	Error string `json:"error,omitempty"`
	// Stage in which the error happened (provision, build, resolve, run)
	ErrorStage string `json:"error_stage,omitempty"`
	// Transformation rules that changed the script
	Rules []string `json:"rules,omitempty"`
	// Image build invocation form that succeeded
	BuildForm string `json:"build_form,omitempty"`
	// Image ID resolved through the run label
	ImageID string `json:"image_id,omitempty"`
	// Exit code of the test container
	ExitCode int `json:"exit_code"`
	// Normalized test counts
	Summary ResultSummary `json:"summary"`
	// Whether a structured report was found
	ReportFound bool `json:"report_found"`
	// Artifacts produced by the container
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// ResultSummary contains the normalized counts of a test report.
// A zero value means the outcome is unknown.
type ResultSummary struct {
	Passed int `json:"passed"`
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeHTMLReport ArtifactType = iota
	ArtifactTypeJSONReport
	ArtifactTypeScreenshot
	ArtifactTypeVideo
	ArtifactTypeTrace
	ArtifactTypeScript
	ArtifactTypeStdout
	ArtifactTypeStderr
)

// String returns the short name used when listing artifacts.
func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeHTMLReport:
		return "report"
	case ArtifactTypeJSONReport:
		return "json"
	case ArtifactTypeScreenshot:
		return "screenshot"
	case ArtifactTypeVideo:
		return "video"
	case ArtifactTypeTrace:
		return "trace"
	case ArtifactTypeScript:
		return "script"
	case ArtifactTypeStdout:
		return "stdout"
	case ArtifactTypeStderr:
		return "stderr"
	}
	return "unknown"
}

// Artifact represents a file generated during execution
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	File string       `json:"file"` // relative to run dir
}
