package docker

import (
	"errors"
	"fmt"
	"strings"
)

// BuildError is returned when every build invocation form failed. Its message
// carries the complete output of the last attempt.
type BuildError struct {
	Attempts []Attempt
}

func (e *BuildError) Error() string {
	if len(e.Attempts) == 0 {
		return "image build failed: no build forms configured"
	}
	last := e.Attempts[len(e.Attempts)-1]
	msg := fmt.Sprintf("image build failed after %d attempts, last (%s): %v", len(e.Attempts), last.Form, last.Err)
	if out := strings.TrimRight(last.Output, "\n"); strings.TrimSpace(out) != "" {
		msg += "\n" + out
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *BuildError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// IsBuildError checks if the error is or wraps a BuildError
func IsBuildError(err error) bool {
	var buildErr *BuildError
	return err != nil && errors.As(err, &buildErr)
}

// ImageResolutionError is returned when no image carries the run label.
type ImageResolutionError struct {
	Label string
	Err   error
}

func (e *ImageResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to resolve image with label %s: %v", e.Label, e.Err)
	}
	return fmt.Sprintf("no image found with label %s", e.Label)
}

// Unwrap implements the errors.Unwrap interface
func (e *ImageResolutionError) Unwrap() error {
	return e.Err
}

// IsImageResolutionError checks if the error is or wraps an ImageResolutionError
func IsImageResolutionError(err error) bool {
	var resolveErr *ImageResolutionError
	return err != nil && errors.As(err, &resolveErr)
}

// RunError is returned when the test container could not be started.
// Tests failing inside a running container are not a RunError.
type RunError struct {
	Image    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("failed to start container from image %s: %v", e.Image, e.Err)
	if tail := Tail(e.Stderr, 10); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *RunError) Unwrap() error {
	return e.Err
}

// IsRunError checks if the error is or wraps a RunError
func IsRunError(err error) bool {
	var runErr *RunError
	return err != nil && errors.As(err, &runErr)
}

// Tail returns the last n non-empty lines of s.
func Tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	var kept []string
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			kept = append(kept, lines[i])
		}
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}
