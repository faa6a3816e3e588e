package orchestrator

// This file contains the per-run state shared by the pipeline stages.

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/perfgo/pwbox/events"
	"github.com/perfgo/pwbox/history"
	"github.com/perfgo/pwbox/metrics"
	"github.com/perfgo/pwbox/model"
	"github.com/perfgo/pwbox/workspace"
	"github.com/rs/zerolog"
)

const (
	stdoutFile = "stdout.txt"
	stderrFile = "stderr.txt"
)

type session struct {
	ctx     context.Context
	em      *events.Emitter
	logger  zerolog.Logger
	started time.Time
	run     *model.Run
	ws      *workspace.Workspace
}

func (s *session) emit(ev events.Event) {
	metrics.RecordEvent(string(ev.Type))
	if err := s.em.Emit(s.ctx, ev); err != nil {
		s.logger.Debug().Err(err).Str("type", string(ev.Type)).Msg("Event dropped")
	}
}

func (s *session) info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Debug().Msg(msg)
	s.emit(events.Event{Type: events.TypeInfo, Message: msg})
}

func (s *session) success(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Debug().Msg(msg)
	s.emit(events.Event{Type: events.TypeSuccess, Message: msg})
}

func (s *session) warning(format string, args ...any) {
	s.emit(events.Event{Type: events.TypeWarning, Message: fmt.Sprintf(format, args...)})
}

func (s *session) log(line string) {
	s.emit(events.Event{Type: events.TypeLog, Message: line})
}

// stage starts timing a pipeline stage; call the returned func when it ends.
func (s *session) stage(name string) func() {
	start := time.Now()
	return func() {
		metrics.RecordStage(name, time.Since(start))
	}
}

// fail records the error and ends the stream with an error event.
func (s *session) fail(stage string, err error) *model.Run {
	s.run.Status = model.RunStatusError
	s.run.Error = err.Error()
	s.run.ErrorStage = stage
	s.run.Duration = time.Since(s.started)
	metrics.RecordRunError(stage)

	s.logger.Error().Err(err).Str("stage", stage).Msg("Run failed")

	if s.ws != nil {
		s.run.Artifacts = collectArtifacts(s.logger, s.ws)
		s.record()
	}
	s.emit(events.Event{Type: events.TypeError, Message: failureMessage(stage, err)})
	return s.run
}

// record writes run.json into the workspace.
func (s *session) record() {
	s.run.Duration = time.Since(s.started)
	if err := history.Record(s.ws.Dir(), s.run); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record run metadata")
	}
}

func failureMessage(stage string, err error) string {
	switch stage {
	case StageProvision:
		return fmt.Sprintf("Workspace provisioning failed: %v", err)
	case StageBuild:
		return fmt.Sprintf("Image build failed: %v", err)
	case StageResolve:
		return fmt.Sprintf("Image resolution failed: %v", err)
	case StageRun:
		return fmt.Sprintf("Test container failed: %v", err)
	}
	return err.Error()
}

// saveOutput keeps captured container output next to the run metadata.
func saveOutput(s *session, name, content string) {
	if content == "" {
		return
	}
	path := filepath.Join(s.ws.Dir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		s.logger.Warn().Err(err).Str("file", path).Msg("Failed to save container output")
	}
}

// lineWriter splits written bytes into lines and hands every non-blank line
// to fn. Partial lines are held until the next newline or Flush.
type lineWriter struct {
	buf []byte
	fn  func(string)
}

func newLineWriter(fn func(string)) *lineWriter {
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush hands over a trailing line without newline.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}
	w.fn(line)
}
