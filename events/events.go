// Package events carries the progress of a run to its caller. Events are
// delivered one at a time, in the order they were emitted, and every stream
// ends with exactly one terminal event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/perfgo/pwbox/model"
)

// Type categorizes an event.
type Type string

const (
	TypeInfo    Type = "info"
	TypeLog     Type = "log"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
	TypeResult  Type = "result"
)

// Terminal reports whether an event of this type ends the stream.
func (t Type) Terminal() bool {
	return t == TypeError || t == TypeResult
}

// Result is the payload of the terminal result event.
type Result struct {
	model.ResultSummary
	RunID          string `json:"run_id"`
	ReportFound    bool   `json:"report_found"`
	ExitCode       int    `json:"exit_code"`
	ReportURL      string `json:"report_url,omitempty"`
	JSONReportURL  string `json:"json_report_url,omitempty"`
	ScreenshotsURL string `json:"screenshots_url,omitempty"`
	VideosURL      string `json:"videos_url,omitempty"`
	TracesURL      string `json:"traces_url,omitempty"`
}

// Event is a single progress notification.
type Event struct {
	Message string  `json:"message,omitempty"`
	Type    Type    `json:"type"`
	Result  *Result `json:"result,omitempty"`

	// Seq and Time are assigned by the emitter.
	Seq  int       `json:"-"`
	Time time.Time `json:"-"`
}

// ErrTerminated is returned when emitting after the terminal event.
var ErrTerminated = errors.New("event stream already terminated")

// Emitter pushes events to a single consumer over an unbuffered channel, so
// an event is handed over before the producer continues.
type Emitter struct {
	mu         sync.Mutex
	ch         chan Event
	seq        int
	terminated bool
	closed     bool
	now        func() time.Time
}

// NewEmitter creates an emitter. The consumer reads from Events().
func NewEmitter() *Emitter {
	return &Emitter{
		ch:  make(chan Event),
		now: time.Now,
	}
}

// Events returns the stream of emitted events. It is closed by Close.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Terminated reports whether the terminal event has been emitted.
func (e *Emitter) Terminated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminated
}

// Emit delivers ev to the consumer. It blocks until the consumer receives the
// event or ctx is done. Nothing is delivered after a terminal event.
func (e *Emitter) Emit(ctx context.Context, ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminated || e.closed {
		return ErrTerminated
	}
	if ev.Type.Terminal() {
		e.terminated = true
	}
	e.seq++
	ev.Seq = e.seq
	ev.Time = e.now()

	select {
	case e.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the stream. It is safe to call more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

func (e *Emitter) Info(ctx context.Context, format string, args ...any) error {
	return e.Emit(ctx, Event{Type: TypeInfo, Message: fmt.Sprintf(format, args...)})
}

func (e *Emitter) Log(ctx context.Context, line string) error {
	return e.Emit(ctx, Event{Type: TypeLog, Message: line})
}

func (e *Emitter) Success(ctx context.Context, format string, args ...any) error {
	return e.Emit(ctx, Event{Type: TypeSuccess, Message: fmt.Sprintf(format, args...)})
}

func (e *Emitter) Warning(ctx context.Context, format string, args ...any) error {
	return e.Emit(ctx, Event{Type: TypeWarning, Message: fmt.Sprintf(format, args...)})
}

// Error emits the terminal error event.
func (e *Emitter) Error(ctx context.Context, format string, args ...any) error {
	return e.Emit(ctx, Event{Type: TypeError, Message: fmt.Sprintf(format, args...)})
}

// Finish emits the terminal result event.
func (e *Emitter) Finish(ctx context.Context, message string, result Result) error {
	return e.Emit(ctx, Event{Type: TypeResult, Message: message, Result: &result})
}

// WriteSSE writes ev as a server-sent-events frame: "data: <json>\n\n".
func WriteSSE(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
