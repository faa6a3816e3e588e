package events

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/perfgo/pwbox/model"
	"github.com/stretchr/testify/require"
)

func collect(e *Emitter) <-chan []Event {
	done := make(chan []Event)
	go func() {
		var got []Event
		for ev := range e.Events() {
			got = append(got, ev)
		}
		done <- got
	}()
	return done
}

func TestEmitter_OrderAndTerminal(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter()
	done := collect(e)

	require.NoError(t, e.Info(ctx, "provisioning %s", "abc"))
	require.NoError(t, e.Log(ctx, "collected 2 items"))
	require.NoError(t, e.Warning(ctx, "stderr line"))
	require.NoError(t, e.Success(ctx, "image built"))
	require.NoError(t, e.Finish(ctx, "done", Result{ResultSummary: model.ResultSummary{Passed: 1, Total: 2, Failed: 1}}))
	require.True(t, e.Terminated())

	require.ErrorIs(t, e.Info(ctx, "late"), ErrTerminated)
	require.ErrorIs(t, e.Error(ctx, "late"), ErrTerminated)
	e.Close()
	e.Close()

	got := <-done
	require.Len(t, got, 5)
	wantTypes := []Type{TypeInfo, TypeLog, TypeWarning, TypeSuccess, TypeResult}
	for i, ev := range got {
		require.Equal(t, wantTypes[i], ev.Type)
		require.Equal(t, i+1, ev.Seq)
		require.False(t, ev.Time.IsZero())
	}
	require.Equal(t, "provisioning abc", got[0].Message)
	require.Equal(t, 2, got[4].Result.Total)
}

func TestEmitter_ErrorIsTerminal(t *testing.T) {
	ctx := context.Background()
	e := NewEmitter()
	done := collect(e)

	require.NoError(t, e.Error(ctx, "build failed"))
	require.ErrorIs(t, e.Finish(ctx, "x", Result{}), ErrTerminated)
	e.Close()

	got := <-done
	require.Len(t, got, 1)
	require.Equal(t, TypeError, got[0].Type)
}

func TestEmitter_DeliversBeforeReturning(t *testing.T) {
	e := NewEmitter()
	received := make(chan Event, 1)

	go func() {
		received <- <-e.Events()
	}()

	require.NoError(t, e.Info(context.Background(), "first"))
	select {
	case ev := <-received:
		require.Equal(t, "first", ev.Message)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestEmitter_ContextCancelled(t *testing.T) {
	e := NewEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, e.Info(ctx, "nobody listens"), context.Canceled)
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WriteSSE(&buf, Event{Type: TypeInfo, Message: "Building image"}))
	require.Equal(t, "data: {\"message\":\"Building image\",\"type\":\"info\"}\n\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteSSE(&buf, Event{Type: TypeResult, Message: "done", Result: &Result{
		ResultSummary: model.ResultSummary{Passed: 2, Total: 3, Failed: 1},
		RunID:         "abc",
		ReportFound:   true,
		ReportURL:     "/artifacts/abc/reports/report.html",
	}}))
	require.Equal(t,
		"data: {\"message\":\"done\",\"type\":\"result\",\"result\":{\"passed\":2,\"total\":3,\"failed\":1,\"run_id\":\"abc\",\"report_found\":true,\"exit_code\":0,\"report_url\":\"/artifacts/abc/reports/report.html\"}}\n\n",
		buf.String())
}
