package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordRun panic'd")
		}
	}()

	RecordRunStarted()
	RecordStage("build", 3*time.Second)
	RecordRunError("build")
	RecordRunFinished("error", 4*time.Second)
}

func TestRecordBuildAttempt(t *testing.T) {
	require.NotPanics(t, func() {
		RecordBuildAttempt("buildx", false)
		RecordBuildAttempt("legacy", true)
	})
}

func TestRecordTests(t *testing.T) {
	require.NotPanics(t, func() {
		RecordTests(2, 1, 4)
		RecordTests(0, 0, 0)
	})
}

func TestRecordEvent(t *testing.T) {
	require.NotPanics(t, func() {
		RecordEvent("info")
	})
}
