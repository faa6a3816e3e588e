package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/perfgo/pwbox/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func recordRun(t *testing.T, root, id string, ts time.Time) {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, Record(dir, &model.Run{
		ID:        id,
		Timestamp: ts,
		Status:    model.RunStatusSucceeded,
		Summary:   model.ResultSummary{Passed: 1, Total: 1},
	}))
}

func TestRecordAndLoad(t *testing.T) {
	dir := t.TempDir()
	run := &model.Run{
		ID:          "0123456789ab",
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:      model.RunStatusNoReport,
		ExitCode:    2,
		BuildForm:   "buildx",
		ReportFound: false,
		Artifacts:   []model.Artifact{{Type: model.ArtifactTypeVideo, Size: 10, File: "videos/a.webm"}},
	}
	require.NoError(t, Record(dir, run))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, *run, loaded)
}

func TestLoadEntries(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	recordRun(t, root, "aaaa00000001", now.Add(-2*time.Hour))
	recordRun(t, root, "bbbb00000002", now)
	recordRun(t, root, "cccc00000003", now.Add(-time.Hour))

	// workspaces without metadata and broken metadata are skipped
	require.NoError(t, os.Mkdir(filepath.Join(root, "in-progress"), 0755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "broken"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken", FileName), []byte("{"), 0644))

	entries, err := LoadEntries(zerolog.Nop(), root)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "bbbb00000002", entries[0].Run.ID)
	require.Equal(t, "cccc00000003", entries[1].Run.ID)
	require.Equal(t, "aaaa00000001", entries[2].Run.ID)
	require.Equal(t, filepath.Join(root, "bbbb00000002"), entries[0].FullPath)
}

func TestLoadEntries_MissingRoot(t *testing.T) {
	entries, err := LoadEntries(zerolog.Nop(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestFind(t *testing.T) {
	entries := []Entry{
		{Run: model.Run{ID: "bbbb00000002"}},
		{Run: model.Run{ID: "cccc00000003"}},
		{Run: model.Run{ID: "12345678abcd"}},
	}

	tests := []struct {
		arg     string
		wantID  string
		wantErr bool
	}{
		{arg: "0", wantID: "bbbb00000002"},
		{arg: "-1", wantID: "cccc00000003"},
		{arg: "-2", wantID: "12345678abcd"},
		{arg: "-3", wantErr: true},
		{arg: "1", wantErr: true},
		{arg: "CCCC", wantID: "cccc00000003"},
		{arg: "1234", wantID: "12345678abcd"},
		{arg: "ffff", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			entry, err := Find(entries, tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, entry.Run.ID)
		})
	}

	_, err := Find(nil, "0")
	require.Error(t, err)
}
