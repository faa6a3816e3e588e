package orchestrator

// This file contains artifact registration for files a run leaves in its
// workspace.

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/perfgo/pwbox/model"
	"github.com/perfgo/pwbox/workspace"
	"github.com/rs/zerolog"
)

// collectArtifacts lists the artifacts found in ws. Paths are relative to
// the workspace directory.
func collectArtifacts(logger zerolog.Logger, ws *workspace.Workspace) []model.Artifact {
	var artifacts []model.Artifact

	add := func(t model.ArtifactType, path string, size int64) {
		rel, err := filepath.Rel(ws.Dir(), path)
		if err != nil {
			return
		}
		artifacts = append(artifacts, model.Artifact{
			Type: t,
			Size: uint64(size),
			File: filepath.ToSlash(rel),
		})
		logger.Debug().
			Str("file", rel).
			Str("type", t.String()).
			Int64("size", size).
			Msg("Registered artifact")
	}

	for _, dir := range []string{ws.ReportsDir(), ws.ScreenshotsDir(), ws.VideosDir()} {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			t, ok := classify(ws, path)
			if !ok {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			add(t, path, info.Size())
			return nil
		})
		if err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("Failed to scan artifacts")
		}
	}

	for _, f := range []struct {
		t    model.ArtifactType
		path string
	}{
		{model.ArtifactTypeScript, ws.ScriptPath()},
		{model.ArtifactTypeStdout, filepath.Join(ws.Dir(), stdoutFile)},
		{model.ArtifactTypeStderr, filepath.Join(ws.Dir(), stderrFile)},
	} {
		if size, ok := fileSize(f.path); ok {
			add(f.t, f.path, size)
		}
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		if artifacts[i].Type != artifacts[j].Type {
			return artifacts[i].Type < artifacts[j].Type
		}
		return artifacts[i].File < artifacts[j].File
	})
	return artifacts
}

// classify maps a file below one of the output directories to its type.
func classify(ws *workspace.Workspace, path string) (model.ArtifactType, bool) {
	dir := filepath.Dir(path)
	ext := strings.ToLower(filepath.Ext(path))

	switch {
	case path == ws.HTMLReportPath():
		return model.ArtifactTypeHTMLReport, true
	case path == ws.JSONReportPath():
		return model.ArtifactTypeJSONReport, true
	case dir == ws.TracesDir() && ext == ".zip":
		return model.ArtifactTypeTrace, true
	case strings.HasPrefix(path, ws.ScreenshotsDir()+string(filepath.Separator)):
		return model.ArtifactTypeScreenshot, true
	case strings.HasPrefix(path, ws.VideosDir()+string(filepath.Separator)):
		return model.ArtifactTypeVideo, true
	}
	return 0, false
}

func fileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}
