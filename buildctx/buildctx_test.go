package buildctx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender_Dockerfile(t *testing.T) {
	data, err := Render(Dockerfile, Params{RunID: "0123456789ab"})
	require.NoError(t, err)
	out := string(data)

	require.True(t, strings.HasPrefix(out, "FROM "+DefaultBaseImage+"\n"))
	require.Contains(t, out, `LABEL pwbox.run-id="0123456789ab"`)
	require.Contains(t, out, "WORKDIR /app")
	require.Contains(t, out, "RUN python -m playwright install-deps chromium")
	require.Contains(t, out, "RUN python -m playwright install chromium")
	require.Contains(t, out, "COPY tests/ ./tests/")
	require.Contains(t, out, `CMD ["python", "run_tests.py"]`)

	// dependencies are installed before the browser engine
	require.Less(t, strings.Index(out, "pip install"), strings.Index(out, "playwright install-deps"))
}

func TestRender_CustomLabelAndBrowsers(t *testing.T) {
	data, err := Render(Dockerfile, Params{
		RunID:     "abc",
		LabelKey:  "example.run",
		BaseImage: "python:3.12-slim",
		Browsers:  []string{"chromium", "firefox"},
	})
	require.NoError(t, err)
	out := string(data)

	require.Contains(t, out, "FROM python:3.12-slim")
	require.Contains(t, out, `LABEL example.run="abc"`)
	require.Contains(t, out, "playwright install chromium firefox")
}

func TestRender_Requirements(t *testing.T) {
	data, err := Render(Requirements, Params{RunID: "abc"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, DefaultPackages, lines)
	for _, line := range lines {
		require.Contains(t, line, "==", "unpinned requirement %q", line)
	}
}

func TestRender_Entrypoint(t *testing.T) {
	data, err := Render(Entrypoint, Params{
		RunID:       "abc",
		TestTimeout: 90,
		Workers:     2,
		PytestArgs:  []string{"-k", `login and "admin"`},
	})
	require.NoError(t, err)
	out := string(data)

	require.Contains(t, out, `RUN_ID = "abc"`)
	require.Contains(t, out, `JSON_REPORT = os.path.join(REPORTS_DIR, "report.json")`)
	require.Contains(t, out, `HTML_REPORT = os.path.join(REPORTS_DIR, "report.html")`)
	require.Contains(t, out, "TIMEOUT = 90\n")
	require.Contains(t, out, "WORKERS = 2\n")
	require.Contains(t, out, `EXTRA_ARGS = ["-k","login and \"admin\""]`)
	require.Contains(t, out, "def pytest_runtest_makereport(item, call):")
	require.Contains(t, out, "--self-contained-html")
}

func TestRender_EmptyArgs(t *testing.T) {
	data, err := Render(Entrypoint, Params{RunID: "abc"})
	require.NoError(t, err)
	require.Contains(t, string(data), "EXTRA_ARGS = []\n")
}

func TestRender_Errors(t *testing.T) {
	_, err := Render(Dockerfile, Params{})
	require.Error(t, err)

	_, err = Render("Makefile", Params{RunID: "abc"})
	require.Error(t, err)
}

func TestMaterialize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Materialize(dir, Params{RunID: "abc"}))

	for _, name := range []string{Dockerfile, Requirements, Entrypoint} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		require.NotZero(t, info.Size())
	}
}
