package workspace

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	re := regexp.MustCompile(`^[0-9a-f]{12}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		require.Regexp(t, re, id)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestProvision(t *testing.T) {
	root := filepath.Join(t.TempDir(), "runs")
	p := NewProvisioner(root)

	ws, err := p.Provision()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, ws.ID), ws.Dir())

	for _, dir := range []string{ws.TestsDir(), ws.ReportsDir(), ws.ScreenshotsDir(), ws.VideosDir(), ws.TracesDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		require.True(t, info.IsDir())
	}

	info, err := os.Stat(ws.ScreenshotsDir())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o777), info.Mode().Perm())
}

func TestProvision_RelativeRoot(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ws, err := NewProvisioner(filepath.Join(".pwbox", "runs")).Provision()
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(ws.Root))
	require.True(t, filepath.IsAbs(ws.ReportsDir()))
	require.DirExists(t, filepath.Join(dir, ".pwbox", "runs", ws.ID))
}

func TestProvision_DistinctRuns(t *testing.T) {
	p := NewProvisioner(t.TempDir())

	a, err := p.Provision()
	require.NoError(t, err)
	b, err := p.Provision()
	require.NoError(t, err)

	require.NotEqual(t, a.ID, b.ID)
	require.NotEqual(t, a.Dir(), b.Dir())
}

func TestProvision_CollisionDrawsNewID(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "aaaaaaaaaaaa"), 0o755))

	ids := []string{"aaaaaaaaaaaa", "bbbbbbbbbbbb"}
	p := &Provisioner{Root: root, newID: func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}}

	ws, err := p.Provision()
	require.NoError(t, err)
	require.Equal(t, "bbbbbbbbbbbb", ws.ID)
}

func TestProvision_Exhausted(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "aaaaaaaaaaaa"), 0o755))

	p := &Provisioner{Root: root, newID: func() string { return "aaaaaaaaaaaa" }}
	_, err := p.Provision()
	require.Error(t, err)
	require.True(t, IsProvisionError(err))
}

func TestProvision_UnwritableRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := NewProvisioner(filepath.Join(file, "runs")).Provision()
	require.Error(t, err)
	require.True(t, IsProvisionError(err))
}

func TestProvision_EmptyRoot(t *testing.T) {
	_, err := NewProvisioner("").Provision()
	require.True(t, IsProvisionError(err))
}

func TestOpen(t *testing.T) {
	p := NewProvisioner(t.TempDir())
	ws, err := p.Provision()
	require.NoError(t, err)

	opened, err := Open(p.Root, ws.ID)
	require.NoError(t, err)
	require.Equal(t, ws.Dir(), opened.Dir())

	_, err = Open(p.Root, "missing")
	require.Error(t, err)
}
