// Package workspace provisions the per-run directory tree that holds the
// build context and the output subtrees mounted into the test container.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	TestsDir       = "tests"
	ReportsDir     = "reports"
	ScreenshotsDir = "screenshots"
	VideosDir      = "videos"
	TracesDir      = "traces" // inside ReportsDir

	ScriptFile     = "test_generated.py"
	HTMLReportFile = "report.html"
	JSONReportFile = "report.json"
	RunFile        = "run.json"

	idLength    = 12
	maxAttempts = 5

	// Output directories are written by the container user, which rarely
	// matches the host user.
	outputMode os.FileMode = 0o777
	dirMode    os.FileMode = 0o755
)

// ProvisionError is returned when a workspace cannot be created on disk.
type ProvisionError struct {
	Path string
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision workspace %s: %v", e.Path, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// IsProvisionError checks if the error is or wraps a ProvisionError
func IsProvisionError(err error) bool {
	var provisionErr *ProvisionError
	return err != nil && errors.As(err, &provisionErr)
}

// Workspace is the directory tree exclusively owned by one run.
type Workspace struct {
	ID   string
	Root string
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return filepath.Join(w.Root, w.ID)
}

// TestsDir returns the directory holding the transformed script.
func (w *Workspace) TestsDir() string {
	return filepath.Join(w.Dir(), TestsDir)
}

// ScriptPath returns the location of the transformed script.
func (w *Workspace) ScriptPath() string {
	return filepath.Join(w.TestsDir(), ScriptFile)
}

// ReportsDir returns the reports output subtree.
func (w *Workspace) ReportsDir() string {
	return filepath.Join(w.Dir(), ReportsDir)
}

// ScreenshotsDir returns the screenshots output subtree.
func (w *Workspace) ScreenshotsDir() string {
	return filepath.Join(w.Dir(), ScreenshotsDir)
}

// VideosDir returns the recordings output subtree.
func (w *Workspace) VideosDir() string {
	return filepath.Join(w.Dir(), VideosDir)
}

// TracesDir returns the directory the trace archives are written to.
func (w *Workspace) TracesDir() string {
	return filepath.Join(w.ReportsDir(), TracesDir)
}

// JSONReportPath returns the location of the structured test report.
func (w *Workspace) JSONReportPath() string {
	return filepath.Join(w.ReportsDir(), JSONReportFile)
}

// HTMLReportPath returns the location of the human-readable test report.
func (w *Workspace) HTMLReportPath() string {
	return filepath.Join(w.ReportsDir(), HTMLReportFile)
}

// RunPath returns the location of the run metadata.
func (w *Workspace) RunPath() string {
	return filepath.Join(w.Dir(), RunFile)
}

// Provisioner creates workspaces below a configured root directory.
type Provisioner struct {
	Root string

	// newID is replaceable in tests.
	newID func() string
}

// NewProvisioner creates a provisioner rooted at root.
func NewProvisioner(root string) *Provisioner {
	return &Provisioner{Root: root, newID: NewID}
}

// NewID returns a fresh run identifier: 12 lowercase hex characters taken
// from a random UUID, usable both as a directory name and an image label.
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:idLength]
}

// Provision creates a new, empty workspace below the absolute form of the
// root. A colliding identifier is never reused; a new one is drawn instead.
func (p *Provisioner) Provision() (*Workspace, error) {
	if p.Root == "" {
		return nil, &ProvisionError{Path: p.Root, Err: errors.New("no output root configured")}
	}
	// Workspace paths become bind mount sources, which must be absolute.
	root, err := filepath.Abs(p.Root)
	if err != nil {
		return nil, &ProvisionError{Path: p.Root, Err: err}
	}
	if err := os.MkdirAll(root, dirMode); err != nil {
		return nil, &ProvisionError{Path: root, Err: err}
	}

	newID := p.newID
	if newID == nil {
		newID = NewID
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		ws := &Workspace{ID: newID(), Root: root}
		err := os.Mkdir(ws.Dir(), dirMode)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, &ProvisionError{Path: ws.Dir(), Err: err}
		}
		if err := ws.createLayout(); err != nil {
			return nil, &ProvisionError{Path: ws.Dir(), Err: err}
		}
		return ws, nil
	}

	return nil, &ProvisionError{Path: root, Err: fmt.Errorf("no unused run ID after %d attempts", maxAttempts)}
}

func (w *Workspace) createLayout() error {
	if err := os.Mkdir(w.TestsDir(), dirMode); err != nil {
		return err
	}
	for _, dir := range []string{w.ReportsDir(), w.ScreenshotsDir(), w.VideosDir(), w.TracesDir()} {
		if err := os.Mkdir(dir, outputMode); err != nil {
			return err
		}
		// Mkdir is subject to the umask.
		if err := os.Chmod(dir, outputMode); err != nil {
			return err
		}
	}
	return nil
}

// Open returns the workspace of an existing run.
func Open(root, id string) (*Workspace, error) {
	ws := &Workspace{ID: id, Root: root}
	info, err := os.Stat(ws.Dir())
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace %s: %w", id, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", ws.Dir())
	}
	return ws, nil
}
