// Package buildctx renders the files that turn a workspace into a container
// build context: the image recipe, the pinned dependency manifest and the
// entrypoint that runs the tests and writes the reports.
package buildctx

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const (
	Dockerfile   = "Dockerfile"
	Requirements = "requirements.txt"
	Entrypoint   = "run_tests.py"

	// ContainerDir is the working directory of the test container.
	ContainerDir = "/app"

	DefaultBaseImage = "python:3.11-slim-bookworm"
	DefaultLabelKey  = "pwbox.run-id"
)

// DefaultPackages pins the Python dependencies installed into every image.
var DefaultPackages = []string{
	"playwright==1.47.0",
	"pytest==8.3.3",
	"pytest-html==4.1.1",
	"pytest-json-report==1.5.0",
	"pytest-timeout==2.3.1",
	"pytest-xdist==3.6.1",
}

// DefaultBrowsers are the browser engines installed into every image.
var DefaultBrowsers = []string{"chromium"}

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("buildctx").
		Delims("[[", "]]").
		Funcs(template.FuncMap{
			"join":   strings.Join,
			"pylist": pyList,
		}).
		ParseFS(templateFS, "templates/*.tmpl"),
)

// Params parameterize the rendered files.
type Params struct {
	RunID       string
	LabelKey    string
	BaseImage   string
	Packages    []string
	Browsers    []string
	TestTimeout int // seconds per test, 0 disables the timeout
	Workers     int // parallel pytest workers, values below 2 run serially
	PytestArgs  []string
	HTMLReport  string
	JSONReport  string
}

// ContainerDir is exposed to the templates.
func (Params) ContainerDir() string {
	return ContainerDir
}

func (p Params) withDefaults() Params {
	if p.LabelKey == "" {
		p.LabelKey = DefaultLabelKey
	}
	if p.BaseImage == "" {
		p.BaseImage = DefaultBaseImage
	}
	if len(p.Packages) == 0 {
		p.Packages = DefaultPackages
	}
	if len(p.Browsers) == 0 {
		p.Browsers = DefaultBrowsers
	}
	if p.HTMLReport == "" {
		p.HTMLReport = "report.html"
	}
	if p.JSONReport == "" {
		p.JSONReport = "report.json"
	}
	return p
}

var files = []struct {
	name     string
	template string
}{
	{Dockerfile, "Dockerfile.tmpl"},
	{Requirements, "requirements.txt.tmpl"},
	{Entrypoint, "run_tests.py.tmpl"},
}

// Render returns the content of one build context file.
func Render(name string, p Params) ([]byte, error) {
	if p.RunID == "" {
		return nil, errors.New("run ID is required")
	}
	p = p.withDefaults()

	for _, f := range files {
		if f.name != name {
			continue
		}
		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, f.template, p); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown build context file: %s", name)
}

// Materialize writes the build context files into dir.
func Materialize(dir string, p Params) error {
	for _, f := range files {
		data, err := Render(f.name, p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

// pyList renders a string slice as a Python list literal. JSON string
// escapes are valid in Python string literals.
func pyList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
