// Package docker provides a client for the docker CLI. It builds test
// images with a fallback chain of invocation forms, resolves them by label
// and runs them with the run's output directories mounted.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
)

const DefaultBinary = "docker"

// Exit codes the docker CLI uses when the container itself could not run.
const (
	exitDaemonError    = 125
	exitCannotInvoke   = 126
	exitCommandMissing = 127
)

// Command is a single CLI invocation.
type Command struct {
	Name   string
	Args   []string
	Env    []string // added to the current environment
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command the way it could be typed into a shell.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Env)+len(c.Args)+1)
	for _, env := range c.Env {
		parts = append(parts, shellescape.Quote(env))
	}
	parts = append(parts, shellescape.Quote(c.Name))
	for _, arg := range c.Args {
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}

// Runner executes commands. The returned error exposes ExitCode() when the
// command ran and exited non-zero.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return cmd.Run()
}

// BuildForm is one way of invoking an image build.
type BuildForm struct {
	Name string
	Env  []string
	Args []string // tag and context directory are appended
}

// DefaultBuildForms are tried in order until one succeeds.
var DefaultBuildForms = []BuildForm{
	{Name: "build", Args: []string{"build"}},
	{Name: "buildx", Args: []string{"buildx", "build", "--load"}},
	{Name: "legacy", Env: []string{"DOCKER_BUILDKIT=0"}, Args: []string{"build"}},
}

// Client manages docker commands.
type Client struct {
	logger zerolog.Logger
	binary string
	runner Runner
	forms  []BuildForm
}

// New creates a client for the given docker binary. If binary is empty,
// "docker" is looked up in PATH.
func New(logger zerolog.Logger, binary string) *Client {
	return NewWithRunner(logger, binary, execRunner{})
}

// NewWithRunner creates a client that executes commands through runner.
func NewWithRunner(logger zerolog.Logger, binary string, runner Runner) *Client {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Client{
		logger: logger,
		binary: binary,
		runner: runner,
		forms:  DefaultBuildForms,
	}
}

// WithBuildForms replaces the build fallback chain.
func (c *Client) WithBuildForms(forms []BuildForm) *Client {
	c.forms = forms
	return c
}

// Binary returns the docker binary this client invokes.
func (c *Client) Binary() string {
	return c.binary
}

// Attempt records one build invocation.
type Attempt struct {
	Form    string
	Command string
	Err     error
	Output  string
}

// BuildResult describes a successful build.
type BuildResult struct {
	Form     string
	Tag      string
	Attempts []Attempt // failed attempts preceding the successful one
}

// Build builds the context in contextDir and tags the image with tag. The
// build forms are tried in order; the first that exits successfully wins.
func (c *Client) Build(ctx context.Context, contextDir, tag string) (*BuildResult, error) {
	var attempts []Attempt

	for _, form := range c.forms {
		args := append(append([]string{}, form.Args...), "-t", tag, contextDir)
		cmd := Command{Name: c.binary, Args: args, Env: form.Env}

		c.logger.Debug().
			Str("form", form.Name).
			Str("command", cmd.String()).
			Msg("Building image")

		stdout, stderr, err := c.run(ctx, cmd)
		if err == nil {
			c.logger.Info().Str("form", form.Name).Str("tag", tag).Msg("Image built")
			return &BuildResult{Form: form.Name, Tag: tag, Attempts: attempts}, nil
		}
		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{Form: form.Name, Command: cmd.String(), Err: ctx.Err()})
			break
		}

		c.logger.Warn().
			Err(err).
			Str("form", form.Name).
			Msg("Image build attempt failed")
		attempts = append(attempts, Attempt{
			Form:    form.Name,
			Command: cmd.String(),
			Err:     err,
			Output:  stdout + stderr,
		})
	}

	return nil, &BuildError{Attempts: attempts}
}

// ResolveImage returns the ID of the most recent image labeled key=value.
func (c *Client) ResolveImage(ctx context.Context, key, value string) (string, error) {
	label := key + "=" + value
	stdout, stderr, err := c.run(ctx, Command{
		Name: c.binary,
		Args: []string{"images", "--filter", "label=" + label, "--format", "{{.ID}}"},
	})
	if err != nil {
		return "", &ImageResolutionError{Label: label, Err: fmt.Errorf("docker command failed: %w (stderr: %s)", err, strings.TrimSpace(stderr))}
	}

	for _, line := range strings.Split(stdout, "\n") {
		if id := strings.TrimSpace(line); id != "" {
			c.logger.Debug().Str("label", label).Str("image", id).Msg("Resolved image")
			return id, nil
		}
	}
	return "", &ImageResolutionError{Label: label}
}

// Mount binds a host directory into the container.
type Mount struct {
	Source string
	Target string
}

// RunOptions configure a test container.
type RunOptions struct {
	Image  string
	Mounts []Mount
	// Hosts maps extra host names to addresses ("host-gateway" for the host).
	Hosts map[string]string
	// Keep leaves the stopped container behind instead of removing it.
	Keep bool
	// Optional writers receiving output while the container runs.
	Stdout io.Writer
	Stderr io.Writer
}

// RunResult is the outcome of a container that ran to completion.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RunArgs returns the docker arguments for opts.
func RunArgs(opts RunOptions) []string {
	args := []string{"run"}
	if !opts.Keep {
		args = append(args, "--rm")
	}
	for _, host := range slices.Sorted(maps.Keys(opts.Hosts)) {
		args = append(args, "--add-host="+host+":"+opts.Hosts[host])
	}
	for _, m := range opts.Mounts {
		args = append(args, "-v", m.Source+":"+m.Target)
	}
	return append(args, opts.Image)
}

// Run starts a container and waits for it to exit. A non-zero exit code of
// the tests is reported in the result; only failures to start the container
// are returned as RunError.
func (c *Client) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd := Command{
		Name:   c.binary,
		Args:   RunArgs(opts),
		Stdout: teeWriter(&stdoutBuf, opts.Stdout),
		Stderr: teeWriter(&stderrBuf, opts.Stderr),
	}

	c.logger.Debug().Str("command", cmd.String()).Msg("Starting container")

	err := c.runner.Run(ctx, cmd)
	result := &RunResult{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	if err == nil {
		return result, nil
	}

	code, ok := exitCode(err)
	if !ok || ctx.Err() != nil {
		return nil, &RunError{Image: opts.Image, ExitCode: -1, Stderr: result.Stderr, Err: err}
	}
	switch code {
	case exitDaemonError, exitCannotInvoke, exitCommandMissing:
		return nil, &RunError{Image: opts.Image, ExitCode: code, Stderr: result.Stderr, Err: err}
	}

	c.logger.Info().Int("exit_code", code).Msg("Container exited with non-zero code")
	result.ExitCode = code
	return result, nil
}

func (c *Client) run(ctx context.Context, cmd Command) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := c.runner.Run(ctx, cmd)
	return stdout.String(), stderr.String(), err
}

func exitCode(err error) (int, bool) {
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		code := coder.ExitCode()
		return code, code >= 0
	}
	return 0, false
}

func teeWriter(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
