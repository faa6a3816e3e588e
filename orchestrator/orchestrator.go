// Package orchestrator runs a test script through the whole pipeline and
// reports its progress as events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/perfgo/pwbox/buildctx"
	"github.com/perfgo/pwbox/cli/docker"
	"github.com/perfgo/pwbox/config"
	"github.com/perfgo/pwbox/events"
	"github.com/perfgo/pwbox/metrics"
	"github.com/perfgo/pwbox/model"
	"github.com/perfgo/pwbox/report"
	"github.com/perfgo/pwbox/transform"
	"github.com/perfgo/pwbox/workspace"
	"github.com/rs/zerolog"
)

// ImageRepository is the repository part of every test image tag.
const ImageRepository = "pwbox-test"

// Pipeline stages, used in error messages, run metadata and metrics.
const (
	StageProvision = "provision"
	StageBuild     = "build"
	StageResolve   = "resolve"
	StageRun       = "run"
)

// Engine is the container engine the orchestrator drives.
type Engine interface {
	Build(ctx context.Context, contextDir, tag string) (*docker.BuildResult, error)
	ResolveImage(ctx context.Context, key, value string) (string, error)
	Run(ctx context.Context, opts docker.RunOptions) (*docker.RunResult, error)
}

type Orchestrator struct {
	logger      zerolog.Logger
	cfg         *config.Config
	provisioner *workspace.Provisioner
	pipeline    transform.Pipeline
	engine      Engine
}

// New creates an orchestrator. cfg is expected to be validated.
func New(logger zerolog.Logger, cfg *config.Config, engine Engine) *Orchestrator {
	return &Orchestrator{
		logger:      logger,
		cfg:         cfg,
		provisioner: workspace.NewProvisioner(cfg.OutputRoot),
		pipeline:    transform.New(cfg.TransformOptions()),
		engine:      engine,
	}
}

// Transform returns the container-ready variant of script without running it.
func (o *Orchestrator) Transform(script string) transform.Result {
	return o.pipeline.Apply(script)
}

// Stream executes script in the background. The returned channel yields the
// progress events in order and is closed after the terminal event.
func (o *Orchestrator) Stream(ctx context.Context, script string) <-chan events.Event {
	em := events.NewEmitter()
	go func() {
		defer em.Close()
		o.Execute(ctx, script, em)
	}()
	return em.Events()
}

// Execute runs the pipeline synchronously, emitting progress to em. It always
// ends the stream with exactly one result or error event and returns the
// recorded run.
func (o *Orchestrator) Execute(ctx context.Context, script string, em *events.Emitter) *model.Run {
	s := &session{
		ctx:     ctx,
		em:      em,
		logger:  o.logger,
		started: time.Now(),
		run:     &model.Run{},
	}
	s.run.Timestamp = s.started

	metrics.RecordRunStarted()
	defer func() {
		metrics.RecordRunFinished(string(s.run.Status), s.run.Duration)
	}()

	ws, err := o.prepare(s, script)
	if err != nil {
		return s.fail(StageProvision, err)
	}
	s.ws = ws

	if err := o.build(s); err != nil {
		return s.fail(StageBuild, err)
	}

	imageID, err := o.engine.ResolveImage(ctx, o.cfg.LabelKey, ws.ID)
	if err != nil {
		return s.fail(StageResolve, err)
	}
	s.run.ImageID = imageID
	s.info("Resolved image %s", imageID)

	if err := o.runContainer(s); err != nil {
		return s.fail(StageRun, err)
	}

	return o.finish(s)
}

// prepare provisions the workspace and writes the build context into it.
func (o *Orchestrator) prepare(s *session, script string) (*workspace.Workspace, error) {
	defer s.stage(StageProvision)()

	s.info("Provisioning workspace")
	ws, err := o.provisioner.Provision()
	if err != nil {
		return nil, err
	}
	s.run.ID = ws.ID
	s.run.Workspace = ws.Dir()
	s.logger = o.logger.With().Str("run_id", ws.ID).Logger()
	s.ws = ws
	s.success("Workspace %s ready", ws.ID)

	res := o.pipeline.Apply(script)
	s.run.Rules = res.Applied
	if err := os.WriteFile(ws.ScriptPath(), []byte(res.Script), 0644); err != nil {
		return nil, &workspace.ProvisionError{Path: ws.ScriptPath(), Err: err}
	}
	if len(res.Applied) > 0 {
		s.info("Script prepared for the container (%s)", strings.Join(res.Applied, ", "))
	} else {
		s.info("Script needed no rewrites")
	}

	params, err := o.cfg.BuildParams(ws.ID)
	if err != nil {
		return nil, &workspace.ProvisionError{Path: ws.Dir(), Err: err}
	}
	if err := buildctx.Materialize(ws.Dir(), params); err != nil {
		return nil, &workspace.ProvisionError{Path: ws.Dir(), Err: err}
	}
	s.success("Build context written")
	return ws, nil
}

func (o *Orchestrator) build(s *session) error {
	defer s.stage(StageBuild)()

	tag := ImageRepository + ":" + s.ws.ID
	s.info("Building test image %s", tag)

	res, err := o.engine.Build(s.ctx, s.ws.Dir(), tag)

	var attempts []docker.Attempt
	var buildErr *docker.BuildError
	switch {
	case res != nil:
		attempts = res.Attempts
	case errors.As(err, &buildErr):
		attempts = buildErr.Attempts
	}
	for _, a := range attempts {
		metrics.RecordBuildAttempt(a.Form, false)
		if err == nil {
			s.warning("Image build with %s failed, falling back: %s", a.Form, docker.Tail(a.Output, 1))
		}
	}
	if err != nil {
		return err
	}

	metrics.RecordBuildAttempt(res.Form, true)
	s.run.BuildForm = res.Form
	s.success("Image built (%s)", res.Form)
	return nil
}

func (o *Orchestrator) runContainer(s *session) error {
	defer s.stage(StageRun)()

	s.info("Running tests")
	stdout := newLineWriter(s.log)
	stderr := newLineWriter(func(line string) { s.warning("%s", line) })

	res, err := o.engine.Run(s.ctx, docker.RunOptions{
		Image: s.run.ImageID,
		Mounts: []docker.Mount{
			{Source: s.ws.ReportsDir(), Target: buildctx.ContainerDir + "/" + workspace.ReportsDir},
			{Source: s.ws.ScreenshotsDir(), Target: buildctx.ContainerDir + "/" + workspace.ScreenshotsDir},
			{Source: s.ws.VideosDir(), Target: buildctx.ContainerDir + "/" + workspace.VideosDir},
		},
		Hosts:  map[string]string{o.cfg.HostAlias: "host-gateway"},
		Keep:   o.cfg.KeepContainers,
		Stdout: stdout,
		Stderr: stderr,
	})
	stdout.Flush()
	stderr.Flush()
	if err != nil {
		return err
	}

	s.run.ExitCode = res.ExitCode
	saveOutput(s, stdoutFile, res.Stdout)
	saveOutput(s, stderrFile, res.Stderr)
	return nil
}

func (o *Orchestrator) finish(s *session) *model.Run {
	summary, found := report.Read(s.ws.JSONReportPath())
	s.run.Summary = summary
	s.run.ReportFound = found
	switch {
	case !found:
		s.run.Status = model.RunStatusNoReport
		s.warning("No structured report produced (container exit code %d)", s.run.ExitCode)
	case summary.Total == 0 && s.run.ExitCode != 0:
		s.run.Status = model.RunStatusNoTests
		s.warning("Report lists no tests (container exit code %d), check the output for collection errors", s.run.ExitCode)
	default:
		s.run.Status = model.RunStatusSucceeded
	}
	if found {
		metrics.RecordTests(summary.Passed, summary.Failed, summary.Total)
	}

	s.run.Artifacts = collectArtifacts(s.logger, s.ws)
	s.record()

	result := o.result(s)
	message := fmt.Sprintf("Tests finished: %d passed, %d failed, %d total", summary.Passed, summary.Failed, summary.Total)
	switch s.run.Status {
	case model.RunStatusNoReport:
		message = "Tests finished without a report"
	case model.RunStatusNoTests:
		message = fmt.Sprintf("No tests ran (container exit code %d)", s.run.ExitCode)
	}
	s.emit(events.Event{Type: events.TypeResult, Message: message, Result: &result})

	s.logger.Info().
		Int("passed", summary.Passed).
		Int("failed", summary.Failed).
		Int("total", summary.Total).
		Bool("report_found", found).
		Msg("Run finished")
	return s.run
}

func (o *Orchestrator) result(s *session) events.Result {
	r := events.Result{
		ResultSummary:  s.run.Summary,
		RunID:          s.run.ID,
		ReportFound:    s.run.ReportFound,
		ExitCode:       s.run.ExitCode,
		ScreenshotsURL: o.artifactURL(s.run.ID, workspace.ScreenshotsDir),
		VideosURL:      o.artifactURL(s.run.ID, workspace.VideosDir),
		TracesURL:      o.artifactURL(s.run.ID, workspace.ReportsDir, workspace.TracesDir),
	}
	if _, err := os.Stat(s.ws.HTMLReportPath()); err == nil {
		r.ReportURL = o.artifactURL(s.run.ID, workspace.ReportsDir, workspace.HTMLReportFile)
	}
	if s.run.ReportFound {
		r.JSONReportURL = o.artifactURL(s.run.ID, workspace.ReportsDir, workspace.JSONReportFile)
	}
	return r
}

// artifactURL returns where an artifact is served from, relative to the
// configured base.
func (o *Orchestrator) artifactURL(runID string, elem ...string) string {
	u, err := url.JoinPath(o.cfg.ArtifactBaseURL, append([]string{runID}, elem...)...)
	if err != nil {
		return strings.TrimRight(o.cfg.ArtifactBaseURL, "/") + "/" + runID + "/" + strings.Join(elem, "/")
	}
	return u
}
