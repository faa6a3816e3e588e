package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/perfgo/pwbox/cli/docker"
	"github.com/perfgo/pwbox/config"
	"github.com/perfgo/pwbox/orchestrator"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "pwbox"

type App struct {
	logger zerolog.Logger
	cli    *cli.App
	cfg    *config.Config
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger: logger,
		cli: &cli.App{
			Name:  AppName,
			Usage: "Run browser test scripts in disposable containers",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "YAML configuration file",
					EnvVars: []string{"PWBOX_CONFIG"},
				},
				&cli.StringFlag{
					Name:    "output-root",
					Usage:   "Directory below which run workspaces are created",
					EnvVars: []string{"PWBOX_OUTPUT_ROOT"},
				},
				&cli.StringFlag{
					Name:  "host-alias",
					Usage: "Host name under which containers reach this machine",
				},
				&cli.StringFlag{
					Name:    "docker",
					Usage:   "Container engine CLI to invoke",
					EnvVars: []string{"PWBOX_DOCKER"},
				},
			},
		},
	}
	app.cli.Before = func(ctx *cli.Context) error {
		if ctx.Bool("verbose") {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return app.loadConfig(ctx)
	}

	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run a test script in a container and stream its progress",
		ArgsUsage: "<script|->",
		Action:    app.run,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "sse",
				Usage: "Print raw server-sent-event frames instead of formatted output",
			},
			&cli.BoolFlag{
				Name:  "keep",
				Usage: "Keep the stopped test container (don't remove it after the run)",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "transform",
		Usage:     "Print the container-ready variant of a test script",
		ArgsUsage: "<script|->",
		Action:    app.transform,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous test runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by run status (succeeded, no_report, no_tests, error)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "View a test run from history",
		ArgsUsage:       "[ID|INDEX] [ARTIFACT...]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `View a test run from history.

Arguments:
  0           View last test run (default)
  -1          View 2nd last test run
  -2          View 3rd last test run
  <hex-id>    View test run matching the hex ID prefix

Artifacts (printed after the run details):
  stdout, stderr, script, json

Examples:
  pwbox view                # View last test run
  pwbox view -1             # View 2nd last test run
  pwbox view abc123 script  # Show the transformed script of run abc123
  pwbox view -- stderr      # Show stderr of the last run

Display Priority (without artifact arguments):
  1. Container stdout
  2. Container stderr
  3. Other artifacts (not displayed, only listed)`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "serve",
		Usage:  "Serve test runs over HTTP",
		Action: app.serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default from config, :8000)",
			},
		},
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.cli.Version = version
	if commit != "none" && commit != "" {
		if len(commit) > 8 {
			commit = commit[:8]
		}
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
	}
}

// loadConfig reads the configuration file and applies the global flags.
func (a *App) loadConfig(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}
	if ctx.IsSet("output-root") {
		cfg.OutputRoot = ctx.String("output-root")
	}
	if ctx.IsSet("host-alias") {
		cfg.HostAlias = ctx.String("host-alias")
	}
	if ctx.IsSet("docker") {
		cfg.DockerBinary = ctx.String("docker")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.logger.Debug().
		Str("output_root", cfg.OutputRoot).
		Str("docker", cfg.DockerBinary).
		Str("host_alias", cfg.HostAlias).
		Msg("Configuration loaded")
	a.cfg = cfg
	return nil
}

func (a *App) newOrchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(a.logger, a.cfg, docker.New(a.logger, a.cfg.DockerBinary))
}
