package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
	"gopkg.in/yaml.v3"

	"github.com/perfgo/pwbox/buildctx"
	"github.com/perfgo/pwbox/cli/docker"
	"github.com/perfgo/pwbox/transform"
)

const DefaultOutputRoot = ".pwbox/runs"

type Config struct {
	// Directory below which every run gets its own workspace
	OutputRoot string `yaml:"output_root"`
	// Container engine CLI
	DockerBinary string `yaml:"docker_binary"`
	// Name under which the container reaches the host
	HostAlias string `yaml:"host_alias"`
	// Image label carrying the run ID
	LabelKey string `yaml:"label_key"`
	// Keep stopped test containers instead of removing them
	KeepContainers bool `yaml:"keep_containers"`

	Image  ImageConfig  `yaml:"image"`
	Pytest PytestConfig `yaml:"pytest"`

	// Prefix of the artifact URLs reported to callers
	ArtifactBaseURL string `yaml:"artifact_base_url"`

	Selectors transform.SelectorPolicy `yaml:"selectors"`

	Server ServerConfig `yaml:"server"`
}

type ImageConfig struct {
	BaseImage string   `yaml:"base_image"`
	Packages  []string `yaml:"packages"` // name==version
	Browsers  []string `yaml:"browsers"`
}

type PytestConfig struct {
	// Per-test timeout, 0 disables it
	Timeout time.Duration `yaml:"timeout"`
	Workers int           `yaml:"workers"`
	// Extra arguments, shell syntax
	Args string `yaml:"args"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		OutputRoot:      DefaultOutputRoot,
		DockerBinary:    docker.DefaultBinary,
		HostAlias:       transform.DefaultHostAlias,
		LabelKey:        buildctx.DefaultLabelKey,
		ArtifactBaseURL: "/artifacts",
		Image: ImageConfig{
			BaseImage: buildctx.DefaultBaseImage,
			Packages:  append([]string{}, buildctx.DefaultPackages...),
			Browsers:  append([]string{}, buildctx.DefaultBrowsers...),
		},
		Pytest: PytestConfig{
			Timeout: 5 * time.Minute,
			Workers: 1,
		},
		Selectors: transform.DefaultSelectorPolicy(),
		Server: ServerConfig{
			Addr:           ":8000",
			AllowedOrigins: []string{"*"},
			RunTimeout:     30 * time.Minute,
		},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the
// defaults.
func Load(file string) (*Config, error) {
	cfg := Default()
	if file == "" {
		return cfg, nil
	}

	contents, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
	}
	return cfg, nil
}

// PytestArgs splits the configured extra arguments.
func (c *Config) PytestArgs() ([]string, error) {
	if strings.TrimSpace(c.Pytest.Args) == "" {
		return nil, nil
	}
	args, err := shellwords.Parse(c.Pytest.Args)
	if err != nil {
		return nil, fmt.Errorf("invalid pytest args %q: %w", c.Pytest.Args, err)
	}
	return args, nil
}

func (c *Config) Validate() error {
	if c.OutputRoot == "" {
		return errors.New("output_root is missing")
	}
	if c.DockerBinary == "" {
		return errors.New("docker_binary is missing")
	}
	if c.HostAlias == "" {
		return errors.New("host_alias is missing")
	}
	if c.LabelKey == "" || strings.ContainsAny(c.LabelKey, "= \t") {
		return fmt.Errorf("invalid label_key %q", c.LabelKey)
	}
	if c.Image.BaseImage == "" {
		return errors.New("image.base_image is missing")
	}
	if len(c.Image.Packages) == 0 {
		return errors.New("image.packages is empty")
	}
	for _, pkg := range c.Image.Packages {
		name, version, ok := strings.Cut(pkg, "==")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(version) == "" {
			return fmt.Errorf("package [%s] is not pinned (expected name==version)", pkg)
		}
	}
	if c.Pytest.Timeout < 0 {
		return errors.New("pytest.timeout must not be negative")
	}
	if c.Pytest.Workers < 0 {
		return errors.New("pytest.workers must not be negative")
	}
	if _, err := c.PytestArgs(); err != nil {
		return err
	}
	for _, hint := range c.Selectors.Hints {
		if len(hint.Keywords) == 0 || len(hint.Candidates) == 0 {
			return fmt.Errorf("selector hint [%s] needs keywords and candidates", hint.Name)
		}
	}
	return nil
}

// BuildParams returns the build context parameters for a run.
func (c *Config) BuildParams(runID string) (buildctx.Params, error) {
	args, err := c.PytestArgs()
	if err != nil {
		return buildctx.Params{}, err
	}
	return buildctx.Params{
		RunID:       runID,
		LabelKey:    c.LabelKey,
		BaseImage:   c.Image.BaseImage,
		Packages:    c.Image.Packages,
		Browsers:    c.Image.Browsers,
		TestTimeout: int(c.Pytest.Timeout / time.Second),
		Workers:     c.Pytest.Workers,
		PytestArgs:  args,
	}, nil
}

// TransformOptions returns the script transformer options.
func (c *Config) TransformOptions() transform.Options {
	return transform.Options{
		HostAlias: c.HostAlias,
		Selectors: c.Selectors,
	}
}
