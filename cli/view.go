package cli

// This file contains the view command for displaying test runs from history.

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/perfgo/pwbox/history"
	"github.com/perfgo/pwbox/model"
	"github.com/urfave/cli/v2"
)

// viewable lists the artifacts whose content view can print.
var viewable = map[string]model.ArtifactType{
	model.ArtifactTypeStdout.String():     model.ArtifactTypeStdout,
	model.ArtifactTypeStderr.String():     model.ArtifactTypeStderr,
	model.ArtifactTypeScript.String():     model.ArtifactTypeScript,
	model.ArtifactTypeJSONReport.String(): model.ArtifactTypeJSONReport,
}

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

func parseViewArgs(in []string) (idArg string, artifactArgs []string) {
	if len(in) == 0 {
		return "0", nil
	}

	// If first arg is "--", use default "0" and rest are artifact args
	if in[0] == "--" {
		return "0", in[1:]
	}

	// An artifact name in first position selects from the last run
	if _, ok := viewable[in[0]]; ok {
		return "0", in
	}

	// First arg is the ID/index, rest are artifact args (with optional "--" removed)
	return in[0], removeFirstDashDash(in[1:])
}

func (a *App) view(ctx *cli.Context) error {
	// Parse arguments to extract ID/index and artifact selection
	arg, artifactArgs := parseViewArgs(ctx.Args().Slice())

	var types []model.ArtifactType
	for _, name := range artifactArgs {
		t, ok := viewable[name]
		if !ok {
			return fmt.Errorf("unknown artifact %q (use stdout, stderr, script or json)", name)
		}
		types = append(types, t)
	}

	// Load all history entries
	historyEntries, err := history.LoadEntries(a.logger, a.cfg.OutputRoot)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	targetEntry, err := history.Find(historyEntries, arg)
	if err != nil {
		return err
	}

	// Display the entry
	return a.displayRunEntry(targetEntry, types)
}

func (a *App) displayRunEntry(entry *history.Entry, types []model.ArtifactType) error {
	r := entry.Run

	// Print header
	fmt.Printf("=== Test Run: %s ===\n", r.ID)
	fmt.Printf("Time: %s\n", r.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration: %s\n", formatDuration(r.Duration))
	fmt.Printf("Status: %s\n", statusString(&r))
	if r.Error != "" {
		fmt.Printf("Error: %s\n", r.Error)
	}
	fmt.Printf("Exit Code: %d\n", r.ExitCode)
	if r.ReportFound {
		fmt.Printf("Tests: %d passed, %d failed, %d total\n", r.Summary.Passed, r.Summary.Failed, r.Summary.Total)
	}
	if r.BuildForm != "" {
		fmt.Printf("Build: %s\n", r.BuildForm)
	}
	if r.ImageID != "" {
		fmt.Printf("Image: %s\n", r.ImageID)
	}
	if len(r.Rules) > 0 {
		fmt.Printf("Rewrites: %s\n", strings.Join(r.Rules, ", "))
	}
	fmt.Printf("Workspace: %s\n", entry.FullPath)
	fmt.Println()

	if len(r.Artifacts) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Type", "File", "Size"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Size", Align: text.AlignRight},
		})
		for _, artifact := range r.Artifacts {
			t.AppendRow(table.Row{artifact.Type, artifact.File, formatSize(artifact.Size)})
		}
		t.Render()
		fmt.Println()
	}

	if len(types) > 0 {
		for _, t := range types {
			artifact := findArtifact(r.Artifacts, t)
			if artifact == nil {
				fmt.Printf("No %s artifact recorded\n", t)
				continue
			}
			if err := a.displayArtifact(entry.FullPath, artifact); err != nil {
				return err
			}
		}
		return nil
	}

	// Without a selection show the highest priority text artifact
	for _, t := range []model.ArtifactType{model.ArtifactTypeStdout, model.ArtifactTypeStderr} {
		if artifact := findArtifact(r.Artifacts, t); artifact != nil {
			return a.displayArtifact(entry.FullPath, artifact)
		}
	}

	// No displayable artifacts found
	fmt.Println("No container output recorded")
	return nil
}

func findArtifact(artifacts []model.Artifact, t model.ArtifactType) *model.Artifact {
	for i := range artifacts {
		if artifacts[i].Type == t {
			return &artifacts[i]
		}
	}
	return nil
}

func (a *App) displayArtifact(runDir string, artifact *model.Artifact) error {
	path := filepath.Join(runDir, filepath.FromSlash(artifact.File))
	fmt.Printf("--- %s: %s ---\n", artifact.Type, path)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", artifact.Type, err)
	}
	fmt.Println(string(data))
	return nil
}
