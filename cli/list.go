package cli

// This file contains the list command for displaying previous test runs.

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/perfgo/pwbox/history"
	"github.com/perfgo/pwbox/model"
	"github.com/urfave/cli/v2"
)

func (a *App) list(ctx *cli.Context) error {
	filterStatus := ctx.String("status")
	limit := ctx.Int("limit")

	// Load all history entries
	historyEntries, err := history.LoadEntries(a.logger, a.cfg.OutputRoot)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	// Apply status filter if specified
	var filteredEntries []history.Entry
	for _, entry := range historyEntries {
		if filterStatus == "" || string(entry.Run.Status) == filterStatus {
			filteredEntries = append(filteredEntries, entry)
		}
	}

	if len(filteredEntries) == 0 {
		if filterStatus != "" {
			fmt.Printf("No runs found with status: %s\n", filterStatus)
		} else {
			fmt.Println("No runs found")
		}
		return nil
	}

	// Apply limit
	displayRuns := filteredEntries
	if limit > 0 && limit < len(displayRuns) {
		displayRuns = displayRuns[:limit]
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("History (%d total)", len(filteredEntries)))
	t.AppendHeader(table.Row{"", "ID", "Time", "Duration", "Passed", "Failed", "Total", "Exit", "Artifacts"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Total", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Artifacts", Align: text.AlignRight},
	})

	for _, entry := range displayRuns {
		r := entry.Run

		// Show short ID (first 8 chars)
		shortID := r.ID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		t.AppendRow(table.Row{
			statusString(&r),
			shortID,
			r.Timestamp.Format("2006-01-02 15:04:05"),
			formatDuration(r.Duration),
			r.Summary.Passed,
			r.Summary.Failed,
			r.Summary.Total,
			r.ExitCode,
			formatSize(artifactsSize(r.Artifacts)),
		})
	}
	t.Render()

	fmt.Printf("\nRuns directory: %s\n", a.cfg.OutputRoot)
	fmt.Println("View a run: pwbox view <ID>")

	return nil
}

func artifactsSize(artifacts []model.Artifact) uint64 {
	var size uint64
	for _, a := range artifacts {
		size += a.Size
	}
	return size
}

func formatSize(size uint64) string {
	if size >= 1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	}
	return fmt.Sprintf("%.1f KB", float64(size)/1024)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
