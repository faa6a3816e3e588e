package cli

// This file contains the run and transform commands.

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/perfgo/pwbox/events"
	"github.com/perfgo/pwbox/exitcodes"
	"github.com/perfgo/pwbox/model"
	"github.com/perfgo/pwbox/workspace"
	"github.com/urfave/cli/v2"
)

func (a *App) run(ctx *cli.Context) error {
	script, err := readScript(ctx.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.RuntimeErr)
	}
	if ctx.Bool("keep") {
		a.cfg.KeepContainers = true
	}

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := a.newOrchestrator()
	em := events.NewEmitter()
	done := make(chan *model.Run, 1)
	go func() {
		defer em.Close()
		done <- orch.Execute(runCtx, script, em)
	}()

	p := &eventPrinter{w: os.Stdout, sse: ctx.Bool("sse")}
	for ev := range em.Events() {
		if err := p.Print(ev); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to print event")
		}
	}
	run := <-done

	if !p.sse {
		printSummary(os.Stdout, run)
	}

	if code := exitcodes.FromRun(run); code != exitcodes.Success {
		return cli.Exit("", code)
	}
	return nil
}

func (a *App) transform(ctx *cli.Context) error {
	script, err := readScript(ctx.Args().First())
	if err != nil {
		return err
	}
	res := a.newOrchestrator().Transform(script)
	if len(res.Applied) > 0 {
		a.logger.Info().Strs("rules", res.Applied).Msg("Script transformed")
	} else {
		a.logger.Info().Msg("Script needed no rewrites")
	}
	_, err = io.WriteString(os.Stdout, res.Script)
	return err
}

// readScript reads the script from a file, or from stdin for "-".
func readScript(arg string) (string, error) {
	var (
		data []byte
		err  error
	)
	switch arg {
	case "":
		return "", errors.New("no script specified: pass a file path or - for stdin")
	case "-":
		data, err = io.ReadAll(os.Stdin)
	default:
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("script is empty")
	}
	return string(data), nil
}

// eventPrinter renders events for a terminal, or as raw SSE frames.
type eventPrinter struct {
	w   io.Writer
	sse bool
}

func (p *eventPrinter) Print(ev events.Event) error {
	if p.sse {
		return events.WriteSSE(p.w, ev)
	}

	var line string
	switch ev.Type {
	case events.TypeInfo:
		line = color.CyanString("•") + " " + ev.Message
	case events.TypeSuccess:
		line = color.GreenString("✓") + " " + ev.Message
	case events.TypeWarning:
		line = color.YellowString("! %s", ev.Message)
	case events.TypeError:
		line = color.New(color.FgRed, color.Bold).Sprint("✗ " + ev.Message)
	case events.TypeLog:
		line = "  " + ev.Message
	case events.TypeResult:
		c := color.New(color.FgGreen, color.Bold)
		if ev.Result != nil && (!ev.Result.ReportFound || ev.Result.Failed > 0 || (ev.Result.Total == 0 && ev.Result.ExitCode != 0)) {
			c = color.New(color.FgRed, color.Bold)
		}
		line = c.Sprint("■ " + ev.Message)
	default:
		line = ev.Message
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

// printSummary renders the outcome of run as a table.
func printSummary(w io.Writer, run *model.Run) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Run %s (%s)", run.ID, formatDuration(run.Duration)))
	t.AppendHeader(table.Row{"Status", "Passed", "Failed", "Total", "Exit Code", "Report"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Total", Align: text.AlignRight},
		{Name: "Exit Code", Align: text.AlignRight},
	})

	report := "-"
	if run.ReportFound {
		report = filepath.Join(run.Workspace, workspace.ReportsDir, workspace.HTMLReportFile)
	}
	t.AppendRow(table.Row{
		statusString(run),
		run.Summary.Passed,
		run.Summary.Failed,
		run.Summary.Total,
		run.ExitCode,
		report,
	})
	if run.Error != "" {
		t.AppendFooter(table.Row{"Error", run.Error})
	}
	t.Render()
}

func statusString(run *model.Run) string {
	switch exitcodes.FromRun(run) {
	case exitcodes.Success:
		return color.GreenString("✓ %s", run.Status)
	case exitcodes.TestFailure:
		return color.RedString("✗ %s", run.Status)
	}
	return color.RedString("✗ %s (%s)", run.Status, run.ErrorStage)
}
