package cli

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/canvas-runner/pkg/report"
)

var reportCommand = &cli.Command{
	Name:  "report",
	Usage: "Work with a report directory",
	Subcommands: []*cli.Command{
		{
			Name:      "html",
			Usage:     "Render report.html from report.json",
			ArgsUsage: "<report-dir>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "output", Usage: "HTML file path (default: <report-dir>/report.html)"},
				&cli.BoolFlag{Name: "embed", Usage: "Embed screenshots as base64"},
				&cli.StringFlag{Name: "title", Usage: "Report title"},
			},
			Action: runReportHTML,
		},
		{
			Name:      "recover",
			Usage:     "Finalise a report left behind by an interrupted run",
			ArgsUsage: "<report-dir>",
			Action:    runReportRecover,
		},
		{
			Name:      "watch",
			Usage:     "Follow a running report until it finishes",
			ArgsUsage: "<report-dir>",
			Flags: []cli.Flag{
				&cli.DurationFlag{Name: "interval", Usage: "Poll interval", Value: 500 * time.Millisecond},
			},
			Action: runReportWatch,
		},
		{
			Name:      "allure",
			Usage:     "Export allure-results for the Allure report tool",
			ArgsUsage: "<report-dir>",
			Action:    runReportAllure,
		},
	},
}

func reportDirArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("exactly one report directory is required")
	}
	return c.Args().First(), nil
}

func runReportHTML(c *cli.Context) error {
	dir, err := reportDirArg(c)
	if err != nil {
		return err
	}
	out := c.String("output")
	if out == "" {
		out = filepath.Join(dir, "report.html")
	}
	if err := report.GenerateHTML(dir, report.HTMLConfig{
		OutputPath:  out,
		EmbedAssets: c.Bool("embed"),
		Title:       c.String("title"),
	}); err != nil {
		return err
	}
	printSetupSuccess("HTML: " + out)
	return nil
}

func runReportRecover(c *cli.Context) error {
	dir, err := reportDirArg(c)
	if err != nil {
		return err
	}
	if err := report.Recover(dir); err != nil {
		return err
	}
	index, err := report.ReadIndex(filepath.Join(dir, "report.json"))
	if err != nil {
		return err
	}
	printSetupSuccess(fmt.Sprintf("Recovered run %s: %s (%d passed, %d failed, %d skipped)",
		index.RunID, index.Status, index.Summary.Passed, index.Summary.Failed, index.Summary.Skipped))

	if err := report.GenerateHTML(dir, report.HTMLConfig{}); err != nil {
		fmt.Printf("  %s Warning: failed to generate HTML report: %v\n", yellow("⚠"), err)
	}
	return nil
}

func runReportAllure(c *cli.Context) error {
	dir, err := reportDirArg(c)
	if err != nil {
		return err
	}
	out, err := report.GenerateAllure(dir)
	if err != nil {
		return err
	}
	printSetupSuccess("Allure results: " + out)
	return nil
}

func runReportWatch(c *cli.Context) error {
	dir, err := reportDirArg(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	index, err := watchReport(ctx, report.NewConsumer(dir), c.Duration("interval"), printFlowChange)
	if err != nil {
		return err
	}
	fmt.Printf("\nRun %s %s: %d/%d passed\n", index.RunID, index.Status, index.Summary.Passed, index.Summary.Total)
	if index.Status == report.StatusFailed {
		return cli.Exit("", 1)
	}
	return nil
}

// watchReport polls until the run reaches a terminal status, calling onChange
// for every flow entry whose sequence moved.
func watchReport(ctx context.Context, consumer *report.Consumer, interval time.Duration, onChange func(report.FlowEntry)) (*report.Index, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		changed, index, err := consumer.Poll()
		if err != nil {
			return nil, err
		}
		for _, id := range changed {
			for _, entry := range index.Flows {
				if entry.ID == id {
					onChange(entry)
				}
			}
		}
		if index.Status.IsTerminal() {
			return index, nil
		}

		select {
		case <-ctx.Done():
			return index, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printFlowChange(entry report.FlowEntry) {
	var line string
	switch entry.Status {
	case report.StatusPassed:
		line = green("✓ passed")
	case report.StatusFailed:
		line = red("✗ failed")
		if entry.Error != nil {
			line += " " + gray(*entry.Error)
		}
	case report.StatusSkipped:
		line = cyan("- skipped")
	case report.StatusRunning:
		line = cyan(fmt.Sprintf("▸ running %d/%d", entry.Commands.Passed+entry.Commands.Failed, entry.Commands.Total))
	default:
		line = gray(string(entry.Status))
	}
	fmt.Printf("  %-40s %s\n", entry.Name, line)
}
