// Package cli provides the command-line interface for canvas-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/canvas-runner/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// Driver names accepted by --driver.
const (
	DriverPlaywright = "playwright"
	DriverMock       = "mock"
)

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "driver",
		Aliases: []string{"d"},
		Usage:   "Driver to use (playwright, mock)",
		Value:   DriverPlaywright,
		EnvVars: []string{"CANVAS_RUNNER_DRIVER"},
	},
	&cli.StringFlag{
		Name:    "browser",
		Aliases: []string{"b"},
		Usage:   "Browser engine (chromium, firefox, webkit)",
		EnvVars: []string{"CANVAS_RUNNER_BROWSER"},
	},
	&cli.BoolFlag{
		Name:    "headless",
		Usage:   "Run the browser without a window",
		Value:   true,
		EnvVars: []string{"CANVAS_RUNNER_HEADLESS"},
	},
	&cli.StringFlag{
		Name:    "base-url",
		Usage:   "Annotation server URL, e.g. http://localhost:8080",
		EnvVars: []string{"CANVAS_RUNNER_BASEURL"},
	},
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to workspace config.yaml",
		EnvVars: []string{"CANVAS_RUNNER_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"CANVAS_RUNNER_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the command tree.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "canvas-runner",
		Usage:   "Verify annotation canvas text settings in a real browser",
		Version: Version,
		Description: `canvas-runner executes YAML flows against an annotation server and
checks how object labels render on the canvas: their position relative
to the shape, their font size and which fields they show.

Examples:
  canvas-runner test examples/flows/case_111
  canvas-runner --driver mock test flows/ -e TASK_ID=3
  canvas-runner validate flows/
  canvas-runner check position --shape 10,10,100,50 --label 115,12,40,12 --mode outside
  canvas-runner install chromium`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				color.NoColor = true
			}
			if c.Bool("verbose") {
				logger.SetDebug(true)
			}
			return nil
		},
		Commands: []*cli.Command{
			testCommand,
			validateCommand,
			checkCommand,
			installCommand,
			reportCommand,
			hierarchyCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
