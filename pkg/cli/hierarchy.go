package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

var hierarchyCommand = &cli.Command{
	Name:      "hierarchy",
	Usage:     "Print the page HTML of an annotation job",
	ArgsUsage: "<url-or-path>",
	Description: `Open a page and print its HTML, for writing selectors.

Examples:
  canvas-runner hierarchy /tasks/1/jobs/1
  canvas-runner --base-url http://cvat.local:8080 hierarchy /tasks/1/jobs/1 --output job.html
  canvas-runner --driver mock hierarchy /tasks/1/jobs/1`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "output",
			Usage: "Write HTML to a file instead of stdout",
		},
	},
	Action: runHierarchy,
}

func runHierarchy(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("a URL or path is required")
	}

	ws, err := loadWorkspace(c, nil)
	if err != nil {
		return err
	}
	cfg := &RunConfig{Workspace: ws, Driver: c.String("driver")}
	workers, shutdown, err := createWorkers(cfg, 1)
	if err != nil {
		return err
	}
	defer shutdown()

	html, err := dumpHierarchy(workers[0].Driver, c.Args().First())
	if err != nil {
		return err
	}

	if out := c.String("output"); out != "" {
		if err := os.WriteFile(out, html, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		printSetupSuccess("Wrote " + out)
		return nil
	}
	_, err = os.Stdout.Write(html)
	return err
}

// dumpHierarchy navigates the driver to link and returns the page HTML.
func dumpHierarchy(d core.Driver, link string) ([]byte, error) {
	res := d.Execute(&flow.OpenLinkStep{
		BaseStep: flow.BaseStep{StepType: flow.StepOpenLink},
		Link:     link,
	})
	if !res.Success {
		if res.Error == nil {
			return nil, fmt.Errorf("open %s: %s", link, res.Message)
		}
		return nil, fmt.Errorf("open %s: %w", link, res.Error)
	}
	return d.Hierarchy()
}
