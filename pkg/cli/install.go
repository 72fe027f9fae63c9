package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/canvas-runner/pkg/config"
	"github.com/devicelab-dev/canvas-runner/pkg/driver/browser"
)

var installCommand = &cli.Command{
	Name:      "install",
	Usage:     "Download the Playwright driver and browser engines",
	ArgsUsage: "[chromium|firefox|webkit]...",
	Description: `Install into <runner home>/drivers/playwright. Set CANVAS_RUNNER_HOME to choose the home.

Examples:
  canvas-runner install
  canvas-runner install chromium firefox`,
	Action: func(c *cli.Context) error {
		engines := c.Args().Slice()
		if len(engines) == 0 {
			engines = []string{config.DefaultBrowser}
		}
		printSetupStep(fmt.Sprintf("Installing %v into %s...", engines, config.GetDriversDir("playwright")))
		if err := browser.Install(engines...); err != nil {
			return err
		}
		printSetupSuccess("Installed")
		return nil
	},
}
