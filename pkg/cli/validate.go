package cli

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/canvas-runner/pkg/config"
	"github.com/devicelab-dev/canvas-runner/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check flow files without running them",
	ArgsUsage: "<flow-file-or-folder>...",
	Description: `Parse every flow, resolve runFlow references and check step parameters.

Examples:
  canvas-runner validate examples/flows/case_111
  canvas-runner validate flows/ --include-tags smoke`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only include flows with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Exclude flows with these tags",
		},
	},
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one flow file or folder is required")
	}

	v := validator.New(c.StringSlice("include-tags"), c.StringSlice("exclude-tags"))
	if p := c.String("config"); p != "" {
		ws, err := config.Load(p)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		v = v.WithPatterns(ws.Flows)
	}

	var errCount, caseCount int
	for _, path := range c.Args().Slice() {
		result := v.Validate(path)
		caseCount += len(result.TestCases)

		fmt.Printf("\n%s\n", bold(path))
		for _, tc := range result.TestCases {
			fmt.Printf("  %s %s\n", green("✓"), filepath.Base(tc))
		}
		for _, dep := range result.Dependencies {
			fmt.Printf("  %s %s %s\n", cyan("▸"), filepath.Base(dep), gray("(runFlow)"))
		}
		for _, err := range result.Errors {
			fmt.Printf("  %s %v\n", red("✗"), err)
		}
		errCount += len(result.Errors)
	}

	fmt.Println()
	if errCount > 0 {
		return cli.Exit(red(fmt.Sprintf("%d error(s) in %d flow(s)", errCount, caseCount)), 1)
	}
	fmt.Printf("  %s\n\n", green(fmt.Sprintf("%d flow(s) valid", caseCount)))
	return nil
}
