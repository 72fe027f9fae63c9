package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/config"
)

var checkCommand = &cli.Command{
	Name:  "check",
	Usage: "Run a label check on literal values",
	Description: `Evaluate one check against values copied from a report or devtools,
without a browser.

Examples:
  canvas-runner check position --shape 100,100,200,150 --label 305,102,60,14 --mode outside
  canvas-runner check content --text "car 3 (manual)" --label car --id 3
  canvas-runner check fields --text "car 3" --fields ID,Label`,
	Subcommands: []*cli.Command{
		{
			Name:  "position",
			Usage: "Check a label box against its shape box",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "shape", Usage: "Shape box as left,top,width,height", Required: true},
				&cli.StringFlag{Name: "label", Usage: "Label box as left,top,width,height", Required: true},
				&cli.StringFlag{Name: "mode", Usage: "Expected placement (outside, inside)", Value: "outside"},
				&cli.Float64Flag{Name: "tolerance", Usage: "Vertical band for outside labels (px)", Value: config.DefaultOutsideTolerance},
			},
			Action: runCheckPosition,
		},
		{
			Name:  "content",
			Usage: "Check a label text names the object and attribute",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "text", Usage: "Rendered label text", Required: true},
				&cli.StringFlag{Name: "label", Usage: "Label (class) name", Required: true},
				&cli.IntFlag{Name: "id", Usage: "Object id", Required: true},
				&cli.StringFlag{Name: "attr-name", Usage: "Attribute name"},
				&cli.StringFlag{Name: "attr-value", Usage: "Attribute value"},
			},
			Action: runCheckContent,
		},
		{
			Name:  "fields",
			Usage: "Check a label text against the enabled text fields",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "text", Usage: "Rendered label text"},
				&cli.StringSliceFlag{Name: "fields", Usage: "Enabled fields (ID, Label, Attributes, Source, Descriptions)"},
			},
			Action: runCheckFields,
		},
	},
}

// parseBox parses "left,top,width,height".
func parseBox(s string) (check.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return check.BoundingBox{}, fmt.Errorf("box %q: want left,top,width,height", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return check.BoundingBox{}, fmt.Errorf("box %q: %w", s, err)
		}
		v[i] = f
	}
	box := check.BoundingBox{Left: v[0], Top: v[1], Width: v[2], Height: v[3]}
	if err := box.Validate(); err != nil {
		return check.BoundingBox{}, err
	}
	return box, nil
}

// reportCheck prints the outcome; a failed check exits with status 1.
func reportCheck(name string, err error) error {
	if err == nil {
		fmt.Printf("%s %s check passed\n", green("✓"), name)
		return nil
	}
	if check.IsAssertionFailure(err) {
		return cli.Exit(fmt.Sprintf("%s %v", red("✗"), err), 1)
	}
	return err
}

func runCheckPosition(c *cli.Context) error {
	shape, err := parseBox(c.String("shape"))
	if err != nil {
		return err
	}
	label, err := parseBox(c.String("label"))
	if err != nil {
		return err
	}
	mode, err := check.ParseLayoutMode(c.String("mode"))
	if err != nil {
		return err
	}

	checker := check.NewPositionChecker(c.Float64("tolerance"))
	return reportCheck("position", checker.Check(shape, label, mode))
}

func runCheckContent(c *cli.Context) error {
	want := check.LabelExpectation{Name: c.String("label"), ID: c.Int("id")}
	if name := c.String("attr-name"); name != "" {
		want.Attributes = map[string]string{name: c.String("attr-value")}
	}
	return reportCheck("content", want.Check(c.String("text")))
}

func runCheckFields(c *cli.Context) error {
	cfg, err := check.NewTextContentConfig(splitFields(c.StringSlice("fields")))
	if err != nil {
		return err
	}
	return reportCheck("fields", check.CheckTextFieldVisibility(c.String("text"), cfg))
}

// splitFields accepts both repeated flags and comma lists.
func splitFields(values []string) []string {
	var out []string
	for _, v := range values {
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				out = append(out, f)
			}
		}
	}
	return out
}
