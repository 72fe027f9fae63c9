package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/canvas-runner/pkg/check"
	"github.com/devicelab-dev/canvas-runner/pkg/config"
	"github.com/devicelab-dev/canvas-runner/pkg/driver/mock"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
	"github.com/devicelab-dev/canvas-runner/pkg/report"
)

const exampleDir = "../../examples/flows/case_111"

func loadExampleFlows(t *testing.T) ([]flow.Flow, *config.Config) {
	t.Helper()

	cfg, err := config.Load(filepath.Join(exampleDir, "config.yaml"))
	require.NoError(t, err)

	var flows []flow.Flow
	for _, name := range []string{"01_text_size.yaml", "02_text_position.yaml", "03_text_content.yaml"} {
		f, err := flow.ParseFile(filepath.Join(exampleDir, name))
		require.NoError(t, err, name)
		flows = append(flows, *f)
	}
	return flows, cfg
}

func TestCase111_ExampleFlowsPassOnMock(t *testing.T) {
	flows, cfg := loadExampleFlows(t)
	outDir := t.TempDir()

	driver := mock.New(mock.Config{BaseURL: cfg.BaseURL})
	runCfg := testConfig(outDir)
	runCfg.Env = cfg.Env
	runCfg.OutsideTolerance = cfg.OutsideTolerance

	result, err := New(driver, runCfg).Run(context.Background(), flows)
	require.NoError(t, err)

	for _, fr := range result.FlowResults {
		assert.Equal(t, report.StatusPassed, fr.Status, "%s: %s", fr.Name, fr.Error)
	}
	assert.Equal(t, 3, result.PassedFlows)
	assert.Equal(t, "http://localhost:8080/tasks/1/jobs/1", driver.URL())

	scene := driver.Scene()
	assert.Equal(t, 10, scene.TextSize)
	assert.Equal(t, check.LayoutOutside, scene.Position)
	assert.True(t, scene.Content.All())
	assert.True(t, scene.ShowTextAlways)
	assert.FileExists(t, filepath.Join(outDir, "screenshots", "text_size_10.png"))
}

func TestCase111_SettingsRequireOpenModal(t *testing.T) {
	driver := mock.New(mock.Config{})
	flows := []flow.Flow{{
		SourcePath: "closed.yaml",
		Steps: []flow.Step{
			&flow.SetTextSizeStep{BaseStep: flow.BaseStep{StepType: flow.StepSetTextSize}, Size: 10},
		},
	}}

	outDir := t.TempDir()
	result, err := New(driver, testConfig(outDir)).Run(context.Background(), flows)
	require.NoError(t, err)
	require.Equal(t, report.StatusFailed, result.Status)

	_, details, err := report.ReadReport(outDir)
	require.NoError(t, err)
	cmdErr := details[0].Commands[0].Error
	require.NotNil(t, cmdErr)
	assert.Equal(t, "app", cmdErr.Type)
	assert.NotEmpty(t, cmdErr.Suggestion)
}

func TestCase111_WrongPositionFailsWithAssertion(t *testing.T) {
	scene := mock.DefaultScene()
	scene.ShowTextAlways = true
	driver := mock.New(mock.Config{Scene: scene})

	flows := []flow.Flow{{
		SourcePath: "position.yaml",
		Steps: []flow.Step{
			&flow.AssertTextPositionStep{
				BaseStep: flow.BaseStep{StepType: flow.StepAssertTextPosition},
				Shape:    flow.Selector{ID: "cvat_canvas_shape_1"},
				Text:     flow.Selector{CSS: ".cvat_canvas_text", Index: "first"},
				Position: "inside",
			},
		},
	}}

	outDir := t.TempDir()
	result, err := New(driver, testConfig(outDir)).Run(context.Background(), flows)
	require.NoError(t, err)
	require.Equal(t, report.StatusFailed, result.Status)
	assert.Contains(t, result.FlowResults[0].Error, "position check failed")

	_, details, err := report.ReadReport(outDir)
	require.NoError(t, err)
	cmdErr := details[0].Commands[0].Error
	require.NotNil(t, cmdErr)
	assert.Equal(t, "assertion", cmdErr.Type)
	assert.Contains(t, cmdErr.Details, "check=position")
}
