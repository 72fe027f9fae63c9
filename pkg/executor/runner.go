// Package executor orchestrates flow execution, connecting drivers to reports.
package executor

import (
	"context"
	"path/filepath"

	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
	"github.com/devicelab-dev/canvas-runner/pkg/logger"
	"github.com/devicelab-dev/canvas-runner/pkg/report"
)

// ArtifactMode determines when to capture screenshots and page HTML.
type ArtifactMode int

const (
	// ArtifactOnFailure captures artifacts only when a step fails.
	ArtifactOnFailure ArtifactMode = iota
	// ArtifactAlways captures artifacts before and after every step.
	ArtifactAlways
	// ArtifactNever disables artifact capture.
	ArtifactNever
)

// RunnerConfig configures the test runner.
type RunnerConfig struct {
	OutputDir  string       // Report output directory
	RunID      string       // Optional run UUID (generated when empty)
	StopOnFail bool         // Skip remaining flows after the first failure
	Retries    int          // Extra attempts per failed flow (0 = no retries)
	Artifacts  ArtifactMode // When to capture artifacts

	// Env is the base variable set (config env, then -e flags).
	// Flow and step env layer on top of it.
	Env map[string]string

	// OutsideTolerance is the default band for assertTextPosition (0 = checker default)
	OutsideTolerance float64

	// Session info for reports
	Browser report.BrowserInfo
	Target  report.Target
	CI      *report.CI

	// Runner metadata
	RunnerVersion string
	DriverName    string

	// Live progress callbacks
	OnFlowStart       func(flowIdx, totalFlows int, name, file string)
	OnStepComplete    func(idx int, desc string, passed bool, durationMs int64, err string)
	OnNestedStep      func(depth int, desc string, passed bool, durationMs int64, err string)
	OnNestedFlowStart func(depth int, desc string)
	OnFlowEnd         func(name string, passed bool, durationMs int64)
}

// RunResult contains the outcome of a test run.
type RunResult struct {
	RunID        string
	Status       report.Status
	TotalFlows   int
	PassedFlows  int
	FailedFlows  int
	SkippedFlows int
	Duration     int64 // Total duration in milliseconds
	FlowResults  []FlowResult
}

// FlowResult contains the outcome of a single flow execution.
type FlowResult struct {
	ID           string
	Name         string
	Status       report.Status
	Duration     int64
	Error        string
	Attempts     int
	StepsTotal   int
	StepsPassed  int
	StepsFailed  int
	StepsSkipped int
}

// Runner executes flows one after another on a single driver.
// Use ParallelRunner to spread flows over several browser sessions.
type Runner struct {
	config RunnerConfig
	driver core.Driver
}

// New creates a new Runner.
func New(driver core.Driver, cfg RunnerConfig) *Runner {
	return &Runner{
		config: cfg,
		driver: driver,
	}
}

// Run executes all flows and generates reports.
func (r *Runner) Run(ctx context.Context, flows []flow.Flow) (*RunResult, error) {
	index, flowDetails, err := buildReport(flows, r.config)
	if err != nil {
		return nil, err
	}

	indexWriter := report.NewIndexWriter(r.config.OutputDir, index)
	defer indexWriter.Close()

	indexWriter.Start()
	logger.Info("run %s started: %d flow(s)", index.RunID, len(flows))

	results := r.executeFlows(ctx, flows, flowDetails, indexWriter)

	indexWriter.End()

	result := buildRunResult(results)
	for _, fr := range results {
		result.Duration += fr.Duration
	}
	result.RunID = index.RunID
	logger.Info("run %s finished: %s (%d passed, %d failed, %d skipped)",
		index.RunID, result.Status, result.PassedFlows, result.FailedFlows, result.SkippedFlows)
	return result, nil
}

// buildReport creates and writes the pending report skeleton.
func buildReport(flows []flow.Flow, cfg RunnerConfig) (*report.Index, []report.FlowDetail, error) {
	index, flowDetails, err := report.BuildSkeleton(flows, report.BuilderConfig{
		OutputDir:     cfg.OutputDir,
		RunID:         cfg.RunID,
		Browser:       cfg.Browser,
		Target:        cfg.Target,
		CI:            cfg.CI,
		RunnerVersion: cfg.RunnerVersion,
		DriverName:    cfg.DriverName,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := report.WriteSkeleton(cfg.OutputDir, index, flowDetails); err != nil {
		return nil, nil, err
	}
	return index, flowDetails, nil
}

// executeFlows runs flows sequentially, honouring cancellation and StopOnFail.
func (r *Runner) executeFlows(ctx context.Context, flows []flow.Flow, flowDetails []report.FlowDetail, indexWriter *report.IndexWriter) []FlowResult {
	results := make([]FlowResult, len(flows))
	totalFlows := len(flows)
	stopped := false

	for i := range flows {
		if ctx.Err() != nil {
			results[i] = skipFlow(r.config, &flowDetails[i], indexWriter, "run cancelled")
			continue
		}
		if stopped {
			results[i] = skipFlow(r.config, &flowDetails[i], indexWriter, "run stopped")
			continue
		}

		results[i] = executeFlow(ctx, r.driver, r.config, flows[i], &flowDetails[i], indexWriter, i, totalFlows)
		if r.config.StopOnFail && results[i].Status == report.StatusFailed {
			stopped = true
		}
	}

	return results
}

// executeFlow runs a single flow, retrying failed attempts up to config.Retries.
func executeFlow(ctx context.Context, driver core.Driver, cfg RunnerConfig, f flow.Flow, detail *report.FlowDetail, indexWriter *report.IndexWriter, flowIdx, totalFlows int) FlowResult {
	maxAttempts := 1 + cfg.Retries
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	dataFile := filepath.Join("flows", detail.ID+".json")

	var result FlowResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if ctx.Err() != nil {
				break
			}
			logger.Info("retrying flow %s (attempt %d/%d)", detail.Name, attempt, maxAttempts)
			resetCommands(detail)
		}

		fr := &FlowRunner{
			ctx:         ctx,
			flow:        f,
			detail:      detail,
			driver:      driver,
			config:      cfg,
			indexWriter: indexWriter,
			flowIdx:     flowIdx,
			totalFlows:  totalFlows,
		}
		result = fr.Run()
		result.Attempts = attempt

		if maxAttempts > 1 {
			indexWriter.RecordAttempt(detail.ID, attempt, result.Status, result.Duration, result.Error, dataFile)
		}
		if result.Status != report.StatusFailed {
			break
		}
	}
	return result
}

// resetCommands returns a flow's commands to pending before a new attempt.
func resetCommands(detail *report.FlowDetail) {
	for i := range detail.Commands {
		cmd := &detail.Commands[i]
		cmd.Status = report.StatusPending
		cmd.StartTime = nil
		cmd.EndTime = nil
		cmd.Duration = nil
		cmd.Element = nil
		cmd.Error = nil
		cmd.Artifacts = report.CommandArtifacts{}
		cmd.SubCommands = nil
	}
	detail.EndTime = nil
	detail.Duration = nil
}

// skipFlow marks a flow that never ran as skipped in the report.
func skipFlow(cfg RunnerConfig, detail *report.FlowDetail, indexWriter *report.IndexWriter, reason string) FlowResult {
	w := report.NewFlowWriter(detail, cfg.OutputDir, indexWriter)
	w.SkipRemainingCommands(0)
	w.End(report.StatusSkipped)
	logger.Info("flow %s skipped: %s", detail.Name, reason)

	return FlowResult{
		ID:           detail.ID,
		Name:         detail.Name,
		Status:       report.StatusSkipped,
		Error:        reason,
		StepsTotal:   len(detail.Commands),
		StepsSkipped: len(detail.Commands),
	}
}

// buildRunResult aggregates flow results into a run result.
// Duration is left to the caller: summed for sequential runs, wall clock for parallel ones.
func buildRunResult(flowResults []FlowResult) *RunResult {
	result := &RunResult{
		TotalFlows:  len(flowResults),
		FlowResults: flowResults,
	}

	for _, fr := range flowResults {
		switch fr.Status {
		case report.StatusPassed:
			result.PassedFlows++
		case report.StatusFailed:
			result.FailedFlows++
		case report.StatusSkipped:
			result.SkippedFlows++
		}
	}

	switch {
	case result.FailedFlows > 0:
		result.Status = report.StatusFailed
	case result.TotalFlows > 0 && result.SkippedFlows == result.TotalFlows:
		result.Status = report.StatusSkipped
	default:
		result.Status = report.StatusPassed
	}

	return result
}
