package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
	"github.com/devicelab-dev/canvas-runner/pkg/jsengine"
	"github.com/devicelab-dev/canvas-runner/pkg/logger"
	"github.com/devicelab-dev/canvas-runner/pkg/report"
)

// consoleLogSource is implemented by drivers that collect page console output.
type consoleLogSource interface {
	ConsoleLog() []byte
}

// timeoutSetter is implemented by drivers with a default element wait.
type timeoutSetter interface {
	SetDefaultTimeout(ms int)
}

// FlowRunner executes a single flow.
type FlowRunner struct {
	ctx         context.Context
	flow        flow.Flow
	detail      *report.FlowDetail
	driver      core.Driver
	config      RunnerConfig
	indexWriter *report.IndexWriter
	flowWriter  *report.FlowWriter
	vars        *Vars
	script      *jsengine.Engine
	depth       int // Nesting depth for runFlow reporting
	flowIdx     int // Current flow index (0-based)
	totalFlows  int // Total number of flows
	// Step counters
	stepsPassed  int
	stepsFailed  int
	stepsSkipped int
	// Sub-command tracking for compound steps (runFlow, repeat, retry)
	subCommands []report.Command
}

// Run executes the flow and returns the result.
func (fr *FlowRunner) Run() FlowResult {
	flowStart := time.Now()

	fr.flowWriter = report.NewFlowWriter(fr.detail, fr.config.OutputDir, fr.indexWriter)

	// Variables: process env < run env < flow env
	fr.vars = NewVars()
	fr.vars.ImportSystemEnv()
	fr.vars.SetAll(fr.config.Env)
	fr.vars.SetAll(fr.flow.Config.Env)
	if fr.flow.SourcePath != "" {
		fr.vars.SetFlowDir(filepath.Dir(fr.flow.SourcePath))
	}
	fr.script = fr.newScriptEngine()
	fr.vars.AttachScript(fr.script)

	if fr.flow.Config.Timeout > 0 {
		if ts, ok := fr.driver.(timeoutSetter); ok {
			ts.SetDefaultTimeout(fr.flow.Config.Timeout)
		}
	}

	fr.flowWriter.SetBrowser(fr.browserInfo())

	flowName := fr.detail.Name
	flowFile := filepath.Base(fr.flow.SourcePath)
	if fr.config.OnFlowStart != nil {
		fr.config.OnFlowStart(fr.flowIdx, fr.totalFlows, flowName, flowFile)
	}
	logger.Info("flow %s started (%s)", flowName, flowFile)

	fr.flowWriter.Start()

	// onFlowComplete runs even on failure
	defer func() {
		for _, step := range fr.flow.Config.OnFlowComplete {
			fr.executeNestedStep(step) // Ignore failures in cleanup
		}
	}()

	if fr.flow.Config.URL != "" {
		open := fr.vars.ExpandStep(&flow.OpenLinkStep{BaseStep: flow.BaseStep{StepType: flow.StepOpenLink}, Link: fr.flow.Config.URL}).(*flow.OpenLinkStep)
		if result := fr.execute(open); !result.Success {
			return fr.abort(flowStart, fmt.Sprintf("open %s: %s", open.Link, errorText(result)))
		}
	}

	for _, step := range fr.flow.Config.OnFlowStart {
		result := fr.executeNestedStep(step)
		if !result.Success && !step.IsOptional() {
			return fr.abort(flowStart, fmt.Sprintf("onFlowStart failed: %s", errorText(result)))
		}
	}

	flowStatus := report.StatusPassed
	var flowError string

	for i, step := range fr.flow.Steps {
		if fr.ctx.Err() != nil {
			fr.flowWriter.SkipRemainingCommands(i)
			fr.stepsSkipped += countLeafSteps(fr.flow.Steps[i:])
			flowStatus = report.StatusSkipped
			flowError = "execution cancelled"
			break
		}

		stepStatus, stepError, stepDuration := fr.executeStep(i, step)

		if fr.config.OnStepComplete != nil {
			fr.config.OnStepComplete(i, step.Describe(), stepStatus == report.StatusPassed, stepDuration, stepError)
		}

		// Compound steps are not counted themselves; executeNestedStep counts their sub-steps
		if !isCompound(step) {
			switch stepStatus {
			case report.StatusPassed:
				fr.stepsPassed++
			case report.StatusFailed:
				fr.stepsFailed++
			case report.StatusSkipped:
				fr.stepsSkipped++
			}
		}

		if stepStatus == report.StatusFailed {
			if step.IsOptional() {
				logger.Warn("optional step %q failed: %s", step.Describe(), stepError)
				continue
			}
			fr.flowWriter.SkipRemainingCommands(i + 1)
			fr.stepsSkipped += countLeafSteps(fr.flow.Steps[i+1:])
			flowStatus = report.StatusFailed
			flowError = stepError
			break
		}
	}

	fr.saveConsoleLog()
	fr.flowWriter.End(flowStatus)

	flowDuration := time.Since(flowStart).Milliseconds()

	if fr.config.OnFlowEnd != nil {
		fr.config.OnFlowEnd(flowName, flowStatus == report.StatusPassed, flowDuration)
	}
	if flowStatus == report.StatusFailed {
		logger.Error("flow %s failed after %dms: %s", flowName, flowDuration, flowError)
	} else {
		logger.Info("flow %s %s in %dms", flowName, flowStatus, flowDuration)
	}

	return fr.result(flowStatus, flowDuration, flowError)
}

// abort fails the flow before any of its commands ran.
func (fr *FlowRunner) abort(flowStart time.Time, reason string) FlowResult {
	fr.flowWriter.SkipRemainingCommands(0)
	fr.stepsSkipped += countLeafSteps(fr.flow.Steps)
	fr.saveConsoleLog()
	fr.flowWriter.End(report.StatusFailed)

	duration := time.Since(flowStart).Milliseconds()
	if fr.config.OnFlowEnd != nil {
		fr.config.OnFlowEnd(fr.detail.Name, false, duration)
	}
	logger.Error("flow %s aborted: %s", fr.detail.Name, reason)
	return fr.result(report.StatusFailed, duration, reason)
}

func (fr *FlowRunner) result(status report.Status, duration int64, errMsg string) FlowResult {
	return FlowResult{
		ID:           fr.detail.ID,
		Name:         fr.detail.Name,
		Status:       status,
		Duration:     duration,
		Error:        errMsg,
		StepsTotal:   fr.stepsPassed + fr.stepsFailed + fr.stepsSkipped,
		StepsPassed:  fr.stepsPassed,
		StepsFailed:  fr.stepsFailed,
		StepsSkipped: fr.stepsSkipped,
	}
}

// browserInfo merges the driver's live platform info into the configured session.
func (fr *FlowRunner) browserInfo() report.BrowserInfo {
	info := fr.config.Browser
	if p := fr.driver.GetPlatformInfo(); p != nil {
		if p.Browser != "" {
			info.Name = p.Browser
		}
		if p.BrowserVersion != "" {
			info.Version = p.BrowserVersion
		}
		info.Headless = p.Headless
		if p.ViewportWidth > 0 {
			info.ViewportWidth = p.ViewportWidth
			info.ViewportHeight = p.ViewportHeight
		}
	}
	return info
}

func (fr *FlowRunner) saveConsoleLog() {
	src, ok := fr.driver.(consoleLogSource)
	if !ok {
		return
	}
	data := src.ConsoleLog()
	if len(data) == 0 {
		return
	}
	path, err := fr.flowWriter.SaveConsoleLog(data)
	if err != nil {
		logger.Warn("save console log for %s: %v", fr.detail.ID, err)
		return
	}
	fr.flowWriter.SetFlowArtifacts(report.FlowArtifacts{ConsoleLog: path})
}

func isCompound(step flow.Step) bool {
	switch step.(type) {
	case *flow.RepeatStep, *flow.RetryStep, *flow.RunFlowStep:
		return true
	}
	return false
}

// countLeafSteps counts the steps that would be tallied if they ran.
func countLeafSteps(steps []flow.Step) int {
	n := 0
	for _, s := range steps {
		if !isCompound(s) {
			n++
		}
	}
	return n
}

func errorText(r *core.CommandResult) string {
	if r.Error != nil {
		return r.Error.Error()
	}
	return r.Message
}

// execute routes a step to its handler. It never returns nil.
func (fr *FlowRunner) execute(step flow.Step) *core.CommandResult {
	var result *core.CommandResult

	switch s := step.(type) {
	case *flow.RepeatStep:
		result = fr.executeRepeat(s)
	case *flow.RetryStep:
		result = fr.executeRetry(s)
	case *flow.RunFlowStep:
		result = fr.executeRunFlow(s)
	case *flow.TakeScreenshotStep:
		result = fr.driver.Execute(fr.screenshotTarget(s))
	case *flow.EvalScriptStep:
		result = fr.executeEvalScript(s)
	case *flow.RunScriptStep:
		result = fr.executeRunScript(s)
	case *flow.AssertTrueStep:
		result = fr.executeAssertTrue(s)
	default:
		if isCanvasAssertion(step) {
			result = fr.executeAssertion(step)
		} else {
			result = fr.driver.Execute(step)
		}
	}

	if result == nil {
		result = core.Failure(fmt.Errorf("%s returned no result", step.Type()), "")
	}
	return result
}

// screenshotTarget places relative screenshot paths under the report's screenshots dir.
func (fr *FlowRunner) screenshotTarget(s *flow.TakeScreenshotStep) *flow.TakeScreenshotStep {
	if s.Path == "" || filepath.IsAbs(s.Path) || fr.config.OutputDir == "" {
		return s
	}
	shot := *s
	shot.Path = filepath.Join(fr.config.OutputDir, "screenshots", s.Path)
	return &shot
}

// executeStep executes a single step and updates the report.
// Returns status, error message, and duration in milliseconds.
func (fr *FlowRunner) executeStep(idx int, step flow.Step) (report.Status, string, int64) {
	stepStart := time.Now()

	fr.flowWriter.CommandStart(idx)

	captureAlways := fr.config.Artifacts == ArtifactAlways
	captureOnFailure := fr.config.Artifacts == ArtifactOnFailure

	var artifacts report.CommandArtifacts
	if captureAlways {
		artifacts = fr.captureArtifacts(idx, "before")
	}

	step = fr.vars.ExpandStep(step)

	if isCompound(step) {
		fr.subCommands = nil
	}
	result := fr.execute(step)

	stepDuration := time.Since(stepStart).Milliseconds()

	var status report.Status
	var errorInfo *report.Error
	var errorMsg string

	if result.Success {
		status = report.StatusPassed
		logger.Debug("step %d %s passed: %s", idx, step.Describe(), result.Message)
	} else {
		status = report.StatusFailed
		errorInfo = commandResultToError(result)
		if errorInfo != nil {
			errorMsg = errorInfo.Message
		}
		logger.Debug("step %d %s failed: %s", idx, step.Describe(), errorMsg)
	}

	if captureAlways || (captureOnFailure && !result.Success) {
		after := fr.captureArtifacts(idx, "after")
		artifacts.ScreenshotAfter = after.ScreenshotAfter
		artifacts.PageSource = after.PageSource
	}

	element := commandResultToElement(result)

	if isCompound(step) {
		fr.flowWriter.CommandEndWithSubs(idx, status, element, errorInfo, artifacts, fr.subCommands)
		fr.subCommands = nil
	} else {
		fr.flowWriter.CommandEnd(idx, status, element, errorInfo, artifacts)
	}

	return status, errorMsg, stepDuration
}

func cancelled(ctx context.Context, what string) *core.CommandResult {
	return &core.CommandResult{
		Success: false,
		Error:   ctx.Err(),
		Message: what + " cancelled",
	}
}

// executeRepeat handles repeat step execution.
func (fr *FlowRunner) executeRepeat(step *flow.RepeatStep) *core.CommandResult {
	times := fr.vars.ParseInt(step.Times, 1)
	if times <= 0 {
		return core.Failure(core.ErrInvalidConfig.WithMessage(
			fmt.Sprintf("repeat times must be positive, got %q", step.Times)), "")
	}

	for i := 0; i < times; i++ {
		if fr.ctx.Err() != nil {
			return cancelled(fr.ctx, "Repeat")
		}

		for _, nestedStep := range step.Steps {
			result := fr.executeNestedStep(nestedStep)
			if !result.Success && !nestedStep.IsOptional() {
				return result
			}
		}
	}

	return core.Success(fmt.Sprintf("Repeat completed (%d iterations)", times), nil)
}

// executeRetry handles retry step execution.
func (fr *FlowRunner) executeRetry(step *flow.RetryStep) *core.CommandResult {
	maxRetries := fr.vars.ParseInt(step.MaxRetries, 3)
	if maxRetries < 1 {
		maxRetries = 1
	}

	defer fr.vars.With(step.Env)()

	if step.File != "" && len(step.Steps) == 0 {
		filePath := fr.vars.ResolvePath(step.File)
		subFlow, err := flow.ParseFile(filePath)
		if err != nil {
			return core.Failure(err, fmt.Sprintf("Failed to parse flow file: %s", filePath))
		}
		return fr.executeSubFlowWithRetry(*subFlow, maxRetries)
	}

	var last *core.CommandResult
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if fr.ctx.Err() != nil {
			return cancelled(fr.ctx, "Retry")
		}

		last = nil
		for _, nestedStep := range step.Steps {
			result := fr.executeNestedStep(nestedStep)
			if !result.Success && !nestedStep.IsOptional() {
				last = result
				break
			}
		}

		if last == nil {
			return core.Success(fmt.Sprintf("Retry succeeded on attempt %d", attempt), nil)
		}
		logger.Debug("retry attempt %d/%d failed: %s", attempt, maxRetries, errorText(last))
	}

	return core.Failure(last.Error, fmt.Sprintf("Retry failed after %d attempts: %s", maxRetries, errorText(last)))
}

// executeRunFlow handles runFlow step execution.
func (fr *FlowRunner) executeRunFlow(step *flow.RunFlowStep) *core.CommandResult {
	if fr.config.OnNestedFlowStart != nil && step.File != "" {
		fr.config.OnNestedFlowStart(fr.depth+1, "Run "+step.File)
	}

	fr.depth++
	defer func() { fr.depth-- }()

	defer fr.vars.With(step.Env)()

	if len(step.Steps) > 0 {
		for _, nestedStep := range step.Steps {
			result := fr.executeNestedStep(nestedStep)
			if !result.Success && !nestedStep.IsOptional() {
				return result
			}
		}
		return core.Success("Inline flow completed", nil)
	}

	if step.File == "" {
		return core.Failure(core.ErrMissingRequired.WithMessage("runFlow requires file or inline commands"), "")
	}

	filePath := fr.vars.ResolvePath(step.File)
	subFlow, err := flow.ParseFile(filePath)
	if err != nil {
		return core.Failure(err, fmt.Sprintf("Failed to parse flow file: %s", filePath))
	}

	return fr.executeSubFlow(*subFlow)
}

// executeNestedStep executes a step as a sub-command of the current compound step.
func (fr *FlowRunner) executeNestedStep(step flow.Step) *core.CommandResult {
	start := time.Now()

	// Nested compound steps collect their own sub-commands
	var nestedSubCommands []report.Command
	compound := isCompound(step)
	parentSubCommands := fr.subCommands
	if compound {
		fr.subCommands = nil
	}

	if !compound {
		step = fr.vars.ExpandStep(step)
	}
	result := fr.execute(step)

	if compound {
		nestedSubCommands = fr.subCommands
		fr.subCommands = parentSubCommands
	}

	duration := time.Since(start).Milliseconds()

	if !compound {
		if result.Success {
			fr.stepsPassed++
		} else {
			fr.stepsFailed++
		}
	}

	if fr.config.OnNestedStep != nil && fr.depth > 0 {
		errMsg := ""
		if !result.Success {
			errMsg = errorText(result)
		}
		fr.config.OnNestedStep(fr.depth, step.Describe(), result.Success, duration, errMsg)
	}

	status := report.StatusPassed
	if !result.Success {
		status = report.StatusFailed
	}

	now := time.Now()
	cmd := report.Command{
		ID:          fmt.Sprintf("sub-%d", len(fr.subCommands)),
		Index:       len(fr.subCommands),
		Type:        string(step.Type()),
		Label:       step.Label(),
		YAML:        step.Describe(),
		Status:      status,
		StartTime:   &start,
		EndTime:     &now,
		Duration:    &duration,
		Element:     commandResultToElement(result),
		Error:       commandResultToError(result),
		SubCommands: nestedSubCommands,
	}

	fr.subCommands = append(fr.subCommands, cmd)

	return result
}

// executeSubFlow executes a sub-flow without separate report tracking.
func (fr *FlowRunner) executeSubFlow(subFlow flow.Flow) *core.CommandResult {
	prevDir := fr.vars.flowDir
	if subFlow.SourcePath != "" {
		fr.vars.SetFlowDir(filepath.Dir(subFlow.SourcePath))
	}
	defer fr.vars.SetFlowDir(prevDir)

	defer fr.vars.With(subFlow.Config.Env)()

	steps := subFlow.Steps
	if subFlow.Config.URL != "" {
		open := &flow.OpenLinkStep{BaseStep: flow.BaseStep{StepType: flow.StepOpenLink}, Link: subFlow.Config.URL}
		steps = append([]flow.Step{open}, steps...)
	}

	for _, step := range steps {
		if fr.ctx.Err() != nil {
			return cancelled(fr.ctx, "Sub-flow")
		}

		result := fr.executeNestedStep(step)
		if !result.Success && !step.IsOptional() {
			return result
		}
	}

	return core.Success(fmt.Sprintf("Sub-flow '%s' completed", subFlow.Config.Name), nil)
}

// executeSubFlowWithRetry executes a sub-flow with retry logic.
func (fr *FlowRunner) executeSubFlowWithRetry(subFlow flow.Flow, maxRetries int) *core.CommandResult {
	var last *core.CommandResult

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if fr.ctx.Err() != nil {
			return cancelled(fr.ctx, "Retry")
		}

		last = fr.executeSubFlow(subFlow)
		if last.Success {
			return core.Success(fmt.Sprintf("Retry succeeded on attempt %d", attempt), nil)
		}
	}

	return core.Failure(last.Error, fmt.Sprintf("Retry failed after %d attempts: %s", maxRetries, errorText(last)))
}

// captureArtifacts captures a screenshot and, after a step, the page HTML.
func (fr *FlowRunner) captureArtifacts(cmdIdx int, timing string) report.CommandArtifacts {
	var artifacts report.CommandArtifacts

	if data, err := fr.driver.Screenshot(); err == nil && len(data) > 0 {
		path, saveErr := fr.flowWriter.SaveScreenshot(cmdIdx, timing, data)
		if saveErr != nil {
			logger.Warn("save screenshot: %v", saveErr)
		} else if timing == "before" {
			artifacts.ScreenshotBefore = path
		} else {
			artifacts.ScreenshotAfter = path
		}
	} else if err != nil {
		logger.Debug("screenshot unavailable: %v", err)
	}

	if timing == "after" {
		if data, err := fr.driver.Hierarchy(); err == nil && len(data) > 0 {
			path, saveErr := fr.flowWriter.SavePageSource(cmdIdx, data)
			if saveErr == nil {
				artifacts.PageSource = path
			}
		}
	}

	return artifacts
}
