package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/canvas-runner/pkg/logger"
)

// FlowWriter writes updates for a single flow.
// Each flow goroutine has its own FlowWriter, so no locking is needed.
type FlowWriter struct {
	flow      *FlowDetail
	path      string
	assetsDir string
	index     *IndexWriter
}

// NewFlowWriter creates a new FlowWriter for a flow.
func NewFlowWriter(flowDetail *FlowDetail, outputDir string, index *IndexWriter) *FlowWriter {
	flowPath := filepath.Join(outputDir, "flows", flowDetail.ID+".json")
	assetsDir := filepath.Join(outputDir, "assets", flowDetail.ID)

	if err := ensureDir(assetsDir); err != nil {
		logger.Warn("create assets dir %s: %v", assetsDir, err)
	}

	return &FlowWriter{
		flow:      flowDetail,
		path:      flowPath,
		assetsDir: assetsDir,
		index:     index,
	}
}

// Start marks the flow as started.
func (w *FlowWriter) Start() {
	now := time.Now()
	w.flow.StartTime = now

	w.flush()
	w.updateIndex(StatusRunning, &now, nil, nil, nil)
}

// SetBrowser records the browser session that runs this flow.
func (w *FlowWriter) SetBrowser(info BrowserInfo) {
	w.flow.Browser = &info
	w.flush()
}

// CommandStart marks a command as started.
func (w *FlowWriter) CommandStart(cmdIndex int) {
	if cmdIndex < 0 || cmdIndex >= len(w.flow.Commands) {
		return
	}

	now := time.Now()
	cmd := &w.flow.Commands[cmdIndex]
	cmd.Status = StatusRunning
	cmd.StartTime = &now

	w.flush()
	w.updateIndexProgress()
}

// CommandEnd marks a command as complete.
func (w *FlowWriter) CommandEnd(cmdIndex int, status Status, element *Element, err *Error, artifacts CommandArtifacts) {
	w.CommandEndWithSubs(cmdIndex, status, element, err, artifacts, nil)
}

// CommandEndWithSubs marks a command as complete with optional sub-commands.
func (w *FlowWriter) CommandEndWithSubs(cmdIndex int, status Status, element *Element, err *Error, artifacts CommandArtifacts, subCommands []Command) {
	if cmdIndex < 0 || cmdIndex >= len(w.flow.Commands) {
		return
	}

	now := time.Now()
	cmd := &w.flow.Commands[cmdIndex]
	cmd.Status = status
	cmd.EndTime = &now

	if cmd.StartTime != nil {
		duration := now.Sub(*cmd.StartTime).Milliseconds()
		cmd.Duration = &duration
	}

	cmd.Element = element
	cmd.Error = err
	cmd.Artifacts = artifacts
	cmd.SubCommands = subCommands

	w.flush()
	w.updateIndexProgress()
}

// End marks the flow as complete.
func (w *FlowWriter) End(status Status) {
	now := time.Now()
	w.flow.EndTime = &now

	var duration int64
	if !w.flow.StartTime.IsZero() {
		duration = now.Sub(w.flow.StartTime).Milliseconds()
		w.flow.Duration = &duration
	}

	w.flush()

	var errMsg *string
	if status == StatusFailed {
		for _, cmd := range w.flow.Commands {
			if cmd.Error != nil {
				msg := cmd.Error.Message
				errMsg = &msg
				break
			}
		}
	}

	w.updateIndex(status, nil, &now, &duration, errMsg)
}

// SetFlowArtifacts sets flow-level artifacts.
func (w *FlowWriter) SetFlowArtifacts(artifacts FlowArtifacts) {
	w.flow.Artifacts = artifacts
	w.flush()
}

// SaveScreenshot saves a screenshot and returns the relative path.
func (w *FlowWriter) SaveScreenshot(cmdIndex int, timing string, data []byte) (string, error) {
	return w.saveAsset(fmt.Sprintf("cmd-%03d-%s.png", cmdIndex, timing), data)
}

// SavePageSource saves the page HTML captured at a command and returns the relative path.
func (w *FlowWriter) SavePageSource(cmdIndex int, data []byte) (string, error) {
	return w.saveAsset(fmt.Sprintf("cmd-%03d-page.html", cmdIndex), data)
}

// SaveConsoleLog saves the browser console log and returns the relative path.
func (w *FlowWriter) SaveConsoleLog(data []byte) (string, error) {
	return w.saveAsset("console.log", data)
}

func (w *FlowWriter) saveAsset(filename string, data []byte) (string, error) {
	absPath := filepath.Join(w.assetsDir, filename)
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return "", err
	}
	return filepath.Join("assets", w.flow.ID, filename), nil
}

// GetFlowDetail returns the current flow detail (for reading).
func (w *FlowWriter) GetFlowDetail() *FlowDetail {
	return w.flow
}

// flush writes the flow detail to disk.
func (w *FlowWriter) flush() {
	if err := atomicWriteJSON(w.path, w.flow); err != nil {
		logger.Warn("write flow %s: %v", w.flow.ID, err)
	}
}

func (w *FlowWriter) updateIndex(status Status, startTime, endTime *time.Time, duration *int64, errMsg *string) {
	w.index.UpdateFlow(w.flow.ID, &FlowUpdate{
		Status:    status,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  duration,
		Commands:  commandSummary(w.flow.Commands),
		Browser:   w.flow.Browser,
		Error:     errMsg,
	})
}

func (w *FlowWriter) updateIndexProgress() {
	w.index.UpdateFlow(w.flow.ID, &FlowUpdate{
		Status:   StatusRunning,
		Commands: commandSummary(w.flow.Commands),
	})
}

// SkipRemainingCommands marks all pending commands from fromIndex on as skipped.
func (w *FlowWriter) SkipRemainingCommands(fromIndex int) {
	for i := fromIndex; i < len(w.flow.Commands); i++ {
		if w.flow.Commands[i].Status == StatusPending {
			w.flow.Commands[i].Status = StatusSkipped
		}
	}
	w.flush()
}

// commandSummary computes command counts and the running command index.
func commandSummary(commands []Command) CommandSummary {
	var s CommandSummary
	s.Total = len(commands)

	for i, cmd := range commands {
		switch cmd.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusRunning:
			s.Running++
			idx := i
			s.Current = &idx
		case StatusPending:
			s.Pending++
		}
	}

	return s
}
