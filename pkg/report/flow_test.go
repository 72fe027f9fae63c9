package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func createTestFlowWriter(t *testing.T) (*FlowWriter, *IndexWriter, string) {
	tmpDir := t.TempDir()

	index := &Index{
		Version: Version,
		Status:  StatusRunning,
		Flows: []FlowEntry{
			{ID: "flow-000", Name: "Test Flow", Status: StatusPending},
		},
	}

	indexWriter := NewIndexWriter(tmpDir, index)

	flowDetail := &FlowDetail{
		ID:   "flow-000",
		Name: "Test Flow",
		Commands: []Command{
			{Index: 0, Type: "openSettings", Status: StatusPending},
			{Index: 1, Type: "setTextSize", Status: StatusPending},
			{Index: 2, Type: "assertFontSize", Status: StatusPending},
		},
	}

	// Create flows directory
	if err := os.MkdirAll(filepath.Join(tmpDir, "flows"), 0o755); err != nil {
		t.Fatalf("failed to create flows directory: %v", err)
	}

	flowWriter := NewFlowWriter(flowDetail, tmpDir, indexWriter)

	return flowWriter, indexWriter, tmpDir
}

func TestNewFlowWriter(t *testing.T) {
	fw, iw, tmpDir := createTestFlowWriter(t)
	defer iw.Close()

	if fw.flow.ID != "flow-000" {
		t.Errorf("flow.ID = %q, want %q", fw.flow.ID, "flow-000")
	}

	expectedPath := filepath.Join(tmpDir, "flows", "flow-000.json")
	if fw.path != expectedPath {
		t.Errorf("path = %q, want %q", fw.path, expectedPath)
	}

	expectedAssetsDir := filepath.Join(tmpDir, "assets", "flow-000")
	if fw.assetsDir != expectedAssetsDir {
		t.Errorf("assetsDir = %q, want %q", fw.assetsDir, expectedAssetsDir)
	}

	// Check assets directory was created
	if _, err := os.Stat(expectedAssetsDir); err != nil {
		t.Errorf("assets directory not created: %v", err)
	}
}

func TestFlowWriter_Start(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	before := time.Now()
	fw.Start()
	after := time.Now()

	if fw.flow.StartTime.Before(before) || fw.flow.StartTime.After(after) {
		t.Error("StartTime not set correctly")
	}
}

func TestFlowWriter_CommandStart(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	fw.Start()

	before := time.Now()
	fw.CommandStart(0)
	after := time.Now()

	cmd := fw.flow.Commands[0]
	if cmd.Status != StatusRunning {
		t.Errorf("cmd.Status = %q, want %q", cmd.Status, StatusRunning)
	}
	if cmd.StartTime == nil {
		t.Error("StartTime not set")
	} else if cmd.StartTime.Before(before) || cmd.StartTime.After(after) {
		t.Error("StartTime not in expected range")
	}
}

func TestFlowWriter_CommandStart_InvalidIndex(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	// Should not panic with invalid index
	fw.CommandStart(-1)
	fw.CommandStart(100)
}

func TestFlowWriter_CommandEnd(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	fw.Start()
	fw.CommandStart(0)

	time.Sleep(10 * time.Millisecond)

	element := &Element{Found: true, ID: "cvat_canvas_shape_1", Class: "cvat_canvas_shape"}
	artifacts := CommandArtifacts{
		ScreenshotBefore: "assets/flow-000/cmd-000-before.png",
	}

	fw.CommandEnd(0, StatusPassed, element, nil, artifacts)

	cmd := fw.flow.Commands[0]
	if cmd.Status != StatusPassed {
		t.Errorf("cmd.Status = %q, want %q", cmd.Status, StatusPassed)
	}
	if cmd.EndTime == nil {
		t.Error("EndTime not set")
	}
	if cmd.Duration == nil || *cmd.Duration < 10 {
		t.Error("Duration not calculated correctly")
	}
	if cmd.Element == nil || cmd.Element.ID != "cvat_canvas_shape_1" || !cmd.Element.Found {
		t.Error("Element not set correctly")
	}
	if cmd.Artifacts.ScreenshotBefore != "assets/flow-000/cmd-000-before.png" {
		t.Errorf("Artifacts not set correctly")
	}
}

func TestFlowWriter_CommandEnd_WithError(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	fw.Start()
	fw.CommandStart(0)

	err := &Error{
		Type:    "timeout",
		Message: "element .cvat-settings-modal not found",
	}

	fw.CommandEnd(0, StatusFailed, nil, err, CommandArtifacts{})

	cmd := fw.flow.Commands[0]
	if cmd.Status != StatusFailed {
		t.Errorf("cmd.Status = %q, want %q", cmd.Status, StatusFailed)
	}
	if cmd.Error == nil {
		t.Error("Error not set")
	} else if cmd.Error.Type != "timeout" {
		t.Errorf("Error.Type = %q, want %q", cmd.Error.Type, "timeout")
	}
}

func TestFlowWriter_End(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	fw.Start()
	fw.CommandStart(0)
	fw.CommandEnd(0, StatusPassed, nil, nil, CommandArtifacts{})
	fw.CommandStart(1)
	fw.CommandEnd(1, StatusPassed, nil, nil, CommandArtifacts{})
	fw.CommandStart(2)
	fw.CommandEnd(2, StatusPassed, nil, nil, CommandArtifacts{})

	fw.End(StatusPassed)

	if fw.flow.EndTime == nil {
		t.Error("EndTime not set")
	}
	if fw.flow.Duration == nil {
		t.Error("Duration not set")
	}
}

func TestFlowWriter_End_WithFailure(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	fw.Start()
	fw.CommandStart(0)
	fw.CommandEnd(0, StatusFailed, nil, &Error{Message: "Test error"}, CommandArtifacts{})

	fw.End(StatusFailed)

	// Wait for index update
	time.Sleep(50 * time.Millisecond)

	index := iw.GetIndex()
	if index.Flows[0].Status != StatusFailed {
		t.Errorf("index flow status = %q, want %q", index.Flows[0].Status, StatusFailed)
	}
	if index.Flows[0].Error == nil || *index.Flows[0].Error != "Test error" {
		t.Errorf("index flow error = %v, want %q", index.Flows[0].Error, "Test error")
	}
	if index.Summary.Failed != 1 {
		t.Errorf("Summary.Failed = %d, want 1", index.Summary.Failed)
	}
}

func TestFlowWriter_SetFlowArtifacts(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	fw.SetFlowArtifacts(FlowArtifacts{ConsoleLog: "assets/flow-000/console.log"})

	if fw.flow.Artifacts.ConsoleLog != "assets/flow-000/console.log" {
		t.Errorf("ConsoleLog = %q, want %q", fw.flow.Artifacts.ConsoleLog, "assets/flow-000/console.log")
	}
}

func TestFlowWriter_SetBrowser(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	fw.SetBrowser(BrowserInfo{Name: "webkit", Worker: 2})
	fw.Start()
	fw.End(StatusPassed)

	if fw.flow.Browser == nil || fw.flow.Browser.Name != "webkit" {
		t.Fatalf("Browser = %+v, want webkit", fw.flow.Browser)
	}
	entry := iw.GetIndex().Flows[0]
	if entry.Browser == nil || entry.Browser.Worker != 2 {
		t.Errorf("index browser = %+v, want worker 2", entry.Browser)
	}
}

func TestFlowWriter_SaveScreenshot(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	// Fake PNG data
	data := []byte{0x89, 0x50, 0x4E, 0x47}

	path, err := fw.SaveScreenshot(0, "before", data)
	if err != nil {
		t.Fatalf("SaveScreenshot() error = %v", err)
	}

	expected := filepath.Join("assets", "flow-000", "cmd-000-before.png")
	if path != expected {
		t.Errorf("path = %q, want %q", path, expected)
	}

	// Check file exists
	absPath := filepath.Join(fw.assetsDir, "cmd-000-before.png")
	if _, err := os.Stat(absPath); err != nil {
		t.Errorf("screenshot file not created: %v", err)
	}
}

func TestFlowWriter_SavePageSource(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	data := []byte("<html><body><svg id=\"cvat_canvas_content\"></svg></body></html>")

	path, err := fw.SavePageSource(0, data)
	if err != nil {
		t.Fatalf("SavePageSource() error = %v", err)
	}

	expected := filepath.Join("assets", "flow-000", "cmd-000-page.html")
	if path != expected {
		t.Errorf("path = %q, want %q", path, expected)
	}

	absPath := filepath.Join(fw.assetsDir, "cmd-000-page.html")
	if _, err := os.Stat(absPath); err != nil {
		t.Errorf("page source file not created: %v", err)
	}
}

func TestFlowWriter_SaveConsoleLog(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	data := []byte("[log] canvas ready\n[warning] slow frame\n")

	path, err := fw.SaveConsoleLog(data)
	if err != nil {
		t.Fatalf("SaveConsoleLog() error = %v", err)
	}

	expected := filepath.Join("assets", "flow-000", "console.log")
	if path != expected {
		t.Errorf("path = %q, want %q", path, expected)
	}

	absPath := filepath.Join(fw.assetsDir, "console.log")
	if _, err := os.Stat(absPath); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}

func TestFlowWriter_GetFlowDetail(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	detail := fw.GetFlowDetail()
	if detail.ID != "flow-000" {
		t.Errorf("ID = %q, want %q", detail.ID, "flow-000")
	}
}

func TestFlowWriter_SkipRemainingCommands(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	fw.Start()
	fw.CommandStart(0)
	fw.CommandEnd(0, StatusFailed, nil, &Error{Message: "failed"}, CommandArtifacts{})

	fw.SkipRemainingCommands(1)

	if fw.flow.Commands[1].Status != StatusSkipped {
		t.Errorf("Commands[1].Status = %q, want %q", fw.flow.Commands[1].Status, StatusSkipped)
	}
	if fw.flow.Commands[2].Status != StatusSkipped {
		t.Errorf("Commands[2].Status = %q, want %q", fw.flow.Commands[2].Status, StatusSkipped)
	}
}

func TestCommandSummary(t *testing.T) {
	fw, iw, _ := createTestFlowWriter(t)
	defer iw.Close()

	fw.flow.Commands[0].Status = StatusPassed
	fw.flow.Commands[1].Status = StatusRunning
	fw.flow.Commands[2].Status = StatusPending

	summary := commandSummary(fw.flow.Commands)

	if summary.Total != 3 {
		t.Errorf("Total = %d, want 3", summary.Total)
	}
	if summary.Passed != 1 {
		t.Errorf("Passed = %d, want 1", summary.Passed)
	}
	if summary.Running != 1 {
		t.Errorf("Running = %d, want 1", summary.Running)
	}
	if summary.Pending != 1 {
		t.Errorf("Pending = %d, want 1", summary.Pending)
	}
	if summary.Current == nil || *summary.Current != 1 {
		t.Errorf("Current = %v, want 1", summary.Current)
	}
}
