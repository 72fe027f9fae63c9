package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func allureTestReport(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Second)
	cmdEnd := start.Add(time.Second)
	d := int64(4000)
	failMsg := "position check failed: label top 40 is above shape top 52"

	index := &Index{
		Version:     Version,
		RunID:       "run-1",
		Status:      StatusFailed,
		StartTime:   start,
		EndTime:     &end,
		LastUpdated: end,
		Browser:     BrowserInfo{Name: "chromium", Version: "131.0", Headless: true, ViewportWidth: 1280, ViewportHeight: 720},
		Target:      Target{BaseURL: "http://localhost:8080", Name: "cvat"},
		CI:          &CI{Provider: "github", BuildID: "42", BuildURL: "https://ci.example/42", Branch: "main", Commit: "abc123"},
		Runner:      RunnerInfo{Version: "1.0.0", Driver: "playwright"},
		Summary:     Summary{Total: 2, Passed: 1, Failed: 1},
		Flows: []FlowEntry{
			{
				ID: "flow-000", Name: "Text position", SourceFile: "case_111/02_text_position.yaml",
				DataFile: "flows/flow-000.json", Status: StatusFailed,
				StartTime: &start, EndTime: &end, Duration: &d, Error: &failMsg,
			},
			{
				ID: "flow-001", Name: "Text content", SourceFile: "case_111/03_text_content.yaml",
				DataFile: "flows/flow-001.json", Status: StatusPassed,
				StartTime: &start, Duration: &d,
				Browser: &BrowserInfo{Name: "chromium", Worker: 1},
			},
		},
	}

	failed := FlowDetail{
		ID: "flow-000", Name: "Text position", Tags: []string{"case-111", "position"},
		StartTime: start,
		Commands: []Command{
			{Type: "setTextPosition", Label: "Text position: auto", Status: StatusPassed, StartTime: &start, EndTime: &cmdEnd},
			{
				Type: "assertTextPosition", YAML: "assertTextPosition: outside", Status: StatusFailed,
				StartTime: &cmdEnd, EndTime: &end,
				Error:     &Error{Type: "assertion", Message: failMsg, Details: "label 10,40 shape 0,52"},
				Artifacts: CommandArtifacts{
					ScreenshotAfter: "assets/flow-000/cmd-001-after.png",
					PageSource:      "assets/flow-000/cmd-001-page.html",
				},
			},
		},
		Artifacts: FlowArtifacts{ConsoleLog: "assets/flow-000/console.log"},
	}
	passed := FlowDetail{
		ID: "flow-001", Name: "Text content", StartTime: start,
		Commands: []Command{
			{
				Type: "runFlow", Status: StatusPassed,
				SubCommands: []Command{
					{Type: "assertLabelContent", Label: "Label content", Status: StatusPassed,
						Artifacts: CommandArtifacts{ScreenshotAfter: "assets/flow-001/cmd-001-after.png"}},
				},
			},
		},
	}
	writeTestReport(t, dir, index, failed, passed)

	for _, asset := range []string{
		"assets/flow-000/cmd-001-after.png",
		"assets/flow-000/cmd-001-page.html",
		"assets/flow-000/console.log",
		"assets/flow-001/cmd-001-after.png",
	} {
		path := filepath.Join(dir, asset)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(asset), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func readAllureResult(t *testing.T, dir, id string) AllureResult {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, AllureDir, id+"-result.json"))
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var result AllureResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("parse result: %v", err)
	}
	return result
}

func labelValues(labels []AllureLabel, name string) []string {
	var values []string
	for _, l := range labels {
		if l.Name == name {
			values = append(values, l.Value)
		}
	}
	return values
}

func TestGenerateAllure_FailedFlow(t *testing.T) {
	dir := allureTestReport(t)

	out, err := GenerateAllure(dir)
	if err != nil {
		t.Fatalf("GenerateAllure: %v", err)
	}
	if out != filepath.Join(dir, AllureDir) {
		t.Errorf("out = %q", out)
	}

	result := readAllureResult(t, dir, "flow-000")
	if result.Status != "failed" || result.Stage != "finished" {
		t.Errorf("status/stage = %s/%s", result.Status, result.Stage)
	}
	if !strings.Contains(result.StatusDetails.Message, "position check failed") {
		t.Errorf("message = %q", result.StatusDetails.Message)
	}
	if result.FullName != "case_111/02_text_position.yaml#Text position" {
		t.Errorf("fullName = %q", result.FullName)
	}
	if result.Stop-result.Start != 4000 {
		t.Errorf("duration = %d ms, want 4000", result.Stop-result.Start)
	}

	if len(result.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(result.Steps))
	}
	if result.Steps[0].Name != "Text position: auto" {
		t.Errorf("step 0 name = %q", result.Steps[0].Name)
	}
	step := result.Steps[1]
	if step.Name != "assertTextPosition: outside" || step.Status != "failed" {
		t.Errorf("step 1 = %s/%s", step.Name, step.Status)
	}
	if step.StatusDetails.Trace != "label 10,40 shape 0,52" {
		t.Errorf("trace = %q", step.StatusDetails.Trace)
	}
	if len(step.Attachments) != 2 {
		t.Fatalf("attachments = %+v", step.Attachments)
	}
	if step.Attachments[0].Source != "flow-000-cmd-001-after.png" || step.Attachments[0].Type != "image/png" {
		t.Errorf("screenshot attachment = %+v", step.Attachments[0])
	}
	if step.Attachments[1].Type != "text/html" {
		t.Errorf("page attachment = %+v", step.Attachments[1])
	}

	if len(result.Attachments) != 1 || result.Attachments[0].Source != "flow-000-console.log" {
		t.Errorf("flow attachments = %+v", result.Attachments)
	}
}

func TestGenerateAllure_Labels(t *testing.T) {
	dir := allureTestReport(t)
	if _, err := GenerateAllure(dir); err != nil {
		t.Fatalf("GenerateAllure: %v", err)
	}

	failed := readAllureResult(t, dir, "flow-000")
	if got := labelValues(failed.Labels, "tag"); len(got) != 2 || got[0] != "case-111" || got[1] != "position" {
		t.Errorf("tags = %v", got)
	}
	if got := labelValues(failed.Labels, "parentSuite"); len(got) != 1 || got[0] != "02_text_position.yaml" {
		t.Errorf("parentSuite = %v", got)
	}
	if got := labelValues(failed.Labels, "host"); len(got) != 1 || got[0] != "chromium" {
		t.Errorf("host = %v", got)
	}
	if got := labelValues(failed.Labels, "thread"); got[0] != "session-1" {
		t.Errorf("thread = %v", got)
	}

	// per-flow browser wins over the run browser
	passed := readAllureResult(t, dir, "flow-001")
	if got := labelValues(passed.Labels, "thread"); got[0] != "session-2" {
		t.Errorf("thread = %v, want session-2", got)
	}
	if len(labelValues(passed.Labels, "tag")) != 0 {
		t.Error("untagged flow has tag labels")
	}
}

func TestGenerateAllure_NestedStepsAndFallbacks(t *testing.T) {
	dir := allureTestReport(t)
	if _, err := GenerateAllure(dir); err != nil {
		t.Fatalf("GenerateAllure: %v", err)
	}

	result := readAllureResult(t, dir, "flow-001")
	if result.Status != "passed" {
		t.Errorf("status = %s", result.Status)
	}
	// no end time: stop comes from start plus duration
	if result.Stop-result.Start != 4000 {
		t.Errorf("duration = %d ms, want 4000", result.Stop-result.Start)
	}
	if len(result.Steps) != 1 || result.Steps[0].Name != "runFlow" {
		t.Fatalf("steps = %+v", result.Steps)
	}
	sub := result.Steps[0].Steps
	if len(sub) != 1 || sub[0].Name != "Label content" {
		t.Fatalf("sub steps = %+v", sub)
	}
	if len(sub[0].Attachments) != 1 || sub[0].Attachments[0].Source != "flow-001-cmd-001-after.png" {
		t.Errorf("sub attachments = %+v", sub[0].Attachments)
	}
}

func TestGenerateAllure_CopiesAttachmentsPerFlow(t *testing.T) {
	dir := allureTestReport(t)
	if _, err := GenerateAllure(dir); err != nil {
		t.Fatalf("GenerateAllure: %v", err)
	}

	// both flows have cmd-001-after.png; the flow prefix keeps them apart
	for name, want := range map[string]string{
		"flow-000-cmd-001-after.png": "assets/flow-000/cmd-001-after.png",
		"flow-001-cmd-001-after.png": "assets/flow-001/cmd-001-after.png",
		"flow-000-cmd-001-page.html": "assets/flow-000/cmd-001-page.html",
		"flow-000-console.log":       "assets/flow-000/console.log",
	} {
		data, err := os.ReadFile(filepath.Join(dir, AllureDir, name))
		if err != nil {
			t.Errorf("%s not copied: %v", name, err)
			continue
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", name, data, want)
		}
	}
}

func TestGenerateAllure_MissingAssetSkipped(t *testing.T) {
	dir := allureTestReport(t)
	if err := os.Remove(filepath.Join(dir, "assets", "flow-000", "cmd-001-page.html")); err != nil {
		t.Fatal(err)
	}
	if _, err := GenerateAllure(dir); err != nil {
		t.Fatalf("GenerateAllure: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, AllureDir, "flow-000-cmd-001-page.html")); !os.IsNotExist(err) {
		t.Errorf("expected missing page source to be skipped, stat err = %v", err)
	}
}

func TestGenerateAllure_Categories(t *testing.T) {
	dir := allureTestReport(t)
	if _, err := GenerateAllure(dir); err != nil {
		t.Fatalf("GenerateAllure: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, AllureDir, "categories.json"))
	if err != nil {
		t.Fatalf("read categories: %v", err)
	}
	var categories []AllureCategory
	if err := json.Unmarshal(data, &categories); err != nil {
		t.Fatalf("parse categories: %v", err)
	}
	names := make(map[string]bool)
	for _, c := range categories {
		names[c.Name] = true
		if len(c.MatchedStatuses) == 0 || c.MessageRegex == "" {
			t.Errorf("category %q incomplete", c.Name)
		}
	}
	for _, want := range []string{"Text position", "Label content", "Text fields", "Settings not open", "Script"} {
		if !names[want] {
			t.Errorf("missing category %q", want)
		}
	}
}

func TestGenerateAllure_EnvironmentAndExecutor(t *testing.T) {
	dir := allureTestReport(t)
	if _, err := GenerateAllure(dir); err != nil {
		t.Fatalf("GenerateAllure: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, AllureDir, "environment.properties"))
	if err != nil {
		t.Fatalf("read environment: %v", err)
	}
	env := string(data)
	for _, want := range []string{
		"framework=canvas-runner",
		"runner.driver=playwright",
		"browser.name=chromium",
		"browser.headless=true",
		"browser.viewport=1280x720",
		"target.baseUrl=http://localhost:8080",
		"ci.branch=main",
	} {
		if !strings.Contains(env, want+"\n") {
			t.Errorf("environment missing %q:\n%s", want, env)
		}
	}

	data, err = os.ReadFile(filepath.Join(dir, AllureDir, "executor.json"))
	if err != nil {
		t.Fatalf("read executor: %v", err)
	}
	var ex AllureExecutor
	if err := json.Unmarshal(data, &ex); err != nil {
		t.Fatalf("parse executor: %v", err)
	}
	if ex.Type != "github" || ex.BuildName != "42" || ex.BuildURL != "https://ci.example/42" {
		t.Errorf("executor = %+v", ex)
	}
}

func TestAllureExecutor_NoCI(t *testing.T) {
	ex := allureExecutor(&Index{})
	if ex.Name != "canvas-runner" || ex.Type != "canvas-runner" || ex.BuildName != "" {
		t.Errorf("executor = %+v", ex)
	}
}

func TestAllureHistoryIDDeterministic(t *testing.T) {
	a := fnv32aHash("Text position:case_111/02_text_position.yaml")
	b := fnv32aHash("Text position:case_111/02_text_position.yaml")
	c := fnv32aHash("Text content:case_111/03_text_content.yaml")
	if a != b || a == c || len(a) != 8 {
		t.Errorf("hashes a=%s b=%s c=%s", a, b, c)
	}
}

func TestMapAllureStatus(t *testing.T) {
	tests := map[Status]string{
		StatusPassed:  "passed",
		StatusFailed:  "failed",
		StatusSkipped: "skipped",
		StatusRunning: "unknown",
		StatusPending: "unknown",
	}
	for in, want := range tests {
		if got := mapAllureStatus(in); got != want {
			t.Errorf("mapAllureStatus(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestGenerateAllure_ReportMissing(t *testing.T) {
	if _, err := GenerateAllure(t.TempDir()); err == nil {
		t.Error("expected error for a directory without report.json")
	}
}
