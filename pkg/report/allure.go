package report

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/canvas-runner/pkg/logger"
)

// AllureDir is the directory GenerateAllure writes inside a report.
const AllureDir = "allure-results"

// AllureResult is one test result file (<uuid>-result.json).
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep is a step within a result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureAttachment points at a file in allure-results.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel is a name/value label on a result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds the failure message.
type AllureStatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

// AllureCategory groups failures by message.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// AllureExecutor describes who produced the results.
type AllureExecutor struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	BuildName string `json:"buildName,omitempty"`
	BuildURL  string `json:"buildUrl,omitempty"`
}

// GenerateAllure writes Allure results for a finished report into
// <reportDir>/allure-results and returns that directory.
func GenerateAllure(reportDir string) (string, error) {
	index, flows, err := ReadReport(reportDir)
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}

	allureDir := filepath.Join(reportDir, AllureDir)
	if err := ensureDir(allureDir); err != nil {
		return "", fmt.Errorf("create %s: %w", AllureDir, err)
	}

	for i := range index.Flows {
		entry := &index.Flows[i]
		var detail *FlowDetail
		if i < len(flows) {
			detail = &flows[i]
			copyAllureAttachments(reportDir, allureDir, detail)
		}
		result := buildAllureResult(entry, detail, index)
		if err := atomicWriteJSON(filepath.Join(allureDir, entry.ID+"-result.json"), result); err != nil {
			return "", fmt.Errorf("write allure result %s: %w", entry.ID, err)
		}
	}

	if err := atomicWriteJSON(filepath.Join(allureDir, "categories.json"), allureCategories()); err != nil {
		return "", err
	}
	if err := writeAllureEnvironment(allureDir, index); err != nil {
		return "", err
	}
	if err := atomicWriteJSON(filepath.Join(allureDir, "executor.json"), allureExecutor(index)); err != nil {
		return "", err
	}
	return allureDir, nil
}

func buildAllureResult(entry *FlowEntry, detail *FlowDetail, index *Index) AllureResult {
	start, stop := allureTimes(entry.StartTime, entry.EndTime, entry.Duration)

	labels := []AllureLabel{
		{Name: "suite", Value: entry.Name},
		{Name: "parentSuite", Value: filepath.Base(entry.SourceFile)},
		{Name: "framework", Value: "canvas-runner"},
		{Name: "severity", Value: "normal"},
	}
	browser := index.Browser
	if entry.Browser != nil {
		browser = *entry.Browser
	}
	if browser.Name != "" {
		labels = append(labels, AllureLabel{Name: "host", Value: browser.Name})
	}
	labels = append(labels, AllureLabel{Name: "thread", Value: "session-" + strconv.Itoa(browser.Worker+1)})

	result := AllureResult{
		UUID:      entry.ID,
		HistoryID: fnv32aHash(entry.Name + ":" + entry.SourceFile),
		FullName:  entry.SourceFile + "#" + entry.Name,
		Name:      entry.Name,
		Status:    mapAllureStatus(entry.Status),
		Stage:     "finished",
		Start:     start,
		Stop:      stop,
	}
	if entry.Error != nil {
		result.StatusDetails.Message = *entry.Error
	}

	if detail != nil {
		for _, tag := range detail.Tags {
			labels = append(labels, AllureLabel{Name: "tag", Value: tag})
		}
		result.Steps = buildAllureSteps(detail.ID, detail.Commands)
		if detail.Artifacts.ConsoleLog != "" {
			result.Attachments = append(result.Attachments, AllureAttachment{
				Name:   "Console log",
				Source: allureSource(detail.ID, detail.Artifacts.ConsoleLog),
				Type:   "text/plain",
			})
		}
	}
	result.Labels = labels
	if result.Steps == nil {
		result.Steps = []AllureStep{}
	}
	if result.Attachments == nil {
		result.Attachments = []AllureAttachment{}
	}
	return result
}

func buildAllureSteps(flowID string, commands []Command) []AllureStep {
	steps := make([]AllureStep, 0, len(commands))
	for _, cmd := range commands {
		steps = append(steps, buildAllureStep(flowID, cmd))
	}
	return steps
}

func buildAllureStep(flowID string, cmd Command) AllureStep {
	name := cmd.YAML
	if cmd.Label != "" {
		name = cmd.Label
	}
	if name == "" {
		name = cmd.Type
	}

	start, stop := allureTimes(cmd.StartTime, cmd.EndTime, cmd.Duration)
	step := AllureStep{
		Name:        name,
		Status:      mapAllureStatus(cmd.Status),
		Stage:       "finished",
		Start:       start,
		Stop:        stop,
		Steps:       buildAllureSteps(flowID, cmd.SubCommands),
		Attachments: []AllureAttachment{},
	}
	if cmd.Error != nil {
		step.StatusDetails.Message = cmd.Error.Message
		step.StatusDetails.Trace = cmd.Error.Details
	}

	for _, a := range []struct{ name, path, mime string }{
		{"Before", cmd.Artifacts.ScreenshotBefore, "image/png"},
		{"After", cmd.Artifacts.ScreenshotAfter, "image/png"},
		{"Page", cmd.Artifacts.PageSource, "text/html"},
	} {
		if a.path != "" {
			step.Attachments = append(step.Attachments, AllureAttachment{
				Name:   a.name,
				Source: allureSource(flowID, a.path),
				Type:   a.mime,
			})
		}
	}
	return step
}

// allureTimes converts report times to epoch milliseconds; a missing end
// falls back to start plus duration.
func allureTimes(startTime, endTime *time.Time, duration *int64) (int64, int64) {
	var start, stop int64
	if startTime != nil {
		start = startTime.UnixMilli()
	}
	if endTime != nil {
		stop = endTime.UnixMilli()
	} else if start != 0 && duration != nil {
		stop = start + *duration
	}
	return start, stop
}

// allureSource names an asset in the flat allure-results directory.
// Asset file names repeat across flows, so the flow ID prefixes them.
func allureSource(flowID, assetPath string) string {
	return flowID + "-" + filepath.Base(assetPath)
}

func copyAllureAttachments(reportDir, allureDir string, detail *FlowDetail) {
	var paths []string
	var walk func(cmds []Command)
	walk = func(cmds []Command) {
		for _, cmd := range cmds {
			paths = append(paths, cmd.Artifacts.ScreenshotBefore, cmd.Artifacts.ScreenshotAfter, cmd.Artifacts.PageSource)
			walk(cmd.SubCommands)
		}
	}
	walk(detail.Commands)
	paths = append(paths, detail.Artifacts.ConsoleLog)

	for _, p := range paths {
		if p == "" {
			continue
		}
		copyFile(filepath.Join(reportDir, p), filepath.Join(allureDir, allureSource(detail.ID, p)))
	}
}

// copyFile copies src to dst. A missing source is skipped: on-failure
// artifact mode leaves passed steps without files.
func copyFile(src, dst string) {
	in, err := os.Open(src) //#nosec G304 -- paths come from the report
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst) //#nosec G304
	if err != nil {
		logger.Warn("create %s: %v", dst, err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("copy %s to %s: %v", src, dst, err)
	}
}

func mapAllureStatus(s Status) string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

func fnv32aHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// allureCategories sorts failures by the check that produced them.
func allureCategories() []AllureCategory {
	failed := []string{"failed"}
	return []AllureCategory{
		{Name: "Text position", MatchedStatuses: failed, MessageRegex: "(?is).*position check failed.*"},
		{Name: "Label content", MatchedStatuses: failed, MessageRegex: "(?is).*(content|count) check failed.*"},
		{Name: "Text fields", MatchedStatuses: failed, MessageRegex: "(?is).*visibility check failed.*"},
		{Name: "Settings not open", MatchedStatuses: failed, MessageRegex: "(?is).*(settings are not open|requires open workspace settings).*"},
		{Name: "Element not found", MatchedStatuses: failed, MessageRegex: "(?is).*(element not found|not rendered|not visible).*"},
		{Name: "Timeout", MatchedStatuses: failed, MessageRegex: "(?is).*(timeout|timed out).*"},
		{Name: "Script", MatchedStatuses: failed, MessageRegex: "(?is).*(script|assertTrue).*"},
		{Name: "Connection", MatchedStatuses: failed, MessageRegex: "(?is).*(browser connection lost|could not reach|net::).*"},
	}
}

func writeAllureEnvironment(allureDir string, index *Index) error {
	var b strings.Builder
	prop := func(key, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s=%s\n", key, value)
		}
	}

	prop("framework", "canvas-runner")
	prop("runner.version", index.Runner.Version)
	prop("runner.driver", index.Runner.Driver)
	prop("browser.name", index.Browser.Name)
	prop("browser.version", index.Browser.Version)
	prop("browser.headless", strconv.FormatBool(index.Browser.Headless))
	if index.Browser.ViewportWidth > 0 {
		prop("browser.viewport", fmt.Sprintf("%dx%d", index.Browser.ViewportWidth, index.Browser.ViewportHeight))
	}
	prop("target.name", index.Target.Name)
	prop("target.baseUrl", index.Target.BaseURL)
	if index.CI != nil {
		prop("ci.provider", index.CI.Provider)
		prop("ci.branch", index.CI.Branch)
		prop("ci.commit", index.CI.Commit)
	}

	path := filepath.Join(allureDir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}

func allureExecutor(index *Index) AllureExecutor {
	ex := AllureExecutor{Name: "canvas-runner", Type: "canvas-runner"}
	if index.CI != nil {
		ex.Type = index.CI.Provider
		ex.BuildName = index.CI.BuildID
		ex.BuildURL = index.CI.BuildURL
	}
	return ex
}
