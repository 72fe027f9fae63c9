// Package report provides JSON-based test reporting with real-time updates.
//
// Layout of a report directory:
//   - report.json: run index (small, frequently updated, mutex-protected)
//   - flows/flow-XXX.json: per-flow detail files (single writer each)
//   - assets/flow-XXX/: screenshots, page snapshots and console logs
//
// The index is the single source of truth for status and change tracking.
// Consumers poll report.json and fetch changed flow details only.
package report

import "time"

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status.
type Status string

// Status values.
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusSkipped
}

// ============================================================================
// INDEX (report.json)
// ============================================================================

// Index is the main report file that binds everything together.
type Index struct {
	Version     string      `json:"version"`
	RunID       string      `json:"runId"`
	UpdateSeq   uint64      `json:"updateSeq"`
	Status      Status      `json:"status"`
	StartTime   time.Time   `json:"startTime"`
	EndTime     *time.Time  `json:"endTime,omitempty"`
	LastUpdated time.Time   `json:"lastUpdated"`
	Browser     BrowserInfo `json:"browser"`
	Target      Target      `json:"target"`
	CI          *CI         `json:"ci,omitempty"`
	Runner      RunnerInfo  `json:"runner"`
	Summary     Summary     `json:"summary"`
	Flows       []FlowEntry `json:"flows"`
}

// BrowserInfo describes the browser session a run (or flow) used.
type BrowserInfo struct {
	Name           string `json:"name"` // chromium, firefox, webkit, mock
	Version        string `json:"version,omitempty"`
	Headless       bool   `json:"headless"`
	ViewportWidth  int    `json:"viewportWidth,omitempty"`
	ViewportHeight int    `json:"viewportHeight,omitempty"`
	Worker         int    `json:"worker,omitempty"`
}

// Target describes the application under test.
type Target struct {
	BaseURL string `json:"baseUrl,omitempty"`
	Name    string `json:"name,omitempty"`
}

// CI contains CI/CD build information.
type CI struct {
	Provider string `json:"provider,omitempty"`
	BuildID  string `json:"buildId,omitempty"`
	BuildURL string `json:"buildUrl,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Commit   string `json:"commit,omitempty"`
}

// RunnerInfo contains canvas-runner information.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"` // playwright, mock
}

// Summary contains aggregated counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// FlowEntry is the index entry for a flow.
type FlowEntry struct {
	Index          int            `json:"index"`
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	SourceFile     string         `json:"sourceFile"`
	DataFile       string         `json:"dataFile"`
	AssetsDir      string         `json:"assetsDir"`
	Status         Status         `json:"status"`
	UpdateSeq      uint64         `json:"updateSeq"`
	StartTime      *time.Time     `json:"startTime,omitempty"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	Duration       *int64         `json:"duration,omitempty"` // milliseconds
	LastUpdated    *time.Time     `json:"lastUpdated,omitempty"`
	Commands       CommandSummary `json:"commands"`
	Attempts       int            `json:"attempts"`
	AttemptHistory []AttemptEntry `json:"attemptHistory,omitempty"`
	Browser        *BrowserInfo   `json:"browser,omitempty"`
	Error          *string        `json:"error,omitempty"`
}

// CommandSummary contains command counts for a flow.
type CommandSummary struct {
	Total   int  `json:"total"`
	Passed  int  `json:"passed"`
	Failed  int  `json:"failed"`
	Skipped int  `json:"skipped"`
	Running int  `json:"running"`
	Pending int  `json:"pending"`
	Current *int `json:"current,omitempty"` // currently running command index
}

// AttemptEntry tracks retry attempts.
type AttemptEntry struct {
	Attempt  int    `json:"attempt"`
	DataFile string `json:"dataFile"`
	Status   Status `json:"status"`
	Duration int64  `json:"duration"` // milliseconds
	Error    string `json:"error,omitempty"`
}

// ============================================================================
// FLOW DETAIL (flows/flow-XXX.json)
// ============================================================================

// FlowDetail contains full flow execution details.
type FlowDetail struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	SourceFile string        `json:"sourceFile"`
	Tags       []string      `json:"tags,omitempty"`
	Browser    *BrowserInfo  `json:"browser,omitempty"` // session that ran this flow
	StartTime  time.Time     `json:"startTime"`
	EndTime    *time.Time    `json:"endTime,omitempty"`
	Duration   *int64        `json:"duration,omitempty"` // milliseconds
	Commands   []Command     `json:"commands"`
	Artifacts  FlowArtifacts `json:"artifacts"`
}

// Command represents a single command execution.
type Command struct {
	ID          string           `json:"id"`
	Index       int              `json:"index"`
	Type        string           `json:"type"`
	Label       string           `json:"label,omitempty"`
	YAML        string           `json:"yaml,omitempty"`
	Status      Status           `json:"status"`
	StartTime   *time.Time       `json:"startTime,omitempty"`
	EndTime     *time.Time       `json:"endTime,omitempty"`
	Duration    *int64           `json:"duration,omitempty"` // milliseconds
	Params      *CommandParams   `json:"params,omitempty"`
	Element     *Element         `json:"element,omitempty"`
	Error       *Error           `json:"error,omitempty"`
	Artifacts   CommandArtifacts `json:"artifacts"`
	SubCommands []Command        `json:"subCommands,omitempty"`
}

// CommandParams contains command-specific parameters.
type CommandParams struct {
	Selector *Selector `json:"selector,omitempty"`
	Target   *Selector `json:"target,omitempty"` // shape for position checks
	Text     string    `json:"text,omitempty"`
	Value    string    `json:"value,omitempty"` // settings value, expected size or count
	Fields   []string  `json:"fields,omitempty"`
	Timeout  int       `json:"timeout,omitempty"`
}

// Selector represents an element selector.
type Selector struct {
	Type     string `json:"type"` // id, css, text
	Value    string `json:"value"`
	Index    string `json:"index,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Element contains information about the found element.
type Element struct {
	Found  bool    `json:"found"`
	ID     string  `json:"id,omitempty"`
	Text   string  `json:"text,omitempty"`
	Class  string  `json:"class,omitempty"`
	Bounds *Bounds `json:"bounds,omitempty"`
}

// Bounds represents element bounds in CSS pixels.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Error contains error details.
type Error struct {
	Type       string `json:"type"` // assertion, timeout, connection, app, config, unknown
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ============================================================================
// ARTIFACTS (paths only, never inline data)
// ============================================================================

// FlowArtifacts contains flow-level artifact paths.
type FlowArtifacts struct {
	ConsoleLog string `json:"consoleLog,omitempty"`
}

// CommandArtifacts contains command-level artifact paths.
type CommandArtifacts struct {
	ScreenshotBefore string `json:"screenshotBefore,omitempty"`
	ScreenshotAfter  string `json:"screenshotAfter,omitempty"`
	PageSource       string `json:"pageSource,omitempty"`
}

// ============================================================================
// UPDATE TYPES
// ============================================================================

// FlowUpdate contains the fields to update in index for a flow.
type FlowUpdate struct {
	Status    Status
	StartTime *time.Time
	EndTime   *time.Time
	Duration  *int64
	Commands  CommandSummary
	Browser   *BrowserInfo
	Error     *string
}
