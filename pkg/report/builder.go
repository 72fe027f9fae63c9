package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/canvas-runner/pkg/flow"
)

// BuilderConfig contains configuration for building the report skeleton.
type BuilderConfig struct {
	OutputDir     string      // Base output directory for reports
	RunID         string      // Run identifier (generated when empty)
	Browser       BrowserInfo // Browser session information
	Target        Target      // Application under test
	CI            *CI         // CI/CD information (optional)
	RunnerVersion string
	DriverName    string // playwright, mock
}

// BuildSkeleton creates the initial report structure from parsed flows.
// All flows and commands are set to "pending" status.
// This should be called after YAML validation, before execution starts.
func BuildSkeleton(flows []flow.Flow, cfg BuilderConfig) (*Index, []FlowDetail, error) {
	now := time.Now()

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	} else if _, err := uuid.Parse(runID); err != nil {
		return nil, nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}

	index := &Index{
		Version:     Version,
		RunID:       runID,
		UpdateSeq:   0,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Browser:     cfg.Browser,
		Target:      cfg.Target,
		CI:          cfg.CI,
		Runner: RunnerInfo{
			Version: cfg.RunnerVersion,
			Driver:  cfg.DriverName,
		},
		Summary: Summary{
			Total:   len(flows),
			Pending: len(flows),
		},
		Flows: make([]FlowEntry, len(flows)),
	}

	flowDetails := make([]FlowDetail, len(flows))

	for i, f := range flows {
		flowID := fmt.Sprintf("flow-%03d", i)
		flowName := extractFlowName(f)
		commands := buildCommands(f.Steps)

		index.Flows[i] = FlowEntry{
			Index:      i,
			ID:         flowID,
			Name:       flowName,
			SourceFile: f.SourcePath,
			DataFile:   filepath.Join("flows", flowID+".json"),
			AssetsDir:  filepath.Join("assets", flowID),
			Status:     StatusPending,
			Commands: CommandSummary{
				Total:   len(commands),
				Pending: len(commands),
			},
		}

		browser := cfg.Browser
		flowDetails[i] = FlowDetail{
			ID:         flowID,
			Name:       flowName,
			SourceFile: f.SourcePath,
			Tags:       f.Config.Tags,
			Browser:    &browser,
			Commands:   commands,
		}
	}

	return index, flowDetails, nil
}

// DetectCI reads well-known CI environment variables.
// Returns nil when not running under a recognised provider.
func DetectCI() *CI {
	switch {
	case os.Getenv("GITHUB_ACTIONS") == "true":
		ci := &CI{
			Provider: "github",
			BuildID:  os.Getenv("GITHUB_RUN_ID"),
			Branch:   os.Getenv("GITHUB_REF_NAME"),
			Commit:   os.Getenv("GITHUB_SHA"),
		}
		if server, repo := os.Getenv("GITHUB_SERVER_URL"), os.Getenv("GITHUB_REPOSITORY"); server != "" && repo != "" && ci.BuildID != "" {
			ci.BuildURL = server + "/" + repo + "/actions/runs/" + ci.BuildID
		}
		return ci
	case os.Getenv("GITLAB_CI") == "true":
		return &CI{
			Provider: "gitlab",
			BuildID:  os.Getenv("CI_PIPELINE_ID"),
			BuildURL: os.Getenv("CI_PIPELINE_URL"),
			Branch:   os.Getenv("CI_COMMIT_REF_NAME"),
			Commit:   os.Getenv("CI_COMMIT_SHA"),
		}
	case os.Getenv("JENKINS_URL") != "":
		return &CI{
			Provider: "jenkins",
			BuildID:  os.Getenv("BUILD_ID"),
			BuildURL: os.Getenv("BUILD_URL"),
			Branch:   os.Getenv("GIT_BRANCH"),
			Commit:   os.Getenv("GIT_COMMIT"),
		}
	case os.Getenv("CI") == "true":
		return &CI{Provider: "unknown"}
	}
	return nil
}

// extractFlowName extracts a display name from the flow.
func extractFlowName(f flow.Flow) string {
	if f.Config.Name != "" {
		return f.Config.Name
	}
	base := filepath.Base(f.SourcePath)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// buildCommands creates Command entries from flow steps.
func buildCommands(steps []flow.Step) []Command {
	commands := make([]Command, len(steps))
	for i, step := range steps {
		commands[i] = Command{
			ID:     fmt.Sprintf("cmd-%03d", i),
			Index:  i,
			Type:   string(step.Type()),
			Label:  step.Label(),
			YAML:   step.Describe(),
			Status: StatusPending,
			Params: extractParams(step),
		}
	}
	return commands
}

// extractParams extracts command parameters from a step.
func extractParams(step flow.Step) *CommandParams {
	params := &CommandParams{}

	params.Selector = extractSelector(step)

	switch s := step.(type) {
	case *flow.OpenLinkStep:
		params.Text = s.Link
	case *flow.InputTextStep:
		params.Text = s.Text
	case *flow.PressKeyStep:
		params.Text = s.Key
	case *flow.SetShowTextAlwaysStep:
		params.Value = strconv.FormatBool(s.Enabled)
	case *flow.SetTextSizeStep:
		params.Value = strconv.Itoa(s.Size)
	case *flow.SetTextPositionStep:
		params.Value = s.Position
	case *flow.SetTextContentStep:
		params.Fields = s.Fields
	case *flow.AssertCountStep:
		params.Value = strconv.Itoa(s.Count)
	case *flow.AssertTextStep:
		if s.Equals != nil {
			params.Text = *s.Equals
		} else {
			params.Text = s.Contains
		}
	case *flow.AssertFontSizeStep:
		params.Value = strconv.Itoa(s.Size) + "px"
	case *flow.AssertTextPositionStep:
		params.Target = convertSelector(&s.Shape)
		params.Value = s.Position
	case *flow.AssertLabelContentStep:
		params.Text = fmt.Sprintf("%s %d", s.LabelName, s.ObjectID)
	case *flow.AssertTextFieldsStep:
		params.Fields = s.Fields
	}

	if base := getBaseStep(step); base != nil && base.TimeoutMs > 0 {
		params.Timeout = base.TimeoutMs
	}

	if params.Selector == nil && params.Target == nil && params.Text == "" &&
		params.Value == "" && params.Fields == nil && params.Timeout == 0 {
		return nil
	}
	return params
}

// extractSelector extracts the primary selector from steps that have one.
func extractSelector(step flow.Step) *Selector {
	var sel *flow.Selector

	switch s := step.(type) {
	case *flow.TapOnStep:
		sel = &s.Selector
	case *flow.InputTextStep:
		sel = &s.Selector
	case *flow.AssertVisibleStep:
		sel = &s.Selector
	case *flow.AssertNotVisibleStep:
		sel = &s.Selector
	case *flow.AssertCountStep:
		sel = &s.Selector
	case *flow.AssertTextStep:
		sel = &s.Selector
	case *flow.AssertFontSizeStep:
		sel = &s.Selector
	case *flow.AssertTextPositionStep:
		sel = &s.Text
	case *flow.AssertLabelContentStep:
		sel = &s.Text
	case *flow.AssertTextFieldsStep:
		sel = &s.Text
	case *flow.WaitUntilStep:
		if s.Visible != nil {
			sel = s.Visible
		} else {
			sel = s.NotVisible
		}
	default:
		return nil
	}

	if sel == nil || sel.IsEmpty() {
		return nil
	}

	return convertSelector(sel)
}

// convertSelector converts flow.Selector to report.Selector.
func convertSelector(sel *flow.Selector) *Selector {
	if sel == nil {
		return nil
	}

	var sType, sValue string
	switch {
	case sel.ID != "":
		sType = "id"
		sValue = sel.ID
	case sel.CSS != "":
		sType = "css"
		sValue = sel.CSS
	case sel.Text != "":
		sType = "text"
		sValue = sel.Text
	default:
		return nil
	}

	return &Selector{
		Type:     sType,
		Value:    sValue,
		Index:    sel.Index,
		Optional: sel.IsOptional(),
	}
}

// getBaseStep extracts BaseStep from a step if possible.
func getBaseStep(step flow.Step) *flow.BaseStep {
	if b, ok := step.(interface{ Base() *flow.BaseStep }); ok {
		return b.Base()
	}
	return nil
}

// WriteSkeleton writes the initial skeleton to disk.
// Creates report.json, all flow detail files, and report.html with pending status.
func WriteSkeleton(outputDir string, index *Index, flowDetails []FlowDetail) error {
	if err := ensureDir(filepath.Join(outputDir, "flows")); err != nil {
		return fmt.Errorf("create flows dir: %w", err)
	}
	if err := ensureDir(filepath.Join(outputDir, "assets")); err != nil {
		return fmt.Errorf("create assets dir: %w", err)
	}

	for _, fd := range flowDetails {
		flowPath := filepath.Join(outputDir, "flows", fd.ID+".json")
		if err := atomicWriteJSON(flowPath, fd); err != nil {
			return fmt.Errorf("write flow %s: %w", fd.ID, err)
		}

		assetsPath := filepath.Join(outputDir, "assets", fd.ID)
		if err := ensureDir(assetsPath); err != nil {
			return fmt.Errorf("create assets dir for %s: %w", fd.ID, err)
		}
	}

	indexPath := filepath.Join(outputDir, "report.json")
	if err := atomicWriteJSON(indexPath, index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	if err := GenerateHTML(outputDir, HTMLConfig{
		Title:     "Canvas Test Report",
		ReportDir: outputDir,
	}); err != nil {
		return fmt.Errorf("generate html: %w", err)
	}

	return nil
}
