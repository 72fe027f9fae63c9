package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single YAML flow file.
func ParseFile(path string) (*Flow, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided flow file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses YAML flow content.
func Parse(data []byte, sourcePath string) (*Flow, error) {
	parts := splitYAMLDocuments(string(data))

	flow := &Flow{
		SourcePath: sourcePath,
	}

	if len(parts) == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty flow file",
		}
	}

	if len(parts) == 1 {
		if err := parseSteps(parts[0], flow); err != nil {
			return nil, err
		}
	} else {
		if err := parseConfig(parts[0], flow); err != nil {
			return nil, err
		}
		if err := parseSteps(parts[1], flow); err != nil {
			return nil, err
		}
	}

	return flow, nil
}

func splitYAMLDocuments(content string) []string {
	var parts []string
	var current strings.Builder
	inMultiline := false
	multilineIndent := 0

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inMultiline {
			if strings.HasSuffix(trimmed, "|") || strings.HasSuffix(trimmed, ">") ||
				strings.HasSuffix(trimmed, "|-") || strings.HasSuffix(trimmed, ">-") {
				inMultiline = true
				if i+1 < len(lines) {
					next := lines[i+1]
					multilineIndent = len(next) - len(strings.TrimLeft(next, " \t"))
				}
			}
		} else {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if trimmed != "" && indent < multilineIndent {
				inMultiline = false
			}
		}

		if !inMultiline && trimmed == "---" && strings.TrimLeft(line, " \t") == "---" {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	if current.Len() > 0 {
		s := strings.TrimSpace(current.String())
		if s != "" {
			parts = append(parts, current.String())
		}
	}

	return parts
}

func parseConfig(content string, flow *Flow) error {
	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}

	// Parse lifecycle hooks (onFlowStart, onFlowComplete)
	var rawConfig struct {
		OnFlowStart    []yaml.Node `yaml:"onFlowStart"`
		OnFlowComplete []yaml.Node `yaml:"onFlowComplete"`
	}
	if err := yaml.Unmarshal([]byte(content), &rawConfig); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid config: %v", err),
		}
	}

	for _, node := range rawConfig.OnFlowStart {
		step, err := parseStep(&node, flow.SourcePath)
		if err != nil {
			return err
		}
		config.OnFlowStart = append(config.OnFlowStart, step)
	}

	for _, node := range rawConfig.OnFlowComplete {
		step, err := parseStep(&node, flow.SourcePath)
		if err != nil {
			return err
		}
		config.OnFlowComplete = append(config.OnFlowComplete, step)
	}

	flow.Config = config
	return nil
}

func parseSteps(content string, flow *Flow) error {
	var rawSteps []yaml.Node
	if err := yaml.Unmarshal([]byte(content), &rawSteps); err != nil {
		return &ParseError{
			Path:    flow.SourcePath,
			Message: fmt.Sprintf("invalid steps: %v", err),
		}
	}

	for _, node := range rawSteps {
		step, err := parseStep(&node, flow.SourcePath)
		if err != nil {
			return err
		}
		flow.Steps = append(flow.Steps, step)
	}

	return nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	// Handle scalar nodes like "- waitForAnimationToEnd" (no colon, no params)
	if node.Kind == yaml.ScalarNode {
		stepType := node.Value
		if !isStepType(stepType) {
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    node.Line,
				Message: fmt.Sprintf("unknown step type: %s", stepType),
			}
		}
		// Create empty value node for steps with no parameters
		emptyNode := &yaml.Node{Kind: yaml.MappingNode}
		return decodeStep(StepType(stepType), emptyNode, sourcePath)
	}

	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step must be a mapping or command name",
		}
	}

	stepType, valueNode := extractStepType(node)
	if stepType == "" || valueNode == nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "unknown step type",
		}
	}

	return decodeStep(StepType(stepType), valueNode, sourcePath)
}

func extractStepType(node *yaml.Node) (string, *yaml.Node) {
	for i := 0; i < len(node.Content)-1; i += 2 {
		key := node.Content[i].Value
		if isStepType(key) {
			return key, node.Content[i+1]
		}
	}
	return "", nil
}

func isStepType(key string) bool {
	switch StepType(key) {
	case StepOpenLink, StepTapOn, StepInputText, StepPressKey, StepWaitForAnimationToEnd,
		StepWaitUntil, StepTakeScreenshot,
		StepOpenSettings, StepCloseSettings, StepSetShowTextAlways, StepSetTextSize,
		StepSetTextPosition, StepSetTextContent,
		StepAssertVisible, StepAssertNotVisible, StepAssertCount, StepAssertText,
		StepAssertFontSize, StepAssertTextPosition, StepAssertLabelContent, StepAssertTextFields,
		StepRepeat, StepRetry, StepRunFlow,
		StepEvalScript, StepRunScript, StepAssertTrue:
		return true
	}
	return false
}

//nolint:gocyclo
func decodeStep(stepType StepType, valueNode *yaml.Node, sourcePath string) (Step, error) {
	switch stepType {
	case StepOpenLink:
		var s OpenLinkStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Link = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepTapOn:
		var s TapOnStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Selector.Text = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepInputText:
		var s InputTextStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Text = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepPressKey:
		var s PressKeyStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Key = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepWaitForAnimationToEnd:
		var s WaitForAnimationToEndStep
		if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepWaitUntil:
		var s WaitUntilStep
		if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepTakeScreenshot:
		var s TakeScreenshotStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Path = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepOpenSettings:
		var s OpenSettingsStep
		if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepCloseSettings:
		var s CloseSettingsStep
		if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepSetShowTextAlways:
		var s SetShowTextAlwaysStep
		if valueNode.Kind == yaml.ScalarNode {
			if err := valueNode.Decode(&s.Enabled); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepSetTextSize:
		var s SetTextSizeStep
		if valueNode.Kind == yaml.ScalarNode {
			if err := valueNode.Decode(&s.Size); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepSetTextPosition:
		var s SetTextPositionStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Position = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepSetTextContent:
		var s SetTextContentStep
		if valueNode.Kind == yaml.SequenceNode {
			if err := valueNode.Decode(&s.Fields); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else if valueNode.Kind == yaml.ScalarNode {
			if v := strings.TrimSpace(valueNode.Value); v != "" && !strings.EqualFold(v, "none") {
				s.Fields = []string{v}
			}
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertVisible:
		var s AssertVisibleStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Selector.CSS = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertNotVisible:
		var s AssertNotVisibleStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Selector.CSS = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertCount:
		var s AssertCountStep
		if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertText:
		var s AssertTextStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Selector.CSS = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertFontSize:
		var s AssertFontSizeStep
		if valueNode.Kind == yaml.ScalarNode {
			if err := valueNode.Decode(&s.Size); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertTextPosition:
		var s AssertTextPositionStep
		if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertLabelContent:
		var s AssertLabelContentStep
		if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertTextFields:
		var s AssertTextFieldsStep
		if valueNode.Kind == yaml.SequenceNode {
			if err := valueNode.Decode(&s.Fields); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepRepeat:
		return parseRepeatStep(valueNode, sourcePath)

	case StepRetry:
		return parseRetryStep(valueNode, sourcePath)

	case StepRunFlow:
		return parseRunFlowStep(valueNode, sourcePath)

	case StepEvalScript:
		var s EvalScriptStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Script = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepRunScript:
		var s RunScriptStep
		if valueNode.Kind == yaml.ScalarNode {
			s.File = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	case StepAssertTrue:
		var s AssertTrueStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Condition = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepType = stepType
		return &s, nil

	default:
		return &UnsupportedStep{
			BaseStep: BaseStep{StepType: stepType},
			Reason:   "unknown step type",
		}, nil
	}
}

// parseRepeatStep handles repeat with nested commands.
func parseRepeatStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	var raw struct {
		Times    string      `yaml:"times"` // String for variable support
		Commands []yaml.Node `yaml:"commands"`
		Optional bool        `yaml:"optional"`
		Label    string      `yaml:"label"`
	}

	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}

	s := &RepeatStep{
		BaseStep: BaseStep{
			StepType:  StepRepeat,
			Optional:  raw.Optional,
			StepLabel: raw.Label,
		},
		Times: raw.Times,
	}

	for _, cmdNode := range raw.Commands {
		step, err := parseStep(&cmdNode, sourcePath)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, step)
	}

	return s, nil
}

// parseRetryStep handles retry with nested commands.
func parseRetryStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	var raw struct {
		MaxRetries string            `yaml:"maxRetries"` // String for variable support
		Commands   []yaml.Node       `yaml:"commands"`
		File       string            `yaml:"file"`
		Env        map[string]string `yaml:"env"`
		Optional   bool              `yaml:"optional"`
		Label      string            `yaml:"label"`
	}

	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}

	s := &RetryStep{
		BaseStep: BaseStep{
			StepType:  StepRetry,
			Optional:  raw.Optional,
			StepLabel: raw.Label,
		},
		MaxRetries: raw.MaxRetries,
		File:       raw.File,
		Env:        raw.Env,
	}

	for _, cmdNode := range raw.Commands {
		step, err := parseStep(&cmdNode, sourcePath)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, step)
	}

	return s, nil
}

// parseRunFlowStep handles runFlow with optional nested commands.
func parseRunFlowStep(valueNode *yaml.Node, sourcePath string) (Step, error) {
	s := &RunFlowStep{BaseStep: BaseStep{StepType: StepRunFlow}}

	if valueNode.Kind == yaml.ScalarNode {
		s.File = valueNode.Value
		return s, nil
	}

	var raw struct {
		File     string            `yaml:"file"`
		Commands []yaml.Node       `yaml:"commands"`
		Env      map[string]string `yaml:"env"`
		Optional bool              `yaml:"optional"`
		Label    string            `yaml:"label"`
	}

	if err := valueNode.Decode(&raw); err != nil {
		return nil, wrapParseError(sourcePath, valueNode.Line, err)
	}

	s.File = raw.File
	s.Env = raw.Env
	s.Optional = raw.Optional
	s.StepLabel = raw.Label

	for _, cmdNode := range raw.Commands {
		step, err := parseStep(&cmdNode, sourcePath)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, step)
	}

	return s, nil
}

func wrapParseError(path string, line int, err error) error {
	return &ParseError{
		Path:    path,
		Line:    line,
		Message: err.Error(),
	}
}

// IsFlowFile reports whether path looks like a flow: a .yaml/.yml file
// that is not the workspace config.yaml.
func IsFlowFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	return base != "config"
}

// ParseDirectory parses all flow files in a directory.
func ParseDirectory(dir string, includeTags, excludeTags []string) ([]*Flow, error) {
	var flows []*Flow

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !IsFlowFile(path) {
			return nil
		}

		flow, parseErr := ParseFile(path)
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping %s: %v\n", path, parseErr)
			return nil
		}

		if ShouldIncludeFlow(flow, includeTags, excludeTags) {
			flows = append(flows, flow)
		}
		return nil
	})

	return flows, err
}

// ShouldIncludeFlow checks if a flow matches tag filters.
func ShouldIncludeFlow(flow *Flow, includeTags, excludeTags []string) bool {
	if len(includeTags) > 0 {
		hasTag := false
		for _, tag := range flow.Config.Tags {
			for _, include := range includeTags {
				if tag == include {
					hasTag = true
					break
				}
			}
		}
		if !hasTag {
			return false
		}
	}

	for _, tag := range flow.Config.Tags {
		for _, exclude := range excludeTags {
			if tag == exclude {
				return false
			}
		}
	}

	return true
}
