package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
	"github.com/devicelab-dev/canvas-runner/pkg/jsengine"
)

// newScriptEngine creates the per-flow JavaScript engine. Relative http.*
// URLs resolve against the annotation server.
func (fr *FlowRunner) newScriptEngine() *jsengine.Engine {
	return jsengine.New(jsengine.Options{BaseURL: fr.config.Target.BaseURL})
}

func (fr *FlowRunner) executeEvalScript(step *flow.EvalScriptStep) *core.CommandResult {
	fr.vars.syncScript()
	value, err := fr.script.EvalString(jsengine.Unwrap(step.Script))
	if err != nil {
		return core.Failure(core.ErrScriptFailed.WithCause(err), "")
	}
	return core.Success("= "+value, nil)
}

func (fr *FlowRunner) executeRunScript(step *flow.RunScriptStep) *core.CommandResult {
	if step.File == "" {
		return core.Failure(core.ErrMissingRequired.WithMessage("runScript requires file"), "")
	}

	defer fr.vars.With(step.Env)()

	path := fr.vars.ResolvePath(step.File)
	src, err := os.ReadFile(path) //#nosec G304 -- script path comes from the flow
	if err != nil {
		return core.Failure(core.ErrScriptFailed.WithMessage("read script "+path).WithCause(err), "")
	}

	fr.vars.syncScript()
	if err := fr.script.RunScript(filepath.Base(path), string(src)); err != nil {
		return core.Failure(core.ErrScriptFailed.WithCause(err), "")
	}
	return core.Success("ran "+filepath.Base(path)+describeOutput(fr.script.Output()), nil)
}

func (fr *FlowRunner) executeAssertTrue(step *flow.AssertTrueStep) *core.CommandResult {
	expr := jsengine.Unwrap(step.Condition)
	fr.vars.syncScript()
	ok, err := fr.script.EvalBool(expr)
	if err != nil {
		return core.Failure(core.ErrScriptFailed.WithCause(err), "")
	}
	if !ok {
		return core.Failure(core.ErrAssertionFailed.WithMessage(
			fmt.Sprintf("assertTrue: %s is false", expr)), "")
	}
	return core.Success(expr+" is true", nil)
}

// describeOutput formats output values as " (a=1, b=2)".
func describeOutput(out map[string]interface{}) string {
	if len(out) == 0 {
		return ""
	}
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, out[k])
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
