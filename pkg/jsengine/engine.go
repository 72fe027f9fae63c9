// Package jsengine evaluates the JavaScript used by evalScript, runScript,
// assertTrue and ${...} expressions in flows.
package jsengine

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/canvas-runner/pkg/logger"
)

// DefaultHTTPTimeout bounds http.* calls made by scripts.
const DefaultHTTPTimeout = 30 * time.Second

// Options configures an Engine.
type Options struct {
	// BaseURL resolves relative http.* URLs (e.g. "/api/jobs/1") and is
	// exposed to scripts as runner.baseUrl.
	BaseURL string
	// Client is used for http.* calls (a client with DefaultHTTPTimeout when nil).
	Client *http.Client
}

// Engine is a goja runtime with the runner's globals: console, json, http,
// output and runner. It is safe for use by one flow at a time.
type Engine struct {
	vm     *goja.Runtime
	opts   Options
	client *http.Client
	output *goja.Object
	synced map[string]bool // names pushed by SetVariables
	mu     sync.Mutex
}

// New creates an engine.
func New(opts Options) *Engine {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	e := &Engine{
		vm:     goja.New(),
		opts:   opts,
		client: client,
		synced: make(map[string]bool),
	}
	e.output = e.vm.NewObject()

	e.vm.Set("console", e.consoleObject())
	e.vm.Set("json", e.jsonFunc)
	e.vm.Set("http", e.httpModule())
	e.vm.Set("output", e.output)
	e.vm.Set("runner", e.runnerObject())
	return e
}

// console.log/warn/error go to the run log.
func (e *Engine) consoleObject() *goja.Object {
	write := func(level string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			msg := strings.Join(parts, " ")
			switch level {
			case "error":
				logger.Error("[js] %s", msg)
			case "warn":
				logger.Warn("[js] %s", msg)
			default:
				logger.Info("[js] %s", msg)
			}
			return goja.Undefined()
		}
	}

	console := e.vm.NewObject()
	_ = console.Set("log", write("info"))
	_ = console.Set("warn", write("warn"))
	_ = console.Set("error", write("error"))
	return console
}

// jsonFunc parses a JSON string into a JS value: json(response.body).
func (e *Engine) jsonFunc(call goja.FunctionCall) goja.Value {
	if len(call.Arguments) < 1 {
		panic(e.vm.NewTypeError("json requires 1 argument"))
	}
	var v interface{}
	if err := json.Unmarshal([]byte(call.Arguments[0].String()), &v); err != nil {
		panic(e.vm.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
	}
	return e.vm.ToValue(v)
}

func (e *Engine) runnerObject() *goja.Object {
	obj := e.vm.NewObject()
	_ = obj.DefineAccessorProperty("baseUrl", e.vm.ToValue(func() string {
		return e.opts.BaseURL
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	return obj
}

// SetVariable sets a global visible to scripts.
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.vm.Set(name, value)
}

// SetVariables makes vars the flow variables visible to scripts. Names pushed
// by an earlier call that are missing from vars are removed.
func (e *Engine) SetVariables(vars map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	global := e.vm.GlobalObject()
	for name := range e.synced {
		if _, ok := vars[name]; !ok {
			_ = global.Delete(name)
			delete(e.synced, name)
		}
	}
	for name, value := range vars {
		_ = e.vm.Set(name, value)
		e.synced[name] = true
	}
}

// Output returns a copy of the values scripts stored on output.
func (e *Engine) Output() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]interface{})
	for _, key := range e.output.Keys() {
		out[key] = e.output.Get(key).Export()
	}
	return out
}

// Eval evaluates an expression and returns its exported value.
func (e *Engine) Eval(expr string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.vm.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", expr, err)
	}
	return v.Export(), nil
}

// EvalString evaluates an expression and formats the result.
// null and undefined become "".
func (e *Engine) EvalString(expr string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.vm.RunString(expr)
	if err != nil {
		return "", fmt.Errorf("eval %q: %w", expr, err)
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return "", nil
	}
	return v.String(), nil
}

// EvalBool evaluates a condition with JavaScript truthiness.
func (e *Engine) EvalBool(expr string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, err := e.vm.RunString(expr)
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", expr, err)
	}
	return v.ToBoolean(), nil
}

// RunScript runs a script; name appears in stack traces.
func (e *Engine) RunScript(name, src string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.vm.RunScript(name, src); err != nil {
		return fmt.Errorf("script %s: %w", name, err)
	}
	return nil
}

// Expand replaces each ${expr} in text with the value of expr.
// Expressions that fail to evaluate are left as written.
func (e *Engine) Expand(text string) string {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		end, ok := matchBrace(result, idx+2)
		if !ok {
			start = idx + 2
			continue
		}

		value, err := e.EvalString(result[idx+2 : end])
		if err != nil {
			start = end + 1
			continue
		}

		result = result[:idx] + value + result[end+1:]
		start = idx + len(value)
	}
	return result
}

// matchBrace returns the index of the '}' closing a '{' opened before from.
func matchBrace(s string, from int) (int, bool) {
	depth := 1
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Unwrap strips a single surrounding ${...} so "${a > 1}" and "a > 1" are
// the same expression.
func Unwrap(expr string) string {
	s := strings.TrimSpace(expr)
	if strings.HasPrefix(s, "${") {
		if end, ok := matchBrace(s, 2); ok && end == len(s)-1 {
			return strings.TrimSpace(s[2:end])
		}
	}
	return s
}
