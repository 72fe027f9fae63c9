package jsengine

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEval(t *testing.T) {
	engine := New(Options{})

	tests := []struct {
		name     string
		script   string
		expected interface{}
	}{
		{"simple number", "1 + 2", int64(3)},
		{"string concat", "'car' + ' ' + '3'", "car 3"},
		{"boolean", "true && false", false},
		{"null coalescing", "null ?? 'default'", "default"},
		{"array length", "[1, 2, 3].length", int64(3)},
		{"object property", "({name: 'car'}).name", "car"},
		{"arrow function", "((a, b) => a + b)(2, 3)", int64(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Eval(tt.script)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %v (%T), got %v (%T)", tt.expected, tt.expected, result, result)
			}
		})
	}
}

func TestEvalError(t *testing.T) {
	engine := New(Options{})

	if _, err := engine.Eval("undefinedVariable.property"); err == nil {
		t.Error("expected error for undefined variable")
	}
}

func TestEvalString(t *testing.T) {
	engine := New(Options{})

	tests := []struct {
		expr string
		want string
	}{
		{"16", "16"},
		{"'label'", "label"},
		{"null", ""},
		{"undefined", ""},
		{"1 < 2", "true"},
	}
	for _, tt := range tests {
		got, err := engine.EvalString(tt.expr)
		if err != nil {
			t.Fatalf("EvalString(%q): %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("EvalString(%q) = %q, want %q", tt.expr, got, tt.want)
		}
	}
}

func TestEvalBool(t *testing.T) {
	engine := New(Options{})
	engine.SetVariables(map[string]string{"TEXT_SIZE": "16"})

	tests := []struct {
		expr string
		want bool
	}{
		{"TEXT_SIZE > 8", true},
		{"Number(TEXT_SIZE) === 16", true},
		{"TEXT_SIZE == 12", false},
		{"''", false},
		{"'x'", true},
		{"0", false},
	}
	for _, tt := range tests {
		got, err := engine.EvalBool(tt.expr)
		if err != nil {
			t.Fatalf("EvalBool(%q): %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("EvalBool(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestSetVariables_RemovesStaleNames(t *testing.T) {
	engine := New(Options{})

	engine.SetVariables(map[string]string{"LABEL": "car", "SHAPE_ID": "3"})
	got, err := engine.EvalString("LABEL + ' ' + SHAPE_ID")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "car 3" {
		t.Errorf("expected 'car 3', got %q", got)
	}

	engine.SetVariables(map[string]string{"LABEL": "person"})
	if got, _ := engine.EvalString("typeof SHAPE_ID"); got != "undefined" {
		t.Errorf("expected SHAPE_ID to be removed, typeof = %q", got)
	}
	if got, _ := engine.EvalString("LABEL"); got != "person" {
		t.Errorf("expected LABEL = person, got %q", got)
	}
}

func TestSetVariable(t *testing.T) {
	engine := New(Options{})
	engine.SetVariable("count", 42)

	got, err := engine.EvalString("count + 1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "43" {
		t.Errorf("expected '43', got %q", got)
	}
}

func TestExpand(t *testing.T) {
	engine := New(Options{})
	engine.SetVariables(map[string]string{"LABEL": "car"})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no expressions", "plain text", "plain text"},
		{"variable", "${LABEL} 3", "car 3"},
		{"arithmetic", "size ${8 + 4}px", "size 12px"},
		{"nested braces", "${({a: 1}).a}", "1"},
		{"two expressions", "${LABEL}-${1 + 1}", "car-2"},
		{"failed expression kept", "value ${missingVar}", "value ${missingVar}"},
		{"unmatched brace kept", "broken ${LABEL", "broken ${LABEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.Expand(tt.in); got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"${a > 1}", "a > 1"},
		{"  ${ output.count }  ", "output.count"},
		{"a > 1", "a > 1"},
		{"${a}-${b}", "${a}-${b}"},
		{"${({x: 1}).x}", "({x: 1}).x"},
	}
	for _, tt := range tests {
		if got := Unwrap(tt.in); got != tt.want {
			t.Errorf("Unwrap(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunScript_Output(t *testing.T) {
	engine := New(Options{})

	err := engine.RunScript("setup.js", `
		output.label = "car";
		output.count = 42;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := engine.Output()
	if out["label"] != "car" {
		t.Errorf("expected output.label = 'car', got %v", out["label"])
	}
	if out["count"] != int64(42) {
		t.Errorf("expected output.count = 42, got %v (%T)", out["count"], out["count"])
	}

	got, err := engine.EvalString("output.label + ' ' + output.count")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "car 42" {
		t.Errorf("expected 'car 42', got %q", got)
	}
}

func TestRunScriptError(t *testing.T) {
	engine := New(Options{})

	if err := engine.RunScript("broken.js", "invalid javascript {{{{"); err == nil {
		t.Error("expected error for invalid javascript")
	}
	if err := engine.RunScript("throws.js", "throw new Error('boom')"); err == nil {
		t.Error("expected error for thrown exception")
	}
}

func TestJSON(t *testing.T) {
	engine := New(Options{})

	err := engine.RunScript("json.js", `
		var data = json('{"name": "car", "attributes": [{"value": "red"}]}');
		output.name = data.name;
		output.color = data.attributes[0].value;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := engine.Output()
	if out["name"] != "car" || out["color"] != "red" {
		t.Errorf("unexpected output: %v", out)
	}

	if err := engine.RunScript("bad.js", "json('{not json')"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestConsole(t *testing.T) {
	engine := New(Options{})

	if err := engine.RunScript("console.js", `console.log("a", 1); console.warn("b"); console.error("c")`); err != nil {
		t.Fatalf("console calls failed: %v", err)
	}
}

func TestRunnerBaseURL(t *testing.T) {
	engine := New(Options{BaseURL: "http://cvat.local:8080"})

	got, err := engine.EvalString("runner.baseUrl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "http://cvat.local:8080" {
		t.Errorf("expected base url, got %q", got)
	}
}

func TestHTTPModule_RelativeURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/jobs/1/annotations" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Token abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"shapes": [{"label_id": 1}, {"label_id": 2}]}`))
	}))
	defer srv.Close()

	engine := New(Options{BaseURL: srv.URL})
	err := engine.RunScript("annotations.js", `
		var res = http.get("/api/jobs/1/annotations", {headers: {Authorization: "Token abc"}});
		output.status = res.status;
		output.ok = res.ok;
		output.shapes = res.json.shapes.length;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := engine.Output()
	if out["status"] != int64(200) {
		t.Errorf("expected status 200, got %v (%T)", out["status"], out["status"])
	}
	if out["ok"] != true {
		t.Errorf("expected ok, got %v", out["ok"])
	}
	if out["shapes"] != int64(2) {
		t.Errorf("expected 2 shapes, got %v (%T)", out["shapes"], out["shapes"])
	}
}

func TestHTTPModule_PostJSON(t *testing.T) {
	var received map[string]interface{}
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &received)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer srv.Close()

	engine := New(Options{})
	engine.SetVariable("server", srv.URL)
	err := engine.RunScript("post.js", `
		var res = http.post(server + "/api/labels", {body: {name: "car"}});
		output.status = res.status;
		output.body = res.body;
		output.json = res.json;
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", contentType)
	}
	if received["name"] != "car" {
		t.Errorf("expected body name=car, got %v", received)
	}
	out := engine.Output()
	if out["status"] != int64(201) || out["body"] != "created" || out["json"] != nil {
		t.Errorf("unexpected output: %v", out)
	}
}

func TestHTTPModule_RequestAndErrors(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	engine := New(Options{BaseURL: srv.URL})
	if err := engine.RunScript("patch.js", `output.ok = http.request("patch", "/api/jobs/1").ok`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodPatch {
		t.Errorf("expected PATCH, got %s", method)
	}

	if err := engine.RunScript("nourl.js", "http.get()"); err == nil {
		t.Error("expected error when url is missing")
	}
	if err := engine.RunScript("badopts.js", `http.get("/x", "nope")`); err == nil {
		t.Error("expected error for non-object options")
	}

	closed := New(Options{BaseURL: "http://127.0.0.1:1"})
	if err := closed.RunScript("down.js", `http.get("/api/server/about")`); err == nil {
		t.Error("expected error when the server is unreachable")
	}
}
