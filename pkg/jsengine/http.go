package jsengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// httpModule returns the http object: get, post, put, patch, delete, request.
// Every call is synchronous and returns {status, ok, body, headers, json}.
func (e *Engine) httpModule() *goja.Object {
	obj := e.vm.NewObject()
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		method := method
		_ = obj.Set(strings.ToLower(method), func(call goja.FunctionCall) goja.Value {
			return e.doHTTPRequest(method, call.Arguments)
		})
	}

	// http.request(method, url, [options])
	_ = obj.Set("request", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(e.vm.NewTypeError("http.request requires method and url"))
		}
		return e.doHTTPRequest(strings.ToUpper(call.Arguments[0].String()), call.Arguments[1:])
	})
	return obj
}

// requestOptions is the optional second argument of http.* calls.
type requestOptions struct {
	body        io.Reader
	headers     map[string]string
	timeout     time.Duration
	contentType string
}

func parseRequestOptions(arg goja.Value) (requestOptions, error) {
	opts := requestOptions{headers: make(map[string]string)}
	if arg == nil || goja.IsUndefined(arg) || goja.IsNull(arg) {
		return opts, nil
	}
	m, ok := arg.Export().(map[string]interface{})
	if !ok {
		return opts, fmt.Errorf("options must be an object")
	}

	if h, ok := m["headers"].(map[string]interface{}); ok {
		for k, v := range h {
			opts.headers[k] = fmt.Sprintf("%v", v)
		}
	}

	switch b := m["body"].(type) {
	case nil:
	case string:
		opts.body = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return opts, fmt.Errorf("encode body: %w", err)
		}
		opts.body = bytes.NewReader(data)
		opts.contentType = "application/json"
	}

	switch t := m["timeout"].(type) {
	case int64:
		opts.timeout = time.Duration(t) * time.Millisecond
	case float64:
		opts.timeout = time.Duration(t * float64(time.Millisecond))
	}
	return opts, nil
}

// resolveURL joins a relative target onto the configured base URL.
func (e *Engine) resolveURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.IsAbs() || e.opts.BaseURL == "" {
		return target, nil
	}
	base, err := url.Parse(e.opts.BaseURL)
	if err != nil {
		return "", fmt.Errorf("base url: %w", err)
	}
	return base.ResolveReference(u).String(), nil
}

// doHTTPRequest performs the request; failures throw in the script.
func (e *Engine) doHTTPRequest(method string, args []goja.Value) goja.Value {
	if len(args) < 1 {
		panic(e.vm.NewTypeError(fmt.Sprintf("http.%s requires url", strings.ToLower(method))))
	}

	target, err := e.resolveURL(args[0].String())
	if err != nil {
		panic(e.vm.NewGoError(fmt.Errorf("http.%s: %w", strings.ToLower(method), err)))
	}

	var optArg goja.Value
	if len(args) > 1 {
		optArg = args[1]
	}
	opts, err := parseRequestOptions(optArg)
	if err != nil {
		panic(e.vm.NewTypeError(fmt.Sprintf("http.%s: %v", strings.ToLower(method), err)))
	}

	ctx := context.Background()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, opts.body)
	if err != nil {
		panic(e.vm.NewGoError(err))
	}
	if opts.contentType != "" {
		req.Header.Set("Content-Type", opts.contentType)
	}
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		panic(e.vm.NewGoError(fmt.Errorf("%s %s: %w", method, target, err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		panic(e.vm.NewGoError(fmt.Errorf("%s %s: read body: %w", method, target, err)))
	}

	headers := make(map[string]interface{}, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	res := e.vm.NewObject()
	_ = res.Set("status", resp.StatusCode)
	_ = res.Set("ok", resp.StatusCode >= 200 && resp.StatusCode < 300)
	_ = res.Set("body", string(body))
	_ = res.Set("headers", headers)

	var parsed interface{}
	if json.Unmarshal(body, &parsed) == nil {
		_ = res.Set("json", parsed)
	} else {
		_ = res.Set("json", goja.Null())
	}
	return res
}
