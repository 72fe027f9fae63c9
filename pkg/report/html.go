package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultHTMLTitle = "Canvas Test Report"

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath  string // Path to write the HTML file
	EmbedAssets bool   // Embed screenshots as base64 (larger but portable)
	Title       string // Report title
	ReportDir   string // Directory containing report.json (needed for asset paths)
}

// GenerateHTML generates an HTML report from the report directory.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	index, flows, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	if cfg.Title == "" {
		cfg.Title = defaultHTMLTitle
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = reportDir
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(reportDir, "report.html")
	}

	html, err := renderHTML(buildHTMLData(index, flows, cfg))
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title         string
	GeneratedAt   string
	Index         *Index
	Flows         []FlowHTMLData
	TotalDuration string
	PassRate      float64
}

// FlowHTMLData contains flow data formatted for HTML.
type FlowHTMLData struct {
	FlowDetail
	Status      Status
	DurationStr string
	Error       string
	Commands    []CommandHTMLData
}

// CommandHTMLData contains command data formatted for HTML.
type CommandHTMLData struct {
	Command
	Depth            int
	DurationStr      string
	ScreenshotBefore string // data URI or relative path
	ScreenshotAfter  string
}

func buildHTMLData(index *Index, flows []FlowDetail, cfg HTMLConfig) HTMLData {
	flowsData := make([]FlowHTMLData, len(flows))
	for i, f := range flows {
		fd := FlowHTMLData{
			FlowDetail: f,
			Commands:   flattenCommands(f.Commands, 0, cfg),
		}
		if i < len(index.Flows) {
			entry := index.Flows[i]
			fd.Status = entry.Status
			fd.DurationStr = formatDuration(entry.Duration)
			if entry.Error != nil {
				fd.Error = *entry.Error
			}
		}
		flowsData[i] = fd
	}

	var passRate float64
	if index.Summary.Total > 0 {
		passRate = float64(index.Summary.Passed) / float64(index.Summary.Total) * 100
	}

	var total *int64
	if index.EndTime != nil {
		ms := index.EndTime.Sub(index.StartTime).Milliseconds()
		total = &ms
	}

	return HTMLData{
		Title:         cfg.Title,
		GeneratedAt:   time.Now().Format("2006-01-02 15:04:05"),
		Index:         index,
		Flows:         flowsData,
		TotalDuration: formatDuration(total),
		PassRate:      passRate,
	}
}

// flattenCommands lists commands depth-first so nested steps render indented.
func flattenCommands(commands []Command, depth int, cfg HTMLConfig) []CommandHTMLData {
	var out []CommandHTMLData
	for _, c := range commands {
		out = append(out, CommandHTMLData{
			Command:          c,
			Depth:            depth,
			DurationStr:      formatDuration(c.Duration),
			ScreenshotBefore: assetRef(c.Artifacts.ScreenshotBefore, cfg),
			ScreenshotAfter:  assetRef(c.Artifacts.ScreenshotAfter, cfg),
		})
		out = append(out, flattenCommands(c.SubCommands, depth+1, cfg)...)
	}
	return out
}

func assetRef(rel string, cfg HTMLConfig) string {
	if rel == "" {
		return ""
	}
	if cfg.EmbedAssets {
		return loadAsBase64(filepath.Join(cfg.ReportDir, rel))
	}
	return rel
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	d := time.Duration(*ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", *ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func loadAsBase64(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(path))
	mimeType := "image/png"
	if ext == ".jpg" || ext == ".jpeg" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"indent": func(depth int) template.CSS {
		return template.CSS(fmt.Sprintf("padding-left: %dpx", 8+depth*20))
	},
	"safeURL": func(s string) template.URL { return template.URL(s) },
}).Parse(htmlTemplate))

func renderHTML(data HTMLData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
{{if eq .Index.Status "running"}}<meta http-equiv="refresh" content="2">{{end}}
<title>{{.Title}}</title>
<style>
:root { --passed: #22c55e; --failed: #ef4444; --skipped: #eab308; --running: #06b6d4; --pending: #6b7280; --border: #e5e7eb; }
* { box-sizing: border-box; }
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; color: #111; }
header { background: #f9fafb; border-bottom: 1px solid var(--border); padding: 16px 24px; }
header h1 { font-size: 18px; margin: 0 0 8px; }
.meta { color: #6b7280; font-size: 12px; }
.summary { display: flex; gap: 16px; margin-top: 12px; font-size: 13px; }
main { padding: 16px 24px; }
details.flow { border: 1px solid var(--border); border-radius: 6px; margin-bottom: 12px; }
details.flow > summary { padding: 10px 12px; cursor: pointer; display: flex; gap: 12px; align-items: center; }
.badge { font-size: 11px; font-weight: 600; text-transform: uppercase; padding: 2px 8px; border-radius: 10px; color: #fff; }
.passed { background: var(--passed); } .failed { background: var(--failed); } .skipped { background: var(--skipped); }
.running { background: var(--running); } .pending { background: var(--pending); }
.error { color: var(--failed); font-size: 12px; white-space: pre-wrap; }
table { width: 100%; border-collapse: collapse; font-size: 13px; }
td { border-top: 1px solid var(--border); padding: 6px 8px; vertical-align: top; }
td.dur { width: 80px; color: #6b7280; text-align: right; }
img.shot { max-width: 240px; border: 1px solid var(--border); margin: 4px 4px 0 0; }
</style>
</head>
<body>
<header>
<h1>{{.Title}} <span class="badge {{.Index.Status}}">{{.Index.Status}}</span></h1>
<div class="meta">run {{.Index.RunID}} &middot; {{.Index.Runner.Driver}} / {{.Index.Browser.Name}}{{if .Index.Browser.Headless}} (headless){{end}}{{if .Index.Target.BaseURL}} &middot; {{.Index.Target.BaseURL}}{{end}} &middot; generated {{.GeneratedAt}}</div>
<div class="summary">
<span>Total {{.Index.Summary.Total}}</span>
<span>Passed {{.Index.Summary.Passed}}</span>
<span>Failed {{.Index.Summary.Failed}}</span>
<span>Skipped {{.Index.Summary.Skipped}}</span>
<span>Pass rate {{printf "%.0f" .PassRate}}%</span>
<span>Duration {{.TotalDuration}}</span>
</div>
</header>
<main>
{{range .Flows}}
<details class="flow"{{if eq .Status "failed"}} open{{end}}>
<summary><span class="badge {{.Status}}">{{.Status}}</span><strong>{{.Name}}</strong><span class="meta">{{.SourceFile}}</span><span class="meta">{{.DurationStr}}</span></summary>
{{if .Error}}<div class="error" style="padding: 0 12px 8px">{{.Error}}</div>{{end}}
<table>
{{range .Commands}}
<tr>
<td style="{{indent .Depth}}"><span class="badge {{.Status}}">{{.Status}}</span> {{if .Label}}{{.Label}}{{else}}{{.YAML}}{{end}}
{{if .Error}}<div class="error">[{{.Error.Type}}] {{.Error.Message}}{{if .Error.Details}}
{{.Error.Details}}{{end}}{{if .Error.Suggestion}}
{{.Error.Suggestion}}{{end}}</div>{{end}}
{{if .ScreenshotBefore}}<img class="shot" src="{{safeURL .ScreenshotBefore}}" alt="before">{{end}}
{{if .ScreenshotAfter}}<img class="shot" src="{{safeURL .ScreenshotAfter}}" alt="after">{{end}}
{{if .Artifacts.PageSource}}<div class="meta"><a href="{{.Artifacts.PageSource}}">page source</a></div>{{end}}
</td>
<td class="dur">{{.DurationStr}}</td>
</tr>
{{end}}
</table>
</details>
{{end}}
</main>
</body>
</html>
`
