package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/devicelab-dev/canvas-runner/pkg/executor"
	"github.com/devicelab-dev/canvas-runner/pkg/report"
)

// Console palette. fatih/color honours NO_COLOR and non-terminal stdout;
// --no-ansi sets color.NoColor.
var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// Slow step threshold in milliseconds
const slowThresholdMs = 5000

// isCompoundCommand reports runFlow, repeat and retry, which contain other steps.
func isCompoundCommand(desc string) bool {
	return strings.HasPrefix(desc, "runFlow") ||
		strings.HasPrefix(desc, "repeat") ||
		strings.HasPrefix(desc, "retry")
}

// stepLine formats one step result at the given indent.
func stepLine(indent, desc string, passed bool, durationMs int64, errMsg string, compound bool) string {
	durStr := formatDuration(durationMs)
	if !passed {
		line := fmt.Sprintf("%s%s %s (%s)\n", indent, red("✗"), desc, durStr)
		if errMsg != "" {
			line += fmt.Sprintf("%s  %s %s\n", indent, gray("╰─"), errMsg)
		}
		return line
	}
	if durationMs >= slowThresholdMs && !compound {
		return fmt.Sprintf("%s%s %s %s\n", indent, yellow("⚠"), desc, yellow("("+durStr+")"))
	}
	return fmt.Sprintf("%s%s %s (%s)\n", indent, green("✓"), desc, durStr)
}

// Live progress callbacks (single session runs)

func onFlowStart(flowIdx, totalFlows int, name, file string) {
	fmt.Printf("\n  %s %s (%s)\n", cyan(fmt.Sprintf("[%d/%d]", flowIdx+1, totalFlows)), bold(name), file)
	fmt.Println(strings.Repeat("─", 60))
}

func onStepComplete(_ int, desc string, passed bool, durationMs int64, errMsg string) {
	fmt.Print(stepLine("    ", desc, passed, durationMs, errMsg, isCompoundCommand(desc)))
}

func onNestedFlowStart(depth int, desc string) {
	indent := strings.Repeat("  ", 2+depth)
	fmt.Printf("%s%s %s\n", indent, cyan("▸"), desc)
}

func onNestedStep(depth int, desc string, passed bool, durationMs int64, errMsg string) {
	indent := strings.Repeat("  ", 2+depth+1)
	fmt.Print(stepLine(indent, desc, passed, durationMs, errMsg, false))
}

func onFlowEnd(name string, passed bool, durationMs int64) {
	symbol := green("✓")
	if !passed {
		symbol = red("✗")
	}
	fmt.Printf("%s %s %s\n", symbol, name, gray(formatDuration(durationMs)))
}

// printUnifiedOutput prints per-flow commands, the summary table and the
// per-session summary from the written report.
func printUnifiedOutput(outputDir string, result *executor.RunResult) error {
	index, details, err := report.ReadReport(outputDir)
	if err != nil {
		fmt.Printf("Warning: Could not load report for unified output: %v\n", err)
		printSummary(result)
		return nil
	}

	printDetailedFlowResults(index, details)
	printUnifiedSummaryTable(index, result)
	printSessionSummary(index)
	return nil
}

// formatBrowserLabel formats session info for display.
func formatBrowserLabel(b *report.BrowserInfo) string {
	if b == nil {
		return "Unknown"
	}
	label := b.Name
	if b.Version != "" {
		label += " " + b.Version
	}
	return fmt.Sprintf("%s #%d", label, b.Worker+1)
}

// printDetailedFlowResults prints flow-by-flow results with all commands.
func printDetailedFlowResults(index *report.Index, details []report.FlowDetail) {
	for i, entry := range index.Flows {
		fmt.Printf("\n  %s %s (%s) - Session: %s\n",
			cyan(fmt.Sprintf("[%d/%d]", i+1, len(index.Flows))),
			bold(entry.Name), filepath.Base(entry.SourceFile), formatBrowserLabel(entry.Browser))
		fmt.Println("  " + strings.Repeat("─", 60))

		if i < len(details) {
			for _, cmd := range details[i].Commands {
				printCommand(cmd, 0)
			}
		}

		var duration int64
		if entry.Duration != nil {
			duration = *entry.Duration
		}
		switch entry.Status {
		case report.StatusPassed:
			fmt.Printf("%s %s %s\n", green("✓"), entry.Name, gray(formatDuration(duration)))
		case report.StatusFailed:
			fmt.Printf("%s %s %s\n", red("✗"), entry.Name, gray(formatDuration(duration)))
		}
	}
}

// printCommand prints a single command and its sub-commands.
func printCommand(cmd report.Command, depth int) {
	if cmd.Status == report.StatusPending {
		return
	}
	indent := strings.Repeat("  ", 2+depth)

	description := cmd.Label
	if description == "" {
		description = cmd.Type
	}
	if description == "" {
		description = cmd.YAML
	}

	var duration int64
	if cmd.Duration != nil {
		duration = *cmd.Duration
	}

	switch cmd.Status {
	case report.StatusSkipped:
		fmt.Printf("%s%s %s\n", indent, cyan("-"), gray(description))
	default:
		errMsg := ""
		if cmd.Error != nil {
			errMsg = cmd.Error.Message
		}
		fmt.Print(stepLine(indent, description, cmd.Status == report.StatusPassed, duration, errMsg,
			isCompoundCommand(cmd.Type)))
	}

	for _, sub := range cmd.SubCommands {
		printCommand(sub, depth+1)
	}
}

type stepTotals struct {
	total, passed, failed, skipped int
}

func sumSteps(result *executor.RunResult) stepTotals {
	var t stepTotals
	for _, fr := range result.FlowResults {
		t.total += fr.StepsTotal
		t.passed += fr.StepsPassed
		t.failed += fr.StepsFailed
		t.skipped += fr.StepsSkipped
	}
	return t
}

func printStepCounts(t stepTotals, durationMs int64) {
	fmt.Println()
	if t.passed > 0 {
		fmt.Printf("  %s (%s)\n", green(fmt.Sprintf("%d steps passing", t.passed)), formatDuration(durationMs))
	}
	if t.failed > 0 {
		fmt.Printf("  %s\n", red(fmt.Sprintf("%d steps failing", t.failed)))
	}
	if t.skipped > 0 {
		fmt.Printf("  %s\n", cyan(fmt.Sprintf("%d steps skipped", t.skipped)))
	}
	fmt.Println()
}

func statusCell(s report.Status) string {
	switch s {
	case report.StatusFailed:
		return red("✗ FAIL")
	case report.StatusSkipped:
		return cyan("- SKIP")
	default:
		return green("✓ PASS")
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// printUnifiedSummaryTable prints the summary table with a session column.
func printUnifiedSummaryTable(index *report.Index, result *executor.RunResult) {
	t := sumSteps(result)
	printStepCounts(t, result.Duration)

	tableWidth := 110
	fmt.Println(strings.Repeat("═", tableWidth))
	fmt.Printf("  %-36s %6s %7s %6s %6s %6s %10s  %s\n",
		"Flow", "Status", "Steps", "Pass", "Fail", "Skip", "Duration", "Session")
	fmt.Println(strings.Repeat("─", tableWidth))

	for i, entry := range index.Flows {
		if i >= len(result.FlowResults) {
			break
		}
		fr := result.FlowResults[i]
		fmt.Printf("  %-36s %s %7d %6d %6d %6d %10s  %s\n",
			truncate(fr.Name, 36), statusCell(fr.Status),
			fr.StepsTotal, fr.StepsPassed, fr.StepsFailed, fr.StepsSkipped,
			formatDuration(fr.Duration), truncate(formatBrowserLabel(entry.Browser), 30))
	}

	printTotalsRow(tableWidth, 36, result, t)
}

func printTotalsRow(tableWidth, nameWidth int, result *executor.RunResult, t stepTotals) {
	fmt.Println(strings.Repeat("─", tableWidth))
	statusStr := fmt.Sprintf("%6s", fmt.Sprintf("%d/%d", result.PassedFlows, result.TotalFlows))
	if result.FailedFlows > 0 {
		statusStr = red(statusStr)
	} else {
		statusStr = green(statusStr)
	}
	fmt.Printf("  %s %s %7d %6d %6d %6d %10s\n",
		bold(fmt.Sprintf("%-*s", nameWidth, "TOTAL")), statusStr,
		t.total, t.passed, t.failed, t.skipped, formatDuration(result.Duration))
	fmt.Println(strings.Repeat("═", tableWidth))
}

// printSummary is the fallback table when the report cannot be read.
func printSummary(result *executor.RunResult) {
	t := sumSteps(result)
	printStepCounts(t, result.Duration)

	tableWidth := 92
	fmt.Println(strings.Repeat("═", tableWidth))
	fmt.Printf("  %-42s %6s %7s %6s %6s %6s %10s\n", "Flow", "Status", "Steps", "Pass", "Fail", "Skip", "Duration")
	fmt.Println(strings.Repeat("─", tableWidth))

	for _, fr := range result.FlowResults {
		fmt.Printf("  %-42s %s %7d %6d %6d %6d %10s\n",
			truncate(fr.Name, 42), statusCell(fr.Status),
			fr.StepsTotal, fr.StepsPassed, fr.StepsFailed, fr.StepsSkipped,
			formatDuration(fr.Duration))
	}

	printTotalsRow(tableWidth, 42, result, t)
}

// printSessionSummary prints per-session statistics for parallel runs.
func printSessionSummary(index *report.Index) {
	type counts struct {
		label                 string
		flows, passed, failed int
	}
	var order []int
	byWorker := make(map[int]*counts)
	for _, entry := range index.Flows {
		if entry.Browser == nil {
			continue
		}
		c, ok := byWorker[entry.Browser.Worker]
		if !ok {
			c = &counts{label: formatBrowserLabel(entry.Browser)}
			byWorker[entry.Browser.Worker] = c
			order = append(order, entry.Browser.Worker)
		}
		c.flows++
		switch entry.Status {
		case report.StatusPassed:
			c.passed++
		case report.StatusFailed:
			c.failed++
		}
	}
	if len(order) < 2 {
		return
	}

	fmt.Println("\n\nSession Summary")
	fmt.Println(strings.Repeat("─", 60))
	for _, w := range order {
		c := byWorker[w]
		fmt.Printf("\nSession: %s\n", c.label)
		fmt.Printf("  Flows: %d • Passed: %s • Failed: %s\n",
			c.flows, green(c.passed), red(c.failed))
	}
	fmt.Println()
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
