package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/canvas-runner/pkg/config"
	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/driver/browser"
	"github.com/devicelab-dev/canvas-runner/pkg/driver/mock"
	"github.com/devicelab-dev/canvas-runner/pkg/executor"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
	"github.com/devicelab-dev/canvas-runner/pkg/logger"
	"github.com/devicelab-dev/canvas-runner/pkg/report"
	"github.com/devicelab-dev/canvas-runner/pkg/validator"
)

var testCommand = &cli.Command{
	Name:      "test",
	Usage:     "Run flows against the annotation server",
	ArgsUsage: "<flow-file-or-folder>...",
	Description: `Run one or more flow files in a browser session.

Reports are generated in the output directory:
  - Default: ./reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  canvas-runner test examples/flows/case_111
  canvas-runner test 01_text_size.yaml 02_text_position.yaml

  # With environment variables
  canvas-runner test flows/ -e TASK_ID=3 -e JOB_ID=7

  # With tag filtering
  canvas-runner test flows/ --include-tags smoke

  # Four isolated browser sessions
  canvas-runner test flows/ --parallel 4

  # Dry run on the in-memory canvas
  canvas-runner --driver mock test flows/`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Environment variables (KEY=VALUE)",
		},
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only include flows with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Exclude flows with these tags",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: ./reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Run flows on N browser sessions",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "Extra attempts for a failed flow",
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip remaining flows after the first failure",
		},
		&cli.StringFlag{
			Name:  "artifacts",
			Usage: "When to capture screenshots and page HTML (on-failure, always, never)",
			Value: "on-failure",
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run UUID recorded in the report (generated when empty)",
		},
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Also write allure-results into the output directory",
		},
	},
	Action: runTest,
}

// RunConfig holds the complete test run configuration.
type RunConfig struct {
	// Paths
	FlowPaths  []string
	ConfigPath string

	// Workspace settings after flag overrides
	Workspace *config.Config

	// Environment
	Env map[string]string

	// Filtering
	IncludeTags []string
	ExcludeTags []string

	// Output
	OutputDir string // Final resolved output directory
	RunID     string

	// Execution
	Driver     string // playwright, mock
	Parallel   int    // Number of browser sessions (0 or 1 = single session)
	Retries    int
	StopOnFail bool
	Artifacts  executor.ArtifactMode
	Allure     bool
	Verbose    bool
}

func printBanner() {
	fmt.Println()
	fmt.Printf("  %s %s\n", bold("canvas-runner"), Version)
	fmt.Println("  Annotation canvas text settings checks")
	fmt.Println()
}

func runTest(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one flow file or folder is required")
	}

	printBanner()

	paths := c.Args().Slice()

	ws, err := loadWorkspace(c, paths)
	if err != nil {
		return err
	}

	outputDir, err := resolveOutputDir(c.String("output"), c.Bool("flatten"))
	if err != nil {
		return err
	}

	artifacts, err := parseArtifactMode(c.String("artifacts"))
	if err != nil {
		return err
	}

	// CLI env overrides workspace env
	env := make(map[string]string)
	for k, v := range ws.Env {
		env[k] = v
	}
	for k, v := range parseEnvVars(c.StringSlice("env")) {
		env[k] = v
	}

	cfg := &RunConfig{
		FlowPaths:   paths,
		ConfigPath:  c.String("config"),
		Workspace:   ws,
		Env:         env,
		IncludeTags: c.StringSlice("include-tags"),
		ExcludeTags: c.StringSlice("exclude-tags"),
		OutputDir:   outputDir,
		RunID:       c.String("run-id"),
		Driver:      strings.ToLower(c.String("driver")),
		Parallel:    c.Int("parallel"),
		Retries:     c.Int("retries"),
		StopOnFail:  c.Bool("stop-on-fail"),
		Artifacts:   artifacts,
		Allure:      c.Bool("allure"),
		Verbose:     c.Bool("verbose"),
	}

	return executeTest(cfg)
}

// loadWorkspace loads config.yaml (explicit --config, else next to the first
// flow path) and applies global flag overrides.
func loadWorkspace(c *cli.Context, paths []string) (*config.Config, error) {
	var ws *config.Config
	var err error
	if p := c.String("config"); p != "" {
		ws, err = config.Load(p)
	} else {
		ws, err = config.LoadFromDir(workspaceDir(paths))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("browser") {
		ws.Browser = c.String("browser")
	}
	if c.IsSet("base-url") {
		ws.BaseURL = c.String("base-url")
	}
	if c.IsSet("headless") {
		ws.Headless = c.Bool("headless")
	}
	return ws, nil
}

// workspaceDir returns the directory whose config.yaml applies to paths.
func workspaceDir(paths []string) string {
	if len(paths) == 0 {
		return "."
	}
	if info, err := os.Stat(paths[0]); err == nil && info.IsDir() {
		return paths[0]
	}
	return filepath.Dir(paths[0])
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: ./reports/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

func parseArtifactMode(s string) (executor.ArtifactMode, error) {
	switch strings.ToLower(s) {
	case "", "on-failure", "onfailure":
		return executor.ArtifactOnFailure, nil
	case "always":
		return executor.ArtifactAlways, nil
	case "never":
		return executor.ArtifactNever, nil
	default:
		return 0, fmt.Errorf("unknown artifacts mode %q (want on-failure, always or never)", s)
	}
}

func executeTest(cfg *RunConfig) error {
	// 1. Create output directory
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// 2. Initialize logging
	logPath := filepath.Join(cfg.OutputDir, "canvas-runner.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Printf("Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()
	if cfg.Verbose {
		logger.SetDebug(true)
	}

	logger.Info("=== Test execution started ===")
	logger.Info("Output directory: %s", cfg.OutputDir)
	logger.Info("Driver: %s", cfg.Driver)

	// Ctrl+C cancels the run; remaining flows are skipped and the report is finalised
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Validate and parse flows
	flows, err := validateAndParseFlows(cfg)
	if err != nil {
		logger.Error("Flow validation failed: %v", err)
		return err
	}
	logger.Info("Validated %d flow(s)", len(flows))

	// 4. Start browser sessions
	workers, shutdown, err := createWorkers(cfg, len(flows))
	if err != nil {
		logger.Error("Failed to start sessions: %v", err)
		return err
	}
	defer shutdown()

	// 5. Execute flows
	result, err := executeFlows(ctx, cfg, workers, flows)
	if err != nil {
		logger.Error("Flow execution failed: %v", err)
		return err
	}
	logger.Info("Flow execution completed: %d passed, %d failed, %d skipped",
		result.PassedFlows, result.FailedFlows, result.SkippedFlows)

	// 6. Print unified output (single and parallel)
	if err := printUnifiedOutput(cfg.OutputDir, result); err != nil {
		fmt.Printf("Warning: Failed to print unified output: %v\n", err)
		printSummary(result)
	}

	// 7. Generate and display reports
	logger.Info("Generating reports...")
	fmt.Println()
	fmt.Printf("  %s\n", cyan("⏳ Generating reports..."))
	fmt.Println()

	htmlPath := filepath.Join(cfg.OutputDir, "report.html")
	jsonPath := filepath.Join(cfg.OutputDir, "report.json")

	htmlGenerated := true
	if err := report.GenerateHTML(cfg.OutputDir, report.HTMLConfig{
		OutputPath: htmlPath,
		Title:      "Canvas Text Report",
	}); err != nil {
		htmlGenerated = false
		fmt.Printf("  %s Warning: failed to generate HTML report: %v\n", yellow("⚠"), err)
	}

	allurePath := ""
	if cfg.Allure {
		if allurePath, err = report.GenerateAllure(cfg.OutputDir); err != nil {
			fmt.Printf("  %s Warning: failed to generate Allure results: %v\n", yellow("⚠"), err)
		}
	}

	fmt.Println("  Reports:")
	if htmlGenerated {
		fmt.Printf("    HTML:   %s\n", htmlPath)
	}
	fmt.Printf("    JSON:   %s\n", jsonPath)
	if allurePath != "" {
		fmt.Printf("    Allure: %s\n", allurePath)
	}
	fmt.Println()

	// Exit with code 1 if any flows failed (summary already printed)
	if result.Status != report.StatusPassed {
		return cli.Exit("", 1)
	}
	return nil
}

// validateAndParseFlows validates and parses all flow files.
func validateAndParseFlows(cfg *RunConfig) ([]flow.Flow, error) {
	include, exclude := cfg.IncludeTags, cfg.ExcludeTags
	// An explicit --config replaces the config.yaml the validator would find
	if cfg.ConfigPath != "" && cfg.Workspace != nil {
		if len(include) == 0 {
			include = cfg.Workspace.IncludeTags
		}
		if len(exclude) == 0 {
			exclude = cfg.Workspace.ExcludeTags
		}
	}
	v := validator.New(include, exclude)
	if cfg.ConfigPath != "" && cfg.Workspace != nil {
		v = v.WithPatterns(cfg.Workspace.Flows)
	}

	var allTestCases []string
	var allErrors []error
	for _, path := range cfg.FlowPaths {
		result := v.Validate(path)
		allTestCases = append(allTestCases, result.TestCases...)
		allErrors = append(allErrors, result.Errors...)
	}

	if len(allErrors) > 0 {
		fmt.Fprintf(os.Stderr, "Validation errors:\n")
		for _, err := range allErrors {
			fmt.Fprintf(os.Stderr, "  - %v\n", err)
		}
		return nil, fmt.Errorf("validation failed with %d error(s)", len(allErrors))
	}

	if len(allTestCases) == 0 {
		return nil, fmt.Errorf("no test flows found")
	}

	fmt.Printf("\n%s\n", bold("Setup"))
	fmt.Println(strings.Repeat("─", 40))
	printSetupSuccess(fmt.Sprintf("Found %d test flow(s)", len(allTestCases)))

	flows := make([]flow.Flow, 0, len(allTestCases))
	for _, path := range allTestCases {
		f, err := flow.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		flows = append(flows, *f)
	}
	return flows, nil
}

// sessionCount returns how many browser sessions the run needs.
func sessionCount(parallel, flows int) int {
	n := parallel
	if n < 1 {
		n = 1
	}
	if flows > 0 && n > flows {
		n = flows
	}
	return n
}

// createWorkers opens one driver per session. The returned shutdown closes
// every session and the browser.
func createWorkers(cfg *RunConfig, flowCount int) ([]executor.BrowserWorker, func(), error) {
	n := sessionCount(cfg.Parallel, flowCount)

	switch cfg.Driver {
	case DriverMock:
		workers := make([]executor.BrowserWorker, n)
		for i := range workers {
			workers[i] = executor.BrowserWorker{
				ID:     i,
				Driver: mock.New(mock.Config{BaseURL: cfg.Workspace.BaseURL}),
			}
		}
		printSetupSuccess(fmt.Sprintf("Mock canvas ready (%d session(s))", n))
		return workers, func() {}, nil

	case DriverPlaywright, "":
		opts, err := browser.OptionsFromConfig(cfg.Workspace)
		if err != nil {
			return nil, nil, err
		}
		printSetupStep(fmt.Sprintf("Launching %s...", opts.Browser))
		launcher, err := browser.Launch(opts)
		if err != nil {
			return nil, nil, err
		}
		shutdown := func() {
			if err := launcher.Close(); err != nil {
				logger.Warn("close launcher: %v", err)
			}
		}

		workers := make([]executor.BrowserWorker, 0, n)
		for i := 0; i < n; i++ {
			d, err := launcher.NewSession()
			if err != nil {
				shutdown()
				return nil, nil, fmt.Errorf("failed to open session %d: %w", i+1, err)
			}
			workers = append(workers, executor.BrowserWorker{ID: i, Driver: d})
		}
		printSetupSuccess(fmt.Sprintf("%s ready (%d session(s))", opts.Browser, n))
		return workers, shutdown, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %q (want %s or %s)", cfg.Driver, DriverPlaywright, DriverMock)
	}
}

// Setup progress goes to stderr so commands can pipe their stdout.
func printSetupStep(msg string) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", cyan("⏳"), msg)
}

func printSetupSuccess(msg string) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", green("✓"), msg)
}

// buildRunnerConfig fills the runner config; the session info comes from the first driver.
func buildRunnerConfig(cfg *RunConfig, first core.Driver) executor.RunnerConfig {
	pi := first.GetPlatformInfo()
	driverName := cfg.Driver
	if driverName == "" {
		driverName = DriverPlaywright
	}

	return executor.RunnerConfig{
		OutputDir:        cfg.OutputDir,
		RunID:            cfg.RunID,
		StopOnFail:       cfg.StopOnFail,
		Retries:          cfg.Retries,
		Artifacts:        cfg.Artifacts,
		Env:              cfg.Env,
		OutsideTolerance: cfg.Workspace.OutsideTolerance,
		Browser: report.BrowserInfo{
			Name:           pi.Browser,
			Version:        pi.BrowserVersion,
			Headless:       pi.Headless,
			ViewportWidth:  pi.ViewportWidth,
			ViewportHeight: pi.ViewportHeight,
		},
		Target: report.Target{
			BaseURL: cfg.Workspace.BaseURL,
			Name:    "cvat",
		},
		CI:            report.DetectCI(),
		RunnerVersion: Version,
		DriverName:    driverName,
	}
}

// executeFlows runs on a single session with live progress, or spreads flows
// over all sessions.
func executeFlows(ctx context.Context, cfg *RunConfig, workers []executor.BrowserWorker, flows []flow.Flow) (*executor.RunResult, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("no browser sessions available")
	}
	runnerCfg := buildRunnerConfig(cfg, workers[0].Driver)

	if len(workers) == 1 {
		runnerCfg.OnFlowStart = onFlowStart
		runnerCfg.OnStepComplete = onStepComplete
		runnerCfg.OnNestedStep = onNestedStep
		runnerCfg.OnNestedFlowStart = onNestedFlowStart
		runnerCfg.OnFlowEnd = onFlowEnd
		return executor.New(workers[0].Driver, runnerCfg).Run(ctx, flows)
	}

	logger.Info("Parallel execution on %d sessions", len(workers))
	return executor.NewParallelRunner(workers, runnerCfg).Run(ctx, flows)
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}
