package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devicelab-dev/canvas-runner/pkg/core"
	"github.com/devicelab-dev/canvas-runner/pkg/flow"
	"github.com/devicelab-dev/canvas-runner/pkg/logger"
	"github.com/devicelab-dev/canvas-runner/pkg/report"
)

// BrowserWorker is one isolated browser session that pulls flows from the queue.
type BrowserWorker struct {
	ID      int
	Driver  core.Driver
	Cleanup func()
}

// workItem represents a flow and its index in the original flow list.
type workItem struct {
	flow  flow.Flow
	index int
}

// ParallelRunner coordinates parallel test execution across browser sessions.
type ParallelRunner struct {
	workers []BrowserWorker
	config  RunnerConfig
}

// NewParallelRunner creates a parallel runner with multiple browser workers.
func NewParallelRunner(workers []BrowserWorker, config RunnerConfig) *ParallelRunner {
	return &ParallelRunner{
		workers: workers,
		config:  config,
	}
}

// Run executes flows in parallel using a work queue pattern.
// All workers pull from the same queue until all flows are complete.
func (pr *ParallelRunner) Run(ctx context.Context, flows []flow.Flow) (*RunResult, error) {
	if len(pr.workers) == 0 {
		return nil, fmt.Errorf("no workers available")
	}

	index, flowDetails, err := buildReport(flows, pr.config)
	if err != nil {
		return nil, err
	}

	indexWriter := report.NewIndexWriter(pr.config.OutputDir, index)
	defer indexWriter.Close()

	indexWriter.Start()
	startTime := time.Now()
	logger.Info("run %s started: %d flow(s) on %d worker(s)", index.RunID, len(flows), len(pr.workers))

	workQueue := make(chan workItem, len(flows))
	for i, f := range flows {
		workQueue <- workItem{flow: f, index: i}
	}
	close(workQueue)

	results := make([]FlowResult, len(flows))
	var wg sync.WaitGroup
	var stopped atomic.Bool

	totalFlows := len(flows)

	for i := range pr.workers {
		wg.Add(1)
		worker := pr.workers[i]

		go func(w BrowserWorker) {
			defer wg.Done()
			if w.Cleanup != nil {
				defer w.Cleanup()
			}

			// Each worker has its own driver but shares the report
			cfg := pr.config
			cfg.Browser.Worker = w.ID

			for item := range workQueue {
				detail := &flowDetails[item.index]
				switch {
				case ctx.Err() != nil:
					results[item.index] = skipFlow(cfg, detail, indexWriter, "run cancelled")
				case stopped.Load():
					results[item.index] = skipFlow(cfg, detail, indexWriter, "run stopped")
				default:
					result := executeFlow(ctx, w.Driver, cfg, item.flow, detail, indexWriter, item.index, totalFlows)
					results[item.index] = result
					if pr.config.StopOnFail && result.Status == report.StatusFailed {
						stopped.Store(true)
					}
				}
			}
		}(worker)
	}

	wg.Wait()

	indexWriter.End()

	// Wall clock time, not the sum of flow durations
	result := buildRunResult(results)
	result.Duration = time.Since(startTime).Milliseconds()
	result.RunID = index.RunID
	logger.Info("run %s finished: %s (%d passed, %d failed, %d skipped)",
		index.RunID, result.Status, result.PassedFlows, result.FailedFlows, result.SkippedFlows)
	return result, nil
}
