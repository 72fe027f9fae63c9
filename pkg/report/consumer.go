package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/samber/lo"
)

// Consumer polls a report directory and reports which flows changed
// since the previous poll.
type Consumer struct {
	reportDir     string
	lastGlobalSeq uint64
	lastFlowSeq   map[string]uint64
}

// NewConsumer creates a consumer for the given report directory.
func NewConsumer(reportDir string) *Consumer {
	return &Consumer{
		reportDir:   reportDir,
		lastFlowSeq: make(map[string]uint64),
	}
}

// Poll reads the index and returns the IDs of flows whose updateSeq moved.
func (c *Consumer) Poll() ([]string, *Index, error) {
	index, err := c.ReadIndex()
	if err != nil {
		return nil, nil, err
	}

	if c.lastGlobalSeq != 0 && index.UpdateSeq == c.lastGlobalSeq {
		return nil, index, nil
	}
	c.lastGlobalSeq = index.UpdateSeq

	var changed []string
	for _, f := range index.Flows {
		last, seen := c.lastFlowSeq[f.ID]
		if !seen || last != f.UpdateSeq {
			changed = append(changed, f.ID)
			c.lastFlowSeq[f.ID] = f.UpdateSeq
		}
	}
	return changed, index, nil
}

// ReadIndex reads report.json from the consumer's directory.
func (c *Consumer) ReadIndex() (*Index, error) {
	return ReadIndex(filepath.Join(c.reportDir, "report.json"))
}

// ReadFlow reads a single flow detail file.
func (c *Consumer) ReadFlow(flowID string) (*FlowDetail, error) {
	return ReadFlow(filepath.Join(c.reportDir, "flows", flowID+".json"))
}

// Reset forgets all seen sequence numbers.
func (c *Consumer) Reset() {
	c.lastGlobalSeq = 0
	c.lastFlowSeq = make(map[string]uint64)
}

// ReadIndex reads an index file.
func ReadIndex(path string) (*Index, error) {
	var index Index
	if err := readJSON(path, &index); err != nil {
		return nil, err
	}
	return &index, nil
}

// ReadFlow reads a flow detail file.
func ReadFlow(path string) (*FlowDetail, error) {
	var fd FlowDetail
	if err := readJSON(path, &fd); err != nil {
		return nil, err
	}
	return &fd, nil
}

// ReadReport reads the index and every flow detail it references.
func ReadReport(reportDir string) (*Index, []FlowDetail, error) {
	index, err := ReadIndex(filepath.Join(reportDir, "report.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("read index: %w", err)
	}

	flows := make([]FlowDetail, 0, len(index.Flows))
	for _, entry := range index.Flows {
		fd, err := ReadFlow(filepath.Join(reportDir, entry.DataFile))
		if err != nil {
			return nil, nil, fmt.Errorf("read flow %s: %w", entry.ID, err)
		}
		flows = append(flows, *fd)
	}
	return index, flows, nil
}

// Recover finalises a report left behind by an interrupted run.
// Non-terminal flows get a status inferred from their commands; flows that
// cannot be completed are marked failed with "Flow interrupted".
func Recover(reportDir string) error {
	indexPath := filepath.Join(reportDir, "report.json")
	index, err := ReadIndex(indexPath)
	if err != nil {
		return fmt.Errorf("read index: %w", err)
	}

	if lo.EveryBy(index.Flows, func(f FlowEntry) bool { return f.Status.IsTerminal() }) &&
		index.Status.IsTerminal() {
		return nil
	}

	now := time.Now()
	for i := range index.Flows {
		entry := &index.Flows[i]
		if entry.Status.IsTerminal() {
			continue
		}

		flowPath := filepath.Join(reportDir, entry.DataFile)
		fd, err := ReadFlow(flowPath)
		if err != nil {
			entry.Status = StatusFailed
			entry.Error = lo.ToPtr("Flow interrupted")
			entry.UpdateSeq++
			continue
		}

		status := inferStatus(fd.Commands)
		if status == StatusRunning {
			status = StatusFailed
			entry.Error = lo.ToPtr("Flow interrupted")
			for j := range fd.Commands {
				switch fd.Commands[j].Status {
				case StatusRunning:
					fd.Commands[j].Status = StatusFailed
				case StatusPending:
					fd.Commands[j].Status = StatusSkipped
				}
			}
		}
		if fd.EndTime == nil {
			fd.EndTime = &now
		}
		if err := atomicWriteJSON(flowPath, fd); err != nil {
			return fmt.Errorf("write flow %s: %w", entry.ID, err)
		}

		entry.Status = status
		entry.Commands = commandSummary(fd.Commands)
		if entry.EndTime == nil {
			entry.EndTime = &now
		}
		entry.UpdateSeq++
	}

	index.Summary = summarize(index.Flows)
	index.Status = runStatus(index.Flows)
	if index.EndTime == nil {
		index.EndTime = &now
	}
	index.LastUpdated = now
	index.UpdateSeq++

	return atomicWriteJSON(indexPath, index)
}

// inferStatus derives a flow status from its command statuses.
func inferStatus(commands []Command) Status {
	if len(commands) == 0 {
		return StatusFailed
	}
	if lo.SomeBy(commands, func(c Command) bool { return c.Status == StatusFailed }) {
		return StatusFailed
	}
	if lo.SomeBy(commands, func(c Command) bool { return !c.Status.IsTerminal() }) {
		return StatusRunning
	}
	if lo.SomeBy(commands, func(c Command) bool { return c.Status == StatusPassed }) {
		return StatusPassed
	}
	return StatusRunning
}
