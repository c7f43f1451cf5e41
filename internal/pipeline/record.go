package pipeline

import (
	"uvuebuild/internal/core"
	"uvuebuild/internal/recovery/state"
)

// startRecord opens the cycle record. Recording is best effort: a broken
// state directory never fails a build.
func (c *Compiler) startRecord() {
	c.current = nil
	if c.deps.Recorder == nil {
		return
	}
	cyc, err := c.deps.Recorder.StartCycle(state.Cycle{Mode: state.CycleMode(c.cfg.Mode)})
	if err != nil {
		c.deps.Logger.Warnf("cycle record: %v", err)
		return
	}
	c.current = &cyc
}

func (c *Compiler) recordFailure(err error) {
	if c.current == nil || c.deps.Recorder == nil {
		return
	}
	if rerr := c.deps.Recorder.RecordFailure(c.current.CycleID, err); rerr != nil {
		c.deps.Logger.Warnf("cycle record: %v", rerr)
	}
}

func (c *Compiler) finish(cy *cycle, result *core.CompileResult, compiled []string, status state.CycleStatus, err error) {
	tr := cy.rec.Trace(cy.key)
	c.lastTrace = tr
	if c.TraceFile != "" {
		if werr := tr.WriteFile(c.TraceFile); werr != nil {
			c.deps.Logger.Warnf("trace: %v", werr)
		}
	}

	if c.current == nil {
		return
	}
	defer func() { c.current = nil }()
	if err != nil {
		c.recordFailure(err)
	}
	rec := *c.current
	rec.CycleKey = cy.key
	rec.Stages = append([]string(nil), cy.stages...)
	rec.Compiled = append([]string(nil), compiled...)
	if result != nil {
		rec.Changed = append([]string(nil), result.Changed...)
	}
	if _, ferr := c.deps.Recorder.FinishCycle(rec, status); ferr != nil {
		c.deps.Logger.Warnf("cycle record: %v", ferr)
		return
	}
	if _, perr := c.deps.Recorder.Store.Prune(state.DefaultRetention); perr != nil {
		c.deps.Logger.Warnf("cycle record: prune: %v", perr)
	}
}
