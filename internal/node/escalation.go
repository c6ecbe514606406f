package node

import (
	"context"
	"syscall"
	"time"

	"ledgerdev/internal/logging"
)

// StepName identifies one step of the stop escalation.
type StepName string

const (
	StepGraceful          StepName = "graceful-signal"
	StepWait              StepName = "wait"
	StepRescan            StepName = "rescan"
	StepForced            StepName = "forced-signal"
	StepPatternKillScoped StepName = "pattern-kill-scoped"
	StepPatternKillBroad  StepName = "pattern-kill-broad"
)

// StepRecord is what one executed step observed.
type StepRecord struct {
	Name      StepName `json:"name"`
	Targets   []int    `json:"targets,omitempty"`
	Survivors []int    `json:"survivors,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// StopReport describes one pass of the escalation.
type StopReport struct {
	InitialPIDs    []int        `json:"initial_pids"`
	Steps          []StepRecord `json:"steps"`
	Survivors      []int        `json:"survivors,omitempty"`
	AlreadyStopped bool         `json:"already_stopped"`
}

// stopStep mutates the survivor set of an escalation pass.
type stopStep struct {
	name StepName
	run  func(ctx context.Context, esc *escalation) StepRecord
}

type escalation struct {
	m         *Manager
	survivors []int
	report    *StopReport
}

// stopSequence is the full escalation. Signal steps act on the current survivor
// set; the pass ends at the first rescan that finds nothing.
func (m *Manager) stopSequence() []stopStep {
	return []stopStep{
		{StepGraceful, signalStep(StepGraceful, syscall.SIGTERM)},
		{StepWait, waitStep(m.cfg.StopSettleInterval)},
		{StepRescan, rescanStep(m.ScopedPattern())},
		{StepForced, signalStep(StepForced, syscall.SIGKILL)},
		{StepWait, waitStep(m.cfg.StopSettleInterval)},
		{StepRescan, rescanStep(m.ScopedPattern())},
		{StepPatternKillScoped, patternStep(StepPatternKillScoped, m.ScopedPattern())},
		{StepWait, waitStep(m.cfg.StopSettleInterval)},
		{StepRescan, rescanStep(m.ScopedPattern())},
		{StepPatternKillBroad, patternStep(StepPatternKillBroad, m.BroadPattern())},
		{StepWait, waitStep(m.cfg.StopSettleInterval)},
		{StepRescan, rescanStep(m.ScopedPattern())},
	}
}

func (e *escalation) run(ctx context.Context, steps []stopStep) {
	for _, step := range steps {
		rec := step.run(ctx, e)
		e.report.Steps = append(e.report.Steps, rec)
		if step.name == StepRescan && len(e.survivors) == 0 {
			return
		}
	}
}

func signalStep(name StepName, sig syscall.Signal) func(context.Context, *escalation) StepRecord {
	return func(_ context.Context, e *escalation) StepRecord {
		rec := StepRecord{Name: name, Targets: append([]int(nil), e.survivors...)}
		for _, pid := range e.survivors {
			if err := e.m.signaler.Send(pid, sig); err != nil {
				logging.NodeWarn("%s to pid %d: %v", name, pid, err)
				rec.Error = err.Error()
			}
		}
		return rec
	}
}

func waitStep(d time.Duration) func(context.Context, *escalation) StepRecord {
	return func(ctx context.Context, e *escalation) StepRecord {
		e.m.sleep(ctx, d)
		return StepRecord{Name: StepWait}
	}
}

func rescanStep(pattern string) func(context.Context, *escalation) StepRecord {
	return func(ctx context.Context, e *escalation) StepRecord {
		pids, err := e.m.scanner.Find(ctx, pattern)
		rec := StepRecord{Name: StepRescan}
		if err != nil {
			// Keep the previous survivors; an unreadable process table is not proof of exit.
			logging.NodeWarn("rescan failed: %v", err)
			rec.Error = err.Error()
			rec.Survivors = append([]int(nil), e.survivors...)
			return rec
		}
		e.survivors = pids
		rec.Survivors = append([]int(nil), pids...)
		return rec
	}
}

func patternStep(name StepName, pattern string) func(context.Context, *escalation) StepRecord {
	return func(ctx context.Context, e *escalation) StepRecord {
		rec := StepRecord{Name: name, Targets: append([]int(nil), e.survivors...)}
		if err := e.m.signaler.KillPattern(ctx, pattern, syscall.SIGKILL); err != nil {
			logging.NodeWarn("%s %q: %v", name, pattern, err)
			rec.Error = err.Error()
		}
		return rec
	}
}
