package engine

import "sync"

// Stage is one step of the order lifecycle. Stages only move forward;
// optional stages may be skipped.
type Stage int

const (
	StageValidating Stage = iota
	StageCooldownCheck
	StageGuardrailCheck
	StagePreparing
	StageQuantizing
	StagePositionMode
	StageLeverageClamp
	StageStopLossValidating
	StageEmbedding
	StageDispatching
	StageProtecting
	StageDone
	StageFailed
)

var stageNames = map[Stage]string{
	StageValidating:         "validating",
	StageCooldownCheck:      "cooldown-check",
	StageGuardrailCheck:     "guardrail-check",
	StagePreparing:          "preparing",
	StageQuantizing:         "quantizing",
	StagePositionMode:       "position-mode-finishing",
	StageLeverageClamp:      "leverage-clamping",
	StageStopLossValidating: "stop-loss-validating",
	StageEmbedding:          "embedding-stop-loss",
	StageDispatching:        "dispatching",
	StageProtecting:         "protecting",
	StageDone:               "done",
	StageFailed:             "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

type lifecycle struct {
	mu    sync.Mutex
	stage Stage
	last  Stage
}

func newLifecycle() *lifecycle {
	return &lifecycle{stage: StageValidating, last: StageValidating}
}

// Advance moves to next when it lies ahead of the current stage. Terminal
// stages never change.
func (l *lifecycle) Advance(next Stage) Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage == StageDone || l.stage == StageFailed {
		return l.stage
	}
	if next > l.stage {
		l.stage = next
		if next != StageFailed {
			l.last = next
		}
	}
	return l.stage
}

// Fail marks the order failed and returns the stage it failed in.
func (l *lifecycle) Fail() Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage == StageDone {
		return l.last
	}
	l.stage = StageFailed
	return l.last
}

func (l *lifecycle) Stage() Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stage
}
