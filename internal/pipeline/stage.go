package pipeline

import "fmt"

// Stage is a state of the compile cycle.
type Stage string

const (
	StageIdle             Stage = "Idle"
	StageTranspiling      Stage = "Transpiling"
	StageSuccess          Stage = "Success"
	StageSyntaxError      Stage = "SyntaxError"
	StageProductionBuild  Stage = "ProductionBuild"
	StageDevelopmentCycle Stage = "DevelopmentCycle"
	StageNoChangesNeeded  Stage = "NoChangesNeeded"
	StageCompiling        Stage = "Compiling"
	StageDexSuccess       Stage = "DexSuccess"
	StageDexFailure       Stage = "DexFailure"
)

// IsTerminal reports whether no further transition is possible.
func IsTerminal(s Stage) bool {
	switch s {
	case StageSyntaxError, StageProductionBuild, StageNoChangesNeeded, StageDexSuccess, StageDexFailure:
		return true
	default:
		return false
	}
}

// Transition validates a move from one stage to the next.
func Transition(from, to Stage) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed stage transition: %s -> %s", from, to)
	}
	return nil
}

func isAllowedTransition(from, to Stage) bool {
	switch from {
	case StageIdle:
		return to == StageTranspiling
	case StageTranspiling:
		return to == StageSuccess || to == StageSyntaxError
	case StageSuccess:
		return to == StageProductionBuild || to == StageDevelopmentCycle
	case StageDevelopmentCycle:
		return to == StageNoChangesNeeded || to == StageCompiling
	case StageCompiling:
		return to == StageDexSuccess || to == StageDexFailure
	default:
		return false
	}
}
