package core

// state.go holds the session transition graph as pure functions.
//
//	uploaded -> analyzing -> analyzed -> extracting -> extracted -> loading -> loaded
//	                           |  ^                      |  ^
//	                           |  +-- re-analyze         |  +-- further tables
//	                           +------ load (no tables) -+
//
// Any non-terminal state may move to failed. Reset moves failed back to the
// last good state implied by the stage that failed.

import "fmt"

// Event drives a state transition.
type Event string

const (
	EventBeginAnalyze    Event = "begin_analyze"
	EventCompleteAnalyze Event = "complete_analyze"
	EventBeginExtract    Event = "begin_extract"
	EventCompleteExtract Event = "complete_extract"
	EventBeginLoad       Event = "begin_load"
	EventCompleteLoad    Event = "complete_load"
	EventFail            Event = "fail"
)

var transitions = map[State]map[Event]State{
	StateUploaded: {
		EventBeginAnalyze: StateAnalyzing,
	},
	StateAnalyzing: {
		EventCompleteAnalyze: StateAnalyzed,
	},
	StateAnalyzed: {
		EventBeginAnalyze: StateAnalyzing,
		EventBeginExtract: StateExtracting,
		EventBeginLoad:    StateLoading,
	},
	StateExtracting: {
		EventCompleteExtract: StateExtracted,
	},
	StateExtracted: {
		EventBeginExtract: StateExtracting,
		EventBeginLoad:    StateLoading,
	},
	StateLoading: {
		EventCompleteLoad: StateLoaded,
	},
}

// Transition returns the state reached by applying ev to from.
func Transition(from State, ev Event) (State, error) {
	if ev == EventFail {
		if from.Terminal() {
			return "", &InvalidTransitionError{Event: ev, Actual: from}
		}
		return StateFailed, nil
	}
	if next, ok := transitions[from][ev]; ok {
		return next, nil
	}
	return "", &InvalidTransitionError{Event: ev, Actual: from, Expected: sourcesOf(ev)}
}

// sourcesOf lists the states from which ev is allowed, in pipeline order.
func sourcesOf(ev Event) []State {
	var out []State
	for _, s := range AllStates {
		if _, ok := transitions[s][ev]; ok {
			out = append(out, s)
		}
	}
	return out
}

// BeginEvent returns the event that starts stage.
func BeginEvent(stage Stage) Event {
	switch stage {
	case StageAnalyze:
		return EventBeginAnalyze
	case StageExtract:
		return EventBeginExtract
	default:
		return EventBeginLoad
	}
}

// CompleteEvent returns the event that finishes stage.
func CompleteEvent(stage Stage) Event {
	switch stage {
	case StageAnalyze:
		return EventCompleteAnalyze
	case StageExtract:
		return EventCompleteExtract
	default:
		return EventCompleteLoad
	}
}

// RunningState returns the in-progress state owned by stage.
func RunningState(stage Stage) State {
	switch stage {
	case StageAnalyze:
		return StateAnalyzing
	case StageExtract:
		return StateExtracting
	default:
		return StateLoading
	}
}

// CheckBegin validates that stage may start from the session's current state
// and returns the in-progress state to move to. Load from analyzed is only
// allowed when the analysis found no tables. A session already owned by a
// running stage yields ErrConflict rather than an invalid transition.
func CheckBegin(s *ExtractionSession, stage Stage) (State, error) {
	if s.State.InProgress() {
		return "", fmt.Errorf("cannot %s session %s while %s: %w", stage, s.ID, s.State, ErrConflict)
	}
	next, err := Transition(s.State, BeginEvent(stage))
	if err != nil {
		return "", &InvalidTransitionError{
			Stage:    stage,
			Event:    BeginEvent(stage),
			Expected: Predecessors(stage),
			Actual:   s.State,
		}
	}
	if stage == StageLoad && s.State == StateAnalyzed && s.TablesFound > 0 {
		return "", &InvalidTransitionError{
			Stage:    stage,
			Event:    EventBeginLoad,
			Expected: []State{StateExtracted},
			Actual:   s.State,
		}
	}
	return next, nil
}

// Predecessors lists the states a stage may begin from.
func Predecessors(stage Stage) []State {
	return sourcesOf(BeginEvent(stage))
}

// StepFor returns the CurrentStep after reaching state, never lower than prev.
func StepFor(state State, prev int) int {
	step := prev
	switch state {
	case StateUploaded:
		step = max(prev, StepUploaded)
	case StateAnalyzed:
		step = max(prev, StepAnalyzed)
	case StateExtracted:
		step = max(prev, StepExtracted)
	case StateLoaded:
		step = StepComplete
	}
	return step
}

// ResetTarget returns the state a failed session returns to on reset.
func ResetTarget(s *ExtractionSession) (State, int, error) {
	if s.State != StateFailed {
		return "", 0, &InvalidTransitionError{Event: "reset", Actual: s.State, Expected: []State{StateFailed}}
	}
	switch s.ErrorStage {
	case StageAnalyze:
		if s.CurrentStep >= StepAnalyzed {
			return StateAnalyzed, s.CurrentStep, nil
		}
		return StateUploaded, StepUploaded, nil
	case StageExtract:
		if s.CurrentStep >= StepExtracted {
			return StateExtracted, s.CurrentStep, nil
		}
		return StateAnalyzed, StepAnalyzed, nil
	case StageLoad:
		if s.CurrentStep >= StepExtracted {
			return StateExtracted, s.CurrentStep, nil
		}
		return StateAnalyzed, StepAnalyzed, nil
	default:
		return StateUploaded, StepUploaded, nil
	}
}
