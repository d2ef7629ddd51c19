package bus

import (
	"fmt"

	"github.com/BaSui01/agentbus/types"
)

// validateEmitTarget checks whether a driver may move a record from current
// to target via Emit. The step machine is ordered: a driver may skip steps
// forward but never move sideways or backward. ERROR is reachable from any
// non-terminal step. The review steps are excluded here because only
// PauseForAction and ResumeFromAction may enter them.
func validateEmitTarget(current, target types.Step) *types.Error {
	if !target.Valid() {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("unknown step %q", target))
	}
	if target == types.StepPausedForReview || target == types.StepResumedFromReview {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("step %s is entered through pause/resume, not emit", target))
	}
	if current.IsTerminal() {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("record is terminal at %s", current))
	}
	if target == types.StepError {
		return nil
	}
	if current == types.StepPausedForReview {
		return types.NewError(types.ErrAlreadyPaused,
			"workflow is paused awaiting a pending action")
	}
	if target.Index() <= current.Index() {
		return types.NewError(types.ErrInvalidTransition,
			fmt.Sprintf("cannot move from %s to %s", current, target))
	}
	return nil
}
