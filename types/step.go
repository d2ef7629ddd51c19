package types

// Step identifies a position in the workflow step machine.
type Step string

const (
	StepInitialized        Step = "INITIALIZED"
	StepRetrievingContext  Step = "RETRIEVING_CONTEXT"
	StepContextRetrieved   Step = "CONTEXT_RETRIEVED"
	StepCallingLLM         Step = "CALLING_LLM"
	StepLLMCompleted       Step = "LLM_COMPLETED"
	StepValidating         Step = "VALIDATING"
	StepValidationComplete Step = "VALIDATION_COMPLETE"
	StepPolicyEvaluating   Step = "POLICY_EVALUATING"
	StepPolicyEvaluated    Step = "POLICY_EVALUATED"
	StepPausedForReview    Step = "PAUSED_FOR_REVIEW"
	StepResumedFromReview  Step = "RESUMED_FROM_REVIEW"
	StepStoring            Step = "STORING"
	StepCompleted          Step = "COMPLETED"
	StepError              Step = "ERROR"
)

// StepOrder lists every step in display order. The review steps sit between
// POLICY_EVALUATED and STORING because that is where a paused workflow shows
// up on a timeline; a workflow that needs no review skips straight past them.
var StepOrder = []Step{
	StepInitialized,
	StepRetrievingContext,
	StepContextRetrieved,
	StepCallingLLM,
	StepLLMCompleted,
	StepValidating,
	StepValidationComplete,
	StepPolicyEvaluating,
	StepPolicyEvaluated,
	StepPausedForReview,
	StepResumedFromReview,
	StepStoring,
	StepCompleted,
	StepError,
}

var stepIndex = func() map[Step]int {
	m := make(map[Step]int, len(StepOrder))
	for i, s := range StepOrder {
		m[s] = i
	}
	return m
}()

// Index returns the step's position in StepOrder, or -1 for unknown steps.
func (s Step) Index() int {
	if i, ok := stepIndex[s]; ok {
		return i
	}
	return -1
}

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	_, ok := stepIndex[s]
	return ok
}

// IsTerminal reports whether no further transitions are legal from s.
func (s Step) IsTerminal() bool {
	return s == StepCompleted || s == StepError
}

func (s Step) String() string {
	return string(s)
}
