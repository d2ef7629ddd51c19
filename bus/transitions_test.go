package bus

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentbus/types"
)

func TestValidateEmitTarget(t *testing.T) {
	tests := []struct {
		name     string
		current  types.Step
		target   types.Step
		wantCode types.ErrorCode
	}{
		{"forward step", types.StepInitialized, types.StepRetrievingContext, ""},
		{"forward jump", types.StepInitialized, types.StepPolicyEvaluated, ""},
		{"skip review steps", types.StepPolicyEvaluated, types.StepStoring, ""},
		{"storing to completed", types.StepStoring, types.StepCompleted, ""},
		{"same step", types.StepValidating, types.StepValidating, types.ErrInvalidTransition},
		{"backward", types.StepPolicyEvaluated, types.StepCallingLLM, types.ErrInvalidTransition},
		{"error from initialized", types.StepInitialized, types.StepError, ""},
		{"error from paused", types.StepPausedForReview, types.StepError, ""},
		{"error from completed", types.StepCompleted, types.StepError, types.ErrInvalidTransition},
		{"emit into paused", types.StepPolicyEvaluated, types.StepPausedForReview, types.ErrInvalidTransition},
		{"emit into resumed", types.StepPausedForReview, types.StepResumedFromReview, types.ErrInvalidTransition},
		{"emit while paused", types.StepPausedForReview, types.StepStoring, types.ErrAlreadyPaused},
		{"from completed", types.StepCompleted, types.StepStoring, types.ErrInvalidTransition},
		{"from error", types.StepError, types.StepCompleted, types.ErrInvalidTransition},
		{"unknown step", types.StepInitialized, types.Step("SHIPPING"), types.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateEmitTarget(tt.current, tt.target)
			if tt.wantCode == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.Code)
		})
	}
}

func TestProperty_EmitTargetOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	steps := make([]interface{}, len(types.StepOrder))
	for i, s := range types.StepOrder {
		steps[i] = s
	}

	properties.Property("plain targets are accepted exactly when strictly forward", prop.ForAll(
		func(current, target types.Step) bool {
			err := validateEmitTarget(current, target)
			if target == types.StepPausedForReview || target == types.StepResumedFromReview {
				return err != nil
			}
			if current.IsTerminal() {
				return err != nil
			}
			if target == types.StepError {
				return err == nil
			}
			if current == types.StepPausedForReview {
				return err != nil
			}
			legal := target.Index() > current.Index()
			return (err == nil) == legal
		},
		gen.OneConstOf(steps...),
		gen.OneConstOf(steps...),
	))

	properties.Property("the error step is accepted from every non-terminal step", prop.ForAll(
		func(current types.Step) bool {
			err := validateEmitTarget(current, types.StepError)
			return (err == nil) == !current.IsTerminal()
		},
		gen.OneConstOf(steps...),
	))

	properties.TestingRun(t)
}
